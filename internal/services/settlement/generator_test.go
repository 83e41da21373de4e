package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pizzeria-system/internal/apperror"
	"pizzeria-system/internal/database/models"
	"pizzeria-system/internal/repository"
	"pizzeria-system/internal/services/cash"
)

type env struct {
	store     *repository.MemoryStore
	register  *cash.Controller
	generator *Generator

	pizza models.Dish
	soda  models.Dish
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := repository.NewMemoryStore()
	log := zap.NewNop()
	register := cash.NewController(store, nil, log, cash.Config{Location: time.UTC})
	e := &env{
		store:     store,
		register:  register,
		generator: NewGenerator(store, register, nil, log, ""),
		pizza:     store.AddDish(models.Dish{Name: "Margherita", UnitPrice: decimal.RequireFromString("8.50")}),
		soda:      store.AddDish(models.Dish{Name: "Soda", UnitPrice: decimal.RequireFromString("1.25")}),
	}
	return e
}

func (e *env) open(t *testing.T) {
	t.Helper()
	if _, err := e.register.OpenRegister(context.Background(), decimal.NewFromInt(100), ""); err != nil {
		t.Fatalf("open register: %v", err)
	}
}

func ptr(v int64) *int64 { return &v }

func (e *env) order(t *testing.T, status models.OrderStatus, customer *int64) int64 {
	t.Helper()
	o := &models.Order{
		Status:     status,
		CustomerID: customer,
		EmployeeID: ptr(7),
		OpenedAt:   time.Now(),
		Lines: []models.OrderLine{
			{Position: 0, DishID: e.pizza.ID, Quantity: 3},
			{Position: 1, DishID: e.soda.ID, Quantity: 2},
		},
	}
	err := e.store.WithinTx(context.Background(), func(tx repository.Tx) error { return tx.CreateOrder(o) })
	if err != nil {
		t.Fatal(err)
	}
	return o.ID
}

func TestSettleOrder(t *testing.T) {
	e := newEnv(t)
	e.open(t)
	orderID := e.order(t, models.OrderDelivered, ptr(3))

	res, err := e.generator.SettleOrder(context.Background(), orderID, nil)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if !res.Sale.Amount.Equal(decimal.RequireFromString("28.00")) {
		t.Errorf("sale amount = %s, want 28.00", res.Sale.Amount)
	}
	if len(res.Sale.Lines) != 2 || !res.Sale.Lines[0].Subtotal.Equal(decimal.RequireFromString("25.50")) {
		t.Errorf("sale lines = %+v", res.Sale.Lines)
	}
	if res.Sale.CustomerID != 3 || res.Sale.EmployeeID != 7 {
		t.Errorf("sale parties = %d/%d", res.Sale.CustomerID, res.Sale.EmployeeID)
	}

	order, _ := e.store.Order(orderID)
	if order.Status != models.OrderFinalized || order.ClosedAt == nil {
		t.Errorf("order = %s closed at %v", order.Status, order.ClosedAt)
	}

	var cashIns []models.CashMovement
	for _, m := range e.store.CashMovements() {
		if m.Type == models.CashIn {
			cashIns = append(cashIns, m)
		}
	}
	if len(cashIns) != 1 {
		t.Fatalf("got %d CASH_IN movements, want 1", len(cashIns))
	}
	in := cashIns[0]
	if in.SaleID == nil || *in.SaleID != res.Sale.ID || !in.Amount.Equal(res.Sale.Amount) {
		t.Errorf("cash in = %+v", in)
	}
	if in.PaymentMethodID == nil || *in.PaymentMethodID != res.Sale.PaymentMethodID {
		t.Errorf("cash in method = %v", in.PaymentMethodID)
	}

	report, err := e.register.Reconciliation(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !report.Expected.Equal(decimal.RequireFromString("128")) {
		t.Errorf("expected register balance = %s, want 128", report.Expected)
	}
}

func TestSettleWithCard(t *testing.T) {
	e := newEnv(t)
	e.open(t)
	orderID := e.order(t, models.OrderDelivered, ptr(3))

	var card int64
	_ = e.store.WithinTx(context.Background(), func(tx repository.Tx) error {
		m, err := repository.PaymentMethodByCode(tx, models.PaymentCard)
		if err == nil {
			card = m.ID
		}
		return err
	})

	res, err := e.generator.SettleOrder(context.Background(), orderID, &card)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if res.Sale.PaymentMethodID != card || *res.Movement.PaymentMethodID != card {
		t.Errorf("expected card payment, got sale %d movement %d", res.Sale.PaymentMethodID, *res.Movement.PaymentMethodID)
	}
}

func TestSettleRejections(t *testing.T) {
	e := newEnv(t)
	e.open(t)

	tests := []struct {
		name    string
		orderID int64
		method  *int64
		want    error
	}{
		{"open order", e.order(t, models.OrderOpen, ptr(3)), nil, apperror.ErrValidation},
		{"no customer", e.order(t, models.OrderDelivered, nil), nil, apperror.ErrValidation},
		{"unknown method", e.order(t, models.OrderDelivered, ptr(3)), ptr(99), apperror.ErrValidation},
		{"missing order", 4242, nil, apperror.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.generator.SettleOrder(context.Background(), tt.orderID, tt.method)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(e.store.Sales()) != 0 {
		t.Error("rejected settlements left sales behind")
	}
}

func TestSettleTwiceIsRejected(t *testing.T) {
	e := newEnv(t)
	e.open(t)
	orderID := e.order(t, models.OrderDelivered, ptr(3))
	if _, err := e.generator.SettleOrder(context.Background(), orderID, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.generator.SettleOrder(context.Background(), orderID, nil); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("second settle: %v", err)
	}
	if len(e.store.Sales()) != 1 {
		t.Errorf("sales = %d, want 1", len(e.store.Sales()))
	}
}

func TestSettleRequiresOpenRegister(t *testing.T) {
	e := newEnv(t)
	orderID := e.order(t, models.OrderDelivered, ptr(3))

	_, err := e.generator.SettleOrder(context.Background(), orderID, nil)
	if !errors.Is(err, apperror.ErrRegisterClosed) {
		t.Fatalf("expected closed register, got %v", err)
	}
	order, _ := e.store.Order(orderID)
	if order.Status != models.OrderDelivered {
		t.Errorf("order status changed to %s", order.Status)
	}
}

func TestSettleRejectsZeroTotal(t *testing.T) {
	e := newEnv(t)
	e.open(t)
	water := e.store.AddDish(models.Dish{Name: "Tap water", UnitPrice: decimal.Zero})
	o := &models.Order{
		Status:     models.OrderDelivered,
		CustomerID: ptr(3),
		EmployeeID: ptr(7),
		OpenedAt:   time.Now(),
		Lines:      []models.OrderLine{{DishID: water.ID, Quantity: 2}},
	}
	if err := e.store.WithinTx(context.Background(), func(tx repository.Tx) error { return tx.CreateOrder(o) }); err != nil {
		t.Fatal(err)
	}

	_, err := e.generator.SettleOrder(context.Background(), o.ID, nil)
	var ve *apperror.ValidationError
	if !errors.As(err, &ve) || ve.Field != "total" {
		t.Fatalf("expected total validation error, got %v", err)
	}
	if len(e.store.Sales()) != 0 {
		t.Error("no sale may be stored")
	}
	order, _ := e.store.Order(o.ID)
	if order.Status != models.OrderDelivered {
		t.Errorf("order status = %s, want DELIVERED", order.Status)
	}
}
