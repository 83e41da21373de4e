package purchasing

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

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type env struct {
	store    *repository.MemoryStore
	register *cash.Controller
	svc      *Service
	flour    models.Ingredient
	basil    models.Ingredient
}

// flour: 10 kg on hand, 25 kg sacks, at most 100 kg stored.
// basil: no maximum, 0.5 kg bunches.
func newEnv(t *testing.T) *env {
	t.Helper()
	store := repository.NewMemoryStore()
	log := zap.NewNop()
	register := cash.NewController(store, nil, log, cash.Config{Location: time.UTC})
	maxStock := dec("100")
	return &env{
		store:    store,
		register: register,
		svc:      NewService(store, register, nil, log),
		flour:    store.AddIngredient(models.Ingredient{Name: "flour", Unit: "kg", OnHand: dec("10"), MaxStock: &maxStock, PackCapacity: dec("25")}),
		basil:    store.AddIngredient(models.Ingredient{Name: "basil", Unit: "kg", PackCapacity: dec("0.5")}),
	}
}

func (e *env) order(t *testing.T, ingredientID, packages int64, cost string) *models.Purchase {
	t.Helper()
	p, err := e.svc.CreatePurchase(context.Background(), CreateInput{
		Lines: []LineInput{{IngredientID: ingredientID, Packages: packages, UnitCost: dec(cost)}},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	return p
}

func TestCreatePurchaseRespectsMaxStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// 10 + 3*25 = 85 fits.
	e.order(t, e.flour.ID, 3, "18.00")

	// 10 + 75 on order + 25 = 110 does not.
	_, err := e.svc.CreatePurchase(ctx, CreateInput{Lines: []LineInput{{IngredientID: e.flour.ID, Packages: 1}}})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// No maximum configured.
	e.order(t, e.basil.ID, 40, "1.10")
}

func TestCancelledPurchaseFreesCapacity(t *testing.T) {
	e := newEnv(t)
	p := e.order(t, e.flour.ID, 3, "18.00")
	if _, err := e.svc.CancelPurchase(context.Background(), p.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	e.order(t, e.flour.ID, 3, "18.00")

	stored, _ := e.store.Purchase(p.ID)
	if stored.Status != models.PurchaseCancelled {
		t.Errorf("status = %s", stored.Status)
	}
}

func TestCreatePurchaseValidation(t *testing.T) {
	e := newEnv(t)
	noCapacity := e.store.AddIngredient(models.Ingredient{Name: "salt", Unit: "kg"})
	tests := []struct {
		name  string
		lines []LineInput
	}{
		{"empty", nil},
		{"zero packages", []LineInput{{IngredientID: e.flour.ID}}},
		{"negative cost", []LineInput{{IngredientID: e.flour.ID, Packages: 1, UnitCost: dec("-1")}}},
		{"duplicate ingredient", []LineInput{{IngredientID: e.basil.ID, Packages: 1}, {IngredientID: e.basil.ID, Packages: 1}}},
		{"unknown ingredient", []LineInput{{IngredientID: 999, Packages: 1}}},
		{"no package capacity", []LineInput{{IngredientID: noCapacity.ID, Packages: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.CreatePurchase(context.Background(), CreateInput{Lines: tt.lines})
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestReceivePurchasePaidFromRegister(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.order(t, e.flour.ID, 2, "18.35")

	if _, err := e.svc.ReceivePurchase(ctx, p.ID, ReceiveInput{PaidFromRegister: true}); !errors.Is(err, apperror.ErrRegisterClosed) {
		t.Fatalf("expected closed register, got %v", err)
	}
	if got := e.store.Ingredient(e.flour.ID).OnHand; !got.Equal(dec("10")) {
		t.Fatalf("rejected receipt changed stock to %s", got)
	}

	if _, err := e.register.OpenRegister(ctx, dec("100"), ""); err != nil {
		t.Fatal(err)
	}
	receipt, err := e.svc.ReceivePurchase(ctx, p.ID, ReceiveInput{PaidFromRegister: true})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	if got := e.store.Ingredient(e.flour.ID).OnHand; !got.Equal(dec("60")) {
		t.Errorf("flour = %s, want 60", got)
	}
	if receipt.Purchase.Status != models.PurchaseReceived || receipt.Purchase.ReceivedAt == nil {
		t.Errorf("purchase = %+v", receipt.Purchase)
	}
	if len(receipt.Movements) != 1 || !receipt.Movements[0].Delta.Equal(dec("50")) {
		t.Errorf("stock trail = %+v", receipt.Movements)
	}
	m := receipt.Movement
	if m == nil || m.Type != models.CashOut || !m.Amount.Equal(dec("36.70")) || m.PurchaseID == nil || *m.PurchaseID != p.ID {
		t.Fatalf("cash movement = %+v", m)
	}

	report, err := e.register.Reconciliation(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Expected.Equal(dec("63.30")) {
		t.Errorf("register expected = %s, want 63.30", report.Expected)
	}

	if _, err := e.svc.ReceivePurchase(ctx, p.ID, ReceiveInput{}); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("second receipt: %v", err)
	}
}

func TestReceivePurchaseWithoutRegister(t *testing.T) {
	e := newEnv(t)
	p := e.order(t, e.basil.ID, 4, "1.10")

	receipt, err := e.svc.ReceivePurchase(context.Background(), p.ID, ReceiveInput{})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if receipt.Movement != nil {
		t.Error("unpaid receipt must not touch the register")
	}
	if got := e.store.Ingredient(e.basil.ID).OnHand; !got.Equal(dec("2")) {
		t.Errorf("basil = %s, want 2", got)
	}
	if len(e.store.CashMovements()) != 0 {
		t.Error("cash movements written")
	}
}
