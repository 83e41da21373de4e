package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pizzeria-system/internal/apperror"
	"pizzeria-system/internal/database/models"
	"pizzeria-system/internal/events"
	"pizzeria-system/internal/repository"
	"pizzeria-system/internal/services/cash"
	"pizzeria-system/internal/utils"
)

// Register is the part of the cash controller a settlement needs.
type Register interface {
	EnsureOpen(ctx context.Context, tx repository.Tx) error
	Record(ctx context.Context, tx repository.Tx, in cash.MovementInput) (*models.CashMovement, error)
	Announce(ctx context.Context, m *models.CashMovement)
}

type Generator struct {
	store     repository.Store
	register  Register
	publisher events.Publisher
	log       *zap.Logger
	cashCode  string
	now       func() time.Time
}

func NewGenerator(store repository.Store, register Register, publisher events.Publisher, log *zap.Logger, cashCode string) *Generator {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cashCode == "" {
		cashCode = models.PaymentCash
	}
	return &Generator{
		store:     store,
		register:  register,
		publisher: publisher,
		log:       log,
		cashCode:  cashCode,
		now:       time.Now,
	}
}

type Settlement struct {
	Sale     *models.Sale         `json:"sale"`
	Movement *models.CashMovement `json:"movement"`
}

// SettleOrder turns a DELIVERED order into a sale, finalizes the order and
// books the total as one CASH_IN. paymentMethodID defaults to cash.
func (g *Generator) SettleOrder(ctx context.Context, orderID int64, paymentMethodID *int64) (*Settlement, error) {
	var result Settlement
	err := repository.Transact(ctx, g.store, func(tx repository.Tx) error {
		if err := g.register.EnsureOpen(ctx, tx); err != nil {
			return err
		}
		order, err := tx.GetOrder(orderID, true)
		if err != nil {
			return fmt.Errorf("order %d: %w", orderID, err)
		}
		if err := settleable(order); err != nil {
			return err
		}

		method, err := g.paymentMethod(tx, paymentMethodID)
		if err != nil {
			return err
		}
		sale, err := g.buildSale(tx, order, method.ID)
		if err != nil {
			return err
		}
		if !sale.Amount.IsPositive() {
			return apperror.NewValidation("total", "order %d totals %s and cannot be settled", order.ID, sale.Amount.StringFixed(2))
		}
		if err := tx.CreateSale(sale); err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}

		closedAt := sale.SoldAt
		if err := tx.UpdateOrderStatus(order.ID, models.OrderFinalized, &closedAt); err != nil {
			return err
		}

		saleID := sale.ID
		movement, err := g.register.Record(ctx, tx, cash.MovementInput{
			Type:            models.CashIn,
			Amount:          sale.Amount,
			PaymentMethodID: &method.ID,
			SaleID:          &saleID,
			Description:     sale.Description,
		})
		if err != nil {
			return err
		}
		result = Settlement{Sale: sale, Movement: movement}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.register.Announce(ctx, result.Movement)
	g.log.Info("order settled",
		zap.Int64("order_id", orderID),
		zap.Int64("sale_id", result.Sale.ID),
		zap.String("amount", result.Sale.Amount.StringFixed(2)),
	)
	events.Emit(ctx, g.publisher, g.log, events.New(events.SaleSettled, utils.EmployeeRef(ctx), result.Sale))
	return &result, nil
}

func settleable(order *models.Order) error {
	if order.Status != models.OrderDelivered {
		return apperror.NewValidation("status", "order %d is %s; only DELIVERED orders can be settled", order.ID, order.Status)
	}
	if len(order.Lines) == 0 {
		return apperror.NewValidation("lines", "order %d has no items", order.ID)
	}
	if order.CustomerID == nil {
		return apperror.NewValidation("customer_id", "order %d has no customer", order.ID)
	}
	if order.EmployeeID == nil {
		return apperror.NewValidation("employee_id", "order %d has no employee", order.ID)
	}
	return nil
}

func (g *Generator) paymentMethod(tx repository.Tx, id *int64) (*models.PaymentMethod, error) {
	var (
		method *models.PaymentMethod
		err    error
	)
	if id != nil {
		method, err = repository.PaymentMethodByID(tx, *id)
	} else {
		method, err = repository.PaymentMethodByCode(tx, g.cashCode)
	}
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NewValidation("payment_method_id", "unknown or inactive payment method")
	}
	return method, err
}

// buildSale freezes current dish prices. Each line subtotal is rounded to
// cents before summing.
func (g *Generator) buildSale(tx repository.Tx, order *models.Order, methodID int64) (*models.Sale, error) {
	ids := make([]int64, 0, len(order.Lines))
	for _, l := range order.Lines {
		ids = append(ids, l.DishID)
	}
	dishes, err := tx.GetDishes(ids)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	lines := make([]models.SaleLine, 0, len(order.Lines))
	for _, l := range order.Lines {
		dish, ok := dishes[l.DishID]
		if !ok {
			return nil, apperror.NewValidation("lines", "dish %d does not exist", l.DishID)
		}
		subtotal := dish.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)).Round(2)
		total = total.Add(subtotal)
		lines = append(lines, models.SaleLine{
			DishID:    dish.ID,
			UnitPrice: dish.UnitPrice,
			Quantity:  l.Quantity,
			Subtotal:  subtotal,
		})
	}

	return &models.Sale{
		OrderID:         order.ID,
		CustomerID:      *order.CustomerID,
		EmployeeID:      *order.EmployeeID,
		PaymentMethodID: methodID,
		Amount:          total,
		Description:     fmt.Sprintf("Sale of order #%d", order.ID),
		SoldAt:          g.now(),
		Lines:           lines,
	}, nil
}
