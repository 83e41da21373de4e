package stock

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pizzeria-system/internal/apperror"
	"pizzeria-system/internal/database/models"
	"pizzeria-system/internal/events"
	"pizzeria-system/internal/repository"
	"pizzeria-system/internal/utils"
)

// Guard validates every order mutation against ingredient stock, counting the
// demand already reserved by the other OPEN orders.
type Guard struct {
	store     repository.Store
	gate      RegisterGate
	executor  *Executor
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewGuard(store repository.Store, gate RegisterGate, executor *Executor, publisher events.Publisher, log *zap.Logger) *Guard {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Guard{
		store:     store,
		gate:      gate,
		executor:  executor,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

type CreateOrderInput struct {
	TableID    *int64  `json:"table_id"`
	CustomerID *int64  `json:"customer_id"`
	EmployeeID *int64  `json:"employee_id"`
	Notes      *string `json:"notes"`
	Lines      []Line  `json:"lines"`
}

func validateLines(lines []Line) error {
	if len(lines) == 0 {
		return apperror.NewValidation("lines", "order contains no items")
	}
	for i, l := range lines {
		if l.DishID <= 0 {
			return apperror.NewValidation(fmt.Sprintf("lines[%d].dish_id", i), "dish is required")
		}
		if l.Quantity <= 0 {
			return apperror.NewValidation(fmt.Sprintf("lines[%d].quantity", i), "quantity must be greater than 0")
		}
	}
	return nil
}

func requireDishes(calc *Calculator, lines []Line) error {
	for _, l := range lines {
		if _, ok := calc.Dish(l.DishID); !ok {
			return apperror.NewValidation("lines", "dish %d does not exist", l.DishID)
		}
	}
	return nil
}

func toOrderLines(lines []Line) []models.OrderLine {
	out := make([]models.OrderLine, 0, len(lines))
	for i, l := range lines {
		out = append(out, models.OrderLine{Position: int32(i), DishID: l.DishID, Quantity: l.Quantity})
	}
	return out
}

// reserved accumulates the demand already held by open.
func reserved(calc *Calculator, open []models.Order) (Demand, error) {
	demand := Demand{}
	for _, o := range open {
		if err := calc.Accumulate(demand, orderLines(o)); err != nil {
			return nil, fmt.Errorf("reserved by order %d: %w", o.ID, err)
		}
	}
	return demand, nil
}

func openOrderGroups(open []models.Order, first []Line) [][]Line {
	groups := make([][]Line, 0, len(open)+1)
	groups = append(groups, first)
	for _, o := range open {
		groups = append(groups, orderLines(o))
	}
	return groups
}

// CreateOrder persists a new OPEN order only if its ingredient demand fits
// next to everything already reserved.
func (g *Guard) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if err := validateLines(in.Lines); err != nil {
		return nil, err
	}
	lines := mergeLines(in.Lines)

	var created *models.Order
	err := repository.Transact(ctx, g.store, func(tx repository.Tx) error {
		if err := g.gate.EnsureOpen(ctx, tx); err != nil {
			return err
		}
		if err := tx.LockReservations(); err != nil {
			return err
		}
		open, err := tx.ListOpenOrders(0)
		if err != nil {
			return err
		}
		calc, err := LoadCalculator(tx, openOrderGroups(open, lines)...)
		if err != nil {
			return err
		}
		if err := requireDishes(calc, lines); err != nil {
			return err
		}
		demand, err := reserved(calc, open)
		if err != nil {
			return err
		}
		if err := calc.Accumulate(demand, lines); err != nil {
			return err
		}
		if _, err := CheckAvailability(tx, demand); err != nil {
			return err
		}

		employee := in.EmployeeID
		if employee == nil {
			employee = utils.EmployeeRef(ctx)
		}
		order := &models.Order{
			Status:     models.OrderOpen,
			TableID:    in.TableID,
			CustomerID: in.CustomerID,
			EmployeeID: employee,
			Notes:      in.Notes,
			OpenedAt:   g.now(),
			Lines:      toOrderLines(lines),
		}
		if err := tx.CreateOrder(order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.log.Info("order created", zap.Int64("order_id", created.ID), zap.Int("lines", len(created.Lines)))
	events.Emit(ctx, g.publisher, g.log, events.New(events.OrderCreated, utils.EmployeeRef(ctx), created))
	return created, nil
}

// EditResult carries the edited order and, when it was already delivered,
// the dispatch trail of the increments.
type EditResult struct {
	Order *models.Order  `json:"order"`
	Trail *MovementTrail `json:"trail,omitempty"`
}

// EditOrder replaces the lines of an OPEN or DELIVERED order. Only the
// increments over the persisted quantities are checked against stock; a
// decrease never touches it.
func (g *Guard) EditOrder(ctx context.Context, orderID int64, lines []Line) (*EditResult, error) {
	if err := validateLines(lines); err != nil {
		return nil, err
	}
	lines = mergeLines(lines)

	var result EditResult
	err := repository.Transact(ctx, g.store, func(tx repository.Tx) error {
		result = EditResult{}
		if err := g.gate.EnsureOpen(ctx, tx); err != nil {
			return err
		}
		if err := tx.LockReservations(); err != nil {
			return err
		}
		order, err := tx.GetOrder(orderID, true)
		if err != nil {
			return fmt.Errorf("order %d: %w", orderID, err)
		}
		switch order.Status {
		case models.OrderOpen, models.OrderDelivered:
		default:
			return apperror.NewValidation("status", "order %d is %s and can no longer be edited", orderID, order.Status)
		}

		original := map[int64]int64{}
		for _, l := range mergeLines(orderLines(*order)) {
			original[l.DishID] = l.Quantity
		}
		var increments []Line
		for _, l := range lines {
			if inc := l.Quantity - original[l.DishID]; inc > 0 {
				increments = append(increments, Line{DishID: l.DishID, Quantity: inc})
			}
		}

		others, err := tx.ListOpenOrders(order.ID)
		if err != nil {
			return err
		}
		calc, err := LoadCalculator(tx, openOrderGroups(others, lines)...)
		if err != nil {
			return err
		}
		if err := requireDishes(calc, lines); err != nil {
			return err
		}

		if len(increments) > 0 {
			demand, err := reserved(calc, others)
			if err != nil {
				return err
			}
			if err := calc.Accumulate(demand, increments); err != nil {
				return err
			}
			if _, err := CheckAvailability(tx, demand); err != nil {
				return err
			}
			if order.Status == models.OrderDelivered {
				trail, err := g.executor.apply(ctx, tx, models.ReferenceOrder, order.ID, increments)
				if err != nil {
					return err
				}
				result.Trail = trail
			}
		}

		if err := tx.ReplaceOrderLines(order.ID, toOrderLines(lines)); err != nil {
			return fmt.Errorf("replace order lines: %w", err)
		}
		result.Order, err = tx.GetOrder(order.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Trail != nil {
		g.executor.invalidate(ctx)
	}
	g.log.Info("order updated",
		zap.Int64("order_id", orderID),
		zap.Bool("dispatched_increment", result.Trail != nil),
	)
	events.Emit(ctx, g.publisher, g.log, events.New(events.OrderUpdated, utils.EmployeeRef(ctx), result))
	return &result, nil
}

// CancelOrder releases an order's reservation. No stock check is needed.
func (g *Guard) CancelOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var cancelled *models.Order
	err := repository.Transact(ctx, g.store, func(tx repository.Tx) error {
		if err := g.gate.EnsureOpen(ctx, tx); err != nil {
			return err
		}
		if err := tx.LockReservations(); err != nil {
			return err
		}
		order, err := tx.GetOrder(orderID, true)
		if err != nil {
			return fmt.Errorf("order %d: %w", orderID, err)
		}
		switch order.Status {
		case models.OrderOpen, models.OrderDelivered:
		default:
			return apperror.NewValidation("status", "order %d is %s and cannot be cancelled", orderID, order.Status)
		}
		now := g.now()
		if err := tx.UpdateOrderStatus(order.ID, models.OrderCancelled, &now); err != nil {
			return err
		}
		cancelled, err = tx.GetOrder(order.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	g.log.Info("order cancelled", zap.Int64("order_id", orderID))
	events.Emit(ctx, g.publisher, g.log, events.New(events.OrderCancelled, utils.EmployeeRef(ctx), cancelled))
	return cancelled, nil
}

// DeleteOrder removes an OPEN or CANCELLED order with its lines.
func (g *Guard) DeleteOrder(ctx context.Context, orderID int64) error {
	err := repository.Transact(ctx, g.store, func(tx repository.Tx) error {
		if err := g.gate.EnsureOpen(ctx, tx); err != nil {
			return err
		}
		if err := tx.LockReservations(); err != nil {
			return err
		}
		order, err := tx.GetOrder(orderID, true)
		if err != nil {
			return fmt.Errorf("order %d: %w", orderID, err)
		}
		switch order.Status {
		case models.OrderOpen, models.OrderCancelled:
		default:
			return apperror.NewValidation("status", "order %d is %s and cannot be deleted", orderID, order.Status)
		}
		return tx.DeleteOrder(order.ID)
	})
	if err != nil {
		return err
	}

	g.log.Info("order deleted", zap.Int64("order_id", orderID))
	events.Emit(ctx, g.publisher, g.log, events.New(events.OrderDeleted, utils.EmployeeRef(ctx), map[string]int64{"order_id": orderID}))
	return nil
}
