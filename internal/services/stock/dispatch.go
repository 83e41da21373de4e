package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pizzeria-system/internal/apperror"
	"pizzeria-system/internal/database/models"
	"pizzeria-system/internal/events"
	"pizzeria-system/internal/repository"
	"pizzeria-system/internal/utils"
)

// RegisterGate fails when money-moving or order-mutating work is not allowed.
type RegisterGate interface {
	EnsureOpen(ctx context.Context, tx repository.Tx) error
}

// DishCacheInvalidator drops cached dish read models after prepared stock changes.
type DishCacheInvalidator interface {
	InvalidateDishes(ctx context.Context)
}

// MovementTrail is the list of counter changes written by one dispatch or
// production run.
type MovementTrail struct {
	ReferenceType models.ReferenceType   `json:"reference_type"`
	ReferenceID   int64                  `json:"reference_id"`
	Movements     []models.StockMovement `json:"movements"`
}

type Executor struct {
	store       repository.Store
	gate        RegisterGate
	publisher   events.Publisher
	invalidator DishCacheInvalidator
	log         *zap.Logger
	now         func() time.Time
}

func NewExecutor(store repository.Store, gate RegisterGate, publisher events.Publisher, log *zap.Logger) *Executor {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Executor{
		store:     store,
		gate:      gate,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// WithDishCache registers the read cache to invalidate after stock changes.
func (e *Executor) WithDishCache(inv DishCacheInvalidator) *Executor {
	e.invalidator = inv
	return e
}

func (e *Executor) invalidate(ctx context.Context) {
	if e.invalidator != nil {
		e.invalidator.InvalidateDishes(ctx)
	}
}

// DispatchOrder serves an OPEN order from prepared stock, producing any
// shortfall from ingredients, and marks it DELIVERED.
func (e *Executor) DispatchOrder(ctx context.Context, orderID int64) (*MovementTrail, error) {
	var trail *MovementTrail
	err := repository.Transact(ctx, e.store, func(tx repository.Tx) error {
		if err := e.gate.EnsureOpen(ctx, tx); err != nil {
			return err
		}
		if err := tx.LockReservations(); err != nil {
			return err
		}
		order, err := tx.GetOrder(orderID, true)
		if err != nil {
			return fmt.Errorf("order %d: %w", orderID, err)
		}
		if order.Status != models.OrderOpen {
			return apperror.NewValidation("status", "order %d is %s; only OPEN orders can be dispatched", orderID, order.Status)
		}
		if len(order.Lines) == 0 {
			return apperror.NewValidation("lines", "order %d has no items to dispatch", orderID)
		}

		trail, err = e.apply(ctx, tx, models.ReferenceOrder, order.ID, orderLines(*order))
		if err != nil {
			return err
		}
		return tx.UpdateOrderStatus(order.ID, models.OrderDelivered, nil)
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(ctx)
	e.log.Info("order dispatched",
		zap.Int64("order_id", orderID),
		zap.Int("movements", len(trail.Movements)),
	)
	events.Emit(ctx, e.publisher, e.log, events.New(events.OrderDispatched, utils.EmployeeRef(ctx), trail))
	return trail, nil
}

type linePlan struct {
	dish      models.Dish
	fromStock int64
	shortfall int64
	recipe    models.Recipe
}

// apply writes the dispatch of lines inside tx. Every check runs before the
// first write, so a rejection leaves no partial change behind even without
// the surrounding rollback.
func (e *Executor) apply(ctx context.Context, tx repository.Tx, refType models.ReferenceType, refID int64, lines []Line) (*MovementTrail, error) {
	lines = mergeLines(lines)
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.DishID)
	}

	dishes, err := tx.LockDishes(ids)
	if err != nil {
		return nil, err
	}
	recipes, err := tx.ActiveRecipes(ids)
	if err != nil {
		return nil, err
	}

	plans := make([]linePlan, 0, len(lines))
	demand := Demand{}
	for _, l := range lines {
		dish, ok := dishes[l.DishID]
		if !ok {
			return nil, apperror.NewValidation("lines", "dish %d does not exist", l.DishID)
		}
		p := linePlan{dish: dish}
		p.fromStock, p.shortfall = Shortfall(dish.PreparedStock, l.Quantity)
		if p.shortfall > 0 {
			recipe, ok := recipes[dish.ID]
			if !ok {
				return nil, apperror.MissingRecipe(dish.ID, dish.Name, decimal.NewFromInt(p.shortfall))
			}
			if len(recipe.Lines) == 0 {
				return nil, apperror.EmptyRecipe(dish.ID, dish.Name)
			}
			p.recipe = recipe
			units := decimal.NewFromInt(p.shortfall)
			for _, rl := range recipe.Lines {
				if rl.QtyPerUnit.IsPositive() {
					demand.add(rl.IngredientID, rl.QtyPerUnit.Mul(units))
				}
			}
		}
		plans = append(plans, p)
	}

	if _, err := CheckAvailability(tx, demand); err != nil {
		return nil, err
	}

	rec := newRecorder(refType, refID, utils.EmployeeRef(ctx), e.now())
	for _, p := range plans {
		if p.fromStock > 0 {
			if err := tx.AdjustDishStock(p.dish.ID, -p.fromStock); err != nil {
				return nil, fmt.Errorf("debit dish %d: %w", p.dish.ID, err)
			}
			rec.dish(models.MovementDispatch, p.dish.ID, -p.fromStock)
		}
		if p.shortfall == 0 {
			continue
		}
		if err := consume(tx, rec, p.recipe, p.shortfall); err != nil {
			return nil, err
		}
		if err := tx.AdjustDishStock(p.dish.ID, p.shortfall); err != nil {
			return nil, fmt.Errorf("credit dish %d: %w", p.dish.ID, err)
		}
		rec.dish(models.MovementProduction, p.dish.ID, p.shortfall)
		if err := tx.AdjustDishStock(p.dish.ID, -p.shortfall); err != nil {
			return nil, fmt.Errorf("debit dish %d: %w", p.dish.ID, err)
		}
		rec.dish(models.MovementDispatch, p.dish.ID, -p.shortfall)
	}

	if err := tx.AddStockMovements(rec.movements); err != nil {
		return nil, fmt.Errorf("write stock trail: %w", err)
	}
	return rec.trail(), nil
}

// ProduceDish cooks qty units of a dish ahead of demand and adds them to its
// prepared stock. It moves no money, so the register may be closed.
func (e *Executor) ProduceDish(ctx context.Context, dishID, qty int64) (*MovementTrail, error) {
	if qty <= 0 {
		return nil, apperror.NewValidation("quantity", "quantity must be greater than 0")
	}

	var trail *MovementTrail
	err := repository.Transact(ctx, e.store, func(tx repository.Tx) error {
		dishes, err := tx.LockDishes([]int64{dishID})
		if err != nil {
			return err
		}
		dish, ok := dishes[dishID]
		if !ok {
			return fmt.Errorf("dish %d: %w", dishID, apperror.ErrNotFound)
		}
		recipes, err := tx.ActiveRecipes([]int64{dishID})
		if err != nil {
			return err
		}
		recipe, ok := recipes[dishID]
		if !ok {
			return apperror.MissingRecipe(dish.ID, dish.Name, decimal.NewFromInt(qty))
		}
		if len(recipe.Lines) == 0 {
			return apperror.EmptyRecipe(dish.ID, dish.Name)
		}

		demand := Demand{}
		units := decimal.NewFromInt(qty)
		for _, rl := range recipe.Lines {
			if rl.QtyPerUnit.IsPositive() {
				demand.add(rl.IngredientID, rl.QtyPerUnit.Mul(units))
			}
		}
		if _, err := CheckAvailability(tx, demand); err != nil {
			return err
		}

		rec := newRecorder(models.ReferenceProduction, dishID, utils.EmployeeRef(ctx), e.now())
		if err := consume(tx, rec, recipe, qty); err != nil {
			return err
		}
		if err := tx.AdjustDishStock(dishID, qty); err != nil {
			return fmt.Errorf("credit dish %d: %w", dishID, err)
		}
		rec.dish(models.MovementProduction, dishID, qty)
		if err := tx.AddStockMovements(rec.movements); err != nil {
			return fmt.Errorf("write stock trail: %w", err)
		}
		trail = rec.trail()
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(ctx)
	e.log.Info("dish produced", zap.Int64("dish_id", dishID), zap.Int64("quantity", qty))
	events.Emit(ctx, e.publisher, e.log, events.New(events.DishProduced, utils.EmployeeRef(ctx), trail))
	return trail, nil
}

func consume(tx repository.Tx, rec *recorder, recipe models.Recipe, units int64) error {
	n := decimal.NewFromInt(units)
	for _, rl := range recipe.Lines {
		qty := rl.QtyPerUnit.Mul(n)
		if !qty.IsPositive() {
			continue
		}
		if err := tx.AdjustIngredient(rl.IngredientID, qty.Neg()); err != nil {
			return fmt.Errorf("debit ingredient %d: %w", rl.IngredientID, err)
		}
		rec.ingredient(models.MovementConsumption, rl.IngredientID, qty.Neg())
	}
	return nil
}

type recorder struct {
	refType   models.ReferenceType
	refID     int64
	createdBy int64
	at        time.Time
	movements []models.StockMovement
}

func newRecorder(refType models.ReferenceType, refID int64, employee *int64, at time.Time) *recorder {
	r := &recorder{refType: refType, refID: refID, at: at}
	if employee != nil {
		r.createdBy = *employee
	}
	return r
}

func (r *recorder) dish(kind models.MovementKind, dishID, delta int64) {
	id := dishID
	r.movements = append(r.movements, models.StockMovement{
		Kind:          kind,
		DishID:        &id,
		Delta:         decimal.NewFromInt(delta),
		ReferenceType: r.refType,
		ReferenceID:   r.refID,
		CreatedBy:     r.createdBy,
		CreatedAt:     r.at,
	})
}

func (r *recorder) ingredient(kind models.MovementKind, ingredientID int64, delta decimal.Decimal) {
	id := ingredientID
	r.movements = append(r.movements, models.StockMovement{
		Kind:          kind,
		IngredientID:  &id,
		Delta:         delta,
		ReferenceType: r.refType,
		ReferenceID:   r.refID,
		CreatedBy:     r.createdBy,
		CreatedAt:     r.at,
	})
}

func (r *recorder) trail() *MovementTrail {
	return &MovementTrail{ReferenceType: r.refType, ReferenceID: r.refID, Movements: r.movements}
}
