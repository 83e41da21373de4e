package purchasing

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
	"pizzeria-system/internal/services/cash"
	"pizzeria-system/internal/utils"
)

type Register interface {
	EnsureOpen(ctx context.Context, tx repository.Tx) error
	Record(ctx context.Context, tx repository.Tx, in cash.MovementInput) (*models.CashMovement, error)
	Announce(ctx context.Context, m *models.CashMovement)
}

// Service handles supplier purchases: ordering packages of ingredients within
// their storage limits, and receiving them into stock.
type Service struct {
	store     repository.Store
	register  Register
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewService(store repository.Store, register Register, publisher events.Publisher, log *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		store:     store,
		register:  register,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

type LineInput struct {
	IngredientID int64           `json:"ingredient_id"`
	Packages     int64           `json:"packages"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
}

type CreateInput struct {
	SupplierID *int64      `json:"supplier_id"`
	Lines      []LineInput `json:"lines"`
}

type ReceiveInput struct {
	PaidFromRegister bool   `json:"paid_from_register"`
	PaymentMethodID  *int64 `json:"payment_method_id"`
}

type Receipt struct {
	Purchase  *models.Purchase       `json:"purchase"`
	Movement  *models.CashMovement   `json:"cash_movement,omitempty"`
	Movements []models.StockMovement `json:"stock_movements"`
}

func validate(in CreateInput) error {
	if len(in.Lines) == 0 {
		return apperror.NewValidation("lines", "purchase contains no items")
	}
	seen := map[int64]bool{}
	for i, l := range in.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		switch {
		case l.IngredientID <= 0:
			return apperror.NewValidation(field+".ingredient_id", "ingredient is required")
		case seen[l.IngredientID]:
			return apperror.NewValidation(field+".ingredient_id", "ingredient %d appears more than once", l.IngredientID)
		case l.Packages <= 0:
			return apperror.NewValidation(field+".packages", "packages must be greater than 0")
		case l.UnitCost.IsNegative():
			return apperror.NewValidation(field+".unit_cost", "unit cost cannot be negative")
		}
		seen[l.IngredientID] = true
	}
	return nil
}

// CreatePurchase records an IN_PROCESS purchase. For ingredients with a
// maximum stock, what is on hand plus everything already on order plus this
// purchase must fit under it.
func (s *Service) CreatePurchase(ctx context.Context, in CreateInput) (*models.Purchase, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	var created *models.Purchase
	err := repository.Transact(ctx, s.store, func(tx repository.Tx) error {
		ids := make([]int64, 0, len(in.Lines))
		for _, l := range in.Lines {
			ids = append(ids, l.IngredientID)
		}
		ingredients, err := tx.LockIngredients(ids)
		if err != nil {
			return err
		}
		pending, err := tx.ListInProcessPurchaseLines(0)
		if err != nil {
			return err
		}
		onOrder := map[int64]int64{}
		for _, pl := range pending {
			onOrder[pl.IngredientID] += pl.Packages
		}

		p := &models.Purchase{
			SupplierID: in.SupplierID,
			Status:     models.PurchaseInProcess,
			EmployeeID: utils.EmployeeRef(ctx),
			CreatedAt:  s.now(),
		}
		for i, l := range in.Lines {
			ing, ok := ingredients[l.IngredientID]
			if !ok {
				return apperror.NewValidation(fmt.Sprintf("lines[%d].ingredient_id", i), "ingredient %d does not exist", l.IngredientID)
			}
			if err := checkCapacity(ing, onOrder[ing.ID], l.Packages); err != nil {
				return err
			}
			p.Lines = append(p.Lines, models.PurchaseLine{
				IngredientID: l.IngredientID,
				Packages:     l.Packages,
				UnitCost:     l.UnitCost.Round(2),
			})
		}
		if err := tx.CreatePurchase(p); err != nil {
			return fmt.Errorf("insert purchase: %w", err)
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("purchase created", zap.Int64("purchase_id", created.ID), zap.Int("lines", len(created.Lines)))
	events.Emit(ctx, s.publisher, s.log, events.New(events.PurchaseCreated, created.EmployeeID, created))
	return created, nil
}

func checkCapacity(ing models.Ingredient, pendingPackages, packages int64) error {
	if !ing.PackCapacity.IsPositive() {
		return apperror.NewValidation("packages", "ingredient %q has no package capacity configured", ing.Name)
	}
	if ing.MaxStock == nil || !ing.MaxStock.IsPositive() {
		return nil
	}
	incoming := ing.PackCapacity.Mul(decimal.NewFromInt(pendingPackages))
	ordered := ing.PackCapacity.Mul(decimal.NewFromInt(packages))
	projected := ing.OnHand.Add(incoming).Add(ordered)
	if projected.GreaterThan(*ing.MaxStock) {
		return apperror.NewValidation("packages",
			"%s would reach %s %s (on hand %s, on order %s, this purchase %s) over the maximum of %s",
			ing.Name, projected, ing.Unit, ing.OnHand, incoming, ordered, ing.MaxStock)
	}
	return nil
}

// ReceivePurchase credits the ordered packages to stock. When the supplier is
// paid from the register the cost is booked as a CASH_OUT in the same
// transaction.
func (s *Service) ReceivePurchase(ctx context.Context, purchaseID int64, in ReceiveInput) (*Receipt, error) {
	var receipt Receipt
	err := repository.Transact(ctx, s.store, func(tx repository.Tx) error {
		receipt = Receipt{}
		if in.PaidFromRegister {
			if err := s.register.EnsureOpen(ctx, tx); err != nil {
				return err
			}
		}
		p, err := tx.GetPurchase(purchaseID, true)
		if err != nil {
			return fmt.Errorf("purchase %d: %w", purchaseID, err)
		}
		if p.Status != models.PurchaseInProcess {
			return apperror.NewValidation("status", "purchase %d is %s and cannot be received", p.ID, p.Status)
		}

		ids := make([]int64, 0, len(p.Lines))
		for _, l := range p.Lines {
			ids = append(ids, l.IngredientID)
		}
		ingredients, err := tx.LockIngredients(ids)
		if err != nil {
			return err
		}

		now := s.now()
		createdBy := int64(0)
		if e := utils.EmployeeRef(ctx); e != nil {
			createdBy = *e
		}
		total := decimal.Zero
		for _, l := range p.Lines {
			ing, ok := ingredients[l.IngredientID]
			if !ok {
				return fmt.Errorf("ingredient %d: %w", l.IngredientID, apperror.ErrNotFound)
			}
			if !ing.PackCapacity.IsPositive() {
				return apperror.NewValidation("packages", "ingredient %q has no package capacity configured", ing.Name)
			}
			qty := ing.PackCapacity.Mul(decimal.NewFromInt(l.Packages))
			if err := tx.AdjustIngredient(ing.ID, qty); err != nil {
				return fmt.Errorf("credit ingredient %d: %w", ing.ID, err)
			}
			id := ing.ID
			receipt.Movements = append(receipt.Movements, models.StockMovement{
				Kind:          models.MovementPurchase,
				IngredientID:  &id,
				Delta:         qty,
				ReferenceType: models.ReferencePurchase,
				ReferenceID:   p.ID,
				CreatedBy:     createdBy,
				CreatedAt:     now,
			})
			total = total.Add(l.UnitCost.Mul(decimal.NewFromInt(l.Packages)).Round(2))
		}
		if err := tx.AddStockMovements(receipt.Movements); err != nil {
			return fmt.Errorf("write stock trail: %w", err)
		}
		if err := tx.UpdatePurchaseStatus(p.ID, models.PurchaseReceived, &now); err != nil {
			return err
		}

		if in.PaidFromRegister && total.IsPositive() {
			pid := p.ID
			receipt.Movement, err = s.register.Record(ctx, tx, cash.MovementInput{
				Type:            models.CashOut,
				Amount:          total,
				PaymentMethodID: in.PaymentMethodID,
				PurchaseID:      &pid,
				Description:     fmt.Sprintf("Purchase #%d", p.ID),
			})
			if err != nil {
				return err
			}
		}
		receipt.Purchase, err = tx.GetPurchase(p.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	if receipt.Movement != nil {
		s.register.Announce(ctx, receipt.Movement)
	}
	s.log.Info("purchase received",
		zap.Int64("purchase_id", purchaseID),
		zap.Bool("paid_from_register", receipt.Movement != nil),
	)
	events.Emit(ctx, s.publisher, s.log, events.New(events.PurchaseReceived, utils.EmployeeRef(ctx), receipt))
	return &receipt, nil
}

func (s *Service) CancelPurchase(ctx context.Context, purchaseID int64) (*models.Purchase, error) {
	var cancelled *models.Purchase
	err := repository.Transact(ctx, s.store, func(tx repository.Tx) error {
		p, err := tx.GetPurchase(purchaseID, true)
		if err != nil {
			return fmt.Errorf("purchase %d: %w", purchaseID, err)
		}
		if p.Status != models.PurchaseInProcess {
			return apperror.NewValidation("status", "purchase %d is %s and cannot be cancelled", p.ID, p.Status)
		}
		if err := tx.UpdatePurchaseStatus(p.ID, models.PurchaseCancelled, nil); err != nil {
			return err
		}
		cancelled, err = tx.GetPurchase(p.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("purchase cancelled", zap.Int64("purchase_id", purchaseID))
	return cancelled, nil
}
