package cash

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
	"pizzeria-system/internal/utils"
)

type Config struct {
	// Location defines the calendar day a register cycle belongs to.
	Location       *time.Location
	CashMethodCode string
}

// Controller owns the daily register state machine. The state is never
// stored: it is derived from the append-only cash movements of the day.
type Controller struct {
	store     repository.Store
	publisher events.Publisher
	log       *zap.Logger
	loc       *time.Location
	cashCode  string
	now       func() time.Time
}

func NewController(store repository.Store, publisher events.Publisher, log *zap.Logger, cfg Config) *Controller {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.CashMethodCode == "" {
		cfg.CashMethodCode = models.PaymentCash
	}
	return &Controller{
		store:     store,
		publisher: publisher,
		log:       log,
		loc:       cfg.Location,
		cashCode:  cfg.CashMethodCode,
		now:       time.Now,
	}
}

type MovementInput struct {
	Type            models.CashMovementType `json:"type"`
	Amount          decimal.Decimal         `json:"amount"`
	PaymentMethodID *int64                  `json:"payment_method_id"`
	SaleID          *int64                  `json:"sale_id"`
	PurchaseID      *int64                  `json:"purchase_id"`
	Description     string                  `json:"description"`
}

func (c *Controller) today() (from, to time.Time) {
	now := c.now().In(c.loc)
	from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
	return from, from.AddDate(0, 0, 1)
}

func (c *Controller) dayMovements(tx repository.Tx) ([]models.CashMovement, error) {
	from, to := c.today()
	return tx.CashMovementsBetween(from, to)
}

// currentCycle returns today's latest cycle. ok is false when nothing was
// recorded today.
func currentCycle(day []models.CashMovement) (cycle, bool, error) {
	if len(day) == 0 {
		return cycle{}, false, nil
	}
	start := -1
	for i := len(day) - 1; i >= 0; i-- {
		if day[i].Type == models.CashOpen {
			start = i
			break
		}
	}
	open := day[len(day)-1].Type != models.CashClose
	if start < 0 {
		if open {
			return cycle{}, false, &apperror.CycleError{Kind: apperror.CycleNoOpening}
		}
		return cycle{}, false, nil
	}
	return cycle{open: open, movements: day[start:]}, true, nil
}

func (c *Controller) isOpen(tx repository.Tx) (bool, error) {
	day, err := c.dayMovements(tx)
	if err != nil {
		return false, err
	}
	return len(day) > 0 && day[len(day)-1].Type != models.CashClose, nil
}

// EnsureOpen is the gate every money-moving or order-mutating operation calls
// inside its transaction. It takes the register lock, so a concurrent close
// waits for the caller to commit.
func (c *Controller) EnsureOpen(ctx context.Context, tx repository.Tx) error {
	if err := tx.LockRegister(); err != nil {
		return err
	}
	open, err := c.isOpen(tx)
	if err != nil {
		return err
	}
	if !open {
		return &apperror.CycleError{Kind: apperror.CycleRegisterClosed}
	}
	return nil
}

func (c *Controller) IsOpen(ctx context.Context) (bool, error) {
	var open bool
	err := c.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		open, err = c.isOpen(tx)
		return err
	})
	return open, err
}

// OpenRegister starts a cycle with the given opening float, tagged with the
// cash payment method.
func (c *Controller) OpenRegister(ctx context.Context, float decimal.Decimal, note string) (*models.CashMovement, error) {
	if float.IsNegative() {
		return nil, apperror.NewValidation("amount", "opening float cannot be negative")
	}

	var opened *models.CashMovement
	err := repository.Transact(ctx, c.store, func(tx repository.Tx) error {
		if err := tx.LockRegister(); err != nil {
			return err
		}
		open, err := c.isOpen(tx)
		if err != nil {
			return err
		}
		if open {
			return &apperror.CycleError{Kind: apperror.CycleAlreadyOpen}
		}
		cash, err := repository.PaymentMethodByCode(tx, c.cashCode)
		if err != nil {
			return fmt.Errorf("cash payment method %q: %w", c.cashCode, err)
		}
		m := &models.CashMovement{
			Type:            models.CashOpen,
			Amount:          float.Round(2),
			PaymentMethodID: &cash.ID,
			EmployeeID:      utils.EmployeeRef(ctx),
			Description:     note,
			OccurredAt:      c.now(),
		}
		if err := tx.AddCashMovement(m); err != nil {
			return err
		}
		opened = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("register opened", zap.String("float", opened.Amount.StringFixed(2)))
	events.Emit(ctx, c.publisher, c.log, events.New(events.RegisterOpened, opened.EmployeeID, opened))
	return opened, nil
}

// RecordCash adds a CASH_IN or CASH_OUT to the open cycle.
func (c *Controller) RecordCash(ctx context.Context, in MovementInput) (*models.CashMovement, error) {
	if in.Type != models.CashIn && in.Type != models.CashOut {
		return nil, apperror.NewValidation("type", "type must be %s or %s", models.CashIn, models.CashOut)
	}

	var recorded *models.CashMovement
	err := repository.Transact(ctx, c.store, func(tx repository.Tx) error {
		if err := c.EnsureOpen(ctx, tx); err != nil {
			return err
		}
		var err error
		recorded, err = c.Record(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.Announce(ctx, recorded)
	return recorded, nil
}

// Record validates and writes a movement inside tx. The caller must have
// passed EnsureOpen in the same transaction.
func (c *Controller) Record(ctx context.Context, tx repository.Tx, in MovementInput) (*models.CashMovement, error) {
	if !in.Amount.IsPositive() {
		return nil, apperror.NewValidation("amount", "amount must be greater than 0")
	}
	switch in.Type {
	case models.CashIn:
		if in.PaymentMethodID == nil {
			return nil, apperror.NewValidation("payment_method_id", "payment method is required for %s", models.CashIn)
		}
		if in.PurchaseID != nil {
			return nil, apperror.NewValidation("purchase_id", "only %s can reference a purchase", models.CashOut)
		}
	case models.CashOut:
		if in.SaleID != nil {
			return nil, apperror.NewValidation("sale_id", "only %s can reference a sale", models.CashIn)
		}
	default:
		return nil, apperror.NewValidation("type", "type must be %s or %s", models.CashIn, models.CashOut)
	}

	if err := checkReferences(tx, in); err != nil {
		return nil, err
	}

	var method *models.PaymentMethod
	var err error
	if in.PaymentMethodID != nil {
		method, err = repository.PaymentMethodByID(tx, *in.PaymentMethodID)
	} else {
		method, err = repository.PaymentMethodByCode(tx, c.cashCode)
	}
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NewValidation("payment_method_id", "unknown or inactive payment method")
	}
	if err != nil {
		return nil, err
	}

	m := &models.CashMovement{
		Type:            in.Type,
		Amount:          in.Amount.Round(2),
		PaymentMethodID: &method.ID,
		EmployeeID:      utils.EmployeeRef(ctx),
		SaleID:          in.SaleID,
		PurchaseID:      in.PurchaseID,
		Description:     in.Description,
		OccurredAt:      c.now(),
	}
	if err := tx.AddCashMovement(m); err != nil {
		return nil, err
	}
	m.PaymentMethod = method
	return m, nil
}

func checkReferences(tx repository.Tx, in MovementInput) error {
	if in.SaleID != nil {
		_, err := tx.GetSale(*in.SaleID)
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NewValidation("sale_id", "sale %d does not exist", *in.SaleID)
		}
		if err != nil {
			return err
		}
	}
	if in.PurchaseID != nil {
		_, err := tx.GetPurchase(*in.PurchaseID, false)
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NewValidation("purchase_id", "purchase %d does not exist", *in.PurchaseID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Announce logs and publishes a committed movement.
func (c *Controller) Announce(ctx context.Context, m *models.CashMovement) {
	c.log.Info("register movement",
		zap.String("type", string(m.Type)),
		zap.String("amount", m.Amount.StringFixed(2)),
	)
	events.Emit(ctx, c.publisher, c.log, events.New(events.RegisterMovement, m.EmployeeID, m))
}

// CloseRegister ends the open cycle. The closing amount is the expected
// balance, clamped at zero.
func (c *Controller) CloseRegister(ctx context.Context, note string) (*ReconciliationReport, error) {
	var report *ReconciliationReport
	err := repository.Transact(ctx, c.store, func(tx repository.Tx) error {
		if err := tx.LockRegister(); err != nil {
			return err
		}
		day, err := c.dayMovements(tx)
		if err != nil {
			return err
		}
		cyc, ok, err := currentCycle(day)
		if err != nil {
			return err
		}
		if !ok || !cyc.open {
			return &apperror.CycleError{Kind: apperror.CycleAlreadyClosed}
		}
		methods, err := tx.PaymentMethods()
		if err != nil {
			return err
		}

		report = reconcile(cyc, methods, c.cashCode)
		closing := report.Expected
		if closing.IsNegative() {
			closing = decimal.Zero
			report.Anomaly = true
		}
		m := &models.CashMovement{
			Type:        models.CashClose,
			Amount:      closing,
			EmployeeID:  utils.EmployeeRef(ctx),
			Description: note,
			OccurredAt:  c.now(),
		}
		if err := tx.AddCashMovement(m); err != nil {
			return err
		}
		report.Open = false
		report.Closing = &closing
		report.ClosedAt = &m.OccurredAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.Anomaly {
		c.log.Warn("register closed below zero, closing amount clamped",
			zap.String("expected", report.Expected.StringFixed(2)),
		)
	}
	c.log.Info("register closed",
		zap.String("expected", report.Expected.StringFixed(2)),
		zap.String("closing", report.Closing.StringFixed(2)),
	)
	events.Emit(ctx, c.publisher, c.log, events.New(events.RegisterClosed, utils.EmployeeRef(ctx), report))
	return report, nil
}

// Reconciliation reports on today's current cycle, or the last one closed
// today.
func (c *Controller) Reconciliation(ctx context.Context) (*ReconciliationReport, error) {
	var report *ReconciliationReport
	err := c.store.WithinTx(ctx, func(tx repository.Tx) error {
		day, err := c.dayMovements(tx)
		if err != nil {
			return err
		}
		cyc, ok, err := currentCycle(day)
		if err != nil {
			return err
		}
		if !ok {
			return &apperror.CycleError{Kind: apperror.CycleNoOpening}
		}
		methods, err := tx.PaymentMethods()
		if err != nil {
			return err
		}
		report = reconcile(cyc, methods, c.cashCode)
		return nil
	})
	return report, err
}

// Status summarizes the register for the day.
func (c *Controller) Status(ctx context.Context) (*RegisterStatus, error) {
	var status RegisterStatus
	err := c.store.WithinTx(ctx, func(tx repository.Tx) error {
		day, err := c.dayMovements(tx)
		if err != nil {
			return err
		}
		methods, err := tx.PaymentMethods()
		if err != nil {
			return err
		}

		b := newBucketer(methods)
		for _, m := range day {
			b.add(m)
		}
		in, out := b.sum()
		status.TodayBalance = in.Sub(out)

		cyc, ok, err := currentCycle(day)
		if err != nil {
			return err
		}
		if !ok {
			status.Methods = b.totals(c.cashCode, decimal.Zero)
			return nil
		}

		// per-method figures follow the current cycle, like CashAvailable
		opening := cyc.opening()
		status.Open = cyc.open
		status.OpeningFloat = opening.Amount
		status.OpenedAt = &opening.OccurredAt
		status.OpenedBy = opening.EmployeeID

		report := reconcile(cyc, methods, c.cashCode)
		status.Methods = report.Methods
		status.CashAvailable = opening.Amount
		for _, t := range report.Methods {
			if t.Code == c.cashCode {
				status.CashAvailable = t.Display
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}
