package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"pizzeria-system/internal/apperror"
	"pizzeria-system/internal/database/models"
)

func TestWithinTx_RollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	dough := store.AddIngredient(models.Ingredient{Name: "dough", Unit: "g", OnHand: decimal.NewFromInt(500)})

	boom := errors.New("boom")
	err := store.WithinTx(context.Background(), func(tx Tx) error {
		if err := tx.AdjustIngredient(dough.ID, decimal.NewFromInt(-200)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if got := store.Ingredient(dough.ID).OnHand; !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected rollback to 500, got %s", got)
	}
}

func TestAdjustIngredient_RejectsNegative(t *testing.T) {
	store := NewMemoryStore()
	salt := store.AddIngredient(models.Ingredient{Name: "salt", Unit: "g", OnHand: decimal.NewFromInt(5)})

	err := store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.AdjustIngredient(salt.ID, decimal.NewFromInt(-6))
	})
	if err == nil {
		t.Fatal("expected check constraint error")
	}
	if got := store.Ingredient(salt.ID).OnHand; !got.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected 5, got %s", got)
	}
}

func TestTransact_RetriesConcurrencyOnce(t *testing.T) {
	store := NewMemoryStore()
	conflict := &apperror.ConcurrencyError{Op: "test", Err: errors.New("deadlock")}
	store.InjectTxErrors(conflict)

	calls := 0
	err := Transact(context.Background(), store, func(tx Tx) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected fn to run once after the injected failure, got %d", calls)
	}
}

func TestTransact_SurfacesSecondConflict(t *testing.T) {
	store := NewMemoryStore()
	conflict := &apperror.ConcurrencyError{Op: "test", Err: errors.New("deadlock")}
	store.InjectTxErrors(conflict, conflict)

	err := Transact(context.Background(), store, func(tx Tx) error { return nil })
	if !errors.Is(err, apperror.ErrConcurrency) {
		t.Fatalf("expected concurrency error, got %v", err)
	}
}

func TestTransact_DoesNotRetryBusinessErrors(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	err := Transact(context.Background(), store, func(tx Tx) error {
		calls++
		return apperror.NewValidation("lines", "empty")
	})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestListOpenOrders_ExcludesAndFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var keep, skip int64
	err := store.WithinTx(ctx, func(tx Tx) error {
		a := &models.Order{Status: models.OrderOpen, Lines: []models.OrderLine{{DishID: 1, Quantity: 1}}}
		b := &models.Order{Status: models.OrderOpen, Lines: []models.OrderLine{{DishID: 1, Quantity: 2}}}
		c := &models.Order{Status: models.OrderDelivered, Lines: []models.OrderLine{{DishID: 1, Quantity: 3}}}
		for _, o := range []*models.Order{a, b, c} {
			if err := tx.CreateOrder(o); err != nil {
				return err
			}
		}
		keep, skip = a.ID, b.ID
		return nil
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	_ = store.WithinTx(ctx, func(tx Tx) error {
		orders, err := tx.ListOpenOrders(skip)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(orders) != 1 || orders[0].ID != keep {
			t.Errorf("expected only order %d, got %+v", keep, orders)
		}
		return nil
	})
}

func TestPaymentMethodByCode(t *testing.T) {
	store := NewMemoryStore()
	_ = store.WithinTx(context.Background(), func(tx Tx) error {
		pm, err := PaymentMethodByCode(tx, models.PaymentCard)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if pm.Code != models.PaymentCard {
			t.Errorf("expected CARD, got %s", pm.Code)
		}
		if _, err := PaymentMethodByCode(tx, "CRYPTO"); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
		return nil
	})
}
