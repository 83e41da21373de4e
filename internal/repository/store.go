package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"pizzeria-system/internal/apperror"
	"pizzeria-system/internal/database/models"
)

// Store runs units of work. Everything done through the Tx handed to fn
// commits together or not at all.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the persistence surface available inside a unit of work. Lock* methods
// take row locks held until the unit of work ends; multi-row locks are always
// acquired in ascending id order.
type Tx interface {
	// LockReservations serializes every order mutation that reads the set of
	// open orders as reservations.
	LockReservations() error
	// LockRegister serializes register cycle transitions.
	LockRegister() error

	LockIngredients(ids []int64) (map[int64]models.Ingredient, error)
	ListIngredients() ([]models.Ingredient, error)
	AdjustIngredient(id int64, delta decimal.Decimal) error

	GetDishes(ids []int64) (map[int64]models.Dish, error)
	LockDishes(ids []int64) (map[int64]models.Dish, error)
	ListDishes() ([]models.Dish, error)
	AdjustDishStock(id int64, delta int64) error
	ActiveRecipes(dishIDs []int64) (map[int64]models.Recipe, error)

	GetOrder(id int64, forUpdate bool) (*models.Order, error)
	ListOpenOrders(excludeID int64) ([]models.Order, error)
	CreateOrder(order *models.Order) error
	ReplaceOrderLines(orderID int64, lines []models.OrderLine) error
	UpdateOrderStatus(id int64, status models.OrderStatus, closedAt *time.Time) error
	DeleteOrder(id int64) error

	AddStockMovements(movements []models.StockMovement) error

	CashMovementsBetween(from, to time.Time) ([]models.CashMovement, error)
	AddCashMovement(m *models.CashMovement) error
	PaymentMethods() ([]models.PaymentMethod, error)

	CreateSale(sale *models.Sale) error
	GetSale(id int64) (*models.Sale, error)

	CreatePurchase(p *models.Purchase) error
	GetPurchase(id int64, forUpdate bool) (*models.Purchase, error)
	ListInProcessPurchaseLines(excludeID int64) ([]models.PurchaseLine, error)
	UpdatePurchaseStatus(id int64, status models.PurchaseStatus, receivedAt *time.Time) error

	GetEmployee(id int64) (*models.Employee, error)
}

// Transact runs fn in a unit of work and retries it once when the store
// reports a concurrency conflict.
func Transact(ctx context.Context, s Store, fn func(tx Tx) error) error {
	err := s.WithinTx(ctx, fn)
	if errors.Is(err, apperror.ErrConcurrency) {
		err = s.WithinTx(ctx, fn)
	}
	return err
}

// PaymentMethodByCode finds an active payment method in the catalog.
func PaymentMethodByCode(tx Tx, code string) (*models.PaymentMethod, error) {
	methods, err := tx.PaymentMethods()
	if err != nil {
		return nil, err
	}
	for _, m := range methods {
		if m.Code == code && m.IsActive {
			m := m
			return &m, nil
		}
	}
	return nil, apperror.ErrNotFound
}

// PaymentMethodByID finds an active payment method in the catalog.
func PaymentMethodByID(tx Tx, id int64) (*models.PaymentMethod, error) {
	methods, err := tx.PaymentMethods()
	if err != nil {
		return nil, err
	}
	for _, m := range methods {
		if m.ID == id && m.IsActive {
			m := m
			return &m, nil
		}
	}
	return nil, apperror.ErrNotFound
}
