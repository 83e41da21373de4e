package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pizzeria-system/internal/apperror"
	"pizzeria-system/internal/database/models"
)

const (
	reservationLockKey int64 = 0x706f730001
	registerLockKey    int64 = 0x706f730002
)

// SQLSTATE codes treated as retryable conflicts.
var conflictCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
	return classify(err)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && conflictCodes[pgErr.Code] {
		return &apperror.ConcurrencyError{Op: "transaction", Err: err}
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.ErrNotFound
	}
	return err
}

func sortedIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("position, id")
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LockReservations() error {
	return t.db.Exec("SELECT pg_advisory_xact_lock(?)", reservationLockKey).Error
}

func (t *gormTx) LockRegister() error {
	return t.db.Exec("SELECT pg_advisory_xact_lock(?)", registerLockKey).Error
}

func (t *gormTx) LockIngredients(ids []int64) (map[int64]models.Ingredient, error) {
	out := make(map[int64]models.Ingredient, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Ingredient
	if err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sortedIDs(ids)).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

func (t *gormTx) ListIngredients() ([]models.Ingredient, error) {
	var rows []models.Ingredient
	err := t.db.Where("is_active = ?", true).Order("name").Find(&rows).Error
	return rows, err
}

func (t *gormTx) AdjustIngredient(id int64, delta decimal.Decimal) error {
	res := t.db.Model(&models.Ingredient{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"on_hand":    gorm.Expr("on_hand + ?", delta),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func (t *gormTx) GetDishes(ids []int64) (map[int64]models.Dish, error) {
	return t.findDishes(t.db, ids)
}

func (t *gormTx) LockDishes(ids []int64) (map[int64]models.Dish, error) {
	return t.findDishes(t.db.Clauses(clause.Locking{Strength: "UPDATE"}), ids)
}

func (t *gormTx) findDishes(db *gorm.DB, ids []int64) (map[int64]models.Dish, error) {
	out := make(map[int64]models.Dish, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Dish
	if err := db.Where("id IN ?", sortedIDs(ids)).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

func (t *gormTx) ListDishes() ([]models.Dish, error) {
	var rows []models.Dish
	err := t.db.Where("is_active = ?", true).Order("name").Find(&rows).Error
	return rows, err
}

func (t *gormTx) AdjustDishStock(id int64, delta int64) error {
	res := t.db.Model(&models.Dish{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"prepared_stock": gorm.Expr("prepared_stock + ?", delta),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func (t *gormTx) ActiveRecipes(dishIDs []int64) (map[int64]models.Recipe, error) {
	out := make(map[int64]models.Recipe, len(dishIDs))
	if len(dishIDs) == 0 {
		return out, nil
	}
	var rows []models.Recipe
	if err := t.db.Preload("Lines", orderedLines).
		Preload("Lines.Ingredient").
		Where("dish_id IN ? AND is_active = ?", sortedIDs(dishIDs), true).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		if _, ok := out[r.DishID]; !ok {
			out[r.DishID] = r
		}
	}
	return out, nil
}

func (t *gormTx) GetOrder(id int64, forUpdate bool) (*models.Order, error) {
	db := t.db
	if forUpdate {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var order models.Order
	if err := db.Where("id = ?", id).First(&order).Error; err != nil {
		return nil, notFound(err)
	}
	if err := orderedLines(t.db).Where("order_id = ?", id).Find(&order.Lines).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (t *gormTx) ListOpenOrders(excludeID int64) ([]models.Order, error) {
	var orders []models.Order
	err := t.db.Preload("Lines", orderedLines).
		Where("status = ? AND id <> ?", models.OrderOpen, excludeID).
		Order("id").
		Find(&orders).Error
	return orders, err
}

func (t *gormTx) CreateOrder(order *models.Order) error {
	return t.db.Create(order).Error
}

func (t *gormTx) ReplaceOrderLines(orderID int64, lines []models.OrderLine) error {
	if err := t.db.Where("order_id = ?", orderID).Delete(&models.OrderLine{}).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		lines[i].ID = 0
		lines[i].OrderID = orderID
	}
	if err := t.db.Create(&lines).Error; err != nil {
		return err
	}
	return t.db.Model(&models.Order{}).Where("id = ?", orderID).Update("updated_at", time.Now()).Error
}

func (t *gormTx) UpdateOrderStatus(id int64, status models.OrderStatus, closedAt *time.Time) error {
	updates := map[string]interface{}{"status": status, "updated_at": time.Now()}
	if closedAt != nil {
		updates["closed_at"] = *closedAt
	}
	res := t.db.Model(&models.Order{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func (t *gormTx) DeleteOrder(id int64) error {
	if err := t.db.Where("order_id = ?", id).Delete(&models.OrderLine{}).Error; err != nil {
		return err
	}
	res := t.db.Delete(&models.Order{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func (t *gormTx) AddStockMovements(movements []models.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	return t.db.Create(&movements).Error
}

func (t *gormTx) CashMovementsBetween(from, to time.Time) ([]models.CashMovement, error) {
	var rows []models.CashMovement
	err := t.db.Preload("PaymentMethod").
		Where("occurred_at >= ? AND occurred_at < ?", from, to).
		Order("occurred_at, id").
		Find(&rows).Error
	return rows, err
}

func (t *gormTx) AddCashMovement(m *models.CashMovement) error {
	if err := t.db.Omit("PaymentMethod").Create(m).Error; err != nil {
		return fmt.Errorf("insert cash movement: %w", err)
	}
	return nil
}

func (t *gormTx) PaymentMethods() ([]models.PaymentMethod, error) {
	var rows []models.PaymentMethod
	err := t.db.Order("id").Find(&rows).Error
	return rows, err
}

func (t *gormTx) CreateSale(sale *models.Sale) error {
	return t.db.Create(sale).Error
}

func (t *gormTx) GetSale(id int64) (*models.Sale, error) {
	var sale models.Sale
	if err := t.db.Preload("Lines").First(&sale, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &sale, nil
}

func (t *gormTx) CreatePurchase(p *models.Purchase) error {
	return t.db.Create(p).Error
}

func (t *gormTx) GetPurchase(id int64, forUpdate bool) (*models.Purchase, error) {
	db := t.db
	if forUpdate {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p models.Purchase
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	if err := t.db.Where("purchase_id = ?", id).Order("id").Find(&p.Lines).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *gormTx) ListInProcessPurchaseLines(excludeID int64) ([]models.PurchaseLine, error) {
	var rows []models.PurchaseLine
	err := t.db.Joins("JOIN purchases ON purchases.id = purchase_lines.purchase_id").
		Where("purchases.status = ? AND purchases.id <> ?", models.PurchaseInProcess, excludeID).
		Order("purchase_lines.id").
		Find(&rows).Error
	return rows, err
}

func (t *gormTx) UpdatePurchaseStatus(id int64, status models.PurchaseStatus, receivedAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if receivedAt != nil {
		updates["received_at"] = *receivedAt
	}
	res := t.db.Model(&models.Purchase{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func (t *gormTx) GetEmployee(id int64) (*models.Employee, error) {
	var e models.Employee
	if err := t.db.First(&e, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}
