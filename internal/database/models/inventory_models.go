package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Ingredient struct {
	ID           int64            `gorm:"primaryKey;autoIncrement"`
	Name         string           `gorm:"size:128;uniqueIndex;not null"`
	Unit         string           `gorm:"size:32;not null"`
	OnHand       decimal.Decimal  `gorm:"type:numeric(14,3);not null;default:0;check:on_hand >= 0"`
	MaxStock     *decimal.Decimal `gorm:"type:numeric(14,3)"`
	ReorderPoint *decimal.Decimal `gorm:"type:numeric(14,3)"`
	PackCapacity decimal.Decimal  `gorm:"type:numeric(14,3);not null;default:0"`
	IsActive     bool             `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Dish struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	Name          string          `gorm:"size:128;uniqueIndex;not null"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PreparedStock int64           `gorm:"not null;default:0;check:prepared_stock >= 0"`
	IsActive      bool            `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Recipe *Recipe `gorm:"foreignKey:DishID"`
}

// Recipe is the bill of materials for one unit of a dish. Only the active one
// is used to cover a shortfall.
type Recipe struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	DishID    int64  `gorm:"not null;index"`
	Name      string `gorm:"size:128"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Lines []RecipeLine `gorm:"foreignKey:RecipeID"`
}

type RecipeLine struct {
	ID           int64           `gorm:"primaryKey;autoIncrement"`
	RecipeID     int64           `gorm:"not null;index"`
	Position     int32           `gorm:"not null;default:0"`
	IngredientID int64           `gorm:"not null;index"`
	QtyPerUnit   decimal.Decimal `gorm:"type:numeric(14,3);not null;check:qty_per_unit > 0"`

	Ingredient *Ingredient `gorm:"foreignKey:IngredientID"`
}

type MovementKind string

const (
	MovementDispatch    MovementKind = "dispatch"
	MovementProduction  MovementKind = "production"
	MovementConsumption MovementKind = "consumption"
	MovementPurchase    MovementKind = "purchase"
)

type ReferenceType string

const (
	ReferenceOrder      ReferenceType = "order"
	ReferenceProduction ReferenceType = "production"
	ReferencePurchase   ReferenceType = "purchase"
)

// StockMovement is one line of the trail left by every dish or ingredient
// counter change. Exactly one of DishID and IngredientID is set.
type StockMovement struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	Kind          MovementKind    `gorm:"size:32;not null;index"`
	DishID        *int64          `gorm:"index"`
	IngredientID  *int64          `gorm:"index"`
	Delta         decimal.Decimal `gorm:"type:numeric(14,3);not null"`
	ReferenceType ReferenceType   `gorm:"size:32;not null"`
	ReferenceID   int64           `gorm:"not null;index"`
	CreatedBy     int64
	CreatedAt     time.Time
}
