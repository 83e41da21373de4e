package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseStatus string

const (
	PurchaseInProcess PurchaseStatus = "IN_PROCESS"
	PurchaseReceived  PurchaseStatus = "RECEIVED"
	PurchaseCancelled PurchaseStatus = "CANCELLED"
)

type Purchase struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	SupplierID *int64
	Status     PurchaseStatus `gorm:"size:16;not null;index"`
	EmployeeID *int64
	CreatedAt  time.Time
	ReceivedAt *time.Time

	Lines []PurchaseLine `gorm:"foreignKey:PurchaseID"`
}

type PurchaseLine struct {
	ID           int64           `gorm:"primaryKey;autoIncrement"`
	PurchaseID   int64           `gorm:"not null;index"`
	IngredientID int64           `gorm:"not null;index"`
	Packages     int64           `gorm:"not null;check:packages > 0"`
	UnitCost     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
}
