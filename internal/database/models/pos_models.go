package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderOpen      OrderStatus = "OPEN"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderFinalized OrderStatus = "FINALIZED"
)

type Order struct {
	ID         int64       `gorm:"primaryKey;autoIncrement"`
	Status     OrderStatus `gorm:"size:16;not null;index"`
	TableID    *int64
	CustomerID *int64
	EmployeeID *int64
	Notes      *string `gorm:"type:text"`
	OpenedAt   time.Time
	ClosedAt   *time.Time
	UpdatedAt  time.Time

	Lines []OrderLine `gorm:"foreignKey:OrderID"`
}

type OrderLine struct {
	ID       int64 `gorm:"primaryKey;autoIncrement"`
	OrderID  int64 `gorm:"not null;index"`
	Position int32 `gorm:"not null;default:0"`
	DishID   int64 `gorm:"not null;index"`
	Quantity int64 `gorm:"not null;check:quantity > 0"`

	Dish *Dish `gorm:"foreignKey:DishID"`
}

type PaymentMethod struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	Code     string `gorm:"size:32;uniqueIndex;not null"`
	Name     string `gorm:"size:64;not null"`
	IsActive bool   `gorm:"not null;default:true"`
}

const (
	PaymentCash     = "CASH"
	PaymentCard     = "CARD"
	PaymentTransfer = "TRANSFER"
)

type Sale struct {
	ID              int64           `gorm:"primaryKey;autoIncrement"`
	OrderID         int64           `gorm:"not null;uniqueIndex"`
	CustomerID      int64           `gorm:"not null"`
	EmployeeID      int64           `gorm:"not null"`
	PaymentMethodID int64           `gorm:"not null"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Description     string          `gorm:"size:255"`
	SoldAt          time.Time

	Lines []SaleLine `gorm:"foreignKey:SaleID"`
}

// SaleLine freezes the dish price at settlement time.
type SaleLine struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"`
	SaleID    int64           `gorm:"not null;index"`
	DishID    int64           `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Quantity  int64           `gorm:"not null"`
	Subtotal  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
}

type CashMovementType string

const (
	CashOpen  CashMovementType = "OPEN"
	CashIn    CashMovementType = "CASH_IN"
	CashOut   CashMovementType = "CASH_OUT"
	CashClose CashMovementType = "CLOSE"
)

// CashMovement rows are append-only; the register state is derived from them.
type CashMovement struct {
	ID              int64            `gorm:"primaryKey;autoIncrement"`
	Type            CashMovementType `gorm:"size:16;not null;index"`
	Amount          decimal.Decimal  `gorm:"type:numeric(12,2);not null;check:amount >= 0"`
	PaymentMethodID *int64
	EmployeeID      *int64
	SaleID          *int64
	PurchaseID      *int64
	Description     string    `gorm:"size:255"`
	OccurredAt      time.Time `gorm:"not null;index"`

	PaymentMethod *PaymentMethod `gorm:"foreignKey:PaymentMethodID"`
	Sale          *Sale          `gorm:"foreignKey:SaleID"`
}
