package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"pizzeria-system/internal/database/models"
	"pizzeria-system/internal/services/stock"
)

type orderLineResponse struct {
	DishID   int64 `json:"dish_id"`
	Quantity int64 `json:"quantity"`
}

type orderResponse struct {
	ID         int64               `json:"id"`
	Status     models.OrderStatus  `json:"status"`
	TableID    *int64              `json:"table_id,omitempty"`
	CustomerID *int64              `json:"customer_id,omitempty"`
	EmployeeID *int64              `json:"employee_id,omitempty"`
	Notes      *string             `json:"notes,omitempty"`
	OpenedAt   time.Time           `json:"opened_at"`
	ClosedAt   *time.Time          `json:"closed_at,omitempty"`
	Lines      []orderLineResponse `json:"lines"`
}

func toOrderResponse(o *models.Order) orderResponse {
	resp := orderResponse{
		ID:         o.ID,
		Status:     o.Status,
		TableID:    o.TableID,
		CustomerID: o.CustomerID,
		EmployeeID: o.EmployeeID,
		Notes:      o.Notes,
		OpenedAt:   o.OpenedAt,
		ClosedAt:   o.ClosedAt,
		Lines:      make([]orderLineResponse, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		resp.Lines = append(resp.Lines, orderLineResponse{DishID: l.DishID, Quantity: l.Quantity})
	}
	return resp
}

type stockMovementResponse struct {
	ID           int64               `json:"id"`
	Kind         models.MovementKind `json:"kind"`
	DishID       *int64              `json:"dish_id,omitempty"`
	IngredientID *int64              `json:"ingredient_id,omitempty"`
	Delta        decimal.Decimal     `json:"delta"`
	CreatedAt    time.Time           `json:"created_at"`
}

type trailResponse struct {
	ReferenceType models.ReferenceType    `json:"reference_type"`
	ReferenceID   int64                   `json:"reference_id"`
	Movements     []stockMovementResponse `json:"movements"`
}

func toStockMovements(in []models.StockMovement) []stockMovementResponse {
	out := make([]stockMovementResponse, 0, len(in))
	for _, m := range in {
		out = append(out, stockMovementResponse{
			ID:           m.ID,
			Kind:         m.Kind,
			DishID:       m.DishID,
			IngredientID: m.IngredientID,
			Delta:        m.Delta,
			CreatedAt:    m.CreatedAt,
		})
	}
	return out
}

func toTrailResponse(t *stock.MovementTrail) *trailResponse {
	if t == nil {
		return nil
	}
	return &trailResponse{
		ReferenceType: t.ReferenceType,
		ReferenceID:   t.ReferenceID,
		Movements:     toStockMovements(t.Movements),
	}
}

type cashMovementResponse struct {
	ID              int64                   `json:"id"`
	Type            models.CashMovementType `json:"type"`
	Amount          decimal.Decimal         `json:"amount"`
	PaymentMethodID *int64                  `json:"payment_method_id,omitempty"`
	EmployeeID      *int64                  `json:"employee_id,omitempty"`
	SaleID          *int64                  `json:"sale_id,omitempty"`
	PurchaseID      *int64                  `json:"purchase_id,omitempty"`
	Description     string                  `json:"description,omitempty"`
	OccurredAt      time.Time               `json:"occurred_at"`
}

func toCashMovementResponse(m *models.CashMovement) *cashMovementResponse {
	if m == nil {
		return nil
	}
	return &cashMovementResponse{
		ID:              m.ID,
		Type:            m.Type,
		Amount:          m.Amount,
		PaymentMethodID: m.PaymentMethodID,
		EmployeeID:      m.EmployeeID,
		SaleID:          m.SaleID,
		PurchaseID:      m.PurchaseID,
		Description:     m.Description,
		OccurredAt:      m.OccurredAt,
	}
}

type saleLineResponse struct {
	DishID    int64           `json:"dish_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type saleResponse struct {
	ID              int64              `json:"id"`
	OrderID         int64              `json:"order_id"`
	CustomerID      int64              `json:"customer_id"`
	EmployeeID      int64              `json:"employee_id"`
	PaymentMethodID int64              `json:"payment_method_id"`
	Amount          decimal.Decimal    `json:"amount"`
	Description     string             `json:"description"`
	SoldAt          time.Time          `json:"sold_at"`
	Lines           []saleLineResponse `json:"lines"`
}

func toSaleResponse(s *models.Sale) saleResponse {
	resp := saleResponse{
		ID:              s.ID,
		OrderID:         s.OrderID,
		CustomerID:      s.CustomerID,
		EmployeeID:      s.EmployeeID,
		PaymentMethodID: s.PaymentMethodID,
		Amount:          s.Amount,
		Description:     s.Description,
		SoldAt:          s.SoldAt,
		Lines:           make([]saleLineResponse, 0, len(s.Lines)),
	}
	for _, l := range s.Lines {
		resp.Lines = append(resp.Lines, saleLineResponse{
			DishID:    l.DishID,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal,
		})
	}
	return resp
}

type purchaseLineResponse struct {
	IngredientID int64           `json:"ingredient_id"`
	Packages     int64           `json:"packages"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
}

type purchaseResponse struct {
	ID         int64                  `json:"id"`
	SupplierID *int64                 `json:"supplier_id,omitempty"`
	Status     models.PurchaseStatus  `json:"status"`
	EmployeeID *int64                 `json:"employee_id,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	ReceivedAt *time.Time             `json:"received_at,omitempty"`
	Lines      []purchaseLineResponse `json:"lines"`
}

func toPurchaseResponse(p *models.Purchase) purchaseResponse {
	resp := purchaseResponse{
		ID:         p.ID,
		SupplierID: p.SupplierID,
		Status:     p.Status,
		EmployeeID: p.EmployeeID,
		CreatedAt:  p.CreatedAt,
		ReceivedAt: p.ReceivedAt,
		Lines:      make([]purchaseLineResponse, 0, len(p.Lines)),
	}
	for _, l := range p.Lines {
		resp.Lines = append(resp.Lines, purchaseLineResponse{
			IngredientID: l.IngredientID,
			Packages:     l.Packages,
			UnitCost:     l.UnitCost,
		})
	}
	return resp
}
