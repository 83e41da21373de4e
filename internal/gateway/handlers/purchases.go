package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pizzeria-system/internal/services/purchasing"
)

type PurchaseHTTPHandler struct {
	purchasing *purchasing.Service
	log        *zap.Logger
}

func NewPurchaseHTTPHandler(purchasing *purchasing.Service, log *zap.Logger) *PurchaseHTTPHandler {
	return &PurchaseHTTPHandler{purchasing: purchasing, log: log}
}

type PurchaseLineRequest struct {
	IngredientID int64  `json:"ingredient_id" binding:"required"`
	Packages     int64  `json:"packages"`
	UnitCost     string `json:"unit_cost"`
}

type CreatePurchaseRequest struct {
	SupplierID *int64                `json:"supplier_id,omitempty"`
	Lines      []PurchaseLineRequest `json:"lines" binding:"required,dive"`
}

type ReceivePurchaseRequest struct {
	PaidFromRegister bool   `json:"paid_from_register"`
	PaymentMethodID  *int64 `json:"payment_method_id,omitempty"`
}

func (h *PurchaseHTTPHandler) CreatePurchase(c *gin.Context) {
	var req CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
		return
	}

	lines := make([]purchasing.LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		cost := decimal.Zero
		if l.UnitCost != "" {
			parsed, err := decimal.NewFromString(l.UnitCost)
			if err != nil {
				c.JSON(http.StatusBadRequest, errorResponse("Invalid unit_cost"))
				return
			}
			cost = parsed
		}
		lines = append(lines, purchasing.LineInput{
			IngredientID: l.IngredientID,
			Packages:     l.Packages,
			UnitCost:     cost,
		})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	purchase, err := h.purchasing.CreatePurchase(ctx, purchasing.CreateInput{
		SupplierID: req.SupplierID,
		Lines:      lines,
	})
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse("Purchase created successfully", toPurchaseResponse(purchase)))
}

func (h *PurchaseHTTPHandler) ReceivePurchase(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ReceivePurchaseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
			return
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	receipt, err := h.purchasing.ReceivePurchase(ctx, id, purchasing.ReceiveInput{
		PaidFromRegister: req.PaidFromRegister,
		PaymentMethodID:  req.PaymentMethodID,
	})
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Purchase received successfully", gin.H{
		"purchase":        toPurchaseResponse(receipt.Purchase),
		"cash_movement":   toCashMovementResponse(receipt.Movement),
		"stock_movements": toStockMovements(receipt.Movements),
	}))
}

func (h *PurchaseHTTPHandler) CancelPurchase(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	purchase, err := h.purchasing.CancelPurchase(ctx, id)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Purchase cancelled successfully", toPurchaseResponse(purchase)))
}
