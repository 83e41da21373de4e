package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pizzeria-system/internal/services/catalog"
	"pizzeria-system/internal/services/settlement"
	"pizzeria-system/internal/services/stock"
)

type OrderHTTPHandler struct {
	guard     *stock.Guard
	executor  *stock.Executor
	generator *settlement.Generator
	catalog   *catalog.Service
	log       *zap.Logger
}

func NewOrderHTTPHandler(guard *stock.Guard, executor *stock.Executor, generator *settlement.Generator, catalog *catalog.Service, log *zap.Logger) *OrderHTTPHandler {
	return &OrderHTTPHandler{
		guard:     guard,
		executor:  executor,
		generator: generator,
		catalog:   catalog,
		log:       log,
	}
}

type OrderLineRequest struct {
	DishID   int64 `json:"dish_id" binding:"required"`
	Quantity int64 `json:"quantity"`
}

type CreateOrderRequest struct {
	TableID    *int64             `json:"table_id,omitempty"`
	CustomerID *int64             `json:"customer_id,omitempty"`
	EmployeeID *int64             `json:"employee_id,omitempty"`
	Notes      *string            `json:"notes,omitempty"`
	Lines      []OrderLineRequest `json:"lines" binding:"required,dive"`
}

type EditOrderRequest struct {
	Lines []OrderLineRequest `json:"lines" binding:"required,dive"`
}

type SettleOrderRequest struct {
	PaymentMethodID *int64 `json:"payment_method_id,omitempty"`
}

func toLines(in []OrderLineRequest) []stock.Line {
	lines := make([]stock.Line, 0, len(in))
	for _, l := range in {
		lines = append(lines, stock.Line{DishID: l.DishID, Quantity: l.Quantity})
	}
	return lines
}

func (h *OrderHTTPHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.guard.CreateOrder(ctx, stock.CreateOrderInput{
		TableID:    req.TableID,
		CustomerID: req.CustomerID,
		EmployeeID: req.EmployeeID,
		Notes:      req.Notes,
		Lines:      toLines(req.Lines),
	})
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse("Order created successfully", toOrderResponse(order)))
}

func (h *OrderHTTPHandler) GetOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	view, err := h.catalog.GetOrder(ctx, id)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Order retrieved successfully", view))
}

func (h *OrderHTTPHandler) EditOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req EditOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.guard.EditOrder(ctx, id, toLines(req.Lines))
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Order updated successfully", gin.H{
		"order": toOrderResponse(result.Order),
		"trail": toTrailResponse(result.Trail),
	}))
}

func (h *OrderHTTPHandler) CancelOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.guard.CancelOrder(ctx, id)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Order cancelled successfully", toOrderResponse(order)))
}

func (h *OrderHTTPHandler) DeleteOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.guard.DeleteOrder(ctx, id); err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Order deleted successfully", nil))
}

func (h *OrderHTTPHandler) DispatchOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	trail, err := h.executor.DispatchOrder(ctx, id)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Order dispatched successfully", toTrailResponse(trail)))
}

func (h *OrderHTTPHandler) SettleOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req SettleOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
			return
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.generator.SettleOrder(ctx, id, req.PaymentMethodID)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse("Order settled successfully", gin.H{
		"sale":          toSaleResponse(result.Sale),
		"cash_movement": toCashMovementResponse(result.Movement),
	}))
}
