package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pizzeria-system/internal/database/models"
	"pizzeria-system/internal/services/cash"
)

type RegisterHTTPHandler struct {
	controller *cash.Controller
	log        *zap.Logger
}

func NewRegisterHTTPHandler(controller *cash.Controller, log *zap.Logger) *RegisterHTTPHandler {
	return &RegisterHTTPHandler{controller: controller, log: log}
}

type OpenRegisterRequest struct {
	OpeningFloat string `json:"opening_float" binding:"required"`
	Note         string `json:"note,omitempty"`
}

type CashMovementRequest struct {
	Type            string `json:"type" binding:"required,oneof=CASH_IN CASH_OUT"`
	Amount          string `json:"amount" binding:"required"`
	PaymentMethodID *int64 `json:"payment_method_id,omitempty"`
	Description     string `json:"description,omitempty"`
}

type CloseRegisterRequest struct {
	Note string `json:"note,omitempty"`
}

func (h *RegisterHTTPHandler) OpenRegister(c *gin.Context) {
	var req OpenRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
		return
	}
	float, err := decimal.NewFromString(req.OpeningFloat)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid opening_float"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	movement, err := h.controller.OpenRegister(ctx, float, req.Note)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse("Register opened successfully", toCashMovementResponse(movement)))
}

func (h *RegisterHTTPHandler) RecordMovement(c *gin.Context) {
	var req CashMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid amount"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	movement, err := h.controller.RecordCash(ctx, cash.MovementInput{
		Type:            models.CashMovementType(req.Type),
		Amount:          amount,
		PaymentMethodID: req.PaymentMethodID,
		Description:     req.Description,
	})
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse("Cash movement recorded successfully", toCashMovementResponse(movement)))
}

func (h *RegisterHTTPHandler) CloseRegister(c *gin.Context) {
	var req CloseRegisterRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
			return
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	report, err := h.controller.CloseRegister(ctx, req.Note)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Register closed successfully", report))
}

func (h *RegisterHTTPHandler) Status(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	status, err := h.controller.Status(ctx)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Register status retrieved successfully", status))
}

func (h *RegisterHTTPHandler) Reconciliation(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	report, err := h.controller.Reconciliation(ctx)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Reconciliation retrieved successfully", report))
}
