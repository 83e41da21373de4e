package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pizzeria-system/internal/apperror"
	"pizzeria-system/internal/repository"
	"pizzeria-system/internal/utils"
)

// AuthHTTPHandler issues tokens for known employees. It is only routed when
// token issuing is enabled; production deployments get tokens elsewhere.
type AuthHTTPHandler struct {
	store  repository.Store
	issuer *utils.TokenIssuer
	log    *zap.Logger
}

func NewAuthHTTPHandler(store repository.Store, issuer *utils.TokenIssuer, log *zap.Logger) *AuthHTTPHandler {
	return &AuthHTTPHandler{store: store, issuer: issuer, log: log}
}

type TokenRequest struct {
	EmployeeID int64 `json:"employee_id" binding:"required"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHTTPHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	var username string
	err := h.store.WithinTx(ctx, func(tx repository.Tx) error {
		e, err := tx.GetEmployee(req.EmployeeID)
		if err != nil {
			return err
		}
		if !e.IsActive {
			return apperror.ErrNotFound
		}
		username = e.FullName()
		return nil
	})
	if errors.Is(err, apperror.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, errorResponse("Unknown employee"))
		return
	}
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	token, exp, err := h.issuer.GenerateToken(req.EmployeeID, username)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Token issued successfully", TokenResponse{Token: token, ExpiresAt: exp}))
}
