package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pizzeria-system/internal/services/catalog"
	"pizzeria-system/internal/services/stock"
)

type CatalogHTTPHandler struct {
	catalog  *catalog.Service
	executor *stock.Executor
	log      *zap.Logger
}

func NewCatalogHTTPHandler(catalog *catalog.Service, executor *stock.Executor, log *zap.Logger) *CatalogHTTPHandler {
	return &CatalogHTTPHandler{catalog: catalog, executor: executor, log: log}
}

type ProduceDishRequest struct {
	Quantity int64 `json:"quantity"`
}

func (h *CatalogHTTPHandler) ListDishes(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	dishes, err := h.catalog.ListDishes(ctx)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Dishes retrieved successfully", dishes))
}

func (h *CatalogHTTPHandler) ListIngredients(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	ingredients, err := h.catalog.ListIngredients(ctx)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Ingredients retrieved successfully", ingredients))
}

func (h *CatalogHTTPHandler) ListLowStock(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	ingredients, err := h.catalog.ListLowStock(ctx)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Low stock ingredients retrieved successfully", ingredients))
}

func (h *CatalogHTTPHandler) ProduceDish(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ProduceDishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	trail, err := h.executor.ProduceDish(ctx, id, req.Quantity)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse("Dish produced successfully", toTrailResponse(trail)))
}
