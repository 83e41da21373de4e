package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pizzeria-system/internal/cache"
	"pizzeria-system/internal/gateway/handlers"
	"pizzeria-system/internal/gateway/middleware"
	"pizzeria-system/internal/repository"
	"pizzeria-system/internal/services/cash"
	"pizzeria-system/internal/services/catalog"
	"pizzeria-system/internal/services/purchasing"
	"pizzeria-system/internal/services/settlement"
	"pizzeria-system/internal/services/stock"
	"pizzeria-system/internal/utils"
)

const idempotencyTTL = 24 * time.Hour

type Services struct {
	Store      repository.Store
	Register   *cash.Controller
	Guard      *stock.Guard
	Executor   *stock.Executor
	Settlement *settlement.Generator
	Purchasing *purchasing.Service
	Catalog    *catalog.Service
}

type Options struct {
	Issuer      *utils.TokenIssuer
	IssueTokens bool
	RateLimit   string
	Idempotency cache.IdempotencyStore
	Log         *zap.Logger
}

func NewRouter(svc Services, opts Options) (*gin.Engine, error) {
	r := gin.New()

	r.Use(middleware.CORS())
	r.Use(middleware.RequestLogger(opts.Log))
	r.Use(gin.Recovery())
	if opts.RateLimit != "" {
		limit, err := middleware.RateLimit(opts.RateLimit)
		if err != nil {
			return nil, err
		}
		r.Use(limit)
	}

	orderHandler := handlers.NewOrderHTTPHandler(svc.Guard, svc.Executor, svc.Settlement, svc.Catalog, opts.Log)
	registerHandler := handlers.NewRegisterHTTPHandler(svc.Register, opts.Log)
	catalogHandler := handlers.NewCatalogHTTPHandler(svc.Catalog, svc.Executor, opts.Log)
	purchaseHandler := handlers.NewPurchaseHTTPHandler(svc.Purchasing, opts.Log)

	// money-moving POSTs honour Idempotency-Key
	var idempotent gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if opts.Idempotency != nil {
		idempotent = middleware.Idempotency(opts.Idempotency, idempotencyTTL, opts.Log)
	}

	// --- Public API Group ---
	public := r.Group("/api/v1")
	{
		if opts.IssueTokens {
			authHandler := handlers.NewAuthHTTPHandler(svc.Store, opts.Issuer, opts.Log)
			public.POST("/auth/token", authHandler.IssueToken)
		}
		public.GET("/dishes", catalogHandler.ListDishes)
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth(opts.Issuer))
	{
		orders := protected.Group("/orders")
		{
			orders.POST("", orderHandler.CreateOrder)
			orders.GET("/:id", orderHandler.GetOrder)
			orders.PUT("/:id", orderHandler.EditOrder)
			orders.DELETE("/:id", orderHandler.DeleteOrder)
			orders.POST("/:id/cancel", orderHandler.CancelOrder)
			orders.POST("/:id/dispatch", orderHandler.DispatchOrder)
			orders.POST("/:id/settle", idempotent, orderHandler.SettleOrder)
		}

		register := protected.Group("/register")
		{
			register.POST("/open", idempotent, registerHandler.OpenRegister)
			register.POST("/movements", idempotent, registerHandler.RecordMovement)
			register.POST("/close", idempotent, registerHandler.CloseRegister)
			register.GET("/status", registerHandler.Status)
			register.GET("/reconciliation", registerHandler.Reconciliation)
		}

		protected.POST("/dishes/:id/produce", catalogHandler.ProduceDish)

		ingredients := protected.Group("/ingredients")
		{
			ingredients.GET("", catalogHandler.ListIngredients)
			ingredients.GET("/low-stock", catalogHandler.ListLowStock)
		}

		purchases := protected.Group("/purchases")
		{
			purchases.POST("", purchaseHandler.CreatePurchase)
			purchases.POST("/:id/receive", idempotent, purchaseHandler.ReceivePurchase)
			purchases.POST("/:id/cancel", purchaseHandler.CancelPurchase)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Route not found",
		})
	})

	return r, nil
}
