package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"pizzeria-system/config"
	"pizzeria-system/internal/cache"
	"pizzeria-system/internal/database"
	"pizzeria-system/internal/events"
	"pizzeria-system/internal/gateway"
	"pizzeria-system/internal/health"
	"pizzeria-system/internal/logger"
	"pizzeria-system/internal/repository"
	"pizzeria-system/internal/services/cash"
	"pizzeria-system/internal/services/catalog"
	"pizzeria-system/internal/services/purchasing"
	"pizzeria-system/internal/services/settlement"
	"pizzeria-system/internal/services/stock"
	"pizzeria-system/internal/utils"
)

func main() {
	cfg := config.LoadConfig()

	logg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logg.Sync()

	db, err := database.NewConnection(cfg.DB.DSN(), database.PoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		logg.Fatal("failed to connect to db", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logg.Fatal("failed to migrate database", zap.Error(err))
	}
	if err := database.Seed(db, logg); err != nil {
		logg.Fatal("failed to seed database", zap.Error(err))
	}

	var (
		redisClient *redis.Client
		kv          interface {
			cache.Cache
			cache.IdempotencyStore
		} = cache.NewMemory()
	)
	if cfg.Redis.Enabled {
		redisClient, err = config.NewRedisClient(cfg.Redis)
		if err != nil {
			logg.Warn("redis unavailable, using in-process cache", zap.Error(err))
		} else {
			defer redisClient.Close()
			kv = cache.NewRedisCache(redisClient)
		}
	}

	publisher := newPublisher(cfg.Broker, redisClient, logg)
	defer publisher.Close()

	store := repository.NewGormStore(db)
	register := cash.NewController(store, publisher, logg, cash.Config{
		Location:       cfg.Register.Location(),
		CashMethodCode: cfg.Register.CashMethodCode,
	})
	catalogSvc := catalog.NewService(store, kv, logg)
	executor := stock.NewExecutor(store, register, publisher, logg).WithDishCache(catalogSvc)

	router, err := gateway.NewRouter(gateway.Services{
		Store:      store,
		Register:   register,
		Guard:      stock.NewGuard(store, register, executor, publisher, logg),
		Executor:   executor,
		Settlement: settlement.NewGenerator(store, register, publisher, logg, cfg.Register.CashMethodCode),
		Purchasing: purchasing.NewService(store, register, publisher, logg),
		Catalog:    catalogSvc,
	}, gateway.Options{
		Issuer:      utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		IssueTokens: cfg.Auth.IssueTokens,
		RateLimit:   cfg.RateLimit.Rate,
		Idempotency: kv,
		Log:         logg,
	})
	if err != nil {
		logg.Fatal("failed to build router", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthServer := health.NewServer(logg, 10*time.Second, healthChecks(db, redisClient))
	lis, err := net.Listen("tcp", ":"+cfg.Server.HealthPort)
	if err != nil {
		logg.Fatal("failed to listen for health checks", zap.Error(err))
	}
	go func() {
		if err := healthServer.Serve(ctx, lis); err != nil {
			logg.Error("health server stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logg.Info("pos server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("http shutdown", zap.Error(err))
	}
	healthServer.Stop()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newPublisher(cfg config.BrokerConfig, redisClient *redis.Client, logg *zap.Logger) events.Publisher {
	switch cfg.Kind {
	case "redis":
		if redisClient == nil {
			logg.Warn("redis event broker selected but redis is unavailable; events are dropped")
			return events.NopPublisher{}
		}
		return events.NewRedisPublisher(redisClient)
	case "rabbitmq":
		p, err := events.DialRabbit(events.RabbitConfig{
			Host:     cfg.RabbitHost,
			Port:     cfg.RabbitPort,
			User:     cfg.RabbitUser,
			Password: cfg.RabbitPassword,
			VHost:    cfg.RabbitVHost,
			Exchange: cfg.RabbitExchange,
		})
		if err != nil {
			logg.Warn("rabbitmq unavailable; events are dropped", zap.Error(err))
			return events.NopPublisher{}
		}
		return p
	case "kafka":
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	default:
		return events.NopPublisher{}
	}
}

func healthChecks(db *gorm.DB, redisClient *redis.Client) map[string]health.Check {
	checks := map[string]health.Check{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
