package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pizzeria-system/internal/database/models"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func NewConnection(dsn string, pool PoolConfig) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DSN is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Employee{},
		&models.Customer{},
		&models.Ingredient{},
		&models.Dish{},
		&models.Recipe{},
		&models.RecipeLine{},
		&models.Order{},
		&models.OrderLine{},
		&models.PaymentMethod{},
		&models.Sale{},
		&models.SaleLine{},
		&models.CashMovement{},
		&models.Purchase{},
		&models.PurchaseLine{},
		&models.StockMovement{},
	)
}

var defaultPaymentMethods = []models.PaymentMethod{
	{Code: models.PaymentCash, Name: "Cash", IsActive: true},
	{Code: models.PaymentCard, Name: "Card", IsActive: true},
	{Code: models.PaymentTransfer, Name: "Bank transfer", IsActive: true},
}

// Seed inserts the payment method catalog when missing.
func Seed(db *gorm.DB, log *zap.Logger) error {
	for _, pm := range defaultPaymentMethods {
		pm := pm
		res := db.Where(models.PaymentMethod{Code: pm.Code}).FirstOrCreate(&pm)
		if res.Error != nil {
			return fmt.Errorf("seed payment method %s: %w", pm.Code, res.Error)
		}
		if res.RowsAffected > 0 {
			log.Info("seeded payment method", zap.String("code", pm.Code))
		}
	}
	return nil
}
