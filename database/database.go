package database

import (
	"fmt"

	"creator-subscriptions/internal/domain/billing"
	"creator-subscriptions/internal/domain/earnings"
	"creator-subscriptions/internal/domain/events"
	"creator-subscriptions/internal/domain/plans"
	"creator-subscriptions/internal/domain/subscriptions"
	"creator-subscriptions/internal/domain/users"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(dsn string, commissionDefault decimal.Decimal, logger *zap.Logger) {
	if dsn == "" {
		logger.Fatal("DB_URL not set")
	}

	db, err := Open(dsn)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := Migrate(db); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}
	if err := SetCommissionDefault(db, commissionDefault); err != nil {
		logger.Fatal("failed to set commission default", zap.Error(err))
	}

	DB = db
	logger.Info("connected and migrated")
}

func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	// gen_random_uuid for manual inserts; the application assigns uuids itself.
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		return fmt.Errorf("enable pgcrypto: %w", err)
	}
	return db.AutoMigrate(
		&users.User{},
		&plans.CreatorPrice{},
		&subscriptions.Subscription{},
		&billing.PaymentTransaction{},
		&earnings.CreatorEarning{},
		&events.ProcessedEvent{},
	)
}

// SetCommissionDefault changes the commission applied to creators created
// from now on. Existing creators keep their rate.
func SetCommissionDefault(db *gorm.DB, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("commission default %s out of range", rate)
	}
	// DDL takes no bind parameters; rate is a parsed decimal.
	return db.Exec(fmt.Sprintf(`ALTER TABLE users ALTER COLUMN commission_rate SET DEFAULT %s`, rate.StringFixed(2))).Error
}
