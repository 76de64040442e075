package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

var (
	PORT       string
	DB_URL     string
	JWT_SECRET string
	APP_ENV    string

	CORS_ORIGIN string
	REDIS_URL   string

	// Stripe credentials may be empty: the payment endpoints then fail closed
	// instead of the process refusing to start.
	STRIPE_SECRET_KEY     string
	STRIPE_WEBHOOK_SECRET string

	WEBHOOK_BUDGET          time.Duration
	DEFAULT_COMMISSION_RATE decimal.Decimal
)

func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found. Using system environment variables.")
	}

	PORT = getEnv("PORT", "8080")
	DB_URL = mustEnv("DB_URL")
	JWT_SECRET = mustEnv("JWT_SECRET")
	APP_ENV = getEnv("APP_ENV", "development")

	CORS_ORIGIN = getEnv("CORS_ORIGIN", "")
	REDIS_URL = getEnv("REDIS_URL", "")

	STRIPE_SECRET_KEY = getEnv("STRIPE_SECRET_KEY", "")
	STRIPE_WEBHOOK_SECRET = getEnv("STRIPE_WEBHOOK_SECRET", "")

	WEBHOOK_BUDGET = getDuration("WEBHOOK_BUDGET", 8*time.Second)
	DEFAULT_COMMISSION_RATE = getDecimal("DEFAULT_COMMISSION_RATE", decimal.NewFromInt(30))
	if DEFAULT_COMMISSION_RATE.IsNegative() || DEFAULT_COMMISSION_RATE.GreaterThan(decimal.NewFromInt(100)) {
		log.Fatalf("DEFAULT_COMMISSION_RATE must be between 0 and 100, got %s", DEFAULT_COMMISSION_RATE)
	}
}

func mustEnv(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("Missing required environment variable: %s", key)
	}
	return v
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Fatalf("Invalid duration for %s: %q", key, raw)
	}
	return d
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		log.Fatalf("Invalid number for %s: %q", key, raw)
	}
	return d
}
