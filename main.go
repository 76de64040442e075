package main

import (
	"context"
	"log"
	"time"

	"creator-subscriptions/config"
	"creator-subscriptions/database"
	adminapi "creator-subscriptions/internal/api/admin"
	"creator-subscriptions/internal/api/billing"
	earningsapi "creator-subscriptions/internal/api/earnings"
	stripewebhooks "creator-subscriptions/internal/api/stripewebhook"
	"creator-subscriptions/internal/api/users"
	routes "creator-subscriptions/internal/app/http"
	"creator-subscriptions/internal/infra/cache"
	"creator-subscriptions/internal/infra/logging"
	stripeinfra "creator-subscriptions/internal/infra/stripe"
	"creator-subscriptions/internal/reconcile"
	"creator-subscriptions/internal/webhook"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// eventLease bounds how long a crashed delivery keeps an event claimed.
const eventLease = 2 * time.Minute

func main() {
	config.LoadEnv()

	logger, err := logging.New(config.APP_ENV)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if config.APP_ENV != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	database.InitDB(config.DB_URL, config.DEFAULT_COMMISSION_RATE, logger)
	store := reconcile.NewRepository(database.DB)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var processed webhook.ProcessedCache
	if config.REDIS_URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := cache.Connect(ctx, config.REDIS_URL)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable; processed-event cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			processed = cache.NewProcessedEvents(client, cache.DefaultTTL)
		}
	}

	processor := stripeinfra.NewClient(config.STRIPE_SECRET_KEY, config.APP_ENV, logger.Named("stripe"))
	if !processor.Configured() {
		logger.Error("STRIPE_SECRET_KEY not set; subscription creation will fail", zap.String("error_kind", "misconfigured"))
	}
	if config.STRIPE_WEBHOOK_SECRET == "" {
		logger.Error("STRIPE_WEBHOOK_SECRET not set; webhooks will be rejected", zap.String("error_kind", "misconfigured"))
	}

	ledger := reconcile.NewLedger(store, logger.Named("ledger"))
	recorder := reconcile.NewRecorder(store, ledger, logger.Named("recorder"))
	reconciler := reconcile.NewReconciler(store, logger.Named("reconciler"))
	orchestrator := reconcile.NewOrchestrator(store, processor, ledger, reconcile.NewMetrics(reg), logger.Named("orchestrator"), reconcile.DefaultOrchestratorConfig())

	webhookLogger := logger.Named("webhook")
	pipeline := webhook.NewPipeline(
		webhook.NewVerifier(config.STRIPE_WEBHOOK_SECRET, 0),
		webhook.NewGate(store, processed, eventLease, webhookLogger),
		webhook.NewRouter(reconciler, recorder, webhookLogger),
		webhook.NewMetrics(reg),
		webhookLogger,
		config.WEBHOOK_BUDGET,
	)

	r := gin.New()
	r.Use(gin.Recovery())
	if config.CORS_ORIGIN != "" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{config.CORS_ORIGIN},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	routes.RegisterRoutes(r, routes.Dependencies{
		JWTSecret: config.JWT_SECRET,
		Gatherer:  reg,
		Webhook:   stripewebhooks.NewHandler(pipeline, webhookLogger),
		Billing:   billing.NewHandler(orchestrator, store, logger.Named("billing")),
		Earnings:  earningsapi.NewHandler(store, logger.Named("earnings")),
		Users:     users.NewHandler(store, logger.Named("users")),
		Admin:     adminapi.NewHandler(store, logger.Named("admin")),
	})

	logger.Info("listening", zap.String("port", config.PORT))
	if err := r.Run(":" + config.PORT); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
