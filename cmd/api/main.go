package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brovar/digimarket-backend/api/routes"
	"github.com/brovar/digimarket-backend/internal/admin"
	"github.com/brovar/digimarket-backend/internal/auth"
	"github.com/brovar/digimarket-backend/internal/imagestore"
	"github.com/brovar/digimarket-backend/internal/inventory"
	"github.com/brovar/digimarket-backend/internal/offers"
	"github.com/brovar/digimarket-backend/internal/orders"
	"github.com/brovar/digimarket-backend/internal/settlement"
	"github.com/brovar/digimarket-backend/internal/users"
	"github.com/brovar/digimarket-backend/pkg/audit"
	"github.com/brovar/digimarket-backend/pkg/auth/session"
	"github.com/brovar/digimarket-backend/pkg/config"
	"github.com/brovar/digimarket-backend/pkg/db"
	"github.com/brovar/digimarket-backend/pkg/logger"
	"github.com/brovar/digimarket-backend/pkg/metrics"
	"github.com/brovar/digimarket-backend/pkg/migrate"
	"github.com/brovar/digimarket-backend/pkg/outbox"
	"github.com/brovar/digimarket-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	marketplaceMetrics := metrics.NewMarketplaceMetrics(registry)

	auditService := audit.NewService(dbClient.DB(), logg)
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	imageStore, err := imagestore.New(cfg.Images)
	if err != nil {
		logg.Error(context.Background(), "failed to prepare image store", err)
		os.Exit(1)
	}

	userRepo := users.NewRepository(dbClient.DB())

	authService, err := auth.NewService(
		userRepo,
		sessionManager,
		redisClient,
		auditService,
		cfg.JWT,
		cfg.Password,
		cfg.AuthRateLimit,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	offerService, err := offers.NewService(
		offers.NewRepository(dbClient.DB()),
		dbClient,
		auditService,
		outboxService,
		imageStore,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create offers service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		dbClient,
		auditService,
		outboxService,
		marketplaceMetrics,
		cfg.Payment,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(
		dbClient,
		inventory.NewLedger(),
		auditService,
		outboxService,
		marketplaceMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	adminService, err := admin.NewService(userRepo, dbClient, auditService, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create admin service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:     cfg,
			Logger:     logg,
			DB:         dbClient,
			Redis:      redisClient,
			Sessions:   sessionManager,
			Registry:   registry,
			Auth:       authService,
			Offers:     offerService,
			Orders:     orderService,
			Settlement: settlementService,
			Admin:      adminService,
		}),
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stopCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}
}
