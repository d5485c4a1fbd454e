package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/printops/pricewatch/internal/adjuster"
	"github.com/printops/pricewatch/internal/catalog"
	"github.com/printops/pricewatch/internal/config"
	"github.com/printops/pricewatch/internal/database"
	"github.com/printops/pricewatch/internal/ledger"
	"github.com/printops/pricewatch/internal/market"
	"github.com/printops/pricewatch/internal/metrics"
	"github.com/printops/pricewatch/internal/model"
	"github.com/printops/pricewatch/internal/poller"
	"github.com/printops/pricewatch/internal/store"
	"github.com/printops/pricewatch/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/pricewatch.local.yaml", "path to config file")
	flag.Parse()

	// Env vars referenced from the config file may live in .env.
	_ = godotenv.Load()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting pricewatchd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"storage_backend", cfg.Storage.Backend,
		"variants", len(cfg.Variants),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Open the storage backend
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Create catalog client
	catalogClient := catalog.NewClient(
		cfg.Catalog.BaseURL,
		cfg.Catalog.APIKey,
		cfg.Catalog.ShopID,
		catalog.WithLogger(logger),
		catalog.WithTimeout(cfg.Catalog.Timeout.Std()),
		catalog.WithRetries(cfg.Catalog.MaxRetries, time.Second),
	)

	// Wire the engine components
	reg := metrics.NewRegistry()

	costLedger := ledger.New(st, ledger.Config{
		CostChangeThresholdPercent: cfg.Ledger.CostChangeThresholdPercent,
		MarginFloorPercent:         cfg.Ledger.MarginFloorPercent,
		MarginCeilingPercent:       cfg.Ledger.MarginCeilingPercent,
		RetentionDays:              cfg.Ledger.RetentionDays,
		TrendDeadBandPercent:       cfg.Ledger.TrendDeadBandPercent,
	}, logger)

	tracker := market.New(st, market.Config{
		FreshnessDays:      cfg.Market.FreshnessDays,
		AlignedBandPercent: cfg.Market.AlignedBandPercent,
		GapSpacingMultiple: cfg.Market.GapSpacingMultiple,
		MinConfidence:      cfg.Market.MinConfidence,
	}, logger)

	categories := make(map[string]string, len(cfg.Variants))
	for _, v := range cfg.Variants {
		categories[v.ID] = v.Category
	}
	priceAdjuster := adjuster.New(st, tracker, cfg.Fees, adjuster.Config{
		MaxChangePercent:      cfg.Adjuster.MaxChangePercent,
		AutoExecuteCapPercent: cfg.Adjuster.AutoExecuteCapPercent,
		AutoExecuteConfidence: cfg.Adjuster.AutoExecuteConfidence,
		TTL:                   cfg.Adjuster.TTL.Std(),
		Cooldown:              cfg.Adjuster.Cooldown.Std(),
		PassThroughIncrease:   cfg.Adjuster.PassThroughIncrease,
		PassThroughDecrease:   cfg.Adjuster.PassThroughDecrease,
		RoundEnding:           *cfg.Adjuster.RoundEnding,
		Position:              model.MarketPosition(cfg.Adjuster.Position),
	}, func(variantID string) string { return categories[variantID] }, logger)

	costPoller := poller.New(poller.Config{
		Interval:      cfg.Poller.Interval.Std(),
		Concurrency:   cfg.Poller.Concurrency,
		Timeout:       cfg.Poller.Timeout.Std(),
		SweepInterval: cfg.Poller.SweepInterval.Std(),
	}, catalogClient, costLedger, priceAdjuster, cfg.Variants, reg, logger)

	// Metrics and health server
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHandler(cfg.Metrics.Path, reg, st, logger),
	}
	go func() {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Start polling
	if err := costPoller.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}

	logger.Info("pricewatchd running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := costPoller.Stop(shutdownCtx); err != nil {
		logger.Warn("poller shutdown timed out", "error", err)
	}
	metricsServer.Shutdown(shutdownCtx)

	logger.Info("pricewatchd stopped")
}

// openStore constructs the configured storage backend.
func openStore(ctx context.Context, cfg *config.EngineConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		logger.Warn("using in-memory storage, data will not survive restarts")
		return store.NewMemory(), nil
	case "pebble":
		logger.Info("opening pebble store", "path", cfg.Storage.Path)
		return store.OpenPebble(cfg.Storage.Path)
	case "postgres":
		logger.Info("connecting to postgres",
			"host", cfg.Storage.Postgres.Host,
			"port", cfg.Storage.Postgres.Port,
			"database", cfg.Storage.Postgres.Name,
		)
		pool, err := database.Connect(ctx, cfg.Storage.Postgres)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// createHandler serves metrics and health endpoints.
func createHandler(metricsPath string, reg *metrics.Registry, st store.Store, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, reg.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// A cheap read exercises the storage backend.
		if _, err := st.Categories(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["store"] = map[string]string{
				"status": "error",
				"error":  err.Error(),
			}
		} else {
			health.Components["store"] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
