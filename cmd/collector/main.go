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

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polyflow/updown-data/internal/api"
	"github.com/polyflow/updown-data/internal/book"
	"github.com/polyflow/updown-data/internal/config"
	"github.com/polyflow/updown-data/internal/database"
	"github.com/polyflow/updown-data/internal/discovery"
	"github.com/polyflow/updown-data/internal/market"
	"github.com/polyflow/updown-data/internal/model"
	"github.com/polyflow/updown-data/internal/poller"
	"github.com/polyflow/updown-data/internal/store"
	"github.com/polyflow/updown-data/internal/stream"
	"github.com/polyflow/updown-data/internal/version"
	"github.com/polyflow/updown-data/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/collector.local.yaml", "path to config file")
	flag.Parse()

	// Local .env files carry credentials in development; absence is fine.
	godotenv.Load()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting collector",
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

	instanceID := cfg.Instance.ID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	logger.Info("configuration loaded",
		"instance_id", instanceID,
		"gamma_url", cfg.API.GammaURL,
		"clob_url", cfg.API.ClobURL,
		"classes", cfg.Discovery.Classes,
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

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	db := store.New(pool, logger)
	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	logger.Info("database connected")

	// Create API client
	apiClient := api.NewClient(
		cfg.API.GammaURL,
		cfg.API.ClobURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout.Std()),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff.Std()),
	)

	// Shared in-memory state
	registry := market.NewRegistry()
	books := book.NewStore()
	ticks := writer.New(books, registry, db, logger)

	// Snapshot poller
	snapshotPoller := poller.New(poller.Config{
		Interval:    cfg.Poller.Interval.Std(),
		Concurrency: cfg.Poller.Concurrency,
		Timeout:     cfg.Poller.Timeout.Std(),
	}, apiClient, registry, books, ticks, logger)

	// Delta stream
	deltaStream := stream.New(stream.Config{
		URL:              cfg.Stream.URL,
		RefreshInterval:  cfg.Stream.RefreshInterval.Std(),
		ReconnectDelay:   cfg.Stream.ReconnectDelay.Std(),
		PingInterval:     cfg.Stream.PingInterval.Std(),
		HandshakeTimeout: cfg.Stream.HandshakeTimeout.Std(),
	}, registry, books, ticks, logger)

	// One discovery loop per window class
	var discoveries []*discovery.Discovery
	for _, class := range cfg.Discovery.Classes {
		d := discovery.New(discovery.Config{
			Class:      class,
			SlugPrefix: cfg.Discovery.SlugPrefix,
			Interval:   cfg.Discovery.Interval.Std(),
			Grace:      cfg.Discovery.Grace.Std(),
			Timeout:    cfg.API.Timeout.Std(),
		}, apiClient, registry, books, ticks, db, logger)
		discoveries = append(discoveries, d)
	}

	// Health and metrics server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(cfg.Metrics.Path, db, registry, logger),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Start components: poller and stream first so books fill as soon
	// as discovery registers a market.
	if err := snapshotPoller.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}
	if err := deltaStream.Start(ctx); err != nil {
		logger.Error("failed to start stream", "error", err)
		os.Exit(1)
	}
	for _, d := range discoveries {
		if err := d.Start(ctx); err != nil {
			logger.Error("failed to start discovery", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("collector running",
		"instance_id", instanceID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Discovery first so nothing new registers, then the feeds, then
	// the HTTP server.
	for _, d := range discoveries {
		d.Stop(shutdownCtx)
	}
	deltaStream.Stop(shutdownCtx)
	snapshotPoller.Stop(shutdownCtx)
	healthServer.Shutdown(shutdownCtx)

	logger.Info("collector stopped")
}

// createHealthHandler creates the HTTP handler for health checks,
// metrics, and debug endpoints.
func createHealthHandler(metricsPath string, db *store.Store, registry *market.Registry, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, promhttp.Handler())

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

		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		health.Components["registry"] = map[string]any{
			"markets": registry.Len(),
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/markets", func(w http.ResponseWriter, r *http.Request) {
		markets := registry.Active("")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":   len(markets),
			"markets": markets,
		})
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		class := model.WindowClass(r.URL.Query().Get("type"))
		if class != "" && !class.Valid() {
			http.Error(w, "unknown market type", http.StatusBadRequest)
			return
		}

		stats, err := db.Stats(ctx, class)
		if err != nil {
			logger.Error("stats query failed", "error", err)
			http.Error(w, "stats unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})

	return mux
}
