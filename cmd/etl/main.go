package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"log/slog"

	"github.com/agencydesk/catalyst-etl/internal/catalyst"
	"github.com/agencydesk/catalyst-etl/internal/config"
	"github.com/agencydesk/catalyst-etl/internal/database"
	"github.com/agencydesk/catalyst-etl/internal/extract"
	"github.com/agencydesk/catalyst-etl/internal/logging"
	"github.com/agencydesk/catalyst-etl/internal/metrics"
	"github.com/agencydesk/catalyst-etl/internal/scheduler"
	"github.com/agencydesk/catalyst-etl/internal/server"
	"github.com/agencydesk/catalyst-etl/internal/transform"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting catalyst-etl")

	ctx := context.Background()

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.Database.URL

	logger.Info("connecting to database")
	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	if err := database.RunMigrations(db, "./migrations", logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	rawStore := database.NewPostgresRawStore(db, logger)
	runRepo := database.NewPostgresRunRepository(db)

	tokens := catalyst.NewTokenManager(cfg.Catalyst, logger)
	tokens.OnRefresh(collector.IncTokenRefresh)
	client := catalyst.NewClient(cfg.Catalyst, tokens, logger)

	extractor := extract.New(
		extract.ClientFetcher{Client: client},
		rawStore,
		collector,
		logger,
		extract.Options{
			BatchSize:         cfg.Extract.BatchSize,
			PageSize:          cfg.Extract.PageSize,
			DefaultLocationID: cfg.Extract.DefaultLocationID,
		},
	)
	logger.Info("extractor initialized")

	prodStore := database.NewPostgresProductionStore(db)
	transformer := transform.NewService(rawStore, prodStore, logger)

	extractScheduler := scheduler.NewExtractScheduler(
		extractor, rawStore, runRepo, transformer, logger,
		cfg.Extract.RunInterval, cfg.Extract.ResourceTimeout)
	go extractScheduler.Start(ctx)

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.HealthCheck(r.Context(), db); err != nil {
			logger.Error("health check failed", "error", err)
			http.Error(w, `{"status":"unhealthy"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"catalyst-etl","status":"ready","version":"0.1.0"}`))
	})

	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		runs, err := runRepo.List(r.Context(), limit)
		if err != nil {
			logger.Error("failed to list runs", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(runs); err != nil {
			logger.Error("failed to encode runs", "error", err)
		}
	})

	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(database.Stats(db)); err != nil {
			logger.Error("failed to encode stats", "error", err)
		}
	})

	mux.Handle("/metrics", collector.Handler())

	srv := server.New(cfg.Server, logger, collector.InstrumentHandler(mux))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("catalyst-etl started successfully", "port", cfg.Server.Port)

	waitForSignal(logger)

	logger.Info("shutting down")
	extractScheduler.Stop()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
