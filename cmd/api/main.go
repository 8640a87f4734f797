// Package main provides the entry point for the deployment pipeline server.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/automakerhq/automaker/internal/api"
	"github.com/automakerhq/automaker/internal/events"
	"github.com/automakerhq/automaker/internal/history"
	"github.com/automakerhq/automaker/internal/pipeline"
	"github.com/automakerhq/automaker/pkg/config"
	"github.com/automakerhq/automaker/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Exit(1)
	}

	log := logger.New(logger.ParseLevel(cfg.LogLevel), cfg.LogJSON)

	// Deployment history: PostgreSQL when configured, in-memory otherwise.
	var historyStore history.Store = history.NewMemoryStore()
	if cfg.DatabaseDSN != "" {
		db, err := sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			log.Error("failed to open database connection", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pg, err := history.NewPostgresStore(context.Background(), db, log)
		if err != nil {
			log.Error("failed to initialize history store", "error", err)
			os.Exit(1)
		}
		historyStore = pg
		log.Info("using PostgreSQL deployment history")
	}

	broker := events.NewBroker(log)
	configs := pipeline.NewConfigStore(log)
	orchestrator := pipeline.NewOrchestrator(configs, log,
		pipeline.WithSink(broker),
		pipeline.WithHistory(historyStore),
		pipeline.WithProbe(pipeline.NewHealthProbeWithInterval(cfg.Pipeline.HealthProbeInterval, log)),
	)

	server := api.NewServer(cfg, orchestrator, configs, broker, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	log.Info("starting deployment pipeline server",
		"host", cfg.APIHost,
		"port", cfg.APIPort,
	)

	if err := server.Start(ctx); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	// Give time for graceful shutdown
	time.Sleep(100 * time.Millisecond)
	log.Info("server stopped")
}
