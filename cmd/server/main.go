package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/civic_complaints/backend/internal/app"
	"github.com/civic_complaints/backend/internal/config"
	"github.com/civic_complaints/backend/internal/db"
	httpapi "github.com/civic_complaints/backend/internal/http"
)

// @title Complaint Triage API
// @version 1.0
// @description Classification, assignment and workload balancing for municipal complaints.
// @BasePath /
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := app.NewLogger(cfg, "triage-backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply schema")
	}

	a, err := app.New(ctx, cfg, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to assemble application")
	}
	defer a.Close()

	if err := a.Scheduler.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.Router(a),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	if err := a.Scheduler.Stop(ctxShutdown); err != nil {
		logger.Warn().Err(err).Msg("scheduler did not stop cleanly")
	}
	logger.Info().Msg("server stopped")
}
