package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tunedrift/tunedrift/internal/api"
	"github.com/tunedrift/tunedrift/internal/config"
	"github.com/tunedrift/tunedrift/internal/database"
	"github.com/tunedrift/tunedrift/internal/logger"
	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and background services",
	RunE:  runServe,
}

func newLogger(cfg *config.Config, streaming bool) *logger.Logger {
	return logger.New(logger.Config{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		Path:            cfg.Logging.Path,
		MaxSizeMB:       cfg.Logging.MaxSizeMB,
		MaxBackups:      cfg.Logging.MaxBackups,
		MaxAgeDays:      cfg.Logging.MaxAgeDays,
		Compress:        cfg.Logging.Compress,
		EnableStreaming: streaming,
		BufferSize:      1000,
	})
}

// openDatabase opens and migrates the library database.
func openDatabase(cfg *config.Config, log *logger.Logger) (*database.DB, error) {
	db, err := database.New(cfg.Database.Path, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg, true)
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Str("network", cfg.Network.Mode).
		Str("library", cfg.Library.Root).
		Msg("starting TuneDrift")

	db, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics.Register(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub(log.Logger)
	go hub.Run(ctx)
	log.SetBroadcastHub(hub)

	server, err := api.NewServer(db.Conn(), hub, cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	server.SetLogsProvider(log)

	if err := server.Run(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("unclean shutdown")
	}

	log.Info().Msg("TuneDrift stopped")
	return nil
}
