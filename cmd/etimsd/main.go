// Command etimsd runs the fiscal transmission server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirosfoundation/go-etims/internal/config"
	"github.com/sirosfoundation/go-etims/internal/credentials"
	"github.com/sirosfoundation/go-etims/internal/server"
	"github.com/sirosfoundation/go-etims/internal/storage"
	"github.com/sirosfoundation/go-etims/internal/storage/memory"
	"github.com/sirosfoundation/go-etims/internal/storage/mongodb"
	"github.com/sirosfoundation/go-etims/internal/storage/sqlite"
	"github.com/sirosfoundation/go-etims/pkg/device"
	"github.com/sirosfoundation/go-etims/pkg/oscu"
	"github.com/sirosfoundation/go-etims/pkg/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	creds, err := credentials.NewProvider(&cfg.Credentials)
	if err != nil {
		return fmt.Errorf("opening credentials: %w", err)
	}

	submitter, err := oscu.NewClient(&oscu.Config{
		Store:    store,
		Counters: store,
		Submitter: transport.NewClient(&transport.Config{
			Timeout:  cfg.Transport.Timeout,
			BaseURLs: baseURLOverrides(cfg),
			Logger:   logger,
		}),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	srv, err := server.New(cfg, store, creds, submitter, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(fmt.Sprintf(":%d", cfg.Server.Port))
	}()

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "memory":
		return memory.NewStore(), nil
	case "mongodb":
		return mongodb.NewStore(ctx, &mongodb.Config{
			URI:      cfg.Storage.MongoDB.URI,
			Database: cfg.Storage.MongoDB.Database,
		})
	case "sqlite":
		return sqlite.NewStore(ctx, &sqlite.Config{
			Path: cfg.Storage.SQLite.Path,
		})
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
}

func baseURLOverrides(cfg *config.Config) map[device.Environment]string {
	if len(cfg.Transport.BaseURLs) == 0 {
		return nil
	}
	urls := make(map[device.Environment]string, len(cfg.Transport.BaseURLs))
	for env, base := range cfg.Transport.BaseURLs {
		urls[device.Environment(env)] = base
	}
	return urls
}
