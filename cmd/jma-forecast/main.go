package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/i474232898/jma-forecast/internal/area"
	"github.com/i474232898/jma-forecast/internal/config"
	"github.com/i474232898/jma-forecast/internal/forecast"
	"github.com/i474232898/jma-forecast/internal/jma"
	"github.com/i474232898/jma-forecast/internal/observability"
	"github.com/i474232898/jma-forecast/internal/store"
)

const appName = "jma-forecast"

// app holds the components shared by every command.
type app struct {
	cfg     *config.AppConfig
	logger  *zap.SugaredLogger
	metrics *observability.Metrics
	client  *jma.Client
	service *forecast.Service
	areas   *area.Loader

	closer io.Closer
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()
	client := jma.NewClient(cfg.JMABaseURL, cfg.HTTPTimeout, metrics, logger)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		client:  client,
	}

	var (
		st    forecast.Store
		cache area.Cache
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		st = store.NewMemoryStore()
		cache = &area.MemoryCache{}
	default:
		sqliteStore, err := store.NewSQLiteStore(cfg.DBPath, logger)
		if err != nil {
			return nil, err
		}
		st, cache, a.closer = sqliteStore, sqliteStore, sqliteStore
	}

	a.service = forecast.NewService(st, client, logger, metrics)
	a.areas = area.NewLoader(cache, client, logger)
	return a, nil
}

func (a *app) Close() {
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			a.logger.Warnw("closing store", "error", err)
		}
	}
	_ = a.logger.Sync()
}

// run builds the app, runs fn and releases resources.
func run(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}

func main() {
	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "JMA forecast cache",
		Long:          "Fetches JMA forecast documents, stores them per area and date and serves reconciled forecasts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSyncCmd(),
		newDatesCmd(),
		newShowCmd(),
		newRegionsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, forecast.ErrUpstreamFetch) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
