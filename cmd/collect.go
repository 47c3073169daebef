package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gdmlabs/defense-metrics-pipeline/internal/collector"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/database"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/extractor"
	collyfetcher "github.com/gdmlabs/defense-metrics-pipeline/internal/fetcher/colly"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/pipeline"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/policy/retry"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/store"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/telemetry"
)

// newCollectCmd creates the 'collect' subcommand: fetch every target in the
// URL list, extract raw field/value records, and persist them with the run
// summary.
func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Fetches all target pages and persists the raw data table",
		RunE:  runCollect,
	}
}

func runCollect(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	targets, err := pipeline.LoadTargets(cfg.Paths.URLList)
	if err != nil {
		return fmt.Errorf("load targets: %w", err)
	}

	csvStore, err := store.NewCSVStore(cfg.Paths.OutputDir, logger)
	if err != nil {
		return fmt.Errorf("init output store: %w", err)
	}

	sinks := []pipeline.RawStore{csvStore}
	if cfg.DB.DSN != "" {
		pg, err := database.Connect(cmd.Context(), cfg.DB.DSN, logger)
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		defer pg.Close()
		sinks = append(sinks, pg)
	}

	telemetry.Init()
	if cfg.Metrics.Enabled {
		srv := telemetry.NewServer(cfg.Metrics.Addr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	fetcher := collyfetcher.New(
		collyfetcher.Config{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   cfg.Timeout(),
		},
		retry.New(retry.Config{
			MaxRetries: cfg.HTTP.MaxRetries,
			BaseDelay:  cfg.BackoffInitial(),
			MaxDelay:   cfg.BackoffMax(),
		}),
		logger,
	)

	coll := collector.New(
		fetcher,
		extractor.New(),
		fanoutStore(sinks),
		collector.Config{Delay: cfg.Delay()},
		nil,
		logger,
	)
	if cfg.Collector.SaveSnapshots {
		coll.WithSnapshots(csvStore)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, _, err := coll.Run(ctx, targets); err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	return nil
}

// fanoutStore writes the run output to every configured sink.
type fanoutStore []pipeline.RawStore

func (f fanoutStore) SaveRaw(ctx context.Context, records []pipeline.RawRecord, summary pipeline.Summary) error {
	for _, s := range f {
		if err := s.SaveRaw(ctx, records, summary); err != nil {
			return err
		}
	}
	return nil
}
