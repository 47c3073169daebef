// Package collector implements the sequential collection loop: fetch each
// target, extract its fields, and aggregate records plus a run summary.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gdmlabs/defense-metrics-pipeline/internal/pipeline"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/policy/ratelimit"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/telemetry"
)

// successRateTarget is the rate below which the final summary logs a warning.
const successRateTarget = 95.0

// Config holds the orchestrator knobs.
type Config struct {
	// Delay is the minimum pause between consecutive requests.
	Delay time.Duration
}

// Collector iterates the target list in input order, invoking the fetcher
// and extractor per entry. It exclusively owns the in-progress record list
// and summary; there are no concurrent writers by design.
type Collector struct {
	fetcher   pipeline.Fetcher
	extractor pipeline.Extractor
	store     pipeline.RawStore
	snapshots pipeline.SnapshotStore
	limiter   *ratelimit.Limiter
	clock     pipeline.Clock
	logger    *zap.Logger
}

// New constructs a Collector. store may be nil when persistence is handled
// elsewhere; clock and logger fall back to real implementations.
func New(
	fetcher pipeline.Fetcher,
	extractor pipeline.Extractor,
	store pipeline.RawStore,
	cfg Config,
	clock pipeline.Clock,
	logger *zap.Logger,
) *Collector {
	if clock == nil {
		clock = pipeline.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		limiter:   ratelimit.New(cfg.Delay),
		clock:     clock,
		logger:    logger,
	}
}

// WithSnapshots enables raw markup persistence per successful fetch.
func (c *Collector) WithSnapshots(snapshots pipeline.SnapshotStore) *Collector {
	c.snapshots = snapshots
	return c
}

// Run processes every target and returns the collected records with the run
// summary. Item-level failures are recorded and skipped, never fatal; the
// only error returned is a persistence failure. Cancellation stops before
// the next target and still flushes whatever has been accumulated.
func (c *Collector) Run(ctx context.Context, targets []pipeline.Target) ([]pipeline.RawRecord, pipeline.Summary, error) {
	summary := pipeline.Summary{
		RunID:     uuid.NewString(),
		StartedAt: c.clock.Now(),
		Total:     len(targets),
	}
	c.logger.Info("collection run starting",
		zap.String("run_id", summary.RunID),
		zap.Int("targets", summary.Total),
	)

	records := make([]pipeline.RawRecord, 0, len(targets))
	for _, target := range targets {
		if ctx.Err() != nil {
			summary.Canceled = true
			c.logger.Warn("run canceled, flushing partial results",
				zap.String("run_id", summary.RunID),
				zap.Int("attempted", summary.Attempted()),
			)
			break
		}
		if err := c.limiter.Wait(ctx); err != nil {
			summary.Canceled = true
			break
		}
		if rec, ok := c.processTarget(ctx, target, &summary); ok {
			records = append(records, rec)
		}
	}
	summary.FinishedAt = c.clock.Now()

	c.logFinal(summary)

	if c.store != nil {
		// Flush even when the run context was canceled.
		if err := c.store.SaveRaw(context.WithoutCancel(ctx), records, summary); err != nil {
			return records, summary, fmt.Errorf("persist run %s: %w", summary.RunID, err)
		}
	}
	return records, summary, nil
}

// processTarget yields exactly one outcome per target: a record, a fetch
// failure, or a parse failure. Each outcome is logged and counted.
func (c *Collector) processTarget(ctx context.Context, target pipeline.Target, summary *pipeline.Summary) (pipeline.RawRecord, bool) {
	resp, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		kind := pipeline.FailureConnection
		var fe *pipeline.FetchError
		if errors.As(err, &fe) {
			kind = fe.Kind
		}
		summary.RecordFailure(target, kind, err.Error())
		telemetry.CountOutcome("fetch_failure")
		c.logger.Warn("fetch failed",
			zap.String("country", target.Country),
			zap.String("url", target.URL),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return pipeline.RawRecord{}, false
	}
	telemetry.ObserveFetchDuration(resp.Duration)

	if c.snapshots != nil {
		if err := c.snapshots.SaveSnapshot(target.Country, resp.Body); err != nil {
			c.logger.Warn("snapshot save failed", zap.String("country", target.Country), zap.Error(err))
		}
	}

	extracted, err := c.extractor.Extract(resp.Body)
	if err != nil {
		summary.RecordFailure(target, pipeline.FailureParse, err.Error())
		telemetry.CountOutcome("parse_failure")
		c.logger.Warn("parse failed",
			zap.String("country", target.Country),
			zap.String("url", target.URL),
			zap.Error(err),
		)
		return pipeline.RawRecord{}, false
	}

	name := extracted.CountryName
	if name == "" {
		name = pipeline.SlugToName(target.Country)
	}
	summary.RecordSuccess()
	telemetry.CountOutcome("success")
	telemetry.AddFieldsExtracted(len(extracted.Fields))
	c.logger.Info("page collected",
		zap.String("country", name),
		zap.Int("fields", len(extracted.Fields)),
		zap.Duration("fetch_duration", resp.Duration),
	)
	return pipeline.RawRecord{
		Target:      target,
		CountryName: name,
		Fields:      extracted.Fields,
		FetchedAt:   c.clock.Now(),
	}, true
}

func (c *Collector) logFinal(summary pipeline.Summary) {
	c.logger.Info("collection run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("fetch_failures", summary.FetchFails),
		zap.Int("parse_failures", summary.ParseFails),
		zap.Bool("canceled", summary.Canceled),
		zap.String("success_rate", fmt.Sprintf("%.1f%%", summary.SuccessRate())),
	)
	if !summary.Canceled && summary.SuccessRate() < successRateTarget {
		c.logger.Warn("success rate below target",
			zap.Float64("rate", summary.SuccessRate()),
			zap.Float64("target", successRateTarget),
		)
	}
}
