package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gdmlabs/defense-metrics-pipeline/internal/kpi"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/normalizer"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/pipeline"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/store"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/telemetry"
)

// newTransformCmd creates the 'transform' subcommand: normalize the raw
// table into numeric values and derive the per-country KPI table.
func newTransformCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transform",
		Short: "Normalizes the raw table and derives the KPI table",
		RunE:  runTransform,
	}
}

func runTransform(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	csvStore, err := store.NewCSVStore(cfg.Paths.OutputDir, logger)
	if err != nil {
		return fmt.Errorf("init output store: %w", err)
	}

	raw, err := csvStore.LoadRaw(cmd.Context())
	if err != nil {
		return fmt.Errorf("load raw table: %w", err)
	}
	logger.Info("raw table loaded", zap.Int("countries", len(raw)))

	telemetry.Init()
	norm := normalizer.New()
	cleans := make([]pipeline.CleanRecord, 0, len(raw))
	gapsByColumn := make(map[string]int)
	for _, rec := range raw {
		clean := norm.Clean(rec)
		for label, v := range clean.Values {
			if !v.Valid {
				gapsByColumn[label]++
				telemetry.CountNormalizationGap()
			}
		}
		cleans = append(cleans, clean)
	}
	logQualityReport(logger, len(cleans), gapsByColumn)

	derived := kpi.DeriveAll(cleans)

	if err := csvStore.SaveClean(cmd.Context(), cleans); err != nil {
		return fmt.Errorf("save clean table: %w", err)
	}
	if err := csvStore.SaveDerived(cmd.Context(), derived); err != nil {
		return fmt.Errorf("save derived table: %w", err)
	}

	logger.Info("transformation finished",
		zap.Int("countries", len(cleans)),
		zap.Int("derived_rows", len(derived)),
	)
	return nil
}

// logQualityReport logs per-column missing counts after normalization.
// Gaps are recorded as missing values, never failures.
func logQualityReport(logger *zap.Logger, rows int, gapsByColumn map[string]int) {
	if len(gapsByColumn) == 0 {
		logger.Info("no normalization gaps")
		return
	}
	columns := make([]string, 0, len(gapsByColumn))
	for c := range gapsByColumn {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	for _, c := range columns {
		logger.Warn("column has missing values",
			zap.String("column", c),
			zap.Int("missing", gapsByColumn[c]),
			zap.Int("rows", rows),
		)
	}
}
