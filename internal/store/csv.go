// Package store persists pipeline output as CSV tables plus a JSON run
// summary, mirroring the layout consumed by the dashboard stage.
package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/gdmlabs/defense-metrics-pipeline/internal/pipeline"
)

// Output file names under the store directory.
const (
	RawFile     = "raw_data.csv"
	CleanFile   = "clean_data.csv"
	DerivedFile = "kpi_data.csv"
	SummaryFile = "run_summary.json"
	SnapshotDir = "html_pages"
)

// Fixed leading columns of the raw and clean tables.
var identityColumns = []string{"country_name", "url", "fetched_at"}

// CSVStore writes and reads the pipeline tables under one directory.
type CSVStore struct {
	dir    string
	logger *zap.Logger
}

// NewCSVStore creates the output directory if needed.
func NewCSVStore(dir string, logger *zap.Logger) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVStore{dir: dir, logger: logger}, nil
}

// SaveRaw writes the raw table and the run summary in one shot at the end
// of a run. Columns are the identity columns followed by the sorted union
// of discovered labels; rows missing a label leave that cell empty.
func (s *CSVStore) SaveRaw(ctx context.Context, records []pipeline.RawRecord, summary pipeline.Summary) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}

	labels := unionLabels(records, func(r pipeline.RawRecord) []string {
		return mapKeys(r.Fields)
	})
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := []string{rec.CountryName, rec.Target.URL, rec.FetchedAt.Format(time.RFC3339)}
		for _, label := range labels {
			row = append(row, rec.Fields[label])
		}
		rows = append(rows, row)
	}
	if err := s.writeCSV(RawFile, append(identityColumns, labels...), rows); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	path := filepath.Join(s.dir, SummaryFile)
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write summary %s: %w", path, err)
	}
	s.logger.Info("raw table persisted",
		zap.Int("rows", len(records)),
		zap.Int("columns", len(labels)+len(identityColumns)),
	)
	return nil
}

// LoadRaw reads the raw table back for the transform stage. Empty cells are
// absent keys, not empty values.
func (s *CSVStore) LoadRaw(ctx context.Context) ([]pipeline.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	path := filepath.Join(s.dir, RawFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw table %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read raw table %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("raw table %s is empty", path)
	}

	header := rows[0]
	if len(header) < len(identityColumns) {
		return nil, fmt.Errorf("raw table %s: unexpected header %v", path, header)
	}
	records := make([]pipeline.RawRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		fetchedAt, _ := time.Parse(time.RFC3339, row[2])
		rec := pipeline.RawRecord{
			CountryName: row[0],
			Target:      pipeline.Target{URL: row[1], Country: pipeline.CountrySlug(row[1])},
			FetchedAt:   fetchedAt,
			Fields:      make(map[string]string),
		}
		for i := len(identityColumns); i < len(row) && i < len(header); i++ {
			if row[i] != "" {
				rec.Fields[header[i]] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// SaveClean writes the numeric table. Missing values are empty cells.
func (s *CSVStore) SaveClean(ctx context.Context, records []pipeline.CleanRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	labels := unionLabels(records, func(r pipeline.CleanRecord) []string {
		return mapKeys(r.Values)
	})
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := []string{rec.CountryName, rec.Target.URL, rec.FetchedAt.Format(time.RFC3339)}
		for _, label := range labels {
			row = append(row, formatValue(rec.Values[label]))
		}
		rows = append(rows, row)
	}
	return s.writeCSV(CleanFile, append(identityColumns, labels...), rows)
}

// SaveDerived writes one row per country with KPI columns.
func (s *CSVStore) SaveDerived(ctx context.Context, records []pipeline.DerivedRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	labels := unionLabels(records, func(r pipeline.DerivedRecord) []string {
		return mapKeys(r.KPIs)
	})
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := []string{rec.CountryName}
		for _, label := range labels {
			row = append(row, formatValue(rec.KPIs[label]))
		}
		rows = append(rows, row)
	}
	return s.writeCSV(DerivedFile, append([]string{"country_name"}, labels...), rows)
}

// SaveSnapshot keeps the fetched markup for one country under html_pages/.
func (s *CSVStore) SaveSnapshot(country string, markup []byte) error {
	if country == "" {
		country = "unknown"
	}
	dir := filepath.Join(s.dir, SnapshotDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, country+".html")
	if err := os.WriteFile(path, markup, 0o600); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

func (s *CSVStore) writeCSV(name string, header []string, rows [][]string) error {
	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header to %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows to %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

func formatValue(v pipeline.Value) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Number, 'f', -1, 64)
}

func unionLabels[T any](records []T, keys func(T) []string) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for _, k := range keys(rec) {
			seen[k] = struct{}{}
		}
	}
	labels := make([]string, 0, len(seen))
	for k := range seen {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return labels
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

var (
	_ pipeline.RawStore      = (*CSVStore)(nil)
	_ pipeline.SnapshotStore = (*CSVStore)(nil)
)
