package store

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdmlabs/defense-metrics-pipeline/internal/pipeline"
)

func newStore(t *testing.T) *CSVStore {
	t.Helper()
	s, err := NewCSVStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func sampleRawRecords() []pipeline.RawRecord {
	fetched := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []pipeline.RawRecord{
		{
			CountryName: "United States",
			Target:      pipeline.Target{URL: "https://example.com/detail.php?country_id=united-states-of-america", Country: "united-states-of-america"},
			FetchedAt:   fetched,
			Fields: map[string]string{
				"Defense Budget": "$916.9 Billion",
				"Total Aircraft": "13,300",
			},
		},
		{
			CountryName: "France",
			Target:      pipeline.Target{URL: "https://example.com/detail.php?country_id=france", Country: "france"},
			FetchedAt:   fetched,
			Fields: map[string]string{
				"Defense Budget": "$55 Billion",
				"Submarines":     "9",
			},
		},
	}
}

func TestSaveRawThenLoadRawRoundTrip(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	records := sampleRawRecords()
	summary := pipeline.Summary{RunID: "run-1", Total: 2, Succeeded: 2}

	require.NoError(t, s.SaveRaw(context.Background(), records, summary))

	loaded, err := s.LoadRaw(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	us := loaded[0]
	assert.Equal(t, "United States", us.CountryName)
	assert.Equal(t, "united-states-of-america", us.Target.Country)
	assert.Equal(t, records[0].FetchedAt, us.FetchedAt)
	assert.Equal(t, records[0].Fields, us.Fields)

	// France never reported aircraft, so the key must be absent rather
	// than mapped to an empty string.
	fr := loaded[1]
	_, present := fr.Fields["Total Aircraft"]
	assert.False(t, present)
	assert.Equal(t, "9", fr.Fields["Submarines"])
}

func TestSaveRawColumnsAreUnionOfLabels(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.SaveRaw(context.Background(), sampleRawRecords(), pipeline.Summary{RunID: "run-2"}))

	f, err := os.Open(filepath.Join(s.dir, RawFile))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t,
		[]string{"country_name", "url", "fetched_at", "Defense Budget", "Submarines", "Total Aircraft"},
		rows[0],
	)
}

func TestSaveRawWritesSummaryJSON(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	summary := pipeline.Summary{RunID: "run-3", Total: 5, Succeeded: 4, FetchFails: 1}
	require.NoError(t, s.SaveRaw(context.Background(), nil, summary))

	payload, err := os.ReadFile(filepath.Join(s.dir, SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"run-3"`)
	assert.Contains(t, string(payload), `"total": 5`)
}

func TestLoadRawMissingFile(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	_, err := s.LoadRaw(context.Background())
	require.Error(t, err)
}

func TestSaveCleanFormatsNumbersAndGaps(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	fetched := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []pipeline.CleanRecord{
		{
			CountryName: "United States",
			Target:      pipeline.Target{URL: "https://example.com/detail.php?country_id=united-states-of-america"},
			FetchedAt:   fetched,
			Values: map[string]pipeline.Value{
				"Defense Budget": pipeline.Num(916.9e9),
				"Total Aircraft": pipeline.Missing,
			},
		},
	}
	require.NoError(t, s.SaveClean(context.Background(), records))

	f, err := os.Open(filepath.Join(s.dir, CleanFile))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"country_name", "url", "fetched_at", "Defense Budget", "Total Aircraft"}, rows[0])
	assert.Equal(t, "916900000000", rows[1][3], "plain notation, no exponent")
	assert.Equal(t, "", rows[1][4], "missing values are empty cells")
}

func TestSaveDerived(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	records := []pipeline.DerivedRecord{
		{CountryName: "A", KPIs: map[string]pipeline.Value{"budget_to_gdp_ratio": pipeline.Num(2.5)}},
		{CountryName: "B", KPIs: map[string]pipeline.Value{"budget_to_gdp_ratio": pipeline.Missing}},
	}
	require.NoError(t, s.SaveDerived(context.Background(), records))

	f, err := os.Open(filepath.Join(s.dir, DerivedFile))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"country_name", "budget_to_gdp_ratio"}, rows[0])
	assert.Equal(t, []string{"A", "2.5"}, rows[1])
	assert.Equal(t, []string{"B", ""}, rows[2])
}

func TestSaveSnapshot(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.SaveSnapshot("france", []byte("<html><body>fr</body></html>")))

	payload, err := os.ReadFile(filepath.Join(s.dir, SnapshotDir, "france.html"))
	require.NoError(t, err)
	assert.Contains(t, string(payload), "fr")

	// A blank slug still gets a file rather than an unnamed path.
	require.NoError(t, s.SaveSnapshot("", []byte("x")))
	_, err = os.Stat(filepath.Join(s.dir, SnapshotDir, "unknown.html"))
	require.NoError(t, err)
}

func TestSaveRawCanceledContext(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.SaveRaw(ctx, sampleRawRecords(), pipeline.Summary{})
	require.Error(t, err)
}
