package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdmlabs/defense-metrics-pipeline/internal/extractor"
	collyfetcher "github.com/gdmlabs/defense-metrics-pipeline/internal/fetcher/colly"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/normalizer"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/pipeline"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/policy/retry"
)

// fakeFetcher serves canned responses or errors keyed by URL.
type fakeFetcher struct {
	responses map[string]pipeline.FetchResponse
	errs      map[string]error
	calls     []string
}

func (f *fakeFetcher) Fetch(_ context.Context, target pipeline.Target) (pipeline.FetchResponse, error) {
	f.calls = append(f.calls, target.URL)
	if err, ok := f.errs[target.URL]; ok {
		return pipeline.FetchResponse{}, err
	}
	if resp, ok := f.responses[target.URL]; ok {
		return resp, nil
	}
	return pipeline.FetchResponse{URL: target.URL, StatusCode: 200, Body: []byte("<html><body><div>A: 1</div></body></html>")}, nil
}

// fakeExtractor returns a fixed field set, or an error for chosen bodies.
type fakeExtractor struct {
	failOn string
}

func (e *fakeExtractor) Extract(markup []byte) (pipeline.ExtractResult, error) {
	if e.failOn != "" && string(markup) == e.failOn {
		return pipeline.ExtractResult{}, extractor.ErrUnrecognizedDocument
	}
	return pipeline.ExtractResult{
		CountryName: "Testland",
		Fields:      map[string]string{"Tanks": "5"},
	}, nil
}

type capturingStore struct {
	records []pipeline.RawRecord
	summary pipeline.Summary
	saved   bool
}

func (s *capturingStore) SaveRaw(_ context.Context, records []pipeline.RawRecord, summary pipeline.Summary) error {
	s.records = records
	s.summary = summary
	s.saved = true
	return nil
}

func targetList(n int) []pipeline.Target {
	targets := make([]pipeline.Target, 0, n)
	for i := range n {
		targets = append(targets, pipeline.Target{
			URL:     fmt.Sprintf("https://example.com/detail.php?country_id=c%d", i),
			Country: fmt.Sprintf("c%d", i),
		})
	}
	return targets
}

func TestRunConservationLaw(t *testing.T) {
	t.Parallel()

	targets := targetList(5)
	fetcher := &fakeFetcher{
		errs: map[string]error{
			targets[1].URL: &pipeline.FetchError{Kind: pipeline.FailureTimeout, Err: errors.New("deadline")},
			targets[3].URL: &pipeline.FetchError{Kind: pipeline.FailureHTTPStatus, StatusCode: 404, Err: errors.New("gone")},
		},
	}
	c := New(fetcher, &fakeExtractor{}, nil, Config{}, nil, nil)

	records, summary, err := c.Run(context.Background(), targets)
	require.NoError(t, err)

	assert.Len(t, records, 3)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 2, summary.FetchFails)
	assert.Equal(t, 0, summary.ParseFails)
	// Output rows plus failure counts equal the input target count exactly.
	assert.Equal(t, len(targets), len(records)+summary.FetchFails+summary.ParseFails)
	assert.Equal(t, len(targets), summary.Attempted())
}

func TestRunSingleFailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	targets := targetList(4)
	fetcher := &fakeFetcher{
		errs: map[string]error{
			targets[0].URL: &pipeline.FetchError{Kind: pipeline.FailureConnection, Err: errors.New("refused")},
		},
	}
	c := New(fetcher, &fakeExtractor{}, nil, Config{}, nil, nil)

	records, summary, err := c.Run(context.Background(), targets)
	require.NoError(t, err)

	assert.Len(t, fetcher.calls, 4, "all targets attempted despite the first failing")
	assert.Len(t, records, 3)
	assert.Equal(t, 1, summary.FetchFails)
}

func TestRunParseFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	targets := targetList(3)
	garbage := "not html"
	fetcher := &fakeFetcher{
		responses: map[string]pipeline.FetchResponse{
			targets[1].URL: {URL: targets[1].URL, StatusCode: 200, Body: []byte(garbage)},
		},
	}
	c := New(fetcher, &fakeExtractor{failOn: garbage}, nil, Config{}, nil, nil)

	records, summary, err := c.Run(context.Background(), targets)
	require.NoError(t, err)

	assert.Len(t, records, 2)
	assert.Equal(t, 1, summary.ParseFails)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, pipeline.FailureParse, summary.Failures[0].Kind)
}

func TestRunPreservesInputOrder(t *testing.T) {
	t.Parallel()

	targets := targetList(6)
	fetcher := &fakeFetcher{}
	c := New(fetcher, &fakeExtractor{}, nil, Config{}, nil, nil)

	records, _, err := c.Run(context.Background(), targets)
	require.NoError(t, err)

	require.Len(t, records, 6)
	for i, rec := range records {
		assert.Equal(t, targets[i].URL, rec.Target.URL)
	}
}

func TestRunCancellationFlushesPartialResults(t *testing.T) {
	t.Parallel()

	targets := targetList(10)
	ctx, cancel := context.WithCancel(context.Background())

	fetcher := &cancelAfterFetcher{cancel: cancel, after: 3}
	store := &capturingStore{}
	c := New(fetcher, &fakeExtractor{}, store, Config{}, nil, nil)

	records, summary, err := c.Run(ctx, targets)
	require.NoError(t, err)

	assert.True(t, summary.Canceled)
	assert.Len(t, records, 3)
	assert.True(t, store.saved, "accumulated records flushed despite cancellation")
	assert.Len(t, store.records, 3)
	assert.Equal(t, 3, summary.Attempted(), "stops before starting the next target")
}

// cancelAfterFetcher cancels the run context after a fixed number of fetches.
type cancelAfterFetcher struct {
	cancel context.CancelFunc
	after  int
	count  int
}

func (f *cancelAfterFetcher) Fetch(_ context.Context, target pipeline.Target) (pipeline.FetchResponse, error) {
	f.count++
	if f.count == f.after {
		f.cancel()
	}
	return pipeline.FetchResponse{URL: target.URL, StatusCode: 200, Body: []byte("ok")}, nil
}

func TestRunPersistsThroughStore(t *testing.T) {
	t.Parallel()

	store := &capturingStore{}
	c := New(&fakeFetcher{}, &fakeExtractor{}, store, Config{}, nil, nil)

	_, summary, err := c.Run(context.Background(), targetList(2))
	require.NoError(t, err)

	assert.True(t, store.saved)
	assert.Equal(t, summary.RunID, store.summary.RunID)
	assert.NotEmpty(t, summary.RunID)
	assert.Len(t, store.records, 2)
}

func TestRunStoreFailureSurfaces(t *testing.T) {
	t.Parallel()

	c := New(&fakeFetcher{}, &fakeExtractor{}, failingStore{}, Config{}, nil, nil)
	_, _, err := c.Run(context.Background(), targetList(1))
	require.Error(t, err)
}

type failingStore struct{}

func (failingStore) SaveRaw(context.Context, []pipeline.RawRecord, pipeline.Summary) error {
	return errors.New("disk full")
}

// TestEndToEndScenario runs the real fetcher and extractor against three
// local pages: one that times out, one with unparseable markup, and one
// valid metrics page.
func TestEndToEndScenario(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte("<html><body>late</body></html>"))
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("plain text, no markup here"))
	})
	mux.HandleFunc("/good", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>United States Military Strength 2025</title></head>
<body>
<div>Total Aircraft: 13,300</div>
<div>Defense Budget: $916.9 Billion</div>
</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := collyfetcher.New(
		collyfetcher.Config{Timeout: 100 * time.Millisecond},
		retry.New(retry.Config{MaxRetries: 0}),
		nil,
	)
	c := New(fetcher, extractor.New(), nil, Config{}, nil, nil)

	targets := []pipeline.Target{
		{URL: srv.URL + "/slow?country_id=slowland", Country: "slowland"},
		{URL: srv.URL + "/garbage?country_id=junkland", Country: "junkland"},
		{URL: srv.URL + "/good?country_id=united-states-of-america", Country: "united-states-of-america"},
	}

	records, summary, err := c.Run(context.Background(), targets)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.FetchFails)
	assert.Equal(t, 1, summary.ParseFails)
	assert.InDelta(t, 33.3, summary.SuccessRate(), 0.1)

	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "United States", rec.CountryName)

	clean := normalizer.New().Clean(rec)
	assert.Equal(t, 13300.0, clean.Values["Total Aircraft"].Number)
	assert.InEpsilon(t, 916.9e9, clean.Values["Defense Budget"].Number, 1e-9)
	assert.True(t, clean.Values["Defense Budget"].Currency)
}
