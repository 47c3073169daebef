package pipeline

import (
	"context"
	"time"
)

// Fetcher retrieves the markup for one target. Errors should be *FetchError
// so the orchestrator can classify them; any other error is treated as a
// connection failure.
type Fetcher interface {
	Fetch(ctx context.Context, target Target) (FetchResponse, error)
}

// Extractor parses fetched markup into a label/value mapping. A document
// whose structure is unrecognizable returns an error; a page that parses
// but is missing individual fields returns a smaller mapping, not an error.
type Extractor interface {
	Extract(markup []byte) (ExtractResult, error)
}

// RawStore persists the collected records and the run summary at the end of
// a run, never per item.
type RawStore interface {
	SaveRaw(ctx context.Context, records []RawRecord, summary Summary) error
}

// SnapshotStore optionally keeps raw markup per country for debugging.
type SnapshotStore interface {
	SaveSnapshot(country string, markup []byte) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock is the Clock used outside of tests.
type SystemClock struct{}

// Now returns the wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }
