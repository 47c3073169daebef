// Package pipeline defines core types shared across the collection and
// transformation subsystems.
package pipeline

import (
	"fmt"
	"time"
)

// Target is one URL plus the country it represents, the unit of work for one fetch.
type Target struct {
	URL     string `json:"url"`
	Country string `json:"country"`
}

// FailureKind classifies why a target produced no record.
type FailureKind string

// Failure kinds recorded in the run summary.
const (
	FailureTimeout    FailureKind = "timeout"
	FailureConnection FailureKind = "connection"
	FailureHTTPStatus FailureKind = "http_status"
	FailureBadURL     FailureKind = "bad_url"
	FailureParse      FailureKind = "parse"
)

// FetchError is returned by a Fetcher when a target could not be retrieved.
// Kind drives both retry policy and summary accounting.
type FetchError struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch failed (%s, status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch failed (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether a retry could plausibly succeed. Timeouts,
// connection errors, 5xx and 429 responses are transient; every other
// HTTP status and malformed URLs are permanent.
func (e *FetchError) Transient() bool {
	switch e.Kind {
	case FailureTimeout, FailureConnection:
		return true
	case FailureHTTPStatus:
		return e.StatusCode >= 500 || e.StatusCode == 429
	default:
		return false
	}
}

// FetchResponse is the result returned by a Fetcher on success.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// ExtractResult carries what the field extractor discovered on one page.
// Fields is schema-less: keys are the label texts found in the markup.
type ExtractResult struct {
	CountryName string
	Fields      map[string]string
}

// RawRecord is the unvalidated field/value mapping extracted from one
// successfully fetched page.
type RawRecord struct {
	Target      Target            `json:"target"`
	CountryName string            `json:"country_name"`
	Fields      map[string]string `json:"fields"`
	FetchedAt   time.Time         `json:"fetched_at"`
}

// Value is a normalized metric value. Missing values have Valid=false and
// a zero Number. Currency marks values that carried a currency symbol in
// the source text; it never changes the numeric result.
type Value struct {
	Number   float64
	Currency bool
	Valid    bool
}

// Missing is the explicit marker for values that could not be normalized.
var Missing = Value{}

// Num builds a plain valid numeric value.
func Num(f float64) Value { return Value{Number: f, Valid: true} }

// CleanRecord is a RawRecord with every value normalized to numeric or Missing.
type CleanRecord struct {
	Target      Target
	CountryName string
	Values      map[string]Value
	FetchedAt   time.Time
}

// DerivedRecord holds the per-country KPI mapping computed from a CleanRecord
// and the peer aggregate.
type DerivedRecord struct {
	CountryName string
	KPIs        map[string]Value
}
