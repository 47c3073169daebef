package pipeline

import "time"

// Failure records one skipped target in the run summary.
type Failure struct {
	Target Target      `json:"target"`
	Kind   FailureKind `json:"kind"`
	Detail string      `json:"detail"`
}

// Summary is the accumulator for one collection run. It is owned by the
// orchestrator while the run is in progress and returned by value when done,
// so there is no ambient global counter state.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	FetchFails int       `json:"fetch_failures"`
	ParseFails int       `json:"parse_failures"`
	Canceled   bool      `json:"canceled"`
	Failures   []Failure `json:"failures,omitempty"`
}

// RecordSuccess counts one target that produced a raw record.
func (s *Summary) RecordSuccess() { s.Succeeded++ }

// RecordFailure counts one skipped target under its failure kind.
func (s *Summary) RecordFailure(t Target, kind FailureKind, detail string) {
	if kind == FailureParse {
		s.ParseFails++
	} else {
		s.FetchFails++
	}
	s.Failures = append(s.Failures, Failure{Target: t, Kind: kind, Detail: detail})
}

// Attempted is the number of targets that yielded an outcome so far.
func (s *Summary) Attempted() int {
	return s.Succeeded + s.FetchFails + s.ParseFails
}

// SuccessRate returns the percentage of attempted targets that succeeded.
func (s *Summary) SuccessRate() float64 {
	if s.Attempted() == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Attempted()) * 100
}
