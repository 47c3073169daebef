package kpi

import "github.com/gdmlabs/defense-metrics-pipeline/internal/pipeline"

// PeerAggregate is the cross-country summary computed once per batch and
// passed by value to every Derive call, so all per-country KPIs in one run
// use the same peer snapshot.
type PeerAggregate struct {
	Countries int
	Totals    map[string]float64
	Mins      map[string]float64
	Maxs      map[string]float64
}

// Aggregate computes per-metric totals and extrema across all clean records.
// Missing values do not contribute.
func Aggregate(records []pipeline.CleanRecord) PeerAggregate {
	agg := PeerAggregate{
		Countries: len(records),
		Totals:    make(map[string]float64),
		Mins:      make(map[string]float64),
		Maxs:      make(map[string]float64),
	}
	for _, rec := range records {
		for key, v := range rec.Values {
			if !v.Valid {
				continue
			}
			agg.Totals[key] += v.Number
			if lo, ok := agg.Mins[key]; !ok || v.Number < lo {
				agg.Mins[key] = v.Number
			}
			if hi, ok := agg.Maxs[key]; !ok || v.Number > hi {
				agg.Maxs[key] = v.Number
			}
		}
	}
	return agg
}
