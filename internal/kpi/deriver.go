// Package kpi computes derived per-country indicators from clean records.
// Derivation is a pure function of the record and a precomputed peer
// aggregate, so every country in a batch sees the same peer snapshot.
package kpi

import (
	"sort"
	"strings"

	"github.com/gdmlabs/defense-metrics-pipeline/internal/pipeline"
)

// KPI column names in the derived output table.
const (
	BudgetToGDPRatio   = "Defense Budget to GDP Ratio (%)"
	SpendingPerCapita  = "Military Spending per Capita"
	AircraftPer100k    = "Aircraft per 100k Population"
	TanksPer100k       = "Tanks per 100k Population"
	EquipmentTotal     = "Equipment Total"
	PersonnelTotal     = "Personnel Total"
	PeerBudgetShare    = "Share of Peer Defense Budget (%)"
	CapabilityIndex    = "Capability Index"
)

// The raw pages carry no fixed schema, so dependency fields are located by
// keyword against the discovered labels, the way the upstream column sets
// actually vary.
var (
	equipmentKeywords = []string{
		"aircraft", "tank", "helicopter", "submarine", "carrier",
		"destroyer", "frigate", "corvette", "vessel", "artillery",
	}
	personnelKeywords = []string{"personnel", "manpower"}
)

// Derive computes every KPI that is independently computable from the
// record. A missing dependency yields Missing for that KPI only, never a
// failure of the whole derivation.
func Derive(rec pipeline.CleanRecord, peer PeerAggregate) pipeline.DerivedRecord {
	kpis := make(map[string]pipeline.Value)

	budgetKey := findField(rec, []string{"budget"}, []string{"gdp"})
	gdpKey := findField(rec, []string{"purchasing power", "gdp"}, nil)
	popKey := findField(rec, []string{"population"}, nil)
	aircraftKey := findField(rec, []string{"total aircraft", "aircraft"}, []string{"per"})
	tanksKey := findField(rec, []string{"tank"}, []string{"per"})

	kpis[BudgetToGDPRatio] = ratio(rec, budgetKey, gdpKey, 100)
	kpis[SpendingPerCapita] = ratio(rec, budgetKey, popKey, 1)
	kpis[AircraftPer100k] = ratio(rec, aircraftKey, popKey, 1e5)
	kpis[TanksPer100k] = ratio(rec, tanksKey, popKey, 1e5)
	kpis[EquipmentTotal] = keywordSum(rec, equipmentKeywords)
	kpis[PersonnelTotal] = keywordSum(rec, personnelKeywords)
	kpis[PeerBudgetShare] = peerShare(rec, budgetKey, peer)
	kpis[CapabilityIndex] = capabilityIndex(rec, peer)

	return pipeline.DerivedRecord{CountryName: rec.CountryName, KPIs: kpis}
}

// DeriveAll runs the two-pass derivation: one aggregation pass over all
// clean records, then one Derive call per record against that snapshot.
func DeriveAll(records []pipeline.CleanRecord) []pipeline.DerivedRecord {
	peer := Aggregate(records)
	derived := make([]pipeline.DerivedRecord, 0, len(records))
	for _, rec := range records {
		derived = append(derived, Derive(rec, peer))
	}
	return derived
}

// ratio returns numerator/denominator*scale, or Missing when either side is
// absent, invalid, or the denominator is zero.
func ratio(rec pipeline.CleanRecord, numKey, denKey string, scale float64) pipeline.Value {
	num, okN := validValue(rec, numKey)
	den, okD := validValue(rec, denKey)
	if !okN || !okD || den == 0 {
		return pipeline.Missing
	}
	return pipeline.Num(num / den * scale)
}

// keywordSum sums every valid field whose label matches one of the
// keywords. Missing when no matching field is present at all.
func keywordSum(rec pipeline.CleanRecord, keywords []string) pipeline.Value {
	total := 0.0
	matched := false
	for _, key := range sortedKeys(rec.Values) {
		if !matchesAny(key, keywords) {
			continue
		}
		if v := rec.Values[key]; v.Valid {
			total += v.Number
			matched = true
		}
	}
	if !matched {
		return pipeline.Missing
	}
	return pipeline.Num(total)
}

func peerShare(rec pipeline.CleanRecord, budgetKey string, peer PeerAggregate) pipeline.Value {
	budget, ok := validValue(rec, budgetKey)
	if !ok {
		return pipeline.Missing
	}
	total, ok := peer.Totals[budgetKey]
	if !ok || total == 0 {
		return pipeline.Missing
	}
	return pipeline.Num(budget / total * 100)
}

// capabilityIndex is the sum of min-max normalized metric values over the
// peer snapshot, one term per field present on this record.
func capabilityIndex(rec pipeline.CleanRecord, peer PeerAggregate) pipeline.Value {
	if peer.Countries == 0 {
		return pipeline.Missing
	}
	score := 0.0
	matched := false
	for _, key := range sortedKeys(rec.Values) {
		v := rec.Values[key]
		if !v.Valid {
			continue
		}
		lo, okLo := peer.Mins[key]
		hi, okHi := peer.Maxs[key]
		if !okLo || !okHi {
			continue
		}
		score += (v.Number - lo) / (hi - lo + 1)
		matched = true
	}
	if !matched {
		return pipeline.Missing
	}
	return pipeline.Num(score)
}

func validValue(rec pipeline.CleanRecord, key string) (float64, bool) {
	if key == "" {
		return 0, false
	}
	v, ok := rec.Values[key]
	if !ok || !v.Valid {
		return 0, false
	}
	return v.Number, true
}

// findField returns the first label (by keyword priority, then sorted label
// order for determinism) containing one of the keywords and none of the
// excluded words. "" when nothing matches.
func findField(rec pipeline.CleanRecord, keywords, exclude []string) string {
	keys := sortedKeys(rec.Values)
	for _, keyword := range keywords {
		for _, key := range keys {
			lower := strings.ToLower(key)
			if !strings.Contains(lower, keyword) {
				continue
			}
			if matchesAny(key, exclude) {
				continue
			}
			return key
		}
	}
	return ""
}

func matchesAny(key string, keywords []string) bool {
	lower := strings.ToLower(key)
	for _, keyword := range keywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func sortedKeys(values map[string]pipeline.Value) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
