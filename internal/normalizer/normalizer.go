// Package normalizer converts raw scraped text values into numeric values.
// Normalization is total and deterministic: any input string maps to either
// a float64 or the explicit Missing marker, and the same input always maps
// to the same output. It never returns an error and never panics, so a bad
// value can never abort a batch.
package normalizer

import (
	"strconv"
	"strings"

	"github.com/gdmlabs/defense-metrics-pipeline/internal/pipeline"
)

// currencySymbols are stripped from values before parsing. Presence of a
// symbol marks the value as currency-typed but does not change the number.
var currencySymbols = map[rune]struct{}{
	'$': {},
	'€': {},
	'¥': {},
	'£': {},
}

// naTokens are source phrasings for "no data".
var naTokens = map[string]struct{}{
	"":              {},
	"-":             {},
	"n/a":           {},
	"na":            {},
	"none":          {},
	"unknown":       {},
	"not available": {},
}

// DefaultMagnitudes is the extensible lookup of trailing magnitude suffixes
// to power-of-ten multipliers. Keys are lowercase. Suffixes not listed here
// are normalization failures, not guesses.
func DefaultMagnitudes() map[string]float64 {
	return map[string]float64{
		"thousand": 1e3,
		"k":        1e3,
		"million":  1e6,
		"m":        1e6,
		"mn":       1e6,
		"billion":  1e9,
		"b":        1e9,
		"bn":       1e9,
		"trillion": 1e12,
		"t":        1e12,
		"tn":       1e12,
	}
}

// Normalizer converts raw text into pipeline.Value.
type Normalizer struct {
	magnitudes map[string]float64
}

// New builds a Normalizer with the default magnitude table.
func New() *Normalizer {
	return &Normalizer{magnitudes: DefaultMagnitudes()}
}

// WithMagnitudes replaces the magnitude table. Keys must be lowercase.
func (n *Normalizer) WithMagnitudes(table map[string]float64) *Normalizer {
	n.magnitudes = table
	return n
}

// Normalize applies the ordered normalization stages: trim and NA check,
// currency symbol strip, grouping separator strip, magnitude suffix lookup,
// float parse. Unparseable input yields pipeline.Missing.
func (n *Normalizer) Normalize(raw string) pipeline.Value {
	s := strings.TrimSpace(raw)
	if _, na := naTokens[strings.ToLower(s)]; na {
		return pipeline.Missing
	}

	s, currency := stripCurrency(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	mantissa, suffix := splitMagnitudeSuffix(s)
	multiplier := 1.0
	if suffix != "" {
		m, ok := n.magnitudes[strings.ToLower(suffix)]
		if !ok {
			return pipeline.Missing
		}
		multiplier = m
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(mantissa), 64)
	if err != nil {
		return pipeline.Missing
	}
	return pipeline.Value{Number: f * multiplier, Currency: currency, Valid: true}
}

// Clean normalizes every field of a raw record, producing a clean record of
// the same identity. Fields that fail normalization become Missing entries
// rather than dropping the key, so downstream column sets stay stable.
func (n *Normalizer) Clean(rec pipeline.RawRecord) pipeline.CleanRecord {
	values := make(map[string]pipeline.Value, len(rec.Fields))
	for label, raw := range rec.Fields {
		values[label] = n.Normalize(raw)
	}
	return pipeline.CleanRecord{
		Target:      rec.Target,
		CountryName: rec.CountryName,
		Values:      values,
		FetchedAt:   rec.FetchedAt,
	}
}

func stripCurrency(s string) (string, bool) {
	found := false
	var b strings.Builder
	for _, r := range s {
		if _, ok := currencySymbols[r]; ok {
			found = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), found
}

// splitMagnitudeSuffix splits a trailing run of letters off the value.
// "916.9 Billion" -> ("916.9 ", "Billion"); "13300" -> ("13300", "").
// Exponent forms like "1.2e9" end in a digit and are left untouched.
func splitMagnitudeSuffix(s string) (string, string) {
	i := len(s)
	for i > 0 {
		c := s[i-1]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			i--
			continue
		}
		break
	}
	return s[:i], s[i:]
}
