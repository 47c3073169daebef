// Package extractor parses fetched page markup into a metric label/value
// mapping. The field set is discovered dynamically from the document
// structure; nothing here hardcodes a closed list of metric names.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gdmlabs/defense-metrics-pipeline/internal/pipeline"
)

// ErrUnrecognizedDocument is returned when the markup is empty or not HTML.
// Missing individual fields are not an error; they just produce fewer keys.
var ErrUnrecognizedDocument = errors.New("unrecognized document structure")

// labelValuePattern matches "Label: value" pairs in leaf element text.
// Labels start with a letter and the colon must be followed by a space, so
// scheme prefixes like "https://" never match.
var labelValuePattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 /()'.\-]{1,60}?):\s+(.+)$`)

// titleNoisePattern strips site boilerplate from page titles and headers,
// e.g. "France Military Strength 2025" -> "France".
var titleNoisePattern = regexp.MustCompile(`\s*(Military Strength|Overview|\d{4}|\|).*`)

// Extractor implements pipeline.Extractor over goquery documents.
type Extractor struct{}

// New builds an Extractor.
func New() *Extractor { return &Extractor{} }

// Extract parses the markup and returns every label/value pair discovered in
// the document, using the label text verbatim as the key and the adjacent
// value text as-is. It fails only when the document structure is
// unrecognizable; partial extraction is success.
func (e *Extractor) Extract(markup []byte) (pipeline.ExtractResult, error) {
	if len(bytes.TrimSpace(markup)) == 0 {
		return pipeline.ExtractResult{}, fmt.Errorf("empty markup: %w", ErrUnrecognizedDocument)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return pipeline.ExtractResult{}, fmt.Errorf("parse markup: %w", err)
	}
	// html.Parse is lenient: plain text or binary garbage still yields a
	// document, but one with no elements under body.
	if doc.Find("body *").Length() == 0 {
		return pipeline.ExtractResult{}, fmt.Errorf("no html elements: %w", ErrUnrecognizedDocument)
	}

	fields := make(map[string]string)
	doc.Find("body *").Each(func(_ int, sel *goquery.Selection) {
		if sel.Children().Length() > 0 {
			return
		}
		collectPair(sel, fields)
	})

	return pipeline.ExtractResult{
		CountryName: countryName(doc),
		Fields:      fields,
	}, nil
}

// collectPair records a label/value pair found at a leaf element. Two shapes
// are recognized: "Label: value" inside one element, and a "Label:" element
// whose value sits in the next sibling. First occurrence of a label wins.
func collectPair(sel *goquery.Selection, fields map[string]string) {
	text := squashSpace(sel.Text())
	if text == "" {
		return
	}
	if m := labelValuePattern.FindStringSubmatch(text); m != nil {
		putField(fields, m[1], m[2])
		return
	}
	if strings.HasSuffix(text, ":") {
		label := strings.TrimSuffix(text, ":")
		value := squashSpace(sel.Next().Text())
		if label != "" && value != "" && !strings.Contains(value, ":") {
			putField(fields, label, value)
		}
	}
}

func putField(fields map[string]string, label, value string) {
	label = strings.TrimSpace(label)
	value = strings.TrimSpace(value)
	if label == "" || value == "" {
		return
	}
	if _, seen := fields[label]; !seen {
		fields[label] = value
	}
}

// countryName pulls the country display name from the page, preferring the
// title, then the first h1. Callers fall back to the URL slug when this
// returns "".
func countryName(doc *goquery.Document) string {
	if title := squashSpace(doc.Find("title").First().Text()); title != "" {
		if name := strings.TrimSpace(titleNoisePattern.ReplaceAllString(title, "")); name != "" {
			return name
		}
	}
	if h1 := squashSpace(doc.Find("h1").First().Text()); h1 != "" {
		if name := strings.TrimSpace(titleNoisePattern.ReplaceAllString(h1, "")); name != "" {
			return name
		}
	}
	return ""
}

func squashSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
