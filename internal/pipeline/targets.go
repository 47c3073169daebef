package pipeline

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// LoadTargets reads the target list from disk, one URL per line. Blank lines
// and lines that are not http(s) URLs are skipped. Duplicates are kept and
// processed independently. A missing or unreadable file is a configuration
// error and aborts the run before any fetch.
func LoadTargets(path string) ([]Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open target list %s: %w", path, err)
	}
	defer f.Close()

	var targets []Target
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "http") {
			continue
		}
		targets = append(targets, Target{URL: line, Country: CountrySlug(line)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read target list %s: %w", path, err)
	}
	return targets, nil
}

// CountrySlug extracts the country identifier from a target URL's
// country_id query parameter. Returns "" when the URL does not carry one.
func CountrySlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("country_id")
}

// SlugToName turns a country slug into a readable fallback display name,
// e.g. "united-states-of-america" -> "United States Of America".
func SlugToName(slug string) string {
	if slug == "" {
		return "Unknown"
	}
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
