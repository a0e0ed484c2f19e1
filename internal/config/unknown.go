package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownTopKeys are the valid top-level keys and section names.
var knownTopKeys = []string{
	"auth", "backend", "journal", "log_format", "log_level", "serve", "session", "status",
}

// knownSectionKeys are the valid keys inside each section.
var knownSectionKeys = map[string][]string{
	"backend": {"base_url", "lookup_path", "update_path", "timeout", "max_retries", "user_agent"},
	"auth":    {"mode", "token", "client_id", "client_secret", "token_url", "scopes", "cache_path"},
	"session": {"employee_id", "default_academic_year", "settle_timeout"},
	"status":  {"default", "aliases"},
	"journal": {"enabled", "path"},
	"serve":   {"listen", "allowed_origins", "metrics"},
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		if err := unknownKeyError(key); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key, suggesting the closest known
// key in the same scope.
func unknownKeyError(key toml.Key) error {
	if len(key) == 0 {
		return nil
	}

	section, known := "", knownTopKeys
	name := key[0]

	if len(key) > 1 {
		keys, ok := knownSectionKeys[key[0]]
		if ok {
			section, known, name = key[0], keys, key[1]
		}
	}

	// Alias entries are free-form.
	if section == "status" && name == "aliases" {
		return nil
	}

	where := ""
	if section != "" {
		where = fmt.Sprintf(" in [%s]", section)
	}

	sorted := append([]string(nil), known...)
	sort.Strings(sorted)

	if suggestion := closestMatch(name, sorted); suggestion != "" {
		return fmt.Errorf("unknown config key %q%s, did you mean %q?", name, where, suggestion)
	}

	return fmt.Errorf("unknown config key %q%s", name, where)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Use single-row optimization to avoid allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// minOf returns the minimum of three integers.
func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
