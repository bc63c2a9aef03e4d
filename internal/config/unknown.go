package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys maps each table to its valid keys. The empty table name holds
// the flat top-level keys. [mime] takes arbitrary extensions and is absent.
var knownKeys = map[string][]string{
	"": {
		"provider", "folder", "folder_description", "description", "new_revision",
		"require_ready", "parallel_uploads", "max_file_size",
		"log_level", "log_file", "log_format",
		"connect_timeout", "data_timeout", "max_retries", "user_agent",
		"gdrive", "onedrive", "mime", "schedule", "notify",
	},
	"gdrive":   {"client_id", "client_secret", "endpoint"},
	"onedrive": {"client_id", "drive_id", "endpoint"},
	"schedule": {"name", "cron", "paths"},
	"notify":   {"sns_topic", "region", "profile"},
}

func init() {
	for _, keys := range knownKeys {
		sort.Strings(keys)
	}
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		errs = append(errs, unknownKeyError(key))
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	table, field := "", key[0]

	if len(key) > 1 {
		if _, ok := knownKeys[key[0]]; ok {
			table, field = key[0], key[1]
		}
	}

	name := field
	if table != "" {
		name = table + "." + field
	}

	if suggestion := closestMatch(field, knownKeys[table]); suggestion != "" {
		return fmt.Errorf("unknown config key %q, did you mean %q?", name, suggestion)
	}

	return fmt.Errorf("unknown config key %q", name)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings with a
// two-row table.
func levenshtein(a, b string) int {
	a, b = strings.ToLower(a), strings.ToLower(b)

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

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
