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

// knownKeys are the valid dotted key paths in the config file.
var knownKeys = map[string]bool{
	"data_dir": true,
	// [backend]
	"backend.kind": true, "backend.base_url": true, "backend.upload_url": true, "backend.model": true,
	"backend.minio.endpoint": true, "backend.minio.bucket": true, "backend.minio.access_key": true,
	"backend.minio.secret_key": true, "backend.minio.secure": true, "backend.minio.region": true,
	// [filter]
	"filter.skip_dirs": true, "filter.skip_hidden": true, "filter.skip_files": true,
	"filter.max_file_size": true, "filter.ignore_marker": true, "filter.follow_symlinks": true,
	"filter.max_depth": true, "filter.verify_content": true,
	// [sync]
	"sync.poll_interval": true, "sync.poll_timeout": true, "sync.debounce": true, "sync.max_retries": true,
	// [teardown]
	"teardown.chunk_size": true, "teardown.chunk_pause": true, "teardown.recheck_delay": true,
	"teardown.retry_delay": true, "teardown.max_attempts": true,
	// [logging]
	"logging.log_level": true, "logging.log_file": true, "logging.log_format": true,
	"logging.log_retention_days": true, "logging.log_max_size_mb": true,
	// [network]
	"network.timeout": true, "network.user_agent": true,
	// [server]
	"server.listen": true,
}

// knownKeysList is the sorted slice form of knownKeys so that ties in edit
// distance produce deterministic suggestions.
var knownKeysList = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		keyStr := key.String()

		// A table header whose children are all known is reported through
		// its children, never itself.
		if isKnownSection(keyStr) {
			continue
		}

		errs = append(errs, buildKeyError(keyStr))
	}

	return errors.Join(errs...)
}

func isKnownSection(key string) bool {
	switch key {
	case "backend", "backend.minio", "filter", "sync", "teardown", "logging", "network", "server":
		return true
	default:
		return false
	}
}

// buildKeyError creates a descriptive error for an unknown key, optionally
// suggesting the closest known key.
func buildKeyError(keyStr string) error {
	suggestion := closestMatch(keyStr, knownKeysList)
	if suggestion != "" {
		return fmt.Errorf("unknown config key %q: did you mean %q?", keyStr, suggestion)
	}

	return fmt.Errorf("unknown config key %q", keyStr)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(strings.ToLower(unknown), k)
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
