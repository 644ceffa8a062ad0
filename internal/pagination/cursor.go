// Package pagination provides cursor-based pagination utilities.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// Encode returns an opaque cursor string marking a position after the
// given customer id.
func Encode(id int64) string {
	return base64.URLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// Decode parses an opaque cursor string. Returns 0 for empty input,
// meaning "start from the beginning".
func Decode(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor")
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid cursor")
	}
	return id, nil
}

// ComputePage slices an id-ordered result set to one page. Items at or
// before the cursor are skipped, at most limit items are returned, and
// the next cursor is set when more remain.
func ComputePage[T any](items []T, after int64, limit int, key func(T) int64) ([]T, string, bool) {
	start := 0
	for start < len(items) && key(items[start]) <= after {
		start++
	}
	items = items[start:]

	if limit <= 0 || len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	return items, Encode(key(items[len(items)-1])), true
}
