// Package canonical computes deterministic digests of structured payloads.
// The same logical object must hash identically regardless of map key
// order, because batch metadata is assembled from map iteration.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonicalize returns a copy of v with every map's keys sorted
// alphabetically, recursing into nested maps and slices. Scalars pass
// through untouched. Non-JSON values round-trip through encoding/json
// first so struct payloads canonicalize the same way as map payloads.
func Canonicalize(v any) (any, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return sortValue(normalized), nil
}

// ContentHash returns the SHA-256 hex digest of v's canonical JSON form.
func ContentHash(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("marshaling canonical form: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// PlainHash returns the SHA-256 hex digest of text's raw bytes, for
// payloads that are already serialized (generated report text).
func PlainHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// normalize reduces v to the generic JSON shape (map[string]any, []any,
// float64, string, bool, nil).
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalizing value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalizing value: %w", err)
	}
	return out, nil
}

// sortValue rebuilds maps as sorted-key JSON objects. encoding/json already
// emits map keys sorted, but the explicit pass keeps the canonical form
// independent of that implementation detail and covers nested slices.
func sortValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(val))
		for _, k := range keys {
			out[k] = sortValue(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = sortValue(e)
		}
		return out
	default:
		return v
	}
}
