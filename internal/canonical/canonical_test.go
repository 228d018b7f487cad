package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash_KeyOrderInvariant(t *testing.T) {
	a := map[string]any{
		"deviceId": "dev-1",
		"window":   map[string]any{"start": "2025-01-01T10:00:00Z", "end": "2025-01-01T11:00:00Z"},
		"stats":    map[string]any{"pm10": 110.0, "pm25": 32.5},
	}
	b := map[string]any{
		"stats":    map[string]any{"pm25": 32.5, "pm10": 110.0},
		"window":   map[string]any{"end": "2025-01-01T11:00:00Z", "start": "2025-01-01T10:00:00Z"},
		"deviceId": "dev-1",
	}

	ha, err := ContentHash(a)
	require.NoError(t, err)
	hb, err := ContentHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestContentHash_SensitiveToAnyField(t *testing.T) {
	base := map[string]any{"deviceId": "dev-1", "root": "abc"}

	h1, err := ContentHash(base)
	require.NoError(t, err)

	changed := map[string]any{"deviceId": "dev-1", "root": "abd"}
	h2, err := ContentHash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	extra := map[string]any{"deviceId": "dev-1", "root": "abc", "x": 1}
	h3, err := ContentHash(extra)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestContentHash_StructAndMapEquivalent(t *testing.T) {
	type payload struct {
		DeviceID string  `json:"deviceId"`
		Value    float64 `json:"value"`
	}

	hs, err := ContentHash(payload{DeviceID: "dev-1", Value: 42})
	require.NoError(t, err)
	hm, err := ContentHash(map[string]any{"value": 42.0, "deviceId": "dev-1"})
	require.NoError(t, err)
	assert.Equal(t, hs, hm)
}

func TestCanonicalize_SortsNestedKeys(t *testing.T) {
	v, err := Canonicalize(map[string]any{
		"b": map[string]any{"z": 1, "a": 2},
		"a": []any{map[string]any{"y": 1, "x": 2}},
	})
	require.NoError(t, err)

	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, m, "a")
	assert.Contains(t, m, "b")

	nested, ok := m["b"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, nested, 2)
}

func TestPlainHash(t *testing.T) {
	h := PlainHash("daily report text")
	assert.Len(t, h, 64)
	assert.Equal(t, h, PlainHash("daily report text"))
	assert.NotEqual(t, h, PlainHash("daily report text."))
}
