package alert

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

func testAlert() types.Alert {
	return types.Alert{
		Level:     types.AlertLevelError,
		ReadingID: "dev-001_20250101_H10",
		DeviceID:  "dev-001",
		Stage:     "verify",
		Message:   "verification failed after 3 attempts",
		Timestamp: time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC),
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Send(testAlert()))
	require.NoError(t, sink.Send(testAlert()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var got types.Alert
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &got))
		assert.Equal(t, "dev-001_20250101_H10", got.ReadingID)
		assert.Equal(t, types.AlertLevelError, got.Level)
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestWebhookSink(t *testing.T) {
	var got types.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	require.NoError(t, sink.Send(testAlert()))
	assert.Equal(t, "verify", got.Stage)
}

func TestWebhookSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	assert.Error(t, sink.Send(testAlert()))
}

func TestDispatcherFansOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	d, err := NewDispatcher([]types.AlertConfig{
		{Type: types.AlertFile, Path: path},
		{Type: types.AlertWebhook, URL: srv.URL},
	}, nil)
	require.NoError(t, err)

	d.Dispatch(testAlert())

	assert.Equal(t, 1, hits)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestDispatcherUnknownSink(t *testing.T) {
	_, err := NewDispatcher([]types.AlertConfig{{Type: "pager"}}, nil)
	assert.Error(t, err)
}

func TestDispatcherMissingWebhookURL(t *testing.T) {
	_, err := NewDispatcher([]types.AlertConfig{{Type: types.AlertWebhook}}, nil)
	assert.Error(t, err)
}
