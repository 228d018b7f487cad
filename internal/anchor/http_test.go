package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

func TestHTTPPinnerPin(t *testing.T) {
	var gotAuth string
	var gotReq pinRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(pinResponse{ContentID: "bafy123", URI: "cas://bafy123"})
	}))
	defer srv.Close()

	p := NewHTTPPinner(srv.URL, "secret")
	res, err := p.Pin(context.Background(), map[string]string{"k": "v"}, "proof-D_1", map[string]string{"stage": "verify"})
	require.NoError(t, err)

	assert.Equal(t, "bafy123", res.ContentID)
	assert.Equal(t, "cas://bafy123", res.URI)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "proof-D_1", gotReq.Name)
	assert.Equal(t, "verify", gotReq.Tags["stage"])
}

func TestHTTPPinnerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPPinner(srv.URL, "")
	_, err := p.Pin(context.Background(), "x", "n", nil)
	require.Error(t, err)

	var ext *types.ExternalError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, types.FailureTransient, ext.Category)
	assert.True(t, ext.Retryable())
}

func TestHTTPPinnerClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewHTTPPinner(srv.URL, "")
	_, err := p.Pin(context.Background(), "x", "n", nil)

	var ext *types.ExternalError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, types.FailurePermanent, ext.Category)
	assert.False(t, ext.Retryable())
}

func TestHTTPPinnerMissingContentID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pinResponse{URI: "cas://nothing"})
	}))
	defer srv.Close()

	p := NewHTTPPinner(srv.URL, "")
	_, err := p.Pin(context.Background(), "x", "n", nil)

	var ext *types.ExternalError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, types.FailurePermanent, ext.Category)
}

func TestHTTPPinnerTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewHTTPPinner(srv.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Pin(ctx, "x", "n", nil)
	var ext *types.ExternalError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, types.FailureTimeout, ext.Category)
}

func TestHTTPPinnerBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPPinner(srv.URL, "")
	for i := 0; i < 5; i++ {
		_, err := p.Pin(context.Background(), "x", "n", nil)
		require.Error(t, err)
	}
	srv.Close()

	// Breaker is open now; calls fail fast without hitting the network.
	_, err := p.Pin(context.Background(), "x", "n", nil)
	var ext *types.ExternalError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, types.FailureTransient, ext.Category)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
}
