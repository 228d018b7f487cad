package narrative

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

func completionBody(text string, tokens int) map[string]any {
	return map[string]any{
		"model": "gpt-4o-mini",
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": text}, "finish_reason": "stop"},
		},
		"usage": map[string]any{"prompt_tokens": tokens / 2, "completion_tokens": tokens / 2, "total_tokens": tokens},
	}
}

func TestGenerate(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(completionBody("Air quality was moderate.", 200))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key"}, nil)
	res, err := c.Generate(context.Background(), Request{
		System: "You summarize sensor data.",
		User:   "PM10 avg 42",
	})
	require.NoError(t, err)

	assert.Equal(t, "Air quality was moderate.", res.Text)
	assert.Equal(t, "gpt-4o-mini", res.Model)
	assert.Equal(t, 200, res.TokensUsed)
	assert.InDelta(t, 200*blendedUSDPerToken, res.CostUSD, 1e-9)
	assert.GreaterOrEqual(t, res.LatencyMS, int64(0))

	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "PM10 avg 42", gotReq.Messages[1].Content)
	assert.Equal(t, defaultTemperature, gotReq.Temperature)
}

func TestGenerateRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(completionBody("ok", 10))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL}, nil)
	res, err := c.Generate(context.Background(), Request{User: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, MaxRetries: 2}, nil)
	_, err := c.Generate(context.Background(), Request{User: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())

	var ext *types.ExternalError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, types.FailureTransient, ext.Category)
	assert.True(t, ext.Retryable())
}

func TestGenerateBadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL}, nil)
	_, err := c.Generate(context.Background(), Request{User: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var ext *types.ExternalError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, types.FailurePermanent, ext.Category)
	assert.False(t, ext.Retryable())
}

func TestGenerateEmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionBody("", 0))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, MaxRetries: 1}, nil)
	_, err := c.Generate(context.Background(), Request{User: "x"})
	require.Error(t, err)
}

func TestGenerateModelOverride(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(completionBody("ok", 10))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Model: "gpt-4o-mini"}, nil)
	_, err := c.Generate(context.Background(), Request{User: "x", Model: "gpt-4o", Temperature: 0.7, MaxTokens: 64})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", gotReq.Model)
	assert.Equal(t, 0.7, gotReq.Temperature)
	assert.Equal(t, 64, gotReq.MaxTokens)
}
