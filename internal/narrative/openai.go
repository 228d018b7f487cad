package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

const (
	defaultModel       = "gpt-4o-mini"
	defaultTemperature = 0.3
	defaultMaxTokens   = 1024
	defaultTimeout     = 120 * time.Second
	defaultMaxRetries  = 3
)

// Per-token pricing used for the cost estimate recorded on derivatives.
// Rough blended rate; provenance only, not billing.
const blendedUSDPerToken = 0.0000006

// OpenAIConfig configures the chat completions client.
type OpenAIConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	MaxRetries  int     `yaml:"max_retries"`
}

// OpenAIClient talks to an OpenAI-compatible /v1/chat/completions endpoint.
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *slog.Logger
}

// NewOpenAIClient builds a client. Missing fields get defaults; the API key
// may be empty when the endpoint is a local stub.
func NewOpenAIClient(cfg OpenAIConfig, log *slog.Logger) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "narrative-generate",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		log: log.With("component", "narrative"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

// Generate calls the completions endpoint with bounded retries on 429 and
// 5xx responses.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Result, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		return c.generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &types.ExternalError{Service: "narrative", Op: "generate", Category: types.FailureTransient, Err: err}
		}
		return nil, err
	}
	return out.(*Result), nil
}

func (c *OpenAIClient) generate(ctx context.Context, req Request) (*Result, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.cfg.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}

	body := chatRequest{
		Model:       model,
		Temperature: temp,
		MaxTokens:   maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}

	start := time.Now()
	backoff := time.Second
	var lastErr error

	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &types.ExternalError{Service: "narrative", Op: "generate", Category: types.FailureTimeout, Err: err}
		}

		resp, err := c.doOnce(ctx, body)
		if err == nil {
			return c.toResult(resp, model, start)
		}
		lastErr = err

		if !retryable(err) || attempt == c.cfg.MaxRetries-1 {
			break
		}

		c.log.Warn("generation retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"backoff", backoff.String(),
			"error", err)

		select {
		case <-ctx.Done():
			return nil, &types.ExternalError{Service: "narrative", Op: "generate", Category: types.FailureTimeout, Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, classify(lastErr)
}

func (c *OpenAIClient) doOnce(ctx context.Context, body chatRequest) (*chatResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{code: resp.StatusCode, body: truncate(string(raw), 512)}
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		return nil, &httpStatusError{code: resp.StatusCode, body: "empty completion"}
	}
	return &cr, nil
}

func (c *OpenAIClient) toResult(resp *chatResponse, reqModel string, start time.Time) (*Result, error) {
	model := resp.Model
	if model == "" {
		model = reqModel
	}
	tokens := resp.Usage.TotalTokens
	if tokens == 0 {
		tokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}
	return &Result{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:      model,
		TokensUsed: tokens,
		CostUSD:    float64(tokens) * blendedUSDPerToken,
		LatencyMS:  time.Since(start).Milliseconds(),
	}, nil
}

// retryable reports whether another attempt could help: rate limits, server
// errors, and transport failures. Client errors and decode failures are final.
func retryable(err error) bool {
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func classify(err error) error {
	if err == nil {
		err = errors.New("generation failed")
	}
	cat := types.FailureTransient
	if errors.Is(err, context.DeadlineExceeded) {
		cat = types.FailureTimeout
	} else if se := (*httpStatusError)(nil); errors.As(err, &se) {
		switch {
		case se.code == http.StatusTooManyRequests || se.code >= 500:
			cat = types.FailureTransient
		default:
			cat = types.FailurePermanent
		}
	}
	return &types.ExternalError{Service: "narrative", Op: "generate", Category: cat, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (" + strconv.Itoa(len(s)-n) + " more bytes)"
}
