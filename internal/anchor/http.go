package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

const defaultPinTimeout = 30 * time.Second

// HTTPPinner pins payloads via an HTTP pinning service (bearer-auth JSON
// POST). A circuit breaker fails fast while the service is down instead of
// burning the per-record retry budget on a dead endpoint.
type HTTPPinner struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewHTTPPinner creates a pinner for the given service endpoint.
func NewHTTPPinner(endpoint, apiKey string) *HTTPPinner {
	return &HTTPPinner{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultPinTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "anchor-pin",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

type pinRequest struct {
	Name    string            `json:"name"`
	Tags    map[string]string `json:"tags,omitempty"`
	Payload any               `json:"payload"`
}

type pinResponse struct {
	ContentID string `json:"contentId"`
	URI       string `json:"uri"`
}

// Pin posts the payload and returns its content address.
func (p *HTTPPinner) Pin(ctx context.Context, payload any, name string, tags map[string]string) (*PinResult, error) {
	out, err := p.breaker.Execute(func() (any, error) {
		return p.pin(ctx, payload, name, tags)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &types.ExternalError{Service: "anchor", Op: "pin", Category: types.FailureTransient, Err: err}
		}
		return nil, err
	}
	return out.(*PinResult), nil
}

func (p *HTTPPinner) pin(ctx context.Context, payload any, name string, tags map[string]string) (*PinResult, error) {
	body, err := json.Marshal(pinRequest{Name: name, Tags: tags, Payload: payload})
	if err != nil {
		return nil, &types.ExternalError{Service: "anchor", Op: "pin", Category: types.FailurePermanent, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &types.ExternalError{Service: "anchor", Op: "pin", Category: types.FailurePermanent, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &types.ExternalError{Service: "anchor", Op: "pin", Category: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &types.ExternalError{
			Service:  "anchor",
			Op:       "pin",
			Category: classifyStatus(resp.StatusCode),
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, snippet),
		}
	}

	var pr pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, &types.ExternalError{Service: "anchor", Op: "pin", Category: types.FailureTransient, Err: err}
	}
	if pr.ContentID == "" {
		return nil, &types.ExternalError{
			Service:  "anchor",
			Op:       "pin",
			Category: types.FailurePermanent,
			Err:      errors.New("response missing contentId"),
		}
	}
	return &PinResult{ContentID: pr.ContentID, URI: pr.URI}, nil
}

func classifyTransport(err error) types.FailureCategory {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.FailureTimeout
	}
	return types.FailureTransient
}

func classifyStatus(code int) types.FailureCategory {
	switch {
	case code == http.StatusTooManyRequests:
		return types.FailureTransient
	case code >= 500:
		return types.FailureTransient
	default:
		return types.FailurePermanent
	}
}
