// Package narrative generates prose summaries of reading aggregates via an
// OpenAI-compatible chat completions endpoint.
package narrative

import "context"

// Request is a single generation request.
type Request struct {
	System      string
	User        string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Result carries the generated text and provenance recorded on the derivative.
type Result struct {
	Text       string
	Model      string
	TokensUsed int
	CostUSD    float64
	LatencyMS  int64
}

// Generator produces narrative text for an aggregate.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}
