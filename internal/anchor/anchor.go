// Package anchor pins proof payloads to content-addressed storage. The
// storage service is an external collaborator consumed as a black box.
package anchor

import (
	"context"
)

// PinResult identifies pinned content.
type PinResult struct {
	ContentID string `json:"contentId"`
	URI       string `json:"uri"`
}

// Pinner pins a payload to content-addressed storage and returns its
// address. Implementations must be safe for concurrent use.
type Pinner interface {
	Pin(ctx context.Context, payload any, name string, tags map[string]string) (*PinResult, error)
}
