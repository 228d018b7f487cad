// Package handlers implements HTTP request handlers for the ClearSky API.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/clearsky-systems/clearsky/internal/stage"
	"github.com/clearsky-systems/clearsky/internal/store"
)

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	store    store.Store
	ingestor *stage.Ingestor
	logger   *slog.Logger
}

// New creates a new Handlers instance.
func New(st store.Store, ingestor *stage.Ingestor, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: st, ingestor: ingestor, logger: logger}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs the internal error and returns a sanitized JSON error to
// the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil && status >= 500 {
		h.logger.Error(msg, "error", err, "status", status)
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
