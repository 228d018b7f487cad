package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clearsky-systems/clearsky/internal/stage"
	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

const defaultListLimit = 50

// IngestReading accepts one sensor submission and routes it into its
// hourly batch.
func (h *Handlers) IngestReading(w http.ResponseWriter, r *http.Request) {
	var req stage.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	reading, err := h.ingestor.Ingest(r.Context(), req)
	if err != nil {
		var verr *stage.ValidationError
		switch {
		case errors.As(err, &verr):
			h.writeError(w, http.StatusUnprocessableEntity, verr.Error(), nil)
		case errors.Is(err, stage.ErrBatchClosed):
			h.writeError(w, http.StatusConflict, "batch window is closed", nil)
		default:
			h.writeError(w, http.StatusInternalServerError, "ingestion failed", err)
		}
		return
	}
	h.writeJSON(w, http.StatusAccepted, reading)
}

// ListReadings returns readings filtered by device or status.
func (h *Handlers) ListReadings(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	deviceID := r.URL.Query().Get("device")
	status := r.URL.Query().Get("status")

	var (
		readings []types.Reading
		err      error
	)
	switch {
	case deviceID != "":
		readings, err = h.store.ListReadingsByDevice(r.Context(), deviceID, limit)
	case status != "":
		readings, err = h.store.ListReadingsByStatus(r.Context(), types.ReadingStatus(status), time.Time{}, limit)
	default:
		h.writeError(w, http.StatusBadRequest, "device or status query parameter required", nil)
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list readings", err)
		return
	}
	if readings == nil {
		readings = []types.Reading{}
	}
	h.writeJSON(w, http.StatusOK, readings)
}

// GetReading returns one reading by its deterministic ID.
func (h *Handlers) GetReading(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "readingID")

	reading, err := h.store.GetReading(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "reading not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to load reading", err)
		return
	}
	h.writeJSON(w, http.StatusOK, reading)
}
