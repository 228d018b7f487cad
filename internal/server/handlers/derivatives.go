package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// ListDerivatives returns derivatives of a given type, newest first.
func (h *Handlers) ListDerivatives(w http.ResponseWriter, r *http.Request) {
	t := types.DerivativeType(r.URL.Query().Get("type"))
	if t != types.DerivativeDaily && t != types.DerivativeMonthly {
		h.writeError(w, http.StatusBadRequest, "type query parameter must be DAILY or MONTHLY", nil)
		return
	}

	limit := defaultListLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	derivs, err := h.store.ListDerivativesByType(r.Context(), t, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list derivatives", err)
		return
	}
	if derivs == nil {
		derivs = []types.Derivative{}
	}
	h.writeJSON(w, http.StatusOK, derivs)
}

// GetDerivative returns one derivative report by ID.
func (h *Handlers) GetDerivative(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "derivativeID")

	d, err := h.store.GetDerivative(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "derivative not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to load derivative", err)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}
