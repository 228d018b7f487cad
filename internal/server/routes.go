package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/clearsky-systems/clearsky/internal/server/handlers"
	"github.com/clearsky-systems/clearsky/internal/stage"
	"github.com/clearsky-systems/clearsky/internal/store"
)

func (s *Server) registerRoutes(r chi.Router, st store.Store, ingestor *stage.Ingestor) {
	h := handlers.New(st, ingestor, s.log)

	r.Get("/healthz", h.Health)
	r.Get("/debug/vars", debugVars)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/readings", h.IngestReading)
		r.Get("/readings", h.ListReadings)
		r.Get("/readings/{readingID}", h.GetReading)

		r.Get("/derivatives", h.ListDerivatives)
		r.Get("/derivatives/{derivativeID}", h.GetDerivative)
	})
}
