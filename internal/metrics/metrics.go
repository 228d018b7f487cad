// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	IngestionsTotal    = expvar.NewInt("ingestions_total")
	IngestionsRejected = expvar.NewInt("ingestions_rejected")
	BatchesPromoted    = expvar.NewInt("batches_promoted")
	BatchesVerified    = expvar.NewInt("batches_verified")
	BatchesFailed      = expvar.NewInt("batches_failed")
	PinsTotal          = expvar.NewInt("pins_total")
	PinsFailed         = expvar.NewInt("pins_failed")
	GenerationsTotal   = expvar.NewInt("generations_total")
	GenerationsFailed  = expvar.NewInt("generations_failed")
	DerivativesCreated = expvar.NewInt("derivatives_created")
	RetriesScheduled   = expvar.NewInt("retries_scheduled")
	GroupsReverted     = expvar.NewInt("groups_reverted")
	AlertsDispatched   = expvar.NewInt("alerts_dispatched")
	AlertsFailed       = expvar.NewInt("alerts_failed")
)
