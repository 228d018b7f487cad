// Package lifecycle implements the reading batch state machine.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

// ErrInvalidTransition is wrapped by every transition rejection.
var ErrInvalidTransition = errors.New("invalid status transition")

// Transition table: from -> allowed tos. Transitions are strictly forward
// except the compensating PROCESSING_AI -> VERIFIED revert used when daily
// derivative generation fails terminally.
var validTransitions = map[types.ReadingStatus][]types.ReadingStatus{
	types.ReadingPending:           {types.ReadingProcessing},
	types.ReadingProcessing:        {types.ReadingVerified, types.ReadingFailed},
	types.ReadingVerified:          {types.ReadingProcessingAI},
	types.ReadingProcessingAI:      {types.ReadingDerivedIndividual, types.ReadingVerified},
	types.ReadingDerivedIndividual: {types.ReadingComplete},
	types.ReadingComplete:          {},
	types.ReadingFailed:            {},
}

// CanTransition checks if moving a reading from one status to another is valid.
func CanTransition(from, to types.ReadingStatus) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates a status move, returning an error wrapping
// ErrInvalidTransition if the move is not in the table.
func Transition(from, to types.ReadingStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsTerminal returns true if the status is a terminal (final) state.
func IsTerminal(status types.ReadingStatus) bool {
	return status == types.ReadingComplete || status == types.ReadingFailed
}
