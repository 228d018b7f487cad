package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

func TestCanTransition_ForwardPath(t *testing.T) {
	path := []types.ReadingStatus{
		types.ReadingPending,
		types.ReadingProcessing,
		types.ReadingVerified,
		types.ReadingProcessingAI,
		types.ReadingDerivedIndividual,
		types.ReadingComplete,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func TestCanTransition_RejectsRegression(t *testing.T) {
	assert.False(t, CanTransition(types.ReadingVerified, types.ReadingPending))
	assert.False(t, CanTransition(types.ReadingProcessing, types.ReadingPending))
	assert.False(t, CanTransition(types.ReadingComplete, types.ReadingProcessing))
	assert.False(t, CanTransition(types.ReadingFailed, types.ReadingProcessing))
}

func TestCanTransition_AllowsDeriveRevert(t *testing.T) {
	// Compensating transition when generation fails terminally.
	assert.True(t, CanTransition(types.ReadingProcessingAI, types.ReadingVerified))
}

func TestCanTransition_FailureOnlyFromProcessing(t *testing.T) {
	assert.True(t, CanTransition(types.ReadingProcessing, types.ReadingFailed))
	assert.False(t, CanTransition(types.ReadingPending, types.ReadingFailed))
	assert.False(t, CanTransition(types.ReadingVerified, types.ReadingFailed))
}

func TestTransition_ErrorWrapping(t *testing.T) {
	err := Transition(types.ReadingComplete, types.ReadingPending)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	assert.NoError(t, Transition(types.ReadingPending, types.ReadingProcessing))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(types.ReadingComplete))
	assert.True(t, IsTerminal(types.ReadingFailed))
	assert.False(t, IsTerminal(types.ReadingPending))
	assert.False(t, IsTerminal(types.ReadingProcessingAI))
}
