package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

func newDerivative(id string, typ types.DerivativeType, createdAt time.Time) types.Derivative {
	return types.Derivative{
		ID:            id,
		Type:          typ,
		DeviceID:      "ct-dev",
		OwnerID:       "ct-owner",
		PeriodStart:   createdAt.Truncate(24 * time.Hour),
		PeriodEnd:     createdAt.Truncate(24 * time.Hour).Add(24 * time.Hour),
		ParentDataIDs: []string{"ct-dev_20250101_H10"},
		Content:       "air quality was moderate",
		Proof: types.DerivativeProof{
			ContentHash: "abc",
			MerkleRoot:  "abc",
			ProcessedAt: createdAt,
		},
		CreatedAt: createdAt,
	}
}

// TestDerivativePutGet verifies put, get, and not-found behavior.
func TestDerivativePutGet(t *testing.T, s store.Store) {
	ctx := context.Background()

	d := newDerivative(uniqueID("ct-deriv-pg"), types.DerivativeDaily, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.PutDerivative(ctx, d))

	got, err := s.GetDerivative(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Content, got.Content)
	assert.Equal(t, d.ParentDataIDs, got.ParentDataIDs)

	_, err = s.GetDerivative(ctx, "ct-deriv-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// TestSetMetaParent verifies the monthly back-link attaches without
// touching content.
func TestSetMetaParent(t *testing.T, s store.Store) {
	ctx := context.Background()

	daily := newDerivative(uniqueID("ct-deriv-mp"), types.DerivativeDaily, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.PutDerivative(ctx, daily))

	require.NoError(t, s.SetMetaParent(ctx, daily.ID, "ct-monthly-1"))

	got, err := s.GetDerivative(ctx, daily.ID)
	require.NoError(t, err)
	assert.Equal(t, "ct-monthly-1", got.MetaParentID)
	assert.Equal(t, daily.Content, got.Content)

	assert.ErrorIs(t, s.SetMetaParent(ctx, "ct-deriv-missing", "x"), store.ErrNotFound)
}

// TestListDerivativesByType verifies type filtering and the record cap.
func TestListDerivativesByType(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		d := newDerivative(uniqueID("ct-deriv-ls"), types.DerivativeDaily, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, s.PutDerivative(ctx, d))
	}
	monthly := newDerivative(uniqueID("ct-deriv-lsm"), types.DerivativeMonthly, base)
	require.NoError(t, s.PutDerivative(ctx, monthly))

	got, err := s.ListDerivativesByType(ctx, types.DerivativeMonthly, 0)
	require.NoError(t, err)
	for _, d := range got {
		assert.Equal(t, types.DerivativeMonthly, d.Type)
	}

	capped, err := s.ListDerivativesByType(ctx, types.DerivativeDaily, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(capped), 2)
}
