package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsky-systems/clearsky/internal/store"
)

// TestLocking verifies exclusive acquisition and release.
func TestLocking(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := uniqueID("ct-lock")

	ok, err := s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second acquisition while held fails without error.
	ok, err = s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseLock(ctx, key))

	ok, err = s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, s.ReleaseLock(ctx, key))
}

// TestLockExpiry verifies an expired lock can be re-acquired.
func TestLockExpiry(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := uniqueID("ct-lock-exp")

	ok, err := s.AcquireLock(ctx, key, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)

	ok, err = s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, s.ReleaseLock(ctx, key))
}
