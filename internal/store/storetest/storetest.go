// Package storetest provides shared conformance tests for store.Store
// implementations. Call RunAll from a test function to verify a backend
// satisfies the full behavioral contract.
package storetest

import (
	"testing"

	"github.com/clearsky-systems/clearsky/internal/store"
)

// RunAll runs the complete store conformance suite as subtests.
func RunAll(t *testing.T, s store.Store) {
	t.Helper()

	t.Run("ReadingCreateGet", func(t *testing.T) { TestReadingCreateGet(t, s) })
	t.Run("ReadingDuplicateCreate", func(t *testing.T) { TestReadingDuplicateCreate(t, s) })
	t.Run("AppendSensorData", func(t *testing.T) { TestAppendSensorData(t, s) })
	t.Run("AppendRejectsClosedBatch", func(t *testing.T) { TestAppendRejectsClosedBatch(t, s) })
	t.Run("UpdateReadingCAS", func(t *testing.T) { TestUpdateReadingCAS(t, s) })
	t.Run("ListByStatusOrdering", func(t *testing.T) { TestListByStatusOrdering(t, s) })
	t.Run("ListByStatusCutoffAndLimit", func(t *testing.T) { TestListByStatusCutoffAndLimit(t, s) })
	t.Run("ListInRange", func(t *testing.T) { TestListInRange(t, s) })
	t.Run("ListByDevice", func(t *testing.T) { TestListByDevice(t, s) })
	t.Run("DerivativePutGet", func(t *testing.T) { TestDerivativePutGet(t, s) })
	t.Run("SetMetaParent", func(t *testing.T) { TestSetMetaParent(t, s) })
	t.Run("ListDerivativesByType", func(t *testing.T) { TestListDerivativesByType(t, s) })
	t.Run("Locking", func(t *testing.T) { TestLocking(t, s) })
	t.Run("LockExpiry", func(t *testing.T) { TestLockExpiry(t, s) })
}
