// Package store defines the document storage backend interface for the
// pipeline's two collections: readings and derivatives.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

// Sentinel errors shared by all backends.
var (
	// ErrNotFound is returned when a reading or derivative does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrReadingExists is returned by CreateReading when the deterministic
	// reading ID already exists. Ingestion resolves this race by retrying
	// as an append.
	ErrReadingExists = errors.New("store: reading already exists")

	// ErrNotPending is returned by AppendSensorData when the reading has
	// left PENDING; the batch window is closed to further collection.
	ErrNotPending = errors.New("store: reading is no longer pending")

	// ErrVersionConflict is returned by UpdateReading when the stored
	// version does not match the expected one (lost CAS race).
	ErrVersionConflict = errors.New("store: version conflict")
)

// Store is the storage backend interface. Backends: in-memory (tests and
// local development), DynamoDB, and MongoDB.
type Store interface {
	// Readings collection.
	//
	// CreateReading fails with ErrReadingExists on a duplicate ID.
	// AppendSensorData is an atomic read-modify-write keyed by reading ID:
	// it appends each value in ingestion order, increments ingestion and
	// per-sensor counts, and bumps the version. It fails with ErrNotPending
	// once the batch has been promoted.
	// UpdateReading replaces the document only if the stored version equals
	// expectedVersion (optimistic lock across scheduler instances).
	CreateReading(ctx context.Context, reading types.Reading) error
	GetReading(ctx context.Context, id string) (*types.Reading, error)
	AppendSensorData(ctx context.Context, id string, values map[types.SensorType]float64, ts time.Time) (*types.Reading, error)
	UpdateReading(ctx context.Context, reading types.Reading, expectedVersion int) error

	// ListReadingsByStatus returns readings in the given status whose
	// window end is before the cutoff (zero cutoff means no bound),
	// ordered by window end ascending, at most limit records (<=0 means
	// no bound).
	ListReadingsByStatus(ctx context.Context, status types.ReadingStatus, before time.Time, limit int) ([]types.Reading, error)

	// ListReadingsInRange returns readings in the given status whose
	// window start falls in [from, to), ordered by window end ascending.
	ListReadingsInRange(ctx context.Context, status types.ReadingStatus, from, to time.Time) ([]types.Reading, error)

	// ListReadingsByDevice returns a device's readings, newest window
	// first, at most limit records.
	ListReadingsByDevice(ctx context.Context, deviceID string, limit int) ([]types.Reading, error)

	// Derivatives collection. Derivative content is immutable after
	// PutDerivative; SetMetaParent only attaches the monthly back-link.
	PutDerivative(ctx context.Context, d types.Derivative) error
	GetDerivative(ctx context.Context, id string) (*types.Derivative, error)
	SetMetaParent(ctx context.Context, derivativeID, metaParentID string) error
	ListDerivativesByType(ctx context.Context, t types.DerivativeType, limit int) ([]types.Derivative, error)

	// Claim locks for scheduler coordination. AcquireLock returns false
	// without error when the lock is held by another instance.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	// Lifecycle.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
