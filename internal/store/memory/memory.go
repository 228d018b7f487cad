// Package memory implements the Store interface in process memory. It backs
// tests and local development; it is also the reference implementation the
// conformance suite is written against.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*MemoryStore)(nil)

type lockEntry struct {
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu          sync.Mutex
	readings    map[string]types.Reading
	derivatives map[string]types.Derivative
	locks       map[string]lockEntry
}

// New creates an empty MemoryStore.
func New() *MemoryStore {
	return &MemoryStore{
		readings:    make(map[string]types.Reading),
		derivatives: make(map[string]types.Derivative),
		locks:       make(map[string]lockEntry),
	}
}

func (m *MemoryStore) CreateReading(_ context.Context, reading types.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.readings[reading.ID]; ok {
		return store.ErrReadingExists
	}
	m.readings[reading.ID] = cloneReading(reading)
	return nil
}

func (m *MemoryStore) GetReading(_ context.Context, id string) (*types.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.readings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneReading(r)
	return &out, nil
}

func (m *MemoryStore) AppendSensorData(_ context.Context, id string, values map[types.SensorType]float64, ts time.Time) (*types.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.readings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if r.Status != types.ReadingPending {
		return nil, store.ErrNotPending
	}

	r = cloneReading(r)
	// Deterministic application order so per-sensor arrays stay reproducible
	// when one submission carries several sensors.
	sensors := make([]types.SensorType, 0, len(values))
	for s := range values {
		sensors = append(sensors, s)
	}
	sort.Slice(sensors, func(i, j int) bool { return sensors[i] < sensors[j] })
	for _, s := range sensors {
		r.SensorData[s] = append(r.SensorData[s], values[s])
		r.Meta.DataPointsCount[s]++
	}
	r.Meta.IngestionCount++
	r.Meta.LastIngestion = ts
	r.Version++
	r.UpdatedAt = ts
	m.readings[id] = r

	out := cloneReading(r)
	return &out, nil
}

func (m *MemoryStore) UpdateReading(_ context.Context, reading types.Reading, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.readings[reading.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	m.readings[reading.ID] = cloneReading(reading)
	return nil
}

func (m *MemoryStore) ListReadingsByStatus(_ context.Context, status types.ReadingStatus, before time.Time, limit int) ([]types.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Reading
	for _, r := range m.readings {
		if r.Status != status {
			continue
		}
		if !before.IsZero() && !r.Window.End.Before(before) {
			continue
		}
		out = append(out, cloneReading(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Window.End.Before(out[j].Window.End) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListReadingsInRange(_ context.Context, status types.ReadingStatus, from, to time.Time) ([]types.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Reading
	for _, r := range m.readings {
		if r.Status != status {
			continue
		}
		if r.Window.Start.Before(from) || !r.Window.Start.Before(to) {
			continue
		}
		out = append(out, cloneReading(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Window.End.Before(out[j].Window.End) })
	return out, nil
}

func (m *MemoryStore) ListReadingsByDevice(_ context.Context, deviceID string, limit int) ([]types.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Reading
	for _, r := range m.readings {
		if r.DeviceID == deviceID {
			out = append(out, cloneReading(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Window.End.After(out[j].Window.End) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) PutDerivative(_ context.Context, d types.Derivative) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.derivatives[d.ID] = cloneDerivative(d)
	return nil
}

func (m *MemoryStore) GetDerivative(_ context.Context, id string) (*types.Derivative, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.derivatives[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneDerivative(d)
	return &out, nil
}

func (m *MemoryStore) SetMetaParent(_ context.Context, derivativeID, metaParentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.derivatives[derivativeID]
	if !ok {
		return store.ErrNotFound
	}
	d.MetaParentID = metaParentID
	m.derivatives[derivativeID] = d
	return nil
}

func (m *MemoryStore) ListDerivativesByType(_ context.Context, t types.DerivativeType, limit int) ([]types.Derivative, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Derivative
	for _, d := range m.derivatives {
		if d.Type == t {
			out = append(out, cloneDerivative(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.locks[key]; ok && time.Now().Before(entry.expiresAt) {
		return false, nil
	}
	m.locks[key] = lockEntry{expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (m *MemoryStore) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

func (m *MemoryStore) Start(_ context.Context) error { return nil }
func (m *MemoryStore) Stop(_ context.Context) error  { return nil }
func (m *MemoryStore) Ping(_ context.Context) error  { return nil }

func cloneReading(r types.Reading) types.Reading {
	out := r
	out.SensorData = make(map[types.SensorType][]float64, len(r.SensorData))
	for s, vs := range r.SensorData {
		out.SensorData[s] = append([]float64(nil), vs...)
	}
	out.Meta.DataPointsCount = make(map[types.SensorType]int, len(r.Meta.DataPointsCount))
	for s, n := range r.Meta.DataPointsCount {
		out.Meta.DataPointsCount[s] = n
	}
	return out
}

func cloneDerivative(d types.Derivative) types.Derivative {
	out := d
	out.ParentDataIDs = append([]string(nil), d.ParentDataIDs...)
	out.ChildDerivativeIDs = append([]string(nil), d.ChildDerivativeIDs...)
	return out
}
