package stage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clearsky-systems/clearsky/internal/anchor"
	"github.com/clearsky-systems/clearsky/internal/device"
	"github.com/clearsky-systems/clearsky/internal/narrative"
	"github.com/clearsky-systems/clearsky/internal/store/memory"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// fakePinner records pins and hands out sequential content ids.
type fakePinner struct {
	mu    sync.Mutex
	pins  []string
	fail  error
	calls int
}

func (p *fakePinner) Pin(_ context.Context, _ any, name string, _ map[string]string) (*anchor.PinResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail != nil {
		return nil, p.fail
	}
	p.pins = append(p.pins, name)
	id := fmt.Sprintf("cid-%d", len(p.pins))
	return &anchor.PinResult{ContentID: id, URI: "cas://" + id}, nil
}

// fakeNarrator returns canned text, optionally failing the first n calls.
type fakeNarrator struct {
	mu       sync.Mutex
	text     string
	failures int
	err      error
	calls    int
	requests []narrative.Request
}

func (n *fakeNarrator) Generate(_ context.Context, req narrative.Request) (*narrative.Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.requests = append(n.requests, req)
	if n.failures > 0 {
		n.failures--
		err := n.err
		if err == nil {
			err = &types.ExternalError{Service: "narrative", Op: "generate", Category: types.FailureTransient, Err: fmt.Errorf("synthetic failure")}
		}
		return nil, err
	}
	text := n.text
	if text == "" {
		text = "Air quality stayed within normal ranges throughout the period."
	}
	return &narrative.Result{Text: text, Model: "test-model", TokensUsed: 42, CostUSD: 0.0001, LatencyMS: 5}, nil
}

type fixture struct {
	deps     *Deps
	store    *memory.MemoryStore
	registry *device.FileRegistry
	pinner   *fakePinner
	narrator *fakeNarrator
	alerts   []types.Alert
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    memory.New(),
		registry: device.NewFileRegistry(),
		pinner:   &fakePinner{},
		narrator: &fakeNarrator{},
		now:      time.Date(2025, 1, 2, 12, 30, 0, 0, time.UTC),
	}
	require.NoError(t, f.registry.Register(types.Device{
		ID:          "dev-001",
		OwnerID:     "owner-1",
		Status:      types.DeviceActive,
		SensorTypes: []types.SensorType{types.SensorPM25, types.SensorPM10, types.SensorNO2},
		Location:    "Rotterdam North",
	}))

	f.deps = &Deps{
		Store:    f.store,
		Registry: f.registry,
		Pinner:   f.pinner,
		Narrator: f.narrator,
		AlertFn:  func(a types.Alert) { f.alerts = append(f.alerts, a) },
		Now:      func() time.Time { return f.now },
	}
	return f
}

// ingestAt pushes one submission through the real ingestor.
func (f *fixture) ingestAt(t *testing.T, ts time.Time, values map[types.SensorType]float64) *types.Reading {
	t.Helper()
	r, err := NewIngestor(f.deps).Ingest(context.Background(), IngestRequest{
		OwnerID:   "owner-1",
		DeviceID:  "dev-001",
		Readings:  values,
		Timestamp: ts,
	})
	require.NoError(t, err)
	return r
}

// fastPolicy keeps retry backoff out of test runtime.
func fastPolicy(attempts int) types.RetryPolicy {
	return types.RetryPolicy{MaxAttempts: attempts, BackoffSeconds: 0, BackoffMultiplier: 2.0}
}

func (f *fixture) reading(t *testing.T, id string) *types.Reading {
	t.Helper()
	r, err := f.store.GetReading(context.Background(), id)
	require.NoError(t, err)
	return r
}
