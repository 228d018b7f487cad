package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/clearsky-systems/clearsky/internal/store/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingStage struct {
	name  string
	runs  atomic.Int32
	block chan struct{}
	err   error
}

func (s *countingStage) Name() string { return s.name }

func (s *countingStage) Run(ctx context.Context) error {
	s.runs.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
		}
	}
	return s.err
}

func TestNewRejectsInvalidSchedule(t *testing.T) {
	st := memory.New()
	_, err := New(st, []Job{{Stage: &countingStage{name: "promote"}, Schedule: "not a cron"}}, 0, nil)
	assert.Error(t, err)
}

func TestRunStageExecutesUnderLock(t *testing.T) {
	st := memory.New()
	cs := &countingStage{name: "promote"}
	s, err := New(st, nil, time.Minute, nil)
	require.NoError(t, err)

	s.RunStage(context.Background(), cs)
	assert.Equal(t, int32(1), cs.runs.Load())

	// The lock is released afterwards, so the next tick runs again.
	s.RunStage(context.Background(), cs)
	assert.Equal(t, int32(2), cs.runs.Load())
}

func TestRunStageSkipsWhenLockHeld(t *testing.T) {
	st := memory.New()
	held, err := st.AcquireLock(context.Background(), "stage:promote", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	cs := &countingStage{name: "promote"}
	s, err := New(st, nil, time.Minute, nil)
	require.NoError(t, err)

	s.RunStage(context.Background(), cs)
	assert.Zero(t, cs.runs.Load())
}

func TestRunStageRunsAfterLockExpiry(t *testing.T) {
	st := memory.New()
	held, err := st.AcquireLock(context.Background(), "stage:promote", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, held)

	time.Sleep(20 * time.Millisecond)

	cs := &countingStage{name: "promote"}
	s, err := New(st, nil, time.Minute, nil)
	require.NoError(t, err)

	s.RunStage(context.Background(), cs)
	assert.Equal(t, int32(1), cs.runs.Load())
}

func TestConcurrentInstancesNeverDoubleRun(t *testing.T) {
	st := memory.New()
	block := make(chan struct{})
	cs := &countingStage{name: "verify", block: block}

	a, err := New(st, nil, time.Minute, nil)
	require.NoError(t, err)
	b, err := New(st, nil, time.Minute, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.RunStage(context.Background(), cs)
	}()

	// Give instance A time to take the lock, then B's tick must skip.
	time.Sleep(20 * time.Millisecond)
	b.RunStage(context.Background(), cs)
	assert.Equal(t, int32(1), cs.runs.Load())

	close(block)
	wg.Wait()
}

func TestStartStopDrains(t *testing.T) {
	st := memory.New()
	cs := &countingStage{name: "promote"}

	s, err := New(st, []Job{{Stage: cs, Schedule: "@every 10ms"}}, time.Minute, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return cs.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	after := cs.runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, cs.runs.Load())
}
