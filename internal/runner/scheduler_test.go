package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/config"
	"github.com/talentops/bgvsync/internal/model"
)

func TestScheduler_TickRunsWhenIdle(t *testing.T) {
	ledger := newMockLedger()
	r := New(testConfig(), ledger, newMockStages())
	s := NewScheduler(r, config.SchedulerConfig{IntervalMinutes: 105})

	s.tick(t.Context(), zap.NewNop())

	ledger.mu.Lock()
	require.Equal(t, 1, ledger.created)
	run := ledger.runs["run-1"]
	ledger.mu.Unlock()
	require.NotNil(t, run)
	assert.Equal(t, "schedule", run.Trigger)
	require.NotNil(t, ledger.lastResult())
}

func TestScheduler_TickSkipsWhileRunning(t *testing.T) {
	ledger := newMockLedger()
	stages := newMockStages()
	stages.gate = make(chan struct{})
	r := New(testConfig(), ledger, stages)
	s := NewScheduler(r, config.SchedulerConfig{IntervalMinutes: 105})

	done := make(chan struct{})
	go func() {
		_, _ = r.RunFull(context.Background(), "manual")
		close(done)
	}()
	select {
	case <-stages.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("manual run never reached the login stage")
	}

	// The tick returns without starting a second run or writing a row.
	s.tick(t.Context(), zap.NewNop())
	ledger.mu.Lock()
	assert.Equal(t, 1, ledger.created)
	ledger.mu.Unlock()

	close(stages.gate)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manual run did not finish after gate release")
	}
}

func TestScheduler_TickLogsFailure(t *testing.T) {
	ledger := newMockLedger()
	stages := newMockStages()
	stages.loginErr = assert.AnError
	r := New(testConfig(), ledger, stages)
	s := NewScheduler(r, config.SchedulerConfig{IntervalMinutes: 105})

	// Must not panic; the failure lands in the ledger result.
	s.tick(t.Context(), zap.NewNop())

	last := ledger.lastResult()
	require.NotNil(t, last)
	assert.NotEmpty(t, last.Error)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	r := New(testConfig(), newMockLedger(), newMockStages())
	s := NewScheduler(r, config.SchedulerConfig{IntervalMinutes: 105})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Scheduler.Run did not stop after context cancellation")
	}
}

func TestScheduler_DefaultInterval(t *testing.T) {
	r := New(testConfig(), newMockLedger(), newMockStages())

	// Zero interval should default rather than panic the ticker.
	s := NewScheduler(r, config.SchedulerConfig{IntervalMinutes: 0})
	require.NotNil(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)
}

func TestDiscovery_CloseNilSafe(t *testing.T) {
	var d *Discovery
	d.Close()

	d = &Discovery{Session: &model.Session{ID: testSessionID}}
	d.Close()
}
