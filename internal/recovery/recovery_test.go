package recovery

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventLog records cues and refreshes in the order they happen.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func newTestTrigger(log *eventLog, refresh func(ctx context.Context)) *Trigger {
	return &Trigger{
		Interval:    5 * time.Millisecond,
		ImpactDelay: 2 * time.Millisecond,
		Cycle:       4 * time.Millisecond,
		OnCue:       func(c Cue) { log.add(string(c)) },
		Refresh: func(ctx context.Context) {
			log.add("refresh")
			if refresh != nil {
				refresh(ctx)
			}
		},
	}
}

func TestTrigger_CueOrder(t *testing.T) {
	var log eventLog
	tr := newTestTrigger(&log, nil)

	tr.Activate(context.Background())
	t.Cleanup(tr.Deactivate)

	require.Eventually(t, func() bool { return tr.Cycles() >= 2 }, time.Second, time.Millisecond)
	tr.Deactivate()

	events := log.all()
	require.GreaterOrEqual(t, len(events), 6)
	assert.Equal(t, []string{"drop", "splash", "refresh", "drop", "splash", "refresh"}, events[:6])
}

func TestTrigger_NoOverlap(t *testing.T) {
	var log eventLog
	var inFlight, maxInFlight atomic.Int32

	tr := newTestTrigger(&log, func(ctx context.Context) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		// A refresh slower than the interval must delay the next cycle.
		time.Sleep(15 * time.Millisecond)
		inFlight.Add(-1)
	})

	tr.Activate(context.Background())
	require.Eventually(t, func() bool { return tr.Cycles() >= 3 }, 2*time.Second, time.Millisecond)
	tr.Deactivate()

	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestTrigger_DeactivateCancelsRefresh(t *testing.T) {
	var log eventLog
	started := make(chan struct{})
	var cancelled atomic.Bool

	tr := newTestTrigger(&log, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})

	tr.Activate(context.Background())
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("refresh never started")
	}

	tr.Deactivate()
	assert.True(t, cancelled.Load())
	assert.Equal(t, StateInactive, tr.State())
	assert.False(t, tr.Active())
}

func TestTrigger_DeactivateBeforeFirstCycle(t *testing.T) {
	var log eventLog
	tr := newTestTrigger(&log, nil)
	tr.Interval = time.Hour

	tr.Activate(context.Background())
	assert.Equal(t, StateIdle, tr.State())
	tr.Deactivate()

	assert.Empty(t, log.all())
	assert.Equal(t, StateInactive, tr.State())

	// Deactivating twice is harmless.
	tr.Deactivate()
}

func TestTrigger_ActivateTwice(t *testing.T) {
	var log eventLog
	tr := newTestTrigger(&log, nil)
	tr.Interval = time.Hour

	tr.Activate(context.Background())
	tr.Activate(context.Background())
	assert.True(t, tr.Active())
	tr.Deactivate()
	assert.False(t, tr.Active())
}
