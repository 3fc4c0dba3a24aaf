// Package recovery runs the periodic re-fetch loop used while the portfolio is
// stuck in a blocking error state.
//
// Each cycle plays a drop-and-splash cue and fires a background refresh at the
// moment of impact. Cycles never overlap: the next interval only starts
// counting once both the visual cycle and the refresh have finished.
//
//	idle → triggered (drop) → resolving (splash + refresh) → idle
package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cue is a visual event the page animates.
type Cue string

const (
	CueDrop   Cue = "drop"
	CueSplash Cue = "splash"
)

// State is the trigger's position in its cycle.
type State string

const (
	StateInactive  State = "inactive"
	StateIdle      State = "idle"
	StateTriggered State = "triggered"
	StateResolving State = "resolving"
)

// Trigger fires Refresh every Interval while active.
//
// ImpactDelay is the time from the drop cue to impact, where the splash cue
// and Refresh fire together. Cycle is the full length of the animation; it is
// never shorter than ImpactDelay.
type Trigger struct {
	Interval    time.Duration
	ImpactDelay time.Duration
	Cycle       time.Duration

	// OnCue is called from the trigger goroutine and must not block.
	OnCue func(Cue)
	// Refresh performs the re-fetch. Its context is cancelled on Deactivate.
	Refresh func(ctx context.Context)

	Logger *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	cycles int
}

// Activate starts the loop. Calling it while already active does nothing.
func (t *Trigger) Activate(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.state = StateIdle

	go t.loop(ctx, t.done)
}

// Deactivate stops the loop, cancels any pending timer or in-flight refresh,
// and waits for the goroutine to exit.
func (t *Trigger) Deactivate() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	t.setState(StateInactive)
}

// Active reports whether the loop is running.
func (t *Trigger) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// State returns the current cycle state.
func (t *Trigger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == "" {
		return StateInactive
	}
	return t.state
}

// Cycles returns how many cycles have completed since creation.
func (t *Trigger) Cycles() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cycles
}

func (t *Trigger) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Trigger) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		if !sleep(ctx, t.Interval) {
			return
		}
		if !t.runCycle(ctx) {
			return
		}
	}
}

// runCycle plays one drop/splash cycle. It returns false if the trigger was
// deactivated part way through.
func (t *Trigger) runCycle(ctx context.Context) bool {
	start := time.Now()
	t.setState(StateTriggered)
	t.cue(CueDrop)

	if !sleep(ctx, t.ImpactDelay) {
		return false
	}

	t.setState(StateResolving)
	t.cue(CueSplash)

	refreshed := make(chan struct{})
	go func() {
		defer close(refreshed)
		if t.Refresh != nil {
			t.Refresh(ctx)
		}
	}()

	// The visual cycle runs to completion alongside the refresh.
	if !sleep(ctx, t.Cycle-time.Since(start)) {
		<-refreshed
		return false
	}
	select {
	case <-refreshed:
	case <-ctx.Done():
		<-refreshed
		return false
	}

	t.mu.Lock()
	t.state = StateIdle
	t.cycles++
	t.mu.Unlock()

	if t.Logger != nil {
		t.Logger.Debug("recovery cycle finished", slog.Duration("duration", time.Since(start)))
	}
	return true
}

func (t *Trigger) cue(c Cue) {
	if t.OnCue != nil {
		t.OnCue(c)
	}
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
