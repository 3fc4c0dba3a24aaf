// Package countdown renders the time left until a rate limit resets.
package countdown

import (
	"fmt"
	"sync"
	"time"
)

// ReadyLabel is shown instead of a duration once the target has passed.
const ReadyLabel = "Ready to brew!"

// Remaining returns target - now, floored at zero.
func Remaining(target, now time.Time) time.Duration {
	d := target.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Format renders the remaining time as zero-padded HH:MM:SS, truncating to
// whole seconds. Hours are not wrapped at 24. At or past the target it returns
// ReadyLabel.
func Format(target, now time.Time) string {
	ms := target.Sub(now).Milliseconds()
	if ms <= 0 {
		return ReadyLabel
	}
	hours := ms / 3_600_000
	minutes := ms % 3_600_000 / 60_000
	seconds := ms % 60_000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// FormatEpoch is Format for a Unix reset timestamp in seconds.
func FormatEpoch(resetEpoch int64, now time.Time) string {
	return Format(time.Unix(resetEpoch, 0), now)
}

// Tick is one recomputation of the countdown.
type Tick struct {
	Label string `json:"label"`
	Ready bool   `json:"ready"`
}

// Ticker recomputes the countdown on a fixed interval and hands each value to
// a callback. It fires once immediately on Start, stops by itself after
// reporting ready, and releases its timer on Stop.
type Ticker struct {
	interval time.Duration
	now      func() time.Time
	onTick   func(Tick)

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	target time.Time
}

func NewTicker(interval time.Duration, onTick func(Tick)) *Ticker {
	return &Ticker{
		interval: interval,
		now:      time.Now,
		onTick:   onTick,
	}
}

// Start begins counting down to target, replacing any running countdown.
// A zero target means "no target" and is the same as Stop.
func (t *Ticker) Start(target time.Time) {
	t.Stop()
	if target.IsZero() {
		return
	}

	t.mu.Lock()
	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop, t.done, t.target = stop, done, target
	t.mu.Unlock()

	go t.run(target, stop, done)
}

// Stop halts the countdown and waits for the goroutine to exit. It is safe to
// call on a stopped Ticker.
func (t *Ticker) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done, t.target = nil, nil, time.Time{}
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Target returns the running countdown's target, or the zero time.
func (t *Ticker) Target() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

func (t *Ticker) run(target time.Time, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		label := Format(target, t.now())
		ready := label == ReadyLabel
		t.onTick(Tick{Label: label, Ready: ready})
		if ready {
			return
		}

		select {
		case <-stop:
			return
		case <-tk.C:
		}
	}
}
