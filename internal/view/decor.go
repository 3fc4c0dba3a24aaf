package view

import "time"

// Timing is the animation choreography handed to the page. The server logic
// never waits on these; they only drive CSS and the event stream consumer.
type Timing struct {
	Stagger       time.Duration // delay between successive cards entering
	Drop          time.Duration // coffee drop fall time, ends at impact
	Splash        time.Duration // splash animation after impact
	MinimumSplash time.Duration // shortest time the loading screen stays up
}

// DefaultTiming matches the recovery trigger's impact delay.
var DefaultTiming = Timing{
	Stagger:       60 * time.Millisecond,
	Drop:          1200 * time.Millisecond,
	Splash:        800 * time.Millisecond,
	MinimumSplash: 1500 * time.Millisecond,
}

// StaggerDelay is the entrance delay of the i-th item in a grid.
func (t Timing) StaggerDelay(i int) time.Duration {
	return time.Duration(i) * t.Stagger
}

// Millis is a template helper for CSS/JS durations.
func Millis(d time.Duration) int64 {
	return d.Milliseconds()
}

// Activity bar heights are percentages in [minBar, maxBar].
const (
	minBar = 20
	maxBar = 100
)

// ActivityBars returns n decorative bar heights for an entity. The sequence is
// a pure function of seed: a repository always gets the same bars.
func ActivityBars(seed int64, n int) []int {
	if n <= 0 {
		return nil
	}
	rng := mulberry32(uint32(seed))
	bars := make([]int, n)
	for i := range bars {
		bars[i] = minBar + int(rng()*float64(maxBar-minBar+1))
		if bars[i] > maxBar {
			bars[i] = maxBar
		}
	}
	return bars
}

// mulberry32 is a small 32-bit PRNG returning floats in [0, 1).
func mulberry32(seed uint32) func() float64 {
	a := seed
	return func() float64 {
		a += 0x6D2B79F5
		t := a
		t = (t ^ (t >> 15)) * (t | 1)
		t ^= t + (t^(t>>7))*(t|61)
		return float64(t^(t>>14)) / 4294967296.0
	}
}
