package service

import (
	"sync"
	"time"

	"github.com/rs/xid"
)

// Mode is what the page should show.
type Mode string

const (
	// ModeReady renders the portfolio.
	ModeReady Mode = "ready"
	// ModeBlocked replaces the page with the full-screen error state.
	ModeBlocked Mode = "blocked"
	// ModeDialog keeps the current page and shows a dismissible dialog.
	ModeDialog Mode = "dialog"
)

// Event names carried over the status stream.
const (
	EventStatus    = "status"
	EventTick      = "tick"
	EventDrop      = "drop"
	EventSplash    = "splash"
	EventRecovered = "recovered"
)

// Event is one message for stream subscribers.
type Event struct {
	Name string `json:"name"`
	Data any    `json:"data,omitempty"`
}

// Status is the application-wide state of the portfolio data.
type Status struct {
	Mode           Mode      `json:"mode"`
	ResetAt        time.Time `json:"resetAt,omitzero"`
	StaleAvailable bool      `json:"staleAvailable"`
	Message        string    `json:"message,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// RateLimited reports whether the blocking state has a countdown target.
func (s Status) RateLimited() bool {
	return s.Mode == ModeBlocked && !s.ResetAt.IsZero()
}

// subscriberBuffer is the per-subscriber queue. A subscriber that falls this
// far behind misses events rather than stalling publishers.
const subscriberBuffer = 16

// StatusBoard holds the current Status and fans events out to subscribers.
type StatusBoard struct {
	mu     sync.RWMutex
	status Status
	subs   map[string]chan Event
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{
		status: Status{Mode: ModeReady},
		subs:   make(map[string]chan Event),
	}
}

// Current returns a copy of the current status.
func (b *StatusBoard) Current() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Set replaces the status and publishes it. It returns the previous status.
func (b *StatusBoard) Set(s Status) Status {
	b.mu.Lock()
	prev := b.status
	b.status = s
	b.mu.Unlock()

	b.Publish(Event{Name: EventStatus, Data: s})
	return prev
}

// Publish sends e to every subscriber without blocking.
func (b *StatusBoard) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a new listener. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (b *StatusBoard) Subscribe() (string, <-chan Event, func()) {
	id := xid.New().String()
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return id, ch, cancel
}

// Subscribers returns the number of live subscriptions.
func (b *StatusBoard) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
