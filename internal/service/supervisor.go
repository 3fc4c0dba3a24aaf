package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/brewfolio/internal/countdown"
	"github.com/sakif/brewfolio/internal/recovery"
)

// RecoveryOptions are the timers used while the portfolio is blocked.
type RecoveryOptions struct {
	Interval      time.Duration
	ImpactDelay   time.Duration
	Cycle         time.Duration
	CountdownTick time.Duration
}

// Supervisor starts the recovery loop and the reset countdown when the
// portfolio becomes blocked, and stops both once it recovers. Cues and ticks
// are published on the status board for the event stream.
type Supervisor struct {
	svc     *PortfolioService
	trigger *recovery.Trigger
	ticker  *countdown.Ticker
	base    context.Context
	logger  *slog.Logger
}

// NewSupervisor attaches a Supervisor to svc. Background refreshes run under
// ctx; cancelling it stops them.
func NewSupervisor(ctx context.Context, svc *PortfolioService, opts RecoveryOptions, logger *slog.Logger) *Supervisor {
	sup := &Supervisor{svc: svc, base: ctx, logger: logger}

	sup.ticker = countdown.NewTicker(opts.CountdownTick, func(tk countdown.Tick) {
		svc.board.Publish(Event{Name: EventTick, Data: tk})
	})

	sup.trigger = &recovery.Trigger{
		Interval:    opts.Interval,
		ImpactDelay: opts.ImpactDelay,
		Cycle:       opts.Cycle,
		Logger:      logger,
		OnCue: func(c recovery.Cue) {
			name := EventDrop
			if c == recovery.CueSplash {
				name = EventSplash
			}
			svc.board.Publish(Event{Name: name})
		},
		Refresh: func(ctx context.Context) {
			out := svc.Resolve(ctx, TriggerBackground, false)
			if out.Err != nil {
				logger.Debug("background refresh failed", slog.String("error", out.Err.Error()))
			}
		},
	}

	svc.hookMu.Lock()
	svc.onBlocked = sup.blocked
	svc.onReady = sup.ready
	svc.hookMu.Unlock()
	return sup
}

// Recovering reports whether the recovery loop is running.
func (s *Supervisor) Recovering() bool {
	return s.trigger.Active()
}

// Stop halts the loop and the countdown. Call it on shutdown.
func (s *Supervisor) Stop() {
	s.trigger.Deactivate()
	s.ticker.Stop()
}

func (s *Supervisor) blocked(st Status) {
	if !st.ResetAt.Equal(s.ticker.Target()) {
		s.ticker.Start(st.ResetAt)
	}
	if !s.trigger.Active() {
		s.logger.Info("starting recovery loop",
			slog.Bool("rate_limited", st.RateLimited()),
			slog.Bool("stale_available", st.StaleAvailable),
		)
		s.trigger.Activate(s.base)
	}
}

// ready may run on the trigger's own goroutine (a background refresh that
// succeeded), and Deactivate waits for that goroutine, so it is not called
// inline.
func (s *Supervisor) ready() {
	s.ticker.Stop()
	go func() {
		s.trigger.Deactivate()
		s.logger.Info("recovery loop stopped")
	}()
}
