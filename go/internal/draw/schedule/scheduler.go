package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DrawFunc is invoked at each scheduled instant.
type DrawFunc func(ctx context.Context, instant time.Time) error

// DefaultMaxSleep bounds a single timer so a suspended host or a wall-clock jump
// is noticed within the hour instead of after a multi-day relative delay.
const DefaultMaxSleep = time.Hour

// Scheduler fires a DrawFunc at every instant of a Policy.
type Scheduler struct {
	policy   *Policy
	clock    clockwork.Clock
	maxSleep time.Duration

	mu    sync.Mutex
	armed time.Time
}

// NewScheduler creates a scheduler. A nil clock means the real clock.
func NewScheduler(policy *Policy, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		policy:   policy,
		clock:    clock,
		maxSleep: DefaultMaxSleep,
	}
}

// Run arms the scheduler for the next eligible instant and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context, fn DrawFunc) error {
	return s.Arm(ctx, s.policy.NextEligibleInstant(s.clock.Now()), fn)
}

// Arm invokes fn once at instant. After every invocation, whether it failed or
// not, it re-arms for the next instant derived from the current wall clock.
// It returns ctx.Err() when ctx is cancelled.
func (s *Scheduler) Arm(ctx context.Context, instant time.Time, fn DrawFunc) error {
	log.Info().
		Str("policy", s.policy.Describe()).
		Time("first_instant", instant).
		Msg("draw scheduler started")

	for {
		if err := s.waitUntil(ctx, instant); err != nil {
			log.Info().Msg("draw scheduler stopped")
			return err
		}

		s.invoke(ctx, instant, fn)

		instant = s.policy.NextEligibleInstant(s.clock.Now())
	}
}

// Armed returns the instant the scheduler is currently waiting for.
func (s *Scheduler) Armed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

func (s *Scheduler) setArmed(t time.Time) {
	s.mu.Lock()
	s.armed = t
	s.mu.Unlock()
}

// waitUntil sleeps in bounded steps until the clock reaches instant.
func (s *Scheduler) waitUntil(ctx context.Context, instant time.Time) error {
	s.setArmed(instant)
	log.Info().
		Time("instant", instant).
		Dur("in", instant.Sub(s.clock.Now())).
		Msg("draw armed")

	for {
		remaining := instant.Sub(s.clock.Now())
		if remaining <= 0 {
			return nil
		}
		if remaining > s.maxSleep {
			remaining = s.maxSleep
		}

		timer := s.clock.NewTimer(remaining)
		select {
		case <-timer.Chan():
		case <-ctx.Done():
			stopAndDrainTimer(timer)
			return ctx.Err()
		}
	}
}

func (s *Scheduler) invoke(ctx context.Context, instant time.Time, fn DrawFunc) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Err(fmt.Errorf("panic: %v", r)).
				Time("instant", instant).
				Msg("scheduled draw panicked, re-arming")
		}
	}()

	if err := fn(ctx, instant); err != nil {
		log.Error().
			Err(err).
			Time("instant", instant).
			Msg("scheduled draw failed, re-arming")
		return
	}
	log.Debug().Time("instant", instant).Msg("scheduled draw completed")
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
