package viewer

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/giveaway/go/internal/draw/events"
	"github.com/rs/zerolog/log"
)

// Driver runs one viewer: it feeds push and poll events into a Reconciler,
// fires the local countdown and wakes up at every derived transition.
type Driver struct {
	feed     Feed
	schedule NextDrawSource
	rec      *Reconciler
	clock    clockwork.Clock
	cfg      Config
	// mobile viewers never open the push channel.
	mobile bool

	info     NextDrawInfo
	lastSeen time.Time
}

func NewDriver(feed Feed, schedule NextDrawSource, rec *Reconciler, clock clockwork.Clock, cfg Config, mobile bool) *Driver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Driver{
		feed:     feed,
		schedule: schedule,
		rec:      rec,
		clock:    clock,
		cfg:      cfg,
		mobile:   mobile,
	}
}

// Run blocks until ctx is done. onChange is called with every distinct view.
func (d *Driver) Run(ctx context.Context, onChange func(View)) error {
	var last *View
	emit := func(v View) {
		if last != nil && last.sameAs(v) {
			return
		}
		last = &v
		if onChange != nil {
			onChange(v)
		}
	}

	view, err := d.rec.Restore(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to restore sync state")
	}
	emit(view)

	countdown := newAlarm(d.clock)
	transition := newAlarm(d.clock)
	reconnect := newAlarm(d.clock)
	defer countdown.clear()
	defer transition.clear()
	defer reconnect.clear()

	armTransition := func() {
		if at, ok := d.rec.NextTransition(); ok {
			transition.set(at)
		} else {
			transition.clear()
		}
	}
	apply := func(ev events.DrawCompleted) {
		if ev.DrawTimestamp.After(d.lastSeen) {
			d.lastSeen = ev.DrawTimestamp
		}
		changed, err := d.rec.Observe(ctx, ev)
		if err != nil {
			log.Warn().Err(err).Str("draw_id", ev.DrawID.String()).Msg("failed to apply draw event")
		}
		if changed {
			armTransition()
			emit(d.rec.View())
		}
	}
	refresh := func() {
		if err := d.refreshSchedule(ctx); err != nil {
			log.Debug().Err(err).Msg("next draw unavailable")
			return
		}
		countdown.set(d.info.NextDrawAt)
	}

	var push <-chan events.DrawCompleted
	subscribe := func() {
		ch, err := d.feed.Subscribe(ctx)
		if err != nil {
			// Polling covers the gap.
			log.Debug().Err(err).Msg("push channel unavailable")
			reconnect.set(d.clock.Now().Add(d.cfg.PollInterval))
			return
		}
		push = ch
	}

	if !d.mobile {
		subscribe()
	}
	refresh()
	d.poll(ctx, apply)
	armTransition()
	emit(d.rec.View())

	ticker := d.clock.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-push:
			if !ok {
				push = nil
				if ctx.Err() == nil {
					log.Debug().Msg("push channel lost, polling until reconnect")
					reconnect.set(d.clock.Now().Add(d.cfg.PollInterval))
				}
				continue
			}
			apply(ev)

		case <-ticker.Chan():
			if d.mobile || push == nil {
				d.poll(ctx, apply)
			}
			// The live grid only matters while idle; once the countdown has
			// elapsed the frozen snapshot is shown instead. A countdown due now
			// fires first, or the refresh would re-arm it to the next week.
			if d.rec.View().State == StateIdle && (d.info.NextDrawAt.IsZero() || d.info.NextDrawAt.After(d.clock.Now())) {
				refresh()
			}

		case <-countdown.C():
			countdown.clear()
			v := d.rec.CountdownElapsed(ctx, d.info.Participants)
			armTransition()
			emit(v)
			// Catch up in case the event landed before the local countdown.
			d.poll(ctx, apply)

		case <-transition.C():
			transition.clear()
			v, err := d.rec.Sync(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("failed to sync viewer state")
			}
			armTransition()
			emit(v)
			if v.State == StateIdle {
				refresh()
			}

		case <-reconnect.C():
			reconnect.clear()
			subscribe()
			d.poll(ctx, apply)
		}
	}
}

func (d *Driver) refreshSchedule(ctx context.Context) error {
	info, err := d.schedule.NextDraw(ctx)
	if err != nil {
		return err
	}
	d.info = info
	return nil
}

func (d *Driver) poll(ctx context.Context, apply func(events.DrawCompleted)) {
	draws, err := d.feed.PollSince(ctx, d.lastSeen)
	if err != nil {
		log.Debug().Err(err).Msg("poll failed")
		return
	}
	for _, ev := range draws {
		apply(ev)
	}
}

func (v View) sameAs(o View) bool {
	if v.State != o.State || v.DrawID != o.DrawID || v.Winner != o.Winner {
		return false
	}
	if len(v.Participants) != len(o.Participants) {
		return false
	}
	for i := range v.Participants {
		if v.Participants[i] != o.Participants[i] {
			return false
		}
	}
	return true
}

// alarm is a one-shot timer whose channel is nil while disarmed.
type alarm struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func newAlarm(clock clockwork.Clock) *alarm {
	return &alarm{clock: clock}
}

func (a *alarm) set(at time.Time) {
	a.clear()
	wait := at.Sub(a.clock.Now())
	if wait < 0 {
		wait = 0
	}
	a.timer = a.clock.NewTimer(wait)
}

func (a *alarm) clear() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *alarm) C() <-chan time.Time {
	if a.timer == nil {
		return nil
	}
	return a.timer.Chan()
}
