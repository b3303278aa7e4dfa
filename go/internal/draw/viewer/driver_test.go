package viewer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/giveaway/go/internal/draw/events"
)

type fakeFeed struct {
	mu     sync.Mutex
	subs   []chan events.DrawCompleted
	subErr error
	draws  []events.DrawCompleted
	polls  int
}

func (f *fakeFeed) Subscribe(context.Context) (<-chan events.DrawCompleted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	ch := make(chan events.DrawCompleted, 4)
	f.subs = append(f.subs, ch)
	return ch, nil
}

func (f *fakeFeed) PollSince(_ context.Context, after time.Time) ([]events.DrawCompleted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	var out []events.DrawCompleted
	for _, d := range f.draws {
		if d.DrawTimestamp.After(after) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeFeed) sub(i int) chan events.DrawCompleted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

func (f *fakeFeed) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeFeed) setDraws(d ...events.DrawCompleted) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draws = d
}

type fakeSchedule struct {
	info NextDrawInfo
	err  error
}

func (s fakeSchedule) NextDraw(context.Context) (NextDrawInfo, error) {
	return s.info, s.err
}

func startDriver(t *testing.T, d *Driver) <-chan View {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	views := make(chan View, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx, func(v View) { views <- v })
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return views
}

func waitState(t *testing.T, views <-chan View, want State) View {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case v := <-views:
			if v.State == want {
				return v
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func blockUntil(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("waiting for %d timers: %v", n, err)
	}
}

func TestDriverFullCycle(t *testing.T) {
	clock := clockwork.NewFakeClockAt(drawAt.Add(-5 * time.Second))
	cfg := DefaultConfig()
	cfg.PollInterval = time.Minute

	feed := &fakeFeed{}
	sched := fakeSchedule{info: NextDrawInfo{
		NextDrawAt:   drawAt,
		Participants: []string{"alice", "bob", "carol"},
	}}
	rec := NewReconciler(NewMemoryStore(), clock, cfg)
	views := startDriver(t, NewDriver(feed, sched, rec, clock, cfg, false))

	waitState(t, views, StateIdle)
	// countdown + poll ticker
	blockUntil(t, clock, 2)

	clock.Advance(5 * time.Second)
	awaiting := waitState(t, views, StateAwaitingDraw)
	if diff := cmp.Diff([]string{"alice", "bob", "carol"}, awaiting.Participants); diff != "" {
		t.Errorf("frozen grid mismatch (-want +got):\n%s", diff)
	}

	ev := drawEvent(firstID, drawAt)
	ev.Participants = nil
	feed.setDraws(ev)
	feed.sub(0) <- ev

	animating := waitState(t, views, StateAnimating)
	if animating.Remaining != cfg.Animation {
		t.Errorf("remaining = %s, want %s", animating.Remaining, cfg.Animation)
	}
	if len(animating.Participants) != 3 {
		t.Errorf("participants = %v, want frozen grid", animating.Participants)
	}

	clock.Advance(cfg.Animation)
	revealed := waitState(t, views, StateRevealed)
	if revealed.Winner != "alice" {
		t.Errorf("winner = %q", revealed.Winner)
	}

	clock.Advance(cfg.DisplayWindow - cfg.Animation)
	waitState(t, views, StateIdle)
}

func TestDriverMobilePollsOnly(t *testing.T) {
	clock := clockwork.NewFakeClockAt(drawAt.Add(3 * time.Second))
	cfg := DefaultConfig()

	feed := &fakeFeed{}
	feed.setDraws(drawEvent(firstID, drawAt))
	rec := NewReconciler(NewMemoryStore(), clock, cfg)
	views := startDriver(t, NewDriver(feed, fakeSchedule{err: errors.New("down")}, rec, clock, cfg, true))

	v := waitState(t, views, StateAnimating)
	if v.Remaining != 7*time.Second {
		t.Errorf("remaining = %s, want 7s", v.Remaining)
	}
	if n := feed.subscriptions(); n != 0 {
		t.Errorf("mobile viewer subscribed %d times", n)
	}
}

func TestDriverFallsBackToPollingWhenPushDrops(t *testing.T) {
	clock := clockwork.NewFakeClockAt(drawAt.Add(-time.Minute))
	cfg := DefaultConfig()

	feed := &fakeFeed{}
	rec := NewReconciler(NewMemoryStore(), clock, cfg)
	views := startDriver(t, NewDriver(feed, fakeSchedule{err: errors.New("down")}, rec, clock, cfg, false))

	waitState(t, views, StateIdle)
	blockUntil(t, clock, 1)
	if n := feed.subscriptions(); n != 1 {
		t.Fatalf("subscriptions = %d, want 1", n)
	}

	close(feed.sub(0))
	// ticker + reconnect
	blockUntil(t, clock, 2)

	feed.setDraws(drawEvent(firstID, clock.Now()))
	clock.Advance(cfg.PollInterval)
	waitState(t, views, StateAnimating)

	deadline := time.Now().Add(2 * time.Second)
	for feed.subscriptions() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("push channel never reconnected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// weeklySchedule serves this week's draw until it is due, then next week's.
type weeklySchedule struct {
	clock clockwork.Clock
}

func (s weeklySchedule) NextDraw(context.Context) (NextDrawInfo, error) {
	if s.clock.Now().Before(drawAt) {
		return NextDrawInfo{NextDrawAt: drawAt, Participants: []string{"alice", "bob"}}, nil
	}
	return NextDrawInfo{NextDrawAt: drawAt.AddDate(0, 0, 7), Participants: []string{"next-week"}}, nil
}

func TestDriverCountdownSurvivesCoincidingPollTick(t *testing.T) {
	// The ticker and the countdown fire on the same instant; whichever the
	// driver handles first, the viewer must still enter AwaitingDraw.
	for i := 0; i < 20; i++ {
		clock := clockwork.NewFakeClockAt(drawAt.Add(-5 * time.Second))
		cfg := DefaultConfig()
		cfg.PollInterval = 5 * time.Second

		rec := NewReconciler(NewMemoryStore(), clock, cfg)
		ctx, cancel := context.WithCancel(context.Background())
		views := make(chan View, 64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = NewDriver(&fakeFeed{}, weeklySchedule{clock: clock}, rec, clock, cfg, true).Run(ctx, func(v View) { views <- v })
		}()

		waitState(t, views, StateIdle)
		blockUntil(t, clock, 2)
		clock.Advance(5 * time.Second)

		v := waitState(t, views, StateAwaitingDraw)
		if diff := cmp.Diff([]string{"alice", "bob"}, v.Participants); diff != "" {
			t.Errorf("run %d: frozen grid (-want +got):\n%s", i, diff)
		}
		cancel()
		<-done
	}
}
