package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

type ListenerConfig struct {
	DatabaseURL      string        // DSN for LISTEN/NOTIFY
	NotifyChannel    string        // channel the outbox trigger notifies
	FallbackInterval time.Duration // poll for events whose notification was missed
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	BatchSize        int
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "draw_outbox_events",
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// Publisher sends one outbox event to the broker.
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// EventStore is what the relay needs from the outbox table.
type EventStore interface {
	FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	FetchUnsent(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
}

// Listener relays outbox rows to the broker as they are notified, and sweeps
// for unsent rows on an interval.
type Listener struct {
	store     EventStore
	publisher Publisher
	cfg       ListenerConfig
	clock     clockwork.Clock

	pq     *pq.Listener
	notify <-chan *pq.Notification
	ping   func() error

	running   *atomic.Bool
	processed *atomic.Uint64
	lastEvent *atomic.Time
}

func NewListener(store EventStore, publisher Publisher, cfg ListenerConfig) (*Listener, error) {
	pl := pq.NewListener(cfg.DatabaseURL, 10*time.Second, time.Minute,
		func(_ pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		})
	if err := pl.Listen(cfg.NotifyChannel); err != nil {
		pl.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}
	log.Info().Str("channel", cfg.NotifyChannel).Msg("listening for notifications")

	l := newListener(store, publisher, cfg, clockwork.NewRealClock(), pl.Notify)
	l.pq = pl
	l.ping = pl.Ping
	return l, nil
}

func newListener(store EventStore, publisher Publisher, cfg ListenerConfig, clock clockwork.Clock, notify <-chan *pq.Notification) *Listener {
	return &Listener{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		clock:     clock,
		notify:    notify,
		ping:      func() error { return nil },
		running:   atomic.NewBool(false),
		processed: atomic.NewUint64(0),
		lastEvent: atomic.NewTime(time.Time{}),
	}
}

// Start relays until ctx is cancelled. Rows left over from a previous run are
// swept first.
func (l *Listener) Start(ctx context.Context) error {
	l.running.Store(true)
	defer l.running.Store(false)

	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	if err := l.processUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process unsent events")
	}

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note := <-l.notify:
			if note == nil {
				// connection was re-established; notifications may have been lost
				if err := l.processUnsent(ctx); err != nil {
					log.Error().Err(err).Msg("failed to process unsent events after reconnect")
				}
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.Chan():
			if err := l.processUnsent(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process unsent events")
			}
		case <-pingTicker.Chan():
			if err := l.ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	if l.pq == nil {
		return nil
	}
	return l.pq.Close()
}

// Running reports whether Start is looping.
func (l *Listener) Running() bool { return l.running.Load() }

// Stats returns the number of relayed events and when the last one went out.
func (l *Listener) Stats() (uint64, time.Time) {
	return l.processed.Load(), l.lastEvent.Load()
}

// handleNotification relays the outbox row named by the notification payload.
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := l.store.FetchByID(ctx, id)
	if errors.Is(err, ErrEventNotFound) {
		// the fallback sweep got there first
		log.Debug().Str("event_id", id.String()).Msg("outbox event already sent")
		return nil
	}
	if err != nil {
		return err
	}

	return l.relay(ctx, *event)
}

func (l *Listener) processUnsent(ctx context.Context) error {
	unsent, err := l.store.FetchUnsent(ctx, l.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, event := range unsent {
		if err := l.relay(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to relay event")
		}
	}
	return nil
}

func (l *Listener) relay(ctx context.Context, event OutboxEvent) error {
	if err := l.publishWithRetry(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	// A failure here means a re-publish later, which the broker drops by message ID.
	if err := l.store.MarkSent(ctx, event.ID); err != nil {
		return err
	}

	l.processed.Inc()
	l.lastEvent.Store(l.clock.Now())
	log.Info().
		Str("event_id", event.ID.String()).
		Str("draw_id", event.DrawID.String()).
		Msg("published and marked event as sent")
	return nil
}

// publishWithRetry publishes with linear backoff.
func (l *Listener) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.clock.After(l.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := l.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", l.cfg.MaxRetries+1, lastErr)
}
