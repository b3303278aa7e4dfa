package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// pendingAlertThreshold marks a backlog worth reporting.
const pendingAlertThreshold = 1000

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	EventsProcessed   uint64    `json:"events_processed"`
	LastEventTime     time.Time `json:"last_event_time"`
	PendingEvents     int       `json:"pending_events"`
	DatabaseConnected bool      `json:"database_connected"`
	NATSConnected     bool      `json:"nats_connected"`
	ListenerActive    bool      `json:"listener_active"`
	Errors            []string  `json:"errors"`
}

// RelayStats is the part of the Listener the health check reads.
type RelayStats interface {
	Running() bool
	Stats() (uint64, time.Time)
}

// PendingCounter counts unsent outbox rows.
type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// ConnState reports broker connectivity; *nats.Conn satisfies it.
type ConnState interface {
	IsConnected() bool
}

type HealthChecker struct {
	relay     RelayStats
	pinger    func(ctx context.Context) error
	pending   PendingCounter
	conn      ConnState
	clock     clockwork.Clock
	threshold time.Duration // max age of the last relayed event while a backlog exists
}

func NewHealthChecker(relay RelayStats, pinger func(ctx context.Context) error, pending PendingCounter, conn ConnState, clock clockwork.Clock, threshold time.Duration) *HealthChecker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthChecker{
		relay:     relay,
		pinger:    pinger,
		pending:   pending,
		conn:      conn,
		clock:     clock,
		threshold: threshold,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{Healthy: true, Errors: []string{}}
	fail := func(msg string) {
		status.Healthy = false
		status.Errors = append(status.Errors, msg)
	}

	status.EventsProcessed, status.LastEventTime = h.relay.Stats()

	if err := h.pinger(ctx); err != nil {
		fail(fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.conn != nil {
		status.NATSConnected = h.conn.IsConnected()
		if !status.NATSConnected {
			fail("NATS disconnected")
		}
	}

	status.ListenerActive = h.relay.Running()
	if !status.ListenerActive {
		fail("listener not active")
	}

	if status.DatabaseConnected {
		pending, err := h.pending.CountPending(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > pendingAlertThreshold {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() {
		if since := h.clock.Since(status.LastEventTime); since > h.threshold {
			fail(fmt.Sprintf("no events processed for %s", since.Round(time.Second)))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}
