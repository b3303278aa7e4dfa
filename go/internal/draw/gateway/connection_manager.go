package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/giveaway/go/internal/draw/events"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

// ClientClass is the viewer's self-reported device class.
type ClientClass string

const (
	ClassDesktop ClientClass = "desktop"
	ClassMobile  ClientClass = "mobile"
)

func parseClientClass(s string) ClientClass {
	if ClientClass(s) == ClassMobile {
		return ClassMobile
	}
	return ClassDesktop
}

// ConnectionManager keeps the viewer pool and fans draw results out to it.
type ConnectionManager struct {
	conns map[*Connection]struct{}
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock

	broadcastCh chan []byte

	latestMu sync.RWMutex
	latest   *events.DrawCompleted

	accepted   *atomic.Uint64
	broadcasts *atomic.Uint64
	dropped    *atomic.Uint64
}

// Connection is one websocket viewer.
type Connection struct {
	ID          string
	Class       ClientClass
	Conn        *websocket.Conn
	Send        chan []byte
	Manager     *ConnectionManager
	ConnectedAt time.Time
}

type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	// StaleAfter bounds how old a result may be and still be replayed to a new viewer.
	StaleAfter  time.Duration
	CheckOrigin func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBuffer:      16,
		StaleAfter:      15 * time.Minute,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectionManager{
		conns: make(map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       clock,
		broadcastCh: make(chan []byte, 64),
		accepted:    atomic.NewUint64(0),
		broadcasts:  atomic.NewUint64(0),
		dropped:     atomic.NewUint64(0),
	}
}

// Start fans queued messages out until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case msg := <-cm.broadcastCh:
			cm.fanOut(msg)
		}
	}
}

// Seed sets the result replayed to new viewers, unless a newer one is known.
func (cm *ConnectionManager) Seed(event events.DrawCompleted) {
	cm.latestMu.Lock()
	defer cm.latestMu.Unlock()
	if cm.latest == nil || event.DrawTimestamp.After(cm.latest.DrawTimestamp) {
		cm.latest = &event
	}
}

// Latest returns the most recent result seen by this gateway.
func (cm *ConnectionManager) Latest() *events.DrawCompleted {
	cm.latestMu.RLock()
	defer cm.latestMu.RUnlock()
	if cm.latest == nil {
		return nil
	}
	e := *cm.latest
	return &e
}

// Broadcast queues event for every viewer. An event no newer than the latest
// result is ignored, so broker redeliveries reach viewers once even after a
// later draw has gone out.
func (cm *ConnectionManager) Broadcast(event events.DrawCompleted) bool {
	cm.latestMu.Lock()
	if cm.latest != nil && !event.DrawTimestamp.After(cm.latest.DrawTimestamp) {
		latest := cm.latest.DrawID
		cm.latestMu.Unlock()
		log.Debug().
			Str("draw_id", event.DrawID.String()).
			Str("latest_draw_id", latest.String()).
			Msg("duplicate or out-of-order draw event ignored")
		return false
	}
	cm.latest = &event
	cm.latestMu.Unlock()

	data, err := cm.encode(events.MessageTypeWinnerDrawn, event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal draw event for broadcast")
		return false
	}

	select {
	case cm.broadcastCh <- data:
		return true
	default:
		log.Warn().Str("draw_id", event.DrawID.String()).Msg("broadcast channel full, dropping message")
		return false
	}
}

func (cm *ConnectionManager) encode(msgType string, payload any) ([]byte, error) {
	msg, err := events.NewViewerMessage(msgType, payload, cm.clock.Now())
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// UpgradeConnection upgrades r to a websocket and registers the viewer.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, class ClientClass) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:          uuid.New().String(),
		Class:       class,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: cm.clock.Now(),
	}
	cm.register(c)
	cm.sendSync(c)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Str("class", string(class)).
		Msg("viewer connected")
	return nil
}

// sendSync replays the latest result to a fresh viewer when it is recent
// enough to still be animating or on display.
func (cm *ConnectionManager) sendSync(c *Connection) {
	latest := cm.Latest()
	if latest == nil || cm.clock.Since(latest.DrawTimestamp) > cm.config.StaleAfter {
		return
	}
	data, err := cm.encode(events.MessageTypeSync, latest)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal sync message")
		return
	}
	// The send happens under the read lock so closeAll or an eviction cannot
	// close the channel mid-send.
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if _, ok := cm.conns[c]; !ok {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

func (cm *ConnectionManager) register(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conns[c] = struct{}{}
	cm.accepted.Inc()
	log.Debug().Str("connection_id", c.ID).Int("viewers", len(cm.conns)).Msg("connection registered")
}

func (cm *ConnectionManager) unregister(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, ok := cm.conns[c]; !ok {
		return
	}
	delete(cm.conns, c)
	close(c.Send)
	log.Info().Str("connection_id", c.ID).Msg("viewer disconnected")
}

func (cm *ConnectionManager) fanOut(msg []byte) {
	// Sends happen under the read lock so unregister cannot close a channel mid-send.
	var slow []*Connection
	cm.mu.RLock()
	viewers := len(cm.conns)
	for c := range cm.conns {
		select {
		case c.Send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	cm.mu.RUnlock()

	// Slow viewers are dropped; they catch up through the poll fallback.
	for _, c := range slow {
		log.Warn().Str("connection_id", c.ID).Msg("connection send buffer full, closing connection")
		cm.dropped.Inc()
		cm.unregister(c)
		c.Conn.Close()
	}
	cm.broadcasts.Inc()
	log.Debug().Int("viewers", viewers).Int("dropped", len(slow)).Msg("draw event broadcast")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for c := range cm.conns {
		delete(cm.conns, c)
		close(c.Send)
	}
}

// Stats summarizes the viewer pool.
type Stats struct {
	Viewers    int    `json:"viewers"`
	Desktop    int    `json:"desktop"`
	Mobile     int    `json:"mobile"`
	Accepted   uint64 `json:"accepted_total"`
	Broadcasts uint64 `json:"broadcasts_total"`
	Dropped    uint64 `json:"dropped_total"`
	LatestDraw string `json:"latest_draw_id,omitempty"`
}

func (cm *ConnectionManager) Stats() Stats {
	cm.mu.RLock()
	s := Stats{Viewers: len(cm.conns)}
	for c := range cm.conns {
		if c.Class == ClassMobile {
			s.Mobile++
		} else {
			s.Desktop++
		}
	}
	cm.mu.RUnlock()

	s.Accepted = cm.accepted.Load()
	s.Broadcasts = cm.broadcasts.Load()
	s.Dropped = cm.dropped.Load()
	if latest := cm.Latest(); latest != nil {
		s.LatestDraw = latest.DrawID.String()
	}
	return s
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump only services control frames; viewers never send commands.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
