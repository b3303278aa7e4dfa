package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/giveaway/go/internal/draw/events"
	"github.com/mcdev12/giveaway/go/internal/models"
)

var drawTime = time.Date(2025, 3, 5, 19, 0, 0, 0, time.UTC)

type fakeReader struct {
	winners []models.WinnerRecord
	err     error
	after   time.Time
}

func (f *fakeReader) LatestWinner(context.Context) (*models.WinnerRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.winners) == 0 {
		return nil, nil
	}
	w := f.winners[len(f.winners)-1]
	return &w, nil
}

func (f *fakeReader) ListWinnersSince(_ context.Context, after time.Time, _ int) ([]models.WinnerRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.after = after
	var out []models.WinnerRecord
	for _, w := range f.winners {
		if w.DrawTimestamp.After(after) {
			out = append(out, w)
		}
	}
	return out, nil
}

func sampleDraw(at time.Time) events.DrawCompleted {
	return events.DrawCompleted{
		DrawID:            uuid.New(),
		WinnerDisplayName: "alice",
		DrawTimestamp:     at,
		Amount:            20,
		Participants:      []string{"alice", "bob"},
	}
}

type testGateway struct {
	cm     *ConnectionManager
	clock  *clockwork.FakeClock
	server *httptest.Server
	reader *fakeReader
}

func newTestGateway(t *testing.T, now time.Time) *testGateway {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)
	cm := NewConnectionManager(DefaultConnectionConfig(), clock)
	reader := &fakeReader{}

	mux := http.NewServeMux()
	RegisterRoutes(mux, NewWebSocketHandler(cm), NewDrawsHandler(reader, cm))
	srv := httptest.NewServer(mux)

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testGateway{cm: cm, clock: clock, server: srv, reader: reader}
}

func (g *testGateway) dial(t *testing.T, class string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ws/draws?client=" + class
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (g *testGateway) waitViewers(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for g.cm.Stats().Viewers != n {
		if time.Now().After(deadline) {
			t.Fatalf("viewers = %d, want %d", g.cm.Stats().Viewers, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) events.ViewerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg events.ViewerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestNewViewerReceivesRecentResult(t *testing.T) {
	g := newTestGateway(t, drawTime.Add(3*time.Second))
	draw := sampleDraw(drawTime)
	g.cm.Seed(draw)

	conn := g.dial(t, "desktop")
	msg := readMessage(t, conn)
	if msg.Type != events.MessageTypeSync {
		t.Fatalf("type = %q, want sync", msg.Type)
	}
	got, err := events.ParseDrawCompleted(msg.Data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff(draw, got); diff != "" {
		t.Errorf("sync payload (-want +got):\n%s", diff)
	}
	if !msg.ServerTime.Equal(drawTime.Add(3 * time.Second)) {
		t.Errorf("server time = %v", msg.ServerTime)
	}
}

func TestNewViewerSkipsStaleResult(t *testing.T) {
	g := newTestGateway(t, drawTime.Add(20*time.Minute))
	g.cm.Seed(sampleDraw(drawTime))

	conn := g.dial(t, "desktop")
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("stale result should not be replayed")
	}
}

func TestBroadcastReachesViewersOnce(t *testing.T) {
	g := newTestGateway(t, drawTime)
	desktop := g.dial(t, "desktop")
	mobile := g.dial(t, "mobile")
	g.waitViewers(t, 2)

	draw := sampleDraw(drawTime)
	if !g.cm.Broadcast(draw) {
		t.Fatal("first broadcast rejected")
	}
	if g.cm.Broadcast(draw) {
		t.Fatal("duplicate drawId was broadcast")
	}

	for _, conn := range []*websocket.Conn{desktop, mobile} {
		msg := readMessage(t, conn)
		if msg.Type != events.MessageTypeWinnerDrawn {
			t.Errorf("type = %q", msg.Type)
		}
	}

	stats := g.cm.Stats()
	if stats.Mobile != 1 || stats.Desktop != 1 || stats.Accepted != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.LatestDraw != draw.DrawID.String() {
		t.Errorf("latest draw = %q", stats.LatestDraw)
	}
}

func TestBroadcastIgnoresRedeliveryOfOlderDraw(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), clockwork.NewFakeClockAt(drawTime))
	a := sampleDraw(drawTime)
	b := sampleDraw(drawTime.Add(7 * 24 * time.Hour))

	if !cm.Broadcast(a) {
		t.Fatal("first draw rejected")
	}
	if !cm.Broadcast(b) {
		t.Fatal("newer draw rejected")
	}
	if cm.Broadcast(a) {
		t.Fatal("redelivered older draw was broadcast")
	}
	if got := cm.Latest(); got == nil || got.DrawID != b.DrawID {
		t.Errorf("latest = %+v, want draw %s", got, b.DrawID)
	}
	if queued := len(cm.broadcastCh); queued != 2 {
		t.Errorf("queued broadcasts = %d, want 2", queued)
	}
}

func TestSendSyncSkipsClosedConnections(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), clockwork.NewFakeClockAt(drawTime.Add(time.Second)))
	cm.Seed(sampleDraw(drawTime))

	tests := []struct {
		name  string
		close func(c *Connection)
	}{
		{name: "unregistered", close: func(c *Connection) { cm.unregister(c) }},
		{name: "shutdown", close: func(*Connection) { cm.closeAll() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Connection{ID: tt.name, Class: ClassDesktop, Send: make(chan []byte, 1), Manager: cm}
			cm.register(c)
			tt.close(c)

			cm.sendSync(c)
			if _, open := <-c.Send; open {
				t.Error("sync message sent to a closed connection")
			}
		})
	}
}

type recordingBroadcaster struct {
	got []events.DrawCompleted
}

func (r *recordingBroadcaster) Broadcast(e events.DrawCompleted) bool {
	r.got = append(r.got, e)
	return true
}

func TestHandleEnvelope(t *testing.T) {
	draw := sampleDraw(drawTime)
	payload, _ := json.Marshal(draw)
	envelope := func(eventType string, p json.RawMessage) []byte {
		b, _ := json.Marshal(events.Envelope{EventID: uuid.NewString(), EventType: eventType, Timestamp: drawTime, Payload: p})
		return b
	}

	tests := []struct {
		name     string
		data     []byte
		wantErr  bool
		wantSent int
	}{
		{name: "winner drawn", data: envelope(events.EventTypeWinnerDrawn, payload), wantSent: 1},
		{name: "unknown type", data: envelope("Something", payload)},
		{name: "not json", data: []byte("{"), wantErr: true},
		{name: "invalid payload", data: envelope(events.EventTypeWinnerDrawn, json.RawMessage(`{"drawId":"00000000-0000-0000-0000-000000000000"}`)), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &recordingBroadcaster{}
			err := handleEnvelope(tt.data, b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(b.got) != tt.wantSent {
				t.Errorf("broadcasts = %d, want %d", len(b.got), tt.wantSent)
			}
		})
	}
}

func TestDrawsSince(t *testing.T) {
	g := newTestGateway(t, drawTime.Add(time.Hour))
	w1 := models.WinnerRecord{ID: uuid.New(), DisplayName: "alice", DrawTimestamp: drawTime.Add(-72 * time.Hour), Amount: 20}
	w2 := models.WinnerRecord{ID: uuid.New(), DisplayName: "bob", DrawTimestamp: drawTime, Amount: 20}
	g.reader.winners = []models.WinnerRecord{w1, w2}
	g.cm.Seed(events.DrawCompleted{DrawID: w2.ID, WinnerDisplayName: "bob", DrawTimestamp: drawTime, Amount: 20, Participants: []string{"alice", "bob"}})

	resp, err := http.Get(g.server.URL + "/api/draws/since?after=" + drawTime.Add(-time.Hour).Format(time.RFC3339Nano))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body SinceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Draws) != 1 || body.Draws[0].DrawID != w2.ID {
		t.Fatalf("draws = %+v", body.Draws)
	}
	if diff := cmp.Diff([]string{"alice", "bob"}, body.Draws[0].Participants); diff != "" {
		t.Errorf("participants (-want +got):\n%s", diff)
	}
}

func TestDrawsSinceDefaultsToStaleBound(t *testing.T) {
	now := drawTime.Add(time.Hour)
	g := newTestGateway(t, now)

	resp, err := http.Get(g.server.URL + "/api/draws/since")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if !g.reader.after.Equal(now.Add(-15 * time.Minute)) {
		t.Errorf("after = %v", g.reader.after)
	}

	resp, err = http.Get(g.server.URL + "/api/draws/since?after=yesterday")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDrawsLatest(t *testing.T) {
	g := newTestGateway(t, drawTime)

	get := func() LatestResponse {
		t.Helper()
		resp, err := http.Get(g.server.URL + "/api/draws/latest")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		var body LatestResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body
	}

	if body := get(); body.Draw != nil {
		t.Errorf("expected null draw, got %+v", body.Draw)
	}

	w := models.WinnerRecord{ID: uuid.New(), DisplayName: "carol", DrawTimestamp: drawTime, Amount: 20}
	g.reader.winners = []models.WinnerRecord{w}
	body := get()
	if body.Draw == nil || body.Draw.DrawID != w.ID || body.Draw.WinnerDisplayName != "carol" {
		t.Errorf("draw = %+v", body.Draw)
	}

	g.reader.err = errors.New("db down")
	resp, err := http.Get(g.server.URL + "/api/draws/latest")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}
