package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/giveaway/go/internal/draw/events"
	"github.com/rs/zerolog/log"
)

// Feed is the viewer's view of the event notifier: a push subscription plus a
// poll for anything newer than a timestamp.
type Feed interface {
	// Subscribe returns a channel that is closed when the push connection drops.
	Subscribe(ctx context.Context) (<-chan events.DrawCompleted, error)
	PollSince(ctx context.Context, after time.Time) ([]events.DrawCompleted, error)
}

// NextDrawInfo is the countdown target and the live registration grid.
type NextDrawInfo struct {
	NextDrawAt       time.Time `json:"nextDrawAt"`
	RegistrationOpen bool      `json:"registrationOpen"`
	ServerTime       time.Time `json:"serverTime"`
	Participants     []string  `json:"participants"`
}

type NextDrawSource interface {
	NextDraw(ctx context.Context) (NextDrawInfo, error)
}

// Client talks to the draw service and the gateway over HTTP and websocket.
type Client struct {
	serviceURL string
	gatewayURL string
	class      string
	http       *http.Client
	dialer     *websocket.Dialer
}

func NewClient(serviceURL, gatewayURL, class string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		class:      class,
		http:       httpClient,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (c *Client) Subscribe(ctx context.Context) (<-chan events.DrawCompleted, error) {
	wsURL, err := websocketURL(c.gatewayURL, "/ws/draws", url.Values{"client": {c.class}})
	if err != nil {
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	out := make(chan events.DrawCompleted, 4)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()

		for {
			var msg events.ViewerMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Msg("draw feed closed")
				}
				return
			}
			if msg.Type != events.MessageTypeWinnerDrawn && msg.Type != events.MessageTypeSync {
				continue
			}
			ev, err := events.ParseDrawCompleted(msg.Data)
			if err != nil {
				log.Debug().Err(err).Str("type", msg.Type).Msg("dropping malformed feed message")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) PollSince(ctx context.Context, after time.Time) ([]events.DrawCompleted, error) {
	q := url.Values{}
	if !after.IsZero() {
		q.Set("after", after.UTC().Format(time.RFC3339Nano))
	}
	var resp struct {
		Draws []events.DrawCompleted `json:"draws"`
	}
	if err := c.getJSON(ctx, c.gatewayURL+"/api/draws/since?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Draws, nil
}

func (c *Client) NextDraw(ctx context.Context) (NextDrawInfo, error) {
	var info NextDrawInfo
	if err := c.getJSON(ctx, c.serviceURL+"/api/draws/next", &info); err != nil {
		return NextDrawInfo{}, err
	}
	return info, nil
}

func (c *Client) getJSON(ctx context.Context, target string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", target, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}

func websocketURL(base, path string, q url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported gateway scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String(), nil
}
