package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"example.com/moodsync/internal/hub"
)

// WSDialer attaches to /ws/{channel} on a moodsync server.
type WSDialer struct {
	// BaseURL is the server address, e.g. ws://localhost:8080. http and https
	// schemes are rewritten to ws and wss.
	BaseURL string
	Header  http.Header
	Dialer  *websocket.Dialer
}

// Dial implements Dialer.
func (d WSDialer) Dial(ctx context.Context, channel string) (Stream, error) {
	target, err := d.endpoint(channel)
	if err != nil {
		return nil, err
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, target, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", target, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &wsStream{conn: conn}, nil
}

func (d WSDialer) endpoint(channel string) (string, error) {
	u, err := url.Parse(d.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/" + url.PathEscape(channel)
	return u.String(), nil
}

type wsStream struct {
	conn *websocket.Conn
	once sync.Once
}

func (s *wsStream) Receive(ctx context.Context) (hub.Event, error) {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	_, payload, err := s.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return hub.Event{}, ctx.Err()
		}
		return hub.Event{}, err
	}
	var event hub.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return hub.Event{}, fmt.Errorf("decode event: %w", err)
	}
	return event, nil
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
	})
	return err
}
