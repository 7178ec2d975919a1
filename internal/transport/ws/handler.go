// Package ws serves hub channels over WebSocket.
package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"example.com/moodsync/internal/hub"
)

const (
	defaultWriteWait  = 5 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultPingPeriod = 50 * time.Second
	maxMessageSize    = 4096
)

// Subscriber is the hub surface the handler needs.
type Subscriber interface {
	Subscribe(channel string, conn hub.Conn) (*hub.Subscription, error)
	Unsubscribe(sub *hub.Subscription)
}

// Config tunes the handler.
type Config struct {
	// Channels lists the channels clients may subscribe to.
	Channels []string
	// Origins lists allowed Origin headers; "*" or empty allows any.
	Origins    []string
	PingPeriod time.Duration
	PongWait   time.Duration
}

// Handler upgrades requests and attaches the connection to a hub channel. Serve it
// under a prefix such as "/ws/" to take the channel from the path, or with Fixed to
// pin it.
type Handler struct {
	hub      Subscriber
	cfg      Config
	upgrader websocket.Upgrader
	logger   *zap.Logger
	prefix   string
	fixed    string
}

// NewHandler builds a Handler that reads the channel from the path after prefix.
func NewHandler(h Subscriber, prefix string, cfg Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.PongWait <= cfg.PingPeriod {
		cfg.PongWait = cfg.PingPeriod + cfg.PingPeriod/5
	}
	handler := &Handler{hub: h, cfg: cfg, logger: logger, prefix: prefix}
	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     handler.checkOrigin,
	}
	return handler
}

// Fixed returns a copy of the handler bound to one channel regardless of path.
func (h *Handler) Fixed(channel string) *Handler {
	clone := *h
	clone.fixed = channel
	clone.upgrader.CheckOrigin = clone.checkOrigin
	return &clone
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.Origins) == 0 || slices.Contains(h.cfg.Origins, "*") {
		return true
	}
	return slices.Contains(h.cfg.Origins, origin)
}

func (h *Handler) channel(r *http.Request) string {
	if h.fixed != "" {
		return h.fixed
	}
	return strings.Trim(strings.TrimPrefix(r.URL.Path, h.prefix), "/")
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channel := h.channel(r)
	if channel == "" || !slices.Contains(h.cfg.Channels, channel) {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newConn(raw)
	sub, err := h.hub.Subscribe(channel, conn)
	if err != nil {
		h.logger.Info("websocket subscribe rejected", zap.String("channel", channel), zap.Error(err))
		_ = conn.closeWith(websocket.CloseGoingAway, "server unavailable")
		return
	}
	defer h.hub.Unsubscribe(sub)

	go h.keepalive(raw, sub.Done())
	h.readLoop(raw, sub.Done())
}

// readLoop consumes client frames so control messages are processed and a client
// close is observed. Payloads are ignored.
func (h *Handler) readLoop(raw *websocket.Conn, done <-chan struct{}) {
	raw.SetReadLimit(maxMessageSize)
	_ = raw.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})
	for {
		if _, _, err := raw.ReadMessage(); err != nil {
			select {
			case <-done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("websocket read ended", zap.Error(err))
				}
			}
			return
		}
	}
}

func (h *Handler) keepalive(raw *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := raw.WriteControl(websocket.PingMessage, nil, time.Now().Add(defaultWriteWait)); err != nil {
				return
			}
		}
	}
}

// Conn adapts a gorilla connection to hub.Conn. Events are written as JSON text
// frames: {"type": ..., "data": ...}.
type Conn struct {
	raw *websocket.Conn
}

func newConn(raw *websocket.Conn) *Conn { return &Conn{raw: raw} }

// Send writes one event, bounded by the context deadline.
func (c *Conn) Send(ctx context.Context, event hub.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteWait)
	}
	if err := c.raw.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.raw.WriteJSON(event)
}

// Close sends a close frame when possible and closes the socket.
func (c *Conn) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

func (c *Conn) closeWith(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.raw.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := c.raw.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
