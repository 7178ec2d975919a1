// Package sse serves hub channels as Server-Sent Events for clients without WebSocket.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"example.com/moodsync/internal/hub"
)

const defaultHeartbeat = 15 * time.Second

var errClosed = errors.New("sse stream closed")

// Subscriber is the hub surface the handler needs.
type Subscriber interface {
	Subscribe(channel string, conn hub.Conn) (*hub.Subscription, error)
	Unsubscribe(sub *hub.Subscription)
}

// Handler streams one hub channel per request: GET {prefix}{channel}.
type Handler struct {
	hub       Subscriber
	prefix    string
	channels  []string
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewHandler builds a Handler. heartbeat <= 0 uses 15s.
func NewHandler(h Subscriber, prefix string, channels []string, heartbeat time.Duration, logger *zap.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: h, prefix: prefix, channels: channels, heartbeat: heartbeat, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "unsupported method", http.StatusMethodNotAllowed)
		return
	}
	channel := strings.Trim(strings.TrimPrefix(r.URL.Path, h.prefix), "/")
	if !slices.Contains(h.channels, channel) {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	conn := &Conn{w: w, flusher: flusher, rc: http.NewResponseController(w), closed: make(chan struct{})}
	sub, err := h.hub.Subscribe(channel, conn)
	if err != nil {
		h.logger.Info("sse subscribe rejected", zap.String("channel", channel), zap.Error(err))
		return
	}
	defer func() {
		h.hub.Unsubscribe(sub)
		// The response writer is invalid once ServeHTTP returns; wait out any write in progress.
		conn.mu.Lock()
		conn.mu.Unlock()
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case <-ticker.C:
			if err := conn.comment("keepalive"); err != nil {
				return
			}
		}
	}
}

// Conn writes hub events as SSE frames.
type Conn struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	closed  chan struct{}
	once    sync.Once
}

// Send writes "event: <type>" and "data: <json>" and flushes.
func (c *Conn) Send(ctx context.Context, event hub.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return errClosed
	default:
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.rc.SetWriteDeadline(deadline)
	}
	if _, err := fmt.Fprintf(c.w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	c.flusher.Flush()
	return nil
}

func (c *Conn) comment(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return errClosed
	default:
	}
	if _, err := fmt.Fprintf(c.w, ": %s\n\n", text); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

// Close marks the stream finished; the handler returns and the server ends the
// response.
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
