// Package client implements the consumer side of the broadcast protocol: a
// subscriber that reattaches to its channel after every disconnect.
package client

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"example.com/moodsync/internal/clock"
	"example.com/moodsync/internal/hub"
)

// Stream is an attached channel subscription.
type Stream interface {
	Receive(ctx context.Context) (hub.Event, error)
	Close() error
}

// Dialer attaches to a channel.
type Dialer interface {
	Dial(ctx context.Context, channel string) (Stream, error)
}

// Delivery is one event handed to the consumer. The first event of every connection
// is a snapshot and starts a new epoch; nothing from before the disconnect is replayed.
type Delivery struct {
	Event    hub.Event
	Snapshot bool
	Epoch    uint64
}

// Option configures a Client.
type Option func(*Client)

// WithClock sets the clock used for retry delays.
func WithClock(c clock.Clock) Option {
	return func(cl *Client) {
		if c != nil {
			cl.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// Client keeps one channel attachment alive until its context is cancelled.
type Client struct {
	dialer  Dialer
	channel string
	policy  RetryPolicy
	clock   clock.Clock
	logger  *zap.Logger

	state    atomic.Int32
	attempts atomic.Int64
}

// New constructs a Client.
func New(dialer Dialer, channel string, policy RetryPolicy, opts ...Option) *Client {
	c := &Client{
		dialer:  dialer,
		channel: channel,
		policy:  policy,
		clock:   clock.Real(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

// Attempts returns the number of dials made so far.
func (c *Client) Attempts() int64 { return c.attempts.Load() }

// Run drives the state machine until ctx is cancelled and returns nil then. Events are
// written to out; a slow consumer holds up the read loop, not the server.
func (c *Client) Run(ctx context.Context, out chan<- Delivery) error {
	var (
		state   = StateDisconnected
		sig     = SignalStart
		stream  Stream
		epoch   uint64
		retries int
	)
	defer c.state.Store(int32(StateDisconnected))

	for {
		next, ok := transition(state, sig)
		if !ok {
			return fmt.Errorf("client: signal %s not accepted in state %s", sig, state)
		}
		c.logger.Debug("connection state changed",
			zap.String("channel", c.channel),
			zap.Stringer("from", state),
			zap.Stringer("to", next),
			zap.Stringer("signal", sig),
		)
		state = next
		c.state.Store(int32(state))

		switch state {
		case StateConnecting:
			c.attempts.Add(1)
			s, err := c.dialer.Dial(ctx, c.channel)
			if ctx.Err() != nil {
				if s != nil {
					_ = s.Close()
				}
				return nil
			}
			if err != nil {
				c.logger.Warn("dial failed", zap.String("channel", c.channel), zap.Error(err))
				sig = SignalFailed
				continue
			}
			stream = s
			sig = SignalEstablished

		case StateConnected:
			retries = 0
			epoch++
			c.logger.Info("attached to channel", zap.String("channel", c.channel), zap.Uint64("epoch", epoch))
			err := c.consume(ctx, stream, epoch, out)
			_ = stream.Close()
			stream = nil
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("connection lost", zap.String("channel", c.channel), zap.Error(err))
			sig = SignalLost

		case StateDisconnected:
			retries++
			delay := c.policy.Next(retries)
			select {
			case <-ctx.Done():
				return nil
			case <-c.clock.After(delay):
			}
			sig = SignalRetry
		}
	}
}

func (c *Client) consume(ctx context.Context, stream Stream, epoch uint64, out chan<- Delivery) error {
	first := true
	for {
		event, err := stream.Receive(ctx)
		if err != nil {
			return err
		}
		select {
		case out <- Delivery{Event: event, Snapshot: first, Epoch: epoch}:
		case <-ctx.Done():
			return ctx.Err()
		}
		first = false
	}
}
