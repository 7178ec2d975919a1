package client

import (
	"fmt"
	"time"
)

// DefaultRetryDelay is the pause between a lost connection and the next attempt.
const DefaultRetryDelay = 3 * time.Second

// RetryPolicy waits the same delay before every attempt and never gives up.
type RetryPolicy struct {
	Delay time.Duration
}

// Next returns the delay before a reconnection attempt. Every attempt waits the same
// delay, so the attempt number is ignored.
func (p RetryPolicy) Next(_ int) time.Duration {
	if p.Delay <= 0 {
		return DefaultRetryDelay
	}
	return p.Delay
}

// State is the connection state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Signal is an input to the connection state machine.
type Signal int

const (
	// SignalStart begins the first attempt.
	SignalStart Signal = iota
	// SignalEstablished reports a successful dial.
	SignalEstablished
	// SignalFailed reports a failed dial.
	SignalFailed
	// SignalLost reports a read error or a close by the server.
	SignalLost
	// SignalRetry fires when the retry delay has elapsed.
	SignalRetry
)

func (s Signal) String() string {
	switch s {
	case SignalStart:
		return "start"
	case SignalEstablished:
		return "established"
	case SignalFailed:
		return "failed"
	case SignalLost:
		return "lost"
	case SignalRetry:
		return "retry"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// transition returns the state reached from s on sig. ok is false for signals the
// state does not accept; the state is then unchanged.
func transition(s State, sig Signal) (next State, ok bool) {
	switch {
	case s == StateDisconnected && (sig == SignalStart || sig == SignalRetry):
		return StateConnecting, true
	case s == StateConnecting && sig == SignalEstablished:
		return StateConnected, true
	case s == StateConnecting && sig == SignalFailed:
		return StateDisconnected, true
	case s == StateConnected && sig == SignalLost:
		return StateDisconnected, true
	default:
		return s, false
	}
}
