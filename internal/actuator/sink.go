// Package actuator delivers actuation settings to the devices in the room.
package actuator

import (
	"context"

	"example.com/moodsync/internal/domain"
)

// Sink applies settings to one downstream system.
type Sink interface {
	Name() string
	Apply(ctx context.Context, settings domain.ActuationSettings) error
}

// connectivity is implemented by sinks that hold a live connection.
type connectivity interface {
	Connected() bool
}
