package hub

// Channel names and event types used by the service.
const (
	ChannelTelemetry = "telemetry"
	ChannelActuation = "actuation"

	EventReading  = "reading"
	EventSettings = "settings"
)

// Event is the wire envelope written to every subscriber.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SnapshotFunc returns the catch-up event for a new subscriber. ok=false means the
// channel has nothing to send yet.
type SnapshotFunc func() (event Event, ok bool)

// PublishResult summarises one fan-out.
type PublishResult struct {
	Subscribers int
	Delivered   int
	Evicted     int
}
