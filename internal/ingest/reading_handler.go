package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"example.com/moodsync/internal/domain"
	"example.com/moodsync/internal/events"
	"example.com/moodsync/internal/hub"
)

// Ingester accepts external readings; telemetry.Generator implements it.
type Ingester interface {
	Ingest(domain.Reading) domain.Reading
}

// Publisher is the hub surface used to broadcast ingested readings.
type Publisher interface {
	Publish(ctx context.Context, channel string, event hub.Event) hub.PublishResult
}

// ReadingHandler clamps each sensor reading through the generator and publishes the
// stored result on the telemetry channel.
type ReadingHandler struct {
	ingester  Ingester
	publisher Publisher
}

// NewReadingHandler constructs a ReadingHandler.
func NewReadingHandler(ingester Ingester, publisher Publisher) *ReadingHandler {
	return &ReadingHandler{ingester: ingester, publisher: publisher}
}

// Handle implements Handler.
func (h *ReadingHandler) Handle(ctx context.Context, msg Message) error {
	var payload events.ReadingRecorded
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode reading: %w", err)
	}
	if payload.RecordedAt.IsZero() {
		payload.RecordedAt = msg.Timestamp
	}

	stored := h.ingester.Ingest(payload.Reading())
	h.publisher.Publish(ctx, hub.ChannelTelemetry, hub.Event{Type: hub.EventReading, Data: stored})
	return nil
}
