package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"example.com/moodsync/internal/domain"
	"example.com/moodsync/internal/events"
	"example.com/moodsync/internal/hub"
	"example.com/moodsync/internal/observability"
)

// messageWriter is satisfied by *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink mirrors settings changes, and optionally readings, to Kafka. Writers are
// created lazily per topic.
type KafkaSink struct {
	brokers       []string
	settingsTopic string
	readingsTopic string
	newWriter     func(topic string) messageWriter
	mu            sync.Mutex
	writers       map[string]messageWriter
}

// NewKafkaSink creates a KafkaSink. An empty readingsTopic disables reading mirroring.
func NewKafkaSink(brokers []string, settingsTopic, readingsTopic string) *KafkaSink {
	s := &KafkaSink{
		brokers:       brokers,
		settingsTopic: settingsTopic,
		readingsTopic: readingsTopic,
		writers:       make(map[string]messageWriter),
	}
	s.newWriter = s.kafkaWriter
	return s
}

func (s *KafkaSink) kafkaWriter(topic string) messageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(s.brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Balancer:     &kafka.Hash{},
	}
}

// Name implements Sink.
func (s *KafkaSink) Name() string { return "kafka" }

// Apply implements Sink.
func (s *KafkaSink) Apply(ctx context.Context, settings domain.ActuationSettings) error {
	return s.write(ctx, s.settingsTopic, string(settings.State), events.TypeSettingsChanged, events.NewSettingsChanged(settings))
}

// MirrorReading forwards a reading to the readings topic, when one is configured.
func (s *KafkaSink) MirrorReading(ctx context.Context, reading domain.Reading) error {
	if s.readingsTopic == "" {
		return nil
	}
	payload := events.ReadingRecorded{
		HeartRate:   reading.HeartRate,
		BloodOxygen: reading.BloodOxygen,
		StressLevel: reading.StressLevel,
		Activity:    reading.Activity,
		Steps:       reading.Steps,
		Calories:    reading.Calories,
		RecordedAt:  reading.Timestamp,
	}
	return s.write(ctx, s.readingsTopic, "watch", events.TypeReadingRecorded, payload)
}

func (s *KafkaSink) write(ctx context.Context, topic, key, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(eventType)},
			{Key: events.HeaderContentType, Value: []byte(events.ContentTypeJSON)},
		},
	}
	if err := s.writerForTopic(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s to %s: %w", eventType, topic, err)
	}
	return nil
}

func (s *KafkaSink) writerForTopic(topic string) messageWriter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if writer, ok := s.writers[topic]; ok {
		return writer
	}
	writer := s.newWriter(topic)
	s.writers[topic] = writer
	return writer
}

// Close releases all writers.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for topic, writer := range s.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.writers, topic)
	}
	return firstErr
}

// publisher matches hub.Hub.Publish.
type publisher interface {
	Publish(ctx context.Context, channel string, event hub.Event) hub.PublishResult
}

// ReadingMirror decorates a hub publisher so every reading published on the telemetry
// channel is also written to the readings topic. Mirror failures are logged only.
type ReadingMirror struct {
	next   publisher
	sink   *KafkaSink
	logger *zap.Logger
}

// NewReadingMirror wraps next.
func NewReadingMirror(next publisher, sink *KafkaSink, logger *zap.Logger) *ReadingMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadingMirror{next: next, sink: sink, logger: logger}
}

// Publish implements the hub publisher contract.
func (m *ReadingMirror) Publish(ctx context.Context, channel string, event hub.Event) hub.PublishResult {
	res := m.next.Publish(ctx, channel, event)
	if channel != hub.ChannelTelemetry {
		return res
	}
	if reading, ok := event.Data.(domain.Reading); ok {
		if err := m.sink.MirrorReading(ctx, reading); err != nil {
			observability.RecordSinkError(m.sink.Name())
			m.logger.Warn("reading mirror failed", zap.Error(err))
		}
	}
	return res
}
