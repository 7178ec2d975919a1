package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"example.com/moodsync/internal/domain"
)

// MQTTConfig holds broker settings for the MQTT sink.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// mqttClient is the part of mqtt.Client the sink uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTSink publishes light, climate and music commands as retained messages so a
// device that reconnects picks up the current state.
type MQTTSink struct {
	client mqttClient
	prefix string
	qos    byte
}

type lightCommand struct {
	On         bool   `json:"on"`
	Color      string `json:"color"`
	Hue        int    `json:"hue"`
	Saturation int    `json:"sat"`
	Brightness int    `json:"bri"`
}

type climateCommand struct {
	TargetTemperature int    `json:"targetTemperature"`
	Unit              string `json:"unit"`
}

type musicCommand struct {
	Genre  string   `json:"genre"`
	Tracks []string `json:"tracks"`
}

// DialMQTT connects to the broker and returns a sink.
func DialMQTT(cfg MQTTConfig) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	return NewMQTTSink(client, cfg.TopicPrefix, cfg.QoS), nil
}

// NewMQTTSink wraps an already connected client.
func NewMQTTSink(client mqttClient, prefix string, qos byte) *MQTTSink {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "moodsync"
	}
	return &MQTTSink{client: client, prefix: prefix, qos: qos}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Connected reports broker connectivity.
func (s *MQTTSink) Connected() bool { return s.client.IsConnected() }

// Apply implements Sink.
func (s *MQTTSink) Apply(ctx context.Context, settings domain.ActuationSettings) error {
	commands := []struct {
		topic   string
		payload any
	}{
		{s.prefix + "/light/set", lightCommand{
			On:         true,
			Color:      settings.Lights.Color,
			Hue:        settings.Lights.Hue,
			Saturation: settings.Lights.Saturation,
			Brightness: settings.Lights.Brightness,
		}},
		{s.prefix + "/climate/set", climateCommand{TargetTemperature: settings.Temperature, Unit: "F"}},
		{s.prefix + "/music/set", musicCommand{Genre: settings.Music.Genre, Tracks: settings.Music.Tracks}},
	}

	for _, cmd := range commands {
		body, err := json.Marshal(cmd.payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", cmd.topic, err)
		}
		if err := s.publish(ctx, cmd.topic, body); err != nil {
			return err
		}
	}
	return nil
}

func (s *MQTTSink) publish(ctx context.Context, topic string, body []byte) error {
	token := s.client.Publish(topic, s.qos, true, body)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
