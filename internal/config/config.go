// Package config centralises configuration parsing for moodsync.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures runtime configuration values. Values come from defaults, then an
// optional YAML file, then environment variables.
type Config struct {
	HTTPAddress   string        `yaml:"http_address"`
	CORSOrigins   []string      `yaml:"cors_origins"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	TickInterval    time.Duration `yaml:"tick_interval"`
	HistoryCapacity int           `yaml:"history_capacity"`
	SendTimeout     time.Duration `yaml:"send_timeout"`

	ClassifyInterval  time.Duration `yaml:"classify_interval"` // zero disables periodic classification
	ClassifierTimeout time.Duration `yaml:"classifier_timeout"`
	OpenAIAPIKey      string        `yaml:"openai_api_key"`
	OpenAIBaseURL     string        `yaml:"openai_base_url"`
	OpenAIModel       string        `yaml:"openai_model"`

	TrackLimit      int           `yaml:"track_limit"`
	CatalogURL      string        `yaml:"catalog_url"`
	CatalogToken    string        `yaml:"catalog_token"`
	RedisURL        string        `yaml:"redis_url"`
	CatalogCacheTTL time.Duration `yaml:"catalog_cache_ttl"`

	MQTTBroker      string `yaml:"mqtt_broker"`
	MQTTClientID    string `yaml:"mqtt_client_id"`
	MQTTUsername    string `yaml:"mqtt_username"`
	MQTTPassword    string `yaml:"mqtt_password"`
	MQTTTopicPrefix string `yaml:"mqtt_topic_prefix"`

	KafkaBrokers  []string `yaml:"kafka_brokers"`
	SettingsTopic string   `yaml:"settings_topic"`
	ReadingsTopic string   `yaml:"readings_topic"`
	SensorTopic   string   `yaml:"sensor_topic"`
	SensorGroupID string   `yaml:"sensor_group_id"`

	PostgresURL     string `yaml:"postgres_url"`
	JournalCapacity int    `yaml:"journal_capacity"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

// Defaults returns the configuration used for local development.
func Defaults() Config {
	return Config{
		HTTPAddress:       ":8080",
		CORSOrigins:       []string{"http://localhost:5173", "http://localhost:3000"},
		ShutdownGrace:     10 * time.Second,
		TickInterval:      time.Second,
		HistoryCapacity:   100,
		SendTimeout:       2 * time.Second,
		ClassifierTimeout: 15 * time.Second,
		OpenAIBaseURL:     "https://api.openai.com/v1",
		OpenAIModel:       "gpt-4",
		TrackLimit:        5,
		CatalogCacheTTL:   10 * time.Minute,
		MQTTClientID:      "moodsync",
		MQTTTopicPrefix:   "moodsync",
		SettingsTopic:     "moodsync.settings",
		SensorGroupID:     "moodsync",
		JournalCapacity:   500,
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// Load builds the configuration. path names a YAML file; when empty, CONFIG_FILE is
// consulted. Environment variables override file values.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		path = getEnv("CONFIG_FILE", "")
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddress = getEnv("HTTP_ADDRESS", c.HTTPAddress)
	c.CORSOrigins = getListEnv("CORS_ORIGINS", c.CORSOrigins)
	c.ShutdownGrace = getDurationEnv("SHUTDOWN_GRACE", c.ShutdownGrace)

	c.TickInterval = getDurationEnv("TICK_INTERVAL", c.TickInterval)
	c.HistoryCapacity = getIntEnv("HISTORY_CAPACITY", c.HistoryCapacity)
	c.SendTimeout = getDurationEnv("HUB_SEND_TIMEOUT", c.SendTimeout)

	c.ClassifyInterval = getDurationEnv("CLASSIFY_INTERVAL", c.ClassifyInterval)
	c.ClassifierTimeout = getDurationEnv("CLASSIFIER_TIMEOUT", c.ClassifierTimeout)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)

	c.TrackLimit = getIntEnv("TRACK_LIMIT", c.TrackLimit)
	c.CatalogURL = getEnv("CATALOG_URL", c.CatalogURL)
	c.CatalogToken = getEnv("CATALOG_TOKEN", c.CatalogToken)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.CatalogCacheTTL = getDurationEnv("CATALOG_CACHE_TTL", c.CatalogCacheTTL)

	c.MQTTBroker = getEnv("MQTT_BROKER", c.MQTTBroker)
	c.MQTTClientID = getEnv("MQTT_CLIENT_ID", c.MQTTClientID)
	c.MQTTUsername = getEnv("MQTT_USERNAME", c.MQTTUsername)
	c.MQTTPassword = getEnv("MQTT_PASSWORD", c.MQTTPassword)
	c.MQTTTopicPrefix = getEnv("MQTT_TOPIC_PREFIX", c.MQTTTopicPrefix)

	c.KafkaBrokers = getListEnv("KAFKA_BROKERS", c.KafkaBrokers)
	c.SettingsTopic = getEnv("SETTINGS_TOPIC", c.SettingsTopic)
	c.ReadingsTopic = getEnv("READINGS_TOPIC", c.ReadingsTopic)
	c.SensorTopic = getEnv("SENSOR_TOPIC", c.SensorTopic)
	c.SensorGroupID = getEnv("SENSOR_GROUP_ID", c.SensorGroupID)

	c.PostgresURL = getEnv("POSTGRES_URL", c.PostgresURL)
	c.JournalCapacity = getIntEnv("JOURNAL_CAPACITY", c.JournalCapacity)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddress) == "" {
		errs = append(errs, errors.New("http_address must not be empty"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("tick_interval must be positive"))
	}
	if c.HistoryCapacity < 1 {
		errs = append(errs, errors.New("history_capacity must be at least 1"))
	}
	if c.SendTimeout <= 0 {
		errs = append(errs, errors.New("send_timeout must be positive"))
	}
	if c.ShutdownGrace <= 0 {
		errs = append(errs, errors.New("shutdown_grace must be positive"))
	}
	if c.ClassifyInterval < 0 {
		errs = append(errs, errors.New("classify_interval must not be negative"))
	}
	if c.ClassifierTimeout <= 0 {
		errs = append(errs, errors.New("classifier_timeout must be positive"))
	}
	if c.TrackLimit < 0 {
		errs = append(errs, errors.New("track_limit must not be negative"))
	}
	if c.SensorTopic != "" && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("sensor_topic requires kafka_brokers"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getListEnv(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return splitAndTrim(value)
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
