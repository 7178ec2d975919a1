package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, time.Second, cfg.TickInterval)
	require.Equal(t, 100, cfg.HistoryCapacity)
	require.Equal(t, 2*time.Second, cfg.SendTimeout)
	require.Zero(t, cfg.ClassifyInterval)
	require.Empty(t, cfg.KafkaBrokers)
}

func TestFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moodsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_address: ":9090"
tick_interval: 500ms
history_capacity: 20
kafka_brokers: [kafka-1:9092, kafka-2:9092]
sensor_topic: sensor_readings
classify_interval: 30s
`), 0o600))

	t.Setenv("HISTORY_CAPACITY", "50")
	t.Setenv("KAFKA_BROKERS", " kafka-3:9092 , ,kafka-4:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddress)
	require.Equal(t, 500*time.Millisecond, cfg.TickInterval)
	require.Equal(t, 50, cfg.HistoryCapacity)
	require.Equal(t, []string{"kafka-3:9092", "kafka-4:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "sensor_readings", cfg.SensorTopic)
	require.Equal(t, 30*time.Second, cfg.ClassifyInterval)
}

func TestConfigFileFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moodsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestInvalidValuesIgnoredOrRejected(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TICK_INTERVAL", "soon")
	t.Setenv("HISTORY_CAPACITY", "0")

	_, err := Load("")
	require.ErrorContains(t, err, "history_capacity")
	require.NotContains(t, err.Error(), "tick_interval")
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.HTTPAddress = " "
	cfg.TickInterval = 0
	cfg.SensorTopic = "sensor_readings"

	err := cfg.Validate()
	require.ErrorContains(t, err, "http_address")
	require.ErrorContains(t, err, "tick_interval")
	require.ErrorContains(t, err, "kafka_brokers")

	require.NoError(t, Defaults().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config file")
}
