package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Ensure NewConfig properly parses config files.
func TestNewConfigFromFile(t *testing.T) {
	config, err := NewConfig("configs/full.yaml")
	require.NoError(t, err)

	require.Equal(t, "localhost", config.Listen.Host)
	require.Equal(t, 9293, config.Listen.Port)
	require.Equal(t, "0.0.0.0", config.Host)
	require.Equal(t, 5050, config.Port)
	require.Equal(t, uint32(5), config.LogLevel)
	require.False(t, config.LogSilent)
	require.Equal(t, "/tmp/driftlog-data", config.DataDir)

	require.Equal(t, []string{"nats://localhost:4222"}, config.NATS.Servers)
	require.Equal(t, "user", config.NATS.User)
	require.Equal(t, "pass", config.NATS.Password)

	require.Equal(t, []string{"zk-1:2181", "zk-2:2181"}, config.ZooKeeper.Servers)
	require.Equal(t, 10*time.Second, config.ZooKeeper.SessionTimeout)
	require.Equal(t, 30*time.Minute, config.ZooKeeper.ChangeExpiration)
	require.True(t, config.ZooKeeper.Logging)

	require.Equal(t, int64(1024), config.Log.RetentionMaxBytes)
	require.Equal(t, int64(100), config.Log.RetentionMaxMessages)
	require.Equal(t, time.Hour, config.Log.RetentionMaxAge)
	require.Equal(t, time.Minute, config.Log.CleanerInterval)
	require.Equal(t, int64(64), config.Log.SegmentMaxBytes)
	require.Equal(t, int64(100000), config.Log.FlushIntervalMessages)
	require.True(t, config.Log.Compact)

	require.Equal(t, "foo", config.Clustering.ServerID)
	require.Equal(t, "bar", config.Clustering.Namespace)
	require.Equal(t, int32(3), config.Clustering.BrokerID)
	require.Equal(t, 5*time.Second, config.Clustering.ControllerAckTimeout)
}

// Ensure that default config is loaded.
func TestNewConfigDefault(t *testing.T) {
	config, err := NewConfig("")
	require.NoError(t, err)
	require.Equal(t, "driftlog-default", config.Clustering.Namespace)
	require.NotEmpty(t, config.Clustering.ServerID)
	require.Equal(t, DefaultPort, config.Port)
	require.Equal(t, int64(10000), config.Log.FlushIntervalMessages)
	require.Equal(t, 6*time.Second, config.ZooKeeper.SessionTimeout)
	require.Equal(t, 15*time.Minute, config.ZooKeeper.ChangeExpiration)
	require.Equal(t, 3*time.Second, config.Clustering.ControllerAckTimeout)
}

// Ensure that both config file and default configs are loaded.
func TestNewConfigDefaultAndFile(t *testing.T) {
	config, err := NewConfig("configs/simple.yaml")
	require.NoError(t, err)
	// Ensure custom configs are loaded
	require.Equal(t, int64(1024), config.Log.RetentionMaxBytes)
	require.Equal(t, []string{"localhost:2181"}, config.ZooKeeper.Servers)

	// Ensure also default values are loaded at the same time
	require.Equal(t, "driftlog-default", config.Clustering.Namespace)
	require.Equal(t, int64(10000), config.Log.FlushIntervalMessages)
	require.Equal(t, 7*24*time.Hour, config.Log.RetentionMaxAge)
}

// Ensure parsing host and listen.
func TestNewConfigListen(t *testing.T) {
	config, err := NewConfig("configs/listen-host.yaml")
	require.NoError(t, err)
	require.Equal(t, "192.168.0.1", config.Listen.Host)
	require.Equal(t, 4222, config.Listen.Port)
	require.Equal(t, "my-host", config.Host)
	require.Equal(t, 4333, config.Port)
}

// Ensure error is raised when given config file not found.
func TestNewConfigFileNotFound(t *testing.T) {
	_, err := NewConfig("somefile.yaml")
	require.Error(t, err)
}

// Ensure the listen address and connection address fall back sensibly.
func TestConfigAddresses(t *testing.T) {
	config := NewDefaultConfig()
	require.Equal(t, HostPort{Host: "0.0.0.0", Port: DefaultPort}, config.GetListenAddress())
	require.Equal(t, HostPort{Host: "localhost", Port: DefaultPort}, config.GetConnectionAddress())

	config.Host = "driftlog-01"
	require.Equal(t, HostPort{Host: "driftlog-01", Port: DefaultPort}, config.GetListenAddress())
	require.Equal(t, HostPort{Host: "driftlog-01", Port: DefaultPort}, config.GetConnectionAddress())

	config.Listen = HostPort{Host: "127.0.0.1", Port: 9999}
	require.Equal(t, HostPort{Host: "127.0.0.1", Port: 9999}, config.GetListenAddress())
}

// Ensure unknown override properties and bad values are rejected.
func TestValidateOverrides(t *testing.T) {
	require.NoError(t, ValidateOverrides(nil))
	require.NoError(t, ValidateOverrides(map[string]string{
		ConfigRetentionMaxBytes:     "1024",
		ConfigRetentionMaxMessages:  "100",
		ConfigRetentionMaxAge:       "1h",
		ConfigCleanerInterval:       "5m",
		ConfigSegmentMaxBytes:       "64",
		ConfigFlushIntervalMessages: "100000",
		ConfigCompact:               "true",
	}))
	require.Error(t, ValidateOverrides(map[string]string{"bogus.key": "1"}))
	require.Error(t, ValidateOverrides(map[string]string{ConfigRetentionMaxBytes: "huge"}))
	require.Error(t, ValidateOverrides(map[string]string{ConfigRetentionMaxAge: "tomorrow"}))
	require.Error(t, ValidateOverrides(map[string]string{ConfigCompact: "maybe"}))
}

// Ensure WithOverrides leaves the receiver untouched and applies on top of
// the defaults.
func TestLogConfigWithOverrides(t *testing.T) {
	defaults := NewDefaultConfig().Log
	config, err := defaults.WithOverrides(map[string]string{
		ConfigFlushIntervalMessages: "100000",
		ConfigRetentionMaxAge:       "48h",
	})
	require.NoError(t, err)
	require.Equal(t, int64(100000), config.FlushIntervalMessages)
	require.Equal(t, 48*time.Hour, config.RetentionMaxAge)
	require.Equal(t, defaults.SegmentMaxBytes, config.SegmentMaxBytes)

	require.Equal(t, int64(10000), defaults.FlushIntervalMessages)
}

func TestGetLogLevel(t *testing.T) {
	for level, expected := range map[string]uint32{
		"debug": 5,
		"info":  4,
		"warn":  3,
		"error": 2,
		"DEBUG": 5,
	} {
		actual, err := GetLogLevel(level)
		require.NoError(t, err)
		require.Equal(t, expected, actual)
	}
	_, err := GetLogLevel("verbose")
	require.Error(t, err)
}
