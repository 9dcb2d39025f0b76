package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// DefaultNamespace is the default cluster namespace to use if one is not
	// specified.
	DefaultNamespace = "driftlog-default"

	// DefaultPort is the port to bind to if one is not specified.
	DefaultPort = 9292
)

const (
	defaultListenAddress         = "0.0.0.0"
	defaultConnectionAddress     = "localhost"
	defaultRetentionMaxAge       = 7 * 24 * time.Hour
	defaultCleanerInterval       = 5 * time.Minute
	defaultMaxSegmentBytes       = 1024 * 1024 * 256 // 256MB
	defaultFlushIntervalMessages = 10000
	defaultZKSessionTimeout      = 6 * time.Second
	defaultZKChangeExpiration    = 15 * time.Minute
	defaultControllerAckTimeout  = 3 * time.Second
)

// Dynamic override property names recognized by topic configuration. The same
// dotted keys appear under the `logs` section of the config file for
// broker-wide defaults.
const (
	ConfigRetentionMaxBytes     = "retention.max.bytes"
	ConfigRetentionMaxMessages  = "retention.max.messages"
	ConfigRetentionMaxAge       = "retention.max.age"
	ConfigCleanerInterval       = "cleaner.interval"
	ConfigSegmentMaxBytes       = "segment.max.bytes"
	ConfigFlushIntervalMessages = "flush.interval.messages"
	ConfigCompact               = "compact"
)

// LogConfig contains settings for controlling the message log for a
// partition.
type LogConfig struct {
	RetentionMaxBytes     int64
	RetentionMaxMessages  int64
	RetentionMaxAge       time.Duration
	CleanerInterval       time.Duration
	SegmentMaxBytes       int64
	FlushIntervalMessages int64
	Compact               bool
}

// RetentionString returns a human-readable string representation of the
// retention policy.
func (l LogConfig) RetentionString() string {
	str := "["
	prefix := ""
	if l.RetentionMaxMessages != 0 {
		str += fmt.Sprintf("Messages: %s", humanize.Comma(l.RetentionMaxMessages))
		prefix = ", "
	}
	if l.RetentionMaxBytes != 0 {
		str += fmt.Sprintf("%sSize: %s", prefix, humanize.IBytes(uint64(l.RetentionMaxBytes)))
		prefix = ", "
	}
	if l.RetentionMaxAge > 0 {
		str += fmt.Sprintf("%sAge: %s", prefix, durafmt.Parse(l.RetentionMaxAge))
		prefix = ", "
	}
	if prefix == "" {
		str += "no limits"
	}
	str += fmt.Sprintf(", Compact: %t", l.Compact)
	str += "]"
	return str
}

// WithOverrides returns a copy of the LogConfig with the given dynamic
// override properties applied on top. The receiver is not modified. An
// unknown property name or an unparseable value returns an error and no
// config.
func (l LogConfig) WithOverrides(props map[string]string) (LogConfig, error) {
	for key, value := range props {
		switch key {
		case ConfigRetentionMaxBytes:
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return l, errors.Wrapf(err, "invalid value %q for %s", value, key)
			}
			l.RetentionMaxBytes = n
		case ConfigRetentionMaxMessages:
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return l, errors.Wrapf(err, "invalid value %q for %s", value, key)
			}
			l.RetentionMaxMessages = n
		case ConfigRetentionMaxAge:
			dur, err := time.ParseDuration(value)
			if err != nil {
				return l, errors.Wrapf(err, "invalid value %q for %s", value, key)
			}
			l.RetentionMaxAge = dur
		case ConfigCleanerInterval:
			dur, err := time.ParseDuration(value)
			if err != nil {
				return l, errors.Wrapf(err, "invalid value %q for %s", value, key)
			}
			l.CleanerInterval = dur
		case ConfigSegmentMaxBytes:
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return l, errors.Wrapf(err, "invalid value %q for %s", value, key)
			}
			l.SegmentMaxBytes = n
		case ConfigFlushIntervalMessages:
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return l, errors.Wrapf(err, "invalid value %q for %s", value, key)
			}
			l.FlushIntervalMessages = n
		case ConfigCompact:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return l, errors.Wrapf(err, "invalid value %q for %s", value, key)
			}
			l.Compact = b
		default:
			return l, errors.Errorf("unknown log configuration property %q", key)
		}
	}
	return l, nil
}

// ValidateOverrides checks that every property in the given set is a known
// log configuration property with a parseable value.
func ValidateOverrides(props map[string]string) error {
	_, err := LogConfig{}.WithOverrides(props)
	return err
}

// ZooKeeperConfig contains settings for the coordination-service session.
type ZooKeeperConfig struct {
	Servers          []string
	SessionTimeout   time.Duration
	ChangeExpiration time.Duration
	Logging          bool
}

// ClusteringConfig contains settings for controlling cluster behavior.
type ClusteringConfig struct {
	ServerID             string
	Namespace            string
	BrokerID             int32
	ControllerAckTimeout time.Duration
}

// Config contains all settings for a driftlog server.
type Config struct {
	Listen     HostPort
	Host       string
	Port       int
	LogLevel   uint32
	LogSilent  bool
	DataDir    string
	NATS       nats.Options
	ZooKeeper  ZooKeeperConfig
	Log        LogConfig
	Clustering ClusteringConfig
}

// NewDefaultConfig creates a new Config with default settings.
func NewDefaultConfig() *Config {
	config := &Config{
		NATS: nats.GetDefaultOptions(),
		Port: DefaultPort,
	}
	config.LogLevel = uint32(log.InfoLevel)
	config.Clustering.ServerID = nuid.Next()
	config.Clustering.Namespace = DefaultNamespace
	config.Clustering.ControllerAckTimeout = defaultControllerAckTimeout
	config.ZooKeeper.SessionTimeout = defaultZKSessionTimeout
	config.ZooKeeper.ChangeExpiration = defaultZKChangeExpiration
	config.Log.SegmentMaxBytes = defaultMaxSegmentBytes
	config.Log.RetentionMaxAge = defaultRetentionMaxAge
	config.Log.CleanerInterval = defaultCleanerInterval
	config.Log.FlushIntervalMessages = defaultFlushIntervalMessages
	return config
}

// GetListenAddress returns the address and port to listen to.
func (c Config) GetListenAddress() HostPort {
	if len(c.Listen.Host) > 0 {
		return c.Listen
	}

	if len(c.Host) > 0 {
		return HostPort{
			Host: c.Host,
			Port: c.Port,
		}
	}

	return HostPort{
		Host: defaultListenAddress,
		Port: c.Port,
	}
}

// GetConnectionAddress returns the host if specified and listen otherwise.
func (c Config) GetConnectionAddress() HostPort {
	if len(c.Host) > 0 {
		return HostPort{
			Host: c.Host,
			Port: c.Port,
		}
	}

	if len(c.Listen.Host) > 0 {
		return c.Listen
	}

	return HostPort{
		Host: defaultConnectionAddress,
		Port: c.Port,
	}
}

// GetLogLevel converts the level string to its corresponding int value. It
// returns an error if the level is invalid.
func GetLogLevel(level string) (uint32, error) {
	var l uint32
	switch strings.ToLower(level) {
	case "debug":
		l = uint32(log.DebugLevel)
	case "info":
		l = uint32(log.InfoLevel)
	case "warn":
		l = uint32(log.WarnLevel)
	case "error":
		l = uint32(log.ErrorLevel)
	default:
		return 0, fmt.Errorf("Invalid log.level setting %q", level)
	}
	return l, nil
}

// NewConfig creates a new Config with default settings and applies any
// settings from the given configuration file.
func NewConfig(configFile string) (*Config, error) {
	config := NewDefaultConfig()

	if configFile == "" {
		return config, nil
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	if v.IsSet("listen") {
		hp, err := parseListen(v)
		if err != nil {
			return nil, err
		}
		config.Listen = *hp
	}

	if v.IsSet("port") {
		config.Port = v.GetInt("port")
	}

	if v.IsSet("host") {
		config.Host = v.GetString("host")
	}

	if v.IsSet("log.level") {
		level := v.GetString("log.level")
		levelInt, err := GetLogLevel(level)
		if err != nil {
			return nil, err
		}
		config.LogLevel = levelInt
	}

	if v.IsSet("log.silent") {
		config.LogSilent = v.GetBool("log.silent")
	}

	if v.IsSet("data.dir") {
		config.DataDir = v.GetString("data.dir")
	}

	if err := parseNATSConfig(&config.NATS, v); err != nil {
		return nil, err
	}

	if err := parseZooKeeperConfig(config, v); err != nil {
		return nil, err
	}

	if err := parseLogConfig(config, v); err != nil {
		return nil, err
	}

	if err := parseClusteringConfig(config, v); err != nil {
		return nil, err
	}

	return config, nil
}

// parseNATSConfig parses the `nats` section of a config file and populates
// the given nats.Options.
func parseNATSConfig(opts *nats.Options, v *viper.Viper) error {
	if v.IsSet("nats.servers") {
		opts.Servers = v.GetStringSlice("nats.servers")
	}

	if v.IsSet("nats.user") {
		opts.User = v.GetString("nats.user")
	}

	if v.IsSet("nats.password") {
		opts.Password = v.GetString("nats.password")
	}

	return nil
}

// parseZooKeeperConfig parses the `zk` section of a config file and populates
// the given Config.
func parseZooKeeperConfig(config *Config, v *viper.Viper) error {
	if v.IsSet("zk.servers") {
		config.ZooKeeper.Servers = v.GetStringSlice("zk.servers")
	}

	if v.IsSet("zk.session.timeout") {
		dur, err := time.ParseDuration(v.GetString("zk.session.timeout"))
		if err != nil {
			return err
		}
		config.ZooKeeper.SessionTimeout = dur
	}

	if v.IsSet("zk.change.expiration") {
		dur, err := time.ParseDuration(v.GetString("zk.change.expiration"))
		if err != nil {
			return err
		}
		config.ZooKeeper.ChangeExpiration = dur
	}

	if v.IsSet("zk.logging") {
		config.ZooKeeper.Logging = v.GetBool("zk.logging")
	}

	return nil
}

// parseLogConfig parses the `logs` section of a config file and populates the
// given Config. The section holds broker-wide defaults; per-topic dynamic
// overrides use the same property names.
func parseLogConfig(config *Config, v *viper.Viper) error {
	if v.IsSet("logs.retention.max.bytes") {
		config.Log.RetentionMaxBytes = v.GetInt64("logs.retention.max.bytes")
	}

	if v.IsSet("logs.retention.max.messages") {
		config.Log.RetentionMaxMessages = v.GetInt64("logs.retention.max.messages")
	}

	if v.IsSet("logs.retention.max.age") {
		dur, err := time.ParseDuration(v.GetString("logs.retention.max.age"))
		if err != nil {
			return err
		}
		config.Log.RetentionMaxAge = dur
	}

	if v.IsSet("logs.cleaner.interval") {
		dur, err := time.ParseDuration(v.GetString("logs.cleaner.interval"))
		if err != nil {
			return err
		}
		config.Log.CleanerInterval = dur
	}

	if v.IsSet("logs.segment.max.bytes") {
		config.Log.SegmentMaxBytes = v.GetInt64("logs.segment.max.bytes")
	}

	if v.IsSet("logs.flush.interval.messages") {
		config.Log.FlushIntervalMessages = v.GetInt64("logs.flush.interval.messages")
	}

	if v.IsSet("logs.compact") {
		config.Log.Compact = v.GetBool("logs.compact")
	}

	return nil
}

// parseClusteringConfig parses the `clustering` section of a config file and
// populates the given Config.
func parseClusteringConfig(config *Config, v *viper.Viper) error {
	if v.IsSet("clustering.server.id") {
		config.Clustering.ServerID = v.GetString("clustering.server.id")
	}

	if v.IsSet("clustering.namespace") {
		config.Clustering.Namespace = v.GetString("clustering.namespace")
	}

	if v.IsSet("clustering.broker.id") {
		config.Clustering.BrokerID = int32(v.GetInt("clustering.broker.id"))
	}

	if v.IsSet("clustering.controller.ack.timeout") {
		dur, err := time.ParseDuration(v.GetString("clustering.controller.ack.timeout"))
		if err != nil {
			return err
		}
		config.Clustering.ControllerAckTimeout = dur
	}

	return nil
}

// HostPort is simple struct to hold parsed listen/addr strings.
type HostPort struct {
	Host string
	Port int
}

// parseListen will parse the `listen` option containing the host and port.
func parseListen(v *viper.Viper) (*HostPort, error) {
	hp := &HostPort{}
	listenConf := v.Get("listen")
	switch listenConf := listenConf.(type) {
	// Only a port
	case int64:
		hp.Port = int(listenConf)
	case string:
		host, port, err := net.SplitHostPort(listenConf)
		if err != nil {
			return nil, fmt.Errorf("Could not parse address string %q", listenConf)
		}
		hp.Port, err = strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("Could not parse port %q", port)
		}
		hp.Host = host
	}
	return hp, nil
}
