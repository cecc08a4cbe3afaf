// Package config loads and validates the portmon configuration tree
// from YAML files and PORTMON_* environment variables.
package config

import "time"

// Config is the complete configuration for the portmon daemon: default
// port tuning, the ports to open, optional output bridges and the
// observability endpoints.
type Config struct {
	// Defaults holds tuning applied to every port that does not
	// override it.
	Defaults DefaultsConfig `mapstructure:"defaults"`

	// Ports lists the ports to open at startup.
	Ports []PortConfig `mapstructure:"ports" validate:"dive"`

	// Bridge configures replication of port output onto external
	// transports.
	Bridge BridgeConfig `mapstructure:"bridge"`

	// Metrics configures the Prometheus scrape endpoint.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Logging configures the process-wide structured logger.
	Logging LoggingConfig `mapstructure:"logging"`
}

// DefaultsConfig is port tuning shared by all ports.
type DefaultsConfig struct {
	// ExpectTimeout is the budget used by expect operations that do
	// not pass their own. Defaults to 30s.
	ExpectTimeout time.Duration `mapstructure:"expect_timeout" validate:"min=0"`

	// ReadInterval bounds each endpoint read. Defaults to the
	// endpoint kind's native interval.
	ReadInterval time.Duration `mapstructure:"read_interval" validate:"min=0"`

	// StaleFlushMultiplier controls when an unterminated output line
	// is flushed to the log file: after this many quiet read
	// intervals. Defaults to 5.
	StaleFlushMultiplier int `mapstructure:"stale_flush_multiplier" validate:"min=0"`

	// LogDir is where per-port log files go when a port does not name
	// its own file. Empty disables file logging for such ports.
	LogDir string `mapstructure:"log_dir"`

	// LineEnding is the terminator appended to sent lines: "lf",
	// "crlf" or "cr". Defaults to "lf".
	LineEnding string `mapstructure:"line_ending" validate:"omitempty,oneof=lf crlf cr"`
}

// Terminator returns the line ending as bytes.
func (d DefaultsConfig) Terminator() string {
	switch d.LineEnding {
	case "crlf":
		return "\r\n"
	case "cr":
		return "\r"
	default:
		return "\n"
	}
}

// PortConfig describes one port to open: either a serial device or a
// local command.
type PortConfig struct {
	// Name labels the port in logs and metrics. Auto-assigned when
	// empty.
	Name string `mapstructure:"name" validate:"omitempty,port_name"`

	// Kind selects the transport: "serial" or "shell".
	Kind string `mapstructure:"kind" validate:"required,oneof=serial shell"`

	// Device is the serial device path. Required for serial ports.
	Device string `mapstructure:"device" validate:"required_if=Kind serial"`

	// BaudRate defaults to 115200.
	BaudRate int `mapstructure:"baud_rate" validate:"omitempty,baud_rate"`

	// DataBits defaults to 8.
	DataBits int `mapstructure:"data_bits" validate:"omitempty,oneof=5 6 7 8"`

	// Parity is "none", "odd" or "even".
	Parity string `mapstructure:"parity" validate:"omitempty,oneof=none odd even"`

	// StopBits is "1", "1.5" or "2".
	StopBits string `mapstructure:"stop_bits" validate:"omitempty,oneof=1 1.5 2"`

	// Command is the shell command to run. Required for shell ports.
	Command string `mapstructure:"command" validate:"required_if=Kind shell"`

	// LogFile overrides the per-port log path derived from
	// defaults.log_dir.
	LogFile string `mapstructure:"log_file"`
}

// BridgeConfig configures the optional output bridges.
type BridgeConfig struct {
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
}

// WebSocketConfig configures the live output WebSocket endpoint.
type WebSocketConfig struct {
	// Enabled turns the WebSocket bridge on.
	Enabled bool `mapstructure:"enabled"`

	// Listen is the host:port to serve on, such as ":8089".
	Listen string `mapstructure:"listen" validate:"required_if=Enabled true,omitempty,listen_addr"`
}

// MQTTConfig configures publishing port output to an MQTT broker.
type MQTTConfig struct {
	// Enabled turns the MQTT bridge on.
	Enabled bool `mapstructure:"enabled"`

	// Broker is the broker URL, such as "tcp://broker.local:1883".
	Broker string `mapstructure:"broker" validate:"required_if=Enabled true,omitempty,uri"`

	// TopicPrefix prefixes the per-port topics. A port named dut_1
	// publishes to <prefix>/dut_1. Defaults to "portmon".
	TopicPrefix string `mapstructure:"topic_prefix"`

	// ClientID identifies this process to the broker. Auto-generated
	// when empty.
	ClientID string `mapstructure:"client_id"`

	// Username and Password are optional broker credentials.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// QoS is the publish quality of service, 0 to 2.
	QoS int `mapstructure:"qos" validate:"min=0,max=2"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns the /metrics listener on.
	Enabled bool `mapstructure:"enabled"`

	// Listen is the host:port to serve on, such as ":9109".
	Listen string `mapstructure:"listen" validate:"required_if=Enabled true,omitempty,listen_addr"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error". Defaults to info.
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`

	// Format is "text" or "json". Defaults to text.
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
}

// Default returns a configuration with sensible defaults and no ports.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			ExpectTimeout:        30 * time.Second,
			StaleFlushMultiplier: 5,
			LineEnding:           "lf",
		},
		Bridge: BridgeConfig{
			MQTT: MQTTConfig{
				TopicPrefix: "portmon",
				QoS:         1,
			},
		},
		Metrics: MetricsConfig{
			Listen: ":9109",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
