package config

import (
	"errors"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, so
// PORTMON_LOGGING_LEVEL=debug overrides logging.level.
const EnvPrefix = "PORTMON"

// Load reads the configuration file at path, layers PORTMON_*
// environment variables on top and validates the result. An empty path
// skips the file and loads defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	applyDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, ParseError.Wrap(err, "parse configuration file %s", path).
					WithProperty(PropertyFile, path).
					WithProperty(PropertyCode, "CONFIG_MALFORMED")
			}
			return nil, FileError.Wrap(err, "read configuration file %s", path).
				WithProperty(PropertyFile, path).
				WithProperty(PropertyCode, "CONFIG_FILE_UNREADABLE")
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, ParseError.Wrap(err, "decode configuration").
			WithProperty(PropertyFile, path).
			WithProperty(PropertyCode, "CONFIG_MALFORMED")
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its validation tags and reports every
// failing field in one error.
func Validate(cfg *Config) error {
	err := ValidateStruct(cfg)
	if err == nil {
		return nil
	}

	details := ConvertValidationErrors(err)
	if len(details) == 0 {
		return InvalidError.Wrap(err, "invalid configuration").
			WithProperty(PropertyCode, "CONFIG_INVALID")
	}

	messages := make([]string, len(details))
	for i, d := range details {
		messages[i] = d.Error()
	}
	return InvalidError.New("invalid configuration: %s", strings.Join(messages, "; ")).
		WithProperty(PropertyField, details[0].Field).
		WithProperty(PropertyCode, "CONFIG_INVALID")
}

// applyDefaults registers the default value for every key that has
// one; registered keys are also the ones environment variables can
// override without appearing in the file.
func applyDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("defaults.expect_timeout", def.Defaults.ExpectTimeout.String())
	v.SetDefault("defaults.read_interval", def.Defaults.ReadInterval.String())
	v.SetDefault("defaults.stale_flush_multiplier", def.Defaults.StaleFlushMultiplier)
	v.SetDefault("defaults.log_dir", def.Defaults.LogDir)
	v.SetDefault("defaults.line_ending", def.Defaults.LineEnding)
	v.SetDefault("bridge.websocket.enabled", false)
	v.SetDefault("bridge.websocket.listen", "")
	v.SetDefault("bridge.mqtt.enabled", false)
	v.SetDefault("bridge.mqtt.broker", "")
	v.SetDefault("bridge.mqtt.topic_prefix", def.Bridge.MQTT.TopicPrefix)
	v.SetDefault("bridge.mqtt.qos", def.Bridge.MQTT.QoS)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", def.Metrics.Listen)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
}
