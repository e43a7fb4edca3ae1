// Package config loads the sample server's configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: MICROAPI_SERVER_ADDR.
const EnvPrefix = "MICROAPI"

// Config is the sample server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	API      APIConfig      `mapstructure:"api"`
	Log      LogConfig      `mapstructure:"log"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Validate ValidateConfig `mapstructure:"validate"`
}

// ServerConfig configures the listener.
type ServerConfig struct {
	Addr    string        `mapstructure:"addr" validate:"required,hostname_port"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// APIConfig configures where definitions are loaded from and how the
// OpenAPI document is titled.
type APIConfig struct {
	Dir     string `mapstructure:"dir"`
	Title   string `mapstructure:"title" validate:"required"`
	Version string `mapstructure:"version" validate:"required"`
	Prefix  string `mapstructure:"prefix" validate:"omitempty,startswith=/"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// LimitsConfig bounds request size and rate.
type LimitsConfig struct {
	BodyBytes int64   `mapstructure:"body_bytes" validate:"gte=0"`
	Rate      float64 `mapstructure:"rate" validate:"gte=0"`
	Burst     int     `mapstructure:"burst" validate:"gte=0"`
}

// ValidateConfig selects how use handlers attach.
type ValidateConfig struct {
	UseScope string `mapstructure:"use_scope" validate:"oneof=level first-leaf"`
}

// Load reads the config file at path, when given, then environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("api.dir", "")
	v.SetDefault("api.title", "Sample API")
	v.SetDefault("api.version", "1.0.0")
	v.SetDefault("api.prefix", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("limits.body_bytes", 1<<20)
	v.SetDefault("limits.rate", 50)
	v.SetDefault("limits.burst", 100)
	v.SetDefault("validate.use_scope", "level")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
