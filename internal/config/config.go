// Package config loads stratagem settings from a YAML file.
//
// The file is decoded into a generic map first and then into Config with
// mapstructure, so durations can be written as "5s" and absent keys keep
// their defaults. The result is checked with validator struct tags.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the full settings tree.
type Config struct {
	DB     string       `mapstructure:"db" yaml:"db" validate:"required"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Chain  ChainConfig  `mapstructure:"chain" yaml:"chain"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Lock   LockConfig   `mapstructure:"lock" yaml:"lock"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// ChainConfig tunes the host chain.
type ChainConfig struct {
	// MaxMessages caps the messages one transaction may dispatch.
	MaxMessages int    `mapstructure:"max_messages" yaml:"max_messages" validate:"gt=0,lte=100000"`
	Registry    string `mapstructure:"registry" yaml:"registry" validate:"required"`
	// World is an optional seed file applied by `serve` at startup.
	World           string `mapstructure:"world" yaml:"world"`
	ThorchainFeeBps uint64 `mapstructure:"thorchain_fee_bps" yaml:"thorchain_fee_bps" validate:"lt=10000"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	// Keepers may call execute on any strategy, subject to KeeperRate.
	Keepers     []string `mapstructure:"keepers" yaml:"keepers" validate:"dive,required"`
	KeeperRate  float64  `mapstructure:"keeper_rate" yaml:"keeper_rate" validate:"gt=0"`
	KeeperBurst int      `mapstructure:"keeper_burst" yaml:"keeper_burst" validate:"gt=0"`
}

// LockConfig selects the per-strategy lock backend.
type LockConfig struct {
	Backend   string        `mapstructure:"backend" yaml:"backend" validate:"oneof=memory redis"`
	RedisAddr string        `mapstructure:"redis_addr" yaml:"redis_addr" validate:"required_if=Backend redis"`
	Prefix    string        `mapstructure:"prefix" yaml:"prefix"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gt=0"`
	// Wait bounds how long a request waits for a held lock. Zero waits
	// until the request's context ends.
	Wait time.Duration `mapstructure:"wait" yaml:"wait" validate:"gte=0"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DB: "stratagem.db",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Chain: ChainConfig{
			MaxMessages:     256,
			Registry:        "registry",
			ThorchainFeeBps: 30,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			KeeperRate:      5,
			KeeperBurst:     10,
		},
		Lock: LockConfig{
			Backend: "memory",
			Prefix:  "stratagem:lock:",
			TTL:     30 * time.Second,
			Wait:    5 * time.Second,
		},
	}
}

var validate = newValidator()

// newValidator reports fields by their yaml names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Load reads path over the defaults and validates the result. An empty
// path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, Validate(cfg)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := Decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode merges YAML data into cfg. Keys absent from data leave cfg's
// values in place; unknown keys are an error.
func Decode(data []byte, cfg *Config) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if raw == nil {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// Validate checks cfg against its struct tags. Failures are reported one
// per field, using the yaml path of the field.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", fieldPath(fe.Namespace()), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// fieldPath drops the root type from "Config.server.keeper_rate".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
