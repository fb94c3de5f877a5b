// =============================================================================
// config.go - Console Configuration
// =============================================================================
//
// The console talks to one fixed endpoint. Its address, port and timing
// policy can be changed without touching the code, from (lowest to highest
// priority):
//
//  1. Built-in defaults (the bench gateway at 192.168.0.108:502)
//  2. A YAML file given with --config
//  3. ESPCONSOLE_* environment variables (ESPCONSOLE_RETRY_DELAY=0s)
//  4. Command-line flags that were explicitly set
//
// Layers are merged with knadh/koanf, then unmarshalled into Config.
//
// =============================================================================

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/LayAlex/ESP-TCP-UART-Gateway/rawtcp"
)

// envPrefix is the prefix of environment variables read into the config.
const envPrefix = "ESPCONSOLE_"

// Config holds everything the console can be told from the outside.
//
// GO CONCEPT: Struct Tags
// -----------------------
// The text in backticks after a field is a struct tag: metadata that
// libraries read through reflection. koanf uses the "koanf" key to map
// configuration keys onto fields, so "retry_delay: 5s" in YAML ends up in
// RetryDelay. Durations are decoded from strings like "2s" or "50ms".
//
// Compare with Python: pydantic's Field(alias="retry_delay") plays the same
// role for a BaseModel.
type Config struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`

	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	SendTimeout    time.Duration `koanf:"send_timeout"`
	ReceiveTimeout time.Duration `koanf:"receive_timeout"`

	// ResponseTimeout is how long to wait for the device to answer.
	ResponseTimeout time.Duration `koanf:"response_timeout"`
	// PollInterval is how often readability is checked while waiting.
	PollInterval time.Duration `koanf:"poll_interval"`

	// RetryDelay is the pause between connection attempts. Zero retries
	// immediately.
	RetryDelay time.Duration `koanf:"retry_delay"`
	// ReconnectOnTimeout drops the connection when the device does not
	// answer within ResponseTimeout. By default the session stays open.
	ReconnectOnTimeout bool `koanf:"reconnect_on_timeout"`

	HistoryFile string `koanf:"history_file"`
	LogLevel    string `koanf:"log"`
}

// defaultConfig returns the built-in defaults.
func defaultConfig() Config {
	return Config{
		Address:            rawtcp.DefaultAddress,
		Port:               rawtcp.DefaultPort,
		ConnectTimeout:     rawtcp.DefaultConnectTimeout,
		SendTimeout:        rawtcp.DefaultSendTimeout,
		ReceiveTimeout:     rawtcp.DefaultReceiveTimeout,
		ResponseTimeout:    rawtcp.ResponseTimeout,
		PollInterval:       rawtcp.PollInterval,
		RetryDelay:         3 * time.Second,
		ReconnectOnTimeout: false,
		LogLevel:           "warn",
	}
}

// asMap flattens c into koanf keys.
func (c Config) asMap() map[string]any {
	return map[string]any{
		"address":              c.Address,
		"port":                 c.Port,
		"connect_timeout":      c.ConnectTimeout,
		"send_timeout":         c.SendTimeout,
		"receive_timeout":      c.ReceiveTimeout,
		"response_timeout":     c.ResponseTimeout,
		"poll_interval":        c.PollInterval,
		"retry_delay":          c.RetryDelay,
		"reconnect_on_timeout": c.ReconnectOnTimeout,
		"history_file":         c.HistoryFile,
		"log":                  c.LogLevel,
	}
}

// Target returns "address:port".
func (c Config) Target() string {
	return rawtcp.JoinHostPort(c.Address, c.Port)
}

// connOptions converts c into rawtcp options.
func (c Config) connOptions(logger *slog.Logger) rawtcp.Options {
	return rawtcp.Options{
		Address:        c.Address,
		Port:           c.Port,
		ConnectTimeout: c.ConnectTimeout,
		SendTimeout:    c.SendTimeout,
		ReceiveTimeout: c.ReceiveTimeout,
		Logger:         logger,
	}
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Address) == "" {
		errs = append(errs, errors.New("address must not be empty"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range 1-65535", c.Port))
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"connect_timeout", c.ConnectTimeout},
		{"send_timeout", c.SendTimeout},
		{"receive_timeout", c.ReceiveTimeout},
		{"response_timeout", c.ResponseTimeout},
		{"poll_interval", c.PollInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", p.name, p.value))
		}
	}

	if c.PollInterval > 0 && c.ResponseTimeout > 0 && c.PollInterval > c.ResponseTimeout {
		errs = append(errs, fmt.Errorf("poll_interval %s exceeds response_timeout %s", c.PollInterval, c.ResponseTimeout))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_delay must not be negative, got %s", c.RetryDelay))
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// mapProvider is a koanf provider over an in-memory map. It carries the
// defaults and the explicitly set flags.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("map provider does not support ReadBytes")
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}

// loadConfig merges defaults, the optional YAML file at path, the
// environment and flag overrides, and validates the result.
func loadConfig(path string, overrides map[string]any) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(defaultConfig().asMap()), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// ESPCONSOLE_RETRY_DELAY -> retry_delay
	envTransformer := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}
	if err := k.Load(env.Provider(envPrefix, ".", envTransformer), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(mapProvider(overrides), nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
