// Package config manages chatd configuration using koanf/v2.
//
// Supports YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete chatd configuration.
type Config struct {
	Listen  ListenConfig  `koanf:"listen"`
	Chat    ChatConfig    `koanf:"chat"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// ListenConfig holds the TCP listener configuration.
type ListenConfig struct {
	// Addr is the chat listen address (e.g., "127.0.0.1:8000").
	Addr string `koanf:"addr"`

	// MaxConns caps the number of simultaneously accepted connections.
	// Zero disables the cap.
	MaxConns int `koanf:"max_conns"`
}

// ChatConfig holds the protocol and policy parameters of the chat server.
type ChatConfig struct {
	// ReadBufferBytes is the maximum size of one inbound command line.
	// Each socket read is treated as a single command.
	ReadBufferBytes int `koanf:"read_buffer_bytes"`

	// HistoryDepth is the number of recent public messages replayed when
	// a session enters the general chat.
	HistoryDepth int `koanf:"history_depth"`

	// RateCap is the maximum number of public messages a user may send
	// per wall-clock hour.
	RateCap int `koanf:"rate_cap"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with the compiled defaults:
// the listener on 127.0.0.1:8000, a 1024-byte command buffer, a 20-message
// history replay, and a cap of 20 public messages per user per hour.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Addr:     "127.0.0.1:8000",
			MaxConns: 1024,
		},
		Chat: ChatConfig{
			ReadBufferBytes: 1024,
			HistoryDepth:    20,
			RateCap:         20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for chatd configuration.
// Variables are named CHATD_<section>_<key>, e.g., CHATD_LISTEN_ADDR.
const envPrefix = "CHATD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (CHATD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	CHATD_LISTEN_ADDR  -> listen.addr
//	CHATD_LOG_LEVEL    -> log.level
//	CHATD_LOG_FORMAT   -> log.format
//	CHATD_METRICS_ADDR -> metrics.addr
//	CHATD_METRICS_PATH -> metrics.path
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// CHATD_LISTEN_ADDR -> listen.addr (strip prefix, lowercase, _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms CHATD_LISTEN_ADDR -> listen.addr.
// Strips the CHATD_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"listen.addr":            defaults.Listen.Addr,
		"listen.max_conns":       defaults.Listen.MaxConns,
		"chat.read_buffer_bytes": defaults.Chat.ReadBufferBytes,
		"chat.history_depth":     defaults.Chat.HistoryDepth,
		"chat.rate_cap":          defaults.Chat.RateCap,
		"log.level":              defaults.Log.Level,
		"log.format":             defaults.Log.Format,
		"metrics.addr":           defaults.Metrics.Addr,
		"metrics.path":           defaults.Metrics.Path,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyListenAddr indicates the chat listen address is empty.
	ErrEmptyListenAddr = errors.New("listen.addr must not be empty")

	// ErrInvalidMaxConns indicates a negative connection cap.
	ErrInvalidMaxConns = errors.New("listen.max_conns must be >= 0")

	// ErrInvalidReadBuffer indicates a non-positive command buffer size.
	ErrInvalidReadBuffer = errors.New("chat.read_buffer_bytes must be > 0")

	// ErrInvalidHistoryDepth indicates a negative history replay depth.
	ErrInvalidHistoryDepth = errors.New("chat.history_depth must be >= 0")

	// ErrInvalidRateCap indicates a non-positive hourly send cap.
	ErrInvalidRateCap = errors.New("chat.rate_cap must be >= 1")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Listen.Addr == "" {
		return ErrEmptyListenAddr
	}

	if cfg.Listen.MaxConns < 0 {
		return ErrInvalidMaxConns
	}

	if cfg.Chat.ReadBufferBytes <= 0 {
		return ErrInvalidReadBuffer
	}

	if cfg.Chat.HistoryDepth < 0 {
		return ErrInvalidHistoryDepth
	}

	if cfg.Chat.RateCap < 1 {
		return ErrInvalidRateCap
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
