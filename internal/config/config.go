// Package config provides Viper-based configuration loading for the voxel server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/YashM20/voxel-builder-threejs/internal/world"
)

// ServerConfig holds the websocket sync transport settings.
type ServerConfig struct {
	// Host is the bind address for the websocket listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the websocket listener.
	Port int `mapstructure:"port"`
	// WriteTimeout bounds each outbound frame write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxMessageBytes caps the size of an inbound frame.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
	// OutboundQueue is the per-connection queue depth.
	OutboundQueue int `mapstructure:"outbound_queue"`
	// ShutdownTimeout bounds graceful shutdown of the HTTP listener.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StaticConfig holds the static asset HTTP server settings.
type StaticConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	// Dir is the directory served read-only.
	Dir string `mapstructure:"dir"`
}

// Addr returns the "host:port" listen address.
func (s StaticConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WorldConfig holds grid extent and generation settings.
type WorldConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
	Depth  int `mapstructure:"depth"`
	// Seed makes generation and colour assignment reproducible; 0 uses crypto/rand.
	Seed uint64 `mapstructure:"seed"`
	// GroundBlock is the code laid at y = 0 by the default generator.
	GroundBlock int `mapstructure:"ground_block"`
	// ScatterBlock is the code scattered above the ground by the default generator.
	ScatterBlock int `mapstructure:"scatter_block"`
	// ScatterCount is the number of scatter placements.
	ScatterCount int `mapstructure:"scatter_count"`
	// Catalog is an optional YAML block catalog path.
	Catalog string `mapstructure:"catalog"`
	// GeneratorScript is an optional Lua script replacing the default generator.
	GeneratorScript string `mapstructure:"generator_script"`
	// ScriptInstructionLimit caps the generator script's opcode count.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
}

// SessionConfig holds client identity settings.
type SessionConfig struct {
	// Palette lists the colours assigned to new sessions.
	Palette []string `mapstructure:"palette"`
}

// RateLimitConfig holds per-session edit throttling.
type RateLimitConfig struct {
	// EditsPerSecond is the sustained edit rate; 0 disables limiting.
	EditsPerSecond float64 `mapstructure:"edits_per_second"`
	// Burst is the token bucket size.
	Burst int `mapstructure:"burst"`
}

// AuditConfig holds the edit audit trail settings.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Static    StaticConfig    `mapstructure:"static"`
	World     WorldConfig     `mapstructure:"world"`
	Session   SessionConfig   `mapstructure:"session"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SharedListener reports whether static files are served on the websocket
// listener, which happens when both are enabled on the same port.
func (c Config) SharedListener() bool {
	return c.Static.Enabled && c.Static.Port == c.Server.Port
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, err := range []error{
		validateServer(c.Server),
		validateStatic(c.Static),
		validateWorld(c.World),
		validateSession(c.Session),
		validateRateLimit(c.RateLimit),
		validateAudit(c.Audit),
		validateLogging(c.Logging),
		validateListeners(c),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validatePort(field string, port int) string {
	if port < 0 || port > 65535 {
		return fmt.Sprintf("%s must be 0-65535, got %d", field, port)
	}
	return ""
}

func joinErrs(errs []string) error {
	var kept []string
	for _, e := range errs {
		if e != "" {
			kept = append(kept, e)
		}
	}
	if len(kept) > 0 {
		return fmt.Errorf("%s", strings.Join(kept, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	errs := []string{validatePort("server.port", s.Port)}
	if s.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout must not be negative")
	}
	if s.MaxMessageBytes < 0 {
		errs = append(errs, fmt.Sprintf("server.max_message_bytes must be >= 0, got %d", s.MaxMessageBytes))
	}
	if s.OutboundQueue < 1 {
		errs = append(errs, fmt.Sprintf("server.outbound_queue must be >= 1, got %d", s.OutboundQueue))
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	return joinErrs(errs)
}

func validateListeners(c Config) error {
	if c.SharedListener() && c.Static.Host != c.Server.Host {
		return fmt.Errorf("static.host %q must equal server.host %q when static.port equals server.port", c.Static.Host, c.Server.Host)
	}
	return nil
}

func validateStatic(s StaticConfig) error {
	if !s.Enabled {
		return nil
	}
	errs := []string{validatePort("static.port", s.Port)}
	if s.Dir == "" {
		errs = append(errs, "static.dir must not be empty when static.enabled is true")
	}
	return joinErrs(errs)
}

func validateWorld(w WorldConfig) error {
	var errs []string
	if w.Width < 1 || w.Height < 1 || w.Depth < 1 {
		errs = append(errs, fmt.Sprintf("world extent must be >= 1 in every dimension, got %dx%dx%d", w.Width, w.Height, w.Depth))
	} else if !world.FitsCells(w.Width, w.Height, w.Depth) {
		errs = append(errs, fmt.Sprintf("world extent %dx%dx%d exceeds %d cells", w.Width, w.Height, w.Depth, world.MaxCells))
	}
	if w.GeneratorScript == "" && w.Height < 4 {
		errs = append(errs, fmt.Sprintf("world.height must be >= 4 for the default generator, got %d", w.Height))
	}
	if w.ScatterCount < 0 {
		errs = append(errs, fmt.Sprintf("world.scatter_count must be >= 0, got %d", w.ScatterCount))
	}
	if w.GroundBlock < 0 || w.ScatterBlock < 0 {
		errs = append(errs, "world.ground_block and world.scatter_block must be >= 0")
	}
	if w.ScriptInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("world.script_instruction_limit must be >= 0, got %d", w.ScriptInstructionLimit))
	}
	return joinErrs(errs)
}

func validateSession(s SessionConfig) error {
	if len(s.Palette) == 0 {
		return errors.New("session.palette must not be empty")
	}
	for _, c := range s.Palette {
		if c == "" {
			return errors.New("session.palette must not contain empty colours")
		}
	}
	return nil
}

func validateRateLimit(r RateLimitConfig) error {
	var errs []string
	if r.EditsPerSecond < 0 {
		errs = append(errs, fmt.Sprintf("rate_limit.edits_per_second must be >= 0, got %g", r.EditsPerSecond))
	}
	if r.EditsPerSecond > 0 && r.Burst < 1 {
		errs = append(errs, fmt.Sprintf("rate_limit.burst must be >= 1 when limiting is enabled, got %d", r.Burst))
	}
	return joinErrs(errs)
}

func validateAudit(a AuditConfig) error {
	if a.Enabled && a.Dir == "" {
		return errors.New("audit.dir must not be empty when audit.enabled is true")
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment
// variable overrides, and validates the result. An empty path loads defaults
// and environment overrides only.
//
// Precondition: path must be empty or name a readable YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// NewViper returns a Viper instance with defaults and VOXEL_ environment
// overrides applied.
//
// Postcondition: Returns a non-nil Viper instance.
func NewViper() *viper.Viper {
	v := viper.New()

	// Environment variable overrides with VOXEL_ prefix
	v.SetEnvPrefix("VOXEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT moves the shared page and sync listener; WS_PORT splits the sync
	// endpoint onto its own port.
	_ = v.BindEnv("static.port", "VOXEL_STATIC_PORT", "PORT")
	_ = v.BindEnv("server.port", "VOXEL_SERVER_PORT", "WS_PORT", "PORT")

	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.max_message_bytes", 64*1024)
	v.SetDefault("server.outbound_queue", 256)
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("static.enabled", true)
	v.SetDefault("static.host", "0.0.0.0")
	v.SetDefault("static.port", 3001)
	v.SetDefault("static.dir", "./public")

	v.SetDefault("world.width", 16)
	v.SetDefault("world.height", 16)
	v.SetDefault("world.depth", 16)
	v.SetDefault("world.seed", 0)
	v.SetDefault("world.ground_block", 1)
	v.SetDefault("world.scatter_block", 2)
	v.SetDefault("world.scatter_count", 20)
	v.SetDefault("world.catalog", "")
	v.SetDefault("world.generator_script", "")
	v.SetDefault("world.script_instruction_limit", 1_000_000)

	v.SetDefault("session.palette", []string{
		"#FF6B6B", "#4ECDC4", "#FFD166", "#06D6A0", "#118AB2",
		"#EF476F", "#FFC43D", "#1B9AAA", "#6A4C93", "#F72585",
	})

	v.SetDefault("rate_limit.edits_per_second", 0)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.dir", "./data/audit")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
