// Package config loads server settings from defaults, a YAML file and
// MDB_MCP_* environment variables. Command-line flags are applied last by
// the caller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transports supported by the server.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "MDB_MCP_"

// Config holds server-wide settings.
type Config struct {
	// ConnectionString is passed to the driver verbatim. Empty means the
	// client must call the connect tool first.
	ConnectionString string `yaml:"connectionString"`

	// ReadOnly registers only metadata and read tools.
	ReadOnly bool `yaml:"readOnly"`

	// DisabledTools lists tool names or kinds ("create", "update", ...) to omit.
	DisabledTools []string `yaml:"disabledTools"`

	// MaxDocumentsPerQuery and MaxBytesPerQuery stay untyped until a read
	// resolves them; invalid values disable the corresponding ceiling.
	MaxDocumentsPerQuery any `yaml:"maxDocumentsPerQuery"`
	MaxBytesPerQuery     any `yaml:"maxBytesPerQuery"`

	Transport string `yaml:"transport"`
	HTTPHost  string `yaml:"httpHost"`
	HTTPPort  int    `yaml:"httpPort"`

	// ToolTimeout bounds every tool call.
	ToolTimeout time.Duration `yaml:"toolTimeout"`

	// LogPath redirects logs from stderr to a file.
	LogPath string `yaml:"logPath"`
	Verbose bool   `yaml:"verbose"`

	// EventCacheSize caps the number of tool-call events kept for the
	// debug resource.
	EventCacheSize int `yaml:"eventCacheSize"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxDocumentsPerQuery: 100,
		MaxBytesPerQuery:     16 * 1024 * 1024,
		Transport:            TransportStdio,
		HTTPHost:             "127.0.0.1",
		HTTPPort:             3000,
		ToolTimeout:          2 * time.Minute,
		EventCacheSize:       200,
	}
}

// Load builds a Config from defaults, the optional YAML file at path and
// the process environment, then applies overrides in order before
// validating the result.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	for _, override := range overrides {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays MDB_MCP_* variables found by lookup onto cfg.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}

	if v, ok := get("CONNECTION_STRING"); ok {
		c.ConnectionString = v
	}
	if v, ok := get("READ_ONLY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sREAD_ONLY: %w", EnvPrefix, err)
		}
		c.ReadOnly = b
	}
	if v, ok := get("DISABLED_TOOLS"); ok {
		c.DisabledTools = SplitList(v)
	}
	// Byte and document ceilings are validated where they are used.
	if v, ok := get("MAX_DOCUMENTS_PER_QUERY"); ok {
		c.MaxDocumentsPerQuery = v
	}
	if v, ok := get("MAX_BYTES_PER_QUERY"); ok {
		c.MaxBytesPerQuery = v
	}
	if v, ok := get("TRANSPORT"); ok {
		c.Transport = v
	}
	if v, ok := get("HTTP_HOST"); ok {
		c.HTTPHost = v
	}
	if v, ok := get("HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sHTTP_PORT: %w", EnvPrefix, err)
		}
		c.HTTPPort = port
	}
	if v, ok := get("TOOL_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTOOL_TIMEOUT: %w", EnvPrefix, err)
		}
		c.ToolTimeout = d
	}
	if v, ok := get("LOG_PATH"); ok {
		c.LogPath = v
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportStdio:
	case TransportHTTP:
		if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
			return fmt.Errorf("invalid http port %d", c.HTTPPort)
		}
	default:
		return fmt.Errorf("unknown transport %q (want %s or %s)", c.Transport, TransportStdio, TransportHTTP)
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("tool timeout must be positive, got %s", c.ToolTimeout)
	}
	return nil
}

// HTTPAddr returns host:port for the HTTP transport.
func (c Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
