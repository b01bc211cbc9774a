// Package config loads the language server catalog: which server to
// run for which language, how to start it, and what options to hand it
// during initialization.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServerConfig describes one language server.
type ServerConfig struct {
	// Name identifies the server in logs and lookups.
	Name string `yaml:"name"`

	// Command is the executable to spawn.
	Command string `yaml:"command"`

	// Args are passed to the executable.
	Args []string `yaml:"args,omitempty"`

	// Env holds extra "KEY=VALUE" entries for the server's environment.
	Env []string `yaml:"env,omitempty"`

	// WorkDir is the server's working directory. Empty means inherit.
	WorkDir string `yaml:"workdir,omitempty"`

	// Languages lists the language ids this server handles.
	Languages []string `yaml:"languages,omitempty"`

	// InitializationOptions is passed verbatim in the initialize
	// request.
	InitializationOptions map[string]any `yaml:"initialization_options,omitempty"`
}

// CommandLine returns the executable and its arguments as one slice.
func (s *ServerConfig) CommandLine() []string {
	return append([]string{s.Command}, s.Args...)
}

// Config is the top-level configuration file.
type Config struct {
	// LogLevel is the minimum log level: debug, info, warn, or error.
	LogLevel string `yaml:"log_level,omitempty"`

	// InitTimeoutSeconds bounds the initialize handshake. Zero means
	// the default.
	InitTimeoutSeconds int `yaml:"init_timeout_seconds,omitempty"`

	// ShutdownTimeoutSeconds bounds the shutdown request before exit is
	// forced. Zero means the default.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds,omitempty"`

	// Servers is the language server catalog.
	Servers []ServerConfig `yaml:"servers"`
}

const (
	defaultInitTimeoutSeconds     = 30
	defaultShutdownTimeoutSeconds = 5
)

// Default returns a configuration with no servers and default timeouts.
func Default() *Config {
	return &Config{
		LogLevel:               "warn",
		InitTimeoutSeconds:     defaultInitTimeoutSeconds,
		ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if cfg.InitTimeoutSeconds <= 0 {
		cfg.InitTimeoutSeconds = defaultInitTimeoutSeconds
	}
	if cfg.ShutdownTimeoutSeconds <= 0 {
		cfg.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the log level and the server catalog.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	seen := make(map[string]struct{}, len(c.Servers))
	for i := range c.Servers {
		s := &c.Servers[i]
		if s.Name == "" {
			return fmt.Errorf("config: server %d: missing name", i)
		}
		if s.Command == "" {
			return fmt.Errorf("config: server %q: missing command", s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("config: duplicate server name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// Server looks up a server by name.
func (c *Config) Server(name string) (*ServerConfig, bool) {
	for i := range c.Servers {
		if c.Servers[i].Name == name {
			return &c.Servers[i], true
		}
	}
	return nil, false
}

// ServerForLanguage looks up the first server handling a language id.
func (c *Config) ServerForLanguage(lang string) (*ServerConfig, bool) {
	for i := range c.Servers {
		for _, l := range c.Servers[i].Languages {
			if l == lang {
				return &c.Servers[i], true
			}
		}
	}
	return nil, false
}

// DefaultPath returns the conventional configuration file location
// under the user's config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "lsq.yaml"
	}
	return filepath.Join(dir, "lsq", "lsq.yaml")
}
