package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/iwvelando/strategy-optimizer/internal/config"
	"github.com/iwvelando/strategy-optimizer/pkg/constants"
	"gopkg.in/yaml.v3"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

// Config defines runtime parameters for the status server.
type Config struct {
	Address           string               `yaml:"address"`
	ReadHeaderTimeout string               `yaml:"readHeaderTimeout"`
	ShutdownTimeout   string               `yaml:"shutdownTimeout"`
	Logging           config.LoggingConfig `yaml:"logging"`
	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
}

// LoadConfig loads the server configuration from YAML. If the file does not exist,
// defaults are returned without error.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Address:           constants.DefaultServerAddress,
		readHeaderTimeout: defaultReadHeaderTimeout,
		shutdownTimeout:   defaultShutdownTimeout,
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadHeaderTimeoutDuration returns the parsed read header timeout.
func (c *Config) ReadHeaderTimeoutDuration() time.Duration {
	return c.readHeaderTimeout
}

// ShutdownTimeoutDuration returns the parsed graceful shutdown timeout.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	return c.shutdownTimeout
}

func (c *Config) normalize() error {
	if c.Address == "" {
		c.Address = constants.DefaultServerAddress
	}

	var err error
	if c.readHeaderTimeout, err = parseTimeout("readHeaderTimeout", c.ReadHeaderTimeout, defaultReadHeaderTimeout); err != nil {
		return err
	}
	if c.shutdownTimeout, err = parseTimeout("shutdownTimeout", c.ShutdownTimeout, defaultShutdownTimeout); err != nil {
		return err
	}
	return nil
}

func parseTimeout(field, value string, fallback time.Duration) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return d, nil
}
