// Package config reads the process configuration from the environment.
// Command-line flags in cmd/chronicle override what is read here.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the known levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the runtime configuration of the chronicle binary.
type Config struct {
	// World is the content directory to load.
	World string `env:"CHRONICLE_WORLD" envDefault:"worlds/harbour"`

	// SaveDir holds the save index and save files.
	SaveDir string `env:"CHRONICLE_SAVE_DIR" envDefault:"saves"`

	LogLevel LogLevel `env:"CHRONICLE_LOG_LEVEL" envDefault:"warn"`

	// LogFile receives log output. Empty means stderr, which only ever sees
	// warnings and worse so the game screen stays readable.
	LogFile string `env:"CHRONICLE_LOG_FILE"`

	// Plain selects the line-based presenter instead of the TUI.
	Plain bool `env:"CHRONICLE_PLAIN"`

	// SaveOnExit writes the save file when the player quits.
	SaveOnExit bool `env:"CHRONICLE_SAVE_ON_EXIT" envDefault:"false"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields that have a closed set of values or must not
// be empty. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.World == "" {
		errs = append(errs, errors.New("config: world directory is required"))
	}
	if c.SaveDir == "" {
		errs = append(errs, errors.New("config: save directory is required"))
	}
	if !c.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("config: log level %q is invalid; valid values: debug, info, warn, error", c.LogLevel))
	}
	return errors.Join(errs...)
}
