package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of the lifeline command.
type Config struct {
	// Addr is the listen address of the probe server.
	// Environment: LIFELINE_ADDR
	Addr string `yaml:"addr"`

	// ReadinessPeriodSeconds is the orchestrator's readiness probe period.
	// Environment: LIFELINE_READINESS_PERIOD_SECONDS
	ReadinessPeriodSeconds int `yaml:"readiness_period_seconds"`

	// ReadinessFailureThreshold is the orchestrator's readiness failure threshold.
	// Environment: LIFELINE_READINESS_FAILURE_THRESHOLD
	ReadinessFailureThreshold int `yaml:"readiness_failure_threshold"`

	// Orchestrated forces orchestrator mode on or off. Unset means detect.
	// Environment: LIFELINE_ORCHESTRATED
	Orchestrated *bool `yaml:"orchestrated,omitempty"`

	// GracefulTimeout bounds draining and cleanup together.
	// Environment: LIFELINE_GRACEFUL_TIMEOUT
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`

	// HandlerTimeout bounds every shutdown handler.
	// Environment: LIFELINE_HANDLER_TIMEOUT
	HandlerTimeout time.Duration `yaml:"handler_timeout"`

	// Verbosity is the stdr verbosity level.
	// Environment: LIFELINE_VERBOSITY
	Verbosity int `yaml:"verbosity"`
}

// Default returns a Config with the defaults of the command.
func Default() *Config {
	return &Config{
		Addr:                      ":9000",
		ReadinessPeriodSeconds:    5,
		ReadinessFailureThreshold: 1,
		GracefulTimeout:           60 * time.Second,
		HandlerTimeout:            5 * time.Second,
	}
}

// Load reads a YAML config file from path on top of the defaults.
// A missing file is not an error. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot be used.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.ReadinessPeriodSeconds < 0 {
		errs = append(errs, errors.New("readiness_period_seconds must not be negative"))
	}
	if c.ReadinessFailureThreshold < 0 {
		errs = append(errs, errors.New("readiness_failure_threshold must not be negative"))
	}
	if c.GracefulTimeout < 0 {
		errs = append(errs, errors.New("graceful_timeout must not be negative"))
	}
	if c.HandlerTimeout < 0 {
		errs = append(errs, errors.New("handler_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnv() error {
	if val := os.Getenv("LIFELINE_ADDR"); val != "" {
		c.Addr = val
	}
	if err := envInt("LIFELINE_READINESS_PERIOD_SECONDS", &c.ReadinessPeriodSeconds); err != nil {
		return err
	}
	if err := envInt("LIFELINE_READINESS_FAILURE_THRESHOLD", &c.ReadinessFailureThreshold); err != nil {
		return err
	}
	if err := envInt("LIFELINE_VERBOSITY", &c.Verbosity); err != nil {
		return err
	}
	if err := envDuration("LIFELINE_GRACEFUL_TIMEOUT", &c.GracefulTimeout); err != nil {
		return err
	}
	if err := envDuration("LIFELINE_HANDLER_TIMEOUT", &c.HandlerTimeout); err != nil {
		return err
	}
	if val := os.Getenv("LIFELINE_ORCHESTRATED"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("LIFELINE_ORCHESTRATED: %w", err)
		}
		c.Orchestrated = &b
	}
	return nil
}

func envInt(key string, dst *int) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
