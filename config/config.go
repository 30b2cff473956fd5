package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ezenkico/deploy-commander/sequencer/models"
)

type Config struct {
	StackFile   string
	Variant     string // required by commands acting on containers
	ProjectName string // overrides the stack name when set
	LogLevel    string
	LogFormat   string // json or console

	// AgentEndpoint is the controller receiving lifecycle events, e.g.
	// tcp://controller:9000 or unix:///run/agent.sock. Empty disables events.
	AgentEndpoint string
	Token         string

	MetricsAddr string

	HealthInterval    time.Duration
	HealthTimeout     time.Duration
	HealthRetries     int
	HealthStartPeriod time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		StackFile:     getEnv("STACK_FILE", "deploy/stack.yaml"),
		Variant:       getEnv("VARIANT", ""),
		ProjectName:   getEnv("PROJECT_NAME", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		AgentEndpoint: getEnv("AGENT_ENDPOINT", ""),
		Token:         getEnv("TOKEN", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ""),
	}

	var errs []error
	var err error
	if cfg.HealthInterval, err = getDuration("HEALTH_INTERVAL", 2*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.HealthTimeout, err = getDuration("HEALTH_TIMEOUT", 5*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.HealthStartPeriod, err = getDuration("HEALTH_START_PERIOD", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.HealthRetries, err = getInt("HEALTH_RETRIES", 30); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return cfg, nil
}

// Validate reports every missing or invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.StackFile) == "" {
		errs = append(errs, errors.New("STACK_FILE is required"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is invalid", c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is invalid (use json or console)", c.LogFormat))
	}
	if c.AgentEndpoint != "" && !strings.HasPrefix(c.AgentEndpoint, "tcp://") && !strings.HasPrefix(c.AgentEndpoint, "unix://") {
		errs = append(errs, fmt.Errorf("AGENT_ENDPOINT %q must start with tcp:// or unix://", c.AgentEndpoint))
	}
	if c.HealthInterval <= 0 {
		errs = append(errs, errors.New("HEALTH_INTERVAL must be positive"))
	}
	if c.HealthTimeout <= 0 {
		errs = append(errs, errors.New("HEALTH_TIMEOUT must be positive"))
	}
	if c.HealthRetries < 1 {
		errs = append(errs, errors.New("HEALTH_RETRIES must be at least 1"))
	}
	if c.HealthStartPeriod < 0 {
		errs = append(errs, errors.New("HEALTH_START_PERIOD must not be negative"))
	}

	return errors.Join(errs...)
}

// HealthDefaults returns the timings applied to health checks that leave
// them unset.
func (c *Config) HealthDefaults() models.HealthDefaults {
	return models.HealthDefaults{
		Interval:    c.HealthInterval,
		Timeout:     c.HealthTimeout,
		Retries:     c.HealthRetries,
		StartPeriod: c.HealthStartPeriod,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", key, v)
	}
	return n, nil
}
