package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezenkico/deploy-commander/sequencer/models"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"STACK_FILE", "VARIANT", "PROJECT_NAME", "LOG_LEVEL", "LOG_FORMAT",
		"AGENT_ENDPOINT", "TOKEN", "METRICS_ADDR",
		"HEALTH_INTERVAL", "HEALTH_TIMEOUT", "HEALTH_RETRIES", "HEALTH_START_PERIOD",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "deploy/stack.yaml", cfg.StackFile)
	assert.Equal(t, "", cfg.Variant)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "", cfg.AgentEndpoint)
	assert.Equal(t, models.HealthDefaults{
		Interval: 2 * time.Second,
		Timeout:  5 * time.Second,
		Retries:  30,
	}, cfg.HealthDefaults())
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("STACK_FILE", "/srv/stack.yaml")
	t.Setenv("VARIANT", "b")
	t.Setenv("AGENT_ENDPOINT", "tcp://controller:9000")
	t.Setenv("TOKEN", "secret")
	t.Setenv("HEALTH_INTERVAL", "500ms")
	t.Setenv("HEALTH_RETRIES", "3")
	t.Setenv("HEALTH_START_PERIOD", "10s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/stack.yaml", cfg.StackFile)
	assert.Equal(t, "b", cfg.Variant)
	assert.Equal(t, "tcp://controller:9000", cfg.AgentEndpoint)
	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, 500*time.Millisecond, cfg.HealthInterval)
	assert.Equal(t, 3, cfg.HealthRetries)
	assert.Equal(t, 10*time.Second, cfg.HealthStartPeriod)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("HEALTH_TIMEOUT", "soon")
	t.Setenv("HEALTH_RETRIES", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HEALTH_TIMEOUT")
	assert.Contains(t, err.Error(), "HEALTH_RETRIES")
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	cfg.StackFile = ""
	cfg.LogLevel = "loud"
	cfg.AgentEndpoint = "http://controller"
	cfg.HealthRetries = 0

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STACK_FILE is required")
	assert.Contains(t, err.Error(), `LOG_LEVEL "loud" is invalid`)
	assert.Contains(t, err.Error(), "AGENT_ENDPOINT")
	assert.Contains(t, err.Error(), "HEALTH_RETRIES must be at least 1")
}
