package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadRequiresAllowedUsername(t *testing.T) {
	v := newTestViper()
	_, err := Load(v)
	assert.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	v := newTestViper()
	v.Set("allowed_username", "alice")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 30, int(cfg.PollInterval.Seconds()))
	assert.Equal(t, 3, cfg.MaxConcurrentWorkflows)
	assert.Equal(t, []string{"Research", "Plan", "Implement"}, cfg.WatchedStatuses)
	assert.Equal(t, "cli", cfg.Executor)
}

func TestLoadRejectsUnknownExecutorKind(t *testing.T) {
	v := newTestViper()
	v.Set("allowed_username", "alice")
	v.Set("executor.kind", "carrier-pigeon")

	_, err := Load(v)
	assert.Error(t, err)
}

func TestLoadRequiresAPIKeyForAPIExecutor(t *testing.T) {
	v := newTestViper()
	v.Set("allowed_username", "alice")
	v.Set("executor.kind", "api")

	_, err := Load(v)
	assert.Error(t, err)

	v.Set("anthropic.api_key", "sk-ant-test")
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "api", cfg.Executor)
}
