// Package config centralizes the daemon's configuration surface and
// its viper defaults, so every component (Poller, RunnerPool, executor)
// reads from one resolved Config instead of touching viper directly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved configuration the daemon runs with.
type Config struct {
	StateDir string
	DBPath   string

	PollInterval             time.Duration
	MaxConcurrentWorkflows   int
	WatchedStatuses          []string
	AllowedUsername          string
	DaemonUsername           string
	TeamUsernames            []string
	StaleThreshold           time.Duration
	HibernationProbeInterval time.Duration

	Executor        string // "cli" or "api"
	CLIBinary       string
	AnthropicAPIKey string
	StageModels     map[string]string

	MCPAddr   string
	ServeAddr string
}

// DefaultConfigDir returns ~/.config/boardrunner, the default home for
// both the config file and the SQLite database.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "boardrunner"), nil
}

// SetDefaults registers every recognized option's default value on v.
func SetDefaults(v *viper.Viper) {
	dir, _ := DefaultConfigDir()

	v.SetDefault("state_dir", dir)
	v.SetDefault("db_path", filepath.Join(dir, "boardrunner.db"))

	v.SetDefault("poll_interval", 30)
	v.SetDefault("max_concurrent_workflows", 3)
	v.SetDefault("watched_statuses", []string{"Research", "Plan", "Implement"})
	v.SetDefault("allowed_username", "")
	v.SetDefault("daemon_username", "")
	v.SetDefault("team_usernames", []string{})
	v.SetDefault("stale_threshold", 3600)
	v.SetDefault("hibernation_probe_interval", 300)

	v.SetDefault("executor.kind", "cli")
	v.SetDefault("executor.cli_binary", "claude")
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("stage_models", map[string]string{})

	v.SetDefault("mcp.addr", "")
	v.SetDefault("serve.addr", "127.0.0.1:8181")
}

// Load resolves a Config from v, which must already have had
// SetDefaults applied and ReadInConfig/AutomaticEnv called by the
// caller (cmd/root.go's cobra.OnInitialize wiring).
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		StateDir:                 v.GetString("state_dir"),
		DBPath:                   v.GetString("db_path"),
		PollInterval:             time.Duration(v.GetInt("poll_interval")) * time.Second,
		MaxConcurrentWorkflows:   v.GetInt("max_concurrent_workflows"),
		WatchedStatuses:          v.GetStringSlice("watched_statuses"),
		AllowedUsername:          v.GetString("allowed_username"),
		DaemonUsername:           v.GetString("daemon_username"),
		TeamUsernames:            v.GetStringSlice("team_usernames"),
		StaleThreshold:           time.Duration(v.GetInt("stale_threshold")) * time.Second,
		HibernationProbeInterval: time.Duration(v.GetInt("hibernation_probe_interval")) * time.Second,
		Executor:                 v.GetString("executor.kind"),
		CLIBinary:                v.GetString("executor.cli_binary"),
		AnthropicAPIKey:          v.GetString("anthropic.api_key"),
		StageModels:              v.GetStringMapString("stage_models"),
		MCPAddr:                  v.GetString("mcp.addr"),
		ServeAddr:                v.GetString("serve.addr"),
	}

	if cfg.AllowedUsername == "" {
		return cfg, fmt.Errorf("allowed_username is required (set BOARDRUNNER_ALLOWED_USERNAME or allowed_username in config.yaml)")
	}
	if cfg.Executor != "cli" && cfg.Executor != "api" {
		return cfg, fmt.Errorf("executor.kind must be \"cli\" or \"api\", got %q", cfg.Executor)
	}
	if cfg.Executor == "api" && strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
		return cfg, fmt.Errorf("anthropic.api_key is required when executor.kind is \"api\"")
	}
	return cfg, nil
}
