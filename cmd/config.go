package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage boardrunner configuration.

Running bare 'boardrunner config' is the same as 'boardrunner config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# boardrunner configuration
# See: boardrunner config show (for effective values and sources)

# State/data directory (default: ~/.config/boardrunner)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/boardrunner/boardrunner.db)
# db_path: {{ .DBPath }}

# The only GitHub username whose yolo/reset/status-change actions the
# daemon will honor (required).
allowed_username: "{{ .AllowedUsername }}"

# Username the daemon itself writes labels/comments under, so it never
# reacts to its own changes. Defaults to allowed_username if unset.
daemon_username: "{{ .DaemonUsername }}"

# Seconds between poll cycles when nothing has gone wrong.
poll_interval: {{ .PollInterval }}

# Maximum workflows dispatched concurrently across all boards.
max_concurrent_workflows: {{ .MaxConcurrentWorkflows }}

# Statuses that trigger a stage when an item has no running/ready label.
watched_statuses: {{ .WatchedStatuses }}

# Coding agent executor: "cli" (drives the claude CLI) or "api" (calls
# the Anthropic API directly for single-prompt stages).
executor:
  kind: "{{ .ExecutorKind }}"
  cli_binary: "{{ .CLIBinary }}"

# Required when executor.kind is "api".
anthropic:
  api_key: "{{ .AnthropicAPIKey }}"
`

type configTemplateData struct {
	StateDir               string
	DBPath                 string
	AllowedUsername        string
	DaemonUsername         string
	PollInterval           int
	MaxConcurrentWorkflows int
	WatchedStatuses        []string
	ExecutorKind           string
	CLIBinary              string
	AnthropicAPIKey        string
}

func configFilePath() (string, error) {
	return filepath.Join(configDir(), "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	data := configTemplateData{
		StateDir:               viper.GetString("state_dir"),
		DBPath:                 viper.GetString("db_path"),
		AllowedUsername:        viper.GetString("allowed_username"),
		DaemonUsername:         viper.GetString("daemon_username"),
		PollInterval:           viper.GetInt("poll_interval"),
		MaxConcurrentWorkflows: viper.GetInt("max_concurrent_workflows"),
		WatchedStatuses:        viper.GetStringSlice("watched_statuses"),
		ExecutorKind:           viper.GetString("executor.kind"),
		CLIBinary:              viper.GetString("executor.cli_binary"),
		AnthropicAPIKey:        viper.GetString("anthropic.api_key"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "BOARDRUNNER_STATE_DIR"},
	{Key: "db_path", EnvVar: "BOARDRUNNER_DB_PATH"},
	{Key: "allowed_username", EnvVar: "BOARDRUNNER_ALLOWED_USERNAME"},
	{Key: "daemon_username", EnvVar: "BOARDRUNNER_DAEMON_USERNAME"},
	{Key: "poll_interval", EnvVar: "BOARDRUNNER_POLL_INTERVAL"},
	{Key: "max_concurrent_workflows", EnvVar: "BOARDRUNNER_MAX_CONCURRENT_WORKFLOWS"},
	{Key: "watched_statuses", EnvVar: "BOARDRUNNER_WATCHED_STATUSES"},
	{Key: "stale_threshold", EnvVar: "BOARDRUNNER_STALE_THRESHOLD"},
	{Key: "hibernation_probe_interval", EnvVar: "BOARDRUNNER_HIBERNATION_PROBE_INTERVAL"},
	{Key: "executor.kind", EnvVar: "BOARDRUNNER_EXECUTOR_KIND"},
	{Key: "executor.cli_binary", EnvVar: "BOARDRUNNER_EXECUTOR_CLI_BINARY"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-30s %v  %s\n", k.Key, val, source)
	}

	if _, err := loadConfig(); err != nil {
		fmt.Fprintln(ui.Out)
		ui.Warning("configuration is incomplete: %v", err)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'boardrunner config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
