package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/exampleorg/boardrunner/internal/config"
	"github.com/exampleorg/boardrunner/internal/output"
	"github.com/exampleorg/boardrunner/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	cfg       config.Config
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var rootCmd = &cobra.Command{
	Use:   "boardrunner",
	Short: "Poll a GitHub board and dispatch staged AI coding workflows",
	Long: `boardrunner watches the status/label state of a GitHub issue board
and drives each item through research, plan, and implement stages by
dispatching a coding agent, honoring a single human operator's yolo and
reset controls.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/boardrunner/config.yaml)")
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := config.DefaultConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BOARDRUNNER")
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	// Read config file if it exists (optional).
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Commands that only inspect config (e.g. `config show`) must not
	// fail just because ALLOWED_USERNAME is unset; resolve best-effort
	// here and let the commands that use loadConfig (run, which needs a
	// valid Config, and `config show`, which warns) surface Load's error.
	if loaded, err := config.Load(viper.GetViper()); err == nil {
		cfg = loaded
	}
}

// loadConfig re-resolves Config from viper and returns Load's error, for
// `run`, which cannot proceed without a fully valid configuration, and
// `config show`, which reports it as a warning.
func loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}

func configDir() string {
	if dir := viper.GetString("state_dir"); dir != "" {
		return dir
	}
	dir, _ := config.DefaultConfigDir()
	return dir
}

func configFilePathForDir(dir string) string {
	return filepath.Join(dir, "config.yaml")
}

// getStore returns the shared store, opening and migrating it on first
// call. Commands that only read/write config never need to call this.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	s, err := store.NewSQLiteStore(viper.GetString("db_path"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}
