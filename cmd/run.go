package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/exampleorg/boardrunner/internal/authz"
	"github.com/exampleorg/boardrunner/internal/backoff"
	"github.com/exampleorg/boardrunner/internal/childcheck"
	"github.com/exampleorg/boardrunner/internal/config"
	"github.com/exampleorg/boardrunner/internal/daemon"
	"github.com/exampleorg/boardrunner/internal/executor"
	"github.com/exampleorg/boardrunner/internal/git"
	"github.com/exampleorg/boardrunner/internal/hibernation"
	"github.com/exampleorg/boardrunner/internal/poller"
	"github.com/exampleorg/boardrunner/internal/raceguard"
	"github.com/exampleorg/boardrunner/internal/reactor"
	"github.com/exampleorg/boardrunner/internal/reset"
	"github.com/exampleorg/boardrunner/internal/runner"
	"github.com/exampleorg/boardrunner/internal/setup"
	"github.com/exampleorg/boardrunner/internal/store"
	"github.com/exampleorg/boardrunner/internal/ticket"
	"github.com/exampleorg/boardrunner/internal/yolo"
)

var skipPreflight bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the poll-and-dispatch daemon",
	Long: `Start boardrunner's main loop: poll every configured board, evaluate
the trigger policy against each item, and dispatch staged coding
workflows. Runs until SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip the gh/claude tool and working-directory checks")
	rootCmd.AddCommand(runCmd)
}

func runRun(parent context.Context) error {
	runtimeCfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelFor(verbose),
	}))

	if !skipPreflight {
		if err := setup.Run(setup.Options{CheckTools: true}); err != nil {
			return fmt.Errorf("preflight check failed: %w", err)
		}
	}

	pidPath := filepath.Join(runtimeCfg.StateDir, "boardrunner.pid")
	if err := os.MkdirAll(runtimeCfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	pidFile := daemon.NewPIDFile(pidPath)
	if err := pidFile.Acquire(); err != nil {
		return fmt.Errorf("acquire pid file: %w", err)
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Warn("remove pid file failed", "error", err)
		}
	}()

	st, err := getStore()
	if err != nil {
		return err
	}

	p, err := buildPoller(runtimeCfg, st, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, shutdownSignals()...)
	defer cancel()

	logger.Info("boardrunner starting", "poll_interval", runtimeCfg.PollInterval, "executor", runtimeCfg.Executor)
	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("poller: %w", err)
	}
	logger.Info("boardrunner shut down cleanly")
	return nil
}

// buildPoller wires every Poller dependency from runtimeCfg, grounded on
// the single constructor each component package exports.
func buildPoller(runtimeCfg config.Config, st store.Store, logger *slog.Logger) (*poller.Poller, error) {
	daemonUsername := runtimeCfg.DaemonUsername
	if daemonUsername == "" {
		daemonUsername = runtimeCfg.AllowedUsername
		runtimeCfg.DaemonUsername = daemonUsername
	}

	adapter := ticket.NewGitHubAdapter()
	guard := raceguard.New(adapter, daemonUsername)
	authzPolicy := authz.NewPolicy(runtimeCfg.AllowedUsername, daemonUsername, runtimeCfg.TeamUsernames)
	pool := runner.New(runtimeCfg.MaxConcurrentWorkflows)
	backoffCtrl := backoff.New(runtimeCfg.PollInterval, 0)
	hibernationCtrl := hibernation.New(runtimeCfg.HibernationProbeInterval, logger)
	reactorCtrl := reactor.New(adapter, guard, authzPolicy, st, logger)
	yoloCtrl := yolo.New(adapter, logger)
	ghClient := git.NewGitHubClient()
	resetCtrl := reset.New(adapter, ghClient, logger)

	cliExec := executor.NewCLIExecutor(runtimeCfg.CLIBinary)
	var apiExec *executor.APIExecutor
	if runtimeCfg.Executor == "api" || runtimeCfg.AnthropicAPIKey != "" {
		apiExec = executor.NewAPIExecutor(runtimeCfg.AnthropicAPIKey)
	}

	childCheck := childcheck.New(childcheck.NewRealClient(), logger)

	return poller.New(
		adapter, st, guard, authzPolicy, pool, backoffCtrl, hibernationCtrl,
		reactorCtrl, yoloCtrl, resetCtrl, cliExec, apiExec, childCheck, runtimeCfg, logger,
	), nil
}

func levelFor(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
