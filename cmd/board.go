package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exampleorg/boardrunner/internal/git"
	"github.com/exampleorg/boardrunner/internal/models"
	"github.com/exampleorg/boardrunner/internal/output"
)

var (
	boardProjectURL      string
	boardAllowedUsername string
	boardStatuses        []string
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Manage configured boards",
	Long:  "Add, remove, and list the GitHub issue boards boardrunner polls.",
}

var boardAddCmd = &cobra.Command{
	Use:   "add <repo-or-.>",
	Short: "Register a board for polling",
	Long: `Register a board for polling. repo may be "owner/repo",
"hostname/owner/repo" for GitHub Enterprise Server, or "." to detect
owner/repo from the current directory's git remote.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return boardAddRun(args[0])
	},
}

var boardRemoveCmd = &cobra.Command{
	Use:     "remove <repo>",
	Aliases: []string{"rm"},
	Short:   "Stop polling a board",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return boardRemoveRun(args[0])
	},
}

var boardListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List configured boards",
	RunE: func(cmd *cobra.Command, args []string) error {
		return boardListRun()
	},
}

func init() {
	boardAddCmd.Flags().StringVar(&boardProjectURL, "project-url", "", "GitHub Projects v2 URL for this board (required)")
	boardAddCmd.Flags().StringVar(&boardAllowedUsername, "allowed-username", "", "Single human operator authorized to trigger workflows on this board (required)")
	boardAddCmd.Flags().StringSliceVar(&boardStatuses, "status", []string{"Research", "Plan", "Implement"}, "Project status column(s) the daemon watches")
	_ = boardAddCmd.MarkFlagRequired("project-url")
	_ = boardAddCmd.MarkFlagRequired("allowed-username")

	boardCmd.AddCommand(boardAddCmd)
	boardCmd.AddCommand(boardRemoveCmd)
	boardCmd.AddCommand(boardListCmd)
	rootCmd.AddCommand(boardCmd)
}

func boardAddRun(repoArg string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	repo := repoArg
	if repo == "." {
		gc := git.NewClient()
		remoteURL, err := gc.RemoteURL(".")
		if err != nil {
			return fmt.Errorf("detect git remote: %w", err)
		}
		owner, name, err := git.ExtractOwnerRepo(remoteURL)
		if err != nil {
			return fmt.Errorf("parse remote %q: %w", remoteURL, err)
		}
		repo = owner + "/" + name
	}

	b := &models.Board{
		Repo:            repo,
		ProjectURL:      boardProjectURL,
		WatchedStatuses: boardStatuses,
		AllowedUsername: boardAllowedUsername,
	}

	if dryRun {
		ui.DryRunMsg("Would add board: %s (watching %s)", repo, strings.Join(boardStatuses, ", "))
		return nil
	}

	if err := s.CreateBoard(context.Background(), b); err != nil {
		return fmt.Errorf("add board: %w", err)
	}

	ui.Success("Added board: %s", output.Cyan(repo))
	ui.VerboseLog("Watching statuses: %s", strings.Join(boardStatuses, ", "))
	return nil
}

func boardRemoveRun(repo string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if _, err := s.GetBoard(ctx, repo); err != nil {
		return fmt.Errorf("board not found: %s", repo)
	}

	if dryRun {
		ui.DryRunMsg("Would remove board: %s", repo)
		return nil
	}

	if err := s.DeleteBoard(ctx, repo); err != nil {
		return fmt.Errorf("remove board: %w", err)
	}

	ui.Success("Removed board: %s", output.Cyan(repo))
	return nil
}

func boardListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	boards, err := s.ListBoards(context.Background())
	if err != nil {
		return err
	}

	if len(boards) == 0 {
		ui.Info("No boards configured. Use 'boardrunner board add <repo>' to get started.")
		return nil
	}

	table := ui.Table([]string{"Repo", "Project URL", "Watched Statuses", "Allowed User"})
	for _, b := range boards {
		table.Append([]string{
			output.Cyan(b.Repo),
			b.ProjectURL,
			strings.Join(b.WatchedStatuses, ", "),
			b.AllowedUsername,
		})
	}
	table.Render()
	return nil
}
