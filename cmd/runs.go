package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/exampleorg/boardrunner/internal/output"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect dispatched workflow runs",
	Long:  "List the workflow runs boardrunner has dispatched for a ticket.",
}

var runsListCmd = &cobra.Command{
	Use:     "list <repo> <ticket-id>",
	Aliases: []string{"history"},
	Short:   "List recent runs for a ticket, newest first",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticketID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid ticket id %q: %w", args[1], err)
		}
		return runsListRun(args[0], ticketID)
	},
}

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Max runs to show")

	runsCmd.AddCommand(runsListCmd)
	rootCmd.AddCommand(runsCmd)
}

func runsListRun(repo string, ticketID int) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	runs, err := s.ListRunHistory(context.Background(), repo, ticketID, runsLimit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		ui.Info("No runs recorded for %s#%d", repo, ticketID)
		return nil
	}

	table := ui.Table([]string{"ID", "Workflow", "Started", "Duration", "Outcome", "Session"})
	for _, r := range runs {
		duration := "running"
		if r.FinishedAt != nil {
			duration = formatDuration(r.FinishedAt.Sub(r.StartedAt))
		}

		table.Append([]string{
			shortID(r.ID),
			r.Workflow,
			timeAgo(r.StartedAt),
			duration,
			output.StatusColor(string(r.Outcome)),
			r.SessionRef,
		})
	}
	table.Render()
	return nil
}
