package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exampleorg/boardrunner/internal/models"
	"github.com/exampleorg/boardrunner/internal/output"
	"github.com/exampleorg/boardrunner/internal/store"
	"github.com/exampleorg/boardrunner/internal/ticket"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a cross-board status overview",
	Long:  "Show every configured board's item counts and recent run success rate.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusOverviewRun()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusOverviewRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	boards, err := s.ListBoards(ctx)
	if err != nil {
		return err
	}

	if len(boards) == 0 {
		ui.Info("No boards configured. Use 'boardrunner board add <repo>' to get started.")
		return nil
	}

	adapter := ticket.NewGitHubAdapter()
	table := ui.Table([]string{"Repo", "Open Items", "By Status", "Run Success", "Health"})

	for _, b := range boards {
		items, err := adapter.ListItems(ctx, b.Repo)
		if err != nil {
			ui.Warning("%s: failed to list items: %v", b.Repo, err)
			continue
		}

		byStatus := make(map[string]int)
		for _, it := range items {
			byStatus[it.Status]++
		}

		successes, failures := tallyRecentOutcomes(ctx, s, b.Repo, items)
		successRate := "n/a"
		healthCol := "-"
		if successes+failures > 0 {
			pct := successes * 100 / (successes + failures)
			successRate = fmt.Sprintf("%d%%", pct)
			healthCol = output.HealthColor(pct)
		}

		table.Append([]string{
			output.Cyan(b.Repo),
			fmt.Sprintf("%d", len(items)),
			formatStatusCounts(byStatus),
			successRate,
			healthCol,
		})
	}

	table.Render()
	return nil
}

// tallyRecentOutcomes sums success/failure outcomes from the last five
// runs of every open item on a board, giving a bounded-cost signal of
// how well the daemon's recent dispatches on this board have gone.
func tallyRecentOutcomes(ctx context.Context, s store.Store, repo string, items []ticket.Item) (successes, failures int) {
	for _, it := range items {
		runs, err := s.ListRunHistory(ctx, repo, it.ID, 5)
		if err != nil {
			continue
		}
		for _, r := range runs {
			switch r.Outcome {
			case models.OutcomeSuccess:
				successes++
			case models.OutcomeFailure:
				failures++
			}
		}
	}
	return successes, failures
}

func formatStatusCounts(byStatus map[string]int) string {
	if len(byStatus) == 0 {
		return "-"
	}
	result := ""
	for status, count := range byStatus {
		if result != "" {
			result += ", "
		}
		result += fmt.Sprintf("%s:%d", status, count)
	}
	return result
}
