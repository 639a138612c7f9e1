// Package reset implements the full-wipe handler a "reset" control label
// triggers: close out any PRs the item spawned, strip generated content
// and daemon labels, and return the item to Backlog.
package reset

import (
	"context"
	"log/slog"

	"github.com/exampleorg/boardrunner/internal/git"
	"github.com/exampleorg/boardrunner/internal/label"
	"github.com/exampleorg/boardrunner/internal/ticket"
)

// StatusBacklog is the status every reset item lands on.
const StatusBacklog = "Backlog"

// Controller runs the reset handler.
type Controller struct {
	Adapter ticket.Adapter
	GitHub  git.GitHubClient
	Logger  *slog.Logger
}

// New builds a Controller.
func New(adapter ticket.Adapter, gh git.GitHubClient, logger *slog.Logger) *Controller {
	return &Controller{Adapter: adapter, GitHub: gh, Logger: logger}
}

// Handle runs every reset step best-effort, logging and continuing past
// any single step's failure. It removes the reset label last so a partial
// failure re-enters the handler on the item's next poll.
func (c *Controller) Handle(ctx context.Context, item ticket.Item) error {
	host, ownerRepo := ticket.SplitRepo(item.Repo)

	c.closeLinkedPRs(ctx, host, ownerRepo, item)
	c.stripContentSections(ctx, item)
	c.stripKilnLabels(ctx, item)

	if err := c.Adapter.SetStatus(ctx, item.Repo, item.ID, StatusBacklog); err != nil {
		c.Logger.Warn("reset: set status to Backlog failed", "repo", item.Repo, "id", item.ID, "error", err)
	}

	return c.Adapter.RemoveLabel(ctx, item.Repo, item.ID, label.Reset)
}

func (c *Controller) closeLinkedPRs(ctx context.Context, host, ownerRepo string, item ticket.Item) {
	prs, err := c.GitHub.LinkedPRs(ctx, host, ownerRepo, item.ID)
	if err != nil {
		c.Logger.Warn("reset: list linked PRs failed", "repo", item.Repo, "id", item.ID, "error", err)
		return
	}
	for _, pr := range prs {
		if err := c.GitHub.ClosePR(ctx, host, ownerRepo, pr.Number); err != nil {
			c.Logger.Warn("reset: close PR failed", "repo", item.Repo, "pr", pr.Number, "error", err)
		}
		if pr.Branch == "" {
			continue
		}
		if err := c.GitHub.DeleteBranch(ctx, host, ownerRepo, pr.Branch); err != nil {
			c.Logger.Warn("reset: delete branch failed", "repo", item.Repo, "branch", pr.Branch, "error", err)
		}
	}
}

func (c *Controller) stripContentSections(ctx context.Context, item ticket.Item) {
	body, err := c.Adapter.GetBody(ctx, item.Repo, item.ID)
	if err != nil {
		c.Logger.Warn("reset: get body failed", "repo", item.Repo, "id", item.ID, "error", err)
		return
	}

	stripped := ticket.RemoveSection(body, ticket.SectionResearch)
	stripped = ticket.RemoveSection(stripped, ticket.SectionPlan)
	if stripped == body {
		return
	}
	if err := c.Adapter.UpdateBody(ctx, item.Repo, item.ID, stripped); err != nil {
		c.Logger.Warn("reset: update body failed", "repo", item.Repo, "id", item.ID, "error", err)
	}
}

func (c *Controller) stripKilnLabels(ctx context.Context, item ticket.Item) {
	for _, l := range label.AllKilnAuthored {
		if l == label.Reset || !item.HasLabel(l) {
			continue
		}
		if err := c.Adapter.RemoveLabel(ctx, item.Repo, item.ID, l); err != nil {
			c.Logger.Warn("reset: remove label failed", "repo", item.Repo, "id", item.ID, "label", l, "error", err)
		}
	}
}
