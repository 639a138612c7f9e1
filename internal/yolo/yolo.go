// Package yolo implements the auto-advance handler TriggerPolicy's
// Advance decision drives: moving an item to its next status once the
// operator has opted it into unattended progression.
package yolo

import (
	"context"
	"log/slog"

	"github.com/exampleorg/boardrunner/internal/label"
	"github.com/exampleorg/boardrunner/internal/ticket"
)

// FailureLabel is added when the adapter rejects the status transition.
const FailureLabel = label.YoloFailed

// Controller advances an item's status on behalf of the yolo label.
type Controller struct {
	Adapter ticket.Adapter
	Logger  *slog.Logger
}

// New builds a Controller.
func New(adapter ticket.Adapter, logger *slog.Logger) *Controller {
	return &Controller{Adapter: adapter, Logger: logger}
}

// Advance transitions item to nextStatus. It never claims a running
// label — the stage dispatch for nextStatus happens on a later poll
// cycle, through the ordinary RunWorkflow path.
func (c *Controller) Advance(ctx context.Context, item ticket.Item, nextStatus string) error {
	if err := c.Adapter.SetStatus(ctx, item.Repo, item.ID, nextStatus); err != nil {
		c.Logger.Warn("yolo: status transition failed", "repo", item.Repo, "id", item.ID, "to", nextStatus, "error", err)
		if labelErr := c.Adapter.AddLabel(ctx, item.Repo, item.ID, FailureLabel); labelErr != nil {
			c.Logger.Warn("yolo: add yolo_failed label failed", "repo", item.Repo, "id", item.ID, "error", labelErr)
		}
		return err
	}
	return nil
}
