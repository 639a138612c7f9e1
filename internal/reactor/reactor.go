// Package reactor implements the comment-iteration handler TriggerPolicy
// rule 6 dispatches: it turns a new actionable comment into a scoped Edit
// workflow run under the editing running label.
package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/exampleorg/boardrunner/internal/authz"
	"github.com/exampleorg/boardrunner/internal/executor"
	"github.com/exampleorg/boardrunner/internal/label"
	"github.com/exampleorg/boardrunner/internal/raceguard"
	"github.com/exampleorg/boardrunner/internal/runner"
	"github.com/exampleorg/boardrunner/internal/store"
	"github.com/exampleorg/boardrunner/internal/ticket"
	"github.com/exampleorg/boardrunner/internal/workflow"
)

// Reactor dispatches the edit workflow for the oldest actionable comment
// on an item, one comment per poll cycle.
type Reactor struct {
	Adapter ticket.Adapter
	Guard   *raceguard.Guard
	Authz   authz.Policy
	Store   store.Store
	Logger  *slog.Logger
}

// New builds a Reactor.
func New(adapter ticket.Adapter, guard *raceguard.Guard, policy authz.Policy, st store.Store, logger *slog.Logger) *Reactor {
	return &Reactor{Adapter: adapter, Guard: guard, Authz: policy, Store: st, Logger: logger}
}

// stageTarget maps the stage a ready label names to the body section an
// edit workflow should operate on.
func stageTarget(stage label.Stage) string {
	switch stage {
	case label.StageResearch:
		return "research"
	case label.StagePlan:
		return "plan"
	default:
		return "description"
	}
}

// Dispatch fetches comments newer than the stored cursor for item, picks
// the oldest one from an allowed actor, and — if the editing running label
// can be claimed — runs an Edit workflow against it through pool. It
// returns false without side effects when comment iteration is disabled
// for stage (Implement), there is nothing actionable, or another instance
// already owns the editing label.
func (r *Reactor) Dispatch(ctx context.Context, item ticket.Item, stage label.Stage, pool *runner.Pool, exec executor.Executor) (bool, error) {
	if stage == label.StageImplement {
		return false, nil
	}

	state, err := r.Store.GetIssueState(ctx, item.Repo, item.ID)
	if err != nil {
		return false, fmt.Errorf("reactor: get issue state: %w", err)
	}
	var since *time.Time
	if state != nil {
		since = state.LastCommentAt
	}

	comments, err := r.Adapter.ListCommentsSince(ctx, item.Repo, item.ID, since)
	if err != nil {
		return false, fmt.Errorf("reactor: list comments: %w", err)
	}

	contextKey := fmt.Sprintf("%s#%d", item.Repo, item.ID)
	var actionable *ticket.Comment
	for i := range comments {
		c := comments[i]
		if r.Authz.CheckActorAllowed(r.Logger, c.Author, contextKey, "comment") {
			actionable = &c
			break
		}
	}
	if actionable == nil {
		return false, nil
	}

	runningLabel, _ := label.RunningLabel(label.StageEdit)
	claimOutcome, err := r.Guard.Claim(ctx, item.Repo, item.ID, runningLabel, item.Labels)
	if err != nil {
		return false, fmt.Errorf("reactor: claim editing label: %w", err)
	}
	if claimOutcome != raceguard.Claimed {
		return false, nil
	}

	if err := r.Adapter.SetReaction(ctx, item.Repo, actionable.ID, ticket.ReactionEyes); err != nil {
		r.Logger.Warn("reactor: set eyes reaction failed", "repo", item.Repo, "id", item.ID, "error", err)
	}

	promptCtx := workflow.Context{
		Repo:          item.Repo,
		TicketID:      item.ID,
		CommentBody:   actionable.Body,
		TargetSection: stageTarget(stage),
	}
	commentID := actionable.ID
	commentCreatedAt := actionable.CreatedAt

	key := runner.RunKey{Repo: item.Repo, TicketID: item.ID}
	dispatched := pool.TryDispatch(ctx, key, label.StageEdit, func(workCtx context.Context) runner.Outcome {
		out, runErr := exec.Run(workCtx, executor.StageRequest{
			Stage:   label.StageEdit,
			Prompts: []string{workflow.ProcessCommentPrompt(promptCtx)},
		})
		if runErr != nil {
			r.Logger.Warn("reactor: edit workflow errored", "repo", item.Repo, "id", item.ID, "error", runErr)
			return runner.Failure
		}
		switch out.Status {
		case executor.StatusSuccess:
			return runner.Success
		case executor.StatusCancelled:
			return runner.Cancelled
		default:
			return runner.Failure
		}
	}, func(_ runner.RunRecord, outcome runner.Outcome) {
		r.onTerminate(item, runningLabel, outcome, commentID, commentCreatedAt)
	})

	if !dispatched {
		// Lost the dispatch race against the pool's own capacity/key
		// check after already claiming the label — release immediately
		// so the label doesn't strand the item in "editing".
		if relErr := r.Guard.Release(ctx, item.Repo, item.ID, runningLabel, raceguard.Cancelled, "", ""); relErr != nil {
			r.Logger.Warn("reactor: release after failed dispatch failed", "repo", item.Repo, "id", item.ID, "error", relErr)
		}
	}
	return dispatched, nil
}

func (r *Reactor) onTerminate(item ticket.Item, runningLabel string, outcome runner.Outcome, commentID string, commentCreatedAt time.Time) {
	ctx := context.Background()

	releaseOutcome := raceguard.Success
	switch outcome {
	case runner.Failure:
		releaseOutcome = raceguard.Failure
	case runner.Cancelled:
		releaseOutcome = raceguard.Cancelled
	}
	if err := r.Guard.Release(ctx, item.Repo, item.ID, runningLabel, releaseOutcome, "", ""); err != nil {
		r.Logger.Warn("reactor: release editing label failed", "repo", item.Repo, "id", item.ID, "error", err)
	}

	if outcome != runner.Success {
		// Cursor stays put so the same comment is retried next cycle; the
		// eyes reaction is left in place as a harmless stale marker since
		// the adapter has no reaction-removal primitive.
		return
	}

	if err := r.Adapter.SetReaction(ctx, item.Repo, commentID, ticket.ReactionThumbsUp); err != nil {
		r.Logger.Warn("reactor: set thumbsup reaction failed", "repo", item.Repo, "id", item.ID, "error", err)
	}
	ts := commentCreatedAt
	if err := r.Store.TouchIssueState(ctx, item.Repo, item.ID, &ts); err != nil {
		r.Logger.Warn("reactor: advance comment cursor failed", "repo", item.Repo, "id", item.ID, "error", err)
	}
}
