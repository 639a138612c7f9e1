// Package poller implements the top-level daemon loop: for every
// configured board it lists items, runs each one through TriggerPolicy,
// and dispatches the resulting action, then sleeps an interruptible,
// backoff-governed interval before the next cycle.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/exampleorg/boardrunner/internal/authz"
	"github.com/exampleorg/boardrunner/internal/backoff"
	"github.com/exampleorg/boardrunner/internal/childcheck"
	"github.com/exampleorg/boardrunner/internal/config"
	"github.com/exampleorg/boardrunner/internal/executor"
	"github.com/exampleorg/boardrunner/internal/hibernation"
	"github.com/exampleorg/boardrunner/internal/label"
	"github.com/exampleorg/boardrunner/internal/models"
	"github.com/exampleorg/boardrunner/internal/policy"
	"github.com/exampleorg/boardrunner/internal/raceguard"
	"github.com/exampleorg/boardrunner/internal/reactor"
	"github.com/exampleorg/boardrunner/internal/reset"
	"github.com/exampleorg/boardrunner/internal/runner"
	"github.com/exampleorg/boardrunner/internal/store"
	"github.com/exampleorg/boardrunner/internal/ticket"
	"github.com/exampleorg/boardrunner/internal/workflow"
	"github.com/exampleorg/boardrunner/internal/yolo"
)

// stageByStatus maps the canonical watched status names to the stage
// they trigger. Only these three statuses ever enter Rule 4.
var stageByStatus = map[string]label.Stage{
	"Research":  label.StageResearch,
	"Plan":      label.StagePlan,
	"Implement": label.StageImplement,
}

// pipelineOrder is the full status sequence yolo advances through.
var pipelineOrder = []string{"Backlog", "Research", "Plan", "Implement", "Done"}

// Poller is the daemon's main unit: one RunCycle call processes every
// configured board once; Run wraps that in the interruptible
// sleep/cancellation loop.
type Poller struct {
	Adapter     ticket.Adapter
	Store       store.Store
	Guard       *raceguard.Guard
	Authz       authz.Policy
	Pool        *runner.Pool
	Backoff     *backoff.Controller
	Hibernation *hibernation.Control
	Reactor     *reactor.Reactor
	Yolo        *yolo.Controller
	Reset       *reset.Controller
	CLIExecutor *executor.CLIExecutor
	APIExecutor *executor.APIExecutor
	ChildCheck  *childcheck.Checker
	Config      config.Config
	Logger      *slog.Logger
}

// New wires a Poller from its component parts. Callers (cmd/run.go)
// construct each dependency per the config surface and pass them here;
// the Poller itself performs no dependency construction of its own.
func New(
	adapter ticket.Adapter,
	st store.Store,
	guard *raceguard.Guard,
	authzPolicy authz.Policy,
	pool *runner.Pool,
	backoffCtrl *backoff.Controller,
	hibernationCtrl *hibernation.Control,
	reactorCtrl *reactor.Reactor,
	yoloCtrl *yolo.Controller,
	resetCtrl *reset.Controller,
	cliExec *executor.CLIExecutor,
	apiExec *executor.APIExecutor,
	childCheck *childcheck.Checker,
	cfg config.Config,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		Adapter:     adapter,
		Store:       st,
		Guard:       guard,
		Authz:       authzPolicy,
		Pool:        pool,
		Backoff:     backoffCtrl,
		Hibernation: hibernationCtrl,
		Reactor:     reactorCtrl,
		Yolo:        yoloCtrl,
		Reset:       resetCtrl,
		CLIExecutor: cliExec,
		APIExecutor: apiExec,
		ChildCheck:  childCheck,
		Config:      cfg,
		Logger:      logger,
	}
}

// Run loops until ctx is cancelled, honoring hibernation and the
// interruptible backoff sleep. On cancellation it stops dispatching,
// waits for every in-flight workflow to exit, and returns nil; a
// non-nil error is returned only on a fatal configuration/authorization
// failure or when the board list cannot be read from the store.
func (p *Poller) Run(ctx context.Context) error {
	defer p.drain()
	for {
		if ctx.Err() != nil {
			return nil
		}

		if p.Hibernation.Hibernating() {
			resumed := p.Hibernation.Probe(ctx, p.probeReachable)
			if !resumed {
				if !sleepInterruptible(ctx, p.Hibernation.ProbeInterval) {
					return nil
				}
				continue
			}
			// Resuming clears the failure streak.
			p.Backoff.OnCycleOutcome(true)
		}

		boards, err := p.Store.ListBoards(ctx)
		if err != nil {
			return fmt.Errorf("poller: list boards: %w", err)
		}

		success, err := p.RunCycle(ctx, boards)
		if err != nil {
			return err
		}

		sleep := p.Backoff.OnCycleOutcome(success)
		if !sleepInterruptible(ctx, sleep) {
			return nil
		}
	}
}

// drain blocks until every in-flight workflow has terminated. Their
// contexts descend from Run's: after a cancellation they have already
// been signalled, and the wait is bounded only by the workflows'
// cooperation; after a fatal error they are not, and the wait lasts
// until the workflows finish on their own.
func (p *Poller) drain() {
	if p.Pool.Size() > 0 {
		p.Logger.Info("poller: waiting for in-flight workflows to finish")
	}
	p.Pool.Wait()
}

// probeReachable is the Prober HibernationControl uses to test whether
// the platform has come back: a cheap, read-only label list against the
// first configured board.
func (p *Poller) probeReachable(ctx context.Context) error {
	boards, err := p.Store.ListBoards(ctx)
	if err != nil {
		return err
	}
	if len(boards) == 0 {
		return nil
	}
	_, err = p.Adapter.ListLabels(ctx, boards[0].Repo)
	return err
}

// RunCycle processes every board once in order, returning whether the
// cycle as a whole succeeded (for BackoffController) and a non-nil
// error only when a board reported a fatal configuration/authorization
// failure.
func (p *Poller) RunCycle(ctx context.Context, boards []*models.Board) (bool, error) {
	cycleOK := true

	for _, board := range boards {
		items, err := p.Adapter.ListItems(ctx, board.Repo)
		if err != nil {
			switch ticket.ClassOf(err) {
			case ticket.ErrClassConfiguration, ticket.ErrClassAuthorization:
				return false, fmt.Errorf("poller: board %s: %w", board.Repo, err)
			case ticket.ErrClassPlatformUnreachable:
				p.Hibernation.Enter()
				p.Logger.Warn("poller: platform unreachable, entering hibernation", "board", board.Repo, "error", err)
			default:
				p.Logger.Warn("poller: list items failed, skipping board this cycle", "board", board.Repo, "error", err)
			}
			cycleOK = false
			continue
		}

		statusToStage := watchedStages(board, p.Config)
		for _, item := range items {
			if err := p.handleItem(ctx, board, item, statusToStage); err != nil {
				p.Logger.Warn("poller: handle item failed", "repo", item.Repo, "id", item.ID, "error", err)
				cycleOK = false
			}
		}
	}

	for _, key := range p.Pool.SweepStale(p.Config.StaleThreshold) {
		p.Logger.Warn("poller: run exceeded stale threshold, cancelled", "repo", key.Repo, "id", key.TicketID)
	}

	return cycleOK, nil
}

func watchedStages(board *models.Board, cfg config.Config) map[string]label.Stage {
	watched := board.WatchedStatuses
	if len(watched) == 0 {
		watched = cfg.WatchedStatuses
	}
	out := make(map[string]label.Stage, len(watched))
	for _, s := range watched {
		if stage, ok := stageByStatus[s]; ok {
			out[s] = stage
		}
	}
	return out
}

func (p *Poller) handleItem(ctx context.Context, board *models.Board, item ticket.Item, statusToStage map[string]label.Stage) error {
	hasNewComments, err := p.hasNewComments(ctx, item)
	if err != nil {
		return fmt.Errorf("check new comments: %w", err)
	}

	key := runner.RunKey{Repo: item.Repo, TicketID: item.ID}
	decision := policy.Evaluate(policy.Input{
		Item:           item,
		StatusToStage:  statusToStage,
		StatusOrder:    pipelineOrder,
		HasLocalRun:    p.Pool.HasActiveRun(key),
		HasNewComments: hasNewComments,
	})

	switch decision.Kind {
	case policy.None:
		return nil

	case policy.Reset:
		return p.Reset.Handle(ctx, item)

	case policy.Cleanup:
		return p.handleCleanup(ctx, board, item)

	case policy.RecoverStaleLabel:
		return p.recoverStaleLabel(ctx, item, decision.RunningLabel)

	case policy.StripRunningLabels:
		p.Logger.Error("poller: multiple running labels on one item, stripping all", "repo", item.Repo, "id", item.ID, "labels", decision.RunningLabels)
		for _, l := range decision.RunningLabels {
			if err := p.Adapter.RemoveLabel(ctx, item.Repo, item.ID, l); err != nil {
				return fmt.Errorf("strip running label %s: %w", l, err)
			}
		}
		return nil

	case policy.RunWorkflow:
		allowed, err := p.statusActorAllowed(ctx, item)
		if err != nil {
			return fmt.Errorf("check status actor: %w", err)
		}
		if !allowed {
			return nil
		}
		return p.dispatchWorkflow(ctx, board, item, decision.Stage)

	case policy.Advance:
		return p.Yolo.Advance(ctx, item, decision.NextStatus)

	case policy.IterateComment:
		stage := statusToStage[item.Status]
		editExec := executor.Select(label.StageEdit, p.CLIExecutor, p.APIExecutor)
		_, err := p.Reactor.Dispatch(ctx, item, stage, p.Pool, editExec)
		return err

	default:
		return nil
	}
}

func (p *Poller) hasNewComments(ctx context.Context, item ticket.Item) (bool, error) {
	state, err := p.Store.GetIssueState(ctx, item.Repo, item.ID)
	if err != nil {
		return false, err
	}
	var since *time.Time
	if state != nil {
		since = state.LastCommentAt
	}
	comments, err := p.Adapter.ListCommentsSince(ctx, item.Repo, item.ID, since)
	if err != nil {
		return false, err
	}
	return len(comments) > 0, nil
}

func (p *Poller) statusActorAllowed(ctx context.Context, item ticket.Item) (bool, error) {
	actor, err := p.Adapter.LastStatusActor(ctx, item.Repo, item.ID)
	if err != nil {
		return false, err
	}
	contextKey := fmt.Sprintf("%s#%d", item.Repo, item.ID)
	return p.Authz.CheckActorAllowed(p.Logger, actor, contextKey, "status change"), nil
}

func (p *Poller) handleCleanup(ctx context.Context, board *models.Board, item ticket.Item) error {
	if item.HasLabel(label.CleanedUp) {
		return nil
	}
	if _, err := p.Adapter.Archive(ctx, board.ID, item.ID); err != nil {
		p.Logger.Warn("poller: archive failed", "repo", item.Repo, "id", item.ID, "error", err)
	}
	return p.Adapter.AddLabel(ctx, item.Repo, item.ID, label.CleanedUp)
}

// recoverStaleLabel strips a running label left behind with no local
// RunRecord, but only when the last actor to touch it was this daemon
// itself — a live peer instance's claim is left untouched.
func (p *Poller) recoverStaleLabel(ctx context.Context, item ticket.Item, runningLabel string) error {
	actor, err := p.Adapter.LastLabelActor(ctx, item.Repo, item.ID, runningLabel)
	if err != nil {
		return fmt.Errorf("read stale label authorship: %w", err)
	}
	if actor != "" && actor != p.Config.DaemonUsername {
		return nil
	}
	p.Logger.Warn("poller: stripping stale running label", "repo", item.Repo, "id", item.ID, "label", runningLabel)
	return p.Adapter.RemoveLabel(ctx, item.Repo, item.ID, runningLabel)
}

func (p *Poller) dispatchWorkflow(ctx context.Context, board *models.Board, item ticket.Item, stage label.Stage) error {
	runningLabel, ok := label.RunningLabel(stage)
	if !ok {
		return fmt.Errorf("stage %q has no running label", stage)
	}

	claimOutcome, err := p.Guard.Claim(ctx, item.Repo, item.ID, runningLabel, item.Labels)
	if err != nil {
		return fmt.Errorf("claim %s label: %w", runningLabel, err)
	}
	if claimOutcome != raceguard.Claimed {
		if claimOutcome == raceguard.LostRace {
			p.Logger.Debug("poller: lost claim race", "repo", item.Repo, "id", item.ID, "stage", stage)
		}
		return nil
	}

	prompts, err := workflow.Prompts(stage, workflow.Context{
		Repo:            item.Repo,
		TicketID:        item.ID,
		AllowedUsername: p.Config.AllowedUsername,
		ProjectURL:      board.ProjectURL,
	})
	if err != nil {
		if relErr := p.Guard.Release(ctx, item.Repo, item.ID, runningLabel, raceguard.Cancelled, "", ""); relErr != nil {
			p.Logger.Warn("poller: release after prompt build failure failed", "repo", item.Repo, "id", item.ID, "error", relErr)
		}
		return fmt.Errorf("build prompts for %s: %w", stage, err)
	}

	req := executor.StageRequest{Stage: stage, Prompts: prompts}
	if model, ok := p.Config.StageModels[string(stage)]; ok {
		req.Model = model
	}
	exec := executor.Select(stage, p.CLIExecutor, p.APIExecutor)

	readyLabel, _ := label.ReadyLabel(stage)
	failureLabel, _ := label.FailureLabel(stage)

	run := &models.RunHistory{Repo: item.Repo, TicketID: item.ID, Workflow: string(stage)}
	if err := p.Store.CreateRunHistory(ctx, run); err != nil {
		p.Logger.Warn("poller: create run history failed", "repo", item.Repo, "id", item.ID, "error", err)
	}

	key := runner.RunKey{Repo: item.Repo, TicketID: item.ID}
	dispatched := p.Pool.TryDispatch(ctx, key, stage, func(workCtx context.Context) runner.Outcome {
		out, runErr := exec.Run(workCtx, req)
		if runErr != nil {
			p.Logger.Warn("poller: workflow errored", "repo", item.Repo, "id", item.ID, "stage", stage, "error", runErr)
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
		p.onWorkflowTerminate(item, stage, runningLabel, readyLabel, failureLabel, run.ID, outcome)
	})

	if !dispatched {
		if relErr := p.Guard.Release(ctx, item.Repo, item.ID, runningLabel, raceguard.Cancelled, "", ""); relErr != nil {
			p.Logger.Warn("poller: release after failed dispatch failed", "repo", item.Repo, "id", item.ID, "error", relErr)
		}
	}
	return nil
}

func (p *Poller) onWorkflowTerminate(item ticket.Item, stage label.Stage, runningLabel, readyLabel, failureLabel, runID string, outcome runner.Outcome) {
	ctx := context.Background()

	releaseOutcome := raceguard.Success
	runOutcome := models.OutcomeSuccess
	switch outcome {
	case runner.Failure:
		releaseOutcome = raceguard.Failure
		runOutcome = models.OutcomeFailure
	case runner.Cancelled:
		releaseOutcome = raceguard.Cancelled
		runOutcome = models.OutcomeCancelled
	}

	if err := p.Guard.Release(ctx, item.Repo, item.ID, runningLabel, releaseOutcome, readyLabel, failureLabel); err != nil {
		p.Logger.Warn("poller: release running label failed", "repo", item.Repo, "id", item.ID, "stage", stage, "error", err)
	}

	if runID != "" {
		if err := p.Store.FinishRunHistory(ctx, runID, time.Now(), runOutcome, ""); err != nil {
			p.Logger.Warn("poller: finish run history failed", "repo", item.Repo, "id", item.ID, "error", err)
		}
	}

	if stage == label.StageImplement && outcome == runner.Success && p.ChildCheck != nil {
		if err := p.ChildCheck.UpdateParentPRStatus(ctx, item.Repo, item.ID); err != nil {
			p.Logger.Warn("poller: update parent PR child-issue status failed", "repo", item.Repo, "id", item.ID, "error", err)
		}
	}
}

func sleepInterruptible(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
