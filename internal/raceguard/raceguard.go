// Package raceguard implements the label-claim protocol that keeps two
// daemon instances from running the same workflow stage on the same
// item. The ticket platform linearizes concurrent writes but a label
// add is not itself atomic with authorship, so the guard re-reads who
// actually authored the write before trusting its own claim.
package raceguard

import (
	"context"
	"fmt"

	"github.com/exampleorg/boardrunner/internal/ticket"
)

// Outcome is the result of a claim attempt.
type Outcome int

const (
	// Claimed means this identity now owns the running label and the
	// caller should proceed to dispatch.
	Claimed Outcome = iota
	// AlreadyRunning means the running label was already present before
	// this call even tried to add it — another instance owns it.
	AlreadyRunning
	// LostRace means this call added the label, but a re-read of
	// authorship shows a different identity actually wrote it first.
	// Whoever wrote it owns the claim; this call must not remove it.
	LostRace
)

// Guard claims and releases running labels on behalf of a single
// configured identity.
type Guard struct {
	Adapter  ticket.Adapter
	Identity string // this daemon instance's configured write identity
}

// New returns a Guard that claims labels as identity.
func New(adapter ticket.Adapter, identity string) *Guard {
	return &Guard{Adapter: adapter, Identity: identity}
}

// Claim attempts to start stage S (represented here directly by its
// running label) on item (repo, id), following the protocol:
//  1. Check the item's labels as read this poll cycle (currentLabels —
//     the caller's fresh snapshot; the adapter exposes no cheaper
//     per-item label read than the poll itself).
//  2. If the label is already present, abort — someone else owns it.
//  3. Add the label (idempotent at the ticket system).
//  4. Re-read authorship; if it is not this identity, the competing add
//     won; abort without removing the label.
//  5. Otherwise the claim succeeds.
//
// Step 2 is only a cheap pre-check; step 4 is what actually guarantees
// at-most-one claim when two instances add the label back-to-back
// between each other's reads.
func (g *Guard) Claim(ctx context.Context, repo string, id int, runningLabel string, currentLabels []string) (Outcome, error) {
	for _, l := range currentLabels {
		if l == runningLabel {
			return AlreadyRunning, nil
		}
	}

	if err := g.Adapter.AddLabel(ctx, repo, id, runningLabel); err != nil {
		return 0, fmt.Errorf("add running label %s: %w", runningLabel, err)
	}

	actor, err := g.Adapter.LastLabelActor(ctx, repo, id, runningLabel)
	if err != nil {
		return 0, fmt.Errorf("read label authorship: %w", err)
	}
	if actor != g.Identity {
		return LostRace, nil
	}
	return Claimed, nil
}

// ReleaseOutcome describes how a workflow terminated, driving which
// labels Release applies.
type ReleaseOutcome int

const (
	// Success: the workflow produced its intended output.
	Success ReleaseOutcome = iota
	// Failure: the workflow ran to completion but did not succeed.
	Failure
	// Cancelled: the workflow was stopped before it could finish.
	Cancelled
)

// Release removes the running label and, depending on outcome, adds the
// ready or failure label. The running-label removal is the single
// commit point and comes last: if adding the ready or failure label
// fails, Release returns that error and leaves the running label on.
func (g *Guard) Release(ctx context.Context, repo string, id int, runningLabel string, outcome ReleaseOutcome, onSuccessLabel, onFailureLabel string) error {
	switch outcome {
	case Success:
		if onSuccessLabel != "" {
			if err := g.Adapter.AddLabel(ctx, repo, id, onSuccessLabel); err != nil {
				return fmt.Errorf("add ready label %s: %w", onSuccessLabel, err)
			}
		}
	case Failure:
		if onFailureLabel != "" {
			if err := g.Adapter.AddLabel(ctx, repo, id, onFailureLabel); err != nil {
				return fmt.Errorf("add failure label %s: %w", onFailureLabel, err)
			}
		}
	case Cancelled:
		// No additional label; only the running label comes off below.
	}

	if err := g.Adapter.RemoveLabel(ctx, repo, id, runningLabel); err != nil {
		return fmt.Errorf("remove running label %s: %w", runningLabel, err)
	}
	return nil
}
