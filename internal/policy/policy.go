// Package policy implements the pure decision function that turns a
// polled board item into the one action the daemon should take this
// cycle. It holds no state and performs no I/O: every input it needs is
// passed in by the caller, and its output is a Decision for the caller
// to execute.
package policy

import (
	"github.com/exampleorg/boardrunner/internal/label"
	"github.com/exampleorg/boardrunner/internal/ticket"
)

// Kind enumerates the actions Evaluate can decide on.
type Kind int

const (
	// None means do nothing this cycle.
	None Kind = iota
	// Reset means a reset label is present; hand off to the reset handler.
	Reset
	// Cleanup means the item reached Done (or closed); release resources.
	Cleanup
	// RecoverStaleLabel means a running label is present with no local
	// run backing it; schedule its removal.
	RecoverStaleLabel
	// RunWorkflow means start Stage under its running label.
	RunWorkflow
	// Advance means transition the item to the next status (yolo).
	Advance
	// IterateComment means respond to a new actionable comment.
	IterateComment
	// StripRunningLabels means the item carries more than one running
	// label at once; remove them all and start over.
	StripRunningLabels
)

// Decision is the result of Evaluate. Only the fields relevant to Kind
// are populated; the rest are zero values.
type Decision struct {
	Kind          Kind
	Stage         label.Stage // RunWorkflow
	RunningLabel  string      // RecoverStaleLabel
	RunningLabels []string    // StripRunningLabels
	NextStatus    string      // Advance
}

// Input bundles everything Evaluate needs about one item, pre-resolved
// by the caller so this function can stay pure. StatusToStage maps a
// watched status name onto the stage it triggers (config-driven,
// defaulting to Research/Plan/Implement). StatusOrder lists every
// status in pipeline order, used to compute the Advance target.
type Input struct {
	Item           ticket.Item
	StatusToStage  map[string]label.Stage
	StatusOrder    []string
	HasLocalRun    bool // RunnerPool has an active run for this item
	HasNewComments bool // comments exist strictly after the stored cursor
}

// Evaluate applies the trigger rules in order and returns the first
// match. Rule numbering matches the component's governing rule set;
// later rules are unreachable once an earlier one matches.
func Evaluate(in Input) Decision {
	item := in.Item

	// Rule 1: reset takes priority over everything else.
	if label.Has(item.Labels, label.Reset) {
		return Decision{Kind: Reset}
	}

	// Rule 2: terminal state.
	if !item.Open || item.Status == StatusDone {
		return Decision{Kind: Cleanup}
	}

	// Rule 3: a running label already claims this item. Whether that
	// claim is live or stale, no other rule gets to fire this cycle.
	// Two running labels at once should be impossible; when it happens
	// anyway, strip them all rather than guess which one is real.
	if running := label.RunningAmong(item.Labels); len(running) > 0 {
		if len(running) > 1 {
			return Decision{Kind: StripRunningLabels, RunningLabels: running}
		}
		if !in.HasLocalRun {
			return Decision{Kind: RecoverStaleLabel, RunningLabel: running[0]}
		}
		return Decision{Kind: None}
	}

	stage, watched := in.StatusToStage[item.Status]
	readyLabel, hasReady := label.ReadyLabel(stage)

	// Rule 4: enter a watched stage fresh.
	if watched {
		if !hasReady || !label.Has(item.Labels, readyLabel) {
			return Decision{Kind: RunWorkflow, Stage: stage}
		}
	}

	// Rule 5: yolo past a ready stage.
	if hasReady && label.Has(item.Labels, readyLabel) && label.Has(item.Labels, label.Yolo) {
		if next, ok := nextStatus(item.Status, in.StatusOrder); ok {
			return Decision{Kind: Advance, NextStatus: next}
		}
		return Decision{Kind: None}
	}

	// Rule 6: react to conversation on a stage that produces a ready
	// label (Research, Plan) — Implement has none, so comment iteration
	// is never triggered while a PR-stage workflow owns the item.
	if hasReady && in.HasNewComments {
		return Decision{Kind: IterateComment}
	}

	// Rule 7.
	return Decision{Kind: None}
}

// StatusDone is the terminal status name; an item reaching it is
// archived and released regardless of any label other than reset,
// which Rule 1 handles first.
const StatusDone = "Done"

func nextStatus(current string, order []string) (string, bool) {
	for i, s := range order {
		if s == current && i+1 < len(order) {
			return order[i+1], true
		}
	}
	return "", false
}
