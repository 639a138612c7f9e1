// Package executor runs a stage's prompts against a coding agent and
// reports whether the stage completed, failed, or was cancelled. Two
// implementations exist: one drives the external `claude` CLI as a
// subprocess, the other calls the Anthropic API directly for
// single-prompt stages.
package executor

import (
	"context"

	"github.com/exampleorg/boardrunner/internal/label"
)

// StageRequest is everything an Executor needs to run one stage.
type StageRequest struct {
	Stage   label.Stage
	Prompts []string
	WorkDir string // CLIExecutor only: directory the subprocess runs in
	Model   string // APIExecutor only: overrides the default model when set
}

// Status is the terminal state of a stage run.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusCancelled
)

// StageOutcome is what the executor reports back to the caller.
type StageOutcome struct {
	Status     Status
	SessionRef string // CLIExecutor leaves it empty; APIExecutor: the response message id
	Output     string
	Err        error
}

// Executor runs a stage to completion or until ctx is cancelled.
type Executor interface {
	Run(ctx context.Context, req StageRequest) (StageOutcome, error)
}
