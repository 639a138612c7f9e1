package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLIExecutor runs each stage prompt as an argument to an external coding
// agent binary (`claude` by default), one process per prompt, in sequence.
// Context cancellation kills the whole process group rather than just the
// parent, matching the concurrency model's expectation that a cancelled
// workflow's subprocess stops immediately rather than lingering.
type CLIExecutor struct {
	Binary string // defaults to "claude"
}

// NewCLIExecutor returns a CLIExecutor invoking binary, or "claude" when
// binary is empty.
func NewCLIExecutor(binary string) *CLIExecutor {
	if binary == "" {
		binary = "claude"
	}
	return &CLIExecutor{Binary: binary}
}

func (e *CLIExecutor) Run(ctx context.Context, req StageRequest) (StageOutcome, error) {
	var lastOutput bytes.Buffer

	for _, prompt := range req.Prompts {
		cmd := exec.CommandContext(ctx, e.Binary, "-p", prompt)
		if req.WorkDir != "" {
			cmd.Dir = req.WorkDir
		}
		setProcessGroup(cmd)

		out, err := cmd.CombinedOutput()
		lastOutput.Write(out)

		if ctx.Err() != nil {
			return StageOutcome{Status: StatusCancelled, Output: lastOutput.String()}, nil
		}
		if err != nil {
			return StageOutcome{
				Status: StatusFailure,
				Output: lastOutput.String(),
				Err:    fmt.Errorf("%s %s: %w", e.Binary, strings.TrimSpace(prompt), err),
			}, nil
		}
	}

	return StageOutcome{Status: StatusSuccess, Output: lastOutput.String()}, nil
}
