// Package setup runs the preflight checks boardrunner performs before
// starting the Poller: required CLI tools are on PATH, and the daemon
// isn't about to run somewhere that would make a stray label/branch
// cleanup dangerous to undo.
package setup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Error is raised when a preflight check fails, carrying every problem
// found rather than stopping at the first one.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return strings.Join(e.Problems, "\n")
}

// Options controls which checks Run performs.
type Options struct {
	// CheckTools verifies gh and the configured coding-agent CLI are on
	// PATH and runnable.
	CheckTools bool
	// CLIBinary overrides the coding-agent binary name checked when
	// CheckTools is set; defaults to "claude".
	CLIBinary string
	// WorkingDir overrides the directory checked by ValidateWorkingDir;
	// defaults to the process's current directory.
	WorkingDir string
}

// Run performs every check Options enables, returning an *Error
// collecting every failure found.
func Run(opts Options) error {
	var problems []string

	if err := ValidateWorkingDir(opts.WorkingDir); err != nil {
		problems = append(problems, err.Error())
	}

	if opts.CheckTools {
		if err := CheckRequiredTools(opts.CLIBinary); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

// IsRestrictedDir reports whether dir is the filesystem root, a users
// directory (/home, /Users) or a directory directly under one, or the
// caller's home directory — places
// boardrunner should never run from, since a Reset or Implement run can
// rewrite issue bodies and branches under whatever directory it's given.
func IsRestrictedDir(dir string) bool {
	resolved, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	resolved = filepath.Clean(resolved)

	if resolved == "/" {
		return true
	}

	parts := strings.Split(resolved, string(filepath.Separator))
	if (len(parts) == 2 || len(parts) == 3) && parts[0] == "" && (parts[1] == "home" || parts[1] == "Users") {
		return true
	}

	if home, err := os.UserHomeDir(); err == nil && resolved == filepath.Clean(home) {
		return true
	}
	return false
}

// ValidateWorkingDir returns an error naming dir (or the current
// directory, when dir is empty) if it is a restricted location.
func ValidateWorkingDir(dir string) error {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		dir = wd
	}

	if IsRestrictedDir(dir) {
		resolved, _ := filepath.Abs(dir)
		return fmt.Errorf(
			"refusing to run in %q: boardrunner writes branches and labels relative to its working directory; "+
				"create a dedicated directory and run boardrunner from there", resolved,
		)
	}
	return nil
}

// CheckRequiredTools verifies gh and cliBinary (defaulting to "claude")
// are installed and runnable, returning every missing tool's
// installation hint at once.
func CheckRequiredTools(cliBinary string) error {
	if cliBinary == "" {
		cliBinary = "claude"
	}

	var problems []string
	if err := checkTool("gh", "--version"); err != nil {
		problems = append(problems, "gh CLI not found or not runnable: "+err.Error()+" (install from https://cli.github.com/)")
	}
	if err := checkTool(cliBinary, "--version"); err != nil {
		problems = append(problems, fmt.Sprintf("%s CLI not found or not runnable: %s (install from https://docs.anthropic.com/en/docs/claude-code/overview)", cliBinary, err))
	}

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

func checkTool(name string, versionArg string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return err
	}
	return exec.Command(path, versionArg).Run()
}
