// Package childcheck supplements the Implement stage: a parent issue's
// pull request should not look mergeable while any of its child issues
// are still open. It expresses that as a commit status check on the
// parent PR's head commit, set to failure while children are open and
// success once they are all closed.
package childcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/exampleorg/boardrunner/internal/ticket"
)

// StatusContext is the commit status check name boardrunner sets.
const StatusContext = "boardrunner/child-issues-check"

// PR is the subset of a pull request the checker needs.
type PR struct {
	Number int
	Branch string
}

// ChildIssue is one child issue's number and open/closed state.
type ChildIssue struct {
	Number int
	State  string
}

// Client is the gh-backed capability childcheck depends on. It is kept
// separate from ticket.Adapter and git.GitHubClient because sub-issues
// and commit statuses are specific to this one supplemented feature.
type Client interface {
	PRForIssue(ctx context.Context, host, ownerRepo string, issueNumber int) (*PR, error)
	ChildIssues(ctx context.Context, host, ownerRepo string, parentNumber int) ([]ChildIssue, error)
	PRHeadSHA(ctx context.Context, host, ownerRepo string, prNumber int) (string, error)
	SetCommitStatus(ctx context.Context, host, ownerRepo, sha, state, description string) error
}

// Checker runs the gating check for one parent issue at a time.
type Checker struct {
	Client Client
	Logger *slog.Logger
}

// New builds a Checker.
func New(client Client, logger *slog.Logger) *Checker {
	return &Checker{Client: client, Logger: logger}
}

// UpdateParentPRStatus sets the commit status on a parent issue's open
// PR based on whether it has any open child issues. It is a no-op if the
// parent has no open PR yet.
func (c *Checker) UpdateParentPRStatus(ctx context.Context, repo string, parentIssue int) error {
	host, ownerRepo := ticket.SplitRepo(repo)

	pr, err := c.Client.PRForIssue(ctx, host, ownerRepo, parentIssue)
	if err != nil {
		return fmt.Errorf("find PR for issue #%d: %w", parentIssue, err)
	}
	if pr == nil {
		c.Logger.Debug("childcheck: no open PR for parent issue", "repo", repo, "issue", parentIssue)
		return nil
	}

	children, err := c.Client.ChildIssues(ctx, host, ownerRepo, parentIssue)
	if err != nil {
		return fmt.Errorf("list child issues of #%d: %w", parentIssue, err)
	}
	var openCount int
	for _, ch := range children {
		if strings.EqualFold(ch.State, "open") {
			openCount++
		}
	}

	sha, err := c.Client.PRHeadSHA(ctx, host, ownerRepo, pr.Number)
	if err != nil {
		return fmt.Errorf("get head SHA for PR #%d: %w", pr.Number, err)
	}
	if sha == "" {
		c.Logger.Warn("childcheck: could not resolve PR head SHA", "repo", repo, "pr", pr.Number)
		return nil
	}

	if openCount > 0 {
		desc := fmt.Sprintf("%d child issue(s) still open", openCount)
		if err := c.Client.SetCommitStatus(ctx, host, ownerRepo, sha, "failure", desc); err != nil {
			return fmt.Errorf("set failure status on PR #%d: %w", pr.Number, err)
		}
		c.Logger.Info("childcheck: blocking parent PR", "repo", repo, "pr", pr.Number, "open_children", openCount)
		return nil
	}

	if err := c.Client.SetCommitStatus(ctx, host, ownerRepo, sha, "success", "all child issues resolved"); err != nil {
		return fmt.Errorf("set success status on PR #%d: %w", pr.Number, err)
	}
	c.Logger.Info("childcheck: clearing parent PR block, all children resolved", "repo", repo, "pr", pr.Number)
	return nil
}

// RealClient implements Client via the gh CLI, the same idiom as
// internal/git.RealGitHubClient and internal/ticket.GitHubAdapter.
type RealClient struct{}

// NewRealClient returns a RealClient.
func NewRealClient() *RealClient {
	return &RealClient{}
}

func hostFlag(host string) []string {
	if host == "" || host == "github.com" {
		return nil
	}
	return []string{"--hostname", host}
}

func ghCmd(ctx context.Context, host string, args ...string) (string, error) {
	args = append(append([]string{}, args...), hostFlag(host)...)
	out, err := exec.CommandContext(ctx, "gh", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("gh %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("gh %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

type prListEntry struct {
	Number      int    `json:"number"`
	HeadRefName string `json:"headRefName"`
}

// PRForIssue finds the open PR that cross-references issueNumber, if any.
func (c *RealClient) PRForIssue(ctx context.Context, host, ownerRepo string, issueNumber int) (*PR, error) {
	out, err := ghCmd(ctx, host, "api",
		fmt.Sprintf("repos/%s/issues/%d/timeline", ownerRepo, issueNumber),
		"--jq", `[.[] | select(.event == "cross-referenced" and .source.issue.pull_request != null and .source.issue.state == "open") | `+
			`{number: .source.issue.number, headRefName: (.source.issue.pull_request.head.ref // "")}] | first`,
	)
	if err != nil {
		return nil, err
	}
	if out == "" || out == "null" {
		return nil, nil
	}
	var entry prListEntry
	if err := json.Unmarshal([]byte(out), &entry); err != nil {
		return nil, fmt.Errorf("parse linked PR: %w", err)
	}
	return &PR{Number: entry.Number, Branch: entry.HeadRefName}, nil
}

type subIssueEntry struct {
	Number int    `json:"number"`
	State  string `json:"state"`
}

// ChildIssues lists parentNumber's sub-issues via GitHub's sub-issues API.
func (c *RealClient) ChildIssues(ctx context.Context, host, ownerRepo string, parentNumber int) ([]ChildIssue, error) {
	out, err := ghCmd(ctx, host, "api",
		fmt.Sprintf("repos/%s/issues/%d/sub_issues", ownerRepo, parentNumber),
		"--jq", "[.[] | {number: .number, state: .state}]",
	)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var entries []subIssueEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		return nil, fmt.Errorf("parse sub-issues: %w", err)
	}
	children := make([]ChildIssue, len(entries))
	for i, e := range entries {
		children[i] = ChildIssue{Number: e.Number, State: e.State}
	}
	return children, nil
}

// PRHeadSHA returns the head commit SHA of prNumber.
func (c *RealClient) PRHeadSHA(ctx context.Context, host, ownerRepo string, prNumber int) (string, error) {
	return ghCmd(ctx, host, "pr", "view", strconv.Itoa(prNumber), "--repo", ownerRepo, "--json", "headRefOid", "--jq", ".headRefOid")
}

// SetCommitStatus sets a commit status check on sha.
func (c *RealClient) SetCommitStatus(ctx context.Context, host, ownerRepo, sha, state, description string) error {
	_, err := ghCmd(ctx, host, "api",
		fmt.Sprintf("repos/%s/statuses/%s", ownerRepo, sha),
		"-X", "POST",
		"-f", "state="+state,
		"-f", "context="+StatusContext,
		"-f", "description="+description,
	)
	return err
}
