package git

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// PullRequest is the subset of a GitHub pull request ResetController needs
// to close it out and remove its branch.
type PullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Branch string `json:"headRefName"`
	URL    string `json:"url"`
}

// GitHubClient wraps the gh CLI for the PR/branch cleanup ResetController
// performs. It is deliberately narrow: everything else a board needs comes
// through ticket.Adapter.
type GitHubClient interface {
	OpenPRs(ctx context.Context, host, ownerRepo string) ([]PullRequest, error)
	LinkedPRs(ctx context.Context, host, ownerRepo string, issueNumber int) ([]PullRequest, error)
	ClosePR(ctx context.Context, host, ownerRepo string, number int) error
	DeleteBranch(ctx context.Context, host, ownerRepo, branch string) error
}

// RealGitHubClient implements GitHubClient using the gh CLI.
type RealGitHubClient struct{}

// NewGitHubClient returns a new RealGitHubClient.
func NewGitHubClient() *RealGitHubClient {
	return &RealGitHubClient{}
}

func ghHostFlag(host string) []string {
	if host == "" || host == "github.com" {
		return nil
	}
	return []string{"--hostname", host}
}

func ghCmd(ctx context.Context, host string, args ...string) (string, error) {
	args = append(append([]string{}, args...), ghHostFlag(host)...)
	out, err := exec.CommandContext(ctx, "gh", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("gh %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("gh %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// OpenPRs lists every open pull request in ownerRepo.
func (c *RealGitHubClient) OpenPRs(ctx context.Context, host, ownerRepo string) ([]PullRequest, error) {
	out, err := ghCmd(ctx, host, "pr", "list",
		"--repo", ownerRepo,
		"--state", "open",
		"--json", "number,title,state,headRefName,url",
	)
	if err != nil {
		return nil, err
	}

	var prs []PullRequest
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, fmt.Errorf("parse PRs: %w", err)
	}
	return prs, nil
}

// LinkedPRs returns the open pull requests that reference issueNumber,
// found by scanning the issue's timeline for cross-referenced PRs. GitHub
// models a pull request as an issue internally, so a cross-reference event
// whose source carries a pull_request field names a PR rather than another
// issue.
func (c *RealGitHubClient) LinkedPRs(ctx context.Context, host, ownerRepo string, issueNumber int) ([]PullRequest, error) {
	owner, repo, err := splitOwnerRepo(ownerRepo)
	if err != nil {
		return nil, err
	}
	out, err := ghCmd(ctx, host, "api",
		fmt.Sprintf("repos/%s/%s/issues/%d/timeline", owner, repo, issueNumber),
		"--jq", `[.[] | select(.event == "cross-referenced" and .source.issue.pull_request != null) | `+
			`{number: .source.issue.number, title: .source.issue.title, state: .source.issue.state, `+
			`headRefName: (.source.issue.pull_request.head.ref // ""), url: .source.issue.html_url}]`,
	)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}

	var prs []PullRequest
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, fmt.Errorf("parse linked PRs: %w", err)
	}

	var open []PullRequest
	for _, pr := range prs {
		if pr.State == "open" {
			open = append(open, pr)
		}
	}
	return open, nil
}

// ClosePR closes the given pull request without merging it.
func (c *RealGitHubClient) ClosePR(ctx context.Context, host, ownerRepo string, number int) error {
	_, err := ghCmd(ctx, host, "pr", "close", fmt.Sprintf("%d", number), "--repo", ownerRepo)
	return err
}

// DeleteBranch removes a branch ref from the remote.
func (c *RealGitHubClient) DeleteBranch(ctx context.Context, host, ownerRepo, branch string) error {
	owner, repo, err := splitOwnerRepo(ownerRepo)
	if err != nil {
		return err
	}
	_, err = ghCmd(ctx, host, "api",
		fmt.Sprintf("repos/%s/%s/git/refs/heads/%s", owner, repo, branch),
		"-X", "DELETE",
	)
	return err
}

func splitOwnerRepo(ownerRepo string) (owner, repo string, err error) {
	segments := strings.SplitN(ownerRepo, "/", 2)
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return "", "", fmt.Errorf("malformed owner/repo: %s", ownerRepo)
	}
	return segments[0], segments[1], nil
}
