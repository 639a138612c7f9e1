package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// GitHubAdapter implements Adapter on top of the gh CLI, including GHES
// instances addressed by a "hostname/owner/repo" identifier (host.go).
type GitHubAdapter struct{}

// NewGitHubAdapter returns a GitHubAdapter. It has no state of its own;
// every call shells out to gh fresh, the same way the rest of this
// daemon treats the ticket platform as a source of truth it polls.
func NewGitHubAdapter() *GitHubAdapter {
	return &GitHubAdapter{}
}

func ghCmd(ctx context.Context, host string, args ...string) (string, error) {
	args = append(append([]string{}, args...), hostFlag(host)...)
	cmd := exec.CommandContext(ctx, "gh", args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr := strings.TrimSpace(string(exitErr.Stderr))
			return "", classifyGHError(strings.Join(args, " "), stderr, err)
		}
		return "", Classify(ErrClassPlatformUnreachable, fmt.Errorf("gh %s: %w", strings.Join(args, " "), err))
	}
	return strings.TrimSpace(string(out)), nil
}

// classifyGHError maps gh's stderr text onto the adapter error taxonomy.
// gh does not expose structured exit reasons, so this is a best-effort
// classification by message shape, erring toward ErrClassTransient so a
// single flaky call does not trip hibernation.
func classifyGHError(args, stderr string, cause error) error {
	wrapped := fmt.Errorf("gh %s: %s", args, stderr)
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "could not resolve host"), strings.Contains(lower, "timeout"), strings.Contains(lower, "connection refused"):
		return Classify(ErrClassPlatformUnreachable, wrapped)
	case strings.Contains(lower, "http 401"), strings.Contains(lower, "bad credentials"), strings.Contains(lower, "http 403"):
		return Classify(ErrClassAuthorization, wrapped)
	case strings.Contains(lower, "not found"), strings.Contains(lower, "http 404"):
		return Classify(ErrClassConfiguration, wrapped)
	case strings.Contains(lower, "http 5"):
		return Classify(ErrClassTransient, wrapped)
	default:
		_ = cause
		return Classify(ErrClassTransient, wrapped)
	}
}

type issueListEntry struct {
	Number   int      `json:"number"`
	Title    string   `json:"title"`
	State    string   `json:"state"`
	Labels   []label_ `json:"labels"`
	Comments int      `json:"comments"`
}

type label_ struct {
	Name string `json:"name"`
}

// ListItems returns every open issue tracked by board, a repo identifier
// (SplitRepo-compatible). A board maps 1:1 onto a repository's open issue
// list in this adapter; richer GitHub Projects board semantics are
// intentionally not modeled here.
func (a *GitHubAdapter) ListItems(ctx context.Context, board string) ([]Item, error) {
	host, ownerRepo := SplitRepo(board)
	out, err := ghCmd(ctx, host, "issue", "list",
		"--repo", ownerRepo,
		"--state", "open",
		"--limit", "500",
		"--json", "number,title,state,labels,comments",
	)
	if err != nil {
		return nil, err
	}
	var entries []issueListEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		return nil, Classify(ErrClassSchema, fmt.Errorf("parse issue list: %w", err))
	}
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		labels := make([]string, 0, len(e.Labels))
		for _, l := range e.Labels {
			labels = append(labels, l.Name)
		}
		items = append(items, Item{
			Repo:         board,
			ID:           e.Number,
			Status:       e.State,
			Labels:       labels,
			Title:        e.Title,
			Open:         strings.EqualFold(e.State, "open"),
			CommentCount: e.Comments,
		})
	}
	return items, nil
}

func (a *GitHubAdapter) GetBody(ctx context.Context, repo string, id int) (string, error) {
	host, ownerRepo := SplitRepo(repo)
	return ghCmd(ctx, host, "issue", "view", strconv.Itoa(id), "--repo", ownerRepo, "--json", "body", "--jq", ".body")
}

func (a *GitHubAdapter) UpdateBody(ctx context.Context, repo string, id int, body string) error {
	host, ownerRepo := SplitRepo(repo)
	_, err := ghCmd(ctx, host, "issue", "edit", strconv.Itoa(id), "--repo", ownerRepo, "--body", body)
	return err
}

func (a *GitHubAdapter) AddLabel(ctx context.Context, repo string, id int, lbl string) error {
	host, ownerRepo := SplitRepo(repo)
	_, err := ghCmd(ctx, host, "issue", "edit", strconv.Itoa(id), "--repo", ownerRepo, "--add-label", lbl)
	return err
}

func (a *GitHubAdapter) RemoveLabel(ctx context.Context, repo string, id int, lbl string) error {
	host, ownerRepo := SplitRepo(repo)
	_, err := ghCmd(ctx, host, "issue", "edit", strconv.Itoa(id), "--repo", ownerRepo, "--remove-label", lbl)
	return err
}

func (a *GitHubAdapter) ListLabels(ctx context.Context, repo string) ([]string, error) {
	host, ownerRepo := SplitRepo(repo)
	out, err := ghCmd(ctx, host, "label", "list", "--repo", ownerRepo, "--json", "name", "--jq", ".[].name")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (a *GitHubAdapter) CreateLabel(ctx context.Context, repo, name, desc, color string) (bool, error) {
	host, ownerRepo := SplitRepo(repo)
	_, err := ghCmd(ctx, host, "label", "create", name, "--repo", ownerRepo, "--description", desc, "--color", color, "--force")
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetStatus moves an issue's open/closed state. GitHub issues have no
// richer status field than open/closed outside of Projects v2, so
// "status" collapses onto that boolean here; daemons targeting a
// Projects-backed board should wrap this adapter rather than extend it.
func (a *GitHubAdapter) SetStatus(ctx context.Context, repo string, id int, status string) error {
	host, ownerRepo := SplitRepo(repo)
	if strings.EqualFold(status, "closed") {
		_, err := ghCmd(ctx, host, "issue", "close", strconv.Itoa(id), "--repo", ownerRepo)
		return err
	}
	_, err := ghCmd(ctx, host, "issue", "reopen", strconv.Itoa(id), "--repo", ownerRepo)
	return err
}

func (a *GitHubAdapter) Archive(ctx context.Context, board string, id int) (bool, error) {
	host, ownerRepo := SplitRepo(board)
	_, err := ghCmd(ctx, host, "issue", "close", strconv.Itoa(id), "--repo", ownerRepo, "--reason", "completed")
	if err != nil {
		return false, err
	}
	return true, nil
}

type commentEntry struct {
	ID     string `json:"id"`
	Author struct {
		Login string `json:"login"`
	} `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a *GitHubAdapter) ListCommentsSince(ctx context.Context, repo string, id int, since *time.Time) ([]Comment, error) {
	host, ownerRepo := SplitRepo(repo)
	out, err := ghCmd(ctx, host, "issue", "view", strconv.Itoa(id), "--repo", ownerRepo, "--json", "comments", "--jq", ".comments")
	if err != nil {
		return nil, err
	}
	var entries []commentEntry
	if out != "" {
		if err := json.Unmarshal([]byte(out), &entries); err != nil {
			return nil, Classify(ErrClassSchema, fmt.Errorf("parse comments: %w", err))
		}
	}
	comments := make([]Comment, 0, len(entries))
	for _, e := range entries {
		if since != nil && !e.CreatedAt.After(*since) {
			continue
		}
		comments = append(comments, Comment{ID: e.ID, Author: e.Author.Login, Body: e.Body, CreatedAt: e.CreatedAt})
	}
	return comments, nil
}

func (a *GitHubAdapter) AddComment(ctx context.Context, repo string, id int, body string) (Comment, error) {
	host, ownerRepo := SplitRepo(repo)
	out, err := ghCmd(ctx, host, "issue", "comment", strconv.Itoa(id), "--repo", ownerRepo, "--body", body)
	if err != nil {
		return Comment{}, err
	}
	// gh prints the new comment's URL; the trailing path segment after
	// "issuecomment-" is its numeric id.
	idPart := out
	if i := strings.LastIndex(out, "issuecomment-"); i >= 0 {
		idPart = out[i+len("issuecomment-"):]
	}
	return Comment{ID: idPart, Body: body}, nil
}

// SetReaction leaves a reaction on a comment via the REST API directly;
// the gh CLI has no first-class `gh issue comment react` subcommand.
func (a *GitHubAdapter) SetReaction(ctx context.Context, repo string, commentID string, kind Reaction) error {
	host, ownerRepo := SplitRepo(repo)
	owner, name, ok := strings.Cut(ownerRepo, "/")
	if !ok {
		return Classify(ErrClassConfiguration, fmt.Errorf("malformed repo identifier %q", repo))
	}
	path := fmt.Sprintf("repos/%s/%s/issues/comments/%s/reactions", owner, name, commentID)
	_, err := ghCmd(ctx, host, "api", path, "-X", "POST", "-f", "content="+string(kind))
	return err
}

func (a *GitHubAdapter) LastStatusActor(ctx context.Context, repo string, id int) (string, error) {
	host, ownerRepo := SplitRepo(repo)
	out, err := ghCmd(ctx, host, "api",
		fmt.Sprintf("repos/%s/issues/%d/timeline", ownerRepo, id),
		"--jq", `[.[] | select(.event == "closed" or .event == "reopened")] | last | .actor.login`,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

func (a *GitHubAdapter) LastLabelActor(ctx context.Context, repo string, id int, lbl string) (string, error) {
	host, ownerRepo := SplitRepo(repo)
	out, err := ghCmd(ctx, host, "api",
		fmt.Sprintf("repos/%s/issues/%d/timeline", ownerRepo, id),
		"--jq", fmt.Sprintf(`[.[] | select(.event == "labeled" and .label.name == "%s")] | last | .actor.login`, lbl),
	)
	if err != nil {
		return "", err
	}
	return out, nil
}
