package reactor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exampleorg/boardrunner/internal/authz"
	"github.com/exampleorg/boardrunner/internal/executor"
	"github.com/exampleorg/boardrunner/internal/label"
	"github.com/exampleorg/boardrunner/internal/models"
	"github.com/exampleorg/boardrunner/internal/raceguard"
	"github.com/exampleorg/boardrunner/internal/runner"
	"github.com/exampleorg/boardrunner/internal/ticket"
)

type mockAdapter struct {
	comments  []ticket.Comment
	labels    map[string]bool
	identity  string
	reactions map[string]ticket.Reaction
}

func newMockAdapter(identity string) *mockAdapter {
	return &mockAdapter{labels: map[string]bool{}, identity: identity, reactions: map[string]ticket.Reaction{}}
}

func (m *mockAdapter) ListItems(ctx context.Context, board string) ([]ticket.Item, error) {
	return nil, nil
}
func (m *mockAdapter) GetBody(ctx context.Context, repo string, id int) (string, error) {
	return "", nil
}
func (m *mockAdapter) UpdateBody(ctx context.Context, repo string, id int, body string) error {
	return nil
}
func (m *mockAdapter) AddLabel(ctx context.Context, repo string, id int, lbl string) error {
	m.labels[lbl] = true
	return nil
}
func (m *mockAdapter) RemoveLabel(ctx context.Context, repo string, id int, lbl string) error {
	delete(m.labels, lbl)
	return nil
}
func (m *mockAdapter) ListLabels(ctx context.Context, repo string) ([]string, error) {
	var out []string
	for l, present := range m.labels {
		if present {
			out = append(out, l)
		}
	}
	return out, nil
}
func (m *mockAdapter) CreateLabel(ctx context.Context, repo, name, desc, color string) (bool, error) {
	return true, nil
}
func (m *mockAdapter) SetStatus(ctx context.Context, repo string, id int, status string) error {
	return nil
}
func (m *mockAdapter) Archive(ctx context.Context, board string, id int) (bool, error) {
	return true, nil
}
func (m *mockAdapter) ListCommentsSince(ctx context.Context, repo string, id int, since *time.Time) ([]ticket.Comment, error) {
	if since == nil {
		return m.comments, nil
	}
	var out []ticket.Comment
	for _, c := range m.comments {
		if c.CreatedAt.After(*since) {
			out = append(out, c)
		}
	}
	return out, nil
}
func (m *mockAdapter) AddComment(ctx context.Context, repo string, id int, body string) (ticket.Comment, error) {
	return ticket.Comment{}, nil
}
func (m *mockAdapter) SetReaction(ctx context.Context, repo string, commentID string, kind ticket.Reaction) error {
	m.reactions[commentID] = kind
	return nil
}
func (m *mockAdapter) LastStatusActor(ctx context.Context, repo string, id int) (string, error) {
	return "", nil
}
func (m *mockAdapter) LastLabelActor(ctx context.Context, repo string, id int, lbl string) (string, error) {
	return m.identity, nil
}

type mockStore struct {
	state *models.IssueState
}

func (s *mockStore) Migrate(ctx context.Context) error                      { return nil }
func (s *mockStore) Close() error                                           { return nil }
func (s *mockStore) CreateBoard(ctx context.Context, b *models.Board) error { return nil }
func (s *mockStore) GetBoard(ctx context.Context, repo string) (*models.Board, error) {
	return nil, nil
}
func (s *mockStore) ListBoards(ctx context.Context) ([]*models.Board, error) { return nil, nil }
func (s *mockStore) DeleteBoard(ctx context.Context, repo string) error      { return nil }
func (s *mockStore) GetIssueState(ctx context.Context, repo string, ticketID int) (*models.IssueState, error) {
	return s.state, nil
}
func (s *mockStore) TouchIssueState(ctx context.Context, repo string, ticketID int, lastCommentAt *time.Time) error {
	if s.state == nil {
		s.state = &models.IssueState{Repo: repo, TicketID: ticketID}
	}
	if lastCommentAt != nil {
		s.state.LastCommentAt = lastCommentAt
	}
	return nil
}
func (s *mockStore) CreateRunHistory(ctx context.Context, r *models.RunHistory) error { return nil }
func (s *mockStore) FinishRunHistory(ctx context.Context, id string, finishedAt time.Time, outcome models.RunOutcome, sessionRef string) error {
	return nil
}
func (s *mockStore) ListRunHistory(ctx context.Context, repo string, ticketID int, limit int) ([]*models.RunHistory, error) {
	return nil, nil
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeExecutor struct {
	status executor.Status
}

func (f *fakeExecutor) Run(ctx context.Context, req executor.StageRequest) (executor.StageOutcome, error) {
	return executor.StageOutcome{Status: f.status}, nil
}

func waitForIdle(pool *runner.Pool) {
	for pool.Size() > 0 {
		time.Sleep(time.Millisecond)
	}
}

func TestDispatchDisabledDuringImplement(t *testing.T) {
	a := newMockAdapter("daemon-a")
	a.comments = []ticket.Comment{{ID: "1", Author: "alice", Body: "change this", CreatedAt: time.Now()}}
	r := New(a, raceguard.New(a, "daemon-a"), authz.NewPolicy("alice", "daemon-a", nil), &mockStore{}, discardLogger())

	dispatched, err := r.Dispatch(context.Background(), ticket.Item{Repo: "acme/widgets", ID: 1}, label.StageImplement, runner.New(3), &fakeExecutor{status: executor.StatusSuccess})
	require.NoError(t, err)
	assert.False(t, dispatched)
}

func TestDispatchIgnoresCommentsFromDisallowedActors(t *testing.T) {
	a := newMockAdapter("daemon-a")
	a.comments = []ticket.Comment{{ID: "1", Author: "rando", Body: "change this", CreatedAt: time.Now()}}
	r := New(a, raceguard.New(a, "daemon-a"), authz.NewPolicy("alice", "daemon-a", nil), &mockStore{}, discardLogger())

	dispatched, err := r.Dispatch(context.Background(), ticket.Item{Repo: "acme/widgets", ID: 1}, label.StageResearch, runner.New(3), &fakeExecutor{status: executor.StatusSuccess})
	require.NoError(t, err)
	assert.False(t, dispatched)
}

func TestDispatchRunsEditWorkflowAndAdvancesCursorOnSuccess(t *testing.T) {
	a := newMockAdapter("daemon-a")
	commentTime := time.Now()
	a.comments = []ticket.Comment{{ID: "1", Author: "alice", Body: "change this", CreatedAt: commentTime}}
	st := &mockStore{}
	pool := runner.New(3)
	r := New(a, raceguard.New(a, "daemon-a"), authz.NewPolicy("alice", "daemon-a", nil), st, discardLogger())

	dispatched, err := r.Dispatch(context.Background(), ticket.Item{Repo: "acme/widgets", ID: 1}, label.StageResearch, pool, &fakeExecutor{status: executor.StatusSuccess})
	require.NoError(t, err)
	assert.True(t, dispatched)

	waitForIdle(pool)
	assert.False(t, a.labels[label.Editing])
	assert.Equal(t, ticket.ReactionThumbsUp, a.reactions["1"])
	require.NotNil(t, st.state)
	require.NotNil(t, st.state.LastCommentAt)
	assert.True(t, st.state.LastCommentAt.Equal(commentTime))
}

func TestDispatchLeavesCursorOnFailure(t *testing.T) {
	a := newMockAdapter("daemon-a")
	a.comments = []ticket.Comment{{ID: "1", Author: "alice", Body: "change this", CreatedAt: time.Now()}}
	st := &mockStore{}
	pool := runner.New(3)
	r := New(a, raceguard.New(a, "daemon-a"), authz.NewPolicy("alice", "daemon-a", nil), st, discardLogger())

	dispatched, err := r.Dispatch(context.Background(), ticket.Item{Repo: "acme/widgets", ID: 1}, label.StagePlan, pool, &fakeExecutor{status: executor.StatusFailure})
	require.NoError(t, err)
	assert.True(t, dispatched)

	waitForIdle(pool)
	assert.False(t, a.labels[label.Editing])
	assert.Nil(t, st.state)
}

func TestDispatchNoActionableCommentsReturnsFalse(t *testing.T) {
	a := newMockAdapter("daemon-a")
	r := New(a, raceguard.New(a, "daemon-a"), authz.NewPolicy("alice", "daemon-a", nil), &mockStore{}, discardLogger())

	dispatched, err := r.Dispatch(context.Background(), ticket.Item{Repo: "acme/widgets", ID: 1}, label.StageResearch, runner.New(3), &fakeExecutor{status: executor.StatusSuccess})
	require.NoError(t, err)
	assert.False(t, dispatched)
}
