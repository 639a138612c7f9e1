package poller

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exampleorg/boardrunner/internal/authz"
	"github.com/exampleorg/boardrunner/internal/backoff"
	"github.com/exampleorg/boardrunner/internal/config"
	"github.com/exampleorg/boardrunner/internal/executor"
	"github.com/exampleorg/boardrunner/internal/git"
	"github.com/exampleorg/boardrunner/internal/hibernation"
	"github.com/exampleorg/boardrunner/internal/label"
	"github.com/exampleorg/boardrunner/internal/models"
	"github.com/exampleorg/boardrunner/internal/raceguard"
	"github.com/exampleorg/boardrunner/internal/reactor"
	"github.com/exampleorg/boardrunner/internal/reset"
	"github.com/exampleorg/boardrunner/internal/runner"
	"github.com/exampleorg/boardrunner/internal/ticket"
	"github.com/exampleorg/boardrunner/internal/yolo"
)

type mockAdapter struct {
	item   ticket.Item
	body   string
	labels map[string]bool

	labelActor  string // LastLabelActor, drives RaceGuard outcomes
	statusActor string // LastStatusActor, drives authz gating

	comments          []ticket.Comment
	listItemsErr      error
	archived          bool
	statusTransitions []string
}

// newMockAdapter defaults statusActor to the configured allowed username
// ("alice" in testConfig) so tests exercising RaceGuard/stale-label
// behavior don't also have to satisfy authz unless that's what's being
// tested.
func newMockAdapter(item ticket.Item, labelActor string) *mockAdapter {
	labels := map[string]bool{}
	for _, l := range item.Labels {
		labels[l] = true
	}
	return &mockAdapter{item: item, labels: labels, labelActor: labelActor, statusActor: "alice"}
}

func (m *mockAdapter) currentLabels() []string {
	var out []string
	for l, present := range m.labels {
		if present {
			out = append(out, l)
		}
	}
	return out
}

func (m *mockAdapter) ListItems(ctx context.Context, board string) ([]ticket.Item, error) {
	if m.listItemsErr != nil {
		return nil, m.listItemsErr
	}
	it := m.item
	it.Labels = m.currentLabels()
	return []ticket.Item{it}, nil
}
func (m *mockAdapter) GetBody(ctx context.Context, repo string, id int) (string, error) {
	return m.body, nil
}
func (m *mockAdapter) UpdateBody(ctx context.Context, repo string, id int, body string) error {
	m.body = body
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
	return m.currentLabels(), nil
}
func (m *mockAdapter) CreateLabel(ctx context.Context, repo, name, desc, color string) (bool, error) {
	return true, nil
}
func (m *mockAdapter) SetStatus(ctx context.Context, repo string, id int, status string) error {
	m.statusTransitions = append(m.statusTransitions, status)
	m.item.Status = status
	return nil
}
func (m *mockAdapter) Archive(ctx context.Context, board string, id int) (bool, error) {
	m.archived = true
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
	return nil
}
func (m *mockAdapter) LastStatusActor(ctx context.Context, repo string, id int) (string, error) {
	return m.statusActor, nil
}
func (m *mockAdapter) LastLabelActor(ctx context.Context, repo string, id int, lbl string) (string, error) {
	return m.labelActor, nil
}

type mockStore struct {
	state  *models.IssueState
	runs   []*models.RunHistory
	boards []*models.Board
}

func (s *mockStore) Migrate(ctx context.Context) error                      { return nil }
func (s *mockStore) Close() error                                           { return nil }
func (s *mockStore) CreateBoard(ctx context.Context, b *models.Board) error { return nil }
func (s *mockStore) GetBoard(ctx context.Context, repo string) (*models.Board, error) {
	return nil, nil
}
func (s *mockStore) ListBoards(ctx context.Context) ([]*models.Board, error) { return s.boards, nil }
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
func (s *mockStore) CreateRunHistory(ctx context.Context, r *models.RunHistory) error {
	if r.ID == "" {
		r.ID = "run-1"
	}
	s.runs = append(s.runs, r)
	return nil
}
func (s *mockStore) FinishRunHistory(ctx context.Context, id string, finishedAt time.Time, outcome models.RunOutcome, sessionRef string) error {
	for _, r := range s.runs {
		if r.ID == id {
			r.Outcome = outcome
			r.FinishedAt = &finishedAt
		}
	}
	return nil
}
func (s *mockStore) ListRunHistory(ctx context.Context, repo string, ticketID int, limit int) ([]*models.RunHistory, error) {
	return s.runs, nil
}

type mockGitHub struct{}

func (mockGitHub) OpenPRs(ctx context.Context, host, ownerRepo string) ([]git.PullRequest, error) {
	return nil, nil
}
func (mockGitHub) LinkedPRs(ctx context.Context, host, ownerRepo string, issueNumber int) ([]git.PullRequest, error) {
	return nil, nil
}
func (mockGitHub) ClosePR(ctx context.Context, host, ownerRepo string, number int) error { return nil }
func (mockGitHub) DeleteBranch(ctx context.Context, host, ownerRepo, branch string) error {
	return nil
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig() config.Config {
	return config.Config{
		AllowedUsername: "alice",
		DaemonUsername:  "daemon-a",
		WatchedStatuses: []string{"Research", "Plan", "Implement"},
		StaleThreshold:  time.Hour,
	}
}

func newPoller(t *testing.T, a *mockAdapter, st *mockStore, cliBin string) *Poller {
	t.Helper()
	guard := raceguard.New(a, "daemon-a")
	policyAuthz := authz.NewPolicy("alice", "daemon-a", nil)
	pool := runner.New(3)
	cfg := testConfig()

	return New(
		a,
		st,
		guard,
		policyAuthz,
		pool,
		backoff.New(10*time.Millisecond, 100*time.Millisecond),
		hibernation.New(time.Minute, discardLogger()),
		reactor.New(a, guard, policyAuthz, st, discardLogger()),
		yolo.New(a, discardLogger()),
		reset.New(a, mockGitHub{}, discardLogger()),
		executor.NewCLIExecutor(cliBin),
		nil,
		nil,
		cfg,
		discardLogger(),
	)
}

func waitForIdle(pool *runner.Pool) {
	for pool.Size() > 0 {
		time.Sleep(time.Millisecond)
	}
}

func TestRunCycleHappyPathResearch(t *testing.T) {
	a := newMockAdapter(ticket.Item{Repo: "acme/widgets", ID: 1, Status: "Research", Open: true}, "daemon-a")
	st := &mockStore{boards: []*models.Board{{ID: "b1", Repo: "acme/widgets"}}}
	p := newPoller(t, a, st, fakeBinary(t, "exit 0\n"))

	success, err := p.RunCycle(context.Background(), st.boards)
	require.NoError(t, err)
	assert.True(t, success)

	waitForIdle(p.Pool)
	assert.False(t, a.labels[label.Researching])
	assert.True(t, a.labels[label.ResearchReady])
	require.Len(t, st.runs, 1)
	assert.Equal(t, models.OutcomeSuccess, st.runs[0].Outcome)
}

func TestRunCycleRaceLossDoesNotDispatch(t *testing.T) {
	a := newMockAdapter(ticket.Item{Repo: "acme/widgets", ID: 1, Status: "Research", Open: true}, "daemon-b")
	st := &mockStore{boards: []*models.Board{{ID: "b1", Repo: "acme/widgets"}}}
	p := newPoller(t, a, st, fakeBinary(t, "exit 0\n"))

	success, err := p.RunCycle(context.Background(), st.boards)
	require.NoError(t, err)
	assert.True(t, success)

	waitForIdle(p.Pool)
	// The competing instance's claim stands: the loser must not remove
	// the running label, dispatch a workflow, or record a run.
	assert.True(t, a.labels[label.Researching])
	assert.False(t, a.labels[label.ResearchReady])
	assert.Empty(t, st.runs)
}

func TestRunCycleYoloAdvance(t *testing.T) {
	a := newMockAdapter(ticket.Item{
		Repo: "acme/widgets", ID: 1, Status: "Research", Open: true,
		Labels: []string{label.ResearchReady, label.Yolo},
	}, "daemon-a")
	st := &mockStore{boards: []*models.Board{{ID: "b1", Repo: "acme/widgets"}}}
	p := newPoller(t, a, st, fakeBinary(t, "exit 0\n"))

	success, err := p.RunCycle(context.Background(), st.boards)
	require.NoError(t, err)
	assert.True(t, success)
	assert.Equal(t, []string{"Plan"}, a.statusTransitions)
	assert.False(t, a.labels[label.YoloFailed])
}

func TestRunCycleReset(t *testing.T) {
	a := newMockAdapter(ticket.Item{
		Repo: "acme/widgets", ID: 1, Status: "Implement", Open: true,
		Labels: []string{label.Reset, label.ResearchReady, label.Yolo},
	}, "daemon-a")
	a.body = "preamble\n<!-- kiln:research -->XYZ<!-- /kiln:research -->\npostamble"
	st := &mockStore{boards: []*models.Board{{ID: "b1", Repo: "acme/widgets"}}}
	p := newPoller(t, a, st, fakeBinary(t, "exit 0\n"))

	success, err := p.RunCycle(context.Background(), st.boards)
	require.NoError(t, err)
	assert.True(t, success)

	assert.Equal(t, "preamble\n\npostamble", a.body)
	assert.False(t, a.labels[label.Reset])
	assert.False(t, a.labels[label.ResearchReady])
	assert.False(t, a.labels[label.Yolo])
	assert.Equal(t, []string{reset.StatusBacklog}, a.statusTransitions)
}

func TestRunCycleStaleLabelRecoveredWhenOwnedBySelf(t *testing.T) {
	a := newMockAdapter(ticket.Item{
		Repo: "acme/widgets", ID: 1, Status: "Research", Open: true,
		Labels: []string{label.Researching},
	}, "daemon-a")
	st := &mockStore{boards: []*models.Board{{ID: "b1", Repo: "acme/widgets"}}}
	p := newPoller(t, a, st, fakeBinary(t, "exit 0\n"))

	success, err := p.RunCycle(context.Background(), st.boards)
	require.NoError(t, err)
	assert.True(t, success)
	assert.False(t, a.labels[label.Researching])
}

func TestRunCycleStaleLabelLeftAloneWhenOwnedByPeer(t *testing.T) {
	a := newMockAdapter(ticket.Item{
		Repo: "acme/widgets", ID: 1, Status: "Research", Open: true,
		Labels: []string{label.Researching},
	}, "daemon-b")
	st := &mockStore{boards: []*models.Board{{ID: "b1", Repo: "acme/widgets"}}}
	p := newPoller(t, a, st, fakeBinary(t, "exit 0\n"))

	success, err := p.RunCycle(context.Background(), st.boards)
	require.NoError(t, err)
	assert.True(t, success)
	assert.True(t, a.labels[label.Researching])
}

func TestRunCycleStripsCoexistingRunningLabels(t *testing.T) {
	a := newMockAdapter(ticket.Item{
		Repo: "acme/widgets", ID: 1, Status: "Research", Open: true,
		Labels: []string{label.Researching, label.Planning},
	}, "daemon-a")
	st := &mockStore{boards: []*models.Board{{ID: "b1", Repo: "acme/widgets"}}}
	p := newPoller(t, a, st, fakeBinary(t, "exit 0\n"))

	success, err := p.RunCycle(context.Background(), st.boards)
	require.NoError(t, err)
	assert.True(t, success)
	assert.False(t, a.labels[label.Researching])
	assert.False(t, a.labels[label.Planning])
	assert.Empty(t, st.runs)
}

func TestRunCyclePlatformUnreachableTripsHibernation(t *testing.T) {
	a := newMockAdapter(ticket.Item{Repo: "acme/widgets", ID: 1, Status: "Research", Open: true}, "daemon-a")
	a.listItemsErr = ticket.Classify(ticket.ErrClassPlatformUnreachable, assert.AnError)
	st := &mockStore{boards: []*models.Board{{ID: "b1", Repo: "acme/widgets"}}}
	p := newPoller(t, a, st, fakeBinary(t, "exit 0\n"))

	success, err := p.RunCycle(context.Background(), st.boards)
	require.NoError(t, err)
	assert.False(t, success)
	assert.True(t, p.Hibernation.Hibernating())
}

func TestRunCycleConfigurationErrorIsFatal(t *testing.T) {
	a := newMockAdapter(ticket.Item{Repo: "acme/widgets", ID: 1, Status: "Research", Open: true}, "daemon-a")
	a.listItemsErr = ticket.Classify(ticket.ErrClassConfiguration, assert.AnError)
	st := &mockStore{boards: []*models.Board{{ID: "b1", Repo: "acme/widgets"}}}
	p := newPoller(t, a, st, fakeBinary(t, "exit 0\n"))

	_, err := p.RunCycle(context.Background(), st.boards)
	assert.Error(t, err)
}

func TestRunCycleUnauthorizedStatusActorIsIgnored(t *testing.T) {
	a := newMockAdapter(ticket.Item{Repo: "acme/widgets", ID: 1, Status: "Research", Open: true}, "daemon-a")
	a.statusActor = "rando"
	st := &mockStore{boards: []*models.Board{{ID: "b1", Repo: "acme/widgets"}}}
	p := newPoller(t, a, st, fakeBinary(t, "exit 0\n"))

	success, err := p.RunCycle(context.Background(), st.boards)
	require.NoError(t, err)
	assert.True(t, success)

	waitForIdle(p.Pool)
	assert.False(t, a.labels[label.Researching])
	assert.False(t, a.labels[label.ResearchReady])
}

func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}
