package yolo

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exampleorg/boardrunner/internal/ticket"
)

type mockAdapter struct {
	labels       map[string]bool
	status       string
	setStatusErr error
}

func newMockAdapter() *mockAdapter { return &mockAdapter{labels: map[string]bool{}} }

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
func (m *mockAdapter) ListLabels(ctx context.Context, repo string) ([]string, error) { return nil, nil }
func (m *mockAdapter) CreateLabel(ctx context.Context, repo, name, desc, color string) (bool, error) {
	return true, nil
}
func (m *mockAdapter) SetStatus(ctx context.Context, repo string, id int, status string) error {
	if m.setStatusErr != nil {
		return m.setStatusErr
	}
	m.status = status
	return nil
}
func (m *mockAdapter) Archive(ctx context.Context, board string, id int) (bool, error) {
	return true, nil
}
func (m *mockAdapter) ListCommentsSince(ctx context.Context, repo string, id int, since *time.Time) ([]ticket.Comment, error) {
	return nil, nil
}
func (m *mockAdapter) AddComment(ctx context.Context, repo string, id int, body string) (ticket.Comment, error) {
	return ticket.Comment{}, nil
}
func (m *mockAdapter) SetReaction(ctx context.Context, repo string, commentID string, kind ticket.Reaction) error {
	return nil
}
func (m *mockAdapter) LastStatusActor(ctx context.Context, repo string, id int) (string, error) {
	return "", nil
}
func (m *mockAdapter) LastLabelActor(ctx context.Context, repo string, id int, lbl string) (string, error) {
	return "", nil
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAdvanceSetsStatus(t *testing.T) {
	a := newMockAdapter()
	c := New(a, discardLogger())

	err := c.Advance(context.Background(), ticket.Item{Repo: "acme/widgets", ID: 1}, "Plan")
	require.NoError(t, err)
	assert.Equal(t, "Plan", a.status)
	assert.False(t, a.labels[FailureLabel])
}

func TestAdvanceAddsFailureLabelOnError(t *testing.T) {
	a := newMockAdapter()
	a.setStatusErr = assertErr{}
	c := New(a, discardLogger())

	err := c.Advance(context.Background(), ticket.Item{Repo: "acme/widgets", ID: 1}, "Plan")
	assert.Error(t, err)
	assert.True(t, a.labels[FailureLabel])
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated failure" }
