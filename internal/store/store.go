package store

import (
	"context"
	"time"

	"github.com/exampleorg/boardrunner/internal/models"
)

// Store is the persistence interface the daemon core depends on: board
// configuration, per-item comment cursors, and run history. The core
// never depends on a concrete database type, only on this interface.
type Store interface {
	Migrate(ctx context.Context) error
	Close() error

	CreateBoard(ctx context.Context, b *models.Board) error
	GetBoard(ctx context.Context, repo string) (*models.Board, error)
	ListBoards(ctx context.Context) ([]*models.Board, error)
	DeleteBoard(ctx context.Context, repo string) error

	// GetIssueState returns nil, nil if no state has been recorded yet.
	GetIssueState(ctx context.Context, repo string, ticketID int) (*models.IssueState, error)
	// TouchIssueState upserts updated_at (and last_comment_at, if non-nil)
	// for (repo, ticket_id).
	TouchIssueState(ctx context.Context, repo string, ticketID int, lastCommentAt *time.Time) error

	CreateRunHistory(ctx context.Context, r *models.RunHistory) error
	FinishRunHistory(ctx context.Context, id string, finishedAt time.Time, outcome models.RunOutcome, sessionRef string) error
	ListRunHistory(ctx context.Context, repo string, ticketID int, limit int) ([]*models.RunHistory, error)
}
