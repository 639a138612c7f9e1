package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/exampleorg/boardrunner/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all daemon access through Go's connection pool instead
	// of racing multiple goroutines against "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Boards ---

func (s *SQLiteStore) CreateBoard(ctx context.Context, b *models.Board) error {
	if b.ID == "" {
		b.ID = newULID()
	}
	b.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boards (id, repo, project_url, watched_statuses, allowed_username, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.Repo, b.ProjectURL, strings.Join(b.WatchedStatuses, ","), b.AllowedUsername, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create board: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetBoard(ctx context.Context, repo string) (*models.Board, error) {
	b := &models.Board{}
	var watched string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, repo, project_url, watched_statuses, allowed_username, created_at FROM boards WHERE repo = ?`, repo,
	).Scan(&b.ID, &b.Repo, &b.ProjectURL, &watched, &b.AllowedUsername, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("board not found: %s", repo)
	}
	if err != nil {
		return nil, fmt.Errorf("get board: %w", err)
	}
	b.WatchedStatuses = splitNonEmpty(watched, ",")
	return b, nil
}

func (s *SQLiteStore) ListBoards(ctx context.Context) ([]*models.Board, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, repo, project_url, watched_statuses, allowed_username, created_at FROM boards ORDER BY repo`)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var boards []*models.Board
	for rows.Next() {
		b := &models.Board{}
		var watched string
		if err := rows.Scan(&b.ID, &b.Repo, &b.ProjectURL, &watched, &b.AllowedUsername, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		b.WatchedStatuses = splitNonEmpty(watched, ",")
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

func (s *SQLiteStore) DeleteBoard(ctx context.Context, repo string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM boards WHERE repo = ?", repo)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("board not found: %s", repo)
	}
	return nil
}

// --- Issue state ---

func (s *SQLiteStore) GetIssueState(ctx context.Context, repo string, ticketID int) (*models.IssueState, error) {
	st := &models.IssueState{Repo: repo, TicketID: ticketID}
	var lastCommentAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at, last_comment_at FROM issue_state WHERE repo = ? AND ticket_id = ?`, repo, ticketID,
	).Scan(&st.UpdatedAt, &lastCommentAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get issue state: %w", err)
	}
	if lastCommentAt.Valid {
		st.LastCommentAt = &lastCommentAt.Time
	}
	return st, nil
}

func (s *SQLiteStore) TouchIssueState(ctx context.Context, repo string, ticketID int, lastCommentAt *time.Time) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issue_state (repo, ticket_id, updated_at, last_comment_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(repo, ticket_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			last_comment_at = COALESCE(excluded.last_comment_at, issue_state.last_comment_at)`,
		repo, ticketID, now, lastCommentAt,
	)
	if err != nil {
		return fmt.Errorf("touch issue state: %w", err)
	}
	return nil
}

// --- Run history ---

func (s *SQLiteStore) CreateRunHistory(ctx context.Context, r *models.RunHistory) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_history (id, repo, ticket_id, workflow, started_at, finished_at, outcome, session_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Repo, r.TicketID, r.Workflow, r.StartedAt, r.FinishedAt, string(r.Outcome), r.SessionRef,
	)
	if err != nil {
		return fmt.Errorf("create run history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FinishRunHistory(ctx context.Context, id string, finishedAt time.Time, outcome models.RunOutcome, sessionRef string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE run_history SET finished_at = ?, outcome = ?, session_ref = ? WHERE id = ?`,
		finishedAt, string(outcome), sessionRef, id,
	)
	if err != nil {
		return fmt.Errorf("finish run history: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run history not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) ListRunHistory(ctx context.Context, repo string, ticketID int, limit int) ([]*models.RunHistory, error) {
	query := `SELECT id, repo, ticket_id, workflow, started_at, finished_at, outcome, session_ref FROM run_history`
	var conditions []string
	var args []any
	if repo != "" {
		conditions = append(conditions, "repo = ?")
		args = append(args, repo)
	}
	if ticketID != 0 {
		conditions = append(conditions, "ticket_id = ?")
		args = append(args, ticketID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.RunHistory
	for rows.Next() {
		r := &models.RunHistory{}
		var finishedAt sql.NullTime
		var outcome string
		if err := rows.Scan(&r.ID, &r.Repo, &r.TicketID, &r.Workflow, &r.StartedAt, &finishedAt, &outcome, &r.SessionRef); err != nil {
			return nil, fmt.Errorf("scan run history: %w", err)
		}
		r.Outcome = models.RunOutcome(outcome)
		if finishedAt.Valid {
			r.FinishedAt = &finishedAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}
