package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exampleorg/boardrunner/internal/models"
	"github.com/exampleorg/boardrunner/internal/store"
)

func setupTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	return NewServer(s), s
}

func TestHealthz(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListBoardsEmpty(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/boards", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var boards []*models.Board
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &boards))
	assert.Empty(t, boards)
}

func TestListBoards(t *testing.T) {
	srv, st := setupTestServer(t)
	router := srv.Router()

	require.NoError(t, st.CreateBoard(context.Background(), &models.Board{
		ID: "b1", Repo: "acme/widgets", ProjectURL: "https://github.com/orgs/acme/projects/1",
		WatchedStatuses: []string{"Backlog", "Ready"}, AllowedUsername: "octocat",
	}))

	req := httptest.NewRequest("GET", "/api/v1/boards", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var boards []*models.Board
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &boards))
	require.Len(t, boards, 1)
	assert.Equal(t, "acme/widgets", boards[0].Repo)
}

func TestListRunsMissingRepo(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/runs?ticket_id=7", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRunsMissingTicketID(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/runs?repo=acme/widgets", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRuns(t *testing.T) {
	srv, st := setupTestServer(t)
	router := srv.Router()

	require.NoError(t, st.CreateRunHistory(context.Background(), &models.RunHistory{
		ID: "r1", Repo: "acme/widgets", TicketID: 7, Workflow: "implement", Outcome: models.OutcomeSuccess,
	}))

	req := httptest.NewRequest("GET", "/api/v1/runs?repo=acme/widgets&ticket_id=7", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var runs []*models.RunHistory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "implement", runs[0].Workflow)
}
