package authz

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, nil))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestCategorizeSelf(t *testing.T) {
	p := NewPolicy("alice", "boardrunner-bot", []string{"bob"})
	assert.Equal(t, Self, p.Categorize("alice"))
}

func TestCategorizeTeam(t *testing.T) {
	p := NewPolicy("alice", "boardrunner-bot", []string{"bob"})
	assert.Equal(t, Team, p.Categorize("bob"))
}

func TestCategorizeUnknown(t *testing.T) {
	p := NewPolicy("alice", "boardrunner-bot", nil)
	assert.Equal(t, Unknown, p.Categorize(""))
}

func TestCategorizeBlocked(t *testing.T) {
	p := NewPolicy("alice", "boardrunner-bot", []string{"bob"})
	assert.Equal(t, Blocked, p.Categorize("mallory"))
}

func TestIsDaemonItself(t *testing.T) {
	p := NewPolicy("alice", "boardrunner-bot", nil)
	assert.True(t, p.IsDaemonItself("boardrunner-bot"))
	assert.False(t, p.IsDaemonItself("alice"))
}

func TestCheckActorAllowedOnlySelf(t *testing.T) {
	p := NewPolicy("alice", "boardrunner-bot", []string{"bob"})
	logger := discardLogger()

	assert.True(t, p.CheckActorAllowed(logger, "alice", "acme/widgets#1", "YOLO"))
	assert.False(t, p.CheckActorAllowed(logger, "bob", "acme/widgets#1", "YOLO"))
	assert.False(t, p.CheckActorAllowed(logger, "mallory", "acme/widgets#1", "YOLO"))
	assert.False(t, p.CheckActorAllowed(logger, "", "acme/widgets#1", "YOLO"))
}

func TestCheckActorAllowedIgnoresDaemonItself(t *testing.T) {
	p := NewPolicy("alice", "boardrunner-bot", nil)
	logger := discardLogger()
	assert.False(t, p.CheckActorAllowed(logger, "boardrunner-bot", "acme/widgets#1", "STATUS"))
}
