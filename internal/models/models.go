// Package models holds the daemon's persisted record types.
package models

import "time"

// Board is one configured polling target: a repo/project the daemon
// watches, with its own status vocabulary and authorized operator.
type Board struct {
	ID              string
	Repo            string // "hostname/owner/repo" or "owner/repo"
	ProjectURL      string
	WatchedStatuses []string
	AllowedUsername string
	CreatedAt       time.Time
}

// IssueState is the per-item cursor the Store keeps between poll
// cycles: when the item was last touched, and how far the
// CommentReactor has read.
type IssueState struct {
	Repo          string
	TicketID      int
	UpdatedAt     time.Time
	LastCommentAt *time.Time
}

// RunOutcome is the terminal state of a dispatched workflow run.
type RunOutcome string

const (
	OutcomeSuccess   RunOutcome = "success"
	OutcomeFailure   RunOutcome = "failure"
	OutcomeCancelled RunOutcome = "cancelled"
)

// RunHistory is one completed (or in-flight) workflow run, kept for
// audit and for the `runs` CLI command.
type RunHistory struct {
	ID         string
	Repo       string
	TicketID   int
	Workflow   string
	StartedAt  time.Time
	FinishedAt *time.Time
	Outcome    RunOutcome
	SessionRef string
}
