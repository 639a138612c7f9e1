// Package authz categorizes the actor behind a status or label change
// and decides whether it is allowed to drive the trigger policy. It is
// the daemon's security fail-safe: an actor it cannot positively
// identify as the configured operator is never trusted to start a
// workflow, and the daemon's own writes are recognized separately so
// they never retrigger themselves.
package authz

import "log/slog"

// Category classifies an observed actor for authorization purposes.
type Category int

const (
	// Unknown means the actor could not be determined at all (empty
	// audit result). Fail-safe default.
	Unknown Category = iota
	// Self is the configured, fully-authorized operator — the only
	// category CheckActorAllowed ever approves.
	Self
	// Team is a recognized collaborator whose actions are observed but
	// never trigger workflows.
	Team
	// Blocked is a known actor who is not authorized.
	Blocked
)

func (c Category) String() string {
	switch c {
	case Self:
		return "self"
	case Team:
		return "team"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Policy holds the configured identities used to categorize actors.
// AllowedUsername is the single operator whose yolo/reset/status
// actions are honored. DaemonUsername is the
// identity the adapter writes under (the RaceGuard claimer); it is
// checked separately so the daemon never reacts to its own writes.
type Policy struct {
	AllowedUsername string
	DaemonUsername  string
	TeamUsernames   map[string]bool
}

// NewPolicy builds a Policy from the operator identity, the daemon's own
// write identity, and a team roster observed but never acted on.
func NewPolicy(allowedUsername, daemonUsername string, team []string) Policy {
	set := make(map[string]bool, len(team))
	for _, u := range team {
		set[u] = true
	}
	return Policy{AllowedUsername: allowedUsername, DaemonUsername: daemonUsername, TeamUsernames: set}
}

// Categorize maps an actor username (as returned by an adapter's
// last_status_actor / last_label_actor) onto a Category.
func (p Policy) Categorize(actor string) Category {
	if actor == "" {
		return Unknown
	}
	if actor == p.AllowedUsername {
		return Self
	}
	if p.TeamUsernames[actor] {
		return Team
	}
	return Blocked
}

// IsDaemonItself reports whether actor is the identity the daemon
// itself writes under, independent of Categorize.
func (p Policy) IsDaemonItself(actor string) bool {
	return actor != "" && actor == p.DaemonUsername
}

// CheckActorAllowed reports whether actor may trigger an action against
// contextKey (e.g. "owner/repo#123"), logging the outcome: a
// self-authored change from the daemon's own identity is ignored at
// DEBUG to prevent self-trigger loops; blocked and unknown actors are
// logged at WARNING; only the configured operator is ever allowed.
func (p Policy) CheckActorAllowed(logger *slog.Logger, actor, contextKey, actionType string) bool {
	if p.IsDaemonItself(actor) {
		logger.Debug("ignoring self-authored change", "action", actionType, "context", contextKey)
		return false
	}

	switch p.Categorize(actor) {
	case Self:
		return true
	case Team:
		logger.Debug("observed team actor, not acting", "actor", actor, "action", actionType, "context", contextKey)
		return false
	case Unknown:
		logger.Warn("could not determine actor, denying for safety", "action", actionType, "context", contextKey)
		return false
	default: // Blocked
		logger.Warn("action by disallowed actor", "actor", actor, "action", actionType, "context", contextKey)
		return false
	}
}
