package ticket

import "strings"

// DefaultHost is the hostname used when a repo identifier carries none,
// matching plain github.com.
const DefaultHost = "github.com"

// SplitRepo parses a "hostname/owner/repo" or bare "owner/repo" identifier
// into its host and "owner/repo" parts. GHES instances are addressed by
// carrying their hostname as the leading segment; github.com repos may
// omit it.
func SplitRepo(repo string) (host, ownerRepo string) {
	parts := strings.Split(repo, "/")
	if len(parts) == 3 {
		return parts[0], parts[1] + "/" + parts[2]
	}
	return DefaultHost, repo
}

// JoinRepo is the inverse of SplitRepo: it builds the canonical identifier
// for a host and an "owner/repo" pair, omitting the host segment when it
// is the default so existing github.com identifiers stay unchanged.
func JoinRepo(host, ownerRepo string) string {
	if host == "" || host == DefaultHost {
		return ownerRepo
	}
	return host + "/" + ownerRepo
}

// hostFlag returns the gh CLI arguments needed to target host, empty for
// the default github.com.
func hostFlag(host string) []string {
	if host == "" || host == DefaultHost {
		return nil
	}
	return []string{"--hostname", host}
}
