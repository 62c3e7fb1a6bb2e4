// Package presence holds the pure pieces of player presence tracking:
// heartbeat staleness and deterministic host promotion. The session state
// machine owns the per-player online/lastSeen fields; the room actor feeds
// sweep ticks through it using these helpers.
package presence

import (
	"sort"
	"time"
)

const (
	// HeartbeatInterval is what clients are told to send at.
	HeartbeatInterval = 15 * time.Second
	// OfflineTimeout is how long a silent player stays online. Missing
	// heartbeats demote presence; they never hard-disconnect.
	OfflineTimeout = 45 * time.Second
	// SweepInterval is how often a room scans for stale players.
	SweepInterval = 10 * time.Second
)

// Candidate is a player eligible for a presence decision.
type Candidate struct {
	ID         string
	JoinedAt   time.Time
	LastSeenAt time.Time
}

// NextHost picks the replacement host from the given candidates (callers
// pass only online, non-spectator players): earliest joined wins, ties
// broken by ID so every node agrees.
func NextHost(cands []Candidate) (string, bool) {
	if len(cands) == 0 {
		return "", false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.JoinedAt.Before(best.JoinedAt) ||
			(c.JoinedAt.Equal(best.JoinedAt) && c.ID < best.ID) {
			best = c
		}
	}
	return best.ID, true
}

// Stale returns the IDs whose last heartbeat is older than timeout, sorted
// for deterministic demotion order.
func Stale(cands []Candidate, now time.Time, timeout time.Duration) []string {
	var out []string
	for _, c := range cands {
		if now.Sub(c.LastSeenAt) > timeout {
			out = append(out, c.ID)
		}
	}
	sort.Strings(out)
	return out
}
