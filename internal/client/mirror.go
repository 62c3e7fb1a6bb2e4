// Package client is the session-side counterpart to the server's room: it
// keeps a local mirror of the authoritative snapshot, applies the player's
// own commands optimistically, and reconciles against the server after a
// reconnect before anything new is sent.
package client

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/pointdeck/pointdeck/pkg/types"
)

var ErrCorruptMirror = errors.New("persisted mirror unreadable")

// MirrorMaxAge is the oldest a persisted mirror may be and still seed the
// local state; anything older starts from the server snapshot instead.
const MirrorMaxAge = time.Hour

// Mirror is the client's local copy of the session. Server broadcasts are
// applied unconditionally; optimistic local effects are rolled back when
// the server rejects the command that caused them.
type Mirror struct {
	State     *types.SessionSnapshot
	Version   int
	UpdatedAt time.Time
}

func (m *Mirror) ApplySnapshot(s *types.SessionSnapshot, now time.Time) {
	m.State = s
	m.Version = s.Version
	m.UpdatedAt = now
}

type mirrorBlob struct {
	Version int                    `json:"version"`
	SavedAt time.Time              `json:"saved_at"`
	State   *types.SessionSnapshot `json:"state"`
}

func (m *Mirror) Save(bs BlobStore, key string, now time.Time) error {
	data, err := json.Marshal(mirrorBlob{Version: m.Version, SavedAt: now, State: m.State})
	if err != nil {
		return err
	}
	return bs.Save(key, data)
}

// LoadMirror restores a persisted mirror. Blobs past MirrorMaxAge or that
// fail to parse are discarded; the caller starts cold.
func LoadMirror(bs BlobStore, key string, now time.Time) (*Mirror, error) {
	data, err := bs.Load(key)
	if err != nil {
		return nil, err
	}
	var blob mirrorBlob
	if err := json.Unmarshal(data, &blob); err != nil || blob.State == nil {
		_ = bs.Delete(key)
		return nil, ErrCorruptMirror
	}
	if now.Sub(blob.SavedAt) > MirrorMaxAge {
		_ = bs.Delete(key)
		return nil, ErrCorruptMirror
	}
	return &Mirror{State: blob.State, Version: blob.Version, UpdatedAt: blob.SavedAt}, nil
}

// Outcome reports what reconciliation decided beyond the merged state.
type Outcome struct {
	// ResubmitVote is set when the local mirror believed this player had
	// voted on the active story but the server does not. The vote is never
	// guessed; the player submits again.
	ResubmitVote bool
}

// Reconcile merges a fresh authoritative snapshot into the mirror.
// Stories and flow always follow the server. Player sets merge with the
// server winning per-player; players only the mirror knows about are kept,
// shown offline, until the server confirms either way.
func (m *Mirror) Reconcile(server *types.SessionSnapshot, selfID string, now time.Time) Outcome {
	var out Outcome

	if m.State != nil && m.State.Flow.ActiveStoryID == server.Flow.ActiveStoryID {
		if hasVoted(m.State, selfID) && !hasVoted(server, selfID) {
			out.ResubmitVote = true
		}
	}

	merged := *server
	if m.State != nil {
		seen := make(map[string]bool, len(server.Players))
		for _, p := range server.Players {
			seen[p.ID] = true
		}
		for _, p := range m.State.Players {
			if !seen[p.ID] {
				p.IsOnline = false
				merged.Players = append(merged.Players, p)
			}
		}
		sort.Slice(merged.Players, func(i, j int) bool {
			if merged.Players[i].JoinedAt.Equal(merged.Players[j].JoinedAt) {
				return merged.Players[i].ID < merged.Players[j].ID
			}
			return merged.Players[i].JoinedAt.Before(merged.Players[j].JoinedAt)
		})
	}

	m.ApplySnapshot(&merged, now)
	return out
}

func hasVoted(s *types.SessionSnapshot, playerID string) bool {
	for _, id := range s.Flow.HasVoted {
		if id == playerID {
			return true
		}
	}
	return false
}
