package engine

import (
	"sort"
	"time"

	"github.com/pointdeck/pointdeck/internal/timer"
	"github.com/pointdeck/pointdeck/internal/votes"
	"github.com/pointdeck/pointdeck/pkg/types"
)

type Session struct {
	ID        string
	Name      string
	Config    types.SessionConfig
	HostID    string
	Active    bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Player struct {
	ID          string
	SessionID   string
	Name        string
	Avatar      string
	IsSpectator bool
	IsHost      bool
	IsOnline    bool
	JoinedAt    time.Time
	LastSeenAt  time.Time
}

type Story struct {
	ID            string
	SessionID     string
	Title         string
	Description   string
	OrderIndex    int
	IsActive      bool
	FinalEstimate string
	CreatedAt     time.Time
	CompletedAt   *time.Time
	VotingHistory *types.HistorySnapshot
}

// Flow is the derived per-round voting state. Reset to zero whenever a new
// story activates or the host resets; AutoFired latches the auto-reveal
// trigger for the round.
type Flow struct {
	IsRevealed bool
	AutoFired  bool
	Result     *types.ConsensusResult
	RevealedAt time.Time
}

// State is the canonical server-side aggregate for one session. The owning
// room actor is its single writer; every client only ever sees snapshots.
type State struct {
	Session Session
	Players map[string]*Player
	Stories []*Story // kept sorted by OrderIndex
	Votes   *votes.Memory
	Flow    Flow
	Timer   timer.State
}

func NewState(sess Session) *State {
	return &State{
		Session: sess,
		Players: make(map[string]*Player),
		Votes:   votes.NewMemory(),
	}
}

func (s *State) expired(now time.Time) bool {
	return !s.Session.ExpiresAt.IsZero() && now.After(s.Session.ExpiresAt)
}

func (s *State) story(id string) *Story {
	for _, st := range s.Stories {
		if st.ID == id {
			return st
		}
	}
	return nil
}

func (s *State) activeStory() *Story {
	for _, st := range s.Stories {
		if st.IsActive {
			return st
		}
	}
	return nil
}

func (s *State) nextOrderIndex() int {
	max := -1
	for _, st := range s.Stories {
		if st.OrderIndex > max {
			max = st.OrderIndex
		}
	}
	return max + 1
}

// onlineVoterCount is the auto-reveal denominator: currently online
// non-spectator players.
func (s *State) onlineVoterCount() int {
	n := 0
	for _, p := range s.Players {
		if p.IsOnline && !p.IsSpectator {
			n++
		}
	}
	return n
}

func (s *State) timerSnapshot() types.TimerSnapshot {
	t := s.Timer
	snap := types.TimerSnapshot{
		Mode:             string(t.Mode),
		DurationSeconds:  int(t.Duration / time.Second),
		RemainingSeconds: int(t.Remaining / time.Second),
		IsRunning:        t.IsRunning,
		IsPaused:         t.IsPaused,
		WarningSeconds:   int(t.Warning / time.Second),
		AutoReveal:       t.AutoReveal,
	}
	if snap.Mode == "" {
		snap.Mode = string(timer.ModeNone)
	}
	if !t.StartedAt.IsZero() {
		st := t.StartedAt
		snap.StartedAt = &st
	}
	if !t.PausedAt.IsZero() {
		pa := t.PausedAt
		snap.PausedAt = &pa
	}
	return snap
}

// Snapshot renders the full authoritative view at the given version. Vote
// values stay hidden until the round is revealed; who has voted is public.
func (s *State) Snapshot(version int) *types.SessionSnapshot {
	snap := &types.SessionSnapshot{
		Version:   version,
		SessionID: s.Session.ID,
		Name:      s.Session.Name,
		Config:    s.Session.Config,
		HostID:    s.Session.HostID,
		Active:    s.Session.Active,
		ExpiresAt: s.Session.ExpiresAt,
		Timer:     s.timerSnapshot(),
	}

	snap.Players = make([]types.PlayerSnapshot, 0, len(s.Players))
	for _, p := range s.Players {
		snap.Players = append(snap.Players, types.PlayerSnapshot{
			ID:          p.ID,
			Name:        p.Name,
			Avatar:      p.Avatar,
			IsSpectator: p.IsSpectator,
			IsHost:      p.IsHost,
			IsOnline:    p.IsOnline,
			JoinedAt:    p.JoinedAt,
			LastSeenAt:  p.LastSeenAt,
		})
	}
	sort.Slice(snap.Players, func(i, j int) bool {
		if snap.Players[i].JoinedAt.Equal(snap.Players[j].JoinedAt) {
			return snap.Players[i].ID < snap.Players[j].ID
		}
		return snap.Players[i].JoinedAt.Before(snap.Players[j].JoinedAt)
	})

	snap.Stories = make([]types.StorySnapshot, 0, len(s.Stories))
	for _, st := range s.Stories {
		snap.Stories = append(snap.Stories, types.StorySnapshot{
			ID:            st.ID,
			Title:         st.Title,
			Description:   st.Description,
			OrderIndex:    st.OrderIndex,
			IsActive:      st.IsActive,
			FinalEstimate: st.FinalEstimate,
			CompletedAt:   st.CompletedAt,
			VotingHistory: st.VotingHistory,
		})
	}

	if active := s.activeStory(); active != nil {
		flow := types.FlowSnapshot{
			ActiveStoryID: active.ID,
			IsRevealed:    s.Flow.IsRevealed,
			TotalPlayers:  s.onlineVoterCount(),
			HasVoted:      []string{},
			Consensus:     s.Flow.Result,
		}
		for _, v := range s.Votes.Get(active.ID) {
			flow.VoteCount++
			flow.HasVoted = append(flow.HasVoted, v.PlayerID)
			if s.Flow.IsRevealed {
				flow.Votes = append(flow.Votes, types.VoteSnapshot{
					PlayerID:   v.PlayerID,
					Value:      v.Value,
					Confidence: v.Confidence,
				})
			}
		}
		snap.Flow = flow
	}
	return snap
}
