package types

import "time"

// SessionSnapshot is the full authoritative view of one session. It is sent
// on join and on SyncRequest; a client holding any snapshot plus subsequent
// events can always fall back to a fresh snapshot to recover correctness.
//
// Vote values are masked (empty string) until the current round is revealed;
// HasVoted still shows who has submitted.
type SessionSnapshot struct {
	Version   int              `json:"version"`
	SessionID string           `json:"session_id"`
	Name      string           `json:"name"`
	Config    SessionConfig    `json:"config"`
	HostID    string           `json:"host_id,omitempty"`
	Active    bool             `json:"active"`
	ExpiresAt time.Time        `json:"expires_at"`
	Players   []PlayerSnapshot `json:"players"`
	Stories   []StorySnapshot  `json:"stories"`
	Flow      FlowSnapshot     `json:"flow"`
	Timer     TimerSnapshot    `json:"timer"`
}

type SessionConfig struct {
	Deck                []string `json:"deck"`
	AllowSpectators     bool     `json:"allow_spectators"`
	AutoReveal          bool     `json:"auto_reveal"`
	DefaultTimerSeconds int      `json:"default_timer_seconds"`
}

// ValidValue reports whether v is playable under this config. An empty
// deck accepts any non-empty token.
func (c SessionConfig) ValidValue(v string) bool {
	if v == "" {
		return false
	}
	if len(c.Deck) == 0 {
		return true
	}
	for _, card := range c.Deck {
		if card == v {
			return true
		}
	}
	return false
}

type PlayerSnapshot struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar,omitempty"`
	IsSpectator bool      `json:"is_spectator"`
	IsHost      bool      `json:"is_host"`
	IsOnline    bool      `json:"is_online"`
	JoinedAt    time.Time `json:"joined_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

type StorySnapshot struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Description   string           `json:"description,omitempty"`
	OrderIndex    int              `json:"order_index"`
	IsActive      bool             `json:"is_active"`
	FinalEstimate string           `json:"final_estimate,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	VotingHistory *HistorySnapshot `json:"voting_history,omitempty"`
}

// HistorySnapshot freezes a revealed round onto its story.
type HistorySnapshot struct {
	Votes      []VoteSnapshot  `json:"votes"`
	Consensus  ConsensusResult `json:"consensus"`
	RevealedAt time.Time       `json:"revealed_at"`
}

type VoteSnapshot struct {
	PlayerID   string `json:"player_id"`
	Value      string `json:"value"`
	Confidence int    `json:"confidence,omitempty"`
}

// FlowSnapshot is the derived per-round voting state.
type FlowSnapshot struct {
	ActiveStoryID string           `json:"active_story_id,omitempty"`
	IsRevealed    bool             `json:"is_revealed"`
	VoteCount     int              `json:"vote_count"`
	TotalPlayers  int              `json:"total_players"`
	HasVoted      []string         `json:"has_voted"`
	Votes         []VoteSnapshot   `json:"votes,omitempty"` // populated only once revealed
	Consensus     *ConsensusResult `json:"consensus,omitempty"`
}

type TimerSnapshot struct {
	Mode             string     `json:"mode"` // "countdown" | "stopwatch" | "none"
	DurationSeconds  int        `json:"duration_seconds"`
	RemainingSeconds int        `json:"remaining_seconds"`
	IsRunning        bool       `json:"is_running"`
	IsPaused         bool       `json:"is_paused"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	PausedAt         *time.Time `json:"paused_at,omitempty"`
	WarningSeconds   int        `json:"warning_seconds,omitempty"`
	AutoReveal       bool       `json:"auto_reveal"`
}

type ConsensusResult struct {
	Mean           float64        `json:"mean"`
	Median         float64        `json:"median"`
	Mode           []string       `json:"mode"`
	StdDev         float64        `json:"std_dev"`
	NumericCount   int            `json:"numeric_count"`
	HasConsensus   bool           `json:"has_consensus"`
	SuggestedValue string         `json:"suggested_value,omitempty"`
	Outliers       []float64      `json:"outliers,omitempty"`
	Distribution   map[string]int `json:"distribution"`
}
