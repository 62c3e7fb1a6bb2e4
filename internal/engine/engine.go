package engine

import (
	"time"

	"github.com/pointdeck/pointdeck/internal/consensus"
	"github.com/pointdeck/pointdeck/internal/presence"
	"github.com/pointdeck/pointdeck/internal/timer"
	"github.com/pointdeck/pointdeck/pkg/types"
)

type CommandType string

const (
	CmdPlayerJoin       CommandType = "PlayerJoin"
	CmdPlayerDisconnect CommandType = "PlayerDisconnect"
	CmdPlayerUpdate     CommandType = "PlayerUpdate"
	CmdPlayerRemove     CommandType = "PlayerRemove"
	CmdHeartbeat        CommandType = "Heartbeat"
	CmdActivity         CommandType = "Activity"
	CmdSweep            CommandType = "Sweep"
	CmdAddStory         CommandType = "AddStory"
	CmdUpdateStory      CommandType = "UpdateStory"
	CmdActivateStory    CommandType = "ActivateStory"
	CmdDeleteStory      CommandType = "DeleteStory"
	CmdSubmitVote       CommandType = "SubmitVote"
	CmdReveal           CommandType = "Reveal"
	CmdReset            CommandType = "Reset"
	CmdCompleteStory    CommandType = "CompleteStory"
	CmdReopenStory      CommandType = "ReopenStory"
	CmdTimerStart       CommandType = "TimerStart"
	CmdTimerPause       CommandType = "TimerPause"
	CmdTimerResume      CommandType = "TimerResume"
	CmdTimerStop        CommandType = "TimerStop"
	CmdTimerReset       CommandType = "TimerReset"
	CmdTimerAdjust      CommandType = "TimerAdjust"
	CmdTimerExpired     CommandType = "TimerExpired"
)

// Command is one mutating request against a session. PlayerID is the
// issuer; Now is stamped by the room actor before Apply so the engine never
// reads the wall clock itself.
type Command struct {
	Type          CommandType
	PlayerID      string
	TargetID      string // PlayerRemove target; PlayerID stays the issuer
	StoryID       string
	Title         string
	Description   string
	Value         string
	Confidence    int
	FinalEstimate string
	Seconds       int
	Mode          timer.Mode
	Player        *Player // populated for PlayerJoin / PlayerUpdate
	Now           time.Time
}

type EventType string

const (
	EvtPlayerJoined        EventType = EventType(types.EvtPlayerJoined)
	EvtPlayerLeft          EventType = EventType(types.EvtPlayerLeft)
	EvtPlayerReconnected   EventType = EventType(types.EvtPlayerReconnected)
	EvtPlayerUpdated       EventType = EventType(types.EvtPlayerUpdated)
	EvtPlayerRemoved       EventType = EventType(types.EvtPlayerRemoved)
	EvtPlayerPromoted      EventType = EventType(types.EvtPlayerPromoted)
	EvtPlayerStatusChanged EventType = EventType(types.EvtPlayerStatusChanged)
	EvtVoteSubmitted       EventType = EventType(types.EvtVoteSubmitted)
	EvtCardsRevealed       EventType = EventType(types.EvtCardsRevealed)
	EvtGameReset           EventType = EventType(types.EvtGameReset)
	EvtStoryCreated        EventType = EventType(types.EvtStoryCreated)
	EvtStoryUpdated        EventType = EventType(types.EvtStoryUpdated)
	EvtStoryDeleted        EventType = EventType(types.EvtStoryDeleted)
	EvtStoryActivated      EventType = EventType(types.EvtStoryActivated)
	EvtStoryCompleted      EventType = EventType(types.EvtStoryCompleted)
	EvtStoryReopened       EventType = EventType(types.EvtStoryReopened)
	EvtTimerUpdated        EventType = EventType(types.EvtTimerUpdated)
)

type Event struct {
	Type         EventType
	PlayerID     string
	StoryID      string
	VoteCount    int
	TotalPlayers int
	Votes        []types.VoteSnapshot
	Consensus    *types.ConsensusResult
	Timer        *types.TimerSnapshot
}

// Apply runs one command against the session state. It either returns the
// resulting events after mutating the state, or an error having touched
// nothing: validation happens up front, mutation only after every check has
// passed. Callers serialize Apply per session (single writer).
func Apply(s *State, cmd Command) ([]Event, error) {
	if s.expired(cmd.Now) && !presenceOnly(cmd.Type) {
		return nil, ErrSessionExpired
	}

	switch cmd.Type {
	case CmdPlayerJoin:
		return applyJoin(s, cmd)
	case CmdPlayerDisconnect:
		return applyDisconnect(s, cmd)
	case CmdPlayerUpdate:
		return applyPlayerUpdate(s, cmd)
	case CmdPlayerRemove:
		return applyPlayerRemove(s, cmd)
	case CmdHeartbeat, CmdActivity:
		return applySeen(s, cmd)
	case CmdSweep:
		return applySweep(s, cmd)
	case CmdAddStory:
		return applyAddStory(s, cmd)
	case CmdUpdateStory:
		return applyUpdateStory(s, cmd)
	case CmdActivateStory:
		return applyActivateStory(s, cmd)
	case CmdDeleteStory:
		return applyDeleteStory(s, cmd)
	case CmdSubmitVote:
		return applySubmitVote(s, cmd)
	case CmdReveal:
		return applyReveal(s, cmd)
	case CmdReset:
		return applyReset(s, cmd)
	case CmdCompleteStory:
		return applyCompleteStory(s, cmd)
	case CmdReopenStory:
		return applyReopenStory(s, cmd)
	case CmdTimerStart, CmdTimerPause, CmdTimerResume, CmdTimerStop, CmdTimerReset, CmdTimerAdjust:
		return applyTimer(s, cmd)
	case CmdTimerExpired:
		return applyTimerExpired(s, cmd)
	default:
		return nil, ErrUnsupportedCommand
	}
}

// presenceOnly commands keep bookkeeping honest even on an expired session,
// which stays readable but inert.
func presenceOnly(t CommandType) bool {
	return t == CmdPlayerDisconnect || t == CmdSweep || t == CmdHeartbeat
}

func applyJoin(s *State, cmd Command) ([]Event, error) {
	p := cmd.Player
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	if existing, ok := s.Players[p.ID]; ok {
		existing.IsOnline = true
		existing.LastSeenAt = cmd.Now
		return []Event{{Type: EvtPlayerReconnected, PlayerID: p.ID}}, nil
	}
	if p.IsSpectator && !s.Session.Config.AllowSpectators {
		return nil, ErrSpectatorsNotAllowed
	}

	joined := *p
	joined.SessionID = s.Session.ID
	joined.IsOnline = true
	joined.IsHost = false
	if joined.JoinedAt.IsZero() {
		joined.JoinedAt = cmd.Now
	}
	joined.LastSeenAt = cmd.Now
	s.Players[joined.ID] = &joined

	events := []Event{{Type: EvtPlayerJoined, PlayerID: joined.ID}}
	if s.Session.HostID == "" && !joined.IsSpectator {
		joined.IsHost = true
		s.Session.HostID = joined.ID
		events = append(events, Event{Type: EvtPlayerPromoted, PlayerID: joined.ID})
	}
	return events, nil
}

func applyDisconnect(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	if !p.IsOnline {
		return nil, nil
	}
	p.IsOnline = false
	p.LastSeenAt = cmd.Now

	// An explicit disconnect is a departure; the timeout sweep's silent
	// demotion stays a status change.
	events := []Event{{Type: EvtPlayerLeft, PlayerID: p.ID}}
	events = append(events, reassignHost(s, p.ID)...)
	// A voter's submitted vote survives their disconnect; a non-voter
	// leaving lowers the participation threshold and may complete the round.
	events = append(events, evaluateAutoReveal(s, cmd.Now)...)
	return events, nil
}

func applySeen(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	p.LastSeenAt = cmd.Now
	if !p.IsOnline {
		p.IsOnline = true
		return []Event{{Type: EvtPlayerStatusChanged, PlayerID: p.ID}}, nil
	}
	return nil, nil
}

func applySweep(s *State, cmd Command) ([]Event, error) {
	var cands []presence.Candidate
	for _, p := range s.Players {
		if p.IsOnline {
			cands = append(cands, presence.Candidate{ID: p.ID, JoinedAt: p.JoinedAt, LastSeenAt: p.LastSeenAt})
		}
	}

	var events []Event
	for _, id := range presence.Stale(cands, cmd.Now, presence.OfflineTimeout) {
		p := s.Players[id]
		p.IsOnline = false
		events = append(events, Event{Type: EvtPlayerStatusChanged, PlayerID: id})
		events = append(events, reassignHost(s, id)...)
	}
	if len(events) > 0 {
		events = append(events, evaluateAutoReveal(s, cmd.Now)...)
	}
	return events, nil
}

func applyPlayerUpdate(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	upd := cmd.Player
	if upd == nil {
		return nil, ErrPlayerNotFound
	}
	if upd.IsSpectator && !s.Session.Config.AllowSpectators {
		return nil, ErrSpectatorsNotAllowed
	}

	p.Name = upd.Name
	p.Avatar = upd.Avatar
	becameSpectator := !p.IsSpectator && upd.IsSpectator
	p.IsSpectator = upd.IsSpectator

	events := []Event{{Type: EvtPlayerUpdated, PlayerID: p.ID}}
	if becameSpectator {
		if p.IsHost {
			events = append(events, reassignHost(s, p.ID)...)
		}
		events = append(events, evaluateAutoReveal(s, cmd.Now)...)
	}
	return events, nil
}

func applyPlayerRemove(s *State, cmd Command) ([]Event, error) {
	if err := requireHost(s, cmd.PlayerID); err != nil {
		return nil, err
	}
	victim, ok := s.Players[cmd.TargetID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	delete(s.Players, victim.ID)

	events := []Event{{Type: EvtPlayerRemoved, PlayerID: victim.ID}}
	events = append(events, reassignHost(s, victim.ID)...)
	events = append(events, evaluateAutoReveal(s, cmd.Now)...)
	return events, nil
}

func applyAddStory(s *State, cmd Command) ([]Event, error) {
	if err := requireHost(s, cmd.PlayerID); err != nil {
		return nil, err
	}
	story := &Story{
		ID:          cmd.StoryID,
		SessionID:   s.Session.ID,
		Title:       cmd.Title,
		Description: cmd.Description,
		OrderIndex:  s.nextOrderIndex(),
		CreatedAt:   cmd.Now,
	}
	first := len(s.Stories) == 0
	s.Stories = append(s.Stories, story)

	events := []Event{{Type: EvtStoryCreated, StoryID: story.ID, PlayerID: cmd.PlayerID}}
	if first {
		story.IsActive = true
		s.Flow = Flow{}
		events = append(events, Event{Type: EvtStoryActivated, StoryID: story.ID})
	}
	return events, nil
}

func applyUpdateStory(s *State, cmd Command) ([]Event, error) {
	if err := requireHost(s, cmd.PlayerID); err != nil {
		return nil, err
	}
	story := s.story(cmd.StoryID)
	if story == nil {
		return nil, ErrStoryNotFound
	}
	story.Title = cmd.Title
	story.Description = cmd.Description
	return []Event{{Type: EvtStoryUpdated, StoryID: story.ID}}, nil
}

func applyActivateStory(s *State, cmd Command) ([]Event, error) {
	if err := requireHost(s, cmd.PlayerID); err != nil {
		return nil, err
	}
	next := s.story(cmd.StoryID)
	if next == nil {
		return nil, ErrStoryNotFound
	}
	if next.CompletedAt != nil {
		return nil, ErrStoryCompleted
	}

	// The outgoing story keeps whatever voting history reveal snapshotted;
	// only the live flow and the incoming story's stale votes are cleared.
	for _, st := range s.Stories {
		st.IsActive = false
	}
	next.IsActive = true
	s.Flow = Flow{}
	s.Votes.Clear(next.ID)
	return []Event{{Type: EvtStoryActivated, StoryID: next.ID}}, nil
}

func applyDeleteStory(s *State, cmd Command) ([]Event, error) {
	if err := requireHost(s, cmd.PlayerID); err != nil {
		return nil, err
	}
	story := s.story(cmd.StoryID)
	if story == nil {
		return nil, ErrStoryNotFound
	}
	wasActive := story.IsActive

	kept := s.Stories[:0]
	for _, st := range s.Stories {
		if st.ID != story.ID {
			kept = append(kept, st)
		}
	}
	s.Stories = kept

	events := []Event{{Type: EvtStoryDeleted, StoryID: story.ID}}
	if wasActive {
		s.Flow = Flow{}
		if len(s.Stories) > 0 {
			next := s.Stories[0] // lowest order index; Stories stays sorted
			next.IsActive = true
			s.Votes.Clear(next.ID)
			events = append(events, Event{Type: EvtStoryActivated, StoryID: next.ID})
		}
	}
	return events, nil
}

func applySubmitVote(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	if p.IsSpectator {
		return nil, ErrSpectatorCannotVote
	}
	active := s.activeStory()
	if active == nil {
		return nil, ErrNoActiveStory
	}
	if cmd.StoryID != "" && cmd.StoryID != active.ID {
		return nil, ErrStoryMismatch
	}
	if s.Flow.IsRevealed {
		return nil, ErrAlreadyRevealed
	}
	if !s.Session.Config.ValidValue(cmd.Value) {
		return nil, ErrInvalidVote
	}

	// Upsert: changing a vote before reveal never duplicates.
	s.Votes.Put(active.ID, p.ID, cmd.Value, cmd.Confidence, cmd.Now)
	p.LastSeenAt = cmd.Now

	voteCount := s.Votes.CountDistinctPlayers(active.ID)
	events := []Event{{
		Type:         EvtVoteSubmitted,
		PlayerID:     p.ID,
		StoryID:      active.ID,
		VoteCount:    voteCount,
		TotalPlayers: s.onlineVoterCount(),
	}}
	events = append(events, evaluateAutoReveal(s, cmd.Now)...)
	return events, nil
}

func applyReveal(s *State, cmd Command) ([]Event, error) {
	if err := requireHost(s, cmd.PlayerID); err != nil {
		return nil, err
	}
	active := s.activeStory()
	if active == nil {
		return nil, ErrNoActiveStory
	}
	if cmd.StoryID != "" && cmd.StoryID != active.ID {
		return nil, ErrStoryMismatch
	}
	if s.Flow.IsRevealed {
		return nil, ErrAlreadyRevealed
	}
	if s.Votes.CountDistinctPlayers(active.ID) == 0 {
		return nil, ErrNoVotes
	}
	return []Event{reveal(s, active, cmd.Now)}, nil
}

func applyReset(s *State, cmd Command) ([]Event, error) {
	if err := requireHost(s, cmd.PlayerID); err != nil {
		return nil, err
	}
	active := s.activeStory()
	if active == nil {
		return nil, ErrNoActiveStory
	}
	// A host may abort mid-round; reveal is not required. History already
	// snapshotted on prior rounds stays put.
	s.Flow = Flow{}
	s.Votes.Clear(active.ID)
	return []Event{{Type: EvtGameReset, StoryID: active.ID}}, nil
}

func applyCompleteStory(s *State, cmd Command) ([]Event, error) {
	if err := requireHost(s, cmd.PlayerID); err != nil {
		return nil, err
	}
	story := s.story(cmd.StoryID)
	if story == nil {
		return nil, ErrStoryNotFound
	}
	now := cmd.Now
	story.CompletedAt = &now
	story.FinalEstimate = cmd.FinalEstimate
	if story.IsActive {
		story.IsActive = false
		s.Flow = Flow{}
	}
	return []Event{{Type: EvtStoryCompleted, StoryID: story.ID}}, nil
}

func applyReopenStory(s *State, cmd Command) ([]Event, error) {
	if err := requireHost(s, cmd.PlayerID); err != nil {
		return nil, err
	}
	story := s.story(cmd.StoryID)
	if story == nil {
		return nil, ErrStoryNotFound
	}
	// Reopening clears completion; it does not reactivate the story.
	story.CompletedAt = nil
	story.FinalEstimate = ""
	return []Event{{Type: EvtStoryReopened, StoryID: story.ID}}, nil
}

func applyTimer(s *State, cmd Command) ([]Event, error) {
	if err := requireHost(s, cmd.PlayerID); err != nil {
		return nil, err
	}

	switch cmd.Type {
	case CmdTimerStart:
		seconds := cmd.Seconds
		if seconds <= 0 {
			seconds = s.Session.Config.DefaultTimerSeconds
		}
		mode := cmd.Mode
		if mode == "" || mode == timer.ModeNone {
			mode = timer.ModeCountdown
		}
		s.Timer = s.Timer.Start(cmd.Now, time.Duration(seconds)*time.Second, mode)
		s.Timer.Warning = 10 * time.Second
		s.Timer.AutoReveal = s.Session.Config.AutoReveal
	case CmdTimerPause:
		s.Timer = s.Timer.Pause(cmd.Now)
	case CmdTimerResume:
		s.Timer = s.Timer.Resume(cmd.Now)
	case CmdTimerStop, CmdTimerReset:
		s.Timer = s.Timer.Stop()
	case CmdTimerAdjust:
		s.Timer = s.Timer.Adjust(cmd.Now, time.Duration(cmd.Seconds)*time.Second)
	}

	snap := s.timerSnapshot()
	return []Event{{Type: EvtTimerUpdated, Timer: &snap}}, nil
}

// applyTimerExpired handles the room's scheduled countdown fire. A stale
// fire (timer restarted or stopped since scheduling) is dropped silently.
func applyTimerExpired(s *State, cmd Command) ([]Event, error) {
	if !s.Timer.Expired(cmd.Now) {
		return nil, nil
	}
	s.Timer = s.Timer.Stop()
	snap := s.timerSnapshot()
	events := []Event{{Type: EvtTimerUpdated, Timer: &snap}}

	if !s.Timer.AutoReveal {
		return events, nil
	}
	active := s.activeStory()
	if active == nil || s.Flow.IsRevealed {
		return events, nil
	}
	// Zero votes at expiry: nothing to reveal, the round just stops timing.
	if s.Votes.CountDistinctPlayers(active.ID) == 0 {
		return events, nil
	}
	events = append(events, reveal(s, active, cmd.Now))
	return events, nil
}

// reveal computes consensus, freezes the round onto the story's voting
// history, and marks the flow revealed. Callers have already validated.
func reveal(s *State, active *Story, now time.Time) Event {
	recorded := s.Votes.Get(active.ID)
	voteSnaps := make([]types.VoteSnapshot, 0, len(recorded))
	values := make([]string, 0, len(recorded))
	for _, v := range recorded {
		voteSnaps = append(voteSnaps, types.VoteSnapshot{PlayerID: v.PlayerID, Value: v.Value, Confidence: v.Confidence})
		values = append(values, v.Value)
	}
	result := consensus.Calculate(values)

	s.Flow.IsRevealed = true
	s.Flow.AutoFired = true
	s.Flow.Result = &result
	s.Flow.RevealedAt = now
	active.VotingHistory = &types.HistorySnapshot{
		Votes:      voteSnaps,
		Consensus:  result,
		RevealedAt: now,
	}

	return Event{
		Type:         EvtCardsRevealed,
		StoryID:      active.ID,
		VoteCount:    len(recorded),
		TotalPlayers: s.onlineVoterCount(),
		Votes:        voteSnaps,
		Consensus:    &result,
	}
}

// evaluateAutoReveal re-checks the participation threshold. The threshold
// tracks currently online non-spectator players, so it is re-evaluated
// after every submission and after every presence demotion. AutoFired
// makes the trigger edge-triggered: once per round, reset only by
// reset/activation.
func evaluateAutoReveal(s *State, now time.Time) []Event {
	if !s.Session.Config.AutoReveal {
		return nil
	}
	if s.Flow.IsRevealed || s.Flow.AutoFired {
		return nil
	}
	active := s.activeStory()
	if active == nil {
		return nil
	}
	total := s.onlineVoterCount()
	if total == 0 {
		return nil
	}
	if s.Votes.CountDistinctPlayers(active.ID) < total {
		return nil
	}
	return []Event{reveal(s, active, now)}
}

// reassignHost promotes the earliest-joined online non-spectator when the
// current host leaves, goes offline, or is removed. Promotion is an event,
// never silent.
func reassignHost(s *State, departedID string) []Event {
	if s.Session.HostID != departedID {
		return nil
	}
	if p, ok := s.Players[departedID]; ok {
		p.IsHost = false
	}
	s.Session.HostID = ""

	var cands []presence.Candidate
	for _, p := range s.Players {
		if p.ID != departedID && p.IsOnline && !p.IsSpectator {
			cands = append(cands, presence.Candidate{ID: p.ID, JoinedAt: p.JoinedAt})
		}
	}
	id, ok := presence.NextHost(cands)
	if !ok {
		return nil
	}
	s.Players[id].IsHost = true
	s.Session.HostID = id
	return []Event{{Type: EvtPlayerPromoted, PlayerID: id}}
}

func requireHost(s *State, playerID string) error {
	p, ok := s.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	if !p.IsHost {
		return ErrNotHost
	}
	return nil
}
