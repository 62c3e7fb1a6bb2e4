package room

import (
	"time"

	"github.com/pointdeck/pointdeck/internal/engine"
)

// Persister receives durable-state changes after the engine has applied
// them. Record must not block; implementations queue internally. A nil
// persister means the session lives in memory only.
type Persister interface {
	Record(ev MirrorEvent)
}

// MirrorEvent is one durable mutation, flattened to plain values so the
// persister never touches live engine state.
type MirrorEvent struct {
	Type      engine.EventType
	SessionID string
	PlayerID  string
	StoryID   string
	HostID    string

	Name        string
	Avatar      string
	IsSpectator bool

	Title         string
	Description   string
	OrderIndex    int
	IsActive      bool
	FinalEstimate string
	CompletedAt   *time.Time
	StoryCreated  time.Time

	Value      string
	Confidence int
	At         time.Time
}

// mirrorEvent flattens an engine event into its durable form. Presence,
// timer and reveal events are live-only and yield nothing.
func (r *Room) mirrorEvent(e engine.Event) (MirrorEvent, bool) {
	me := MirrorEvent{
		Type:      e.Type,
		SessionID: r.state.Session.ID,
		PlayerID:  e.PlayerID,
		StoryID:   e.StoryID,
	}

	switch e.Type {
	case engine.EvtVoteSubmitted:
		for _, v := range r.state.Votes.Get(e.StoryID) {
			if v.PlayerID == e.PlayerID {
				me.Value = v.Value
				me.Confidence = v.Confidence
				me.At = v.CreatedAt
				return me, true
			}
		}
		return MirrorEvent{}, false

	case engine.EvtGameReset, engine.EvtStoryDeleted, engine.EvtPlayerRemoved:
		return me, true

	case engine.EvtStoryCreated, engine.EvtStoryUpdated, engine.EvtStoryCompleted, engine.EvtStoryReopened:
		for _, st := range r.state.Stories {
			if st.ID == e.StoryID {
				me.Title = st.Title
				me.Description = st.Description
				me.OrderIndex = st.OrderIndex
				me.IsActive = st.IsActive
				me.FinalEstimate = st.FinalEstimate
				me.CompletedAt = st.CompletedAt
				me.StoryCreated = st.CreatedAt
				return me, true
			}
		}
		return MirrorEvent{}, false

	case engine.EvtStoryActivated:
		return me, true

	case engine.EvtPlayerPromoted:
		me.HostID = e.PlayerID
		return me, true

	case engine.EvtPlayerUpdated:
		if p, ok := r.state.Players[e.PlayerID]; ok {
			me.Name = p.Name
			me.Avatar = p.Avatar
			me.IsSpectator = p.IsSpectator
			return me, true
		}
		return MirrorEvent{}, false
	}
	return MirrorEvent{}, false
}
