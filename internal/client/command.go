package client

import (
	"github.com/pointdeck/pointdeck/pkg/types"
)

// Command is one user action with an optimistic local effect. Apply runs
// immediately on submit; Compensate undoes exactly that effect when the
// server rejects the command. Server broadcasts themselves are never
// compensated.
type Command interface {
	Message() types.ClientMessage
	// ConfirmEvent is the broadcast type whose arrival (for this player)
	// settles the command.
	ConfirmEvent() string
	Apply(m *Mirror)
	Compensate(m *Mirror)
}

// VoteCommand submits or changes this player's vote on the active story.
type VoteCommand struct {
	PlayerID   string
	StoryID    string
	Value      string
	Confidence int

	added bool // whether Apply added us to HasVoted
}

func (c *VoteCommand) Message() types.ClientMessage {
	return types.ClientMessage{
		Type:       types.MsgSubmitVote,
		StoryID:    c.StoryID,
		Value:      c.Value,
		Confidence: c.Confidence,
	}
}

func (c *VoteCommand) ConfirmEvent() string { return types.EvtVoteSubmitted }

func (c *VoteCommand) Apply(m *Mirror) {
	if m.State == nil {
		return
	}
	if !hasVoted(m.State, c.PlayerID) {
		m.State.Flow.HasVoted = append(m.State.Flow.HasVoted, c.PlayerID)
		m.State.Flow.VoteCount++
		c.added = true
	}
}

func (c *VoteCommand) Compensate(m *Mirror) {
	if m.State == nil || !c.added {
		return
	}
	kept := m.State.Flow.HasVoted[:0]
	for _, id := range m.State.Flow.HasVoted {
		if id != c.PlayerID {
			kept = append(kept, id)
		}
	}
	m.State.Flow.HasVoted = kept
	m.State.Flow.VoteCount--
}

// StoryCommand creates a story optimistically; the server assigns the
// canonical ID on echo, so the placeholder is removed either way.
type StoryCommand struct {
	Title       string
	Description string

	placeholder string
}

func (c *StoryCommand) Message() types.ClientMessage {
	return types.ClientMessage{
		Type:        types.MsgCreateStory,
		Title:       c.Title,
		Description: c.Description,
	}
}

func (c *StoryCommand) ConfirmEvent() string { return types.EvtStoryCreated }

func (c *StoryCommand) Apply(m *Mirror) {
	if m.State == nil {
		return
	}
	c.placeholder = "pending-" + c.Title
	m.State.Stories = append(m.State.Stories, types.StorySnapshot{
		ID:         c.placeholder,
		Title:      c.Title,
		OrderIndex: len(m.State.Stories),
	})
}

// Confirm swaps the placeholder for the ID the server assigned.
func (c *StoryCommand) Confirm(m *Mirror, msg types.ServerMessage) {
	if m.State == nil || c.placeholder == "" {
		return
	}
	for i := range m.State.Stories {
		if m.State.Stories[i].ID == c.placeholder {
			m.State.Stories[i].ID = msg.StoryID
			return
		}
	}
}

func (c *StoryCommand) Compensate(m *Mirror) {
	if m.State == nil || c.placeholder == "" {
		return
	}
	kept := m.State.Stories[:0]
	for _, st := range m.State.Stories {
		if st.ID != c.placeholder {
			kept = append(kept, st)
		}
	}
	m.State.Stories = kept
}
