// Package votes holds the per-(story, player) vote mapping. The single
// invariant: no two entries ever exist for the same (storyID, playerID)
// pair. A later Put for the same pair updates the value in place, keeping
// the original insertion position and timestamp.
package votes

import "time"

type Vote struct {
	StoryID    string
	PlayerID   string
	Value      string
	Confidence int
	CreatedAt  time.Time
}

type key struct {
	storyID  string
	playerID string
}

// Memory is the in-memory vote store used inside the session state machine.
// It is not safe for concurrent use; the owning room actor is the single
// writer.
type Memory struct {
	byKey map[key]int // index into entries
	order []Vote
}

func NewMemory() *Memory {
	return &Memory{byKey: make(map[key]int)}
}

// Put upserts the vote for (storyID, playerID). Returns true when the pair
// was new, false when an existing vote was updated.
func (m *Memory) Put(storyID, playerID, value string, confidence int, now time.Time) bool {
	k := key{storyID, playerID}
	if i, ok := m.byKey[k]; ok {
		m.order[i].Value = value
		m.order[i].Confidence = confidence
		return false
	}
	m.byKey[k] = len(m.order)
	m.order = append(m.order, Vote{
		StoryID:    storyID,
		PlayerID:   playerID,
		Value:      value,
		Confidence: confidence,
		CreatedAt:  now,
	})
	return true
}

// Get returns all votes for a story in insertion order.
func (m *Memory) Get(storyID string) []Vote {
	var out []Vote
	for _, v := range m.order {
		if v.StoryID == storyID {
			out = append(out, v)
		}
	}
	return out
}

func (m *Memory) Has(storyID, playerID string) bool {
	_, ok := m.byKey[key{storyID, playerID}]
	return ok
}

// CountDistinctPlayers feeds the auto-reveal threshold check.
func (m *Memory) CountDistinctPlayers(storyID string) int {
	n := 0
	for _, v := range m.order {
		if v.StoryID == storyID {
			n++
		}
	}
	return n
}

// Clear drops every vote for the story. Used on round reset; snapshotted
// voting history on prior stories is unaffected.
func (m *Memory) Clear(storyID string) {
	kept := m.order[:0]
	for _, v := range m.order {
		if v.StoryID != storyID {
			kept = append(kept, v)
		}
	}
	m.order = kept
	m.byKey = make(map[key]int, len(m.order))
	for i, v := range m.order {
		m.byKey[key{v.StoryID, v.PlayerID}] = i
	}
}

// Values returns just the vote values for a story, in insertion order.
func (m *Memory) Values(storyID string) []string {
	var out []string
	for _, v := range m.order {
		if v.StoryID == storyID {
			out = append(out, v.Value)
		}
	}
	return out
}
