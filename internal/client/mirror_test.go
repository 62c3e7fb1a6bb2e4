package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointdeck/pointdeck/pkg/types"
)

var mt0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func snapshot(version int) *types.SessionSnapshot {
	return &types.SessionSnapshot{
		Version:   version,
		SessionID: "ABC123",
		Flow:      types.FlowSnapshot{ActiveStoryID: "s1"},
	}
}

func TestMirror_PersistRoundTrip(t *testing.T) {
	bs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	m := &Mirror{}
	m.ApplySnapshot(snapshot(7), mt0)
	require.NoError(t, m.Save(bs, "m", mt0))

	got, err := LoadMirror(bs, "m", mt0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 7, got.Version)
	assert.Equal(t, "ABC123", got.State.SessionID)
}

func TestMirror_TooOldIsDiscarded(t *testing.T) {
	bs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	m := &Mirror{}
	m.ApplySnapshot(snapshot(1), mt0)
	require.NoError(t, m.Save(bs, "m", mt0))

	_, err = LoadMirror(bs, "m", mt0.Add(MirrorMaxAge+time.Minute))
	assert.ErrorIs(t, err, ErrCorruptMirror)

	// The blob is gone; the next load starts cold.
	_, err = bs.Load("m")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestMirror_CorruptIsDiscarded(t *testing.T) {
	bs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, bs.Save("m", []byte("not json")))

	_, err = LoadMirror(bs, "m", mt0)
	assert.ErrorIs(t, err, ErrCorruptMirror)
}

func TestReconcile_ServerWinsStories(t *testing.T) {
	m := &Mirror{}
	local := snapshot(3)
	local.Stories = []types.StorySnapshot{{ID: "local-only", Title: "stale"}}
	m.ApplySnapshot(local, mt0)

	server := snapshot(9)
	server.Stories = []types.StorySnapshot{{ID: "s1", Title: "authoritative"}}
	m.Reconcile(server, "p1", mt0.Add(time.Second))

	require.Len(t, m.State.Stories, 1)
	assert.Equal(t, "s1", m.State.Stories[0].ID)
	assert.Equal(t, 9, m.Version)
}

func TestReconcile_MergesPlayersPreferringServer(t *testing.T) {
	m := &Mirror{}
	local := snapshot(3)
	local.Players = []types.PlayerSnapshot{
		{ID: "p1", Name: "old name", JoinedAt: mt0},
		{ID: "p2", Name: "only local", IsOnline: true, JoinedAt: mt0.Add(time.Second)},
	}
	m.ApplySnapshot(local, mt0)

	server := snapshot(9)
	server.Players = []types.PlayerSnapshot{{ID: "p1", Name: "new name", JoinedAt: mt0}}
	m.Reconcile(server, "p1", mt0.Add(time.Second))

	require.Len(t, m.State.Players, 2)
	assert.Equal(t, "new name", m.State.Players[0].Name)
	assert.Equal(t, "p2", m.State.Players[1].ID)
	assert.False(t, m.State.Players[1].IsOnline, "unconfirmed players show offline")
}

func TestReconcile_VoteMismatchFlagsResubmission(t *testing.T) {
	m := &Mirror{}
	local := snapshot(3)
	local.Flow.HasVoted = []string{"p1"}
	m.ApplySnapshot(local, mt0)

	server := snapshot(9) // same active story, no vote recorded
	out := m.Reconcile(server, "p1", mt0.Add(time.Second))

	assert.True(t, out.ResubmitVote)
	assert.Empty(t, m.State.Flow.HasVoted, "the vote value is never guessed")
}

func TestReconcile_DifferentStoryNoResubmission(t *testing.T) {
	m := &Mirror{}
	local := snapshot(3)
	local.Flow.HasVoted = []string{"p1"}
	m.ApplySnapshot(local, mt0)

	server := snapshot(9)
	server.Flow.ActiveStoryID = "s2"
	out := m.Reconcile(server, "p1", mt0.Add(time.Second))

	assert.False(t, out.ResubmitVote, "a vote on a finished round is not replayed onto a new story")
}
