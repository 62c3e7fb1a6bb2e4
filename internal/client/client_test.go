package client

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/pkg/types"
)

type fakeConn struct {
	sent []types.ClientMessage
	err  error
}

func (f *fakeConn) Send(m types.ClientMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func newTestClient(t *testing.T, clock clockwork.Clock) *Client {
	t.Helper()
	bs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewClient("ABC123", "p1", bs, clock, zap.NewNop())
}

func joined(version int) types.ServerMessage {
	s := snapshot(version)
	return types.ServerMessage{Type: types.EvtSessionJoined, Version: version, State: s}
}

func TestClient_OfflineCommandsReplayInOrderOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(mt0)
	c := newTestClient(t, clock)

	c.Submit(&VoteCommand{PlayerID: "p1", StoryID: "s1", Value: "5"})
	clock.Advance(time.Second)
	c.Submit(&StoryCommand{Title: "next story"})

	conn := &fakeConn{}
	c.Connected(conn)
	assert.Empty(t, conn.sent, "nothing goes out before reconciliation")

	c.HandleServer(joined(4))

	require.Len(t, conn.sent, 2)
	assert.Equal(t, types.MsgSubmitVote, conn.sent[0].Type)
	assert.Equal(t, types.MsgCreateStory, conn.sent[1].Type)

	// A second snapshot must not replay them again.
	c.HandleServer(types.ServerMessage{Type: types.EvtStateSnapshot, Version: 5, State: snapshot(5)})
	assert.Len(t, conn.sent, 2)
}

func TestClient_ExpiredOfflineCommandNotReplayed(t *testing.T) {
	clock := clockwork.NewFakeClockAt(mt0)
	c := newTestClient(t, clock)

	c.Submit(&VoteCommand{PlayerID: "p1", StoryID: "s1", Value: "5"})
	clock.Advance(OfflineTTL + time.Minute)

	conn := &fakeConn{}
	c.Connected(conn)
	c.HandleServer(joined(4))

	assert.Empty(t, conn.sent)
}

func TestClient_RejectionRollsBackOptimisticEffect(t *testing.T) {
	clock := clockwork.NewFakeClockAt(mt0)
	c := newTestClient(t, clock)

	conn := &fakeConn{}
	c.Connected(conn)
	c.HandleServer(joined(1))
	require.True(t, c.Ready())

	c.Submit(&VoteCommand{PlayerID: "p1", StoryID: "s1", Value: "5"})
	assert.Contains(t, c.Mirror().State.Flow.HasVoted, "p1")

	c.HandleServer(types.ServerMessage{Type: types.EvtSessionError, ErrorCode: "invalid_vote"})
	assert.NotContains(t, c.Mirror().State.Flow.HasVoted, "p1")
}

func TestClient_BroadcastAppliesUnconditionally(t *testing.T) {
	clock := clockwork.NewFakeClockAt(mt0)
	c := newTestClient(t, clock)

	c.Connected(&fakeConn{})
	c.HandleServer(joined(1))

	c.HandleServer(types.ServerMessage{
		Type:    types.EvtCardsRevealed,
		Version: 2,
		Votes:   []types.VoteSnapshot{{PlayerID: "p2", Value: "8"}},
	})

	assert.True(t, c.Mirror().State.Flow.IsRevealed)
	assert.Equal(t, 2, c.Mirror().Version)
}

func TestClient_ConfirmSwapsStoryPlaceholder(t *testing.T) {
	clock := clockwork.NewFakeClockAt(mt0)
	c := newTestClient(t, clock)

	c.Connected(&fakeConn{})
	c.HandleServer(joined(1))

	c.Submit(&StoryCommand{Title: "login flow"})
	require.Len(t, c.Mirror().State.Stories, 1)

	c.HandleServer(types.ServerMessage{Type: types.EvtStoryCreated, Version: 2, StoryID: "real-id"})
	require.Len(t, c.Mirror().State.Stories, 1)
	assert.Equal(t, "real-id", c.Mirror().State.Stories[0].ID)
}

func TestClient_SendFailureDisconnects(t *testing.T) {
	clock := clockwork.NewFakeClockAt(mt0)
	c := newTestClient(t, clock)

	conn := &fakeConn{}
	c.Connected(conn)
	c.HandleServer(joined(1))

	conn.err = errors.New("broken pipe")
	c.Submit(&VoteCommand{PlayerID: "p1", StoryID: "s1", Value: "5"})

	assert.False(t, c.Ready())
	assert.NotContains(t, c.Mirror().State.Flow.HasVoted, "p1", "failed send is rolled back")
}

func TestClient_StateSurvivesRestart(t *testing.T) {
	clock := clockwork.NewFakeClockAt(mt0)
	bs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	c := NewClient("ABC123", "p1", bs, clock, zap.NewNop())
	c.Connected(&fakeConn{})
	c.HandleServer(joined(3))
	c.Disconnected()
	c.Submit(&VoteCommand{PlayerID: "p1", StoryID: "s1", Value: "5"})

	clock.Advance(10 * time.Minute)
	restarted := NewClient("ABC123", "p1", bs, clock, zap.NewNop())
	assert.Equal(t, 3, restarted.Mirror().Version, "persisted mirror seeds the restart")

	conn := &fakeConn{}
	restarted.Connected(conn)
	restarted.HandleServer(joined(4))
	require.Len(t, conn.sent, 1, "offline vote replays after restart")
	assert.Equal(t, types.MsgSubmitVote, conn.sent[0].Type)
}

func TestBackoff_CapsAndResets(t *testing.T) {
	var b Backoff

	d, ok := b.Next()
	require.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, d)
	d, _ = b.Next()
	assert.Equal(t, time.Second, d)
	d, _ = b.Next()
	assert.Equal(t, 2*time.Second, d)

	var last time.Duration
	for {
		d, ok := b.Next()
		if !ok {
			break
		}
		last = d
	}
	assert.Equal(t, backoffCap, last, "delay caps before the budget runs out")
	assert.True(t, b.Exhausted())

	b.Reset()
	d, ok = b.Next()
	require.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, d)
}

func TestBackoff_ExhaustsAfterBudget(t *testing.T) {
	var b Backoff
	for i := 0; i < backoffMaxAttempts; i++ {
		_, ok := b.Next()
		require.True(t, ok, "attempt %d should be within budget", i)
	}
	_, ok := b.Next()
	assert.False(t, ok)
	assert.True(t, b.Exhausted())
}

func TestClient_ReconnectBudgetExhaustionIsTerminal(t *testing.T) {
	clock := clockwork.NewFakeClockAt(mt0)
	c := newTestClient(t, clock)

	var gaveUp bool
	for i := 0; i <= backoffMaxAttempts; i++ {
		if _, ok := c.Disconnected(); !ok {
			gaveUp = true
			break
		}
	}
	require.True(t, gaveUp, "the retry loop must eventually surface a hard failure")
	assert.True(t, c.Failed())
	assert.False(t, c.Ready())

	// An explicit rejoin clears the failure and reconciles as usual.
	conn := &fakeConn{}
	c.Connected(conn)
	assert.False(t, c.Failed())
	c.HandleServer(joined(1))
	assert.True(t, c.Ready())
}

func TestClient_ForeignStoryEchoDoesNotConfirm(t *testing.T) {
	clock := clockwork.NewFakeClockAt(mt0)
	c := newTestClient(t, clock)
	c.Connected(&fakeConn{})
	c.HandleServer(joined(1))

	c.Submit(&StoryCommand{Title: "ours"})
	require.Len(t, c.Mirror().State.Stories, 1)
	placeholder := c.Mirror().State.Stories[0].ID

	// Another player creating a story at the same time must not claim our
	// placeholder; their broadcast names them as the issuer.
	c.HandleServer(types.ServerMessage{Type: types.EvtStoryCreated, Version: 2, StoryID: "theirs", PlayerID: "p2"})
	assert.Equal(t, placeholder, c.Mirror().State.Stories[0].ID)

	c.HandleServer(types.ServerMessage{Type: types.EvtStoryCreated, Version: 3, StoryID: "real-id", PlayerID: "p1"})
	assert.Equal(t, "real-id", c.Mirror().State.Stories[0].ID)
}
