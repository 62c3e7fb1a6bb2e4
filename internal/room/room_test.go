package room

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/internal/engine"
	"github.com/pointdeck/pointdeck/pkg/types"
)

func testState(clock clockwork.Clock) *engine.State {
	now := clock.Now()
	s := engine.NewState(engine.Session{
		ID:   "sess1",
		Name: "room test",
		Config: types.SessionConfig{
			Deck:                []string{"1", "2", "3", "5", "8"},
			AutoReveal:          true,
			DefaultTimerSeconds: 60,
		},
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	})
	s.Players["host"] = &engine.Player{
		ID: "host", SessionID: "sess1", Name: "host",
		IsHost: true, IsOnline: true, JoinedAt: now, LastSeenAt: now,
	}
	s.Session.HostID = "host"
	s.Stories = append(s.Stories, &engine.Story{
		ID: "s1", SessionID: "sess1", Title: "story", IsActive: true, CreatedAt: now,
	})
	return s
}

// recvMsg receives one message with a timeout so tests never hang.
func recvMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) types.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return types.ServerMessage{} // unreachable
	}
}

// recvType drains until a message of the wanted type arrives.
func recvType(t *testing.T, ch <-chan types.ServerMessage, want string, within time.Duration) types.ServerMessage {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				t.Fatalf("client outbox closed while waiting for %s", want)
			}
			if msg.Type == want {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
			return types.ServerMessage{} // unreachable
		}
	}
}

func recvView(t *testing.T, r *Room, within time.Duration) View {
	t.Helper()
	reply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func join(r *Room, clientID string, p *engine.Player, buf int) chan types.ServerMessage {
	out := make(chan types.ServerMessage, buf)
	r.Inbox() <- Join{ClientID: clientID, Player: p, Outbox: out}
	return out
}

func TestRoom_JoinSendsSnapshotThenVoteBroadcasts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, testState(clock), clock, zap.NewNop(), nil)

	out := join(r, "c1", &engine.Player{ID: "host", Name: "host"}, 8)
	joined := recvType(t, out, types.EvtSessionJoined, time.Second)
	if joined.State == nil || joined.State.SessionID != "sess1" {
		t.Fatalf("join should carry the full snapshot, got %+v", joined)
	}
	v0 := joined.Version

	r.Inbox() <- FromClient{ClientID: "c1", Cmd: engine.Command{
		Type: engine.CmdSubmitVote, PlayerID: "host", Value: "5",
	}}

	msg := recvType(t, out, types.EvtVoteSubmitted, time.Second)
	if msg.Version <= v0 {
		t.Fatalf("version should increase on vote: %d -> %d", v0, msg.Version)
	}
	if msg.PlayerID != "host" || msg.VoteCount != 1 {
		t.Fatalf("vote broadcast wrong: %+v", msg)
	}
}

func TestRoom_RejectedCommandErrorsOnlyIssuer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, testState(clock), clock, zap.NewNop(), nil)

	hostOut := join(r, "c1", &engine.Player{ID: "host", Name: "host"}, 8)
	recvType(t, hostOut, types.EvtSessionJoined, time.Second)

	otherOut := join(r, "c2", &engine.Player{ID: "p2", Name: "bea"}, 8)
	recvType(t, otherOut, types.EvtSessionJoined, time.Second)

	// Non-host tries to reveal with zero votes.
	r.Inbox() <- FromClient{ClientID: "c2", Cmd: engine.Command{
		Type: engine.CmdReveal, PlayerID: "p2",
	}}

	errMsg := recvType(t, otherOut, types.EvtSessionError, time.Second)
	if errMsg.ErrorCode != "not_host" {
		t.Fatalf("error code: got %q, want not_host", errMsg.ErrorCode)
	}

	// The host sees presence traffic but no error; a subsequent view shows
	// no version change from the rejected command.
	before := recvView(t, r, time.Second)
	r.Inbox() <- FromClient{ClientID: "c2", Cmd: engine.Command{
		Type: engine.CmdReveal, PlayerID: "p2",
	}}
	recvType(t, otherOut, types.EvtSessionError, time.Second)
	after := recvView(t, r, time.Second)
	if after.Version != before.Version {
		t.Fatalf("rejected command bumped version: %d -> %d", before.Version, after.Version)
	}
}

func TestRoom_DropSlowClient(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, testState(clock), clock, zap.NewNop(), nil)

	// Buffer of 1 fills on the join broadcast and overflows right after.
	out := join(r, "c1", &engine.Player{ID: "host", Name: "host"}, 1)
	_ = out

	r.Inbox() <- FromClient{ClientID: "c1", Cmd: engine.Command{
		Type: engine.CmdSubmitVote, PlayerID: "host", Value: "5",
	}}

	view := recvView(t, r, time.Second)
	if view.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
}

func TestRoom_HeartbeatAck(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, testState(clock), clock, zap.NewNop(), nil)
	out := join(r, "c1", &engine.Player{ID: "host", Name: "host"}, 8)
	recvType(t, out, types.EvtSessionJoined, time.Second)

	r.Inbox() <- FromClient{ClientID: "c1", Cmd: engine.Command{
		Type: engine.CmdHeartbeat, PlayerID: "host",
	}}

	ack := recvType(t, out, types.EvtHeartbeatAck, time.Second)
	if ack.ServerTime == 0 {
		t.Fatalf("heartbeat ack should carry server time")
	}
}

func TestRoom_SyncRequestReturnsSnapshot(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, testState(clock), clock, zap.NewNop(), nil)
	out := join(r, "c1", &engine.Player{ID: "host", Name: "host"}, 8)
	recvType(t, out, types.EvtSessionJoined, time.Second)

	r.Inbox() <- SyncRequest{ClientID: "c1"}
	snap := recvType(t, out, types.EvtStateSnapshot, time.Second)
	if snap.State == nil {
		t.Fatalf("sync should return full state")
	}
}

func TestRoom_CountdownFiresAutoReveal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, testState(clock), clock, zap.NewNop(), nil)
	out := join(r, "c1", &engine.Player{ID: "host", Name: "host"}, 16)
	recvType(t, out, types.EvtSessionJoined, time.Second)

	// One vote in, then a 5s countdown. The second online voter never
	// votes, so only timer expiry can end the round.
	p2Out := join(r, "c2", &engine.Player{ID: "p2", Name: "bea"}, 16)
	recvType(t, p2Out, types.EvtSessionJoined, time.Second)

	r.Inbox() <- FromClient{ClientID: "c1", Cmd: engine.Command{
		Type: engine.CmdSubmitVote, PlayerID: "host", Value: "5",
	}}
	recvType(t, out, types.EvtVoteSubmitted, time.Second)

	r.Inbox() <- FromClient{ClientID: "c1", Cmd: engine.Command{
		Type: engine.CmdTimerStart, PlayerID: "host", Seconds: 5,
	}}
	recvType(t, out, types.EvtTimerUpdated, time.Second)

	clock.Advance(6 * time.Second)

	revealed := recvType(t, out, types.EvtCardsRevealed, 2*time.Second)
	if revealed.Consensus == nil || len(revealed.Votes) != 1 {
		t.Fatalf("expiry reveal payload wrong: %+v", revealed)
	}
}

func TestRoom_ShutdownClosesClients(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, testState(clock), clock, zap.NewNop(), nil)
	out := join(r, "c1", &engine.Player{ID: "host", Name: "host"}, 8)
	recvType(t, out, types.EvtSessionJoined, time.Second)

	r.Inbox() <- Shutdown{}

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return // closed, as expected
			}
		case <-deadline:
			t.Fatalf("outbox never closed after shutdown")
		}
	}
}
