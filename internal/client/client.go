package client

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/pkg/types"
)

// Conn sends one message to the server. The websocket wrapper implements
// it; tests substitute a recorder.
type Conn interface {
	Send(msg types.ClientMessage) error
}

type connState int

const (
	stateDisconnected connState = iota
	stateReconciling
	stateReady
	stateFailed
)

const (
	mirrorKey = "mirror"
	queueKey  = "offline"
)

// pendingCmd is an in-flight command awaiting its server echo.
type pendingCmd struct {
	cmd    Command
	sentAt time.Time
}

// Client drives one player's view of a session. Not safe for concurrent
// use; the owner serializes Submit and HandleServer, the same way the
// server side serializes through the room.
type Client struct {
	sessionID string
	playerID  string

	conn    Conn
	state   connState
	mirror  *Mirror
	pending []pendingCmd
	offline *Queue
	backoff Backoff

	blobs BlobStore
	clock clockwork.Clock
	log   *zap.Logger
}

// NewClient restores whatever survived the last run: a fresh-enough
// persisted mirror seeds the local state, and unexpired offline commands
// wait for the next reconnect.
func NewClient(sessionID, playerID string, blobs BlobStore, clock clockwork.Clock, log *zap.Logger) *Client {
	c := &Client{
		sessionID: sessionID,
		playerID:  playerID,
		mirror:    &Mirror{},
		offline:   NewQueue(DefaultQueueCap, OfflineTTL),
		blobs:     blobs,
		clock:     clock,
		log:       log.Named("client"),
	}
	now := clock.Now()
	if m, err := LoadMirror(blobs, mirrorKey, now); err == nil {
		c.mirror = m
	} else if errors.Is(err, ErrCorruptMirror) {
		c.log.Warn("discarded persisted mirror")
	}
	if err := c.offline.Load(blobs, queueKey, now); err != nil {
		c.log.Warn("offline queue load failed", zap.Error(err))
	}
	return c
}

func (c *Client) Mirror() *Mirror { return c.mirror }

// Ready reports whether reconciliation has completed and commands flow to
// the server directly.
func (c *Client) Ready() bool { return c.state == stateReady }

// Submit runs the command's optimistic effect and either sends it or, when
// offline or still reconciling, queues it for replay.
func (c *Client) Submit(cmd Command) {
	now := c.clock.Now()
	cmd.Apply(c.mirror)

	if c.state != stateReady || c.conn == nil {
		if evicted, ok := c.offline.Push(c.stamp(cmd.Message()), now); ok {
			c.log.Warn("offline queue full, dropped oldest",
				zap.String("type", evicted.Msg.Type))
		}
		c.persist(now)
		return
	}
	c.send(cmd, now)
}

// Connected attaches a live connection. Nothing is sent until the server's
// first snapshot has been reconciled. A user-driven rejoin after failure
// comes through here too, with a fresh attempt budget.
func (c *Client) Connected(conn Conn) {
	if c.state == stateFailed {
		c.backoff.Reset()
	}
	c.conn = conn
	c.state = stateReconciling
}

// Disconnected drops the connection and persists state. It returns how
// long to wait before the next attempt, or false once the attempt budget
// is spent: the client is then failed and the player must rejoin.
func (c *Client) Disconnected() (time.Duration, bool) {
	c.conn = nil
	c.persist(c.clock.Now())

	delay, ok := c.backoff.Next()
	if !ok {
		c.state = stateFailed
		c.log.Error("reconnect attempts exhausted, giving up")
		return 0, false
	}
	c.state = stateDisconnected
	return delay, true
}

// Failed reports that reconnection has been abandoned. Only an explicit
// Connected (a user-driven rejoin) leaves this state.
func (c *Client) Failed() bool { return c.state == stateFailed }

// HandleServer applies one inbound message. Broadcasts always win; only
// this client's own rejected commands are compensated.
func (c *Client) HandleServer(msg types.ServerMessage) {
	now := c.clock.Now()
	c.expirePending(now)

	switch msg.Type {
	case types.EvtSessionJoined, types.EvtStateSnapshot:
		if msg.State == nil {
			return
		}
		out := c.mirror.Reconcile(msg.State, c.playerID, now)
		if out.ResubmitVote {
			c.log.Info("vote missing on server after reconnect, resubmission required")
		}
		c.backoff.Reset()
		if c.state == stateReconciling {
			c.state = stateReady
			c.replayOffline(now)
		}
		c.persist(now)
		return

	case types.EvtSessionError:
		// The room answers a rejected command on the issuing connection
		// only, in submission order.
		if len(c.pending) > 0 {
			p := c.pending[0]
			c.pending = c.pending[1:]
			p.cmd.Compensate(c.mirror)
			c.log.Debug("command rejected, rolled back",
				zap.String("code", msg.ErrorCode))
		}
		return
	}

	c.confirmPending(msg)
	c.applyBroadcast(msg)
}

func (c *Client) send(cmd Command, now time.Time) {
	if err := c.conn.Send(c.stamp(cmd.Message())); err != nil {
		cmd.Compensate(c.mirror)
		if delay, ok := c.Disconnected(); ok {
			c.log.Warn("send failed, disconnecting", zap.Duration("retry_in", delay), zap.Error(err))
		}
		return
	}
	c.pending = append(c.pending, pendingCmd{cmd: cmd, sentAt: now})
}

// replayOffline flushes queued commands in their original order, exactly
// once each. Runs only after reconciliation completes.
func (c *Client) replayOffline(now time.Time) {
	for _, qc := range c.offline.Drain(now) {
		if err := c.conn.Send(qc.Msg); err != nil {
			c.log.Warn("replay aborted", zap.Error(err))
			c.Disconnected()
			return
		}
	}
	c.persist(now)
}

func (c *Client) confirmPending(msg types.ServerMessage) {
	if len(c.pending) == 0 {
		return
	}
	p := c.pending[0]
	if msg.Type != p.cmd.ConfirmEvent() {
		return
	}
	if msg.PlayerID != "" && msg.PlayerID != c.playerID {
		return
	}
	c.pending = c.pending[1:]
	if conf, ok := p.cmd.(interface {
		Confirm(m *Mirror, msg types.ServerMessage)
	}); ok {
		conf.Confirm(c.mirror, msg)
	}
}

// applyBroadcast folds a granular event into the mirror. Anything the
// event stream cannot express precisely is recovered by the next snapshot.
func (c *Client) applyBroadcast(msg types.ServerMessage) {
	if c.mirror.State == nil {
		return
	}
	s := c.mirror.State
	switch msg.Type {
	case types.EvtVoteSubmitted:
		if !hasVoted(s, msg.PlayerID) {
			s.Flow.HasVoted = append(s.Flow.HasVoted, msg.PlayerID)
		}
		s.Flow.VoteCount = msg.VoteCount
		s.Flow.TotalPlayers = msg.TotalPlayers
	case types.EvtCardsRevealed:
		s.Flow.IsRevealed = true
		s.Flow.Votes = msg.Votes
		s.Flow.Consensus = msg.Consensus
	case types.EvtGameReset:
		s.Flow.IsRevealed = false
		s.Flow.VoteCount = 0
		s.Flow.HasVoted = nil
		s.Flow.Votes = nil
		s.Flow.Consensus = nil
	case types.EvtTimerUpdated:
		if msg.Timer != nil {
			s.Timer = *msg.Timer
		}
	}
	if msg.Version > 0 {
		c.mirror.Version = msg.Version
		s.Version = msg.Version
	}
	c.mirror.UpdatedAt = c.clock.Now()
}

// expirePending compensates commands whose echo never arrived within the
// submission TTL; their effect must not linger as phantom local state.
func (c *Client) expirePending(now time.Time) {
	kept := c.pending[:0]
	for _, p := range c.pending {
		if now.Sub(p.sentAt) <= SubmissionTTL {
			kept = append(kept, p)
		} else {
			p.cmd.Compensate(c.mirror)
		}
	}
	c.pending = kept
}

func (c *Client) stamp(msg types.ClientMessage) types.ClientMessage {
	msg.SessionID = c.sessionID
	msg.PlayerID = c.playerID
	msg.LastSeenVersion = c.mirror.Version
	return msg
}

func (c *Client) persist(now time.Time) {
	if c.mirror.State != nil {
		if err := c.mirror.Save(c.blobs, mirrorKey, now); err != nil {
			c.log.Warn("mirror persist failed", zap.Error(err))
		}
	}
	if err := c.offline.Save(c.blobs, queueKey); err != nil {
		c.log.Warn("queue persist failed", zap.Error(err))
	}
}
