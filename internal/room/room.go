// Package room runs one goroutine per session: the single writer through
// which every mutating operation for that session is funneled. Commands
// come in on a typed inbox, state changes go out as broadcast messages on
// per-client outbox channels. Different sessions are fully independent.
package room

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/internal/engine"
	"github.com/pointdeck/pointdeck/internal/presence"
	"github.com/pointdeck/pointdeck/internal/timer"
	"github.com/pointdeck/pointdeck/pkg/types"
)

type Msg interface{ isRoomMsg() }

// Join registers a client connection and its player with the session. The
// current snapshot is sent to the new client immediately.
type Join struct {
	ClientID string
	Player   *engine.Player
	Outbox   chan types.ServerMessage
}

func (Join) isRoomMsg() {}

// Leave drops the connection and marks the player disconnected. Their
// already-submitted vote stays intact; only presence changes.
type Leave struct {
	ClientID string
	PlayerID string
}

func (Leave) isRoomMsg() {}

// FromClient carries one engine command from a connection. Errors are sent
// back to that client only; successful results broadcast to everyone.
type FromClient struct {
	ClientID string
	Cmd      engine.Command
}

func (FromClient) isRoomMsg() {}

// SyncRequest asks for a fresh full snapshot, the recovery path for any
// client that missed events.
type SyncRequest struct{ ClientID string }

func (SyncRequest) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// GetState reads a consistent view through the actor, for the REST
// snapshot endpoint and tests.
type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	Version    int
	NumClients int
	Snapshot   *types.SessionSnapshot
}

type timerFired struct{ gen int }

func (timerFired) isRoomMsg() {}

type Room struct {
	inbox    chan Msg
	state    *engine.State
	version  int
	clients  map[string]chan types.ServerMessage
	clock    clockwork.Clock
	log      *zap.Logger
	persist  Persister // nil for memory-only sessions
	timerGen int
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewRoom(parent context.Context, initial *engine.State, clock clockwork.Clock, log *zap.Logger, persist Persister) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		inbox:   make(chan Msg, 64),
		state:   initial,
		clients: make(map[string]chan types.ServerMessage),
		clock:   clock,
		log:     log.With(zap.String("session_id", initial.Session.ID)),
		persist: persist,
		ctx:     ctx,
		cancel:  cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	sweep := r.clock.NewTicker(presence.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-sweep.Chan():
			r.apply("", engine.Command{Type: engine.CmdSweep, Now: r.clock.Now()})

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.clients[msg.ClientID] = msg.Outbox
				r.apply(msg.ClientID, engine.Command{
					Type:   engine.CmdPlayerJoin,
					Player: msg.Player,
					Now:    r.clock.Now(),
				})
				r.sendTo(msg.ClientID, types.ServerMessage{
					Type:    types.EvtSessionJoined,
					Version: r.version,
					State:   r.state.Snapshot(r.version),
				})

			case Leave:
				delete(r.clients, msg.ClientID)
				if msg.PlayerID != "" {
					r.apply("", engine.Command{
						Type:     engine.CmdPlayerDisconnect,
						PlayerID: msg.PlayerID,
						Now:      r.clock.Now(),
					})
				}

			case FromClient:
				cmd := msg.Cmd
				cmd.Now = r.clock.Now()
				err := r.apply(msg.ClientID, cmd)
				if cmd.Type == engine.CmdHeartbeat && err == nil {
					r.sendTo(msg.ClientID, types.ServerMessage{
						Type:       types.EvtHeartbeatAck,
						Version:    r.version,
						ServerTime: r.clock.Now().UnixMilli(),
					})
				}

			case SyncRequest:
				r.sendTo(msg.ClientID, types.ServerMessage{
					Type:    types.EvtStateSnapshot,
					Version: r.version,
					State:   r.state.Snapshot(r.version),
				})

			case timerFired:
				// A fire from a timer armed for an earlier round or duration
				// is stale; the engine double-checks against derived time.
				if msg.gen != r.timerGen {
					break
				}
				r.apply("", engine.Command{Type: engine.CmdTimerExpired, Now: r.clock.Now()})

			case GetState:
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.clients),
					Snapshot:   r.state.Snapshot(r.version),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

// apply runs one command, bumps the version when it changed anything, and
// broadcasts the resulting events. A rejected command is reported to the
// issuing client only; the session state is untouched.
func (r *Room) apply(clientID string, cmd engine.Command) error {
	events, err := engine.Apply(r.state, cmd)
	if err != nil {
		r.log.Debug("command rejected",
			zap.String("command", string(cmd.Type)),
			zap.Error(err))
		if clientID != "" {
			r.sendTo(clientID, types.ServerMessage{
				Type:      types.EvtSessionError,
				Version:   r.version,
				ErrorCode: engine.Code(err),
				Error:     err.Error(),
			})
		}
		return err
	}
	if len(events) == 0 {
		return nil
	}

	r.version++
	for _, e := range events {
		r.broadcast(r.toMessage(e))
		if r.persist != nil {
			if me, ok := r.mirrorEvent(e); ok {
				r.persist.Record(me)
			}
		}
	}
	r.armTimer()
	return nil
}

func (r *Room) toMessage(e engine.Event) types.ServerMessage {
	return types.ServerMessage{
		Type:         string(e.Type),
		Version:      r.version,
		PlayerID:     e.PlayerID,
		StoryID:      e.StoryID,
		VoteCount:    e.VoteCount,
		TotalPlayers: e.TotalPlayers,
		Votes:        e.Votes,
		Consensus:    e.Consensus,
		Timer:        e.Timer,
	}
}

// armTimer schedules the next countdown expiry. The generation counter
// makes fires from superseded timers no-ops.
func (r *Room) armTimer() {
	r.timerGen++
	t := r.state.Timer
	if !t.IsRunning || t.Mode != timer.ModeCountdown {
		return
	}
	remaining := t.Derived(r.clock.Now())
	gen := r.timerGen
	fire := r.clock.NewTimer(remaining)
	go func() {
		defer fire.Stop()
		select {
		case <-fire.Chan():
			select {
			case r.inbox <- timerFired{gen: gen}:
			case <-r.ctx.Done():
			}
		case <-r.ctx.Done():
		}
	}()
}

func (r *Room) sendTo(clientID string, msg types.ServerMessage) {
	ch, ok := r.clients[clientID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		// Client is slow/full - drop them.
		close(ch)
		delete(r.clients, clientID)
	}
}

func (r *Room) broadcast(msg types.ServerMessage) {
	for id, ch := range r.clients {
		select {
		case ch <- msg:
		default:
			close(ch)
			delete(r.clients, id)
			r.log.Warn("dropped slow client", zap.String("client_id", id))
		}
	}
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
}
