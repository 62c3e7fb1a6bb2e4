// Package hub owns the set of live rooms, one actor per session. All room
// lookup and lifecycle goes through the hub's inbox so the map has a single
// writer; rooms themselves run independently once created.
package hub

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/internal/engine"
	"github.com/pointdeck/pointdeck/internal/room"
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	SessionID string
	State     *engine.State
	Reply     chan *room.Room
}

type GetRoom struct {
	SessionID string
	Reply     chan *room.Room
}

// EnsureRoom returns the existing room or creates one from State. Used by
// the websocket layer, where the session row may already exist in the
// store but no room is live yet.
type EnsureRoom struct {
	SessionID string
	State     *engine.State // only used if creation happens
	Reply     chan *room.Room
}

type RemoveRoom struct {
	SessionID string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox   chan HubMsg
	rooms   map[string]*room.Room
	clock   clockwork.Clock
	log     *zap.Logger
	persist room.Persister
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, clock clockwork.Clock, log *zap.Logger, persist room.Persister) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		rooms:   make(map[string]*room.Room),
		clock:   clock,
		log:     log.Named("hub"),
		persist: persist,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if rm := h.rooms[msg.SessionID]; rm != nil {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.create(msg.SessionID, msg.State)

			case GetRoom:
				msg.Reply <- h.rooms[msg.SessionID] // May be nil

			case EnsureRoom:
				if rm := h.rooms[msg.SessionID]; rm != nil {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.create(msg.SessionID, msg.State)

			case RemoveRoom:
				if rm := h.rooms[msg.SessionID]; rm != nil {
					rm.Inbox() <- room.Shutdown{}
					delete(h.rooms, msg.SessionID)
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(sessionID string, state *engine.State) *room.Room {
	rm := room.NewRoom(h.ctx, state, h.clock, h.log, h.persist)
	h.rooms[sessionID] = rm
	h.log.Info("room created", zap.String("session_id", sessionID))
	return rm
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Inbox() <- room.Shutdown{}
	}
	clear(h.rooms)
	h.cancel()
}
