// Package ws is the realtime transport adapter: it authenticates a
// (session, player) pair, bridges one websocket to the session's room
// actor, and maps inbound events one-to-one onto engine commands.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pointdeck/pointdeck/internal/engine"
	"github.com/pointdeck/pointdeck/internal/hub"
	"github.com/pointdeck/pointdeck/internal/room"
	"github.com/pointdeck/pointdeck/internal/store"
	"github.com/pointdeck/pointdeck/internal/timer"
	"github.com/pointdeck/pointdeck/pkg/types"
)

const (
	// Join verification retries: the player row may have been created by a
	// REST call milliseconds ago.
	joinAttempts  = 3
	joinRetryWait = 200 * time.Millisecond

	writeTimeout = 3 * time.Second
	readTimeout  = 60 * time.Second

	// Per-connection command budget; heartbeats included.
	rateLimit = rate.Limit(10)
	rateBurst = 20
)

func Handler(h *hub.Hub, repo *store.Repo, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session")
		playerID := r.URL.Query().Get("player")
		if sessionID == "" || playerID == "" {
			http.Error(w, "missing session or player", http.StatusBadRequest)
			return
		}

		player, err := repo.GetPlayerRetry(r.Context(), sessionID, playerID, joinAttempts, joinRetryWait)
		if err != nil {
			http.Error(w, "player not found", http.StatusNotFound)
			return
		}

		state, err := repo.LoadState(r.Context(), sessionID)
		if err != nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.EnsureRoom{SessionID: sessionID, State: state, Reply: reply}
		rm := <-reply
		if rm == nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		out := make(chan types.ServerMessage, 16)

		rm.Inbox() <- room.Join{
			ClientID: clientID,
			Player: &engine.Player{
				ID:          player.ID,
				SessionID:   player.SessionID,
				Name:        player.Name,
				Avatar:      player.Avatar,
				IsSpectator: player.IsSpectator,
				JoinedAt:    player.JoinedAt,
			},
			Outbox: out,
		}
		defer func() { rm.Inbox() <- room.Leave{ClientID: clientID, PlayerID: playerID} }()

		log.Debug("client connected",
			zap.String("session_id", sessionID),
			zap.String("player_id", playerID),
			zap.String("client_id", clientID))

		// Writer goroutine: out closes when the room drops or shuts us down.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				payload, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		limiter := rate.NewLimiter(rateLimit, rateBurst)

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				// Treat clean close/going-away as normal; everything else
				// also just exits (room.Leave in defer handles presence).
				return
			}

			if !limiter.Allow() {
				writeDirect(r.Context(), conn, types.ServerMessage{
					Type:  types.EvtRateLimited,
					Error: "too many messages, slow down",
				})
				continue
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeDirect(r.Context(), conn, types.ServerMessage{
					Type:      types.EvtConnectionError,
					ErrorCode: "bad_json",
					Error:     "malformed message",
				})
				continue
			}

			if cm.Type == types.MsgSyncRequest {
				rm.Inbox() <- room.SyncRequest{ClientID: clientID}
				continue
			}

			cmd, ok := toCommand(cm, playerID)
			if !ok {
				writeDirect(r.Context(), conn, types.ServerMessage{
					Type:      types.EvtConnectionError,
					ErrorCode: "unknown_type",
					Error:     "unknown message type " + cm.Type,
				})
				continue
			}

			rm.Inbox() <- room.FromClient{ClientID: clientID, Cmd: cmd}
		}
	}
}

func writeDirect(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, _ := json.Marshal(msg)
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}

// toCommand maps one inbound event to exactly one engine command. The
// issuer is always the authenticated player, never a field the client
// controls.
func toCommand(m types.ClientMessage, playerID string) (engine.Command, bool) {
	cmd := engine.Command{PlayerID: playerID, StoryID: m.StoryID}

	switch m.Type {
	case types.MsgSubmitVote:
		cmd.Type = engine.CmdSubmitVote
		cmd.Value = m.Value
		cmd.Confidence = m.Confidence
	case types.MsgRevealCards:
		cmd.Type = engine.CmdReveal
	case types.MsgResetGame:
		cmd.Type = engine.CmdReset
	case types.MsgCreateStory:
		cmd.Type = engine.CmdAddStory
		cmd.StoryID = uuid.NewString()
		cmd.Title = m.Title
		cmd.Description = m.Description
	case types.MsgUpdateStory:
		cmd.Type = engine.CmdUpdateStory
		cmd.Title = m.Title
		cmd.Description = m.Description
	case types.MsgDeleteStory:
		cmd.Type = engine.CmdDeleteStory
	case types.MsgActivateStory:
		cmd.Type = engine.CmdActivateStory
	case types.MsgCompleteStory:
		cmd.Type = engine.CmdCompleteStory
		cmd.FinalEstimate = m.FinalEstimate
	case types.MsgReopenStory:
		cmd.Type = engine.CmdReopenStory
	case types.MsgTimerStart:
		cmd.Type = engine.CmdTimerStart
		cmd.Seconds = m.Seconds
		mode, ok := timer.ParseMode(m.Mode)
		if m.Mode != "" && !ok {
			return engine.Command{}, false
		}
		cmd.Mode = mode
	case types.MsgTimerPause:
		cmd.Type = engine.CmdTimerPause
	case types.MsgTimerResume:
		cmd.Type = engine.CmdTimerResume
	case types.MsgTimerStop:
		cmd.Type = engine.CmdTimerStop
	case types.MsgTimerReset:
		cmd.Type = engine.CmdTimerReset
	case types.MsgTimerAdjust:
		cmd.Type = engine.CmdTimerAdjust
		cmd.Seconds = m.Seconds
	case types.MsgHeartbeat:
		cmd.Type = engine.CmdHeartbeat
	case types.MsgActivityPing:
		cmd.Type = engine.CmdActivity
	default:
		return engine.Command{}, false
	}
	return cmd, true
}
