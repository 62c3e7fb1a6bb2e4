package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/internal/engine"
	"github.com/pointdeck/pointdeck/internal/hub"
	"github.com/pointdeck/pointdeck/internal/room"
	"github.com/pointdeck/pointdeck/internal/store"
	"github.com/pointdeck/pointdeck/pkg/types"
)

const (
	sessionTTL   = 24 * time.Hour
	codeAttempts = 5
)

// API holds the REST handlers' dependencies. REST owns session and player
// creation; mutations against a live session are routed through its room
// so the engine validates them and the mirror persists them.
type API struct {
	hub  *hub.Hub
	repo *store.Repo
	log  *zap.Logger
}

func NewAPI(h *hub.Hub, repo *store.Repo, log *zap.Logger) *API {
	return &API{hub: h, repo: repo, log: log.Named("api")}
}

// GenerateCode makes a 6-character join code. Codes double as session IDs,
// short enough to read out loud on a call.
func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createSessionRequest struct {
	Name       string               `json:"name"`
	HostName   string               `json:"host_name"`
	HostAvatar string               `json:"host_avatar"`
	Config     *types.SessionConfig `json:"config,omitempty"`
}

type createSessionResponse struct {
	SessionID string    `json:"session_id"`
	HostID    string    `json:"host_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.HostName == "" {
		writeError(w, http.StatusBadRequest, "host_name is required")
		return
	}

	cfg := store.DefaultConfig()
	if req.Config != nil {
		cfg = *req.Config
	}

	var code string
	for i := 0; i < codeAttempts; i++ {
		c, err := GenerateCode()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate code")
			return
		}
		if _, err := a.repo.GetSession(r.Context(), c); errors.Is(err, store.ErrNotFound) {
			code = c
			break
		}
		a.log.Warn("join code collision, regenerating", zap.String("code", c))
	}
	if code == "" {
		writeError(w, http.StatusInternalServerError, "could not allocate a join code")
		return
	}

	now := time.Now()
	hostID := uuid.NewString()
	sess := &store.Session{
		ID:         code,
		Name:       req.Name,
		ConfigJSON: store.EncodeConfig(cfg),
		HostID:     hostID,
		Active:     true,
		CreatedAt:  now,
		ExpiresAt:  now.Add(sessionTTL),
	}
	if err := a.repo.CreateSession(r.Context(), sess); err != nil {
		a.log.Error("create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	host := &store.Player{
		ID:         hostID,
		SessionID:  code,
		Name:       req.HostName,
		Avatar:     req.HostAvatar,
		IsHost:     true,
		JoinedAt:   now,
		LastSeenAt: now,
	}
	if err := a.repo.CreatePlayer(r.Context(), host); err != nil {
		a.log.Error("create host player", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: code,
		HostID:    hostID,
		ExpiresAt: sess.ExpiresAt,
	})
}

type joinRequest struct {
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	Spectator bool   `json:"spectator"`
}

type joinResponse struct {
	PlayerID string `json:"player_id"`
}

// JoinSession creates the player row; the websocket connect afterwards is
// what puts the player in the room.
func (a *API) JoinSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	sess, err := a.repo.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if time.Now().After(sess.ExpiresAt) {
		writeError(w, http.StatusGone, "session expired")
		return
	}
	if req.Spectator && !store.DecodeConfig(sess.ConfigJSON).AllowSpectators {
		writeError(w, http.StatusForbidden, "spectators are not allowed in this session")
		return
	}

	now := time.Now()
	p := &store.Player{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Name:        req.Name,
		Avatar:      req.Avatar,
		IsSpectator: req.Spectator,
		JoinedAt:    now,
		LastSeenAt:  now,
	}
	if err := a.repo.CreatePlayer(r.Context(), p); err != nil {
		a.log.Error("create player", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to join session")
		return
	}
	writeJSON(w, http.StatusCreated, joinResponse{PlayerID: p.ID})
}

// GetSession serves the authoritative snapshot: from the live room when one
// exists, otherwise rebuilt from the store.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if rm := a.liveRoom(sessionID); rm != nil {
		reply := make(chan room.View, 1)
		rm.Inbox() <- room.GetState{Reply: reply}
		view := <-reply
		writeJSON(w, http.StatusOK, view.Snapshot)
		return
	}

	state, err := a.repo.LoadState(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, state.Snapshot(0))
}

type storyRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	RequestedBy string `json:"requested_by"`
}

func (a *API) CreateStory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req storyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if !a.requireHost(w, r, sessionID, req.RequestedBy) {
		return
	}

	storyID := uuid.NewString()
	if rm := a.liveRoom(sessionID); rm != nil {
		rm.Inbox() <- room.FromClient{Cmd: engine.Command{
			Type:        engine.CmdAddStory,
			PlayerID:    req.RequestedBy,
			StoryID:     storyID,
			Title:       req.Title,
			Description: req.Description,
		}}
		writeJSON(w, http.StatusAccepted, map[string]string{"story_id": storyID})
		return
	}

	// No live room: write the row directly. The first story of a session
	// starts active, matching what the engine would do.
	state, err := a.repo.LoadState(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	st := &store.Story{
		ID:          storyID,
		SessionID:   sessionID,
		Title:       req.Title,
		Description: req.Description,
		OrderIndex:  len(state.Stories),
		IsActive:    len(state.Stories) == 0,
		CreatedAt:   time.Now(),
	}
	if err := a.repo.CreateStory(r.Context(), st); err != nil {
		a.log.Error("create story", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create story")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"story_id": storyID})
}

func (a *API) UpdateStory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	storyID := chi.URLParam(r, "storyID")

	var req storyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if !a.requireHost(w, r, sessionID, req.RequestedBy) {
		return
	}

	if rm := a.liveRoom(sessionID); rm != nil {
		rm.Inbox() <- room.FromClient{Cmd: engine.Command{
			Type:        engine.CmdUpdateStory,
			PlayerID:    req.RequestedBy,
			StoryID:     storyID,
			Title:       req.Title,
			Description: req.Description,
		}}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	state, err := a.repo.LoadState(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	for _, st := range state.Stories {
		if st.ID == storyID {
			if err := a.repo.UpsertStory(r.Context(), &store.Story{
				ID:            st.ID,
				SessionID:     sessionID,
				Title:         req.Title,
				Description:   req.Description,
				OrderIndex:    st.OrderIndex,
				IsActive:      st.IsActive,
				FinalEstimate: st.FinalEstimate,
				CreatedAt:     st.CreatedAt,
				CompletedAt:   st.CompletedAt,
			}); err != nil {
				writeError(w, http.StatusInternalServerError, "failed to update story")
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "story not found")
}

// ActivateStory switches voting to the given story. Completed stories
// cannot be reactivated; the engine enforces that on the live path and the
// handler mirrors the check on the cold one.
func (a *API) ActivateStory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	storyID := chi.URLParam(r, "storyID")
	requestedBy := r.URL.Query().Get("requested_by")

	if !a.requireHost(w, r, sessionID, requestedBy) {
		return
	}

	if rm := a.liveRoom(sessionID); rm != nil {
		rm.Inbox() <- room.FromClient{Cmd: engine.Command{
			Type:     engine.CmdActivateStory,
			PlayerID: requestedBy,
			StoryID:  storyID,
		}}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	state, err := a.repo.LoadState(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	for _, st := range state.Stories {
		if st.ID != storyID {
			continue
		}
		if st.CompletedAt != nil {
			writeError(w, http.StatusConflict, "story is completed")
			return
		}
		if err := a.repo.SetActiveStory(r.Context(), sessionID, storyID); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to activate story")
			return
		}
		if err := a.repo.DeleteVotesForStory(r.Context(), storyID); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to activate story")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeError(w, http.StatusNotFound, "story not found")
}

func (a *API) DeleteStory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	storyID := chi.URLParam(r, "storyID")
	requestedBy := r.URL.Query().Get("requested_by")

	if !a.requireHost(w, r, sessionID, requestedBy) {
		return
	}

	if rm := a.liveRoom(sessionID); rm != nil {
		rm.Inbox() <- room.FromClient{Cmd: engine.Command{
			Type:     engine.CmdDeleteStory,
			PlayerID: requestedBy,
			StoryID:  storyID,
		}}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := a.repo.DeleteVotesForStory(r.Context(), storyID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete story")
		return
	}
	if err := a.repo.DeleteStory(r.Context(), sessionID, storyID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete story")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type playerUpdateRequest struct {
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	Spectator bool   `json:"spectator"`
}

func (a *API) UpdatePlayer(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	playerID := chi.URLParam(r, "playerID")

	var req playerUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if rm := a.liveRoom(sessionID); rm != nil {
		rm.Inbox() <- room.FromClient{Cmd: engine.Command{
			Type:     engine.CmdPlayerUpdate,
			PlayerID: playerID,
			Player: &engine.Player{
				Name:        req.Name,
				Avatar:      req.Avatar,
				IsSpectator: req.Spectator,
			},
		}}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := a.repo.UpdatePlayerProfile(r.Context(), sessionID, playerID, req.Name, req.Avatar, req.Spectator); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update player")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) RemovePlayer(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	playerID := chi.URLParam(r, "playerID")
	requestedBy := r.URL.Query().Get("requested_by")

	if !a.requireHost(w, r, sessionID, requestedBy) {
		return
	}

	if rm := a.liveRoom(sessionID); rm != nil {
		rm.Inbox() <- room.FromClient{Cmd: engine.Command{
			Type:     engine.CmdPlayerRemove,
			PlayerID: requestedBy,
			TargetID: playerID,
		}}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := a.repo.DeletePlayer(r.Context(), sessionID, playerID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove player")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) liveRoom(sessionID string) *room.Room {
	reply := make(chan *room.Room, 1)
	a.hub.Inbox() <- hub.GetRoom{SessionID: sessionID, Reply: reply}
	return <-reply
}

// requireHost checks the durable host record. The engine re-checks on the
// live path; this keeps the no-room path equally guarded.
func (a *API) requireHost(w http.ResponseWriter, r *http.Request, sessionID, playerID string) bool {
	if playerID == "" {
		writeError(w, http.StatusBadRequest, "requested_by is required")
		return false
	}
	sess, err := a.repo.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return false
	}
	if sess.HostID != playerID {
		writeError(w, http.StatusForbidden, "only the host may do that")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
