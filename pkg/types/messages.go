package types

// Client -> Server message types.
const (
	MsgJoinSession   = "JoinSession"
	MsgSubmitVote    = "SubmitVote"
	MsgRevealCards   = "RevealCards"
	MsgResetGame     = "ResetGame"
	MsgCreateStory   = "CreateStory"
	MsgUpdateStory   = "UpdateStory"
	MsgDeleteStory   = "DeleteStory"
	MsgActivateStory = "ActivateStory"
	MsgCompleteStory = "CompleteStory"
	MsgReopenStory   = "ReopenStory"
	MsgTimerStart    = "TimerStart"
	MsgTimerPause    = "TimerPause"
	MsgTimerResume   = "TimerResume"
	MsgTimerStop     = "TimerStop"
	MsgTimerReset    = "TimerReset"
	MsgTimerAdjust   = "TimerAdjust"
	MsgHeartbeat     = "Heartbeat"
	MsgActivityPing  = "ActivityPing"
	MsgSyncRequest   = "SyncRequest"
)

// Server -> Client message types.
const (
	EvtSessionJoined       = "SessionJoined"
	EvtSessionError        = "SessionError"
	EvtPlayerJoined        = "PlayerJoined"
	EvtPlayerLeft          = "PlayerLeft"
	EvtPlayerUpdated       = "PlayerUpdated"
	EvtPlayerReconnected   = "PlayerReconnected"
	EvtPlayerPromoted      = "PlayerPromoted"
	EvtPlayerRemoved       = "PlayerRemoved"
	EvtPlayerStatusChanged = "PlayerStatusChanged"
	EvtVoteSubmitted       = "VoteSubmitted"
	EvtCardsRevealed       = "CardsRevealed"
	EvtGameReset           = "GameReset"
	EvtStoryCreated        = "StoryCreated"
	EvtStoryUpdated        = "StoryUpdated"
	EvtStoryDeleted        = "StoryDeleted"
	EvtStoryActivated      = "StoryActivated"
	EvtStoryCompleted      = "StoryCompleted"
	EvtStoryReopened       = "StoryReopened"
	EvtTimerUpdated        = "TimerUpdated"
	EvtStateSnapshot       = "StateSnapshot"
	EvtHeartbeatAck        = "HeartbeatAck"
	EvtRateLimited         = "RateLimited"
	EvtConnectionError     = "ConnectionError"
)

// ClientMessage is the inbound websocket envelope. Fields beyond Type are
// populated per message type; unused fields stay at their zero value.
type ClientMessage struct {
	Type            string `json:"type"`
	SessionID       string `json:"session_id,omitempty"`
	PlayerID        string `json:"player_id,omitempty"`
	StoryID         string `json:"story_id,omitempty"`
	Title           string `json:"title,omitempty"`
	Description     string `json:"description,omitempty"`
	Value           string `json:"value,omitempty"`
	Confidence      int    `json:"confidence,omitempty"`
	FinalEstimate   string `json:"final_estimate,omitempty"`
	Seconds         int    `json:"seconds,omitempty"`
	Mode            string `json:"mode,omitempty"`
	LastSeenVersion int    `json:"last_seen_version,omitempty"`
}

// ServerMessage is the outbound websocket envelope. Every state-bearing
// message carries Version so a client that missed events can detect the gap
// and request a full snapshot with SyncRequest.
type ServerMessage struct {
	Type         string           `json:"type"`
	Version      int              `json:"version,omitempty"`
	PlayerID     string           `json:"player_id,omitempty"`
	StoryID      string           `json:"story_id,omitempty"`
	VoteCount    int              `json:"vote_count,omitempty"`
	TotalPlayers int              `json:"total_players,omitempty"`
	Votes        []VoteSnapshot   `json:"votes,omitempty"`
	Consensus    *ConsensusResult `json:"consensus,omitempty"`
	Timer        *TimerSnapshot   `json:"timer,omitempty"`
	State        *SessionSnapshot `json:"state,omitempty"`
	ErrorCode    string           `json:"error_code,omitempty"`
	Error        string           `json:"error,omitempty"`
	ServerTime   int64            `json:"server_time,omitempty"` // unix millis, set on HeartbeatAck
}
