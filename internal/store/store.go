// Package store is the durable layer under the realtime core: session,
// player, story and vote rows in Postgres via gorm. REST handlers write
// here first; rooms load their initial state from here. The vote table
// carries a unique composite index on (story_id, player_id), so the
// upsert invariant holds even if a second process ever writes votes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pointdeck/pointdeck/internal/engine"
	"github.com/pointdeck/pointdeck/pkg/types"
)

var ErrNotFound = errors.New("record not found")

type Session struct {
	ID         string `gorm:"primaryKey"`
	Name       string
	ConfigJSON string
	HostID     string
	Active     bool
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

type Player struct {
	ID          string `gorm:"primaryKey"`
	SessionID   string `gorm:"index"`
	Name        string
	Avatar      string
	IsSpectator bool
	IsHost      bool
	JoinedAt    time.Time
	LastSeenAt  time.Time
}

type Story struct {
	ID            string `gorm:"primaryKey"`
	SessionID     string `gorm:"index"`
	Title         string
	Description   string
	OrderIndex    int
	IsActive      bool
	FinalEstimate string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

type Vote struct {
	ID         string `gorm:"primaryKey"`
	StoryID    string `gorm:"uniqueIndex:idx_story_player"`
	PlayerID   string `gorm:"uniqueIndex:idx_story_player"`
	SessionID  string `gorm:"index"`
	Value      string
	Confidence int
	CreatedAt  time.Time
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) AutoMigrate() error {
	return r.db.AutoMigrate(&Session{}, &Player{}, &Story{}, &Vote{})
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *Repo) UpdateSessionHost(ctx context.Context, sessionID, hostID string) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", sessionID).Update("host_id", hostID).Error
}

// SetHost moves the host flag to one player and records them on the
// session row, in one transaction.
func (r *Repo) SetHost(ctx context.Context, sessionID, hostID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Player{}).
			Where("session_id = ?", sessionID).Update("is_host", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&Player{}).
			Where("id = ? AND session_id = ?", hostID, sessionID).Update("is_host", true).Error; err != nil {
			return err
		}
		return tx.Model(&Session{}).
			Where("id = ?", sessionID).Update("host_id", hostID).Error
	})
}

func (r *Repo) CreatePlayer(ctx context.Context, p *Player) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repo) GetPlayer(ctx context.Context, sessionID, playerID string) (*Player, error) {
	var p Player
	err := r.db.WithContext(ctx).
		First(&p, "id = ? AND session_id = ?", playerID, sessionID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// GetPlayerRetry looks a player up with bounded retries and a fixed delay.
// The player row is usually created by a REST call moments before the
// websocket connects; retrying absorbs that read-after-write lag instead
// of making clients guess at timing.
func (r *Repo) GetPlayerRetry(ctx context.Context, sessionID, playerID string, attempts int, delay time.Duration) (*Player, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		p, err := r.GetPlayer(ctx, sessionID, playerID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *Repo) UpdatePlayer(ctx context.Context, p *Player) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *Repo) UpdatePlayerProfile(ctx context.Context, sessionID, playerID, name, avatar string, spectator bool) error {
	return r.db.WithContext(ctx).Model(&Player{}).
		Where("id = ? AND session_id = ?", playerID, sessionID).
		Updates(map[string]any{"name": name, "avatar": avatar, "is_spectator": spectator}).Error
}

func (r *Repo) DeletePlayer(ctx context.Context, sessionID, playerID string) error {
	return r.db.WithContext(ctx).
		Delete(&Player{}, "id = ? AND session_id = ?", playerID, sessionID).Error
}

func (r *Repo) CreateStory(ctx context.Context, s *Story) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) UpdateStory(ctx context.Context, s *Story) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// UpsertStory writes the full story row, inserting or replacing on the
// primary key. The mirror replays whole rows, so last write wins.
func (r *Repo) UpsertStory(ctx context.Context, s *Story) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(s).Error
}

// SetActiveStory flips the active flag to exactly one story.
func (r *Repo) SetActiveStory(ctx context.Context, sessionID, storyID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Story{}).
			Where("session_id = ?", sessionID).Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&Story{}).
			Where("id = ? AND session_id = ?", storyID, sessionID).Update("is_active", true).Error
	})
}

func (r *Repo) DeleteStory(ctx context.Context, sessionID, storyID string) error {
	return r.db.WithContext(ctx).
		Delete(&Story{}, "id = ? AND session_id = ?", storyID, sessionID).Error
}

// UpsertVote enforces the single-row-per-pair invariant at the database:
// a conflict on (story_id, player_id) updates value and confidence in
// place.
func (r *Repo) UpsertVote(ctx context.Context, v *Vote) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "story_id"}, {Name: "player_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "confidence"}),
	}).Create(v).Error
}

func (r *Repo) DeleteVotesForStory(ctx context.Context, storyID string) error {
	return r.db.WithContext(ctx).Delete(&Vote{}, "story_id = ?", storyID).Error
}

func (r *Repo) VotesForStory(ctx context.Context, storyID string) ([]Vote, error) {
	var vs []Vote
	err := r.db.WithContext(ctx).
		Where("story_id = ?", storyID).Order("created_at asc").Find(&vs).Error
	return vs, err
}

// LoadState assembles the engine's canonical in-memory aggregate from the
// durable rows. Called when a room spins up for an existing session.
func (r *Repo) LoadState(ctx context.Context, sessionID string) (*engine.State, error) {
	sess, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	state := engine.NewState(engine.Session{
		ID:        sess.ID,
		Name:      sess.Name,
		Config:    DecodeConfig(sess.ConfigJSON),
		HostID:    sess.HostID,
		Active:    sess.Active,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	})

	var players []Player
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Find(&players).Error; err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}
	for _, p := range players {
		state.Players[p.ID] = &engine.Player{
			ID:          p.ID,
			SessionID:   p.SessionID,
			Name:        p.Name,
			Avatar:      p.Avatar,
			IsSpectator: p.IsSpectator,
			IsHost:      p.IsHost,
			IsOnline:    false, // presence is live-only, never trusted from disk
			JoinedAt:    p.JoinedAt,
			LastSeenAt:  p.LastSeenAt,
		}
	}

	var stories []Story
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).Order("order_index asc").Find(&stories).Error; err != nil {
		return nil, fmt.Errorf("load stories: %w", err)
	}
	for _, st := range stories {
		state.Stories = append(state.Stories, &engine.Story{
			ID:            st.ID,
			SessionID:     st.SessionID,
			Title:         st.Title,
			Description:   st.Description,
			OrderIndex:    st.OrderIndex,
			IsActive:      st.IsActive,
			FinalEstimate: st.FinalEstimate,
			CreatedAt:     st.CreatedAt,
			CompletedAt:   st.CompletedAt,
		})
		votes, err := r.VotesForStory(ctx, st.ID)
		if err != nil {
			return nil, fmt.Errorf("load votes: %w", err)
		}
		for _, v := range votes {
			state.Votes.Put(v.StoryID, v.PlayerID, v.Value, v.Confidence, v.CreatedAt)
		}
	}
	return state, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// EncodeConfig serializes a session config for the jsonb-ish text column.
func EncodeConfig(c types.SessionConfig) string {
	b, _ := json.Marshal(c)
	return string(b)
}

// DecodeConfig falls back to a sane default deck when the column is empty
// or corrupt rather than poisoning the whole session load.
func DecodeConfig(raw string) types.SessionConfig {
	var c types.SessionConfig
	if raw == "" || json.Unmarshal([]byte(raw), &c) != nil {
		return DefaultConfig()
	}
	return c
}

func DefaultConfig() types.SessionConfig {
	return types.SessionConfig{
		Deck:                []string{"0", "1", "2", "3", "5", "8", "13", "21", "?", "coffee"},
		AllowSpectators:     true,
		AutoReveal:          true,
		DefaultTimerSeconds: 60,
	}
}
