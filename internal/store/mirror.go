package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/internal/engine"
	"github.com/pointdeck/pointdeck/internal/room"
)

const (
	mirrorQueueSize    = 256
	mirrorWriteTimeout = 5 * time.Second
)

// Mirror applies room mutations to Postgres in the background. The live
// room state stays authoritative; the mirror exists so a restarted room
// reloads where the session left off. Writes are best-effort: a full
// queue drops the event with a warning rather than stalling the room.
type Mirror struct {
	repo  *Repo
	log   *zap.Logger
	inbox chan room.MirrorEvent
}

func NewMirror(ctx context.Context, repo *Repo, log *zap.Logger) *Mirror {
	m := &Mirror{
		repo:  repo,
		log:   log.Named("mirror"),
		inbox: make(chan room.MirrorEvent, mirrorQueueSize),
	}
	go m.run(ctx)
	return m
}

func (m *Mirror) Record(ev room.MirrorEvent) {
	select {
	case m.inbox <- ev:
	default:
		m.log.Warn("mirror queue full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("session_id", ev.SessionID))
	}
}

func (m *Mirror) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.inbox:
			wctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
			if err := m.apply(wctx, ev); err != nil {
				m.log.Warn("mirror write failed",
					zap.String("type", string(ev.Type)),
					zap.String("session_id", ev.SessionID),
					zap.Error(err))
			}
			cancel()
		}
	}
}

func (m *Mirror) apply(ctx context.Context, ev room.MirrorEvent) error {
	switch ev.Type {
	case engine.EvtVoteSubmitted:
		return m.repo.UpsertVote(ctx, &Vote{
			ID:         uuid.NewString(),
			StoryID:    ev.StoryID,
			PlayerID:   ev.PlayerID,
			SessionID:  ev.SessionID,
			Value:      ev.Value,
			Confidence: ev.Confidence,
			CreatedAt:  ev.At,
		})

	case engine.EvtGameReset:
		return m.repo.DeleteVotesForStory(ctx, ev.StoryID)

	case engine.EvtStoryCreated, engine.EvtStoryUpdated, engine.EvtStoryCompleted, engine.EvtStoryReopened:
		return m.repo.UpsertStory(ctx, &Story{
			ID:            ev.StoryID,
			SessionID:     ev.SessionID,
			Title:         ev.Title,
			Description:   ev.Description,
			OrderIndex:    ev.OrderIndex,
			IsActive:      ev.IsActive,
			FinalEstimate: ev.FinalEstimate,
			CreatedAt:     ev.StoryCreated,
			CompletedAt:   ev.CompletedAt,
		})

	case engine.EvtStoryActivated:
		// Activation also voids any stale votes on the incoming story.
		if err := m.repo.SetActiveStory(ctx, ev.SessionID, ev.StoryID); err != nil {
			return err
		}
		return m.repo.DeleteVotesForStory(ctx, ev.StoryID)

	case engine.EvtStoryDeleted:
		if err := m.repo.DeleteVotesForStory(ctx, ev.StoryID); err != nil {
			return err
		}
		return m.repo.DeleteStory(ctx, ev.SessionID, ev.StoryID)

	case engine.EvtPlayerPromoted:
		return m.repo.SetHost(ctx, ev.SessionID, ev.HostID)

	case engine.EvtPlayerUpdated:
		return m.repo.UpdatePlayerProfile(ctx, ev.SessionID, ev.PlayerID, ev.Name, ev.Avatar, ev.IsSpectator)

	case engine.EvtPlayerRemoved:
		return m.repo.DeletePlayer(ctx, ev.SessionID, ev.PlayerID)
	}
	return nil
}
