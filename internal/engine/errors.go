package engine

import "errors"

var ErrSessionExpired = errors.New("session expired")
var ErrPlayerNotFound = errors.New("player not found")
var ErrStoryNotFound = errors.New("story not found")
var ErrStoryMismatch = errors.New("story mismatch")
var ErrStoryCompleted = errors.New("story already completed")
var ErrNoActiveStory = errors.New("no active story")
var ErrSpectatorCannotVote = errors.New("spectators cannot vote")
var ErrSpectatorsNotAllowed = errors.New("spectators not allowed in this session")
var ErrInvalidVote = errors.New("invalid vote value")
var ErrAlreadyRevealed = errors.New("votes already revealed")
var ErrNoVotes = errors.New("no votes to reveal")
var ErrNotHost = errors.New("only the host can do that")
var ErrUnsupportedCommand = errors.New("unsupported command")

// Code maps an engine error to its wire error code. Unknown errors fall
// through as "internal".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrPlayerNotFound):
		return "player_not_found"
	case errors.Is(err, ErrStoryNotFound):
		return "story_not_found"
	case errors.Is(err, ErrStoryMismatch):
		return "story_mismatch"
	case errors.Is(err, ErrStoryCompleted):
		return "story_completed"
	case errors.Is(err, ErrNoActiveStory):
		return "no_active_story"
	case errors.Is(err, ErrSpectatorCannotVote):
		return "spectator_cannot_vote"
	case errors.Is(err, ErrSpectatorsNotAllowed):
		return "spectators_not_allowed"
	case errors.Is(err, ErrInvalidVote):
		return "invalid_vote"
	case errors.Is(err, ErrAlreadyRevealed):
		return "already_revealed"
	case errors.Is(err, ErrNoVotes):
		return "no_votes"
	case errors.Is(err, ErrNotHost):
		return "not_host"
	default:
		return "internal"
	}
}
