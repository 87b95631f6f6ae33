package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection is the category of transport failures. Non-fatal, never retried.
	ErrConnection = errors.New("connection error")
	// ErrMissingCredential is returned by connect when no token is stored.
	ErrMissingCredential = fmt.Errorf("%w: no credential available", ErrConnection)
	// ErrNotConnected is returned by actions that need a live connection.
	ErrNotConnected = fmt.Errorf("%w: not connected", ErrConnection)

	// ErrNotParticipant is returned when the user is not one of the game's players.
	ErrNotParticipant = errors.New("user is not a participant in this game")
	// ErrGameNotFound is returned when the snapshot fetch fails for a game id.
	ErrGameNotFound = errors.New("game not found")
	// ErrSubmission is the category of answers rejected by the authority.
	ErrSubmission = errors.New("submission rejected")

	// ErrInvalidRoomCode covers both unknown codes and full rooms.
	ErrInvalidRoomCode = errors.New("invalid code or full room")
	// ErrQueueBusy is returned when a queue request is already outstanding.
	ErrQueueBusy = errors.New("queue request already outstanding")
	// ErrUnknownMode is returned for a MatchIntent with an unsupported mode.
	ErrUnknownMode = errors.New("unknown match mode")
	// ErrSessionClosed is returned when interacting with a session that has stopped.
	ErrSessionClosed = errors.New("match session closed")
	// ErrSessionActive is returned when a game already has an open session.
	ErrSessionActive = errors.New("match session already open for game")
)

// AuthorityError carries the message of an authority "error" event.
type AuthorityError struct {
	Message string
}

func (e *AuthorityError) Error() string {
	return "authority: " + e.Message
}

// Unwrap classifies authority errors as submission errors.
func (e *AuthorityError) Unwrap() error { return ErrSubmission }

// IsFatal reports whether err terminates the session view.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotParticipant) || errors.Is(err, ErrGameNotFound)
}
