// Package protocol defines the duel events exchanged over the persistent connection.
//
// Every frame is an envelope {"type": <name>, "payload": {...}}. Outbound and Inbound
// are closed unions: only the types in this file implement them.
package protocol

import "quiz-duel-client/internal/domain"

// Event type names on the wire.
const (
	TypeJoinQueue     = "join_queue"
	TypeLeaveQueue    = "leave_queue"
	TypeCreatePrivate = "create_private"
	TypeJoinPrivate   = "join_private"
	TypeSubmitAnswer  = "submit_answer"

	TypePrivateCreated     = "private_created"
	TypeMatchFound         = "match_found"
	TypeGameStarted        = "game_started"
	TypeWaitingForOpponent = "waiting_for_opponent"
	TypeOpponentAnswered   = "opponent_answered"
	TypeRoundOver          = "round_over"
	TypeGameOver           = "game_over"
	TypeError              = "error"
)

// Outbound is a client to authority event.
type Outbound interface {
	OutboundType() string
	outbound()
}

// Inbound is an authority to client event.
type Inbound interface {
	InboundType() string
	inbound()
}

type JoinQueue struct {
	Topic    string `json:"topic"`
	Category string `json:"category"`
	Rating   int    `json:"rating"`
}

type LeaveQueue struct{}

type CreatePrivate struct {
	Topic    string `json:"topic"`
	Category string `json:"category"`
}

type JoinPrivate struct {
	Code string `json:"code"`
}

type SubmitAnswer struct {
	GameID     string `json:"gameId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	TimeTaken  int    `json:"timeTaken"`
}

func (JoinQueue) OutboundType() string     { return TypeJoinQueue }
func (LeaveQueue) OutboundType() string    { return TypeLeaveQueue }
func (CreatePrivate) OutboundType() string { return TypeCreatePrivate }
func (JoinPrivate) OutboundType() string   { return TypeJoinPrivate }
func (SubmitAnswer) OutboundType() string  { return TypeSubmitAnswer }

func (JoinQueue) outbound()     {}
func (LeaveQueue) outbound()    {}
func (CreatePrivate) outbound() {}
func (JoinPrivate) outbound()   {}
func (SubmitAnswer) outbound()  {}

type PrivateCreated struct {
	Code string `json:"code"`
}

type MatchFound struct {
	GameID string `json:"gameId"`
}

type GameStarted struct {
	GameID string `json:"gameId"`
}

type WaitingForOpponent struct{}

// OpponentAnswered is advisory; it never changes round state.
type OpponentAnswered struct{}

type RoundOver struct {
	Results       []domain.PlayerRoundResult `json:"results"`
	CorrectAnswer string                     `json:"correctAnswer"`
}

// Result converts the event into the domain round result.
func (r RoundOver) Result() domain.RoundResult {
	return domain.RoundResult{PerPlayer: r.Results, CorrectAnswer: r.CorrectAnswer}
}

// GameOver carries the winner, nil on a draw.
type GameOver struct {
	WinnerID *string `json:"winnerId"`
}

type Error struct {
	Message string `json:"message"`
}

func (PrivateCreated) InboundType() string     { return TypePrivateCreated }
func (MatchFound) InboundType() string         { return TypeMatchFound }
func (GameStarted) InboundType() string        { return TypeGameStarted }
func (WaitingForOpponent) InboundType() string { return TypeWaitingForOpponent }
func (OpponentAnswered) InboundType() string   { return TypeOpponentAnswered }
func (RoundOver) InboundType() string          { return TypeRoundOver }
func (GameOver) InboundType() string           { return TypeGameOver }
func (Error) InboundType() string              { return TypeError }

func (PrivateCreated) inbound()     {}
func (MatchFound) inbound()         {}
func (GameStarted) inbound()        {}
func (WaitingForOpponent) inbound() {}
func (OpponentAnswered) inbound()   {}
func (RoundOver) inbound()          {}
func (GameOver) inbound()           {}
func (Error) inbound()              {}
