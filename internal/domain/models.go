package domain

import (
	"strings"
	"time"
)

// DefaultTimeLimit is the per-round limit, in ticks, used when a question omits one.
const DefaultTimeLimit = 60

// JoinCodeLength is the fixed length of a private room code.
const JoinCodeLength = 6

// MatchMode selects how a duel is found.
type MatchMode string

const (
	ModePublic        MatchMode = "PUBLIC"
	ModePrivateCreate MatchMode = "PRIVATE_CREATE"
	ModePrivateJoin   MatchMode = "PRIVATE_JOIN"
)

// MatchIntent is a single user request to find a duel. Code is only used by ModePrivateJoin.
type MatchIntent struct {
	Mode     MatchMode
	Topic    string
	Category string
	Rating   int
	Code     string
}

// GameStatus is the authority-side lifecycle of a game.
type GameStatus string

const (
	StatusWaiting  GameStatus = "WAITING"
	StatusPlaying  GameStatus = "PLAYING"
	StatusFinished GameStatus = "FINISHED"
)

// Option is one selectable answer. The answer sent to the authority is its text.
type Option struct {
	Text string `json:"text"`
}

// Question is one round's prompt.
type Question struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Options     []Option `json:"options"`
	TimeLimit   int      `json:"timeLimit,omitempty"` // DefaultTimeLimit if zero
}

// AnswerRecord is a participant's answer to one question.
type AnswerRecord struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	TimeTaken  int    `json:"timeTaken"`
	IsCorrect  *bool  `json:"isCorrect,omitempty"`
}

// PlayerState is one side of the duel.
type PlayerState struct {
	UserID       string         `json:"userId"`
	Name         string         `json:"name,omitempty"`
	Score        int            `json:"score"`
	Answers      []AnswerRecord `json:"answers"`
	RatingChange *int           `json:"ratingChange,omitempty"`
	NewRating    *int           `json:"newRating,omitempty"`
	Result       string         `json:"result,omitempty"`
}

// GameSession is the client's cached copy of the authority's game.
type GameSession struct {
	ID        string        `json:"id"`
	Topic     string        `json:"topic,omitempty"`
	Category  string        `json:"category,omitempty"`
	Players   []PlayerState `json:"players"`
	Questions []Question    `json:"questions"`
	Status    GameStatus    `json:"status"`
	WinnerID  *string       `json:"winnerId,omitempty"`
}

// Player returns the participant with userID.
func (g GameSession) Player(userID string) (*PlayerState, bool) {
	for i := range g.Players {
		if g.Players[i].UserID == userID {
			return &g.Players[i], true
		}
	}
	return nil, false
}

// Winner returns the winner's id, nil for a draw. A snapshot without winnerId still names
// its winner through the per-player result.
func (g GameSession) Winner() *string {
	if g.WinnerID != nil {
		w := *g.WinnerID
		return &w
	}
	for _, p := range g.Players {
		if strings.EqualFold(p.Result, "win") {
			w := p.UserID
			return &w
		}
	}
	return nil
}

// IsParticipant reports whether userID is one of the two players.
func (g GameSession) IsParticipant(userID string) bool {
	_, ok := g.Player(userID)
	return ok
}

// Opponent returns the other participant.
func (g GameSession) Opponent(userID string) (*PlayerState, bool) {
	for i := range g.Players {
		if g.Players[i].UserID != userID {
			return &g.Players[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so cached snapshots are never patched in place.
func (g GameSession) Clone() GameSession {
	out := g
	out.Players = make([]PlayerState, len(g.Players))
	for i, p := range g.Players {
		p.Answers = append([]AnswerRecord(nil), p.Answers...)
		out.Players[i] = p
	}
	out.Questions = make([]Question, len(g.Questions))
	for i, q := range g.Questions {
		q.Options = append([]Option(nil), q.Options...)
		out.Questions[i] = q
	}
	if g.WinnerID != nil {
		w := *g.WinnerID
		out.WinnerID = &w
	}
	return out
}

// PlayerRoundResult is one participant's line of a RoundResult.
type PlayerRoundResult struct {
	UserID    string `json:"userId"`
	Answer    string `json:"answer"`
	IsCorrect bool   `json:"isCorrect"`
	Points    int    `json:"points"`
	NewScore  int    `json:"newScore"`
	TimeTaken int    `json:"timeTaken"`
}

// RoundResult is the authority's adjudication of one round.
type RoundResult struct {
	PerPlayer     []PlayerRoundResult `json:"results"`
	CorrectAnswer string              `json:"correctAnswer"`
}

// For returns the line for userID.
func (r RoundResult) For(userID string) (PlayerRoundResult, bool) {
	for _, line := range r.PerPlayer {
		if line.UserID == userID {
			return line, true
		}
	}
	return PlayerRoundResult{}, false
}

// NormalizeCode upper-cases and trims a user-supplied join code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code is JoinCodeLength alphanumeric characters.
func ValidCode(code string) bool {
	if len(code) != JoinCodeLength {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// MatchResult is this user's result of a finished duel.
type MatchResult string

const (
	ResultWin  MatchResult = "WIN"
	ResultLoss MatchResult = "LOSS"
	ResultDraw MatchResult = "DRAW"
)

// MatchRecord is one finished duel as kept in local match history.
type MatchRecord struct {
	GameID        string      `json:"gameId"`
	UserID        string      `json:"userId"`
	OpponentID    string      `json:"opponentId"`
	Topic         string      `json:"topic,omitempty"`
	Result        MatchResult `json:"result"`
	Score         int         `json:"score"`
	OpponentScore int         `json:"opponentScore"`
	RatingChange  *int        `json:"ratingChange,omitempty"`
	NewRating     *int        `json:"newRating,omitempty"`
	FinishedAt    time.Time   `json:"finishedAt"`
}
