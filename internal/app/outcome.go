package app

import (
	"time"

	"quiz-duel-client/internal/domain"
	"quiz-duel-client/internal/rank"
)

type Verdict string

const (
	VerdictCorrect   Verdict = "CORRECT"
	VerdictIncorrect Verdict = "INCORRECT"
	VerdictNoAnswer  Verdict = "NO_ANSWER"
)

// ReviewEntry pairs one question with this user's answer to it.
type ReviewEntry struct {
	Index         int
	QuestionID    string
	Description   string
	Answer        string
	CorrectAnswer string
	TimeTaken     int
	Verdict       Verdict
}

// Outcome is the published result of a finished duel. A provisional outcome was built
// without the terminal snapshot and carries no rating data.
type Outcome struct {
	GameID        string
	WinnerID      *string
	Draw          bool
	Result        domain.MatchResult
	Scores        map[string]int
	RatingChanges map[string]int
	NewRatings    map[string]int
	Review        []ReviewEntry
	Tier          *rank.Info
	Provisional   bool
}

func buildOutcome(game domain.GameSession, userID string, winnerID *string, correctAnswers map[string]string, provisional bool) Outcome {
	out := Outcome{
		GameID:        game.ID,
		Draw:          winnerID == nil,
		Scores:        make(map[string]int, len(game.Players)),
		RatingChanges: make(map[string]int),
		NewRatings:    make(map[string]int),
		Provisional:   provisional,
	}
	switch {
	case winnerID == nil:
		out.Result = domain.ResultDraw
	case *winnerID == userID:
		out.Result = domain.ResultWin
	default:
		out.Result = domain.ResultLoss
	}
	if winnerID != nil {
		w := *winnerID
		out.WinnerID = &w
	}

	for _, p := range game.Players {
		out.Scores[p.UserID] = p.Score
		if provisional {
			continue
		}
		if p.RatingChange != nil {
			out.RatingChanges[p.UserID] = *p.RatingChange
		}
		if p.NewRating != nil {
			out.NewRatings[p.UserID] = *p.NewRating
		}
	}

	if r, ok := out.NewRatings[userID]; ok {
		info := rank.InfoOf(r)
		out.Tier = &info
	}

	me, _ := game.Player(userID)
	out.Review = reviewOf(game.Questions, me, correctAnswers)
	return out
}

func reviewOf(questions []domain.Question, me *domain.PlayerState, correctAnswers map[string]string) []ReviewEntry {
	answers := make(map[string]domain.AnswerRecord)
	if me != nil {
		for _, a := range me.Answers {
			answers[a.QuestionID] = a
		}
	}
	entries := make([]ReviewEntry, 0, len(questions))
	for i, q := range questions {
		entry := ReviewEntry{
			Index:         i,
			QuestionID:    q.ID,
			Description:   q.Description,
			CorrectAnswer: correctAnswers[q.ID],
			Verdict:       VerdictNoAnswer,
		}
		if a, ok := answers[q.ID]; ok {
			entry.Answer = a.Answer
			entry.TimeTaken = a.TimeTaken
			switch {
			case a.Answer == "":
				entry.Verdict = VerdictNoAnswer
			case a.IsCorrect != nil && *a.IsCorrect:
				entry.Verdict = VerdictCorrect
			default:
				entry.Verdict = VerdictIncorrect
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// Record converts the outcome into a match history row for userID.
func (o Outcome) Record(game domain.GameSession, userID string, finishedAt time.Time) domain.MatchRecord {
	rec := domain.MatchRecord{
		GameID:     o.GameID,
		UserID:     userID,
		Topic:      game.Topic,
		Result:     o.Result,
		Score:      o.Scores[userID],
		FinishedAt: finishedAt.UTC(),
	}
	if opp, ok := game.Opponent(userID); ok {
		rec.OpponentID = opp.UserID
		rec.OpponentScore = opp.Score
	}
	if v, ok := o.RatingChanges[userID]; ok {
		rec.RatingChange = &v
	}
	if v, ok := o.NewRatings[userID]; ok {
		rec.NewRating = &v
	}
	return rec
}
