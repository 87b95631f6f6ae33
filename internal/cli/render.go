package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"quiz-duel-client/internal/app"
	"quiz-duel-client/internal/domain"
	"quiz-duel-client/internal/rank"
)

// renderView writes v as plain text. Only lines that changed since prev are repeated.
func renderView(w io.Writer, v app.View, prev *app.View, userID string) {
	switch v.State {
	case app.StateHydrating:
		if prev == nil || prev.State != v.State {
			fmt.Fprintf(w, "loading game %s...\n", v.GameID)
		}
	case app.StatePlaying, app.StateSubmitting:
		if v.Question != nil && (prev == nil || prev.Round != v.Round || prev.Question == nil) {
			renderQuestion(w, v)
		}
		if prev != nil && prev.Round == v.Round && prev.Remaining != v.Remaining && v.Remaining <= 5 && v.Remaining > 0 {
			fmt.Fprintf(w, "  %ds left\n", v.Remaining)
		}
		if v.Notice != "" && (prev == nil || prev.Notice != v.Notice) {
			fmt.Fprintf(w, "  ! %s\n", v.Notice)
		}
	case app.StateWaitingForOpponent:
		if prev == nil || prev.State != v.State {
			fmt.Fprintln(w, "  answer locked, waiting for opponent...")
		}
		if v.OpponentAnswered && (prev == nil || !prev.OpponentAnswered) {
			fmt.Fprintln(w, "  opponent answered")
		}
	case app.StateRoundReview:
		if v.LastResult != nil && (prev == nil || prev.State != v.State) {
			renderRoundResult(w, *v.LastResult, userID)
		}
	case app.StateFinished:
		if v.Outcome == nil {
			if prev == nil || prev.State != v.State {
				fmt.Fprintln(w, "game over, fetching final results...")
			}
			return
		}
		if prev == nil || prev.Outcome == nil {
			renderOutcome(w, *v.Outcome, userID)
		}
		if v.Notice != "" && (prev == nil || prev.Notice != v.Notice) {
			fmt.Fprintf(w, "  ! %s\n", v.Notice)
		}
	case app.StateAborted:
		if prev == nil || prev.State != v.State {
			fmt.Fprintf(w, "session aborted: %v\n", v.Err)
		}
	}
}

func renderQuestion(w io.Writer, v app.View) {
	fmt.Fprintf(w, "\nQuestion %d/%d (%ds)\n", v.Round+1, v.TotalRounds, v.Limit)
	fmt.Fprintf(w, "  %s\n", v.Question.Description)
	for i, opt := range v.Question.Options {
		fmt.Fprintf(w, "  [%d] %s\n", i+1, opt.Text)
	}
}

func renderRoundResult(w io.Writer, r domain.RoundResult, userID string) {
	mine, ok := r.For(userID)
	switch {
	case !ok:
		fmt.Fprintf(w, "  round over, correct answer: %s\n", r.CorrectAnswer)
	case mine.IsCorrect:
		fmt.Fprintf(w, "  correct! +%d (score %d)\n", mine.Points, mine.NewScore)
	default:
		fmt.Fprintf(w, "  wrong, correct answer: %s (score %d)\n", r.CorrectAnswer, mine.NewScore)
	}
}

func renderOutcome(w io.Writer, o app.Outcome, userID string) {
	fmt.Fprintf(w, "\n=== %s ===\n", o.Result)
	ids := make([]string, 0, len(o.Scores))
	for id := range o.Scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		label := id
		if id == userID {
			label = "you"
		}
		fmt.Fprintf(w, "  %-10s %d\n", label, o.Scores[id])
	}
	if o.Provisional {
		fmt.Fprintln(w, "  (provisional result, rating not available)")
	}
	if delta, ok := o.RatingChanges[userID]; ok {
		fmt.Fprintf(w, "  rating %s -> %d\n", signed(delta), o.NewRatings[userID])
	}
	if o.Tier != nil {
		renderTier(w, *o.Tier)
	}
	for _, e := range o.Review {
		answer := e.Answer
		if answer == "" {
			answer = "-"
		}
		fmt.Fprintf(w, "  %2d. %-9s %s (you: %s, correct: %s)\n", e.Index+1, e.Verdict, e.Description, answer, e.CorrectAnswer)
	}
}

func renderTier(w io.Writer, info rank.Info) {
	fmt.Fprintf(w, "  tier %s (%.0f%%", info.Tier.Name, info.Progress)
	if info.Next != nil {
		fmt.Fprintf(w, ", %d to %s", info.PointsToNext, info.Next.Name)
	}
	fmt.Fprintln(w, ")")
}

func signed(n int) string {
	if n > 0 {
		return "+" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// parseChoice maps a 1-based option number or the literal option text to the option text.
func parseChoice(q *domain.Question, input string) (string, bool) {
	input = strings.TrimSpace(input)
	if q == nil || input == "" {
		return "", false
	}
	if n, err := strconv.Atoi(input); err == nil {
		if n < 1 || n > len(q.Options) {
			return "", false
		}
		return q.Options[n-1].Text, true
	}
	for _, opt := range q.Options {
		if strings.EqualFold(opt.Text, input) {
			return opt.Text, true
		}
	}
	return "", false
}
