package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-duel-client/internal/domain"
)

// Recorder persists finished duels to the match_history table.
type Recorder struct {
	pool *pgxpool.Pool
}

func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Record inserts rec once; re-recording the same (user, game) is a no-op.
func (r *Recorder) Record(ctx context.Context, rec domain.MatchRecord) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO match_history
    (game_id, user_id, opponent_id, topic, result, score, opponent_score, rating_change, new_rating, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (user_id, game_id) DO NOTHING`,
		rec.GameID, rec.UserID, rec.OpponentID, rec.Topic, string(rec.Result),
		rec.Score, rec.OpponentScore, rec.RatingChange, rec.NewRating, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record match: %w", err)
	}
	return nil
}

// History returns up to limit of userID's matches, most recent first.
func (r *Recorder) History(ctx context.Context, userID string, limit int) ([]domain.MatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
SELECT game_id, user_id, opponent_id, topic, result, score, opponent_score, rating_change, new_rating, finished_at
FROM match_history
WHERE user_id = $1
ORDER BY finished_at DESC, game_id
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var out []domain.MatchRecord
	for rows.Next() {
		var (
			rec    domain.MatchRecord
			result string
		)
		if err := rows.Scan(&rec.GameID, &rec.UserID, &rec.OpponentID, &rec.Topic, &result,
			&rec.Score, &rec.OpponentScore, &rec.RatingChange, &rec.NewRating, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Result = domain.MatchResult(result)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return out, nil
}
