package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-duel-client/internal/domain"
)

// Recorder keeps match history in memory, one record per (user, game).
type Recorder struct {
	mu      sync.RWMutex
	history map[string]map[string]domain.MatchRecord
}

func NewRecorder() *Recorder {
	return &Recorder{history: make(map[string]map[string]domain.MatchRecord)}
}

func (r *Recorder) Record(_ context.Context, rec domain.MatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byGame, ok := r.history[rec.UserID]
	if !ok {
		byGame = make(map[string]domain.MatchRecord)
		r.history[rec.UserID] = byGame
	}
	if _, seen := byGame[rec.GameID]; !seen {
		byGame[rec.GameID] = rec
	}
	return nil
}

// History returns userID's matches, most recent first.
func (r *Recorder) History(userID string) []domain.MatchRecord {
	r.mu.RLock()
	out := make([]domain.MatchRecord, 0, len(r.history[userID]))
	for _, rec := range r.history[userID] {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FinishedAt.Equal(out[j].FinishedAt) {
			return out[i].FinishedAt.After(out[j].FinishedAt)
		}
		return out[i].GameID < out[j].GameID
	})
	return out
}
