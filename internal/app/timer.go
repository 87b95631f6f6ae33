package app

import "time"

// RoundTimer counts down one round. It is bound to a single round index and is
// replaced, never reused, when the session moves on.
type RoundTimer struct {
	round     int
	limit     int
	remaining int
	ticker    Ticker
}

func startRoundTimer(clock Clock, tick time.Duration, round, limit, remaining int) *RoundTimer {
	if remaining <= 0 || remaining > limit {
		remaining = limit
	}
	return &RoundTimer{
		round:     round,
		limit:     limit,
		remaining: remaining,
		ticker:    clock.NewTicker(tick),
	}
}

// C is nil for a nil timer, so a select on it never fires.
func (t *RoundTimer) C() <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.ticker.C()
}

// Tick decrements the countdown if the timer still belongs to round.
// It reports whether the tick was accepted and whether the countdown reached zero.
func (t *RoundTimer) Tick(round int) (accepted, expired bool) {
	if t == nil || t.round != round || t.remaining <= 0 {
		return false, false
	}
	t.remaining--
	return true, t.remaining == 0
}

func (t *RoundTimer) Remaining() int {
	if t == nil {
		return 0
	}
	return t.remaining
}

func (t *RoundTimer) Limit() int {
	if t == nil {
		return 0
	}
	return t.limit
}

// Elapsed is the time taken so far, in ticks.
func (t *RoundTimer) Elapsed() int {
	if t == nil {
		return 0
	}
	return t.limit - t.remaining
}

// Resume starts a fresh timer for the same round, keeping the remaining time.
func (t *RoundTimer) Resume(clock Clock, tick time.Duration) *RoundTimer {
	return startRoundTimer(clock, tick, t.round, t.limit, t.remaining)
}

func (t *RoundTimer) Stop() {
	if t != nil {
		t.ticker.Stop()
	}
}
