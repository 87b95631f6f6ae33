package app_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-duel-client/internal/app"
	"quiz-duel-client/internal/domain"
	"quiz-duel-client/internal/protocol"
)

// fakeClock hands out unbuffered channels, so a tick or fire only succeeds when the
// session loop is actually selecting on that channel.
type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeAlarm
	timers  []*fakeAlarm
}

type fakeAlarm struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (a *fakeAlarm) C() <-chan time.Time { return a.ch }
func (a *fakeAlarm) Stop()               { a.stopped.Store(true) }

func (c *fakeClock) NewTicker(time.Duration) app.Ticker {
	a := &fakeAlarm{ch: make(chan time.Time)}
	c.mu.Lock()
	c.tickers = append(c.tickers, a)
	c.mu.Unlock()
	return a
}

func (c *fakeClock) NewTimer(time.Duration) app.Timer {
	a := &fakeAlarm{ch: make(chan time.Time)}
	c.mu.Lock()
	c.timers = append(c.timers, a)
	c.mu.Unlock()
	return a
}

func (c *fakeClock) tickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

func (c *fakeClock) ticker(i int) *fakeAlarm {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickers[i]
}

func (c *fakeClock) lastTicker(t *testing.T) *fakeAlarm {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		t.Fatalf("no ticker created")
	}
	return c.tickers[len(c.tickers)-1]
}

func (c *fakeClock) lastTimer(t *testing.T) *fakeAlarm {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		t.Fatalf("no review timer created")
	}
	return c.timers[len(c.timers)-1]
}

func (c *fakeClock) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if !deliver(c.lastTicker(t), time.Second) {
			t.Fatalf("tick %d not consumed", i+1)
		}
	}
}

func (c *fakeClock) fireReview(t *testing.T) {
	t.Helper()
	if !deliver(c.lastTimer(t), time.Second) {
		t.Fatalf("review expiry not consumed")
	}
}

func deliver(a *fakeAlarm, wait time.Duration) bool {
	select {
	case a.ch <- time.Now():
		return true
	case <-time.After(wait):
		return false
	}
}

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	sendErr   error
	sent      []protocol.Outbound
	events    chan protocol.Inbound
	released  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connected: true, events: make(chan protocol.Inbound, 32)}
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeTransport) Send(_ context.Context, ev protocol.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return domain.ErrNotConnected
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeTransport) Subscribe() (<-chan protocol.Inbound, func()) {
	var once sync.Once
	return f.events, func() {
		once.Do(func() {
			f.mu.Lock()
			f.released++
			f.mu.Unlock()
		})
	}
}

func (f *fakeTransport) push(ev protocol.Inbound) {
	f.events <- ev
}

func (f *fakeTransport) sentFrames() []protocol.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Outbound(nil), f.sent...)
}

func (f *fakeTransport) answers() []protocol.SubmitAnswer {
	var out []protocol.SubmitAnswer
	for _, ev := range f.sentFrames() {
		if a, ok := ev.(protocol.SubmitAnswer); ok {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeTransport) releasedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

type fetchResponse struct {
	game domain.GameSession
	err  error
}

// fakeFetcher serves responses in order, repeating the last one. When gate is set the
// first call blocks until the gate is closed.
type fakeFetcher struct {
	mu        sync.Mutex
	calls     int
	responses []fetchResponse
	gate      chan struct{}
}

func (f *fakeFetcher) FetchGame(ctx context.Context, _ string) (domain.GameSession, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	resp := f.responses[len(f.responses)-1]
	if n <= len(f.responses) {
		resp = f.responses[n-1]
	}
	gate := f.gate
	f.mu.Unlock()

	if n == 1 && gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.GameSession{}, ctx.Err()
		}
	}
	return resp.game, resp.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func ptr[T any](v T) *T { return &v }

func sampleGame() domain.GameSession {
	return domain.GameSession{
		ID:     "g1",
		Topic:  "arithmetic",
		Status: domain.StatusPlaying,
		Players: []domain.PlayerState{
			{UserID: "u1", Name: "alice"},
			{UserID: "u2", Name: "bob"},
		},
		Questions: []domain.Question{
			{ID: "q1", Description: "2+2?", Options: []domain.Option{{Text: "3"}, {Text: "4"}}, TimeLimit: 10},
			{ID: "q2", Description: "3+3?", Options: []domain.Option{{Text: "6"}, {Text: "7"}}},
			{ID: "q3", Description: "4+4?", Options: []domain.Option{{Text: "8"}, {Text: "9"}}, TimeLimit: 5},
		},
	}
}

func finishedGame(winner string) domain.GameSession {
	g := sampleGame()
	g.Status = domain.StatusFinished
	g.WinnerID = ptr(winner)
	g.Players[0].Score = 20
	g.Players[0].RatingChange = ptr(16)
	g.Players[0].NewRating = ptr(1216)
	g.Players[0].Answers = []domain.AnswerRecord{
		{QuestionID: "q1", Answer: "4", TimeTaken: 3, IsCorrect: ptr(true)},
		{QuestionID: "q2", Answer: "", TimeTaken: 60, IsCorrect: ptr(false)},
		{QuestionID: "q3", Answer: "9", TimeTaken: 2, IsCorrect: ptr(false)},
	}
	g.Players[1].Score = 10
	g.Players[1].RatingChange = ptr(-16)
	g.Players[1].NewRating = ptr(984)
	return g
}

type harness struct {
	clock     *fakeClock
	transport *fakeTransport
	fetcher   *fakeFetcher
	handle    *app.Handle
}

func enter(t *testing.T, fetcher *fakeFetcher, opts ...app.SessionOption) *harness {
	t.Helper()
	return enterAs(t, "u1", fetcher, opts...)
}

func enterAs(t *testing.T, userID string, fetcher *fakeFetcher, opts ...app.SessionOption) *harness {
	t.Helper()
	h := &harness{clock: &fakeClock{}, transport: newFakeTransport(), fetcher: fetcher}
	session := app.NewSession("g1", h.transport, fetcher, app.SessionConfig{
		UserID:       userID,
		Tick:         time.Second,
		ReviewWindow: 5 * time.Second,
		Clock:        h.clock,
	}, opts...)
	handle, err := session.Enter(context.Background())
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	h.handle = handle
	t.Cleanup(handle.Leave)
	return h
}

func (h *harness) view(t *testing.T) app.View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := h.handle.View(ctx)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	return v
}

func (h *harness) waitFor(t *testing.T, desc string, pred func(app.View) bool) app.View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		v := h.view(t)
		if pred(v) {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, last view state=%s round=%d", desc, v.State, v.Round)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) waitState(t *testing.T, state app.State) app.View {
	t.Helper()
	return h.waitFor(t, string(state), func(v app.View) bool { return v.State == state })
}

func (h *harness) selectOption(t *testing.T, option string) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return h.handle.Select(ctx, option)
}
