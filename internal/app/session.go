package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"quiz-duel-client/internal/domain"
	"quiz-duel-client/internal/protocol"
)

// State is the client-side phase of a duel.
type State string

const (
	StateHydrating          State = "HYDRATING"
	StatePlaying            State = "PLAYING"
	StateSubmitting         State = "SUBMITTING"
	StateWaitingForOpponent State = "WAITING_FOR_OPPONENT"
	StateRoundReview        State = "ROUND_REVIEW"
	StateFinished           State = "FINISHED"
	StateAborted            State = "ABORTED"
)

// View is an immutable snapshot of a session for display.
type View struct {
	GameID           string
	State            State
	Round            int
	TotalRounds      int
	Question         *domain.Question
	Remaining        int
	Limit            int
	Selected         string
	Locked           bool
	Scores           map[string]int
	LastResult       *domain.RoundResult
	OpponentAnswered bool
	Finalizing       bool
	Outcome          *Outcome
	Notice           string
	Err              error
}

type SessionOption func(*Session)

func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSessionRecorder(r Recorder) SessionOption {
	return func(s *Session) { s.recorder = r }
}

// Session drives one duel. All state below the channels is owned by the loop goroutine;
// everything else talks to it through the inbox.
type Session struct {
	gameID    string
	cfg       SessionConfig
	transport Transport
	fetcher   SnapshotFetcher
	recorder  Recorder
	logger    *zap.Logger

	started atomic.Bool
	inbox   chan any
	updates chan View
	done    chan struct{}

	state            State
	game             domain.GameSession
	round            int
	timer            *RoundTimer
	ticking          bool
	review           Timer
	locked           bool
	selected         string
	lastResult       *domain.RoundResult
	correctAnswers   map[string]string
	opponentAnswered bool
	buffered         []protocol.Inbound
	pendingOver      *protocol.GameOver
	over             protocol.GameOver
	finalizing       bool
	outcome          *Outcome
	notice           string
	err              error
}

type selectRequest struct {
	option string
	reply  chan error
}

type viewRequest struct {
	reply chan View
}

type fetchResult struct {
	terminal bool
	game     domain.GameSession
	err      error
}

func NewSession(gameID string, transport Transport, fetcher SnapshotFetcher, cfg SessionConfig, opts ...SessionOption) *Session {
	s := &Session{
		gameID:         gameID,
		cfg:            cfg.withDefaults(),
		transport:      transport,
		fetcher:        fetcher,
		logger:         zap.NewNop(),
		inbox:          make(chan any, 8),
		updates:        make(chan View, 1),
		done:           make(chan struct{}),
		correctAnswers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("game_id", gameID))
	return s
}

// Enter subscribes to the connection and starts the session loop. A session can be entered once.
func (s *Session) Enter(ctx context.Context) (*Handle, error) {
	if s.cfg.UserID == "" {
		return nil, errNoUser
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil, domain.ErrSessionActive
	}
	events, release := s.transport.Subscribe()
	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{session: s, cancel: cancel, release: release}
	go s.run(loopCtx, events)
	return h, nil
}

func (s *Session) run(ctx context.Context, events <-chan protocol.Inbound) {
	defer func() {
		s.stopTimer()
		s.stopReview()
		close(s.updates)
		close(s.done)
	}()

	s.state = StateHydrating
	s.fetch(ctx, false)
	s.publish()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.inbox:
			s.handleMessage(ctx, msg)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ctx, ev)
		case <-s.tickC():
			s.onTick(ctx)
		case <-s.reviewC():
			s.onReviewElapsed(ctx)
		}
		s.publish()
	}
}

func (s *Session) handleMessage(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case selectRequest:
		m.reply <- s.handleSelect(ctx, m.option)
	case viewRequest:
		m.reply <- s.view()
	case fetchResult:
		if m.terminal {
			s.onRefetched(ctx, m)
		} else {
			s.onHydrated(ctx, m)
		}
	}
}

// fetch runs off the loop and posts its result back to the inbox.
func (s *Session) fetch(ctx context.Context, terminal bool) {
	go func() {
		game, err := s.fetcher.FetchGame(ctx, s.gameID)
		select {
		case s.inbox <- fetchResult{terminal: terminal, game: game, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) onHydrated(ctx context.Context, m fetchResult) {
	if s.state != StateHydrating {
		return
	}
	if m.err != nil {
		s.abort(fmt.Errorf("hydrate %s: %w", s.gameID, m.err))
		return
	}
	if !m.game.IsParticipant(s.cfg.UserID) {
		s.abort(domain.ErrNotParticipant)
		return
	}
	s.game = m.game.Clone()

	if s.game.Status == domain.StatusFinished {
		s.buffered = nil
		s.over = protocol.GameOver{WinnerID: s.game.Winner()}
		s.locked = true
		s.transition(StateFinished)
		s.complete(ctx, false)
		return
	}

	me, _ := s.game.Player(s.cfg.UserID)
	s.round = len(me.Answers)
	s.beginRound()

	buffered := s.buffered
	s.buffered = nil
	for _, ev := range buffered {
		s.handleEvent(ctx, ev)
	}
}

// beginRound arms a fresh timer for s.round, or waits for the result when no rounds remain.
func (s *Session) beginRound() {
	s.stopTimer()
	s.timer = nil
	s.locked = false
	s.selected = ""
	s.lastResult = nil
	s.opponentAnswered = false
	s.notice = ""

	if s.round >= len(s.game.Questions) {
		s.transition(StateWaitingForOpponent)
		return
	}
	q := s.game.Questions[s.round]
	s.timer = startRoundTimer(s.cfg.Clock, s.cfg.Tick, s.round, s.cfg.limitOf(q), 0)
	s.ticking = true
	s.transition(StatePlaying)
}

func (s *Session) handleSelect(ctx context.Context, option string) error {
	switch s.state {
	case StateFinished, StateAborted:
		return domain.ErrSessionClosed
	case StatePlaying:
	default:
		return nil
	}
	if s.locked {
		return nil
	}
	if !s.transport.IsConnected() {
		return domain.ErrNotConnected
	}

	s.locked = true
	s.selected = option
	if err := s.submit(ctx, option, s.timer.Elapsed()); err != nil {
		s.locked = false
		s.selected = ""
		return err
	}
	s.transition(StateSubmitting)
	return nil
}

func (s *Session) onTick(ctx context.Context) {
	accepted, expired := s.timer.Tick(s.round)
	if !accepted {
		s.logger.Debug("stale_tick_ignored", zap.Int("round", s.round))
		s.stopTimer()
		return
	}
	if !expired {
		return
	}
	s.stopTimer()
	if s.locked {
		return
	}

	s.locked = true
	if err := s.submit(ctx, "", s.timer.Limit()); err != nil {
		s.locked = false
		s.notice = err.Error()
		return
	}
	s.transition(StateSubmitting)
}

func (s *Session) submit(ctx context.Context, answer string, timeTaken int) error {
	q := s.game.Questions[s.round]
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	err := s.transport.Send(sendCtx, protocol.SubmitAnswer{
		GameID:     s.gameID,
		QuestionID: q.ID,
		Answer:     answer,
		TimeTaken:  timeTaken,
	})
	if err != nil {
		s.logger.Warn("submit_answer_failed", zap.Int("round", s.round), zap.Error(err))
		return err
	}
	s.logger.Info("submit_answer",
		zap.Int("round", s.round),
		zap.String("question_id", q.ID),
		zap.Bool("timed_out", answer == ""),
		zap.Int("time_taken", timeTaken),
	)
	return nil
}

func (s *Session) handleEvent(ctx context.Context, ev protocol.Inbound) {
	if s.state == StateHydrating {
		s.buffered = append(s.buffered, ev)
		return
	}
	switch e := ev.(type) {
	case protocol.WaitingForOpponent:
		if s.state == StateSubmitting {
			s.stopTimer()
			s.transition(StateWaitingForOpponent)
		}
	case protocol.OpponentAnswered:
		s.opponentAnswered = true
	case protocol.RoundOver:
		s.onRoundOver(e)
	case protocol.GameOver:
		s.onGameOver(ctx, e)
	case protocol.Error:
		s.onAuthorityError(e)
	default:
		s.logger.Debug("event_ignored", zap.String("type", ev.InboundType()), zap.String("state", string(s.state)))
	}
}

func (s *Session) onRoundOver(e protocol.RoundOver) {
	switch s.state {
	case StatePlaying, StateSubmitting, StateWaitingForOpponent:
	default:
		s.logger.Debug("round_over_ignored", zap.String("state", string(s.state)))
		return
	}
	// round_over carries no round id. One that lands before the first tick of a resumed
	// round may belong to the round already answered; it is applied to the current round.
	if s.state == StatePlaying && s.timer != nil && s.timer.Elapsed() == 0 {
		s.logger.Warn("round_over_before_first_tick",
			zap.Int("round", s.round),
			zap.String("question_id", s.game.Questions[s.round].ID),
		)
	}
	result := e.Result()
	s.applyResult(result)
	if s.round >= len(s.game.Questions) {
		return
	}

	s.stopTimer()
	s.lastResult = &result
	s.locked = true
	s.review = s.cfg.Clock.NewTimer(s.cfg.ReviewWindow)
	s.transition(StateRoundReview)
}

// applyResult copies authority scores and overwrites this user's answer for the round.
func (s *Session) applyResult(result domain.RoundResult) {
	var q *domain.Question
	if s.round < len(s.game.Questions) {
		q = &s.game.Questions[s.round]
		if result.CorrectAnswer != "" {
			s.correctAnswers[q.ID] = result.CorrectAnswer
		}
	}
	for _, line := range result.PerPlayer {
		p, ok := s.game.Player(line.UserID)
		if !ok {
			continue
		}
		p.Score = line.NewScore
		if line.UserID != s.cfg.UserID || q == nil {
			continue
		}
		correct := line.IsCorrect
		rec := domain.AnswerRecord{QuestionID: q.ID, Answer: line.Answer, TimeTaken: line.TimeTaken, IsCorrect: &correct}
		replaced := false
		for i := range p.Answers {
			if p.Answers[i].QuestionID == q.ID {
				p.Answers[i] = rec
				replaced = true
			}
		}
		if !replaced {
			p.Answers = append(p.Answers, rec)
		}
	}
}

func (s *Session) onReviewElapsed(ctx context.Context) {
	s.review = nil
	if s.state != StateRoundReview {
		return
	}
	s.round++
	if s.pendingOver != nil {
		over := *s.pendingOver
		s.pendingOver = nil
		s.finish(ctx, over)
		return
	}
	s.beginRound()
}

func (s *Session) onGameOver(ctx context.Context, e protocol.GameOver) {
	switch s.state {
	case StateRoundReview:
		s.pendingOver = &e
	case StateFinished, StateAborted:
	default:
		s.finish(ctx, e)
	}
}

func (s *Session) onAuthorityError(e protocol.Error) {
	authErr := &domain.AuthorityError{Message: e.Message}
	s.notice = authErr.Error()
	s.logger.Warn("authority_error", zap.String("state", string(s.state)), zap.String("message", e.Message))

	switch s.state {
	case StateSubmitting, StateWaitingForOpponent:
	default:
		return
	}
	if s.round >= len(s.game.Questions) {
		return
	}
	s.locked = false
	s.selected = ""
	if s.timer != nil && !s.ticking && s.timer.Remaining() > 0 {
		s.timer = s.timer.Resume(s.cfg.Clock, s.cfg.Tick)
		s.ticking = true
	}
	s.transition(StatePlaying)
}

// finish enters FINISHED and re-fetches the snapshot before publishing the outcome.
func (s *Session) finish(ctx context.Context, e protocol.GameOver) {
	s.stopTimer()
	s.stopReview()
	s.over = e
	s.locked = true
	s.finalizing = true
	s.transition(StateFinished)
	s.fetch(ctx, true)
}

func (s *Session) onRefetched(ctx context.Context, m fetchResult) {
	if !s.finalizing {
		return
	}
	s.finalizing = false
	if m.err != nil {
		s.notice = "final results unavailable: " + m.err.Error()
		s.logger.Warn("terminal_refetch_failed", zap.Error(m.err))
		s.complete(ctx, true)
		return
	}
	s.game = m.game.Clone()
	if s.over.WinnerID == nil {
		s.over.WinnerID = s.game.Winner()
	}
	s.complete(ctx, false)
}

func (s *Session) complete(ctx context.Context, provisional bool) {
	outcome := buildOutcome(s.game, s.cfg.UserID, s.over.WinnerID, s.correctAnswers, provisional)
	s.outcome = &outcome
	s.logger.Info("match_finished",
		zap.String("result", string(outcome.Result)),
		zap.Bool("provisional", provisional),
	)
	if provisional || s.recorder == nil {
		return
	}
	rec := outcome.Record(s.game, s.cfg.UserID, time.Now())
	recorder, logger := s.recorder, s.logger
	go func() {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := recorder.Record(recordCtx, rec); err != nil {
			logger.Warn("record_match_failed", zap.Error(err))
		}
	}()
}

func (s *Session) abort(err error) {
	s.stopTimer()
	s.stopReview()
	s.buffered = nil
	s.err = err
	s.transition(StateAborted)
	s.logger.Error("session_aborted", zap.Error(err))
}

func (s *Session) transition(next State) {
	if s.state == next {
		return
	}
	s.logger.Debug("session_transition",
		zap.String("from", string(s.state)),
		zap.String("to", string(next)),
		zap.Int("round", s.round),
	)
	s.state = next
}

func (s *Session) stopTimer() {
	if s.timer != nil && s.ticking {
		s.timer.Stop()
	}
	s.ticking = false
}

func (s *Session) stopReview() {
	if s.review != nil {
		s.review.Stop()
		s.review = nil
	}
}

func (s *Session) tickC() <-chan time.Time {
	if !s.ticking {
		return nil
	}
	return s.timer.C()
}

func (s *Session) reviewC() <-chan time.Time {
	if s.review == nil {
		return nil
	}
	return s.review.C()
}

func (s *Session) view() View {
	v := View{
		GameID:           s.gameID,
		State:            s.state,
		Round:            s.round,
		TotalRounds:      len(s.game.Questions),
		Selected:         s.selected,
		Locked:           s.locked,
		OpponentAnswered: s.opponentAnswered,
		Finalizing:       s.finalizing,
		Outcome:          s.outcome,
		Notice:           s.notice,
		Err:              s.err,
		Scores:           make(map[string]int, len(s.game.Players)),
	}
	for _, p := range s.game.Players {
		v.Scores[p.UserID] = p.Score
	}
	if s.lastResult != nil {
		r := *s.lastResult
		v.LastResult = &r
	}
	switch s.state {
	case StatePlaying, StateSubmitting, StateWaitingForOpponent, StateRoundReview:
		if s.round < len(s.game.Questions) {
			q := s.game.Questions[s.round]
			v.Question = &q
		}
	}
	if s.timer != nil {
		v.Remaining = s.timer.Remaining()
		v.Limit = s.timer.Limit()
	}
	return v
}

// publish keeps only the latest view for a slow reader.
func (s *Session) publish() {
	v := s.view()
	select {
	case s.updates <- v:
	default:
		select {
		case <-s.updates:
		default:
		}
		s.updates <- v
	}
}

// Handle is the caller's side of an entered session.
type Handle struct {
	session *Session
	cancel  context.CancelFunc
	release func()
	onLeave func()
	once    sync.Once
}

func (h *Handle) GameID() string { return h.session.gameID }

// Updates streams views, latest wins. Closed when the session stops.
func (h *Handle) Updates() <-chan View { return h.session.updates }

// Done is closed when the session loop has stopped.
func (h *Handle) Done() <-chan struct{} { return h.session.done }

// Select submits option for the current round. Repeated selections in a round are no-ops.
func (h *Handle) Select(ctx context.Context, option string) error {
	req := selectRequest{option: option, reply: make(chan error, 1)}
	select {
	case h.session.inbox <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.session.done:
		return domain.ErrSessionClosed
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-h.session.done:
		return domain.ErrSessionClosed
	}
}

// View returns the current view synchronously.
func (h *Handle) View(ctx context.Context) (View, error) {
	req := viewRequest{reply: make(chan View, 1)}
	select {
	case h.session.inbox <- req:
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-h.session.done:
		return View{}, domain.ErrSessionClosed
	}
	select {
	case v := <-req.reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-h.session.done:
		return View{}, domain.ErrSessionClosed
	}
}

// Leave stops the loop, its timers and its subscription. Safe to call repeatedly.
func (h *Handle) Leave() {
	h.once.Do(func() {
		h.cancel()
		<-h.session.done
		h.release()
		if h.onLeave != nil {
			h.onLeave()
		}
	})
}

// Closed reports whether the session loop has stopped.
func (h *Handle) Closed() bool {
	select {
	case <-h.session.done:
		return true
	default:
		return false
	}
}
