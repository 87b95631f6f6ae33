package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"quiz-duel-client/internal/domain"
	"quiz-duel-client/internal/protocol"
)

// Transport is the persistent connection as seen by matchmaking and sessions.
type Transport interface {
	IsConnected() bool
	Send(ctx context.Context, ev protocol.Outbound) error
	Subscribe() (<-chan protocol.Inbound, func())
}

// SnapshotFetcher loads the authoritative snapshot of a game.
type SnapshotFetcher interface {
	FetchGame(ctx context.Context, gameID string) (domain.GameSession, error)
}

// SessionRegistry tracks the open session per game id (in-memory, Redis, etc).
type SessionRegistry interface {
	Register(gameID string, h *Handle) error
	Get(gameID string) (*Handle, bool)
	// Remove unregisters h; a newer handle for the same game is left alone.
	Remove(gameID string, h *Handle)
}

// Recorder keeps finished duels in local history.
type Recorder interface {
	Record(ctx context.Context, rec domain.MatchRecord) error
}

// DuelService wires matchmaking to match sessions.
type DuelService struct {
	transport  Transport
	matchmaker *Matchmaker
	fetcher    SnapshotFetcher
	sessions   SessionRegistry
	recorder   Recorder
	cfg        SessionConfig
	logger     *zap.Logger
}

type ServiceOption func(*DuelService)

func WithRecorder(r Recorder) ServiceOption {
	return func(s *DuelService) { s.recorder = r }
}

func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *DuelService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewDuelService(transport Transport, matchmaker *Matchmaker, fetcher SnapshotFetcher, sessions SessionRegistry, cfg SessionConfig, opts ...ServiceOption) *DuelService {
	s := &DuelService{
		transport:  transport,
		matchmaker: matchmaker,
		fetcher:    fetcher,
		sessions:   sessions,
		cfg:        cfg,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindMatch resolves a match intent to a game id.
func (s *DuelService) FindMatch(ctx context.Context, intent domain.MatchIntent) (string, error) {
	return s.matchmaker.Run(ctx, intent)
}

// Open enters the session for gameID. A game can only have one open session.
func (s *DuelService) Open(ctx context.Context, gameID string) (*Handle, error) {
	if gameID == "" {
		return nil, domain.ErrGameNotFound
	}
	if existing, ok := s.sessions.Get(gameID); ok && !existing.Closed() {
		return nil, domain.ErrSessionActive
	}

	session := NewSession(gameID, s.transport, s.fetcher, s.cfg,
		WithSessionLogger(s.logger),
		WithSessionRecorder(s.recorder),
	)
	h, err := session.Enter(ctx)
	if err != nil {
		return nil, err
	}
	h.onLeave = func() { s.sessions.Remove(gameID, h) }
	if err := s.sessions.Register(gameID, h); err != nil {
		h.Leave()
		return nil, err
	}
	s.logger.Info("session_opened", zap.String("game_id", gameID))
	return h, nil
}

// Play finds a match and opens its session.
func (s *DuelService) Play(ctx context.Context, intent domain.MatchIntent) (*Handle, error) {
	gameID, err := s.FindMatch(ctx, intent)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, gameID)
}

// Leave closes the open session for gameID, if any.
func (s *DuelService) Leave(gameID string) {
	if h, ok := s.sessions.Get(gameID); ok {
		h.Leave()
	}
}

// SessionConfig carries the per-session timings and identity.
type SessionConfig struct {
	UserID           string
	Tick             time.Duration
	ReviewWindow     time.Duration
	DefaultTimeLimit int
	SendTimeout      time.Duration
	Clock            Clock
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.ReviewWindow <= 0 {
		c.ReviewWindow = 5 * time.Second
	}
	if c.DefaultTimeLimit <= 0 {
		c.DefaultTimeLimit = domain.DefaultTimeLimit
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	return c
}

// limitOf is the round limit in ticks: the question's own, else the configured default.
func (c SessionConfig) limitOf(q domain.Question) int {
	if q.TimeLimit > 0 {
		return q.TimeLimit
	}
	return c.DefaultTimeLimit
}

var errNoUser = errors.New("session config: user id required")
