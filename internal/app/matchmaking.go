package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"quiz-duel-client/internal/domain"
	"quiz-duel-client/internal/protocol"
)

// Matchmaker turns a match intent into a game id. It holds at most one outstanding request.
type Matchmaker struct {
	transport  Transport
	logger     *zap.Logger
	onRoomCode func(code string)

	mu   sync.Mutex
	busy bool
}

type MatchmakerOption func(*Matchmaker)

func WithMatchmakerLogger(l *zap.Logger) MatchmakerOption {
	return func(m *Matchmaker) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRoomCodeHandler is called by Run once a private room has its share code.
func WithRoomCodeHandler(fn func(code string)) MatchmakerOption {
	return func(m *Matchmaker) { m.onRoomCode = fn }
}

func NewMatchmaker(transport Transport, opts ...MatchmakerOption) *Matchmaker {
	m := &Matchmaker{transport: transport, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run dispatches intent to the matching request.
func (m *Matchmaker) Run(ctx context.Context, intent domain.MatchIntent) (string, error) {
	switch intent.Mode {
	case domain.ModePublic:
		return m.QueuePublic(ctx, intent.Topic, intent.Category, intent.Rating)
	case domain.ModePrivateCreate:
		room, err := m.CreatePrivate(ctx, intent.Topic, intent.Category)
		if err != nil {
			return "", err
		}
		defer room.Close()
		if m.onRoomCode != nil {
			m.onRoomCode(room.Code)
		}
		return room.Await(ctx)
	case domain.ModePrivateJoin:
		return m.JoinPrivate(ctx, intent.Code)
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownMode, intent.Mode)
	}
}

// QueuePublic joins the public queue and waits for a match. Cancelling ctx leaves the queue.
func (m *Matchmaker) QueuePublic(ctx context.Context, topic, category string, rating int) (string, error) {
	if !m.transport.IsConnected() {
		return "", domain.ErrNotConnected
	}
	if err := m.acquire(); err != nil {
		return "", err
	}
	defer m.releaseBusy()

	events, release := m.transport.Subscribe()
	defer release()

	if err := m.transport.Send(ctx, protocol.JoinQueue{Topic: topic, Category: category, Rating: rating}); err != nil {
		return "", err
	}
	m.logger.Info("queue_joined", zap.String("topic", topic), zap.String("category", category), zap.Int("rating", rating))

	gameID, err := awaitGame(ctx, events, func(e protocol.Error) error {
		return &domain.AuthorityError{Message: e.Message}
	})
	if err != nil && ctx.Err() != nil {
		m.leaveQueue()
	}
	return gameID, err
}

// CreatePrivate asks for a private room and returns once its code is known.
func (m *Matchmaker) CreatePrivate(ctx context.Context, topic, category string) (*PrivateRoom, error) {
	if !m.transport.IsConnected() {
		return nil, domain.ErrNotConnected
	}
	if err := m.acquire(); err != nil {
		return nil, err
	}

	events, release := m.transport.Subscribe()
	room := &PrivateRoom{events: events, release: release, done: m.releaseBusy}

	if err := m.transport.Send(ctx, protocol.CreatePrivate{Topic: topic, Category: category}); err != nil {
		room.Close()
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			room.Close()
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				room.Close()
				return nil, domain.ErrNotConnected
			}
			switch e := ev.(type) {
			case protocol.PrivateCreated:
				room.Code = e.Code
				m.logger.Info("private_room_created", zap.String("code", e.Code))
				return room, nil
			case protocol.Error:
				room.Close()
				return nil, &domain.AuthorityError{Message: e.Message}
			}
		}
	}
}

// JoinPrivate joins a room by code. Malformed and rejected codes both yield ErrInvalidRoomCode.
func (m *Matchmaker) JoinPrivate(ctx context.Context, code string) (string, error) {
	code = domain.NormalizeCode(code)
	if !domain.ValidCode(code) {
		return "", domain.ErrInvalidRoomCode
	}
	if !m.transport.IsConnected() {
		return "", domain.ErrNotConnected
	}
	if err := m.acquire(); err != nil {
		return "", err
	}
	defer m.releaseBusy()

	events, release := m.transport.Subscribe()
	defer release()

	if err := m.transport.Send(ctx, protocol.JoinPrivate{Code: code}); err != nil {
		return "", err
	}
	return awaitGame(ctx, events, func(e protocol.Error) error {
		m.logger.Info("private_join_rejected", zap.String("code", code), zap.String("reason", e.Message))
		return domain.ErrInvalidRoomCode
	})
}

func (m *Matchmaker) acquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return domain.ErrQueueBusy
	}
	m.busy = true
	return nil
}

func (m *Matchmaker) releaseBusy() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

func (m *Matchmaker) leaveQueue() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.transport.Send(ctx, protocol.LeaveQueue{}); err != nil {
		m.logger.Warn("leave_queue_failed", zap.Error(err))
		return
	}
	m.logger.Info("queue_left")
}

// PrivateRoom is a created room waiting for an opponent.
type PrivateRoom struct {
	Code string

	events  <-chan protocol.Inbound
	release func()
	done    func()
	once    sync.Once
}

// Await blocks until an opponent joins and the game id is known.
func (r *PrivateRoom) Await(ctx context.Context) (string, error) {
	return awaitGame(ctx, r.events, func(e protocol.Error) error {
		return &domain.AuthorityError{Message: e.Message}
	})
}

// Close stops listening for the room. Safe to call repeatedly.
func (r *PrivateRoom) Close() {
	r.once.Do(func() {
		r.release()
		r.done()
	})
}

func awaitGame(ctx context.Context, events <-chan protocol.Inbound, onError func(protocol.Error) error) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return "", domain.ErrNotConnected
			}
			switch e := ev.(type) {
			case protocol.MatchFound:
				return e.GameID, nil
			case protocol.GameStarted:
				return e.GameID, nil
			case protocol.Error:
				return "", onError(e)
			}
		}
	}
}
