// Package ws owns the single authenticated websocket to the duel authority.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-duel-client/internal/domain"
	"quiz-duel-client/internal/protocol"
)

const (
	subscriptionBuffer = 32
	maxFrameBytes      = 1 << 20
)

// CredentialSource yields the bearer token for the handshake. An empty token means none is stored.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// CredentialSourceFunc adapts a plain function to CredentialSource.
type CredentialSourceFunc func(ctx context.Context) (string, error)

func (f CredentialSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// SignalKind classifies connection lifecycle signals.
type SignalKind int

const (
	SignalConnected SignalKind = iota
	SignalDisconnected
	SignalFailed
)

func (k SignalKind) String() string {
	switch k {
	case SignalConnected:
		return "connected"
	case SignalDisconnected:
		return "disconnected"
	case SignalFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Signal is delivered to OnSignal callbacks. Err is set for failures and unexpected drops.
type Signal struct {
	Kind SignalKind
	Err  error
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.dialer.HandshakeTimeout = d
		}
	}
}

// Manager holds at most one live connection. Subscriptions and signal callbacks belong to
// the manager, not to a socket, so they carry over a reconnect.
type Manager struct {
	url    string
	creds  CredentialSource
	dialer *websocket.Dialer
	logger *zap.Logger

	dialMu  sync.Mutex
	writeMu sync.Mutex

	mu         sync.Mutex
	conn       *websocket.Conn
	readerDone chan struct{}
	subs       map[string]*subscription
	signals    map[string]func(Signal)
}

func NewManager(url string, creds CredentialSource, opts ...Option) *Manager {
	m := &Manager{
		url:   url,
		creds: creds,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger:  zap.NewNop(),
		subs:    make(map[string]*subscription),
		signals: make(map[string]func(Signal)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect dials the authority unless a connection is already live.
// Failures are reported through the returned error and SignalFailed, never retried.
func (m *Manager) Connect(ctx context.Context) error {
	m.dialMu.Lock()
	defer m.dialMu.Unlock()

	if m.IsConnected() {
		return nil
	}

	token, err := m.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: load credential: %v", domain.ErrConnection, err)
	}
	if token == "" {
		return domain.ErrMissingCredential
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := m.dialer.DialContext(ctx, m.url, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%v (status %d)", err, resp.StatusCode)
		}
		wrapped := fmt.Errorf("%w: dial: %v", domain.ErrConnection, err)
		m.logger.Warn("ws_connect_failed", zap.String("url", m.url), zap.Error(err))
		m.emit(Signal{Kind: SignalFailed, Err: wrapped})
		return wrapped
	}
	conn.SetReadLimit(maxFrameBytes)

	done := make(chan struct{})
	m.mu.Lock()
	m.conn = conn
	m.readerDone = done
	m.mu.Unlock()

	go m.readLoop(conn, done)

	m.logger.Info("ws_connected", zap.String("url", m.url))
	m.emit(Signal{Kind: SignalConnected})
	return nil
}

// Disconnect closes the live connection. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn, done := m.conn, m.readerDone
	m.conn, m.readerDone = nil, nil
	m.mu.Unlock()
	if conn == nil {
		return
	}

	m.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	m.writeMu.Unlock()
	_ = conn.Close()
	<-done

	m.logger.Info("ws_disconnected")
	m.emit(Signal{Kind: SignalDisconnected})
}

// IsConnected reports whether a connection is live.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Send writes one event. Writes are serialized.
func (m *Manager) Send(ctx context.Context, ev protocol.Outbound) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return domain.ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrConnection, ev.OutboundType(), err)
	}
	m.logger.Debug("ws_sent", zap.String("type", ev.OutboundType()))
	return nil
}

// OnSignal registers cb and returns an id for RemoveSignal.
func (m *Manager) OnSignal(cb func(Signal)) string {
	id := uuid.NewString()
	m.mu.Lock()
	m.signals[id] = cb
	m.mu.Unlock()
	return id
}

func (m *Manager) RemoveSignal(id string) {
	m.mu.Lock()
	delete(m.signals, id)
	m.mu.Unlock()
}

// Subscribe returns a channel of inbound events and an idempotent release func that closes it.
func (m *Manager) Subscribe() (<-chan protocol.Inbound, func()) {
	sub := &subscription{
		ch:   make(chan protocol.Inbound, subscriptionBuffer),
		done: make(chan struct{}),
	}
	id := uuid.NewString()

	m.mu.Lock()
	m.subs[id] = sub
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		sub.close()
	}
	return sub.ch, release
}

func (m *Manager) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.dropped(conn, err)
			return
		}
		ev, err := protocol.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownEvent) {
				m.logger.Debug("ws_unknown_event", zap.Error(err))
			} else {
				m.logger.Warn("ws_decode_failed", zap.Error(err))
			}
			continue
		}
		m.fanout(ev)
	}
}

// dropped clears the connection after a read failure unless Disconnect already did.
func (m *Manager) dropped(conn *websocket.Conn, err error) {
	m.mu.Lock()
	owned := m.conn == conn
	if owned {
		m.conn, m.readerDone = nil, nil
	}
	m.mu.Unlock()
	if !owned {
		return
	}
	_ = conn.Close()
	m.logger.Warn("ws_dropped", zap.Error(err))
	m.emit(Signal{Kind: SignalDisconnected, Err: fmt.Errorf("%w: %v", domain.ErrConnection, err)})
}

func (m *Manager) fanout(ev protocol.Inbound) {
	m.mu.Lock()
	subs := make([]*subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.deliver(ev)
	}
}

func (m *Manager) emit(sig Signal) {
	m.mu.Lock()
	cbs := make([]func(Signal), 0, len(m.signals))
	for _, cb := range m.signals {
		cbs = append(cbs, cb)
	}
	m.mu.Unlock()

	for _, cb := range cbs {
		cb(sig)
	}
}

type subscription struct {
	ch   chan protocol.Inbound
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	closed bool
}

// deliver blocks until the subscriber reads or releases.
func (s *subscription) deliver(ev protocol.Inbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	case <-s.done:
	}
}

func (s *subscription) close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}
