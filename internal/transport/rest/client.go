// Package rest fetches authoritative game snapshots and the user's rating over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"quiz-duel-client/internal/domain"
)

// DefaultRating is used for queueing when the dashboard has no rating.
const DefaultRating = 1000

// TokenSource yields the bearer token sent with every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Client struct {
	baseURL string
	http    *fasthttp.Client
	tokens  TokenSource
	logger  *zap.Logger

	defaultTimeout time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		tokens:         tokens,
		logger:         zap.NewNop(),
		defaultTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchGame loads the full snapshot of one game. Any non-2xx reply maps to ErrGameNotFound.
func (c *Client) FetchGame(ctx context.Context, gameID string) (domain.GameSession, error) {
	var payload gamePayload
	status, err := c.getJSON(ctx, "/api/game/"+url.PathEscape(gameID), &payload)
	if err != nil {
		return domain.GameSession{}, err
	}
	if status < 200 || status >= 300 {
		c.logger.Warn("snapshot_fetch_rejected", zap.String("game_id", gameID), zap.Int("status", status))
		return domain.GameSession{}, fmt.Errorf("%w: %s (status %d)", domain.ErrGameNotFound, gameID, status)
	}
	game := payload.toDomain()
	if game.ID == "" {
		game.ID = gameID
	}
	return game, nil
}

// Rating reads stats.overall.rating from the dashboard, falling back to DefaultRating.
func (c *Client) Rating(ctx context.Context) (int, error) {
	var payload dashboardPayload
	status, err := c.getJSON(ctx, "/api/dashboard", &payload)
	if err != nil {
		return DefaultRating, err
	}
	if status < 200 || status >= 300 {
		return DefaultRating, fmt.Errorf("dashboard: status %d", status)
	}
	if payload.Stats.Overall.Rating == nil {
		return DefaultRating, nil
	}
	return *payload.Stats.Overall.Rating, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) (int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return 0, fmt.Errorf("%w: load credential: %v", domain.ErrConnection, err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return 0, fmt.Errorf("%w: GET %s: %v", domain.ErrConnection, path, err)
	}
	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return status, nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return status, fmt.Errorf("decode %s: %w", path, err)
	}
	return status, nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}
