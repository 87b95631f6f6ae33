package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quiz-duel-client/internal/app"
	"quiz-duel-client/internal/config"
	"quiz-duel-client/internal/domain"
	"quiz-duel-client/internal/infra/memory"
	pgrecorder "quiz-duel-client/internal/infra/postgres"
	infraredis "quiz-duel-client/internal/infra/redis"
	"quiz-duel-client/internal/obslog"
	"quiz-duel-client/internal/transport/rest"
	"quiz-duel-client/internal/transport/ws"
)

func logger() *zap.Logger { return obslog.L() }

// loadConfig reads the config file, applies flag overrides and installs the logger.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if token != "" {
		cfg.Auth.Token = token
	}
	if userID != "" {
		cfg.Auth.UserID = userID
	}
	if err := obslog.Init(obslog.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}); err != nil {
		return cfg, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

// runtime is the wired client: transport, caches, registry, recorder and service.
type runtime struct {
	cfg      config.Config
	manager  *ws.Manager
	rest     *rest.Client
	service  *app.DuelService
	history  *pgrecorder.Recorder
	closers  []func()
	signalID string
}

func newRuntime(ctx context.Context, cfg config.Config, opts ...app.MatchmakerOption) (*runtime, error) {
	log := logger()
	rt := &runtime{cfg: cfg}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = redisClient.Close() })
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Minute)
	cacheTTL := config.TTLDuration(cfg.Cache.TTL, 10*time.Minute)

	var creds ws.CredentialSource = memory.NewCredentialStore(cfg.Auth.Token)
	if cfg.Auth.Token == "" && cfg.Auth.TokenKey != "" && redisClient != nil {
		creds = infraredis.NewCredentialStore(redisClient, cfg.Auth.TokenKey)
	}

	timeout := config.TTLDuration(cfg.Authority.Timeout, 10*time.Second)
	rt.rest = rest.NewClient(cfg.Authority.HTTPURL, creds,
		rest.WithTimeout(timeout),
		rest.WithLogger(log.Named("rest")),
	)
	rt.manager = ws.NewManager(cfg.Authority.WSURL, creds,
		ws.WithLogger(log.Named("ws")),
		ws.WithHandshakeTimeout(timeout),
	)
	rt.signalID = rt.manager.OnSignal(func(sig ws.Signal) {
		if sig.Err != nil {
			log.Warn("connection_signal", zap.Stringer("kind", sig.Kind), zap.Error(sig.Err))
			return
		}
		log.Info("connection_signal", zap.Stringer("kind", sig.Kind))
	})

	var snapshots app.SnapshotFetcher
	var sessions app.SessionRegistry
	if redisClient != nil {
		snapshots = infraredis.NewSnapshotRepository(redisClient, rt.rest, cacheTTL, log.Named("cache"))
		sessions = infraredis.NewSessionRegistry(redisClient, redisTTL, log.Named("registry"))
	} else {
		snapshots = memory.NewSnapshotRepository(rt.rest, cacheTTL)
		sessions = memory.NewSessionRegistry()
	}

	var recorder app.Recorder = memory.NewRecorder()
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			rt.Close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		rt.history = pgrecorder.NewRecorder(pool)
		recorder = rt.history
	}

	sessionCfg := app.SessionConfig{
		UserID:           cfg.Auth.UserID,
		Tick:             config.TTLDuration(cfg.Match.Tick, time.Second),
		ReviewWindow:     config.TTLDuration(cfg.Match.ReviewWindow, 5*time.Second),
		DefaultTimeLimit: cfg.Match.DefaultTimeLimit,
		SendTimeout:      timeout,
	}
	matchmaker := app.NewMatchmaker(rt.manager,
		append([]app.MatchmakerOption{app.WithMatchmakerLogger(log.Named("matchmaking"))}, opts...)...,
	)
	rt.service = app.NewDuelService(rt.manager, matchmaker, snapshots, sessions, sessionCfg,
		app.WithRecorder(recorder),
		app.WithServiceLogger(log.Named("session")),
	)
	return rt, nil
}

// connect opens the authority connection; a missing credential is reported before any dial.
func (rt *runtime) connect(ctx context.Context) error {
	if rt.cfg.Auth.UserID == "" {
		return fmt.Errorf("user id not configured (auth.user_id or --user)")
	}
	if err := rt.manager.Connect(ctx); err != nil {
		if errors.Is(err, domain.ErrMissingCredential) {
			return fmt.Errorf("%w (auth.token, --token or QUIZ_DUEL_TOKEN)", err)
		}
		return err
	}
	return nil
}

func (rt *runtime) Close() {
	if rt.manager != nil {
		rt.manager.RemoveSignal(rt.signalID)
		rt.manager.Disconnect()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	_ = logger().Sync()
}
