package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/gateway"
	"live-quiz-service/internal/infra/cacheaside"
	"live-quiz-service/internal/infra/memory"
	pgstore "live-quiz-service/internal/infra/postgres"
	rediscache "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type backends struct {
	store         app.Store
	cache         app.Cache
	joinLimiter   app.RateLimiter
	answerLimiter app.RateLimiter
	closers       []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config, clock clockwork.Clock, logger zerolog.Logger) (*backends, error) {
	b := &backends{}
	window := cfg.RateWindow()

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			// The cache is best-effort; keep serving and let the Store absorb reads.
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable at startup")
		}
		b.cache = rediscache.NewCache(client, cfg.KeyTTL())
		b.joinLimiter = rediscache.NewRateLimiter(client, clock, cfg.RateLimit.JoinsPerAddress, window)
		b.answerLimiter = rediscache.NewRateLimiter(client, clock, cfg.RateLimit.AnswersPerUser, window)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis cache")
	} else {
		b.cache = memory.NewCache(clock)
		b.joinLimiter = memory.NewRateLimiter(clock, cfg.RateLimit.JoinsPerAddress, window)
		b.answerLimiter = memory.NewRateLimiter(clock, cfg.RateLimit.AnswersPerUser, window)
		logger.Info().Msg("using in-process cache")
	}

	if cfg.Postgres.URL == "" {
		b.store = memory.NewStore()
		logger.Warn().Msg("postgres not configured, sessions live in memory only")
		return b, nil
	}

	if err := runMigrations(ctx, cfg, logger); err != nil {
		b.close()
		return nil, err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		b.close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	b.closers = append(b.closers, pool.Close)
	b.store = cacheaside.New(pgstore.NewStore(pool), b.cache, clock, cfg.SnapshotTTL(), logger)
	return b, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if cfg.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.tokenSecret not configured")
	}
	if cfg.Admin.Secret == "" {
		logger.Warn().Msg("admin.secret not configured, admin API will reject every request")
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	clock := clockwork.NewRealClock()
	b, err := openBackends(ctx, cfg, clock, logger)
	if err != nil {
		return err
	}
	defer b.close()

	leaderboard := app.NewLeaderboard(b.store, b.cache, clock, cfg.MemoTTL(), logger)
	engine := app.NewEngine(b.store, leaderboard, logger, app.Options{
		DisplayDelay:           cfg.DisplayDelay(),
		SettleDelay:            cfg.SettleDelay(),
		DefaultMaxParticipants: cfg.Session.MaxParticipants,
		BanTTL:                 cfg.BanTTL(),
		Clock:                  clock,
		AnswerLimiter:          b.answerLimiter,
	})
	gw := gateway.New(engine, logger, gateway.Options{
		Cache:         b.cache,
		Clock:         clock,
		EvictionGrace: cfg.EvictionGrace(),
	})
	engine.SetBroadcaster(gw)

	verifier := auth.NewVerifier(cfg.Auth.TokenSecret, clock)
	wsHandler := transport.NewWSHandler(engine, gw, verifier, b.joinLimiter, logger)
	adminHandler := transport.NewAdminHandler(engine, gw, cfg.Admin.Secret, logger)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(wsHandler, adminHandler, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
