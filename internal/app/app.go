package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/openmic/internal/config"
	"github.com/kirinyoku/openmic/internal/identity"
	"github.com/kirinyoku/openmic/internal/notify"
	"github.com/kirinyoku/openmic/internal/postgres"
	"github.com/kirinyoku/openmic/internal/redis"
	postgresrepo "github.com/kirinyoku/openmic/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/openmic/internal/repository/redis"
	"github.com/kirinyoku/openmic/internal/service"
	"github.com/kirinyoku/openmic/internal/service/effects"
	"github.com/kirinyoku/openmic/internal/service/waitlist"
	"github.com/kirinyoku/openmic/internal/sweeper"
	httpgin "github.com/kirinyoku/openmic/internal/transport/http/gin"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server

	pool     *pgxpool.Pool
	rdb      *goredis.Client
	pubsub   *redisrepo.EventsPubSub
	broker   *httpgin.Broker
	sweeper  *sweeper.Sweeper
	notifier *notify.Async
	rabbit   *notify.RabbitMQ
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx := context.Background()

	pgxPool, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.Postgres.DSN(),
		MaxConns: cfg.Postgres.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redis.New(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewEventsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "claims", cfg.Claims.RateLimit, cfg.Claims.RateWindow)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, cfg.Claims.IdempotencyTTL)

	// Claim notifications
	var (
		next   notify.Notifier = notify.Nop{}
		rabbit *notify.RabbitMQ
	)
	if cfg.RabbitMQ.URL != "" {
		rabbit = notify.NewRabbitMQ(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		next = rabbit
	} else {
		logger.Info("RABBITMQ_URL not set, claim notifications disabled")
	}
	notifier := notify.NewAsync(next, logger, 0)

	fx := effects.New(cache, pubsub, notifier, logger)

	// Services
	services := service.NewServices(store, store.Access(), cache, limiter, fx, service.Config{
		Waitlist: waitlist.Config{DefaultOfferWindow: cfg.Claims.DefaultOfferWindow},
	})

	sw, err := sweeper.New(services.Claims, logger, sweeper.Config{
		Interval: cfg.Claims.SweepInterval,
		Batch:    cfg.Claims.SweepBatch,
	})
	if err != nil {
		notifier.Close()
		_ = rdb.Close()
		pgxPool.Close()
		return nil, fmt.Errorf("failed to initialize sweeper: %w", err)
	}

	broker := httpgin.NewBroker()

	router := httpgin.NewRouter(
		services,
		identity.NewVerifier(cfg.Auth.JWTSecret),
		idempotencyStore,
		broker,
		logger,
	)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		pool:     pgxPool,
		rdb:      rdb,
		pubsub:   pubsub,
		broker:   broker,
		sweeper:  sw,
		notifier: notifier,
		rabbit:   rabbit,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Lineup stream fan-out
	g.Go(func() error {
		if err := a.broker.Run(gCtx, a.pubsub); err != nil {
			return fmt.Errorf("lineup broker: %w", err)
		}
		return nil
	})

	// Offer expiry
	g.Go(func() error {
		return a.sweeper.Run(gCtx)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	a.notifier.Close()
	if a.rabbit != nil {
		_ = a.rabbit.Close()
	}
	if err := a.rdb.Close(); err != nil {
		a.logger.Warn("redis close", "error", err)
	}
	a.pool.Close()
}
