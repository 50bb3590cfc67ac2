package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PaulinaPacula189/course-reservation/internal/adapter/auth"
	"github.com/PaulinaPacula189/course-reservation/internal/adapter/handler"
	"github.com/PaulinaPacula189/course-reservation/internal/adapter/messaging"
	"github.com/PaulinaPacula189/course-reservation/internal/adapter/storage"
	"github.com/PaulinaPacula189/course-reservation/internal/config"
	"github.com/PaulinaPacula189/course-reservation/internal/core/service"
	"github.com/PaulinaPacula189/course-reservation/internal/port"
	"github.com/PaulinaPacula189/course-reservation/internal/ratelimit"
)

// App owns every long-lived dependency of the service.
type App struct {
	Store        port.Store
	Redis        *redis.Client
	Notifier     *service.Notifier
	Reservations *service.ReservationService
	Catalog      *service.CatalogService
	Auth         *service.AuthService
	Limiter      *ratelimit.FixedWindowLimiter

	cfg     config.FileConfig
	closers []io.Closer
}

// OpenStore connects only the storage layer, for tooling that needs no
// transport.
func OpenStore(ctx context.Context, cfg config.FileConfig) (port.Store, *redis.Client, error) {
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		slog.Info("connected to redis", "addr", cfg.RedisAddr)
	}

	store, err := storage.Open(ctx, storage.Options{
		Driver:         cfg.StoreDriver,
		MySQLDSN:       cfg.MySQLDSN,
		PostgresDSN:    cfg.PostgresDSN,
		Redis:          rdb,
		IdempotencyTTL: cfg.IdempotencyTTLDuration(),
		Migrate:        true,
	})
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	slog.Info("store ready", "driver", cfg.StoreDriver)
	return store, rdb, nil
}

func New(ctx context.Context, cfg config.FileConfig) (*App, error) {
	store, rdb, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Store: store, Redis: rdb, cfg: cfg}
	a.closers = append(a.closers, store)
	if rdb != nil {
		a.closers = append(a.closers, rdb)
	}

	publisher, err := a.publisher()
	if err != nil {
		a.Close()
		return nil, err
	}

	issuer, err := auth.NewJWTIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTLDuration())
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.BookingRateLimitPerMinute > 0 {
		a.Limiter, err = ratelimit.NewFixedWindowLimiter(rdb, "ratelimit:booking", cfg.BookingRateLimitPerMinute, time.Minute)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Notifier = service.NewNotifier(publisher, cfg.NotifierQueueSize)
	a.Reservations = service.NewReservationService(store, a.Notifier)
	a.Catalog = service.NewCatalogService(store, store)
	a.Auth = service.NewAuthService(store, issuer, auth.NewBcryptHasher(0))
	return a, nil
}

func (a *App) publisher() (port.EventPublisher, error) {
	switch {
	case a.cfg.AMQPURL != "":
		pub, err := messaging.DialAMQP(a.cfg.AMQPURL, a.cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub)
		slog.Info("publishing reservations to amqp", "exchange", a.cfg.AMQPExchange)
		return pub, nil
	case a.cfg.EventStream != "":
		slog.Info("publishing reservations to redis stream", "stream", a.cfg.EventStream)
		return messaging.NewStreamPublisher(a.Redis, a.cfg.EventStream, 0)
	}
	return messaging.NewLogPublisher(nil), nil
}

func (a *App) HTTPHandler() *handler.HTTPHandler {
	h := handler.NewHTTPHandler(a.Reservations, a.Catalog, a.Auth)
	if a.Limiter != nil {
		h.WithRateLimiter(a.Limiter, a.Limiter.Window())
	}
	return h
}

func (a *App) GRPCHandler() *handler.GRPCHandler {
	return handler.NewGRPCHandler(a.Reservations, a.Catalog)
}

// Close releases connections in reverse order of acquisition. The notifier is
// closed by the caller once the transports have stopped.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
