package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/PaulinaPacula189/course-reservation/internal/port"
)

// Options selects and configures a storage driver.
type Options struct {
	Driver         string
	MySQLDSN       string
	PostgresDSN    string
	Redis          *redis.Client
	IdempotencyTTL time.Duration
	Migrate        bool
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// Open connects the configured driver and, when asked, creates its schema.
func Open(ctx context.Context, opts Options) (port.Store, error) {
	var store port.Store
	switch opts.Driver {
	case "", "memory":
		return NewMemoryAdapter(), nil
	case "mysql":
		db, err := OpenMySQL(ctx, opts.MySQLDSN)
		if err != nil {
			return nil, err
		}
		store = NewMySQLAdapter(db)
	case "postgres":
		pool, err := NewPostgresPool(ctx, opts.PostgresDSN, 5)
		if err != nil {
			return nil, err
		}
		store = NewPostgresAdapter(pool)
	case "redis":
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis driver requires a client")
		}
		return NewRedisAdapter(opts.Redis, opts.IdempotencyTTL), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}

	if m, ok := store.(migrator); ok && opts.Migrate {
		if err := m.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		slog.Info("schema ready", "driver", opts.Driver)
	}
	return store, nil
}

// OpenMySQL forces parseTime so DATETIME columns scan into time.Time.
func OpenMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}
