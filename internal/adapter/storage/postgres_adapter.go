package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
)

const pgUniqueViolation = "23505"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS courses (
		seq         BIGSERIAL        NOT NULL UNIQUE,
		id          TEXT             PRIMARY KEY,
		title       TEXT             NOT NULL,
		description TEXT             NOT NULL DEFAULT '',
		price       DOUBLE PRECISION NOT NULL DEFAULT 0,
		seats       INTEGER          NOT NULL DEFAULT 0 CHECK (seats >= 0),
		start_date  TEXT             NOT NULL DEFAULT '',
		category    TEXT             NOT NULL,
		created_at  TIMESTAMPTZ      NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		seq             BIGSERIAL   NOT NULL UNIQUE,
		id              TEXT        PRIMARY KEY,
		course_id       TEXT        NOT NULL,
		course_title    TEXT        NOT NULL,
		user_email      TEXT        NOT NULL,
		idempotency_key TEXT        UNIQUE,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_course ON reservations (course_id, seq)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT        PRIMARY KEY,
		email         TEXT        NOT NULL UNIQUE,
		password_hash TEXT        NOT NULL,
		admin         BOOLEAN     NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
}

// NewPostgresPool creates and validates a pgxpool connection pool.
// It retries a few times to accommodate containers starting up.
func NewPostgresPool(ctx context.Context, dsn string, attempts int) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	if attempts <= 0 {
		attempts = 1
	}
	var pool *pgxpool.Pool
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		slog.Warn("postgres connect failed", "attempt", attempt, "of", attempts, "err", err)
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	return nil, fmt.Errorf("connect to postgres: %w", err)
}

type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

func (p *PostgresAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *PostgresAdapter) ListCourses(ctx context.Context) ([]domain.Course, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, title, description, price, seats, start_date, category, created_at
		FROM courses ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	var courses []domain.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, *c)
	}
	return courses, rows.Err()
}

func (p *PostgresAdapter) GetCourse(ctx context.Context, id string) (*domain.Course, error) {
	return p.getCourse(ctx, p.pool, id)
}

func (p *PostgresAdapter) CreateCourse(ctx context.Context, c domain.Course) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO courses (id, title, description, price, seats, start_date, category, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Title, c.Description, c.Price, c.Seats, c.StartDate, string(c.Category), c.CreatedAt,
	)
	if isPgUniqueViolation(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert course: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) UpdateSeats(ctx context.Context, id string, seats int) (*domain.Course, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE courses SET seats = $2 WHERE id = $1
		RETURNING id, title, description, price, seats, start_date, category, created_at`,
		id, seats)
	c, err := scanCourse(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update seats: %w", err)
	}
	return c, nil
}

// ReserveSeat locks the course row with SELECT ... FOR UPDATE so concurrent
// bookers of the same course queue behind each other inside the transaction.
func (p *PostgresAdapter) ReserveSeat(ctx context.Context, r domain.Reservation) (*domain.ReserveResult, error) {
	result, err := p.reserveOnce(ctx, r)
	if isPgUniqueViolation(err) {
		return p.replay(ctx, p.pool, r.IdempotencyKey)
	}
	return result, err
}

func (p *PostgresAdapter) reserveOnce(ctx context.Context, r domain.Reservation) (result *domain.ReserveResult, err error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if r.IdempotencyKey != "" {
		prev, lookupErr := p.replay(ctx, tx, r.IdempotencyKey)
		if lookupErr != nil && !errors.Is(lookupErr, domain.ErrNotFound) {
			return nil, lookupErr
		}
		if prev != nil {
			err = tx.Commit(ctx)
			if err != nil {
				return nil, fmt.Errorf("commit transaction: %w", err)
			}
			return prev, nil
		}
	}

	var seats int
	err = tx.QueryRow(ctx, `SELECT title, seats FROM courses WHERE id = $1 FOR UPDATE`, r.CourseID).
		Scan(&r.CourseTitle, &seats)
	if errors.Is(err, pgx.ErrNoRows) {
		err = domain.ErrNotFound
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("lock course row: %w", err)
	}
	if seats <= 0 {
		err = domain.ErrSoldOut
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE courses SET seats = seats - 1
		WHERE id = $1 AND seats > 0
		RETURNING seats`, r.CourseID).Scan(&seats)
	if err != nil {
		return nil, fmt.Errorf("decrement seats: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reservations (id, course_id, course_title, user_email, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.CourseID, r.CourseTitle, r.UserEmail, nullIfEmpty(r.IdempotencyKey), r.Date,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &domain.ReserveResult{Reservation: r, SeatsLeft: seats}, nil
}

func (p *PostgresAdapter) replay(ctx context.Context, q pgQuerier, key string) (*domain.ReserveResult, error) {
	var res domain.Reservation
	var seats *int
	err := q.QueryRow(ctx, `
		SELECT r.id, r.course_id, r.course_title, r.user_email, COALESCE(r.idempotency_key, ''), r.created_at, c.seats
		FROM reservations r LEFT JOIN courses c ON c.id = r.course_id
		WHERE r.idempotency_key = $1`, key,
	).Scan(&res.ID, &res.CourseID, &res.CourseTitle, &res.UserEmail, &res.IdempotencyKey, &res.Date, &seats)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query reservation: %w", err)
	}
	out := &domain.ReserveResult{Reservation: res, Replayed: true}
	if seats != nil {
		out.SeatsLeft = *seats
	}
	return out, nil
}

func (p *PostgresAdapter) ListReservations(ctx context.Context, courseID string) ([]domain.Reservation, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, course_id, course_title, user_email, COALESCE(idempotency_key, ''), created_at
		FROM reservations WHERE course_id = $1 ORDER BY seq`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var r domain.Reservation
		if err := rows.Scan(&r.ID, &r.CourseID, &r.CourseTitle, &r.UserEmail, &r.IdempotencyKey, &r.Date); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresAdapter) CreateUser(ctx context.Context, u domain.User) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, admin, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.PasswordHash, u.Admin, u.CreatedAt,
	)
	if isPgUniqueViolation(err) {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return p.getUser(ctx, `SELECT id, email, password_hash, admin, created_at FROM users WHERE id = $1`, id)
}

func (p *PostgresAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return p.getUser(ctx, `SELECT id, email, password_hash, admin, created_at FROM users WHERE email = $1`, email)
}

func (p *PostgresAdapter) SetAdmin(ctx context.Context, email string, admin bool) error {
	tag, err := p.pool.Exec(ctx, `UPDATE users SET admin = $2 WHERE email = $1`, email, admin)
	if err != nil {
		return fmt.Errorf("update admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *PostgresAdapter) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresAdapter) getCourse(ctx context.Context, q pgQuerier, id string) (*domain.Course, error) {
	c, err := scanCourse(q.QueryRow(ctx, `
		SELECT id, title, description, price, seats, start_date, category, created_at
		FROM courses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	return c, nil
}

func (p *PostgresAdapter) getUser(ctx context.Context, query, arg string) (*domain.User, error) {
	var u domain.User
	err := p.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Admin, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
