package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS courses (
		seq         BIGINT       NOT NULL AUTO_INCREMENT,
		id          VARCHAR(36)  NOT NULL,
		title       VARCHAR(255) NOT NULL,
		description TEXT         NOT NULL,
		price       DOUBLE       NOT NULL DEFAULT 0,
		seats       INT          NOT NULL DEFAULT 0,
		start_date  VARCHAR(64)  NOT NULL DEFAULT '',
		category    VARCHAR(64)  NOT NULL,
		created_at  DATETIME(6)  NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_courses_seq (seq),
		CONSTRAINT chk_courses_seats CHECK (seats >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		seq             BIGINT       NOT NULL AUTO_INCREMENT,
		id              VARCHAR(36)  NOT NULL,
		course_id       VARCHAR(36)  NOT NULL,
		course_title    VARCHAR(255) NOT NULL,
		user_email      VARCHAR(320) NOT NULL,
		idempotency_key VARCHAR(128) NULL,
		created_at      DATETIME(6)  NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_reservations_seq (seq),
		UNIQUE KEY uq_reservations_idempotency (idempotency_key),
		KEY idx_reservations_course (course_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            VARCHAR(36)  NOT NULL,
		email         VARCHAR(320) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		admin         BOOLEAN      NOT NULL DEFAULT FALSE,
		created_at    DATETIME(6)  NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_users_email (email)
	)`,
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the tables when they do not exist yet.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range mysqlSchema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) ListCourses(ctx context.Context) ([]domain.Course, error) {
	rows, err := m.db.QueryContext(ctx, `
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

func (m *MySQLAdapter) GetCourse(ctx context.Context, id string) (*domain.Course, error) {
	return m.getCourse(ctx, m.db, id)
}

func (m *MySQLAdapter) CreateCourse(ctx context.Context, c domain.Course) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO courses (id, title, description, price, seats, start_date, category, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Description, c.Price, c.Seats, c.StartDate, string(c.Category), c.CreatedAt,
	)
	if isMySQLDuplicate(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert course: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateSeats(ctx context.Context, id string, seats int) (*domain.Course, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// affected rows are 0 for an unchanged value, so existence is checked by the read below
	if _, err := tx.ExecContext(ctx, `UPDATE courses SET seats = ? WHERE id = ?`, seats, id); err != nil {
		return nil, fmt.Errorf("update seats: %w", err)
	}
	c, err := m.getCourse(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

func (m *MySQLAdapter) ReserveSeat(ctx context.Context, r domain.Reservation) (*domain.ReserveResult, error) {
	result, err := m.reserveOnce(ctx, r)
	if isMySQLDuplicate(err) {
		// a concurrent request with the same key committed first
		return m.replay(ctx, m.db, r.IdempotencyKey)
	}
	return result, err
}

func (m *MySQLAdapter) reserveOnce(ctx context.Context, r domain.Reservation) (*domain.ReserveResult, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if r.IdempotencyKey != "" {
		prev, err := m.replay(ctx, tx, r.IdempotencyKey)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if prev != nil {
			return prev, nil
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE courses SET seats = seats - 1
		WHERE id = ? AND seats > 0`, r.CourseID)
	if err != nil {
		return nil, fmt.Errorf("decrement seats: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := m.getCourse(ctx, tx, r.CourseID); err != nil {
			return nil, err
		}
		return nil, domain.ErrSoldOut
	}

	var seatsLeft int
	if err := tx.QueryRowContext(ctx, `SELECT title, seats FROM courses WHERE id = ?`, r.CourseID).
		Scan(&r.CourseTitle, &seatsLeft); err != nil {
		return nil, fmt.Errorf("read course: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (id, course_id, course_title, user_email, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.CourseID, r.CourseTitle, r.UserEmail, nullIfEmpty(r.IdempotencyKey), r.Date,
	)
	if err != nil {
		if isMySQLDuplicate(err) {
			return nil, err
		}
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &domain.ReserveResult{Reservation: r, SeatsLeft: seatsLeft}, nil
}

func (m *MySQLAdapter) replay(ctx context.Context, q sqlQueryer, key string) (*domain.ReserveResult, error) {
	var res domain.Reservation
	var seats sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT r.id, r.course_id, r.course_title, r.user_email, COALESCE(r.idempotency_key, ''), r.created_at, c.seats
		FROM reservations r LEFT JOIN courses c ON c.id = r.course_id
		WHERE r.idempotency_key = ?`, key,
	).Scan(&res.ID, &res.CourseID, &res.CourseTitle, &res.UserEmail, &res.IdempotencyKey, &res.Date, &seats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query reservation: %w", err)
	}
	return &domain.ReserveResult{Reservation: res, SeatsLeft: int(seats.Int64), Replayed: true}, nil
}

func (m *MySQLAdapter) ListReservations(ctx context.Context, courseID string) ([]domain.Reservation, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, course_id, course_title, user_email, COALESCE(idempotency_key, ''), created_at
		FROM reservations WHERE course_id = ? ORDER BY seq`, courseID)
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

func (m *MySQLAdapter) CreateUser(ctx context.Context, u domain.User) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, admin, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Admin, u.CreatedAt,
	)
	if isMySQLDuplicate(err) {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return m.getUser(ctx, `SELECT id, email, password_hash, admin, created_at FROM users WHERE id = ?`, id)
}

func (m *MySQLAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.getUser(ctx, `SELECT id, email, password_hash, admin, created_at FROM users WHERE email = ?`, email)
}

func (m *MySQLAdapter) SetAdmin(ctx context.Context, email string, admin bool) error {
	if _, err := m.GetUserByEmail(ctx, email); err != nil {
		return err
	}
	if _, err := m.db.ExecContext(ctx, `UPDATE users SET admin = ? WHERE email = ?`, admin, email); err != nil {
		return fmt.Errorf("update admin: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) Close() error {
	return m.db.Close()
}

func (m *MySQLAdapter) getCourse(ctx context.Context, q sqlQueryer, id string) (*domain.Course, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, title, description, price, seats, start_date, category, created_at
		FROM courses WHERE id = ?`, id)
	c, err := scanCourse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query course: %w", err)
	}
	return c, nil
}

func (m *MySQLAdapter) getUser(ctx context.Context, query, arg string) (*domain.User, error) {
	var u domain.User
	err := m.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Admin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

type sqlQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (*domain.Course, error) {
	var c domain.Course
	var category string
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Price, &c.Seats, &c.StartDate, &category, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Category = domain.Category(category)
	return &c, nil
}

func isMySQLDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// nullIfEmpty keeps keyless reservations out of the unique index.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
