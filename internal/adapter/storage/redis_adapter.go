package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
)

const (
	courseKeyPrefix          = "course:"
	courseListKey            = "courses"
	reservationKeyPrefix     = "reservation:"
	reservationIndexPrefix   = "reservations:course:"
	idempotencyKeyPrefix     = "idempotency:"
	userKeyPrefix            = "user:"
	userEmailKeyPrefix       = "user-email:"
	DefaultIdempotencyKeyTTL = 24 * time.Hour
)

// reserveSeatScript returns {2, id} for a replay, {0} for a missing course,
// {-1} when sold out and {1, id, seatsLeft} after booking.
var reserveSeatScript = redis.NewScript(`
local courseKey = KEYS[1]
local idemKey = KEYS[2]
local reservationKey = KEYS[3]
local indexKey = KEYS[4]

if ARGV[5] ~= '' then
	local existing = redis.call('GET', idemKey)
	if existing then
		return {2, existing}
	end
end

if redis.call('EXISTS', courseKey) == 0 then
	return {0}
end

local seats = tonumber(redis.call('HGET', courseKey, 'seats'))
if seats == nil or seats <= 0 then
	return {-1}
end

local left = redis.call('HINCRBY', courseKey, 'seats', '-1')
local title = redis.call('HGET', courseKey, 'title')
redis.call('HSET', reservationKey,
	'id', ARGV[1], 'course_id', ARGV[2], 'course_title', title,
	'user_email', ARGV[3], 'date', ARGV[4], 'idempotency_key', ARGV[5])
redis.call('RPUSH', indexKey, ARGV[1])

if ARGV[5] ~= '' then
	if tonumber(ARGV[6]) > 0 then
		redis.call('SET', idemKey, ARGV[1], 'EX', ARGV[6])
	else
		redis.call('SET', idemKey, ARGV[1])
	end
end

return {1, ARGV[1], left}
`)

var createCourseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'id', ARGV[1], 'title', ARGV[2], 'description', ARGV[3], 'price', ARGV[4],
	'seats', ARGV[5], 'start_date', ARGV[6], 'category', ARGV[7], 'created_at', ARGV[8])
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1
`)

var updateSeatsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'seats', ARGV[1])
return 1
`)

var createUserScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[2],
	'id', ARGV[1], 'email', ARGV[2], 'password_hash', ARGV[3], 'admin', ARGV[4], 'created_at', ARGV[5])
return 1
`)

// RedisAdapter stores documents as hashes. Every multi-key write runs as a Lua
// script so it is applied atomically.
type RedisAdapter struct {
	client         *redis.Client
	idempotencyTTL time.Duration
}

// NewRedisAdapter keeps idempotency keys for ttl; zero keeps them forever.
func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, idempotencyTTL: ttl}
}

func (r *RedisAdapter) ListCourses(ctx context.Context) ([]domain.Course, error) {
	ids, err := r.client.LRange(ctx, courseListKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list course ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, courseKeyPrefix+id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load courses: %w", err)
	}

	courses := make([]domain.Course, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		c, err := courseFromHash(fields)
		if err != nil {
			return nil, err
		}
		courses = append(courses, *c)
	}
	return courses, nil
}

func (r *RedisAdapter) GetCourse(ctx context.Context, id string) (*domain.Course, error) {
	fields, err := r.client.HGetAll(ctx, courseKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}
	return courseFromHash(fields)
}

func (r *RedisAdapter) CreateCourse(ctx context.Context, c domain.Course) error {
	created, err := createCourseScript.Run(ctx, r.client,
		[]string{courseKeyPrefix + c.ID, courseListKey},
		c.ID, c.Title, c.Description, strconv.FormatFloat(c.Price, 'f', -1, 64),
		c.Seats, c.StartDate, string(c.Category), c.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	if created == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *RedisAdapter) UpdateSeats(ctx context.Context, id string, seats int) (*domain.Course, error) {
	ok, err := updateSeatsScript.Run(ctx, r.client, []string{courseKeyPrefix + id}, seats).Int()
	if err != nil {
		return nil, fmt.Errorf("update seats: %w", err)
	}
	if ok == 0 {
		return nil, domain.ErrNotFound
	}
	return r.GetCourse(ctx, id)
}

func (r *RedisAdapter) ReserveSeat(ctx context.Context, res domain.Reservation) (*domain.ReserveResult, error) {
	keys := []string{
		courseKeyPrefix + res.CourseID,
		idempotencyKeyPrefix + res.IdempotencyKey,
		reservationKeyPrefix + res.ID,
		reservationIndexKey(res.CourseID),
	}
	out, err := reserveSeatScript.Run(ctx, r.client, keys,
		res.ID, res.CourseID, res.UserEmail, res.Date.UTC().Format(time.RFC3339Nano),
		res.IdempotencyKey, int64(r.idempotencyTTL/time.Second),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("reserve seat: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("reserve seat: empty script reply")
	}
	status, _ := out[0].(int64)

	switch status {
	case 0:
		return nil, domain.ErrNotFound
	case -1:
		return nil, domain.ErrSoldOut
	case 2:
		prevID, _ := out[1].(string)
		prev, err := r.getReservation(ctx, prevID)
		if err != nil {
			return nil, err
		}
		seats := 0
		c, err := r.GetCourse(ctx, prev.CourseID)
		switch {
		case err == nil:
			seats = c.Seats
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("replay seats: %w", err)
		}
		return &domain.ReserveResult{Reservation: *prev, SeatsLeft: seats, Replayed: true}, nil
	case 1:
		left, _ := out[2].(int64)
		stored, err := r.getReservation(ctx, res.ID)
		if err != nil {
			return nil, err
		}
		return &domain.ReserveResult{Reservation: *stored, SeatsLeft: int(left)}, nil
	}
	return nil, fmt.Errorf("reserve seat: unexpected script status %d", status)
}

func (r *RedisAdapter) ListReservations(ctx context.Context, courseID string) ([]domain.Reservation, error) {
	ids, err := r.client.LRange(ctx, reservationIndexKey(courseID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list reservation ids: %w", err)
	}
	out := make([]domain.Reservation, 0, len(ids))
	for _, id := range ids {
		res, err := r.getReservation(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, nil
}

func (r *RedisAdapter) CreateUser(ctx context.Context, u domain.User) error {
	created, err := createUserScript.Run(ctx, r.client,
		[]string{userEmailKeyPrefix + u.Email, userKeyPrefix + u.ID},
		u.ID, u.Email, u.PasswordHash, boolString(u.Admin), u.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if created == 0 {
		return domain.ErrEmailTaken
	}
	return nil
}

func (r *RedisAdapter) GetUser(ctx context.Context, id string) (*domain.User, error) {
	fields, err := r.client.HGetAll(ctx, userKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}
	created, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	return &domain.User{
		ID:           fields["id"],
		Email:        fields["email"],
		PasswordHash: fields["password_hash"],
		Admin:        fields["admin"] == "1",
		CreatedAt:    created,
	}, nil
}

func (r *RedisAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	id, err := r.client.Get(ctx, userEmailKeyPrefix+email).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user id: %w", err)
	}
	return r.GetUser(ctx, id)
}

func (r *RedisAdapter) SetAdmin(ctx context.Context, email string, admin bool) error {
	u, err := r.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, userKeyPrefix+u.ID, "admin", boolString(admin)).Err()
}

// Close is a no-op; the client is owned by the caller.
func (r *RedisAdapter) Close() error {
	return nil
}

func (r *RedisAdapter) getReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	fields, err := r.client.HGetAll(ctx, reservationKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("reservation %s: %w", id, domain.ErrNotFound)
	}
	date, err := time.Parse(time.RFC3339Nano, fields["date"])
	if err != nil {
		return nil, fmt.Errorf("parse reservation date: %w", err)
	}
	return &domain.Reservation{
		ID:             fields["id"],
		CourseID:       fields["course_id"],
		CourseTitle:    fields["course_title"],
		UserEmail:      fields["user_email"],
		Date:           date,
		IdempotencyKey: fields["idempotency_key"],
	}, nil
}

func courseFromHash(fields map[string]string) (*domain.Course, error) {
	price, err := strconv.ParseFloat(fields["price"], 64)
	if err != nil {
		return nil, fmt.Errorf("parse price of course %s: %w", fields["id"], err)
	}
	seats, err := strconv.Atoi(fields["seats"])
	if err != nil {
		return nil, fmt.Errorf("parse seats of course %s: %w", fields["id"], err)
	}
	created, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	return &domain.Course{
		ID:          fields["id"],
		Title:       fields["title"],
		Description: fields["description"],
		Price:       price,
		Seats:       seats,
		StartDate:   fields["start_date"],
		Category:    domain.Category(fields["category"]),
		CreatedAt:   created,
	}, nil
}

func reservationIndexKey(courseID string) string {
	return reservationIndexPrefix + courseID
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
