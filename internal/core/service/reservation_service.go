package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
	"github.com/PaulinaPacula189/course-reservation/internal/port"
)

const maxIdempotencyKeyLen = 128

type ReserveInput struct {
	CourseID       string
	Email          string
	IdempotencyKey string
}

type Booking struct {
	Reservation domain.Reservation `json:"reservation"`
	SeatsLeft   int                `json:"seatsLeft"`
	Replayed    bool               `json:"replayed"`
}

type ReservationService struct {
	store    port.CourseStore
	notifier *Notifier
	now      func() time.Time
}

// NewReservationService wires the booking flow. notifier may be nil.
func NewReservationService(store port.CourseStore, notifier *Notifier) *ReservationService {
	return &ReservationService{
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reserve books one seat of a course for an email address. The seat decrement and
// the reservation record are written by the store as a single atomic unit.
func (s *ReservationService) Reserve(ctx context.Context, in ReserveInput) (*Booking, error) {
	courseID := strings.TrimSpace(in.CourseID)
	if courseID == "" {
		return nil, domain.Invalidf("course id is required")
	}
	email, err := domain.NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return nil, domain.Invalidf("idempotency key exceeds %d bytes", maxIdempotencyKeyLen)
	}
	if key == "" {
		key = uuid.NewString()
	}

	reservation := domain.Reservation{
		ID:             uuid.NewString(),
		CourseID:       courseID,
		UserEmail:      email,
		Date:           s.now(),
		IdempotencyKey: key,
	}

	result, err := s.store.ReserveSeat(ctx, reservation)
	if err != nil {
		if errors.Is(err, domain.ErrSoldOut) || errors.Is(err, domain.ErrNotFound) {
			slog.InfoContext(ctx, "reservation rejected", "course_id", courseID, "reason", err.Error())
		}
		return nil, storeErr("reserve seat", err)
	}

	if result.Replayed {
		prev := result.Reservation
		if prev.CourseID != courseID || prev.UserEmail != email {
			return nil, domain.ErrIdempotencyMismatch
		}
		slog.InfoContext(ctx, "reservation replayed", "reservation_id", prev.ID, "course_id", courseID)
		return &Booking{Reservation: prev, SeatsLeft: result.SeatsLeft, Replayed: true}, nil
	}

	slog.InfoContext(ctx, "reservation created",
		"reservation_id", result.Reservation.ID,
		"course_id", courseID,
		"seats_left", result.SeatsLeft,
	)
	if s.notifier != nil && !s.notifier.Enqueue(result.Reservation) {
		slog.WarnContext(ctx, "confirmation queue full, notification dropped", "reservation_id", result.Reservation.ID)
	}

	return &Booking{Reservation: result.Reservation, SeatsLeft: result.SeatsLeft}, nil
}

// storeErr keeps domain errors as they are and marks anything else as a
// transient store failure.
func storeErr(op string, err error) error {
	if domain.IsDomain(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
