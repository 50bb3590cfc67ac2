package port

import (
	"context"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
)

type CourseStore interface {
	// ListCourses returns every course in insertion order
	ListCourses(ctx context.Context) ([]domain.Course, error)

	// GetCourse returns domain.ErrNotFound when the id is unknown
	GetCourse(ctx context.Context, id string) (*domain.Course, error)

	// CreateCourse appends a course; the ID must already be assigned
	CreateCourse(ctx context.Context, course domain.Course) error

	// UpdateSeats overwrites the seat count in a single write
	UpdateSeats(ctx context.Context, id string, seats int) (*domain.Course, error)

	// ReserveSeat decrements seats by one if and only if seats > 0 and records the
	// reservation in the same atomic unit. A reservation whose idempotency key was
	// already used is returned as a replay without any write.
	ReserveSeat(ctx context.Context, reservation domain.Reservation) (*domain.ReserveResult, error)

	// ListReservations returns the reservations of one course oldest first
	ListReservations(ctx context.Context, courseID string) ([]domain.Reservation, error)
}
