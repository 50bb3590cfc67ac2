package messaging

import (
	"context"
	"log/slog"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
)

// LogPublisher is used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishReservation(ctx context.Context, r domain.Reservation) error {
	p.logger.InfoContext(ctx, "reservation confirmed",
		"event", ReservationCreated,
		"reservation_id", r.ID,
		"course_id", r.CourseID,
		"course_title", r.CourseTitle,
		"email", r.UserEmail,
	)
	return nil
}
