package port

import (
	"context"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
)

type EventPublisher interface {
	// PublishReservation announces a confirmed booking to downstream consumers
	PublishReservation(ctx context.Context, reservation domain.Reservation) error
}
