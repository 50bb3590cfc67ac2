package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
)

// StreamPublisher appends reservation events to a capped Redis stream.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) (*StreamPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return nil, errors.New("stream name required")
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}, nil
}

func (p *StreamPublisher) PublishReservation(ctx context.Context, r domain.Reservation) error {
	body, err := encodeEvent(r)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":           ReservationCreated,
			"reservation_id": r.ID,
			"payload":        string(body),
		},
	}).Err()
}
