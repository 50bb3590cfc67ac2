package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
	"github.com/PaulinaPacula189/course-reservation/internal/port"
)

const publishTimeout = 5 * time.Second

// Notifier hands confirmed reservations to a publisher from a pool of workers.
type Notifier struct {
	publisher port.EventPublisher
	queue     chan domain.Reservation

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewNotifier(publisher port.EventPublisher, queueSize int) *Notifier {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Notifier{
		publisher: publisher,
		queue:     make(chan domain.Reservation, queueSize),
	}
}

// Start launches the workers. Call it once.
func (n *Notifier) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go func(id int) {
			defer n.wg.Done()
			n.workerLoop(id)
		}(i)
	}
	slog.Info("notifier started", "workers", workers, "queue_size", cap(n.queue))
}

// Enqueue never blocks; it reports false when the queue is full or closed.
func (n *Notifier) Enqueue(r domain.Reservation) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return false
	}
	select {
	case n.queue <- r:
		return true
	default:
		return false
	}
}

// Close stops accepting work and waits until queued reservations are published.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *Notifier) workerLoop(id int) {
	for r := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := n.publisher.PublishReservation(ctx, r); err != nil {
			slog.Error("publish reservation failed", "worker", id, "reservation_id", r.ID, "err", err)
		} else {
			slog.Debug("reservation published", "worker", id, "reservation_id", r.ID)
		}
		cancel()
	}
}
