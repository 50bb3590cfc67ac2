package storage

import (
	"context"
	"sync"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
)

// MemoryAdapter keeps everything in process. A single mutex is the write
// arbitration point, so reservations on one course are serialized.
type MemoryAdapter struct {
	mu sync.Mutex

	courses     map[string]*domain.Course
	courseOrder []string

	reservations  map[string][]domain.Reservation // by course id
	byIdempotency map[string]domain.Reservation

	users   map[string]*domain.User
	byEmail map[string]string
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		courses:       make(map[string]*domain.Course),
		reservations:  make(map[string][]domain.Reservation),
		byIdempotency: make(map[string]domain.Reservation),
		users:         make(map[string]*domain.User),
		byEmail:       make(map[string]string),
	}
}

func (m *MemoryAdapter) ListCourses(ctx context.Context) ([]domain.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Course, 0, len(m.courseOrder))
	for _, id := range m.courseOrder {
		out = append(out, *m.courses[id])
	}
	return out, nil
}

func (m *MemoryAdapter) GetCourse(ctx context.Context, id string) (*domain.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.courses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryAdapter) CreateCourse(ctx context.Context, course domain.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.courses[course.ID]; exists {
		return domain.ErrConflict
	}
	m.courses[course.ID] = &course
	m.courseOrder = append(m.courseOrder, course.ID)
	return nil
}

func (m *MemoryAdapter) UpdateSeats(ctx context.Context, id string, seats int) (*domain.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.courses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c.Seats = seats
	cp := *c
	return &cp, nil
}

func (m *MemoryAdapter) ReserveSeat(ctx context.Context, r domain.Reservation) (*domain.ReserveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if r.IdempotencyKey != "" {
		if prev, ok := m.byIdempotency[r.IdempotencyKey]; ok {
			seats := 0
			if c, ok := m.courses[prev.CourseID]; ok {
				seats = c.Seats
			}
			return &domain.ReserveResult{Reservation: prev, SeatsLeft: seats, Replayed: true}, nil
		}
	}

	c, ok := m.courses[r.CourseID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if c.SoldOut() {
		return nil, domain.ErrSoldOut
	}

	c.Seats--
	r.CourseTitle = c.Title
	m.reservations[r.CourseID] = append(m.reservations[r.CourseID], r)
	if r.IdempotencyKey != "" {
		m.byIdempotency[r.IdempotencyKey] = r
	}
	return &domain.ReserveResult{Reservation: r, SeatsLeft: c.Seats}, nil
}

func (m *MemoryAdapter) ListReservations(ctx context.Context, courseID string) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.reservations[courseID]
	out := make([]domain.Reservation, len(src))
	copy(out, src)
	return out, nil
}

func (m *MemoryAdapter) CreateUser(ctx context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byEmail[user.Email]; taken {
		return domain.ErrEmailTaken
	}
	m.users[user.ID] = &user
	m.byEmail[user.Email] = user.ID
	return nil
}

func (m *MemoryAdapter) GetUser(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *MemoryAdapter) SetAdmin(ctx context.Context, email string, admin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[email]
	if !ok {
		return domain.ErrNotFound
	}
	m.users[id].Admin = admin
	return nil
}

func (m *MemoryAdapter) Close() error {
	return nil
}
