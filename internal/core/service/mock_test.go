package service

import (
	"context"
	"errors"
	"sync"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
)

// Mock CourseStore + UserStore
type mockStore struct {
	mu           sync.Mutex
	courses      map[string]*domain.Course
	order        []string
	reservations []domain.Reservation
	users        map[string]*domain.User
	failWith     error
	reserveCalls int
}

func newMockStore(courses ...domain.Course) *mockStore {
	m := &mockStore{
		courses: make(map[string]*domain.Course),
		users:   make(map[string]*domain.User),
	}
	for _, c := range courses {
		c := c
		m.courses[c.ID] = &c
		m.order = append(m.order, c.ID)
	}
	return m
}

func (m *mockStore) seats(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.courses[id].Seats
}

func (m *mockStore) reservationCount(courseID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reservations {
		if r.CourseID == courseID {
			n++
		}
	}
	return n
}

func (m *mockStore) ListCourses(ctx context.Context) ([]domain.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]domain.Course, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.courses[id])
	}
	return out, nil
}

func (m *mockStore) GetCourse(ctx context.Context, id string) (*domain.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockStore) CreateCourse(ctx context.Context, course domain.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.courses[course.ID] = &course
	m.order = append(m.order, course.ID)
	return nil
}

func (m *mockStore) UpdateSeats(ctx context.Context, id string, seats int) (*domain.Course, error) {
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

func (m *mockStore) ReserveSeat(ctx context.Context, r domain.Reservation) (*domain.ReserveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserveCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}

	for _, prev := range m.reservations {
		if prev.IdempotencyKey == r.IdempotencyKey {
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
	if c.Seats <= 0 {
		return nil, domain.ErrSoldOut
	}
	c.Seats--
	r.CourseTitle = c.Title
	m.reservations = append(m.reservations, r)
	return &domain.ReserveResult{Reservation: r, SeatsLeft: c.Seats}, nil
}

func (m *mockStore) ListReservations(ctx context.Context, courseID string) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reservation
	for _, r := range m.reservations {
		if r.CourseID == courseID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) CreateUser(ctx context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return domain.ErrEmailTaken
		}
	}
	m.users[user.ID] = &user
	return nil
}

func (m *mockStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) SetAdmin(ctx context.Context, email string, admin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u.Admin = admin
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) addUser(id, email string, admin bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &domain.User{ID: id, Email: email, Admin: admin}
}

type mockPublisher struct {
	mu        sync.Mutex
	published []domain.Reservation
	fail      bool
}

func (p *mockPublisher) PublishReservation(ctx context.Context, r domain.Reservation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.published = append(p.published, r)
	return nil
}

func (p *mockPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}
