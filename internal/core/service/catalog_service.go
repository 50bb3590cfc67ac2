package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
	"github.com/PaulinaPacula189/course-reservation/internal/port"
)

const maxSeats = math.MaxInt32

// CourseDraft carries the admin form fields as entered.
type CourseDraft struct {
	Title       string
	Description string
	Price       string
	Seats       string
	StartDate   string
	Category    string
}

type CatalogService struct {
	courses port.CourseStore
	users   port.UserStore
	now     func() time.Time
}

func NewCatalogService(courses port.CourseStore, users port.UserStore) *CatalogService {
	return &CatalogService{
		courses: courses,
		users:   users,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *CatalogService) Categories() []domain.Category {
	return domain.Categories()
}

// ListCourses returns the courses of a category in fetch order, or all of them
// when category is empty.
func (s *CatalogService) ListCourses(ctx context.Context, category string) ([]domain.Course, error) {
	cat := domain.Category(strings.TrimSpace(category))
	if cat != "" && !cat.Valid() {
		return nil, domain.Invalidf("unknown category %q", category)
	}
	courses, err := s.courses.ListCourses(ctx)
	if err != nil {
		return nil, storeErr("list courses", err)
	}
	return domain.FilterByCategory(courses, cat), nil
}

func (s *CatalogService) GetCourse(ctx context.Context, id string) (*domain.Course, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.Invalidf("course id is required")
	}
	course, err := s.courses.GetCourse(ctx, id)
	if err != nil {
		return nil, storeErr("get course", err)
	}
	return course, nil
}

// CreateCourse sanitizes the draft and appends a new course. Seats below zero are
// floored to zero rather than rejected.
func (s *CatalogService) CreateCourse(ctx context.Context, actor domain.Principal, draft CourseDraft) (*domain.Course, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	return s.AddCourse(ctx, draft)
}

// AddCourse is CreateCourse without the role check, for operator tooling.
func (s *CatalogService) AddCourse(ctx context.Context, draft CourseDraft) (*domain.Course, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return nil, domain.Invalidf("title is required")
	}
	price, err := parseNumber("price", draft.Price)
	if err != nil {
		return nil, err
	}
	if price < 0 {
		return nil, domain.Invalidf("price cannot be negative")
	}
	rawSeats, err := parseNumber("seats", draft.Seats)
	if err != nil {
		return nil, err
	}
	if rawSeats > maxSeats {
		return nil, domain.Invalidf("seats cannot exceed %d", maxSeats)
	}
	category := domain.Category(strings.TrimSpace(draft.Category))
	if !category.Valid() {
		return nil, domain.Invalidf("unknown category %q", draft.Category)
	}

	course := domain.Course{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(draft.Description),
		Price:       price,
		Seats:       clampSeats(int(math.Trunc(rawSeats))),
		StartDate:   strings.TrimSpace(draft.StartDate),
		Category:    category,
		CreatedAt:   s.now(),
	}
	if err := s.courses.CreateCourse(ctx, course); err != nil {
		return nil, storeErr("create course", err)
	}
	return &course, nil
}

// SetSeats overwrites the seat count of a course. The store serializes the write
// against concurrent reservations.
func (s *CatalogService) SetSeats(ctx context.Context, actor domain.Principal, courseID string, seats int) (*domain.Course, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return nil, domain.Invalidf("course id is required")
	}
	if seats > maxSeats {
		return nil, domain.Invalidf("seats cannot exceed %d", maxSeats)
	}
	course, err := s.courses.UpdateSeats(ctx, courseID, clampSeats(seats))
	if err != nil {
		return nil, storeErr("update seats", err)
	}
	return course, nil
}

func (s *CatalogService) ListReservations(ctx context.Context, actor domain.Principal, courseID string) ([]domain.Reservation, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if _, err := s.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	list, err := s.courses.ListReservations(ctx, strings.TrimSpace(courseID))
	if err != nil {
		return nil, storeErr("list reservations", err)
	}
	return list, nil
}

func (s *CatalogService) requireAdmin(ctx context.Context, actor domain.Principal) error {
	if actor.UserID == "" {
		return fmt.Errorf("%w: sign in required", domain.ErrUnauthorized)
	}
	user, err := s.users.GetUser(ctx, actor.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: unknown user", domain.ErrUnauthorized)
	}
	if err != nil {
		return storeErr("get user", err)
	}
	if !user.Admin {
		return fmt.Errorf("%w: admin role required", domain.ErrUnauthorized)
	}
	return nil
}

func parseNumber(field, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, domain.Invalidf("%s must be a number, got %q", field, raw)
	}
	return v, nil
}

func clampSeats(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
