package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
	"github.com/PaulinaPacula189/course-reservation/internal/core/service"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// RateLimiter is satisfied by ratelimit.FixedWindowLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type HTTPHandler struct {
	reservations *service.ReservationService
	catalog      *service.CatalogService
	auth         *service.AuthService

	limiter    RateLimiter
	retryAfter time.Duration
}

type reserveRequest struct {
	Email          string `json:"email"`
	IdempotencyKey string `json:"idempotency_key"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createCourseRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       formValue `json:"price"`
	Seats       formValue `json:"seats"`
	StartDate   string    `json:"startDate"`
	Category    string    `json:"category"`
}

type setSeatsRequest struct {
	Seats *int `json:"seats"`
}

type meResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Admin  bool   `json:"admin"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(reservations *service.ReservationService, catalog *service.CatalogService, auth *service.AuthService) *HTTPHandler {
	return &HTTPHandler{reservations: reservations, catalog: catalog, auth: auth}
}

// WithRateLimiter guards the booking endpoint; retryAfter is advertised on 429.
func (h *HTTPHandler) WithRateLimiter(l RateLimiter, retryAfter time.Duration) *HTTPHandler {
	h.limiter = l
	h.retryAfter = retryAfter
	return h
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", h.ListCategories)
		r.Get("/courses", h.ListCourses)
		r.Get("/courses/{id}", h.GetCourse)
		r.With(h.rateLimit).Post("/courses/{id}/reservations", h.Reserve)

		r.Post("/auth/signup", h.SignUp)
		r.Post("/auth/signin", h.SignIn)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)
			r.Get("/me", h.Me)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/courses", h.CreateCourse)
				r.Patch("/courses/{id}/seats", h.SetSeats)
				r.Get("/courses/{id}/reservations", h.ListReservations)
			})
		})
	})
	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Categories())
}

func (h *HTTPHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.catalog.ListCourses(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if courses == nil {
		courses = []domain.Course{}
	}
	writeJSON(w, http.StatusOK, courses)
}

func (h *HTTPHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.catalog.GetCourse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

// Reserve answers 201 for a new booking and 200 when an earlier booking with the
// same idempotency key is replayed.
func (h *HTTPHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	key := r.Header.Get(IdempotencyKeyHeader)
	if key == "" {
		key = req.IdempotencyKey
	}

	booking, err := h.reservations.Reserve(r.Context(), service.ReserveInput{
		CourseID:       chi.URLParam(r, "id"),
		Email:          req.Email,
		IdempotencyKey: key,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if booking.Replayed {
		status = http.StatusOK
	}
	w.Header().Set(IdempotencyKeyHeader, booking.Reservation.IdempotencyKey)
	writeJSON(w, status, booking)
}

func (h *HTTPHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	handle, err := h.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, handle)
}

func (h *HTTPHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	handle, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, handle)
}

func (h *HTTPHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, meResponse{UserID: p.UserID, Email: p.Email, Admin: p.Admin})
}

func (h *HTTPHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req createCourseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p, _ := PrincipalFrom(r.Context())

	course, err := h.catalog.CreateCourse(r.Context(), p, service.CourseDraft{
		Title:       req.Title,
		Description: req.Description,
		Price:       string(req.Price),
		Seats:       string(req.Seats),
		StartDate:   req.StartDate,
		Category:    req.Category,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, course)
}

func (h *HTTPHandler) SetSeats(w http.ResponseWriter, r *http.Request) {
	var req setSeatsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Seats == nil {
		writeError(w, http.StatusBadRequest, "seats is required")
		return
	}
	p, _ := PrincipalFrom(r.Context())

	course, err := h.catalog.SetSeats(r.Context(), p, chi.URLParam(r, "id"), *req.Seats)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

func (h *HTTPHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	list, err := h.catalog.ListReservations(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Reservation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps domain errors onto HTTP statuses. Store failures are
// retryable and carry Retry-After.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrSoldOut):
		writeError(w, http.StatusConflict, "course is sold out")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, conflictMessage(err))
	case errors.Is(err, domain.ErrUnauthorized):
		if _, ok := PrincipalFrom(r.Context()); ok {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, domain.ErrStoreUnavailable):
		slog.ErrorContext(r.Context(), "store unavailable", "path", r.URL.Path, "err", err)
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable, retry later")
	default:
		slog.ErrorContext(r.Context(), "unhandled error", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmailTaken):
		return "email already registered"
	case errors.Is(err, domain.ErrIdempotencyMismatch):
		return "idempotency key already used for a different reservation"
	}
	return "conflict"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// formValue accepts a JSON string or number, since admin forms send either.
// The text is coerced by the catalog service.
type formValue string

func (f *formValue) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
		*f = formValue(text)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or a number, got %s", s)
	}
	*f = formValue(n.String())
	return nil
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
