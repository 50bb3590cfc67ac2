package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
	"github.com/PaulinaPacula189/course-reservation/internal/core/service"
)

type GRPCHandler struct {
	reservations *service.ReservationService
	catalog      *service.CatalogService
}

func NewGRPCHandler(reservations *service.ReservationService, catalog *service.CatalogService) *GRPCHandler {
	return &GRPCHandler{reservations: reservations, catalog: catalog}
}

func (h *GRPCHandler) Reserve(ctx context.Context, req *ReserveRequest) (*ReserveResponse, error) {
	booking, err := h.reservations.Reserve(ctx, service.ReserveInput{
		CourseID:       req.CourseID,
		Email:          req.Email,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return &ReserveResponse{Booking: booking, IdempotencyKey: booking.Reservation.IdempotencyKey}, nil
}

func (h *GRPCHandler) GetCourse(ctx context.Context, req *GetCourseRequest) (*domain.Course, error) {
	course, err := h.catalog.GetCourse(ctx, req.ID)
	if err != nil {
		return nil, grpcError(err)
	}
	return course, nil
}

func (h *GRPCHandler) ListCourses(ctx context.Context, req *ListCoursesRequest) (*ListCoursesResponse, error) {
	courses, err := h.catalog.ListCourses(ctx, req.Category)
	if err != nil {
		return nil, grpcError(err)
	}
	if courses == nil {
		courses = []domain.Course{}
	}
	return &ListCoursesResponse{Courses: courses}, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalid):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, domain.ErrSoldOut):
		return status.Error(codes.FailedPrecondition, "course is sold out")
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.AlreadyExists, conflictMessage(err))
	case errors.Is(err, domain.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, "invalid credentials")
	case errors.Is(err, domain.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, "admin role required")
	case errors.Is(err, domain.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, "service temporarily unavailable, retry later")
	}
	return status.Error(codes.Internal, "internal error")
}

// LoggingInterceptor logs each unary call with its status code.
func LoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)

	level := slog.LevelInfo
	if code == codes.Internal || code == codes.Unavailable {
		level = slog.LevelError
	}
	slog.Log(ctx, level, "grpc request",
		"method", info.FullMethod,
		"code", code.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, err
}
