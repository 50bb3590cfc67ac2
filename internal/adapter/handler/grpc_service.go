package handler

import (
	"context"

	"google.golang.org/grpc"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
	"github.com/PaulinaPacula189/course-reservation/internal/core/service"
)

const reservationServiceName = "courses.v1.ReservationService"

type ReserveRequest struct {
	CourseID       string `json:"courseId"`
	Email          string `json:"email"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type ReserveResponse struct {
	Booking        *service.Booking `json:"booking"`
	IdempotencyKey string           `json:"idempotencyKey"`
}

type GetCourseRequest struct {
	ID string `json:"id"`
}

type ListCoursesRequest struct {
	Category string `json:"category"`
}

type ListCoursesResponse struct {
	Courses []domain.Course `json:"courses"`
}

type ReservationServiceServer interface {
	Reserve(ctx context.Context, req *ReserveRequest) (*ReserveResponse, error)
	GetCourse(ctx context.Context, req *GetCourseRequest) (*domain.Course, error)
	ListCourses(ctx context.Context, req *ListCoursesRequest) (*ListCoursesResponse, error)
}

func RegisterReservationServiceServer(s grpc.ServiceRegistrar, srv ReservationServiceServer) {
	s.RegisterService(&ReservationServiceDesc, srv)
}

var ReservationServiceDesc = grpc.ServiceDesc{
	ServiceName: reservationServiceName,
	HandlerType: (*ReservationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Reserve",
			Handler: unaryHandler("Reserve", func(s ReservationServiceServer, ctx context.Context, req *ReserveRequest) (any, error) {
				return s.Reserve(ctx, req)
			}),
		},
		{
			MethodName: "GetCourse",
			Handler: unaryHandler("GetCourse", func(s ReservationServiceServer, ctx context.Context, req *GetCourseRequest) (any, error) {
				return s.GetCourse(ctx, req)
			}),
		},
		{
			MethodName: "ListCourses",
			Handler: unaryHandler("ListCourses", func(s ReservationServiceServer, ctx context.Context, req *ListCoursesRequest) (any, error) {
				return s.ListCourses(ctx, req)
			}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

func unaryHandler[Req any](method string, call func(ReservationServiceServer, context.Context, *Req) (any, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + reservationServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReservationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ReservationServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ReservationClient calls the service over any connection using the JSON codec.
type ReservationClient struct {
	cc grpc.ClientConnInterface
}

func NewReservationClient(cc grpc.ClientConnInterface) *ReservationClient {
	return &ReservationClient{cc: cc}
}

func (c *ReservationClient) Reserve(ctx context.Context, req *ReserveRequest, opts ...grpc.CallOption) (*ReserveResponse, error) {
	out := new(ReserveResponse)
	if err := c.invoke(ctx, "Reserve", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReservationClient) GetCourse(ctx context.Context, req *GetCourseRequest, opts ...grpc.CallOption) (*domain.Course, error) {
	out := new(domain.Course)
	if err := c.invoke(ctx, "GetCourse", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReservationClient) ListCourses(ctx context.Context, req *ListCoursesRequest, opts ...grpc.CallOption) (*ListCoursesResponse, error) {
	out := new(ListCoursesResponse)
	if err := c.invoke(ctx, "ListCourses", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReservationClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+reservationServiceName+"/"+method, in, out, opts...)
}
