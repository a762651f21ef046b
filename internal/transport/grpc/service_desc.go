package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "agenda.booking.v1.BookingService"

	GetAvailableSlotsMethod = "/" + ServiceName + "/GetAvailableSlots"
	BookMethod              = "/" + ServiceName + "/Book"
	CancelMethod            = "/" + ServiceName + "/Cancel"
	CompleteMethod          = "/" + ServiceName + "/Complete"
	GetAppointmentMethod    = "/" + ServiceName + "/GetAppointment"
)

type BookingServiceServer interface {
	GetAvailableSlots(ctx context.Context, req *GetAvailableSlotsRequest) (*GetAvailableSlotsResponse, error)
	Book(ctx context.Context, req *BookRequest) (*BookResponse, error)
	Cancel(ctx context.Context, req *AppointmentRequest) (*AppointmentResponse, error)
	Complete(ctx context.Context, req *AppointmentRequest) (*AppointmentResponse, error)
	GetAppointment(ctx context.Context, req *AppointmentRequest) (*AppointmentResponse, error)
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAvailableSlots", Handler: unaryHandler(GetAvailableSlotsMethod, BookingServiceServer.GetAvailableSlots)},
		{MethodName: "Book", Handler: unaryHandler(BookMethod, BookingServiceServer.Book)},
		{MethodName: "Cancel", Handler: unaryHandler(CancelMethod, BookingServiceServer.Cancel)},
		{MethodName: "Complete", Handler: unaryHandler(CompleteMethod, BookingServiceServer.Complete)},
		{MethodName: "GetAppointment", Handler: unaryHandler(GetAppointmentMethod, BookingServiceServer.GetAppointment)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "agenda/booking/v1/booking.proto",
}

func unaryHandler[Req, Resp any](fullMethod string, call func(BookingServiceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BookingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BookingServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
