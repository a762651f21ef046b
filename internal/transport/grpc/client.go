package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Client calls BookingService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetAvailableSlots(ctx context.Context, req *GetAvailableSlotsRequest) (*GetAvailableSlotsResponse, error) {
	out := new(GetAvailableSlotsResponse)
	if err := c.cc.Invoke(ctx, GetAvailableSlotsMethod, req, out, grpc.ForceCodec(jsonCodec{})); err != nil {
		return nil, err
	}
	return out, nil
}

// Book sends idempotencyKey as request metadata when it is not empty.
func (c *Client) Book(ctx context.Context, req *BookRequest, idempotencyKey string) (*BookResponse, error) {
	if idempotencyKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "idempotency-key", idempotencyKey)
	}
	out := new(BookResponse)
	if err := c.cc.Invoke(ctx, BookMethod, req, out, grpc.ForceCodec(jsonCodec{})); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Cancel(ctx context.Context, appointmentID string) (*AppointmentResponse, error) {
	return c.byID(ctx, CancelMethod, appointmentID)
}

func (c *Client) Complete(ctx context.Context, appointmentID string) (*AppointmentResponse, error) {
	return c.byID(ctx, CompleteMethod, appointmentID)
}

func (c *Client) GetAppointment(ctx context.Context, appointmentID string) (*AppointmentResponse, error) {
	return c.byID(ctx, GetAppointmentMethod, appointmentID)
}

func (c *Client) byID(ctx context.Context, method, appointmentID string) (*AppointmentResponse, error) {
	out := new(AppointmentResponse)
	if err := c.cc.Invoke(ctx, method, &AppointmentRequest{AppointmentID: appointmentID}, out, grpc.ForceCodec(jsonCodec{})); err != nil {
		return nil, err
	}
	return out, nil
}
