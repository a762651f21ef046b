package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"agenda/internal/calendar"
	"agenda/internal/domain"
	"agenda/internal/service/booking"
	"agenda/internal/store"
)

// retryAfter is the delay suggested to clients when the store is unavailable.
const retryAfter = 2 * time.Second

type bookingService interface {
	GetAvailableSlots(ctx context.Context, q booking.SlotsQuery) ([]domain.Slot, error)
	Book(ctx context.Context, in booking.BookInput) (booking.Outcome, error)
	Cancel(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	Complete(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
}

type BookingServer struct {
	svc bookingService
	loc *time.Location
	log *slog.Logger
}

var _ BookingServiceServer = (*BookingServer)(nil)

// NewBookingServer parses request dates in loc, the business timezone.
func NewBookingServer(svc bookingService, loc *time.Location, log *slog.Logger) *BookingServer {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		svc: svc,
		loc: loc,
		log: log.With(slog.String("component", "grpc.booking")),
	}
}

func (s *BookingServer) GetAvailableSlots(ctx context.Context, req *GetAvailableSlotsRequest) (*GetAvailableSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAvailableSlots"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	day, err := s.parseDate(req.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("professional_id", req.ProfessionalID))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	slots, err := s.svc.GetAvailableSlots(ctx, booking.SlotsQuery{
		ProfessionalID:  req.ProfessionalID,
		Date:            day,
		DurationMinutes: req.DurationMinutes,
		ServiceID:       req.ServiceID,
	})
	if err != nil {
		return nil, s.toStatus(log, err)
	}

	out := make([]Slot, 0, len(slots))
	for _, sl := range slots {
		out = append(out, Slot{
			Date:            domain.DayKey(sl.Date),
			ProfessionalID:  sl.ProfessionalID,
			Start:           sl.StartTime.In(s.loc).Format("15:04"),
			StartTime:       sl.StartTime,
			DurationMinutes: sl.DurationMinutes,
			Available:       sl.Available,
		})
	}

	log.Debug("slots listed", slog.String("professional_id", req.ProfessionalID), slog.String("date", req.Date), slog.Int("count", len(out)))
	return &GetAvailableSlotsResponse{Slots: out}, nil
}

func (s *BookingServer) Book(ctx context.Context, req *BookRequest) (*BookResponse, error) {
	log := s.log.With(slog.String("rpc", "Book"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	day, err := s.parseDate(req.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("professional_id", req.ProfessionalID))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	start, err := calendar.ParseClock(req.StartTime)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_start_time"), slog.String("professional_id", req.ProfessionalID))
		return nil, status.Error(codes.InvalidArgument, "start_time must be HH:MM")
	}

	out, err := s.svc.Book(ctx, booking.BookInput{
		ProfessionalID:  req.ProfessionalID,
		RequesterID:     req.RequesterID,
		Date:            day,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		ServiceID:       req.ServiceID,
		IdempotencyKey:  idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.toStatus(log, err)
	}

	if out.Rejected() {
		return &BookResponse{Rejection: &Rejection{
			Reason:  string(out.Rejection.Reason),
			Message: out.Rejection.Message,
		}}, nil
	}
	return &BookResponse{Appointment: toAppointment(out.Appointment), Replayed: out.Replayed}, nil
}

func (s *BookingServer) Cancel(ctx context.Context, req *AppointmentRequest) (*AppointmentResponse, error) {
	return s.byID(ctx, "Cancel", req, s.svc.Cancel)
}

func (s *BookingServer) Complete(ctx context.Context, req *AppointmentRequest) (*AppointmentResponse, error) {
	return s.byID(ctx, "Complete", req, s.svc.Complete)
}

func (s *BookingServer) GetAppointment(ctx context.Context, req *AppointmentRequest) (*AppointmentResponse, error) {
	return s.byID(ctx, "GetAppointment", req, s.svc.GetAppointment)
}

func (s *BookingServer) byID(ctx context.Context, rpc string, req *AppointmentRequest, call func(context.Context, uuid.UUID) (domain.Appointment, error)) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", rpc))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}

	a, err := call(ctx, id)
	if err != nil {
		return nil, s.toStatus(log.With(slog.String("appointment_id", id.String())), err)
	}
	return &AppointmentResponse{Appointment: toAppointment(a)}, nil
}

func (s *BookingServer) parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("date is required")
	}
	d, err := time.ParseInLocation(time.DateOnly, v, s.loc)
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	return d, nil
}

func (s *BookingServer) toStatus(log *slog.Logger, err error) error {
	var vErr *booking.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", slog.Any("err", err))
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, store.ErrNotFound):
		log.Info("appointment not found")
		return status.Error(codes.NotFound, "appointment not found")
	case errors.Is(err, booking.ErrInvalidTransition):
		log.Info("invalid status transition", slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict")
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different booking. Try again.")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, booking.ErrStoreUnavailable):
		log.Error("store unavailable", slog.Any("err", err))
		return unavailableStatus()
	default:
		log.Error("request failed", slog.Any("err", err))
		return status.Error(codes.Internal, "internal error")
	}
}

func unavailableStatus() error {
	st := status.New(codes.Unavailable, "appointment store unavailable, retry later")
	withRetry, err := st.WithDetails(&errdetails.RetryInfo{RetryDelay: durationpb.New(retryAfter)})
	if err != nil {
		return st.Err()
	}
	return withRetry.Err()
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func toAppointment(a domain.Appointment) *Appointment {
	return &Appointment{
		ID:             a.ID.String(),
		ProfessionalID: a.ProfessionalID,
		RequesterID:    a.RequesterID,
		ServiceID:      a.ServiceID,
		Date:           a.DayKey(),
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		Status:         string(a.Status),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}
