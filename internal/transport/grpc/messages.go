package grpc

import "time"

type Appointment struct {
	ID             string    `json:"id"`
	ProfessionalID string    `json:"professional_id"`
	RequesterID    string    `json:"requester_id"`
	ServiceID      string    `json:"service_id,omitempty"`
	Date           string    `json:"date"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Slot struct {
	Date            string    `json:"date"`
	ProfessionalID  string    `json:"professional_id"`
	Start           string    `json:"start"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Available       bool      `json:"available"`
}

type Rejection struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type GetAvailableSlotsRequest struct {
	ProfessionalID  string `json:"professional_id"`
	Date            string `json:"date"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	ServiceID       string `json:"service_id,omitempty"`
}

type GetAvailableSlotsResponse struct {
	Slots []Slot `json:"slots"`
}

type BookRequest struct {
	ProfessionalID  string `json:"professional_id"`
	RequesterID     string `json:"requester_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	ServiceID       string `json:"service_id,omitempty"`
}

// BookResponse carries either the appointment or the rejection.
type BookResponse struct {
	Appointment *Appointment `json:"appointment,omitempty"`
	Rejection   *Rejection   `json:"rejection,omitempty"`
	Replayed    bool         `json:"replayed,omitempty"`
}

type AppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type AppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}
