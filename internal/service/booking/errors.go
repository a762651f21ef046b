package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

var (
	// ErrStoreUnavailable marks a collaborator failure. Callers may retry with
	// backoff.
	ErrStoreUnavailable  = errors.New("appointment store unavailable")
	ErrInvalidTransition = errors.New("invalid status transition")
)

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

type RejectionReason string

const (
	OutsideBusinessHours RejectionReason = "OUTSIDE_BUSINESS_HOURS"
	SlotAlreadyTaken     RejectionReason = "SLOT_ALREADY_TAKEN"
	InvalidDuration      RejectionReason = "INVALID_DURATION"
)

// Rejection is a routine, user-facing booking outcome. It is not an error.
type Rejection struct {
	Reason  RejectionReason
	Message string
}

func reject(reason RejectionReason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return validationError(err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return validationError(fe.Field() + " is required")
	case "max":
		return validationError(fe.Field() + " too long")
	case "gte", "lte":
		return validationError(fe.Field() + " out of range")
	default:
		return validationError(strings.TrimSpace(fe.Field() + " is invalid"))
	}
}
