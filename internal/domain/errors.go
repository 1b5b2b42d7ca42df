package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Ticket errors
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrTicketAlreadyExists = errors.New("ticket already exists")
	ErrConflict            = errors.New("ticket status changed concurrently")
	ErrInvalidTransition   = errors.New("invalid ticket status transition")
	ErrOTPRequired         = errors.New("ticket type requires otp verification")
	ErrTicketExpired       = errors.New("ticket reservation window has closed")

	// Challenge errors
	ErrChallengeNotFound = errors.New("otp challenge not found")
	ErrChallengeExpired  = errors.New("otp challenge expired")
	ErrAttemptsExhausted = errors.New("otp attempts exhausted")
	ErrOTPMismatch       = errors.New("otp code mismatch")

	// Validation errors
	ErrInvalidTicketID      = errors.New("invalid ticket id")
	ErrInvalidReservationID = errors.New("invalid reservation id")
	ErrInvalidTicketType    = errors.New("invalid ticket type")
	ErrInvalidTicketStatus  = errors.New("invalid ticket status")
	ErrInvalidOwnerName     = errors.New("invalid owner name")
	ErrInvalidPhone         = errors.New("invalid phone number")
	ErrInvalidOTPCode       = errors.New("invalid otp code format")
	ErrMissingActor         = errors.New("operator identity is required")
	ErrOperatorMismatch     = errors.New("operator id does not match authenticated operator")

	// Infrastructure errors
	ErrTimeout           = errors.New("operation timed out")
	ErrOTPDeliveryFailed = errors.New("otp could not be delivered")
)

// ConflictError is returned when a compare-and-set loses; Current is the ticket as stored now
type ConflictError struct {
	Expected TicketStatus
	Current  *Ticket
}

func (e *ConflictError) Error() string {
	if e.Current == nil {
		return fmt.Sprintf("%s: expected %s", ErrConflict, e.Expected)
	}
	return fmt.Sprintf("%s: expected %s, found %s", ErrConflict, e.Expected, e.Current.Status)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// AsConflict extracts a ConflictError from err
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrChallengeNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidTicketID) ||
		errors.Is(err, ErrInvalidReservationID) ||
		errors.Is(err, ErrInvalidTicketType) ||
		errors.Is(err, ErrInvalidTicketStatus) ||
		errors.Is(err, ErrInvalidOwnerName) ||
		errors.Is(err, ErrInvalidPhone) ||
		errors.Is(err, ErrInvalidOTPCode)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrTicketAlreadyExists) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrOTPRequired)
}
