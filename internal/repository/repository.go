package repository

import (
	"context"
	"time"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
)

// TicketRepository stores tickets and their audit trail.
// CompareAndSetStatus is the only way to change a ticket's status.
type TicketRepository interface {
	// Create inserts a new ticket; duplicate id or reservation returns ErrTicketAlreadyExists
	Create(ctx context.Context, ticket *domain.Ticket) error

	// GetByID returns ErrTicketNotFound when absent
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)

	// GetByReservationID returns ErrTicketNotFound when absent
	GetByReservationID(ctx context.Context, reservationID string) (*domain.Ticket, error)

	// CompareAndSetStatus atomically moves id from expected to next and appends an audit record.
	// A lost race returns *domain.ConflictError carrying the current ticket.
	CompareAndSetStatus(ctx context.Context, id string, expected, next domain.TicketStatus, meta domain.TransitionMeta) (*domain.Ticket, error)

	// List returns a page of tickets matching filter plus the total match count
	List(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, int, error)

	// ListExpirable returns non-terminal tickets whose window closed at or before now
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]*domain.Ticket, error)

	// AuditTrail returns a ticket's status history, oldest first
	AuditTrail(ctx context.Context, ticketID string) ([]*domain.AuditRecord, error)

	// Stats aggregates tickets for the admin dashboard
	Stats(ctx context.Context) (*domain.TicketStats, error)
}

// ChallengeRepository holds at most one OTP challenge per reservation.
// Verify must decide and update atomically.
type ChallengeRepository interface {
	// Save replaces any existing challenge for the reservation
	Save(ctx context.Context, challenge *domain.Challenge) error

	// Verify checks codeHash at now, decrementing attempts on mismatch,
	// consuming the challenge on success and deleting it when expired.
	Verify(ctx context.Context, reservationID, codeHash string, now time.Time) (domain.VerifyResult, error)

	// Get returns ErrChallengeNotFound when absent
	Get(ctx context.Context, reservationID string) (*domain.Challenge, error)

	// Delete removes the challenge; deleting a missing challenge is not an error
	Delete(ctx context.Context, reservationID string) error
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func normalizePage(f domain.TicketFilter) (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset = f.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// checkTransition validates a CAS request before touching storage
func checkTransition(expected, next domain.TicketStatus, meta domain.TransitionMeta) error {
	if !domain.CanTransition(expected, next) {
		return domain.ErrInvalidTransition
	}
	if next == domain.TicketStatusValidated && meta.Actor == "" {
		return domain.ErrMissingActor
	}
	return nil
}
