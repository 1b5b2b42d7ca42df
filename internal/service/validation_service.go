package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	"github.com/scriptify-cm/event-qr-platform/internal/metrics"
	"github.com/scriptify-cm/event-qr-platform/internal/repository"
	"github.com/scriptify-cm/event-qr-platform/pkg/logger"
	"github.com/scriptify-cm/event-qr-platform/pkg/telemetry"
)

// SystemActor is recorded for transitions nobody triggered by hand
const SystemActor = "system"

const (
	reasonWindowElapsed  = "reservation window elapsed"
	reasonDeliveryFailed = "otp delivery failed"
	maxCASAttempts       = 3
	cleanupTimeout       = 5 * time.Second
)

// ValidationService drives tickets through the validation state machine.
// Every status change goes through the store's compare-and-set.
type ValidationService interface {
	// RequestOTP issues a challenge for the reservation and moves its ticket to otp_sent
	RequestOTP(ctx context.Context, reservationID, actor string) (*domain.Challenge, error)

	// VerifyOTP checks code; success validates the ticket as operatorID
	VerifyOTP(ctx context.Context, reservationID, code, operatorID string) (*domain.Ticket, domain.VerifyResult, error)

	// ConfirmEntry validates a ticket whose type is not OTP-gated
	ConfirmEntry(ctx context.Context, ticketID, operatorID string) (*domain.Ticket, error)

	// Reject refuses entry for an open ticket
	Reject(ctx context.Context, ticketID, operatorID, reason string) (*domain.Ticket, error)

	// Cancel closes an open ticket administratively
	Cancel(ctx context.Context, ticketID, actor, reason string) (*domain.Ticket, error)

	// Expire closes t because its reservation window elapsed
	Expire(ctx context.Context, t *domain.Ticket) (*domain.Ticket, error)

	// ExpireDue expires up to limit tickets whose window has closed
	ExpireDue(ctx context.Context, limit int) (int, error)

	// RequiresOTP reports whether entry for tt must pass the OTP gate
	RequiresOTP(tt domain.TicketType) bool
}

// ValidationConfig contains configuration for the validation service
type ValidationConfig struct {
	OTPRequiredTypes []domain.TicketType
	// Now overrides the clock in tests
	Now func() time.Time
}

type validationService struct {
	tickets     repository.TicketRepository
	otp         OTPService
	sender      OTPSender
	publisher   EventPublisher
	otpRequired map[domain.TicketType]bool
	now         func() time.Time
}

// NewValidationService creates a new validation service
func NewValidationService(
	tickets repository.TicketRepository,
	otp OTPService,
	sender OTPSender,
	publisher EventPublisher,
	cfg *ValidationConfig,
) ValidationService {
	s := &validationService{
		tickets:     tickets,
		otp:         otp,
		sender:      sender,
		publisher:   publisher,
		otpRequired: make(map[domain.TicketType]bool),
		now:         time.Now,
	}
	if cfg != nil {
		for _, tt := range cfg.OTPRequiredTypes {
			s.otpRequired[tt] = true
		}
		if cfg.Now != nil {
			s.now = cfg.Now
		}
	}
	if publisher == nil {
		s.publisher = NewNoOpEventPublisher()
	}
	return s
}

func (s *validationService) RequiresOTP(tt domain.TicketType) bool {
	return s.otpRequired[tt]
}

func (s *validationService) meta(actor, reason string) domain.TransitionMeta {
	return domain.TransitionMeta{Actor: actor, Reason: reason, At: s.now().UTC()}
}

// ensureOpen returns an error unless t can still move toward validation.
// A ticket whose window closed is expired on the spot.
func (s *validationService) ensureOpen(ctx context.Context, t *domain.Ticket) error {
	switch {
	case t.Status == domain.TicketStatusValidated:
		return &domain.ConflictError{Expected: domain.TicketStatusPending, Current: t}
	case t.Status.IsTerminal():
		return fmt.Errorf("%w: ticket is %s", domain.ErrInvalidTransition, t.Status)
	case t.IsWindowClosed(s.now()):
		if _, err := s.Expire(ctx, t); err != nil && !errors.Is(err, domain.ErrConflict) {
			return err
		}
		return domain.ErrTicketExpired
	}
	return nil
}

// transition compare-and-sets t to next. When retry is set and the conflict
// left the ticket in a state that still allows next, it tries again from there.
func (s *validationService) transition(ctx context.Context, t *domain.Ticket, next domain.TicketStatus, meta domain.TransitionMeta, op string, retry bool) (*domain.Ticket, error) {
	current := t
	var err error
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		var updated *domain.Ticket
		updated, err = s.tickets.CompareAndSetStatus(ctx, current.ID, current.Status, next, meta)
		if err == nil {
			metrics.TransitionsTotal.WithLabelValues(string(current.Status), string(next)).Inc()
			return updated, nil
		}

		conflict, ok := domain.AsConflict(err)
		if !ok {
			return nil, err
		}
		metrics.ConflictsTotal.WithLabelValues(op).Inc()
		if !retry || conflict.Current == nil || !domain.CanTransition(conflict.Current.Status, next) {
			return nil, err
		}
		current = conflict.Current
	}
	return nil, err
}

func (s *validationService) event(ctx context.Context, eventType domain.TicketEventType, t *domain.Ticket, meta domain.TransitionMeta) {
	publishDetached(ctx, s.publisher, domain.NewTicketEvent(eventType, t, uuid.NewString(), meta))
}

// discardChallenge drops the reservation's challenge. The ticket transition
// already committed, so a failure here is logged and the challenge left to its TTL.
func (s *validationService) discardChallenge(ctx context.Context, reservationID string) {
	if err := s.otp.Discard(ctx, reservationID); err != nil {
		logger.Get().WarnContext(ctx, "failed to discard otp challenge",
			zap.String("reservation_id", reservationID), zap.Error(err))
	}
}

// undoOTPRequest returns t to pending and drops the code the holder never received.
// It runs detached from ctx, which may be the deadline that failed the send.
func (s *validationService) undoOTPRequest(ctx context.Context, t *domain.Ticket) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	s.discardChallenge(ctx, t.ReservationID)
	_, err := s.transition(ctx, t, domain.TicketStatusPending, s.meta(SystemActor, reasonDeliveryFailed), "request_otp", false)
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		logger.Get().WarnContext(ctx, "failed to reset ticket after otp delivery failure",
			zap.String("ticket_id", t.ID), zap.Error(err))
	}
}

func (s *validationService) RequestOTP(ctx context.Context, reservationID, actor string) (*domain.Challenge, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.validation.request_otp")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", reservationID))

	t, err := s.tickets.GetByReservationID(ctx, reservationID)
	if err != nil {
		telemetry.Fail(span, err, "ticket lookup failed")
		return nil, err
	}
	if err := s.ensureOpen(ctx, t); err != nil {
		telemetry.Fail(span, err, "ticket not open")
		return nil, err
	}

	challenge, code, err := s.otp.Issue(ctx, reservationID)
	if err != nil {
		telemetry.Fail(span, err, "issue failed")
		return nil, err
	}

	if actor == "" {
		actor = SystemActor
	}
	meta := s.meta(actor, "")
	updated, err := s.transition(ctx, t, domain.TicketStatusOTPSent, meta, "request_otp", true)
	if err != nil {
		s.discardChallenge(ctx, reservationID)
		telemetry.Fail(span, err, "transition failed")
		return nil, timeoutError(ctx, err)
	}

	if err := s.sender.Send(ctx, &OTPDispatch{
		ReservationID: reservationID,
		TicketID:      updated.ID,
		Phone:         updated.OwnerPhone,
		Code:          code,
		ExpiresAt:     challenge.ExpiresAt,
	}); err != nil {
		s.undoOTPRequest(ctx, updated)
		telemetry.Fail(span, err, "delivery failed")
		return nil, timeoutError(ctx, err)
	}

	s.event(ctx, domain.TicketEventOTPRequested, updated, meta)
	span.SetStatus(codes.Ok, "")
	return challenge, nil
}

func (s *validationService) VerifyOTP(ctx context.Context, reservationID, code, operatorID string) (*domain.Ticket, domain.VerifyResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.validation.verify_otp")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", reservationID),
		attribute.String("operator_id", operatorID),
	)

	if strings.TrimSpace(operatorID) == "" {
		telemetry.Fail(span, domain.ErrMissingActor, "missing operator")
		return nil, domain.VerifyResult{}, domain.ErrMissingActor
	}

	t, err := s.tickets.GetByReservationID(ctx, reservationID)
	if err != nil {
		telemetry.Fail(span, err, "ticket lookup failed")
		return nil, domain.VerifyResult{}, err
	}
	if err := s.ensureOpen(ctx, t); err != nil {
		telemetry.Fail(span, err, "ticket not open")
		return nil, domain.VerifyResult{}, err
	}
	result, err := s.otp.Verify(ctx, reservationID, code)
	if err != nil {
		telemetry.Fail(span, err, "verify failed")
		return nil, domain.VerifyResult{}, err
	}

	switch {
	case result.Outcome == domain.VerifySuccess:
		meta := s.meta(operatorID, "")
		updated, err := s.transition(ctx, t, domain.TicketStatusValidated, meta, "verify_otp", false)
		if err != nil {
			telemetry.Fail(span, err, "validate failed")
			return nil, result, err
		}
		s.event(ctx, domain.TicketEventValidated, updated, meta)
		span.SetStatus(codes.Ok, "")
		return updated, result, nil

	case result.ResetsTicket():
		meta := s.meta(operatorID, string(result.Outcome))
		current := t
		if t.Status == domain.TicketStatusOTPSent {
			updated, err := s.transition(ctx, t, domain.TicketStatusPending, meta, "verify_otp", false)
			switch {
			case err == nil:
				current = updated
			case !errors.Is(err, domain.ErrConflict):
				logger.Get().WarnContext(ctx, "failed to reset ticket after otp failure",
					zap.String("ticket_id", t.ID), zap.Error(err))
			}
		}
		if result.Outcome == domain.VerifyAttemptsExhausted && t.Status == domain.TicketStatusOTPSent {
			metrics.SecurityEventsTotal.WithLabelValues(string(domain.SecurityEventOTPExhausted)).Inc()
			logger.Get().WarnContext(ctx, "otp attempts exhausted",
				zap.String("reservation_id", reservationID),
				zap.String("ticket_id", t.ID),
				zap.String("operator_id", operatorID),
			)
			s.event(ctx, domain.SecurityEventOTPExhausted, current, meta)
		}
		span.SetStatus(codes.Error, string(result.Outcome))
		return current, result, result.Err()

	default:
		span.SetAttributes(attribute.Int("attempts_remaining", result.AttemptsRemaining))
		span.SetStatus(codes.Error, string(result.Outcome))
		return t, result, result.Err()
	}
}

func (s *validationService) ConfirmEntry(ctx context.Context, ticketID, operatorID string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.validation.confirm_entry")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", ticketID),
		attribute.String("operator_id", operatorID),
	)

	if strings.TrimSpace(operatorID) == "" {
		telemetry.Fail(span, domain.ErrMissingActor, "missing operator")
		return nil, domain.ErrMissingActor
	}

	t, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		telemetry.Fail(span, err, "ticket lookup failed")
		return nil, err
	}
	if err := s.ensureOpen(ctx, t); err != nil {
		telemetry.Fail(span, err, "ticket not open")
		return nil, err
	}
	if s.RequiresOTP(t.Type) {
		telemetry.Fail(span, domain.ErrOTPRequired, "otp gate")
		return nil, domain.ErrOTPRequired
	}

	meta := s.meta(operatorID, "")
	updated, err := s.transition(ctx, t, domain.TicketStatusValidated, meta, "confirm_entry", false)
	if err != nil {
		telemetry.Fail(span, err, "validate failed")
		return nil, err
	}
	if t.Status == domain.TicketStatusOTPSent {
		s.discardChallenge(ctx, t.ReservationID)
	}

	s.event(ctx, domain.TicketEventValidated, updated, meta)
	span.SetStatus(codes.Ok, "")
	return updated, nil
}

func (s *validationService) Reject(ctx context.Context, ticketID, operatorID, reason string) (*domain.Ticket, error) {
	return s.close(ctx, "reject", ticketID, operatorID, reason, domain.TicketStatusRejected)
}

func (s *validationService) Cancel(ctx context.Context, ticketID, actor, reason string) (*domain.Ticket, error) {
	return s.close(ctx, "cancel", ticketID, actor, reason, domain.TicketStatusCancelled)
}

// close moves an open ticket to a terminal refusal state
func (s *validationService) close(ctx context.Context, op, ticketID, actor, reason string, next domain.TicketStatus) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.validation."+op)
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", ticketID),
		attribute.String("actor", actor),
	)

	if strings.TrimSpace(actor) == "" {
		telemetry.Fail(span, domain.ErrMissingActor, "missing actor")
		return nil, domain.ErrMissingActor
	}

	t, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		telemetry.Fail(span, err, "ticket lookup failed")
		return nil, err
	}
	if err := s.ensureOpen(ctx, t); err != nil {
		telemetry.Fail(span, err, "ticket not open")
		return nil, err
	}

	meta := s.meta(actor, strings.TrimSpace(reason))
	updated, err := s.transition(ctx, t, next, meta, op, true)
	if err != nil {
		telemetry.Fail(span, err, op+" failed")
		return nil, err
	}
	s.discardChallenge(ctx, t.ReservationID)

	if eventType, ok := domain.EventTypeFor(next); ok {
		s.event(ctx, eventType, updated, meta)
	}
	span.SetStatus(codes.Ok, "")
	return updated, nil
}

func (s *validationService) Expire(ctx context.Context, t *domain.Ticket) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.validation.expire")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_id", t.ID))

	meta := s.meta(SystemActor, reasonWindowElapsed)
	updated, err := s.transition(ctx, t, domain.TicketStatusExpired, meta, "expire", true)
	if err != nil {
		telemetry.Fail(span, err, "expire failed")
		return nil, err
	}
	s.discardChallenge(ctx, t.ReservationID)

	metrics.TicketsExpiredTotal.Inc()
	s.event(ctx, domain.TicketEventExpired, updated, meta)
	span.SetStatus(codes.Ok, "")
	return updated, nil
}

func (s *validationService) ExpireDue(ctx context.Context, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.validation.expire_due")
	defer span.End()

	due, err := s.tickets.ListExpirable(ctx, s.now().UTC(), limit)
	if err != nil {
		telemetry.Fail(span, err, "list failed")
		return 0, err
	}

	expired := 0
	for _, t := range due {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Expire(ctx, t); err != nil {
			if !errors.Is(err, domain.ErrConflict) {
				logger.Get().WarnContext(ctx, "failed to expire ticket",
					zap.String("ticket_id", t.ID), zap.Error(err))
			}
			continue
		}
		expired++
	}

	span.SetAttributes(attribute.Int("due", len(due)), attribute.Int("expired", expired))
	span.SetStatus(codes.Ok, "")
	return expired, ctx.Err()
}
