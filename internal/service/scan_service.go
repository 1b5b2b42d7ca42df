package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	"github.com/scriptify-cm/event-qr-platform/internal/metrics"
	"github.com/scriptify-cm/event-qr-platform/internal/qrcode"
	"github.com/scriptify-cm/event-qr-platform/internal/repository"
	"github.com/scriptify-cm/event-qr-platform/pkg/logger"
	"github.com/scriptify-cm/event-qr-platform/pkg/telemetry"
)

// ScanService resolves scanned payloads. A scan never validates a ticket.
type ScanService interface {
	HandleScan(ctx context.Context, payload, operatorID string) (*domain.ScanOutcome, error)
}

// ScanConfig contains configuration for the scan service
type ScanConfig struct {
	// Tally receives one count per scan; nil disables attribution
	Tally *ScanTally
	// Now overrides the clock in tests
	Now func() time.Time
}

// ScanTally counts scans per operator since the process started
type ScanTally struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewScanTally creates an empty tally
func NewScanTally() *ScanTally {
	return &ScanTally{counts: make(map[string]int)}
}

// Add counts one scan for operatorID
func (t *ScanTally) Add(operatorID string) {
	if t == nil || operatorID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[operatorID]++
}

// Snapshot returns a copy of the counts
func (t *ScanTally) Snapshot() map[string]int {
	out := make(map[string]int)
	if t == nil {
		return out
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, n := range t.counts {
		out[id] = n
	}
	return out
}

type scanService struct {
	codec      *qrcode.Codec
	tickets    repository.TicketRepository
	validation ValidationService
	publisher  EventPublisher
	tally      *ScanTally
	now        func() time.Time
}

// NewScanService creates a new scan service
func NewScanService(
	codec *qrcode.Codec,
	tickets repository.TicketRepository,
	validation ValidationService,
	publisher EventPublisher,
	cfg *ScanConfig,
) ScanService {
	if publisher == nil {
		publisher = NewNoOpEventPublisher()
	}
	s := &scanService{
		codec:      codec,
		tickets:    tickets,
		validation: validation,
		publisher:  publisher,
		now:        time.Now,
	}
	if cfg != nil {
		s.tally = cfg.Tally
		if cfg.Now != nil {
			s.now = cfg.Now
		}
	}
	return s
}

// timeoutError maps a deadline hit onto ErrTimeout
func timeoutError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return err
}

func record(outcome *domain.ScanOutcome) *domain.ScanOutcome {
	metrics.ScansTotal.WithLabelValues(string(outcome.Result), outcome.Reason).Inc()
	return outcome
}

// HandleScan decodes payload and reports what the operator should do.
// Business outcomes come back as a ScanOutcome; only infrastructure failures are errors.
func (s *scanService) HandleScan(ctx context.Context, payload, operatorID string) (*domain.ScanOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.scan.handle")
	defer span.End()

	span.SetAttributes(attribute.String("operator_id", operatorID))
	s.tally.Add(operatorID)

	ref, err := s.codec.Decode(payload)
	if err != nil {
		var decErr *qrcode.DecodeError
		reason := domain.ReasonMalformed
		if errors.As(err, &decErr) {
			reason = decErr.Reason()
		}
		if reason == domain.ReasonSignatureInvalid {
			s.signatureInvalid(ctx)
		}
		span.SetAttributes(attribute.String("result", string(domain.ScanInvalid)), attribute.String("reason", reason))
		span.SetStatus(codes.Ok, "")
		return record(&domain.ScanOutcome{Result: domain.ScanInvalid, Reason: reason}), nil
	}

	span.SetAttributes(attribute.String("ticket_id", ref.ID))

	t, err := s.tickets.GetByID(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			span.SetStatus(codes.Ok, "unknown ticket")
			return record(&domain.ScanOutcome{Result: domain.ScanInvalid, Reason: domain.ReasonUnknownTicket}), nil
		}
		err = timeoutError(ctx, err)
		if errors.Is(err, domain.ErrTimeout) {
			metrics.ScansTotal.WithLabelValues(string(domain.ScanTimeout), "").Inc()
		}
		telemetry.Fail(span, err, "ticket lookup failed")
		return nil, err
	}

	// a valid tag for a ticket whose stored fields differ means the store and the payload disagree
	if t.ReservationID != ref.ReservationID || t.Type != ref.Type || (t.Signature != "" && t.Signature != ref.Signature) {
		logger.Get().WarnContext(ctx, "scanned payload disagrees with stored ticket", zap.String("ticket_id", ref.ID))
		span.SetStatus(codes.Ok, "field mismatch")
		return record(&domain.ScanOutcome{Result: domain.ScanInvalid, Reason: domain.ReasonUnknownTicket}), nil
	}

	outcome, err := s.classify(ctx, t)
	if err != nil {
		err = timeoutError(ctx, err)
		telemetry.Fail(span, err, "classification failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("result", string(outcome.Result)))
	span.SetStatus(codes.Ok, "")
	return record(outcome), nil
}

func (s *scanService) classify(ctx context.Context, t *domain.Ticket) (*domain.ScanOutcome, error) {
	switch t.Status {
	case domain.TicketStatusValidated:
		return &domain.ScanOutcome{
			Result:      domain.ScanAlreadyUsed,
			Ticket:      t,
			ValidatedAt: t.ValidatedAt,
			ValidatedBy: t.ValidatedBy,
		}, nil
	case domain.TicketStatusCancelled:
		return notValid(t, domain.ReasonCancelled), nil
	case domain.TicketStatusRejected:
		return notValid(t, domain.ReasonRejected), nil
	case domain.TicketStatusExpired:
		return notValid(t, domain.ReasonExpired), nil
	}

	if t.IsWindowClosed(s.now()) {
		expired, err := s.validation.Expire(ctx, t)
		if err != nil {
			conflict, ok := domain.AsConflict(err)
			if !ok {
				return nil, err
			}
			// someone else moved it first; report what is stored now
			return s.classify(ctx, conflict.Current)
		}
		return notValid(expired, domain.ReasonExpired), nil
	}

	return &domain.ScanOutcome{
		Result:      domain.ScanReadyForEntry,
		Ticket:      t,
		OTPRequired: s.validation.RequiresOTP(t.Type),
	}, nil
}

func notValid(t *domain.Ticket, reason string) *domain.ScanOutcome {
	return &domain.ScanOutcome{Result: domain.ScanNotValid, Reason: reason, Ticket: t}
}

func (s *scanService) signatureInvalid(ctx context.Context) {
	metrics.SecurityEventsTotal.WithLabelValues(string(domain.SecurityEventSignature)).Inc()
	logger.Get().WarnContext(ctx, "ticket signature invalid")
	publishDetached(ctx, s.publisher, domain.NewTicketEvent(domain.SecurityEventSignature, nil, uuid.NewString(),
		domain.TransitionMeta{Actor: SystemActor, Reason: domain.ReasonSignatureInvalid}))
}
