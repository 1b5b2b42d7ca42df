package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	"github.com/scriptify-cm/event-qr-platform/internal/metrics"
	"github.com/scriptify-cm/event-qr-platform/internal/qrcode"
	"github.com/scriptify-cm/event-qr-platform/internal/repository"
	"github.com/scriptify-cm/event-qr-platform/pkg/telemetry"
)

// IssueRequest is a reservation for one ticket
type IssueRequest struct {
	OwnerName  string
	OwnerPhone string
	TicketType string
}

// TicketService issues tickets and serves the read side: holder lookups,
// QR payloads, audit history and dashboard stats.
type TicketService interface {
	// Issue creates a reservation and its pending, signed ticket
	Issue(ctx context.Context, req *IssueRequest) (*domain.Ticket, string, error)

	// Get retrieves a ticket by ID
	Get(ctx context.Context, id string) (*domain.Ticket, error)

	// List searches tickets; a phone filter is normalized first
	List(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, int, error)

	// Payload renders the QR payload of a ticket
	Payload(ctx context.Context, id string) (string, error)

	// AuditTrail returns the ticket's status history
	AuditTrail(ctx context.Context, id string) ([]*domain.AuditRecord, error)

	// Stats aggregates tickets for the admin dashboard
	Stats(ctx context.Context) (*domain.TicketStats, error)

	// Catalogue lists ticket types and prices
	Catalogue() []domain.CatalogueEntry
}

// TicketServiceConfig contains configuration for the ticket service
type TicketServiceConfig struct {
	ReservationWindow time.Duration
	// Now overrides the clock in tests
	Now func() time.Time
}

type ticketService struct {
	tickets   repository.TicketRepository
	codec     *qrcode.Codec
	catalogue *domain.Catalogue
	publisher EventPublisher
	window    time.Duration
	now       func() time.Time
}

// NewTicketService creates a new ticket service
func NewTicketService(
	tickets repository.TicketRepository,
	codec *qrcode.Codec,
	catalogue *domain.Catalogue,
	publisher EventPublisher,
	cfg *TicketServiceConfig,
) TicketService {
	s := &ticketService{
		tickets:   tickets,
		codec:     codec,
		catalogue: catalogue,
		publisher: publisher,
		window:    72 * time.Hour,
		now:       time.Now,
	}
	if catalogue == nil {
		s.catalogue = domain.DefaultCatalogue()
	}
	if publisher == nil {
		s.publisher = NewNoOpEventPublisher()
	}
	if cfg != nil {
		if cfg.ReservationWindow > 0 {
			s.window = cfg.ReservationWindow
		}
		if cfg.Now != nil {
			s.now = cfg.Now
		}
	}
	return s
}

func (s *ticketService) Issue(ctx context.Context, req *IssueRequest) (*domain.Ticket, string, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket.issue")
	defer span.End()

	tt, err := domain.ParseTicketType(req.TicketType)
	if err != nil {
		telemetry.Fail(span, err, "bad ticket type")
		return nil, "", err
	}
	if err := domain.ValidateOwnerName(req.OwnerName); err != nil {
		telemetry.Fail(span, err, "bad owner name")
		return nil, "", err
	}
	phone, err := domain.NormalizePhone(req.OwnerPhone)
	if err != nil {
		telemetry.Fail(span, err, "bad phone")
		return nil, "", err
	}
	price, err := s.catalogue.Price(tt)
	if err != nil {
		telemetry.Fail(span, err, "no price")
		return nil, "", err
	}

	now := s.now().UTC()
	t := &domain.Ticket{
		ID:            uuid.NewString(),
		ReservationID: newReservationID(),
		Type:          tt,
		OwnerName:     strings.TrimSpace(req.OwnerName),
		OwnerPhone:    phone,
		Price:         price,
		Currency:      s.catalogue.Currency,
		Status:        domain.TicketStatusPending,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.window),
		UpdatedAt:     now,
	}
	t.Signature = s.codec.Sign(t.ID, t.ReservationID, t.Type)

	span.SetAttributes(
		attribute.String("ticket_id", t.ID),
		attribute.String("reservation_id", t.ReservationID),
		attribute.String("ticket_type", tt.String()),
	)

	if err := s.tickets.Create(ctx, t); err != nil {
		telemetry.Fail(span, err, "create failed")
		return nil, "", err
	}

	payload, err := s.codec.Encode(t)
	if err != nil {
		telemetry.Fail(span, err, "encode failed")
		return nil, "", err
	}

	metrics.TicketsIssuedTotal.WithLabelValues(tt.String()).Inc()
	publishDetached(ctx, s.publisher, domain.NewTicketEvent(domain.TicketEventIssued, t, uuid.NewString(),
		domain.TransitionMeta{Actor: SystemActor, At: now}))

	span.SetStatus(codes.Ok, "")
	return t, payload, nil
}

// newReservationID returns a short uppercase reference like RES-1F3A9C07B2D4
func newReservationID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "RES-" + strings.ToUpper(id[:12])
}

func (s *ticketService) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidTicketID
	}
	return s.tickets.GetByID(ctx, id)
}

func (s *ticketService) List(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket.list")
	defer span.End()

	if filter.Phone != "" {
		phone, err := domain.NormalizePhone(filter.Phone)
		if err != nil {
			telemetry.Fail(span, err, "bad phone")
			return nil, 0, err
		}
		filter.Phone = phone
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		telemetry.Fail(span, domain.ErrInvalidTicketStatus, "bad status")
		return nil, 0, domain.ErrInvalidTicketStatus
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		telemetry.Fail(span, domain.ErrInvalidTicketType, "bad type")
		return nil, 0, domain.ErrInvalidTicketType
	}

	tickets, total, err := s.tickets.List(ctx, filter)
	if err != nil {
		telemetry.Fail(span, err, "list failed")
		return nil, 0, err
	}
	span.SetStatus(codes.Ok, "")
	return tickets, total, nil
}

func (s *ticketService) Payload(ctx context.Context, id string) (string, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	payload, err := s.codec.Encode(t)
	if err != nil {
		return "", fmt.Errorf("render payload for %s: %w", id, err)
	}
	return payload, nil
}

func (s *ticketService) AuditTrail(ctx context.Context, id string) ([]*domain.AuditRecord, error) {
	return s.tickets.AuditTrail(ctx, id)
}

func (s *ticketService) Stats(ctx context.Context) (*domain.TicketStats, error) {
	return s.tickets.Stats(ctx)
}

func (s *ticketService) Catalogue() []domain.CatalogueEntry {
	return s.catalogue.Entries()
}
