package handler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	"github.com/scriptify-cm/event-qr-platform/internal/service"
)

// MockScanService is a mock implementation of ScanService for testing
type MockScanService struct {
	HandleScanFunc func(ctx context.Context, payload, operatorID string) (*domain.ScanOutcome, error)
}

func (m *MockScanService) HandleScan(ctx context.Context, payload, operatorID string) (*domain.ScanOutcome, error) {
	if m.HandleScanFunc != nil {
		return m.HandleScanFunc(ctx, payload, operatorID)
	}
	return nil, nil
}

// MockValidationService is a mock implementation of ValidationService for testing
type MockValidationService struct {
	RequestOTPFunc   func(ctx context.Context, reservationID, actor string) (*domain.Challenge, error)
	VerifyOTPFunc    func(ctx context.Context, reservationID, code, operatorID string) (*domain.Ticket, domain.VerifyResult, error)
	ConfirmEntryFunc func(ctx context.Context, ticketID, operatorID string) (*domain.Ticket, error)
	RejectFunc       func(ctx context.Context, ticketID, operatorID, reason string) (*domain.Ticket, error)
	CancelFunc       func(ctx context.Context, ticketID, actor, reason string) (*domain.Ticket, error)
	ExpireFunc       func(ctx context.Context, t *domain.Ticket) (*domain.Ticket, error)
	ExpireDueFunc    func(ctx context.Context, limit int) (int, error)
	OTPRequired      map[domain.TicketType]bool
}

func (m *MockValidationService) RequestOTP(ctx context.Context, reservationID, actor string) (*domain.Challenge, error) {
	if m.RequestOTPFunc != nil {
		return m.RequestOTPFunc(ctx, reservationID, actor)
	}
	return nil, nil
}

func (m *MockValidationService) VerifyOTP(ctx context.Context, reservationID, code, operatorID string) (*domain.Ticket, domain.VerifyResult, error) {
	if m.VerifyOTPFunc != nil {
		return m.VerifyOTPFunc(ctx, reservationID, code, operatorID)
	}
	return nil, domain.VerifyResult{}, nil
}

func (m *MockValidationService) ConfirmEntry(ctx context.Context, ticketID, operatorID string) (*domain.Ticket, error) {
	if m.ConfirmEntryFunc != nil {
		return m.ConfirmEntryFunc(ctx, ticketID, operatorID)
	}
	return nil, nil
}

func (m *MockValidationService) Reject(ctx context.Context, ticketID, operatorID, reason string) (*domain.Ticket, error) {
	if m.RejectFunc != nil {
		return m.RejectFunc(ctx, ticketID, operatorID, reason)
	}
	return nil, nil
}

func (m *MockValidationService) Cancel(ctx context.Context, ticketID, actor, reason string) (*domain.Ticket, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, ticketID, actor, reason)
	}
	return nil, nil
}

func (m *MockValidationService) Expire(ctx context.Context, t *domain.Ticket) (*domain.Ticket, error) {
	if m.ExpireFunc != nil {
		return m.ExpireFunc(ctx, t)
	}
	return nil, nil
}

func (m *MockValidationService) ExpireDue(ctx context.Context, limit int) (int, error) {
	if m.ExpireDueFunc != nil {
		return m.ExpireDueFunc(ctx, limit)
	}
	return 0, nil
}

func (m *MockValidationService) RequiresOTP(tt domain.TicketType) bool {
	return m.OTPRequired[tt]
}

// MockTicketService is a mock implementation of TicketService for testing
type MockTicketService struct {
	IssueFunc      func(ctx context.Context, req *service.IssueRequest) (*domain.Ticket, string, error)
	GetFunc        func(ctx context.Context, id string) (*domain.Ticket, error)
	ListFunc       func(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, int, error)
	PayloadFunc    func(ctx context.Context, id string) (string, error)
	AuditTrailFunc func(ctx context.Context, id string) ([]*domain.AuditRecord, error)
	StatsFunc      func(ctx context.Context) (*domain.TicketStats, error)
}

func (m *MockTicketService) Issue(ctx context.Context, req *service.IssueRequest) (*domain.Ticket, string, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, req)
	}
	return nil, "", nil
}

func (m *MockTicketService) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, domain.ErrTicketNotFound
}

func (m *MockTicketService) List(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, int, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, 0, nil
}

func (m *MockTicketService) Payload(ctx context.Context, id string) (string, error) {
	if m.PayloadFunc != nil {
		return m.PayloadFunc(ctx, id)
	}
	return "", domain.ErrTicketNotFound
}

func (m *MockTicketService) AuditTrail(ctx context.Context, id string) ([]*domain.AuditRecord, error) {
	if m.AuditTrailFunc != nil {
		return m.AuditTrailFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockTicketService) Stats(ctx context.Context) (*domain.TicketStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return domain.NewTicketStats(), nil
}

func (m *MockTicketService) Catalogue() []domain.CatalogueEntry {
	return domain.DefaultCatalogue().Entries()
}

var testNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func testTicket(status domain.TicketStatus) *domain.Ticket {
	t := &domain.Ticket{
		ID:            "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		ReservationID: "RES-0A1B2C3D4E5F",
		Type:          domain.TicketTypeVIP,
		OwnerName:     "Ana Souza",
		OwnerPhone:    "+5511987654321",
		Price:         decimal.RequireFromString("149.99"),
		Currency:      "USD",
		Status:        status,
		IssuedAt:      testNow,
		ExpiresAt:     testNow.Add(72 * time.Hour),
		UpdatedAt:     testNow,
	}
	if status == domain.TicketStatusValidated {
		at := testNow.Add(time.Hour)
		t.ValidatedAt = &at
		t.ValidatedBy = "op-1"
	}
	return t
}
