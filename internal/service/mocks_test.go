package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	"github.com/scriptify-cm/event-qr-platform/internal/qrcode"
	"github.com/scriptify-cm/event-qr-platform/internal/repository"
)

const testSecret = "test-signing-secret"

var testStart = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

// fakeClock is a settable clock shared by every service in a fixture
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockOTPSender records dispatches
type MockOTPSender struct {
	mu       sync.Mutex
	sent     []*OTPDispatch
	SendFunc func(ctx context.Context, d *OTPDispatch) error
}

func (m *MockOTPSender) Send(ctx context.Context, d *OTPDispatch) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, d); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, d)
	return nil
}

func (m *MockOTPSender) lastCode(t *testing.T) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no otp dispatched")
	return m.sent[len(m.sent)-1].Code
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu          sync.Mutex
	events      []*domain.TicketEvent
	PublishFunc func(ctx context.Context, event *domain.TicketEvent) error
}

func (m *MockEventPublisher) Publish(ctx context.Context, event *domain.TicketEvent) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, event); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventPublisher) Close() error { return nil }

func (m *MockEventPublisher) types() []domain.TicketEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TicketEventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.EventType
	}
	return out
}

// MockProducer stands in for the Kafka producer
type MockProducer struct {
	mu              sync.Mutex
	messages        []producedMessage
	closed          bool
	ProduceJSONFunc func(ctx context.Context, topic, key string, v any, headers map[string]string) error
}

type producedMessage struct {
	Topic   string
	Key     string
	Value   any
	Headers map[string]string
}

func (m *MockProducer) ProduceJSON(ctx context.Context, topic, key string, v any, headers map[string]string) error {
	if m.ProduceJSONFunc != nil {
		if err := m.ProduceJSONFunc(ctx, topic, key, v, headers); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, producedMessage{Topic: topic, Key: key, Value: v, Headers: headers})
	return nil
}

func (m *MockProducer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// MockTicketRepository fails or overrides single calls on top of a memory store
type MockTicketRepository struct {
	*repository.MemoryTicketRepository
	GetByIDFunc func(ctx context.Context, id string) (*domain.Ticket, error)
}

func (m *MockTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return m.MemoryTicketRepository.GetByID(ctx, id)
}

// MockOTPService overrides Discard on top of a real OTP service
type MockOTPService struct {
	OTPService
	mu           sync.Mutex
	discardCalls int
	DiscardFunc  func(ctx context.Context, reservationID string) error
}

func (m *MockOTPService) Discard(ctx context.Context, reservationID string) error {
	m.mu.Lock()
	m.discardCalls++
	m.mu.Unlock()
	if m.DiscardFunc != nil {
		return m.DiscardFunc(ctx, reservationID)
	}
	return m.OTPService.Discard(ctx, reservationID)
}

func (m *MockOTPService) discards() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discardCalls
}

// fixture wires every service over memory stores and a fake clock
type fixture struct {
	clock      *fakeClock
	tickets    *repository.MemoryTicketRepository
	challenges *repository.MemoryChallengeRepository
	codec      *qrcode.Codec
	sender     *MockOTPSender
	publisher  *MockEventPublisher
	tally      *ScanTally
	otp        OTPService
	validation ValidationService
	scan       ScanService
	issuer     TicketService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:      &fakeClock{now: testStart},
		tickets:    repository.NewMemoryTicketRepository(),
		challenges: repository.NewMemoryChallengeRepository(10 * time.Minute),
		sender:     &MockOTPSender{},
		publisher:  &MockEventPublisher{},
		tally:      NewScanTally(),
	}

	var err error
	f.codec, err = qrcode.NewCodec(testSecret)
	require.NoError(t, err)

	f.otp, err = NewOTPService(f.challenges, &OTPConfig{
		Secret:      testSecret,
		Length:      6,
		TTL:         5 * time.Minute,
		MaxAttempts: 3,
		Now:         f.clock.Now,
	})
	require.NoError(t, err)

	f.validation = NewValidationService(f.tickets, f.otp, f.sender, f.publisher, &ValidationConfig{
		OTPRequiredTypes: []domain.TicketType{domain.TicketTypeVIP, domain.TicketTypeVVIP},
		Now:              f.clock.Now,
	})
	f.scan = NewScanService(f.codec, f.tickets, f.validation, f.publisher, &ScanConfig{Tally: f.tally, Now: f.clock.Now})
	f.issuer = NewTicketService(f.tickets, f.codec, domain.DefaultCatalogue(), f.publisher, &TicketServiceConfig{
		ReservationWindow: 72 * time.Hour,
		Now:               f.clock.Now,
	})
	return f
}

// issue creates a ticket of type tt and returns it with its QR payload
func (f *fixture) issue(t *testing.T, tt domain.TicketType) (*domain.Ticket, string) {
	t.Helper()
	ticket, payload, err := f.issuer.Issue(context.Background(), &IssueRequest{
		OwnerName:  "Ana Souza",
		OwnerPhone: "+55 (11) 98765-4321",
		TicketType: string(tt),
	})
	require.NoError(t, err)
	return ticket, payload
}

func (f *fixture) status(t *testing.T, id string) domain.TicketStatus {
	t.Helper()
	got, err := f.tickets.GetByID(context.Background(), id)
	require.NoError(t, err)
	return got.Status
}
