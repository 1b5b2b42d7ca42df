package dto

import (
	"strings"
	"time"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
)

// ScanRequest carries the raw text read from a QR code
type ScanRequest struct {
	Payload string `json:"payload" binding:"required,max=1024"`
}

// ScanResponse is the gate operator's view of a scan
type ScanResponse struct {
	Result      string          `json:"result"`
	Reason      string          `json:"reason,omitempty"`
	OTPRequired bool            `json:"otp_required"`
	ValidatedAt *time.Time      `json:"validated_at,omitempty"`
	ValidatedBy string          `json:"validated_by,omitempty"`
	Ticket      *TicketResponse `json:"ticket,omitempty"`
}

// RequestOTPRequest asks for a code to be sent to the ticket holder
type RequestOTPRequest struct {
	ReservationID string `json:"reservation_id" binding:"required"`
}

// RequestOTPResponse never carries the code itself
type RequestOTPResponse struct {
	ReservationID     string    `json:"reservation_id"`
	ExpiresAt         time.Time `json:"expires_at"`
	AttemptsRemaining int       `json:"attempts_remaining"`
}

// VerifyOTPRequest submits the code the holder read out
type VerifyOTPRequest struct {
	ReservationID string `json:"reservation_id" binding:"required"`
	Code          string `json:"code" binding:"required"`
	OperatorID    string `json:"operator_id,omitempty"`
}

// VerifyOTPResponse reports the verification outcome
type VerifyOTPResponse struct {
	Outcome           string          `json:"outcome"`
	AttemptsRemaining int             `json:"attempts_remaining"`
	Ticket            *TicketResponse `json:"ticket,omitempty"`
}

// ConfirmEntryRequest validates a ticket that skips the OTP gate
type ConfirmEntryRequest struct {
	TicketID   string `json:"ticket_id" binding:"required"`
	OperatorID string `json:"operator_id,omitempty"`
}

// RejectEntryRequest refuses entry
type RejectEntryRequest struct {
	TicketID   string `json:"ticket_id" binding:"required"`
	OperatorID string `json:"operator_id,omitempty"`
	Reason     string `json:"reason" binding:"max=500"`
}

// CancelTicketRequest closes a ticket administratively
type CancelTicketRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// CreateReservationRequest reserves one ticket
type CreateReservationRequest struct {
	OwnerName  string `json:"owner_name" binding:"required,min=2,max=120"`
	OwnerPhone string `json:"owner_phone" binding:"required"`
	TicketType string `json:"ticket_type" binding:"required"`
}

// CreateReservationResponse returns the ticket with the payload to render as a QR code
type CreateReservationResponse struct {
	ReservationID string          `json:"reservation_id"`
	Ticket        *TicketResponse `json:"ticket"`
	QRPayload     string          `json:"qr_payload"`
}

// ListTicketsQuery is bound from the query string
type ListTicketsQuery struct {
	Q      string `form:"q"`
	Status string `form:"status"`
	Type   string `form:"type"`
	Phone  string `form:"phone"`
	Limit  int    `form:"limit" binding:"min=0,max=500"`
	Offset int    `form:"offset" binding:"min=0"`
}

// Filter converts the query into a store filter
func (q *ListTicketsQuery) Filter() domain.TicketFilter {
	return domain.TicketFilter{
		Query:  q.Q,
		Status: domain.TicketStatus(q.Status),
		Type:   domain.TicketType(q.Type),
		Phone:  q.Phone,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
}

// MyTicketsQuery is the holder's lookup by phone
type MyTicketsQuery struct {
	Phone  string `form:"phone" binding:"required,max=32"`
	Limit  int    `form:"limit" binding:"min=0,max=100"`
	Offset int    `form:"offset" binding:"min=0"`
}

// Filter converts the query into a store filter. An unescaped '+' arrives as a space.
func (q *MyTicketsQuery) Filter() domain.TicketFilter {
	phone := q.Phone
	if trimmed := strings.TrimLeft(phone, " "); trimmed != phone {
		phone = "+" + trimmed
	}
	return domain.TicketFilter{
		Phone:  phone,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
}

// QRResponse is the payload to render for a ticket
type QRResponse struct {
	TicketID  string `json:"ticket_id"`
	QRPayload string `json:"qr_payload"`
}

// TicketResponse represents a ticket in API responses
type TicketResponse struct {
	ID            string     `json:"id"`
	ReservationID string     `json:"reservation_id"`
	Type          string     `json:"type"`
	OwnerName     string     `json:"owner_name"`
	OwnerPhone    string     `json:"owner_phone"`
	Price         string     `json:"price"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	StatusReason  string     `json:"status_reason,omitempty"`
	IssuedAt      time.Time  `json:"issued_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	ValidatedAt   *time.Time `json:"validated_at,omitempty"`
	ValidatedBy   string     `json:"validated_by,omitempty"`
}

// FromDomain converts a domain Ticket to TicketResponse
func FromDomain(t *domain.Ticket) *TicketResponse {
	if t == nil {
		return nil
	}
	return &TicketResponse{
		ID:            t.ID,
		ReservationID: t.ReservationID,
		Type:          string(t.Type),
		OwnerName:     t.OwnerName,
		OwnerPhone:    t.OwnerPhone,
		Price:         t.Price.StringFixed(2),
		Currency:      t.Currency,
		Status:        string(t.Status),
		StatusReason:  t.StatusReason,
		IssuedAt:      t.IssuedAt,
		ExpiresAt:     t.ExpiresAt,
		ValidatedAt:   t.ValidatedAt,
		ValidatedBy:   t.ValidatedBy,
	}
}

// FromDomainList converts a slice of tickets
func FromDomainList(tickets []*domain.Ticket) []*TicketResponse {
	out := make([]*TicketResponse, len(tickets))
	for i, t := range tickets {
		out[i] = FromDomain(t)
	}
	return out
}

// FromScanOutcome converts a scan outcome
func FromScanOutcome(o *domain.ScanOutcome) *ScanResponse {
	return &ScanResponse{
		Result:      string(o.Result),
		Reason:      o.Reason,
		OTPRequired: o.OTPRequired,
		ValidatedAt: o.ValidatedAt,
		ValidatedBy: o.ValidatedBy,
		Ticket:      FromDomain(o.Ticket),
	}
}
