package domain

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// TicketType is the admission tier printed on the ticket
type TicketType string

const (
	TicketTypeSimple TicketType = "simple"
	TicketTypeCouple TicketType = "couple"
	TicketTypeVIP    TicketType = "vip"
	TicketTypeVVIP   TicketType = "vvip"
)

// TicketTypes lists every tier in display order
var TicketTypes = []TicketType{TicketTypeSimple, TicketTypeCouple, TicketTypeVIP, TicketTypeVVIP}

// ParseTicketType accepts any casing ("VIP", "Simple")
func ParseTicketType(s string) (TicketType, error) {
	t := TicketType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrInvalidTicketType
	}
	return t, nil
}

// IsValid checks if the type is a known TicketType
func (t TicketType) IsValid() bool {
	switch t {
	case TicketTypeSimple, TicketTypeCouple, TicketTypeVIP, TicketTypeVVIP:
		return true
	}
	return false
}

func (t TicketType) String() string {
	return string(t)
}

// TicketStatus is the validation lifecycle state
type TicketStatus string

const (
	TicketStatusPending   TicketStatus = "pending"
	TicketStatusOTPSent   TicketStatus = "otp_sent"
	TicketStatusValidated TicketStatus = "validated"
	TicketStatusRejected  TicketStatus = "rejected"
	TicketStatusCancelled TicketStatus = "cancelled"
	TicketStatusExpired   TicketStatus = "expired"
)

// IsValid checks if the status is a known TicketStatus
func (s TicketStatus) IsValid() bool {
	switch s {
	case TicketStatusPending, TicketStatusOTPSent, TicketStatusValidated,
		TicketStatusRejected, TicketStatusCancelled, TicketStatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketStatusValidated, TicketStatusRejected, TicketStatusCancelled, TicketStatusExpired:
		return true
	}
	return false
}

func (s TicketStatus) String() string {
	return string(s)
}

var transitions = map[TicketStatus][]TicketStatus{
	TicketStatusPending: {
		TicketStatusOTPSent,
		TicketStatusValidated,
		TicketStatusRejected,
		TicketStatusCancelled,
		TicketStatusExpired,
	},
	TicketStatusOTPSent: {
		TicketStatusOTPSent, // challenge re-issued
		TicketStatusPending, // challenge expired, exhausted or lost
		TicketStatusValidated,
		TicketStatusRejected,
		TicketStatusCancelled,
		TicketStatusExpired,
	},
}

// CanTransition reports whether from -> to is an edge of the validation state machine
func CanTransition(from, to TicketStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Ticket is one admission, bound 1:1 to a reservation
type Ticket struct {
	ID            string          `json:"id"`
	ReservationID string          `json:"reservation_id"`
	Type          TicketType      `json:"type"`
	OwnerName     string          `json:"owner_name"`
	OwnerPhone    string          `json:"owner_phone"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	Status        TicketStatus    `json:"status"`
	StatusReason  string          `json:"status_reason,omitempty"`
	Signature     string          `json:"-"`
	IssuedAt      time.Time       `json:"issued_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
	ValidatedAt   *time.Time      `json:"validated_at,omitempty"`
	ValidatedBy   string          `json:"validated_by,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Validate validates all ticket fields
func (t *Ticket) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrInvalidTicketID
	}
	if strings.TrimSpace(t.ReservationID) == "" {
		return ErrInvalidReservationID
	}
	if !t.Type.IsValid() {
		return ErrInvalidTicketType
	}
	if !t.Status.IsValid() {
		return ErrInvalidTicketStatus
	}
	if err := ValidateOwnerName(t.OwnerName); err != nil {
		return err
	}
	if _, err := NormalizePhone(t.OwnerPhone); err != nil {
		return err
	}
	// validatedAt/validatedBy are set iff the ticket is validated
	hasValidation := t.ValidatedAt != nil || t.ValidatedBy != ""
	if (t.Status == TicketStatusValidated) != hasValidation {
		return ErrInvalidTicketStatus
	}
	return nil
}

// IsWindowClosed reports whether a non-terminal ticket has outlived its reservation window
func (t *Ticket) IsWindowClosed(now time.Time) bool {
	return !t.Status.IsTerminal() && !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Clone returns a deep copy so stores never hand out shared pointers
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	if t.ValidatedAt != nil {
		v := *t.ValidatedAt
		c.ValidatedAt = &v
	}
	return &c
}

// ValidateOwnerName checks the holder name
func ValidateOwnerName(name string) error {
	n := strings.TrimSpace(name)
	if len(n) < 2 || len(n) > 120 {
		return ErrInvalidOwnerName
	}
	return nil
}

// NormalizePhone strips formatting, keeping a leading '+' and digits
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", ErrInvalidPhone
		}
	}
	out := b.String()
	digits := len(strings.TrimPrefix(out, "+"))
	if digits < 6 || digits > 15 {
		return "", ErrInvalidPhone
	}
	return out, nil
}

// TransitionMeta describes who moved a ticket and why
type TransitionMeta struct {
	Actor  string
	Reason string
	At     time.Time
}

// AuditRecord is the append-only history of a ticket's status changes
type AuditRecord struct {
	ID            string       `json:"id"`
	TicketID      string       `json:"ticket_id"`
	ReservationID string       `json:"reservation_id"`
	FromStatus    TicketStatus `json:"from_status"`
	ToStatus      TicketStatus `json:"to_status"`
	Actor         string       `json:"actor"`
	Reason        string       `json:"reason,omitempty"`
	At            time.Time    `json:"at"`
}

// TicketFilter narrows ticket listings
type TicketFilter struct {
	// Query matches id, reservation id, owner name, phone, type or status
	Query  string
	Status TicketStatus
	Type   TicketType
	Phone  string
	Limit  int
	Offset int
}

// Matches reports whether t satisfies the filter, ignoring pagination
func (f TicketFilter) Matches(t *Ticket) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Phone != "" && t.OwnerPhone != f.Phone {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		haystack := []string{t.ID, t.ReservationID, t.OwnerName, t.OwnerPhone, string(t.Type), string(t.Status)}
		for _, h := range haystack {
			if strings.Contains(strings.ToLower(h), q) {
				return true
			}
		}
		return false
	}
	return true
}

// ApplyTransition mutates t for a successful compare-and-set
func (t *Ticket) ApplyTransition(next TicketStatus, meta TransitionMeta) {
	t.Status = next
	t.UpdatedAt = meta.At
	switch next {
	case TicketStatusValidated:
		at := meta.At
		t.ValidatedAt = &at
		t.ValidatedBy = meta.Actor
		t.StatusReason = ""
	case TicketStatusRejected, TicketStatusCancelled, TicketStatusExpired:
		t.StatusReason = meta.Reason
	case TicketStatusPending, TicketStatusOTPSent:
		t.StatusReason = ""
	}
}
