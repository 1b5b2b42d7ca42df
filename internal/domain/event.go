package domain

import "time"

// TicketEventType names a published lifecycle or security event
type TicketEventType string

const (
	TicketEventIssued         TicketEventType = "ticket.issued"
	TicketEventOTPRequested   TicketEventType = "ticket.otp_requested"
	TicketEventValidated      TicketEventType = "ticket.validated"
	TicketEventRejected       TicketEventType = "ticket.rejected"
	TicketEventCancelled      TicketEventType = "ticket.cancelled"
	TicketEventExpired        TicketEventType = "ticket.expired"
	SecurityEventSignature    TicketEventType = "security.signature_invalid"
	SecurityEventOTPExhausted TicketEventType = "security.otp_exhausted"
)

// TicketEvent is the message body written to the events topic. It never carries codes or phones.
type TicketEvent struct {
	EventID       string          `json:"event_id"`
	EventType     TicketEventType `json:"event_type"`
	TicketID      string          `json:"ticket_id,omitempty"`
	ReservationID string          `json:"reservation_id,omitempty"`
	TicketType    TicketType      `json:"ticket_type,omitempty"`
	Status        TicketStatus    `json:"status,omitempty"`
	Actor         string          `json:"actor,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewTicketEvent builds an event snapshot of t
func NewTicketEvent(eventType TicketEventType, t *Ticket, eventID string, meta TransitionMeta) *TicketEvent {
	ev := &TicketEvent{
		EventID:    eventID,
		EventType:  eventType,
		Actor:      meta.Actor,
		Reason:     meta.Reason,
		OccurredAt: meta.At,
	}
	if t != nil {
		ev.TicketID = t.ID
		ev.ReservationID = t.ReservationID
		ev.TicketType = t.Type
		ev.Status = t.Status
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	return ev
}

// Key partitions events per reservation so consumers see them in order
func (e *TicketEvent) Key() string {
	if e.ReservationID != "" {
		return e.ReservationID
	}
	return e.TicketID
}

// EventTypeFor maps a terminal status to its lifecycle event
func EventTypeFor(status TicketStatus) (TicketEventType, bool) {
	switch status {
	case TicketStatusValidated:
		return TicketEventValidated, true
	case TicketStatusRejected:
		return TicketEventRejected, true
	case TicketStatusCancelled:
		return TicketEventCancelled, true
	case TicketStatusExpired:
		return TicketEventExpired, true
	}
	return "", false
}
