package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
)

type ticketEntry struct {
	mu     sync.Mutex
	ticket *domain.Ticket
}

// MemoryTicketRepository is an in-process TicketRepository. Each ticket has its
// own lock, so compare-and-set on different tickets never contends.
type MemoryTicketRepository struct {
	mu            sync.RWMutex
	tickets       map[string]*ticketEntry
	byReservation map[string]string

	auditMu sync.Mutex
	audit   map[string][]*domain.AuditRecord
}

// NewMemoryTicketRepository creates an empty store
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets:       make(map[string]*ticketEntry),
		byReservation: make(map[string]string),
		audit:         make(map[string][]*domain.AuditRecord),
	}
}

func (r *MemoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if err := ticket.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tickets[ticket.ID]; ok {
		return domain.ErrTicketAlreadyExists
	}
	if _, ok := r.byReservation[ticket.ReservationID]; ok {
		return domain.ErrTicketAlreadyExists
	}

	r.tickets[ticket.ID] = &ticketEntry{ticket: ticket.Clone()}
	r.byReservation[ticket.ReservationID] = ticket.ID
	return nil
}

func (r *MemoryTicketRepository) entry(id string) (*ticketEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tickets[id]
	return e, ok
}

func (e *ticketEntry) snapshot() *domain.Ticket {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticket.Clone()
}

func (r *MemoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	return e.snapshot(), nil
}

func (r *MemoryTicketRepository) GetByReservationID(ctx context.Context, reservationID string) (*domain.Ticket, error) {
	r.mu.RLock()
	id, ok := r.byReservation[reservationID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryTicketRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.TicketStatus, meta domain.TransitionMeta) (*domain.Ticket, error) {
	if err := checkTransition(expected, next, meta); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e, ok := r.entry(id)
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	if meta.At.IsZero() {
		meta.At = time.Now().UTC()
	}

	e.mu.Lock()
	if e.ticket.Status != expected {
		current := e.ticket.Clone()
		e.mu.Unlock()
		return nil, &domain.ConflictError{Expected: expected, Current: current}
	}
	e.ticket.ApplyTransition(next, meta)
	updated := e.ticket.Clone()
	// audit is appended before the ticket lock is released so histories stay ordered
	r.appendAudit(&domain.AuditRecord{
		ID:            uuid.NewString(),
		TicketID:      updated.ID,
		ReservationID: updated.ReservationID,
		FromStatus:    expected,
		ToStatus:      next,
		Actor:         meta.Actor,
		Reason:        meta.Reason,
		At:            meta.At,
	})
	e.mu.Unlock()

	return updated, nil
}

func (r *MemoryTicketRepository) appendAudit(rec *domain.AuditRecord) {
	r.auditMu.Lock()
	defer r.auditMu.Unlock()
	r.audit[rec.TicketID] = append(r.audit[rec.TicketID], rec)
}

// all returns snapshots of every ticket ordered by issue time, newest first
func (r *MemoryTicketRepository) all() []*domain.Ticket {
	r.mu.RLock()
	entries := make([]*ticketEntry, 0, len(r.tickets))
	for _, e := range r.tickets {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]*domain.Ticket, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out
}

func (r *MemoryTicketRepository) List(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, int, error) {
	limit, offset := normalizePage(filter)

	var matched []*domain.Ticket
	for _, t := range r.all() {
		if filter.Matches(t) {
			matched = append(matched, t)
		}
	}

	total := len(matched)
	if offset >= total {
		return []*domain.Ticket{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *MemoryTicketRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*domain.Ticket, error) {
	var out []*domain.Ticket
	for _, t := range r.all() {
		if t.IsWindowClosed(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryTicketRepository) AuditTrail(ctx context.Context, ticketID string) ([]*domain.AuditRecord, error) {
	if _, ok := r.entry(ticketID); !ok {
		return nil, domain.ErrTicketNotFound
	}

	r.auditMu.Lock()
	defer r.auditMu.Unlock()

	records := r.audit[ticketID]
	out := make([]*domain.AuditRecord, len(records))
	for i, rec := range records {
		c := *rec
		out[i] = &c
	}
	return out, nil
}

func (r *MemoryTicketRepository) Stats(ctx context.Context) (*domain.TicketStats, error) {
	stats := domain.NewTicketStats()
	for _, t := range r.all() {
		stats.Add(t)
	}
	return stats, nil
}
