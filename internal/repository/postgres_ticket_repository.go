package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	"github.com/scriptify-cm/event-qr-platform/pkg/database"
	"github.com/scriptify-cm/event-qr-platform/pkg/telemetry"
)

const uniqueViolation = "23505"

const ticketColumns = `
	id, reservation_id, ticket_type, owner_name, owner_phone,
	price::text, currency, status, status_reason, signature,
	issued_at, expires_at, validated_at, validated_by, updated_at`

// PostgresTicketRepository implements TicketRepository on PostgreSQL.
// Status changes are a conditional UPDATE plus an audit INSERT in one transaction.
type PostgresTicketRepository struct {
	db database.DB
}

// NewPostgresTicketRepository creates a new PostgresTicketRepository
func NewPostgresTicketRepository(db database.DB) *PostgresTicketRepository {
	return &PostgresTicketRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		t           domain.Ticket
		ticketType  string
		status      string
		price       string
		validatedBy *string
	)
	err := row.Scan(
		&t.ID,
		&t.ReservationID,
		&ticketType,
		&t.OwnerName,
		&t.OwnerPhone,
		&price,
		&t.Currency,
		&status,
		&t.StatusReason,
		&t.Signature,
		&t.IssuedAt,
		&t.ExpiresAt,
		&t.ValidatedAt,
		&validatedBy,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Type = domain.TicketType(ticketType)
	t.Status = domain.TicketStatus(status)
	if validatedBy != nil {
		t.ValidatedBy = *validatedBy
	}
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("ticket %s price %q: %w", t.ID, price, err)
	}
	return &t, nil
}

// Create inserts a new ticket
func (r *PostgresTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", ticket.ID),
		attribute.String("reservation_id", ticket.ReservationID),
		attribute.String("ticket_type", ticket.Type.String()),
	)

	if err := ticket.Validate(); err != nil {
		telemetry.Fail(span, err, "invalid ticket")
		return err
	}

	query := `
		INSERT INTO tickets (
			id, reservation_id, ticket_type, owner_name, owner_phone,
			price, currency, status, status_reason, signature,
			issued_at, expires_at, validated_at, validated_by, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::numeric, $7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)
	`

	_, err := r.db.Exec(ctx, query,
		ticket.ID,
		ticket.ReservationID,
		ticket.Type.String(),
		ticket.OwnerName,
		ticket.OwnerPhone,
		ticket.Price.StringFixed(2),
		ticket.Currency,
		ticket.Status.String(),
		ticket.StatusReason,
		ticket.Signature,
		ticket.IssuedAt,
		ticket.ExpiresAt,
		ticket.ValidatedAt,
		nullString(ticket.ValidatedBy),
		ticket.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			telemetry.Fail(span, domain.ErrTicketAlreadyExists, "duplicate ticket")
			return domain.ErrTicketAlreadyExists
		}
		telemetry.Fail(span, err, "insert failed")
		return fmt.Errorf("failed to create ticket: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a ticket by its ID
func (r *PostgresTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_id", id))
	return r.getOne(ctx, span, `SELECT`+ticketColumns+` FROM tickets WHERE id = $1`, id)
}

// GetByReservationID retrieves the ticket bound to a reservation
func (r *PostgresTicketRepository) GetByReservationID(ctx context.Context, reservationID string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.get_by_reservation_id")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", reservationID))
	return r.getOne(ctx, span, `SELECT`+ticketColumns+` FROM tickets WHERE reservation_id = $1`, reservationID)
}

func (r *PostgresTicketRepository) getOne(ctx context.Context, span trace.Span, query string, arg string) (*domain.Ticket, error) {
	t, err := scanTicket(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "not found")
			return nil, domain.ErrTicketNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return t, nil
}

// CompareAndSetStatus moves a ticket from expected to next. The WHERE status = $2
// guard makes concurrent callers race on the row lock; exactly one sees a row back.
func (r *PostgresTicketRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.TicketStatus, meta domain.TransitionMeta) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.compare_and_set_status")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", id),
		attribute.String("expected", expected.String()),
		attribute.String("next", next.String()),
	)

	if err := checkTransition(expected, next, meta); err != nil {
		telemetry.Fail(span, err, "transition refused")
		return nil, err
	}
	if meta.At.IsZero() {
		meta.At = time.Now().UTC()
	}

	// the zero ticket shows which fields the transition sets
	var applied domain.Ticket
	applied.ApplyTransition(next, meta)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		telemetry.Fail(span, err, "begin failed")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `
		UPDATE tickets SET
			status = $3,
			status_reason = $4,
			validated_at = COALESCE($5, validated_at),
			validated_by = COALESCE($6, validated_by),
			updated_at = $7
		WHERE id = $1 AND status = $2
		RETURNING` + ticketColumns

	updated, err := scanTicket(tx.QueryRow(ctx, query,
		id,
		expected.String(),
		next.String(),
		applied.StatusReason,
		applied.ValidatedAt,
		nullString(applied.ValidatedBy),
		meta.At,
	))
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.casMiss(ctx, span, id, expected)
		}
		telemetry.Fail(span, err, "update failed")
		return nil, fmt.Errorf("failed to update ticket status: %w", err)
	}

	auditQuery := `
		INSERT INTO ticket_audit (id, ticket_id, reservation_id, from_status, to_status, actor, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.Exec(ctx, auditQuery,
		uuid.NewString(),
		updated.ID,
		updated.ReservationID,
		expected.String(),
		next.String(),
		meta.Actor,
		meta.Reason,
		meta.At,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		telemetry.Fail(span, err, "audit insert failed")
		return nil, fmt.Errorf("failed to record audit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		telemetry.Fail(span, err, "commit failed")
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return updated, nil
}

// casMiss explains why the guarded UPDATE matched nothing
func (r *PostgresTicketRepository) casMiss(ctx context.Context, span trace.Span, id string, expected domain.TicketStatus) error {
	current, err := scanTicket(r.db.QueryRow(ctx, `SELECT`+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return domain.ErrTicketNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to reload ticket: %w", err)
	}
	span.SetAttributes(attribute.String("current", current.Status.String()))
	span.SetStatus(codes.Error, "conflict")
	return &domain.ConflictError{Expected: expected, Current: current}
}

// whereClause builds the filter predicate and its arguments
func whereClause(f domain.TicketFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", f.Status.String())
	}
	if f.Type != "" {
		add("ticket_type = $%d", f.Type.String())
	}
	if f.Phone != "" {
		add("owner_phone = $%d", f.Phone)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(id ILIKE $%[1]d OR reservation_id ILIKE $%[1]d OR owner_name ILIKE $%[1]d "+
				"OR owner_phone ILIKE $%[1]d OR ticket_type ILIKE $%[1]d OR status ILIKE $%[1]d)", n))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns a filtered page of tickets, newest first
func (r *PostgresTicketRepository) List(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.list")
	defer span.End()

	limit, offset := normalizePage(filter)
	where, args := whereClause(filter)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`+where, args...).Scan(&total); err != nil {
		telemetry.Fail(span, err, "count failed")
		return nil, 0, fmt.Errorf("failed to count tickets: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT%s FROM tickets%s ORDER BY issued_at DESC, id LIMIT $%d OFFSET $%d`,
		ticketColumns, where, len(args)-1, len(args))

	tickets, err := r.queryTickets(ctx, query, args...)
	if err != nil {
		telemetry.Fail(span, err, "list failed")
		return nil, 0, err
	}

	span.SetAttributes(attribute.Int("total", total), attribute.Int("returned", len(tickets)))
	span.SetStatus(codes.Ok, "")
	return tickets, total, nil
}

// ListExpirable returns open tickets whose reservation window has closed
func (r *PostgresTicketRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.list_expirable")
	defer span.End()

	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT` + ticketColumns + `
		FROM tickets
		WHERE status IN ('pending', 'otp_sent') AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`

	tickets, err := r.queryTickets(ctx, query, now, limit)
	if err != nil {
		telemetry.Fail(span, err, "list expirable failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(tickets)))
	span.SetStatus(codes.Ok, "")
	return tickets, nil
}

func (r *PostgresTicketRepository) queryTickets(ctx context.Context, query string, args ...any) ([]*domain.Ticket, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	tickets := []*domain.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickets: %w", err)
	}
	return tickets, nil
}

// AuditTrail returns the status history of a ticket, oldest first
func (r *PostgresTicketRepository) AuditTrail(ctx context.Context, ticketID string) ([]*domain.AuditRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.audit_trail")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_id", ticketID))

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1)`, ticketID).Scan(&exists); err != nil {
		telemetry.Fail(span, err, "lookup failed")
		return nil, fmt.Errorf("failed to look up ticket: %w", err)
	}
	if !exists {
		span.SetStatus(codes.Ok, "not found")
		return nil, domain.ErrTicketNotFound
	}

	query := `
		SELECT id, ticket_id, reservation_id, from_status, to_status, actor, reason, at
		FROM ticket_audit
		WHERE ticket_id = $1
		ORDER BY at, id
	`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		telemetry.Fail(span, err, "query failed")
		return nil, fmt.Errorf("failed to query audit: %w", err)
	}
	defer rows.Close()

	records := []*domain.AuditRecord{}
	for rows.Next() {
		var (
			rec      domain.AuditRecord
			from, to string
		)
		if err := rows.Scan(&rec.ID, &rec.TicketID, &rec.ReservationID, &from, &to, &rec.Actor, &rec.Reason, &rec.At); err != nil {
			telemetry.Fail(span, err, "scan failed")
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.FromStatus = domain.TicketStatus(from)
		rec.ToStatus = domain.TicketStatus(to)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		telemetry.Fail(span, err, "iteration failed")
		return nil, fmt.Errorf("error iterating audit: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return records, nil
}

// Stats aggregates ticket counts and revenue in the database
func (r *PostgresTicketRepository) Stats(ctx context.Context) (*domain.TicketStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.stats")
	defer span.End()

	query := `
		SELECT ticket_type, status, COALESCE(validated_by, ''), COUNT(*), SUM(price)::text
		FROM tickets
		GROUP BY ticket_type, status, COALESCE(validated_by, '')
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		telemetry.Fail(span, err, "query failed")
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	stats := domain.NewTicketStats()
	for rows.Next() {
		var (
			tt, st, by, sum string
			n               int
		)
		if err := rows.Scan(&tt, &st, &by, &n, &sum); err != nil {
			telemetry.Fail(span, err, "scan failed")
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		amount, err := decimal.NewFromString(sum)
		if err != nil {
			telemetry.Fail(span, err, "bad revenue")
			return nil, fmt.Errorf("stats revenue %q: %w", sum, err)
		}
		stats.AddRow(domain.TicketType(tt), domain.TicketStatus(st), amount, by, n)
	}
	if err := rows.Err(); err != nil {
		telemetry.Fail(span, err, "iteration failed")
		return nil, fmt.Errorf("error iterating stats: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return stats, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
