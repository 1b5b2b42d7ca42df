package handler

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/scriptify-cm/event-qr-platform/internal/dto"
	"github.com/scriptify-cm/event-qr-platform/internal/service"
	"github.com/scriptify-cm/event-qr-platform/pkg/response"
	"github.com/scriptify-cm/event-qr-platform/pkg/telemetry"
)

// TicketHandler serves reservations and ticket lookups
type TicketHandler struct {
	ticketService     service.TicketService
	validationService service.ValidationService
}

// NewTicketHandler creates a new ticket handler
func NewTicketHandler(ticketService service.TicketService, validationService service.ValidationService) *TicketHandler {
	return &TicketHandler{
		ticketService:     ticketService,
		validationService: validationService,
	}
}

// CreateReservation handles POST /reservations
func (h *TicketHandler) CreateReservation(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.ticket.create_reservation")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	ticket, payload, err := h.ticketService.Issue(ctx, &service.IssueRequest{
		OwnerName:  req.OwnerName,
		OwnerPhone: req.OwnerPhone,
		TicketType: req.TicketType,
	})
	if err != nil {
		telemetry.Fail(span, err, "issue failed")
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("ticket_id", ticket.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.CreateReservationResponse{
		ReservationID: ticket.ReservationID,
		Ticket:        dto.FromDomain(ticket),
		QRPayload:     payload,
	})
}

// ListTickets handles GET /tickets?q=&status=&type=&phone=
func (h *TicketHandler) ListTickets(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.ticket.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var q dto.ListTicketsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		span.SetStatus(codes.Error, "invalid query")
		bindError(c, err)
		return
	}

	filter := q.Filter()
	tickets, total, err := h.ticketService.List(ctx, filter)
	if err != nil {
		telemetry.Fail(span, err, "list failed")
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("total", total))
	span.SetStatus(codes.Ok, "")
	response.SuccessWithMeta(c, dto.FromDomainList(tickets), response.Meta{
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// MyTickets handles GET /my-tickets, the holder's view of their own reservations
func (h *TicketHandler) MyTickets(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.ticket.my_tickets")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var q dto.MyTicketsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		span.SetStatus(codes.Error, "invalid query")
		bindError(c, err)
		return
	}

	filter := q.Filter()
	tickets, total, err := h.ticketService.List(ctx, filter)
	if err != nil {
		telemetry.Fail(span, err, "list failed")
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.SuccessWithMeta(c, dto.FromDomainList(tickets), response.Meta{
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// GetTicket handles GET /tickets/:id
func (h *TicketHandler) GetTicket(c *gin.Context) {
	ticket, err := h.ticketService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.FromDomain(ticket))
}

// GetQR handles GET /tickets/:id/qr
func (h *TicketHandler) GetQR(c *gin.Context) {
	id := c.Param("id")
	payload, err := h.ticketService.Payload(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.QRResponse{TicketID: id, QRPayload: payload})
}

// GetAuditTrail handles GET /tickets/:id/audit
func (h *TicketHandler) GetAuditTrail(c *gin.Context) {
	records, err := h.ticketService.AuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, records)
}

// CancelTicket handles POST /tickets/:id/cancel
func (h *TicketHandler) CancelTicket(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.ticket.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CancelTicketRequest
	// reason is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			span.SetStatus(codes.Error, "invalid request")
			bindError(c, err)
			return
		}
	}
	actor, err := operatorID(c, "")
	if err != nil {
		telemetry.Fail(span, err, "no operator")
		handleError(c, err)
		return
	}

	id := c.Param("id")
	span.SetAttributes(attribute.String("ticket_id", id))

	ticket, err := h.validationService.Cancel(ctx, id, actor, req.Reason)
	if err != nil {
		telemetry.Fail(span, err, "cancel failed")
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromDomain(ticket))
}

// Catalogue handles GET /catalogue
func (h *TicketHandler) Catalogue(c *gin.Context) {
	entries := h.ticketService.Catalogue()
	out := make([]dto.CatalogueEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = dto.CatalogueEntryResponse{
			Type:        string(e.Type),
			Price:       e.Price.StringFixed(2),
			Currency:    e.Currency,
			OTPRequired: h.validationService.RequiresOTP(e.Type),
		}
	}
	response.Success(c, out)
}
