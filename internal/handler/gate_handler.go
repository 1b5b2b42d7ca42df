package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	"github.com/scriptify-cm/event-qr-platform/internal/dto"
	"github.com/scriptify-cm/event-qr-platform/internal/service"
	"github.com/scriptify-cm/event-qr-platform/pkg/response"
	"github.com/scriptify-cm/event-qr-platform/pkg/telemetry"
)

// GateHandler serves the operator endpoints used at the venue entrance
type GateHandler struct {
	scanService       service.ScanService
	validationService service.ValidationService
}

// NewGateHandler creates a new gate handler
func NewGateHandler(scanService service.ScanService, validationService service.ValidationService) *GateHandler {
	return &GateHandler{
		scanService:       scanService,
		validationService: validationService,
	}
}

// Scan handles POST /scan. It never changes ticket state beyond lazy expiry.
func (h *GateHandler) Scan(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.gate.scan")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}
	operator, err := operatorID(c, "")
	if err != nil {
		telemetry.Fail(span, err, "no operator")
		handleError(c, err)
		return
	}

	outcome, err := h.scanService.HandleScan(ctx, req.Payload, operator)
	if err != nil {
		telemetry.Fail(span, err, "scan failed")
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("result", string(outcome.Result)))
	if outcome.Result == domain.ScanInvalid {
		response.ErrorWithData(c, http.StatusBadRequest, "INVALID_TICKET", "ticket is not valid", dto.FromScanOutcome(outcome))
		return
	}
	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromScanOutcome(outcome))
}

// RequestOTP handles POST /otp/request
func (h *GateHandler) RequestOTP(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.gate.request_otp")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.RequestOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}
	actor, err := operatorID(c, "")
	if err != nil {
		telemetry.Fail(span, err, "no operator")
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("reservation_id", req.ReservationID))

	challenge, err := h.validationService.RequestOTP(ctx, req.ReservationID, actor)
	if err != nil {
		telemetry.Fail(span, err, "request otp failed")
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.RequestOTPResponse{
		ReservationID:     challenge.ReservationID,
		ExpiresAt:         challenge.ExpiresAt,
		AttemptsRemaining: challenge.AttemptsRemaining,
	})
}

// VerifyOTP handles POST /otp/verify
func (h *GateHandler) VerifyOTP(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.gate.verify_otp")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}
	operator, err := operatorID(c, req.OperatorID)
	if err != nil {
		telemetry.Fail(span, err, "no operator")
		handleError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("reservation_id", req.ReservationID),
		attribute.String("operator_id", operator),
	)

	ticket, result, err := h.validationService.VerifyOTP(ctx, req.ReservationID, req.Code, operator)
	body := dto.VerifyOTPResponse{
		Outcome:           string(result.Outcome),
		AttemptsRemaining: result.AttemptsRemaining,
	}
	if err != nil {
		telemetry.Fail(span, err, "verify otp failed")
		if errors.Is(err, domain.ErrOTPMismatch) {
			response.ErrorWithData(c, http.StatusUnauthorized, "OTP_MISMATCH", "wrong code", body)
			return
		}
		handleError(c, err)
		return
	}

	body.Ticket = dto.FromDomain(ticket)
	span.SetStatus(codes.Ok, "")
	response.Success(c, body)
}

// ConfirmEntry handles POST /entry/confirm
func (h *GateHandler) ConfirmEntry(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.gate.confirm_entry")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.ConfirmEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}
	operator, err := operatorID(c, req.OperatorID)
	if err != nil {
		telemetry.Fail(span, err, "no operator")
		handleError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("ticket_id", req.TicketID),
		attribute.String("operator_id", operator),
	)

	ticket, err := h.validationService.ConfirmEntry(ctx, req.TicketID, operator)
	if err != nil {
		telemetry.Fail(span, err, "confirm failed")
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromDomain(ticket))
}

// RejectEntry handles POST /entry/reject
func (h *GateHandler) RejectEntry(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.gate.reject_entry")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.RejectEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}
	operator, err := operatorID(c, req.OperatorID)
	if err != nil {
		telemetry.Fail(span, err, "no operator")
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("ticket_id", req.TicketID))

	ticket, err := h.validationService.Reject(ctx, req.TicketID, operator, req.Reason)
	if err != nil {
		telemetry.Fail(span, err, "reject failed")
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromDomain(ticket))
}
