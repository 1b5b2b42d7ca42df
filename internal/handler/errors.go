package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	"github.com/scriptify-cm/event-qr-platform/internal/dto"
	"github.com/scriptify-cm/event-qr-platform/pkg/logger"
	"github.com/scriptify-cm/event-qr-platform/pkg/middleware"
	"github.com/scriptify-cm/event-qr-platform/pkg/response"
)

// handleError maps service errors onto status codes and the response envelope
func handleError(c *gin.Context, err error) {
	if conflict, ok := domain.AsConflict(err); ok {
		if conflict.Current != nil && conflict.Current.Status == domain.TicketStatusValidated {
			response.ErrorWithData(c, http.StatusConflict, "ALREADY_USED",
				"ticket was already used", dto.FromDomain(conflict.Current))
			return
		}
		response.ErrorWithData(c, http.StatusConflict, "CONFLICT",
			"ticket status changed, reload and retry", dto.FromDomain(conflict.Current))
		return
	}

	switch {
	case errors.Is(err, domain.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		response.Error(c, http.StatusGatewayTimeout, "TIMEOUT", "operation timed out, retry", "")
	case errors.Is(err, domain.ErrTicketNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "ticket not found", "")
	case errors.Is(err, domain.ErrChallengeNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "no active code for this reservation, request a new one", "")
	case errors.Is(err, domain.ErrChallengeExpired):
		response.Error(c, http.StatusGone, "EXPIRED", "code expired, request a new one", "")
	case errors.Is(err, domain.ErrAttemptsExhausted):
		response.Error(c, http.StatusTooManyRequests, "ATTEMPTS_EXHAUSTED", "too many wrong codes, request a new one", "")
	case errors.Is(err, domain.ErrOTPMismatch):
		response.Error(c, http.StatusUnauthorized, "OTP_MISMATCH", "wrong code", "")
	case errors.Is(err, domain.ErrTicketExpired):
		response.Error(c, http.StatusGone, "TICKET_EXPIRED", "reservation window has closed", "")
	case errors.Is(err, domain.ErrOTPRequired):
		response.Error(c, http.StatusConflict, "OTP_REQUIRED", "this ticket type must be verified with a code", "")
	case errors.Is(err, domain.ErrInvalidTransition):
		response.Error(c, http.StatusConflict, "NOT_VALID", err.Error(), "")
	case errors.Is(err, domain.ErrTicketAlreadyExists):
		response.Error(c, http.StatusConflict, "CONFLICT", err.Error(), "")
	case errors.Is(err, domain.ErrMissingActor):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, domain.ErrOperatorMismatch):
		response.Forbidden(c, err.Error())
	case errors.Is(err, domain.ErrOTPDeliveryFailed):
		logger.Get().ErrorContext(c.Request.Context(), "otp delivery failed", zap.Error(err))
		response.Error(c, http.StatusBadGateway, "OTP_DELIVERY_FAILED", "code could not be sent, retry", "")
	case domain.IsValidationError(err):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), "")
	default:
		logger.Get().ErrorContext(c.Request.Context(), "request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		response.InternalError(c)
	}
}

func bindError(c *gin.Context, err error) {
	response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", err.Error())
}

// operatorID resolves the acting operator. A body operator_id must match the authenticated one.
func operatorID(c *gin.Context, claimed string) (string, error) {
	op, ok := middleware.GetOperator(c)
	if !ok || op.ID == "" {
		return "", domain.ErrMissingActor
	}
	if claimed = strings.TrimSpace(claimed); claimed != "" && claimed != op.ID {
		return "", domain.ErrOperatorMismatch
	}
	return op.ID, nil
}
