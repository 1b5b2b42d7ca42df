package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/scriptify-cm/event-qr-platform/internal/dto"
	"github.com/scriptify-cm/event-qr-platform/internal/service"
	"github.com/scriptify-cm/event-qr-platform/pkg/response"
)

// AdminHandler serves the admin dashboard
type AdminHandler struct {
	ticketService service.TicketService
	scans         *service.ScanTally
	currency      string
}

// NewAdminHandler creates a new admin handler; scans may be nil
func NewAdminHandler(ticketService service.TicketService, scans *service.ScanTally, currency string) *AdminHandler {
	return &AdminHandler{
		ticketService: ticketService,
		scans:         scans,
		currency:      currency,
	}
}

// Stats handles GET /admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.ticketService.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	out := dto.FromStats(stats, h.currency)
	out.ScansByOperator = h.scans.Snapshot()
	response.Success(c, out)
}
