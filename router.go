package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scriptify-cm/event-qr-platform/internal/di"
	"github.com/scriptify-cm/event-qr-platform/internal/metrics"
	"github.com/scriptify-cm/event-qr-platform/pkg/config"
	"github.com/scriptify-cm/event-qr-platform/pkg/logger"
	"github.com/scriptify-cm/event-qr-platform/pkg/middleware"
	"github.com/scriptify-cm/event-qr-platform/pkg/telemetry"
)

// setupRouter mounts health checks, metrics and the /api/v1 surface
func setupRouter(cfg *config.Config, container *di.Container, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(metrics.GinMiddleware())

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Idempotent replay of writes needs redis; without it writes pass straight through
	idempotent := func(c *gin.Context) { c.Next() }
	if container.Redis != nil {
		idempotencyConfig := middleware.DefaultIdempotencyConfig(container.Redis)
		if cfg.Gate.IdempotencyTTL > 0 {
			idempotencyConfig.TTL = cfg.Gate.IdempotencyTTL
		}
		idempotent = middleware.IdempotencyMiddleware(idempotencyConfig)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))
	{
		v1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"version": cfg.App.Version,
				"service": cfg.App.Name,
			})
		})

		// Holder-facing routes
		v1.POST("/reservations", idempotent, container.TicketHandler.CreateReservation)
		v1.GET("/catalogue", container.TicketHandler.Catalogue)
		v1.GET("/my-tickets", container.TicketHandler.MyTickets)
		v1.GET("/tickets/:id", container.TicketHandler.GetTicket)
		v1.GET("/tickets/:id/qr", container.TicketHandler.GetQR)

		// Gate staff routes
		staff := v1.Group("")
		staff.Use(middleware.OperatorAuth(middleware.OperatorAuthConfig{
			JWTEnabled: cfg.JWT.Enabled,
			Secret:     cfg.JWT.Secret,
			Issuer:     cfg.JWT.Issuer,
		}))
		{
			staff.POST("/scan", container.GateHandler.Scan)
			staff.POST("/otp/request", idempotent, container.GateHandler.RequestOTP)
			staff.POST("/otp/verify", idempotent, container.GateHandler.VerifyOTP)
			staff.POST("/entry/confirm", idempotent, container.GateHandler.ConfirmEntry)
			staff.POST("/entry/reject", idempotent, container.GateHandler.RejectEntry)

			staff.GET("/tickets", container.TicketHandler.ListTickets)
			staff.GET("/tickets/:id/audit", container.TicketHandler.GetAuditTrail)

			admin := staff.Group("")
			admin.Use(middleware.RequireRole(middleware.RoleAdmin))
			admin.POST("/tickets/:id/cancel", idempotent, container.TicketHandler.CancelTicket)
			admin.GET("/admin/stats", container.AdminHandler.Stats)
		}
	}

	return router
}
