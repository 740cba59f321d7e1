package handler

import (
	"farewatch/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	tracer  trace.Tracer
	tracker *service.TrackerService
}

func New(tracer trace.Tracer, tracker *service.TrackerService) *Handler {
	return &Handler{
		tracer:  tracer,
		tracker: tracker,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	r.POST("/api/routes", h.CreateRoute)
	r.POST("/api/routes/batch", h.BatchCreateRoutes)
	r.GET("/api/routes", h.ListRoutes)
	r.GET("/api/routes/by-route", h.ListRoutesGrouped)
	r.GET("/api/routes/:id", h.GetRoute)
	r.PUT("/api/routes/:id", h.UpdateRoute)
	r.DELETE("/api/routes/:id", h.DeleteRoute)

	r.GET("/api/routes/:id/history", h.GetHistory)
	r.GET("/api/routes/:id/summary", h.GetSummary)
	r.GET("/api/routes/:id/quote", h.GetCurrentQuote)
	r.GET("/api/routes/:id/alerts", h.GetAlerts)

	r.POST("/api/routes/:id/recipients", h.AddRecipient)
	r.GET("/api/routes/:id/recipients", h.ListRecipients)
	r.DELETE("/api/routes/:id/recipients/:recipientId", h.RemoveRecipient)

	r.GET("/api/recipients/summary", h.GetRecipientSummaries)

	r.GET("/api/alerts/unprocessed", h.ListUnprocessedAlerts)
	r.POST("/api/alerts/:id/processed", h.MarkAlertProcessed)

	r.GET("/api/flights/search", h.SearchFlights)
}
