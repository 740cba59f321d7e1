package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetAlerts godoc
// @Summary      List alerts fired for a route
// @Tags         alerts
// @Produce      json
// @Param        id  path  string  true  "Route ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /api/routes/{id}/alerts [get]
func (h *Handler) GetAlerts(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-alerts")
	defer span.End()

	alerts, err := h.tracker.Alerts(ctx, c.Param("id"))
	if err != nil {
		h.routeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// ListUnprocessedAlerts godoc
// @Summary      List alerts awaiting notification dispatch
// @Tags         alerts
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/alerts/unprocessed [get]
func (h *Handler) ListUnprocessedAlerts(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-unprocessed-alerts")
	defer span.End()

	alerts, err := h.tracker.UnprocessedAlerts(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// MarkAlertProcessed godoc
// @Summary      Mark an alert as dispatched
// @Tags         alerts
// @Produce      json
// @Param        id  path  string  true  "Alert ID"
// @Success      204
// @Failure      500  {object}  map[string]string
// @Router       /api/alerts/{id}/processed [post]
func (h *Handler) MarkAlertProcessed(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.mark-alert-processed")
	defer span.End()

	if err := h.tracker.MarkAlertProcessed(ctx, c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}
