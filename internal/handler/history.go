package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetHistory godoc
// @Summary      Get price history for a route
// @Description  Returns recorded price observations, newest first
// @Tags         history
// @Produce      json
// @Param        id     path   string  true   "Route ID"
// @Param        limit  query  int     false  "Number of observations (default 100, max 1000)"  default(100)
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /api/routes/{id}/history [get]
func (h *Handler) GetHistory(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-history")
	defer span.End()

	routeID := c.Param("id")
	span.SetAttributes(attribute.String("route_id", routeID))

	limit := 100
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	observations, err := h.tracker.History(ctx, routeID, limit)
	if err != nil {
		h.routeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"observations": observations})
}

// GetSummary godoc
// @Summary      Get the price rollup for a route
// @Description  Returns the running average, current alert threshold, and latest observation
// @Tags         history
// @Produce      json
// @Param        id  path  string  true  "Route ID"
// @Success      200  {object}  service.Summary
// @Failure      404  {object}  map[string]string
// @Router       /api/routes/{id}/summary [get]
func (h *Handler) GetSummary(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-summary")
	defer span.End()

	summary, err := h.tracker.Summarize(ctx, c.Param("id"))
	if err != nil {
		h.routeError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetCurrentQuote godoc
// @Summary      Get the live best price for a route
// @Description  Fetches the current cheapest qualifying offer, cached briefly
// @Tags         history
// @Produce      json
// @Param        id  path  string  true  "Route ID"
// @Success      200  {object}  domain.PriceQuote
// @Failure      404  {object}  map[string]string
// @Router       /api/routes/{id}/quote [get]
func (h *Handler) GetCurrentQuote(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-current-quote")
	defer span.End()

	quote, err := h.tracker.CurrentQuote(ctx, c.Param("id"))
	if err != nil {
		h.routeError(c, err)
		return
	}
	if quote == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no offers currently available"})
		return
	}

	c.JSON(http.StatusOK, quote)
}
