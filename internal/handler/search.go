package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"farewatch/internal/domain"
	"farewatch/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// SearchFlights godoc
// @Summary      Search flight offers for a city pair
// @Description  Lists offers across a date range without creating a tracked route
// @Tags         search
// @Produce      json
// @Param        origin       query  string  true  "Origin airport code"
// @Param        destination  query  string  true  "Destination airport code"
// @Param        from         query  string  true  "Range start (YYYY-MM-DD)"
// @Param        to           query  string  true  "Range end (YYYY-MM-DD)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/flights/search [get]
func (h *Handler) SearchFlights(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.search-flights")
	defer span.End()

	origin := strings.ToUpper(c.Query("origin"))
	destination := strings.ToUpper(c.Query("destination"))
	span.SetAttributes(
		attribute.String("origin", origin),
		attribute.String("destination", destination),
	)

	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be formatted YYYY-MM-DD"})
		return
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be formatted YYYY-MM-DD"})
		return
	}

	results, err := h.tracker.Search(ctx, origin, destination, from, to)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAirportCode) || errors.Is(err, service.ErrInvalidDateRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}
