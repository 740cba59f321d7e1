package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"farewatch/internal/domain"
	"farewatch/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type routeRequest struct {
	UserID           string  `json:"user_id" binding:"required"`
	Origin           string  `json:"origin" binding:"required"`
	Destination      string  `json:"destination" binding:"required"`
	DepartureDate    string  `json:"departure_date" binding:"required"`
	FlexibilityDays  int     `json:"flexibility_days"`
	MaxStops         *int    `json:"max_stops"`
	ThresholdPercent float64 `json:"threshold_percent" binding:"required"`
	PollMinutes      int     `json:"poll_minutes" binding:"required"`
	IsActive         *bool   `json:"is_active"`
}

func (r *routeRequest) toRoute() (*domain.TrackedRoute, error) {
	departure, err := time.Parse("2006-01-02", r.DepartureDate)
	if err != nil {
		return nil, errors.New("departure_date must be formatted YYYY-MM-DD")
	}
	route := &domain.TrackedRoute{
		UserID:           r.UserID,
		Origin:           strings.ToUpper(r.Origin),
		Destination:      strings.ToUpper(r.Destination),
		DepartureDate:    departure,
		FlexibilityDays:  r.FlexibilityDays,
		MaxStops:         r.MaxStops,
		ThresholdPercent: r.ThresholdPercent,
		PollMinutes:      r.PollMinutes,
		IsActive:         true,
	}
	if r.IsActive != nil {
		route.IsActive = *r.IsActive
	}
	return route, nil
}

// CreateRoute godoc
// @Summary      Track a new flight route
// @Description  Registers a route for periodic price polling and alerting
// @Tags         routes
// @Accept       json
// @Produce      json
// @Param        route  body  routeRequest  true  "Route to track"
// @Success      201  {object}  domain.TrackedRoute
// @Failure      400  {object}  map[string]string
// @Router       /api/routes [post]
func (h *Handler) CreateRoute(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.create-route")
	defer span.End()

	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	route, err := req.toRoute()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(
		attribute.String("origin", route.Origin),
		attribute.String("destination", route.Destination),
	)

	if err := h.tracker.CreateRoute(ctx, route); err != nil {
		status := http.StatusInternalServerError
		if isValidationError(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, route)
}

type batchRouteRequest struct {
	Routes []routeRequest `json:"routes" binding:"required,dive"`
}

// BatchCreateRoutes godoc
// @Summary      Track several flight routes at once
// @Description  Creates each route independently and reports per-item success or failure
// @Tags         routes
// @Accept       json
// @Produce      json
// @Param        batch  body  batchRouteRequest  true  "Routes to track"
// @Success      200  {object}  service.BatchCreateResult
// @Failure      400  {object}  map[string]string
// @Router       /api/routes/batch [post]
func (h *Handler) BatchCreateRoutes(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.batch-create-routes")
	defer span.End()

	var req batchRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(attribute.Int("batch_size", len(req.Routes)))

	routes := make([]*domain.TrackedRoute, 0, len(req.Routes))
	for i, item := range req.Routes {
		route, err := item.toRoute()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("item %d: %v", i, err)})
			return
		}
		routes = append(routes, route)
	}

	result, err := h.tracker.BatchCreateRoutes(ctx, routes)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrEmptyBatch) || errors.Is(err, service.ErrBatchTooLarge) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListRoutesGrouped godoc
// @Summary      List a user's tracked routes grouped by city pair
// @Tags         routes
// @Produce      json
// @Param        user_id  query  string  true  "Owner of the routes"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/routes/by-route [get]
func (h *Handler) ListRoutesGrouped(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-routes-grouped")
	defer span.End()

	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}

	groups, err := h.tracker.RoutesGroupedByPair(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"routes": groups})
}

// ListRoutes godoc
// @Summary      List tracked routes for a user
// @Tags         routes
// @Produce      json
// @Param        user_id  query  string  true  "Owner of the routes"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/routes [get]
func (h *Handler) ListRoutes(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-routes")
	defer span.End()

	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}

	routes, err := h.tracker.ListRoutes(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"routes": routes})
}

// GetRoute godoc
// @Summary      Get a tracked route
// @Tags         routes
// @Produce      json
// @Param        id  path  string  true  "Route ID"
// @Success      200  {object}  domain.TrackedRoute
// @Failure      404  {object}  map[string]string
// @Router       /api/routes/{id} [get]
func (h *Handler) GetRoute(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-route")
	defer span.End()

	route, err := h.tracker.GetRoute(ctx, c.Param("id"))
	if err != nil {
		h.routeError(c, err)
		return
	}

	c.JSON(http.StatusOK, route)
}

// UpdateRoute godoc
// @Summary      Update a tracked route
// @Description  Replaces the route's mutable fields; polling state is preserved
// @Tags         routes
// @Accept       json
// @Produce      json
// @Param        id     path  string        true  "Route ID"
// @Param        route  body  routeRequest  true  "New route settings"
// @Success      200  {object}  domain.TrackedRoute
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/routes/{id} [put]
func (h *Handler) UpdateRoute(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.update-route")
	defer span.End()

	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	route, err := req.toRoute()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	route.ID = c.Param("id")

	updated, err := h.tracker.UpdateRoute(ctx, route)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.routeError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// DeleteRoute godoc
// @Summary      Stop tracking a route
// @Description  Deletes the route along with its history, alerts, and recipients
// @Tags         routes
// @Produce      json
// @Param        id  path  string  true  "Route ID"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /api/routes/{id} [delete]
func (h *Handler) DeleteRoute(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.delete-route")
	defer span.End()

	if err := h.tracker.DeleteRoute(ctx, c.Param("id")); err != nil {
		h.routeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) routeError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrRouteNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrInvalidAirportCode) ||
		errors.Is(err, domain.ErrDepartureInPast) ||
		errors.Is(err, domain.ErrInvalidThreshold) ||
		errors.Is(err, domain.ErrInvalidFlexibility) ||
		errors.Is(err, domain.ErrInvalidMaxStops) ||
		errors.Is(err, domain.ErrInvalidPollMinutes)
}
