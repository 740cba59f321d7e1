package handler

import (
	"errors"
	"net/http"

	"farewatch/internal/domain"
	"farewatch/internal/service"

	"github.com/gin-gonic/gin"
)

type recipientRequest struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name"`
}

// AddRecipient godoc
// @Summary      Subscribe an email address to a route's alerts
// @Tags         recipients
// @Accept       json
// @Produce      json
// @Param        id         path  string            true  "Route ID"
// @Param        recipient  body  recipientRequest  true  "Recipient to add"
// @Success      201  {object}  domain.Recipient
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/routes/{id}/recipients [post]
func (h *Handler) AddRecipient(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.add-recipient")
	defer span.End()

	var req recipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recipient := &domain.Recipient{
		RouteID: c.Param("id"),
		Email:   req.Email,
		Name:    req.Name,
	}
	if err := h.tracker.AddRecipient(ctx, recipient); err != nil {
		h.routeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, recipient)
}

// ListRecipients godoc
// @Summary      List a route's alert recipients
// @Tags         recipients
// @Produce      json
// @Param        id  path  string  true  "Route ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /api/routes/{id}/recipients [get]
func (h *Handler) ListRecipients(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-recipients")
	defer span.End()

	recipients, err := h.tracker.Recipients(ctx, c.Param("id"))
	if err != nil {
		h.routeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"recipients": recipients})
}

// GetRecipientSummaries godoc
// @Summary      Summarize every subscriber's routes and price history
// @Description  Groups recipients by email with each route's observations and min/max/current price rollup
// @Tags         recipients
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /api/recipients/summary [get]
func (h *Handler) GetRecipientSummaries(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.recipient-summaries")
	defer span.End()

	summaries, err := h.tracker.RecipientSummaries(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recipients": summaries})
}

// RemoveRecipient godoc
// @Summary      Unsubscribe a recipient from a route's alerts
// @Tags         recipients
// @Produce      json
// @Param        id           path  string  true  "Route ID"
// @Param        recipientId  path  string  true  "Recipient ID"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /api/routes/{id}/recipients/{recipientId} [delete]
func (h *Handler) RemoveRecipient(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.remove-recipient")
	defer span.End()

	err := h.tracker.RemoveRecipient(ctx, c.Param("id"), c.Param("recipientId"))
	if err != nil {
		if errors.Is(err, service.ErrRecipientNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.routeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
