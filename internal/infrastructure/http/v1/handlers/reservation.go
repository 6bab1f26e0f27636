package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/domain/reservation"
	"comercia/internal/infrastructure/http/v1/dto"
)

// ReservationHandler handles HTTP requests for stock reservations.
type ReservationHandler struct {
	*BaseHandler
	service *reservation.Service
}

// NewReservationHandler creates a new reservation handler.
func NewReservationHandler(base *BaseHandler, service *reservation.Service) *ReservationHandler {
	return &ReservationHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Reserve handles POST /reservations - place a time-boxed hold.
func (h *ReservationHandler) Reserve(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ReserveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	r, err := h.service.Reserve(ctx, in)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", r)
	c.JSON(http.StatusCreated, r)
}

// Get handles GET /reservations/:id.
func (h *ReservationHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	reservationID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	r, err := h.service.GetByID(ctx, reservationID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// Confirm handles POST /reservations/:id/confirm - consume the hold into a
// sale movement.
func (h *ReservationHandler) Confirm(c *gin.Context) {
	ctx := c.Request.Context()

	reservationID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	r, err := h.service.Confirm(ctx, reservationID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, r)
}

// Cancel handles POST /reservations/:id/cancel - release the hold.
func (h *ReservationHandler) Cancel(c *gin.Context) {
	ctx := c.Request.Context()

	reservationID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	r, err := h.service.Cancel(ctx, reservationID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, r)
}

// ListByProduct handles GET /reservations?productId=... - holds on a product.
func (h *ReservationHandler) ListByProduct(c *gin.Context) {
	ctx := c.Request.Context()

	productID, err := id.Parse(c.Query("productId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid product id").
			WithDetail("field", "productId"))
		return
	}

	items, err := h.service.ListByProduct(ctx, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Availability handles GET /reservations/availability/:productId - live
// available-to-promise for a product.
func (h *ReservationHandler) Availability(c *gin.Context) {
	ctx := c.Request.Context()

	productID, err := id.Parse(c.Param("productId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid product id format"))
		return
	}

	availability, err := h.service.Availability(ctx, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, availability)
}
