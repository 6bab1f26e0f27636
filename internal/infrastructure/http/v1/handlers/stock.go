package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/domain/ledger"
	"comercia/internal/infrastructure/http/v1/dto"
)

// StockHandler handles HTTP requests against the inventory ledger.
type StockHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, service *ledger.Service) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Apply handles POST /stock/movements - post one manual movement.
func (h *StockHandler) Apply(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ApplyMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	movement, err := h.service.Apply(ctx, in)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", movement)
	c.JSON(http.StatusCreated, movement)
}

// History handles GET /stock/movements - filtered movement history.
func (h *StockHandler) History(c *gin.Context) {
	ctx := c.Request.Context()

	var query dto.HistoryQuery
	if !h.BindQuery(c, &query) {
		return
	}

	filter, err := query.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	movements, err := h.service.History(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": movements})
}

// GetMovement handles GET /stock/movements/:id - one ledger row.
func (h *StockHandler) GetMovement(c *gin.Context) {
	ctx := c.Request.Context()

	movementID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	movement, err := h.service.GetByID(ctx, movementID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, movement)
}

// StockAt handles GET /stock/at/:productId?at=... - the aggregate stock at a
// past instant, reconstructed from the ledger.
func (h *StockHandler) StockAt(c *gin.Context) {
	ctx := c.Request.Context()

	productID, err := id.Parse(c.Param("productId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid product id format"))
		return
	}

	at := time.Now()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid timestamp, RFC3339 expected").
				WithDetail("field", "at"))
			return
		}
		at = parsed
	}

	qty, err := h.service.StockAt(ctx, productID, at)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"productId": productID.String(),
		"at":        at,
		"stock":     qty,
	})
}

// Verify handles GET /stock/verify/:productId - signed-sum consistency check
// between the ledger and the denormalized aggregate.
func (h *StockHandler) Verify(c *gin.Context) {
	ctx := c.Request.Context()

	productID, err := id.Parse(c.Param("productId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid product id format"))
		return
	}

	report, err := h.service.VerifyProductBalance(ctx, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// Turnover handles GET /stock/turnover?from=...&to=... - per-product inbound
// and outbound volume for a period.
func (h *StockHandler) Turnover(c *gin.Context) {
	ctx := c.Request.Context()

	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid period start, RFC3339 expected").
			WithDetail("field", "from"))
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid period end, RFC3339 expected").
			WithDetail("field", "to"))
		return
	}

	rows, err := h.service.Turnover(ctx, from, to)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": rows})
}
