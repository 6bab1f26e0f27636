package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/domain"
	"comercia/internal/domain/documents/count"
	"comercia/internal/infrastructure/http/v1/dto"
)

// CountHandler handles HTTP requests for physical count documents.
type CountHandler struct {
	*BaseHandler
	service *count.Service
}

// NewCountHandler creates a new count handler.
func NewCountHandler(base *BaseHandler, service *count.Service) *CountHandler {
	return &CountHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Create handles POST /document/counts.
func (h *CountHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateCountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := req.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Create(ctx, doc); err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", doc)
	c.JSON(http.StatusCreated, doc)
}

// Get handles GET /document/counts/:id.
func (h *CountHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	countID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	doc, err := h.service.GetByID(ctx, countID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// List handles GET /document/counts.
func (h *CountHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	filter := domain.DefaultListFilter()
	filter.Search = c.Query("search")
	filter.Limit = h.ParseIntQuery(c, "limit", 50)
	filter.Offset = h.ParseIntQuery(c, "offset", 0)
	filter.OrderBy = c.DefaultQuery("orderBy", "fecha DESC")

	result, err := h.service.List(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Items:      result.Items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Iniciar handles POST /document/counts/:id/iniciar - materialize the scope
// and freeze the system snapshot.
func (h *CountHandler) Iniciar(c *gin.Context) {
	h.lifecycle(c, func(countID id.ID) (*count.Count, error) {
		return h.service.Iniciar(c.Request.Context(), countID)
	})
}

// Registrar handles POST /document/counts/:id/registrar - record one counted
// line.
func (h *CountHandler) Registrar(c *gin.Context) {
	ctx := c.Request.Context()

	countID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.RegisterCountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := h.service.RegistrarConteo(ctx, countID, req.LineNo, req.Quantity)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, doc)
}

// Completar handles POST /document/counts/:id/completar.
func (h *CountHandler) Completar(c *gin.Context) {
	h.lifecycle(c, func(countID id.ID) (*count.Count, error) {
		return h.service.Completar(c.Request.Context(), countID)
	})
}

// Aplicar handles POST /document/counts/:id/aplicar - settle differences
// through adjustment movements.
func (h *CountHandler) Aplicar(c *gin.Context) {
	h.lifecycle(c, func(countID id.ID) (*count.Count, error) {
		return h.service.AplicarAjustes(c.Request.Context(), countID)
	})
}

// Cancelar handles POST /document/counts/:id/cancelar.
func (h *CountHandler) Cancelar(c *gin.Context) {
	var req dto.CommentRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	h.lifecycle(c, func(countID id.ID) (*count.Count, error) {
		return h.service.Cancelar(c.Request.Context(), countID, req.Comment)
	})
}

func (h *CountHandler) lifecycle(c *gin.Context, fn func(countID id.ID) (*count.Count, error)) {
	countID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	doc, err := fn(countID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, doc)
}
