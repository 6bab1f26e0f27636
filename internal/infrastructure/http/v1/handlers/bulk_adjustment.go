package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/domain"
	bulkadjustment "comercia/internal/domain/documents/bulk_adjustment"
	"comercia/internal/infrastructure/http/v1/dto"
)

// maxBulkUploadBytes caps the accepted CSV size. Batches run up to 10k rows;
// anything bigger than this is not a plausible adjustment file.
const maxBulkUploadBytes = 8 << 20

// BulkAdjustmentHandler handles HTTP requests for bulk CSV adjustments.
type BulkAdjustmentHandler struct {
	*BaseHandler
	service *bulkadjustment.Service
}

// NewBulkAdjustmentHandler creates a new bulk adjustment handler.
func NewBulkAdjustmentHandler(base *BaseHandler, service *bulkadjustment.Service) *BulkAdjustmentHandler {
	return &BulkAdjustmentHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Upload handles POST /document/bulk-adjustments - multipart CSV upload.
// The batch is parsed and stored in pending state; validation and application
// are separate calls so the user can review rejected rows first.
func (h *BulkAdjustmentHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()

	sucursalID, err := id.Parse(c.PostForm("sucursalId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid sucursal id").
			WithDetail("field", "sucursalId"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.Error(c, apperror.NewValidation("csv file is required").
			WithDetail("field", "file"))
		return
	}
	if fileHeader.Size > maxBulkUploadBytes {
		appErr := apperror.NewValidation("file too large")
		appErr.HTTPStatus = http.StatusRequestEntityTooLarge
		h.Error(c, appErr.WithDetail("max_bytes", maxBulkUploadBytes))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	defer file.Close()

	batch, err := h.service.Ingest(ctx, file, sucursalID, fileHeader.Filename)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", batch)
	c.JSON(http.StatusCreated, batch)
}

// Get handles GET /document/bulk-adjustments/:id.
func (h *BulkAdjustmentHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	adjustmentID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	batch, err := h.service.GetByID(ctx, adjustmentID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, batch)
}

// List handles GET /document/bulk-adjustments.
func (h *BulkAdjustmentHandler) List(c *gin.Context) {
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

// Validar handles POST /document/bulk-adjustments/:id/validar - resolve
// products and locations, marking rejected rows without touching stock.
func (h *BulkAdjustmentHandler) Validar(c *gin.Context) {
	ctx := c.Request.Context()

	adjustmentID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	batch, err := h.service.Validar(ctx, adjustmentID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, batch)
}

// Aplicar handles POST /document/bulk-adjustments/:id/aplicar - apply valid
// rows; bad rows are reported, not fatal.
func (h *BulkAdjustmentHandler) Aplicar(c *gin.Context) {
	ctx := c.Request.Context()

	adjustmentID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	report, err := h.service.Aplicar(ctx, adjustmentID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, report)
}

// Report handles GET /document/bulk-adjustments/:id/report.
func (h *BulkAdjustmentHandler) Report(c *gin.Context) {
	ctx := c.Request.Context()

	adjustmentID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	report, err := h.service.Report(ctx, adjustmentID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// Cancelar handles DELETE /document/bulk-adjustments/:id - discard a batch
// that never touched stock.
func (h *BulkAdjustmentHandler) Cancelar(c *gin.Context) {
	ctx := c.Request.Context()

	adjustmentID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	if err := h.service.Cancelar(ctx, adjustmentID); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}
