package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/domain"
	purchaseorder "comercia/internal/domain/documents/purchase_order"
	"comercia/internal/infrastructure/http/v1/dto"
	"comercia/internal/infrastructure/storage/postgres"
	"comercia/pkg/logger"
)

// PurchaseOrderHandler handles HTTP requests for purchase orders.
type PurchaseOrderHandler struct {
	*BaseHandler
	service *purchaseorder.Service
	audit   *postgres.AuditService
}

// NewPurchaseOrderHandler creates a new purchase order handler.
func NewPurchaseOrderHandler(base *BaseHandler, service *purchaseorder.Service, audit *postgres.AuditService) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{
		BaseHandler: base,
		service:     service,
		audit:       audit,
	}
}

// Create handles POST /document/purchase-orders.
func (h *PurchaseOrderHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreatePurchaseOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	po, err := req.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Create(ctx, po); err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", po)
	c.JSON(http.StatusCreated, po)
}

// Get handles GET /document/purchase-orders/:id.
func (h *PurchaseOrderHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	orderID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	po, err := h.service.GetByID(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, po)
}

// GetByFolio handles GET /document/purchase-orders/folio/:folio.
func (h *PurchaseOrderHandler) GetByFolio(c *gin.Context) {
	ctx := c.Request.Context()

	po, err := h.service.GetByFolio(ctx, c.Param("folio"))
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, po)
}

// List handles GET /document/purchase-orders.
func (h *PurchaseOrderHandler) List(c *gin.Context) {
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

// Update handles PUT /document/purchase-orders/:id - draft orders only.
func (h *PurchaseOrderHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()

	orderID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.UpdatePurchaseOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	po, err := h.service.GetByID(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := req.ApplyTo(po); err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Update(ctx, po); err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, po)
}

// AddItem handles POST /document/purchase-orders/:id/items.
func (h *PurchaseOrderHandler) AddItem(c *gin.Context) {
	ctx := c.Request.Context()

	orderID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.AddItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	productID, err := id.Parse(req.ProductID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid product id").
			WithDetail("field", "productId"))
		return
	}

	po, err := h.service.AddItem(ctx, orderID, productID, req.Quantity, req.UnitPrice)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, po)
}

// Enviar handles POST /document/purchase-orders/:id/enviar - submit the order,
// passing it through the approval gate when a rule matches.
func (h *PurchaseOrderHandler) Enviar(c *gin.Context) {
	h.lifecycle(c, func(orderID id.ID) (*purchaseorder.PurchaseOrder, error) {
		return h.service.Enviar(c.Request.Context(), orderID)
	})
}

// Aprobar handles POST /document/purchase-orders/:id/aprobar.
func (h *PurchaseOrderHandler) Aprobar(c *gin.Context) {
	var req dto.CommentRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	h.lifecycle(c, func(orderID id.ID) (*purchaseorder.PurchaseOrder, error) {
		return h.service.Aprobar(c.Request.Context(), orderID, req.Comment)
	})
}

// Rechazar handles POST /document/purchase-orders/:id/rechazar.
func (h *PurchaseOrderHandler) Rechazar(c *gin.Context) {
	var req dto.CommentRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	h.lifecycle(c, func(orderID id.ID) (*purchaseorder.PurchaseOrder, error) {
		return h.service.Rechazar(c.Request.Context(), orderID, req.Comment)
	})
}

// Recibir handles POST /document/purchase-orders/:id/recibir - record received
// merchandise and post the purchase movements.
func (h *PurchaseOrderHandler) Recibir(c *gin.Context) {
	ctx := c.Request.Context()

	orderID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.ReceiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	inputs, err := req.ToInputs()
	if err != nil {
		h.Error(c, err)
		return
	}

	po, err := h.service.RecibirMercancia(ctx, orderID, inputs)
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.audit.LogChange(ctx, purchaseorder.EntityType, orderID, postgres.AuditActionApply, map[string]any{
		"lines":  len(inputs),
		"estado": po.Estado,
	}); err != nil {
		logger.FromContext(ctx).Warnw("audit receipt failed",
			"order_id", orderID, "error", err)
	}

	h.OK(c, po)
}

// Cancelar handles POST /document/purchase-orders/:id/cancelar.
func (h *PurchaseOrderHandler) Cancelar(c *gin.Context) {
	var req dto.CommentRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	h.lifecycle(c, func(orderID id.ID) (*purchaseorder.PurchaseOrder, error) {
		return h.service.Cancelar(c.Request.Context(), orderID, req.Comment)
	})
}

// RegistrarPago handles POST /document/purchase-orders/:id/pagos.
func (h *PurchaseOrderHandler) RegistrarPago(c *gin.Context) {
	ctx := c.Request.Context()

	orderID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.PaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	po, err := h.service.RegistrarPago(ctx, orderID, req.Amount)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, po)
}

// Receipts handles GET /document/purchase-orders/:id/receipts.
func (h *PurchaseOrderHandler) Receipts(c *gin.Context) {
	ctx := c.Request.Context()

	orderID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	receipts, err := h.service.Receipts(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": receipts})
}

// lifecycle runs a state transition keyed by the :id parameter and logs
// the state change to the audit trail. The transition itself has already
// committed when auditing runs, so an audit failure is logged but does
// not fail the request.
func (h *PurchaseOrderHandler) lifecycle(c *gin.Context, fn func(orderID id.ID) (*purchaseorder.PurchaseOrder, error)) {
	ctx := c.Request.Context()

	orderID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	before, err := h.service.GetByID(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}

	po, err := fn(orderID)
	if err != nil {
		h.Error(c, err)
		return
	}

	changes := postgres.Diff(
		map[string]any{"estado": before.Estado},
		map[string]any{"estado": po.Estado},
	)
	if err := h.audit.LogChange(ctx, purchaseorder.EntityType, orderID, postgres.AuditActionTransition, changes); err != nil {
		logger.FromContext(ctx).Warnw("audit transition failed",
			"order_id", orderID, "error", err)
	}

	h.OK(c, po)
}

// bindOptionalJSON binds a JSON body when one is present; an empty body is
// accepted so lifecycle actions work without a payload.
func (h *BaseHandler) bindOptionalJSON(c *gin.Context, obj any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return h.BindJSON(c, obj)
}
