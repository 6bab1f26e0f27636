package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comercia/internal/domain/approval"
	"comercia/internal/infrastructure/http/v1/dto"
)

// ApprovalHandler handles HTTP requests for the approval queue and rules.
// Decisions are not taken here: approving or rejecting flows through the
// owning document's own lifecycle endpoints so the document state moves with
// the approval.
type ApprovalHandler struct {
	*BaseHandler
	service *approval.Service
}

// NewApprovalHandler creates a new approval handler.
func NewApprovalHandler(base *BaseHandler, service *approval.Service) *ApprovalHandler {
	return &ApprovalHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Pending handles GET /approvals/pending - the open approval queue, oldest
// first.
func (h *ApprovalHandler) Pending(c *gin.Context) {
	ctx := c.Request.Context()

	entityType := c.Query("entityType")
	limit := h.ParseIntQuery(c, "limit", 50)

	items, err := h.service.PendingQueue(ctx, entityType, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// CreateRule handles POST /approvals/rules.
func (h *ApprovalHandler) CreateRule(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateRuleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	rule := req.ToEntity()
	if err := h.service.CreateRule(ctx, rule); err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", rule)
	c.JSON(http.StatusCreated, rule)
}
