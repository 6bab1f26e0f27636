package handlers

import (
	"github.com/gin-gonic/gin"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/infrastructure/storage/postgres"
)

// AuditHandler exposes the change history recorded in sys_audit.
type AuditHandler struct {
	*BaseHandler
	audit *postgres.AuditService
}

func NewAuditHandler(base *BaseHandler, audit *postgres.AuditService) *AuditHandler {
	return &AuditHandler{BaseHandler: base, audit: audit}
}

// History returns audit entries for one entity, newest first.
// GET /audit/:entityType/:entityId?limit=50
func (h *AuditHandler) History(c *gin.Context) {
	entityType := c.Param("entityType")

	entityID, err := id.Parse(c.Param("entityId"))
	if err != nil {
		h.HandleError(c, apperror.NewValidation("invalid entity id"))
		return
	}

	limit := h.ParseIntQuery(c, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	entries, err := h.audit.GetEntityHistory(c.Request.Context(), entityType, entityID, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.OK(c, gin.H{"items": entries})
}
