package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/core/types"
	"comercia/internal/domain/catalogs/location"
	"comercia/internal/infrastructure/http/v1/dto"
)

// LocationHandler handles HTTP requests for the Location catalog and
// per-location stock operations.
type LocationHandler struct {
	*CatalogHandler[*location.Location, dto.CreateLocationRequest, dto.UpdateLocationRequest]
	service *location.Service
}

// NewLocationHandler creates a new location handler.
func NewLocationHandler(base *BaseHandler, service *location.Service) *LocationHandler {
	cfg := CatalogHandlerConfig[*location.Location, dto.CreateLocationRequest, dto.UpdateLocationRequest]{
		Service:    service.CatalogService,
		EntityName: "location",
		MapCreateDTO: func(req dto.CreateLocationRequest) (*location.Location, error) {
			return req.ToEntity()
		},
		MapUpdateDTO: func(req dto.UpdateLocationRequest, existing *location.Location) (*location.Location, error) {
			req.ApplyTo(existing)
			return existing, nil
		},
	}

	return &LocationHandler{
		CatalogHandler: NewCatalogHandler(base, cfg),
		service:        service,
	}
}

// MoveStock handles POST /catalog/locations/move-stock - atomic transfer
// between two locations.
func (h *LocationHandler) MoveStock(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.MoveStockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.MoveStock(ctx, in); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "stock moved")
}

// Stock handles GET /catalog/locations/:id/stock - buckets held at the location.
func (h *LocationHandler) Stock(c *gin.Context) {
	ctx := c.Request.Context()

	locationID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	buckets, err := h.service.StockByLocation(ctx, locationID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": buckets})
}

// Descendants handles GET /catalog/locations/:id/descendants - the subtree
// under a location, breadth-first.
func (h *LocationHandler) Descendants(c *gin.Context) {
	ctx := c.Request.Context()

	locationID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	items, err := h.service.Descendants(ctx, locationID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// StockByProduct handles GET /catalog/locations/stock-by-product/:productId -
// where a product is physically held.
func (h *LocationHandler) StockByProduct(c *gin.Context) {
	ctx := c.Request.Context()

	productID, err := id.Parse(c.Param("productId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid product id format"))
		return
	}

	buckets, err := h.service.StockByProduct(ctx, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": buckets})
}

// FindWithCapacity handles GET /catalog/locations/with-capacity - locations
// in a sucursal that can absorb a given quantity, picking faces first.
func (h *LocationHandler) FindWithCapacity(c *gin.Context) {
	ctx := c.Request.Context()

	sucursalID, err := id.Parse(c.Query("sucursalId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid sucursal id").
			WithDetail("field", "sucursalId"))
		return
	}

	var qty types.Quantity
	if raw := c.Query("quantity"); raw != "" {
		if err := qty.UnmarshalJSON([]byte(raw)); err != nil {
			h.Error(c, apperror.NewValidation("invalid quantity").
				WithDetail("field", "quantity"))
			return
		}
	}

	items, err := h.service.FindWithCapacity(ctx, sucursalID, qty)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}
