package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comercia/internal/core/apperror"
	"comercia/internal/domain"
	"comercia/internal/domain/catalogs/product"
	"comercia/internal/infrastructure/http/v1/dto"
)

// ProductHandler handles HTTP requests for the Product catalog.
type ProductHandler struct {
	*CatalogHandler[*product.Product, dto.CreateProductRequest, dto.UpdateProductRequest]
	service *product.Service
}

// NewProductHandler creates a new product handler.
func NewProductHandler(base *BaseHandler, service *product.Service) *ProductHandler {
	cfg := CatalogHandlerConfig[*product.Product, dto.CreateProductRequest, dto.UpdateProductRequest]{
		Service:    service.CatalogService,
		EntityName: "product",
		MapCreateDTO: func(req dto.CreateProductRequest) (*product.Product, error) {
			return req.ToEntity(), nil
		},
		MapUpdateDTO: func(req dto.UpdateProductRequest, existing *product.Product) (*product.Product, error) {
			req.ApplyTo(existing)
			return existing, nil
		},
	}

	return &ProductHandler{
		CatalogHandler: NewCatalogHandler(base, cfg),
		service:        service,
	}
}

// Lookup handles GET /catalog/products/lookup?sku=...&barcode=...
// Resolves a product by SKU or barcode, the way scanners address items.
func (h *ProductHandler) Lookup(c *gin.Context) {
	ctx := c.Request.Context()

	if sku := c.Query("sku"); sku != "" {
		p, err := h.service.FindBySKU(ctx, sku)
		if err != nil {
			h.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
		return
	}

	if barcode := c.Query("barcode"); barcode != "" {
		p, err := h.service.FindByBarcode(ctx, barcode)
		if err != nil {
			h.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
		return
	}

	h.Error(c, apperror.NewValidation("sku or barcode query parameter is required"))
}

// LowStock handles GET /catalog/products/low-stock - products at or below
// their minimum threshold.
func (h *ProductHandler) LowStock(c *gin.Context) {
	ctx := c.Request.Context()

	filter := domain.DefaultListFilter()
	filter.Limit = h.ParseIntQuery(c, "limit", 50)
	filter.Offset = h.ParseIntQuery(c, "offset", 0)
	filter.OrderBy = c.DefaultQuery("orderBy", "code")

	result, err := h.service.FindLowStock(ctx, filter)
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
