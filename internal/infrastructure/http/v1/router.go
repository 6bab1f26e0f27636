// Package v1 provides HTTP API version 1.
package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"comercia/internal/core/id"
	"comercia/internal/core/tenant"
	"comercia/internal/domain"
	"comercia/internal/domain/approval"
	"comercia/internal/domain/catalogs/location"
	"comercia/internal/domain/catalogs/product"
	bulkadjustment "comercia/internal/domain/documents/bulk_adjustment"
	"comercia/internal/domain/documents/count"
	purchaseorder "comercia/internal/domain/documents/purchase_order"
	"comercia/internal/domain/ledger"
	"comercia/internal/domain/reservation"
	"comercia/internal/infrastructure/folio"
	"comercia/internal/infrastructure/http/v1/handlers"
	"comercia/internal/infrastructure/http/v1/middleware"
	"comercia/internal/infrastructure/storage/postgres"
	"comercia/internal/infrastructure/storage/postgres/approval_repo"
	"comercia/internal/infrastructure/storage/postgres/catalog_repo"
	"comercia/internal/infrastructure/storage/postgres/document_repo"
	"comercia/internal/infrastructure/storage/postgres/ledger_repo"
	"comercia/internal/infrastructure/storage/postgres/reservation_repo"
	"comercia/pkg/logger"
)

// RouterConfig holds router configuration for multi-tenant architecture.
type RouterConfig struct {
	// TenantManager manages database connections for all tenants
	TenantManager *tenant.Manager

	// MetaPool is connection to meta-database (for health checks)
	MetaPool *pgxpool.Pool

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// IdempotencyEnabled enables idempotency middleware
	IdempotencyEnabled bool
}

// NewRouter creates and configures the Gin router for multi-tenant architecture.
// Services are constructed once; the tenant pool and transaction manager are
// obtained from the request context per-request.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth, no tenant required)
	healthHandler := handlers.NewHealthHandler(cfg.MetaPool, cfg.TenantManager)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
		health.GET("/tenants", healthHandler.TenantsStats) // Admin endpoint for tenant stats
	}

	deps, err := buildServices()
	if err != nil {
		return nil, err
	}

	// API v1
	v1 := router.Group("/api/v1")
	{
		// Protected endpoints - TenantDB runs first, then Auth
		protected := v1.Group("")
		protected.Use(middleware.TenantDB(cfg.TenantManager)) // 1. Resolve tenant, get DB pool
		protected.Use(middleware.Auth(cfg.JWTValidator))      // 2. Validate JWT, put user in context

		// Apply idempotency middleware for mutating operations
		if cfg.IdempotencyEnabled {
			protected.Use(idempotencyMiddleware(10 * time.Minute))
		}

		registerCatalogRoutes(protected, deps)
		registerStockRoutes(protected, deps)
		registerReservationRoutes(protected, deps)
		registerDocumentRoutes(protected, deps)
		registerApprovalRoutes(protected, deps)
		registerAuditRoutes(protected, deps)
	}

	return router, nil
}

// services holds the domain services shared by all route groups.
// Repos read the tenant pool from the request context, so a single
// instance of each service safely serves every tenant.
type services struct {
	products        *product.Service
	locations       *location.Service
	ledger          *ledger.Service
	reservations    *reservation.Service
	approvals       *approval.Service
	purchaseOrders  *purchaseorder.Service
	counts          *count.Service
	bulkAdjustments *bulkadjustment.Service
	audit           *postgres.AuditService
}

func buildServices() (*services, error) {
	folios := folio.NewFromContext()

	auditSvc, err := postgres.NewAuditService()
	if err != nil {
		return nil, fmt.Errorf("build audit service: %w", err)
	}

	productRepo := catalog_repo.NewProductRepo()
	locationRepo := catalog_repo.NewLocationRepo()
	locationStockRepo := catalog_repo.NewLocationStockRepo()
	movementRepo := ledger_repo.NewMovementRepo()

	productSvc := product.NewService(productRepo, folios)
	locationSvc := location.NewService(locationRepo, locationStockRepo, folios)
	ledgerSvc := ledger.NewService(movementRepo, productRepo, locationRepo, locationStockRepo)

	// Internal transfers leave a paired movement trail in the ledger.
	locationSvc.SetTransferRecorder(ledgerSvc)

	// Catalog mutations land in sys_audit within the same transaction.
	registerAuditHooks(productSvc.Hooks(), auditSvc, "product", func(p *product.Product) id.ID { return p.ID })
	registerAuditHooks(locationSvc.Hooks(), auditSvc, "location", func(l *location.Location) id.ID { return l.ID })

	reservationSvc := reservation.NewService(
		reservation_repo.NewReservationRepo(),
		productRepo,
		ledgerSvc,
		folios,
	)

	ruleRepo := approval_repo.NewRuleRepo()
	evaluator, err := approval.NewEvaluator(ruleRepo)
	if err != nil {
		return nil, fmt.Errorf("build approval evaluator: %w", err)
	}
	approvalSvc := approval.NewService(evaluator, ruleRepo, approval_repo.NewApprovalRepo())

	poSvc := purchaseorder.NewService(
		document_repo.NewPurchaseOrderRepo(),
		ledgerSvc,
		approvalSvc,
		folios,
	)

	countSvc := count.NewService(
		document_repo.NewCountRepo(),
		document_repo.NewCountScopeResolver(),
		ledgerSvc,
		folios,
	)

	bulkSvc := bulkadjustment.NewService(
		document_repo.NewBulkAdjustmentRepo(),
		productRepo,
		locationRepo,
		ledgerSvc,
		folios,
	)

	return &services{
		products:        productSvc,
		locations:       locationSvc,
		ledger:          ledgerSvc,
		reservations:    reservationSvc,
		approvals:       approvalSvc,
		purchaseOrders:  poSvc,
		counts:          countSvc,
		bulkAdjustments: bulkSvc,
		audit:           auditSvc,
	}, nil
}

// registerAuditHooks records full entity snapshots on catalog mutations.
func registerAuditHooks[T any](hooks *domain.HookRegistry[T], audit *postgres.AuditService, entityType string, idOf func(T) id.ID) {
	record := func(action postgres.AuditAction) domain.Hook[T] {
		return func(ctx context.Context, e T) error {
			snapshot, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal audit snapshot: %w", err)
			}
			return audit.Log(ctx, postgres.AuditEntry{
				EntityType: entityType,
				EntityID:   idOf(e),
				Action:     action,
				Changes:    snapshot,
			})
		}
	}

	hooks.On(domain.AfterCreate, record(postgres.AuditActionCreate))
	hooks.On(domain.AfterUpdate, record(postgres.AuditActionUpdate))
	hooks.On(domain.AfterDelete, record(postgres.AuditActionDelete))
}

// idempotencyMiddleware builds a per-request store bound to the tenant
// TxManager the TenantDB middleware placed in the context.
func idempotencyMiddleware(ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		txm := postgres.MustGetTxManager(c.Request.Context())
		store := postgres.NewIdempotencyStore(txm, ttl)
		middleware.Idempotency(store)(c)
	}
}

// registerCatalogRoutes registers catalog endpoints.
func registerCatalogRoutes(rg *gin.RouterGroup, deps *services) {
	catalogs := rg.Group("/catalog")
	baseHandler := handlers.NewBaseHandler()

	// --- PRODUCTS ---
	{
		handler := handlers.NewProductHandler(baseHandler, deps.products)
		group := catalogs.Group("/products")
		RegisterCatalogRoutes(group, handler, "catalog:product")
		group.GET("/lookup", middleware.RequirePermission("catalog:product:read"), handler.Lookup)
		group.GET("/low-stock", middleware.RequirePermission("catalog:product:read"), handler.LowStock)
	}

	// --- LOCATIONS ---
	{
		handler := handlers.NewLocationHandler(baseHandler, deps.locations)
		group := catalogs.Group("/locations")
		RegisterCatalogRoutes(group, handler, "catalog:location")
		group.POST("/move-stock", middleware.RequirePermission("catalog:location:update"), handler.MoveStock)
		group.GET("/with-capacity", middleware.RequirePermission("catalog:location:read"), handler.FindWithCapacity)
		group.GET("/stock-by-product/:productId", middleware.RequirePermission("catalog:location:read"), handler.StockByProduct)
		group.GET("/:id/stock", middleware.RequirePermission("catalog:location:read"), handler.Stock)
		group.GET("/:id/descendants", middleware.RequirePermission("catalog:location:read"), handler.Descendants)
	}
}

// registerStockRoutes registers ledger endpoints.
func registerStockRoutes(rg *gin.RouterGroup, deps *services) {
	stock := rg.Group("/stock")
	handler := handlers.NewStockHandler(handlers.NewBaseHandler(), deps.ledger)

	stock.POST("/movements", middleware.RequirePermission("stock:movement:create"), handler.Apply)
	stock.GET("/movements", middleware.RequirePermission("stock:movement:read"), handler.History)
	stock.GET("/movements/:id", middleware.RequirePermission("stock:movement:read"), handler.GetMovement)
	stock.GET("/at/:productId", middleware.RequirePermission("stock:movement:read"), handler.StockAt)
	stock.GET("/verify/:productId", middleware.RequirePermission("stock:movement:read"), handler.Verify)
	stock.GET("/turnover", middleware.RequirePermission("stock:movement:read"), handler.Turnover)
}

// registerReservationRoutes registers reservation engine endpoints.
func registerReservationRoutes(rg *gin.RouterGroup, deps *services) {
	reservations := rg.Group("/reservations")
	handler := handlers.NewReservationHandler(handlers.NewBaseHandler(), deps.reservations)

	reservations.POST("", middleware.RequirePermission("reservation:create"), handler.Reserve)
	reservations.GET("", middleware.RequirePermission("reservation:read"), handler.ListByProduct)
	reservations.GET("/availability/:productId", middleware.RequirePermission("reservation:read"), handler.Availability)
	reservations.GET("/:id", middleware.RequirePermission("reservation:read"), handler.Get)
	reservations.POST("/:id/confirm", middleware.RequirePermission("reservation:update"), handler.Confirm)
	reservations.POST("/:id/cancel", middleware.RequirePermission("reservation:update"), handler.Cancel)
}

// registerDocumentRoutes registers document endpoints.
func registerDocumentRoutes(rg *gin.RouterGroup, deps *services) {
	docsGroup := rg.Group("/document")
	baseHandler := handlers.NewBaseHandler()

	// --- PURCHASE ORDERS ---
	{
		handler := handlers.NewPurchaseOrderHandler(baseHandler, deps.purchaseOrders, deps.audit)
		group := docsGroup.Group("/purchase-orders")
		perm := "document:purchase_order"

		group.GET("", middleware.RequirePermission(perm+":read"), handler.List)
		group.POST("", middleware.RequirePermission(perm+":create"), handler.Create)
		group.GET("/folio/:folio", middleware.RequirePermission(perm+":read"), handler.GetByFolio)
		group.GET("/:id", middleware.RequirePermission(perm+":read"), handler.Get)
		group.PUT("/:id", middleware.RequirePermission(perm+":update"), handler.Update)
		group.POST("/:id/items", middleware.RequirePermission(perm+":update"), handler.AddItem)
		group.POST("/:id/enviar", middleware.RequirePermission(perm+":update"), handler.Enviar)
		group.POST("/:id/aprobar", middleware.RequirePermission(perm+":approve"), handler.Aprobar)
		group.POST("/:id/rechazar", middleware.RequirePermission(perm+":approve"), handler.Rechazar)
		group.POST("/:id/recibir", middleware.RequirePermission(perm+":receive"), handler.Recibir)
		group.POST("/:id/cancelar", middleware.RequirePermission(perm+":update"), handler.Cancelar)
		group.POST("/:id/pagos", middleware.RequirePermission(perm+":update"), handler.RegistrarPago)
		group.GET("/:id/receipts", middleware.RequirePermission(perm+":read"), handler.Receipts)
	}

	// --- PHYSICAL COUNTS ---
	{
		handler := handlers.NewCountHandler(baseHandler, deps.counts)
		group := docsGroup.Group("/counts")
		perm := "document:count"

		group.GET("", middleware.RequirePermission(perm+":read"), handler.List)
		group.POST("", middleware.RequirePermission(perm+":create"), handler.Create)
		group.GET("/:id", middleware.RequirePermission(perm+":read"), handler.Get)
		group.POST("/:id/iniciar", middleware.RequirePermission(perm+":update"), handler.Iniciar)
		group.POST("/:id/registrar", middleware.RequirePermission(perm+":update"), handler.Registrar)
		group.POST("/:id/completar", middleware.RequirePermission(perm+":update"), handler.Completar)
		group.POST("/:id/aplicar", middleware.RequirePermission(perm+":apply"), handler.Aplicar)
		group.POST("/:id/cancelar", middleware.RequirePermission(perm+":update"), handler.Cancelar)
	}

	// --- BULK ADJUSTMENTS ---
	{
		handler := handlers.NewBulkAdjustmentHandler(baseHandler, deps.bulkAdjustments)
		group := docsGroup.Group("/bulk-adjustments")
		perm := "document:bulk_adjustment"

		group.GET("", middleware.RequirePermission(perm+":read"), handler.List)
		group.POST("", middleware.RequirePermission(perm+":create"), handler.Upload)
		group.GET("/:id", middleware.RequirePermission(perm+":read"), handler.Get)
		group.POST("/:id/validar", middleware.RequirePermission(perm+":update"), handler.Validar)
		group.POST("/:id/aplicar", middleware.RequirePermission(perm+":apply"), handler.Aplicar)
		group.GET("/:id/report", middleware.RequirePermission(perm+":read"), handler.Report)
		group.DELETE("/:id", middleware.RequirePermission(perm+":delete"), handler.Cancelar)
	}
}

// registerApprovalRoutes registers the approval queue and rule management.
func registerApprovalRoutes(rg *gin.RouterGroup, deps *services) {
	approvals := rg.Group("/approvals")
	handler := handlers.NewApprovalHandler(handlers.NewBaseHandler(), deps.approvals)

	approvals.GET("/pending", middleware.RequirePermission("approval:read"), handler.Pending)
	approvals.POST("/rules", middleware.RequirePermission("approval:rule:create"), handler.CreateRule)
}

// registerAuditRoutes registers the audit history endpoint.
func registerAuditRoutes(rg *gin.RouterGroup, deps *services) {
	handler := handlers.NewAuditHandler(handlers.NewBaseHandler(), deps.audit)
	rg.GET("/audit/:entityType/:entityId", middleware.RequirePermission("audit:read"), handler.History)
}
