package location

import (
	"context"
	"fmt"
	"time"

	"comercia/internal/core/apperror"
	"comercia/internal/core/folio"
	"comercia/internal/core/id"
	"comercia/internal/core/tenant"
	"comercia/internal/core/tx"
	"comercia/internal/core/types"
	"comercia/internal/domain"
	"comercia/pkg/logger"
)

// TransferRecorder writes an optional audit trail for internal transfers.
// Implemented by the stock ledger; the pair of movements nets to zero so the
// aggregate stock is unaffected.
type TransferRecorder interface {
	RecordTransfer(ctx context.Context, productID, fromLocation, toLocation id.ID, qty types.Quantity, reference string) error
}

// Service provides business logic for the Location catalog and the
// per-location stock model.
type Service struct {
	*domain.CatalogService[*Location]
	repo      Repository
	stockRepo StockRepository
	folios    folio.Generator
	txManager tx.Manager // Optional - if nil, obtained from context

	// recorder is optional; when set, MoveStock can leave a ledger trail.
	recorder TransferRecorder
}

// NewService creates a new Location service.
func NewService(
	repo Repository,
	stockRepo StockRepository,
	folios folio.Generator,
) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Location]{
		Repo:       repo,
		TxManager:  nil,
		EntityName: "location",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		stockRepo:      stockRepo,
		folios:         folios,
	}

	base.Hooks().On(domain.BeforeCreate, svc.prepareForCreate)

	return svc
}

// SetTransferRecorder wires the optional ledger audit trail for transfers.
func (s *Service) SetTransferRecorder(r TransferRecorder) {
	s.recorder = r
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

func (s *Service) prepareForCreate(ctx context.Context, loc *Location) error {
	if loc.Code == "" {
		code, err := s.folios.GetNextFolio(ctx, folio.DefaultConfig("UB"), nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		loc.Code = code
	}
	return nil
}

// AddStockInput parameterizes AddStock.
type AddStockInput struct {
	LocationID id.ID
	ProductID  id.ID
	Quantity   types.Quantity
	Lot        *string
}

// AddStock upsert-increments a (location, product, lot) bucket and the
// location's occupied counter. Used by receiving and putaway flows.
func (s *Service) AddStock(ctx context.Context, in AddStockInput) error {
	if !in.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		loc, err := s.repo.GetForUpdate(ctx, in.LocationID)
		if err != nil {
			return err
		}
		if !loc.CanHoldStock() {
			return apperror.NewValidation("location is blocked").
				WithDetail("location_id", in.LocationID.String())
		}
		if !loc.HasCapacityFor(in.Quantity) {
			return apperror.NewValidation("location capacity exceeded").
				WithDetail("location_id", in.LocationID.String()).
				WithDetail("capacity", loc.Capacity.Float64()).
				WithDetail("occupied", loc.Occupied.Float64())
		}

		if err := s.stockRepo.Upsert(ctx, in.LocationID, in.ProductID, in.Lot, in.Quantity); err != nil {
			return fmt.Errorf("add location stock: %w", err)
		}
		return s.repo.AdjustOccupied(ctx, in.LocationID, in.Quantity)
	})
}

// MoveStockInput parameterizes MoveStock.
type MoveStockInput struct {
	ProductID    id.ID
	FromLocation id.ID
	ToLocation   id.ID
	Quantity     types.Quantity
	Lot          *string

	// RecordAudit leaves a zero-net movement pair in the ledger.
	RecordAudit bool
	Reference   string
}

// MoveStock atomically redistributes stock between two locations. It does not
// change the product aggregate: internal transfers are not ledger-level stock
// changes unless the caller asks for an audit trail.
func (s *Service) MoveStock(ctx context.Context, in MoveStockInput) error {
	if !in.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}
	if in.FromLocation == in.ToLocation {
		return apperror.NewValidation("source and destination must differ").
			WithDetail("field", "toLocation")
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		dest, err := s.repo.GetForUpdate(ctx, in.ToLocation)
		if err != nil {
			return err
		}
		if !dest.CanHoldStock() {
			return apperror.NewValidation("destination location is blocked").
				WithDetail("location_id", in.ToLocation.String())
		}
		if !dest.HasCapacityFor(in.Quantity) {
			return apperror.NewValidation("destination capacity exceeded").
				WithDetail("location_id", in.ToLocation.String())
		}

		src, err := s.stockRepo.GetForUpdate(ctx, in.FromLocation, in.ProductID, in.Lot)
		if err != nil {
			return err
		}
		if src.Quantity.LessThan(in.Quantity) {
			return apperror.NewInsufficientLocationStock(
				in.ProductID.String(), in.FromLocation.String(),
				in.Quantity.Float64(), src.Quantity.Float64(),
			)
		}

		if err := s.stockRepo.Upsert(ctx, in.FromLocation, in.ProductID, in.Lot, in.Quantity.Neg()); err != nil {
			return fmt.Errorf("decrement source: %w", err)
		}
		if err := s.stockRepo.Upsert(ctx, in.ToLocation, in.ProductID, in.Lot, in.Quantity); err != nil {
			return fmt.Errorf("increment destination: %w", err)
		}
		if err := s.repo.AdjustOccupied(ctx, in.FromLocation, in.Quantity.Neg()); err != nil {
			return err
		}
		if err := s.repo.AdjustOccupied(ctx, in.ToLocation, in.Quantity); err != nil {
			return err
		}

		if in.RecordAudit && s.recorder != nil {
			if err := s.recorder.RecordTransfer(ctx, in.ProductID, in.FromLocation, in.ToLocation, in.Quantity, in.Reference); err != nil {
				return fmt.Errorf("record transfer audit: %w", err)
			}
		}

		logger.Debug(ctx, "location stock moved",
			"product_id", in.ProductID.String(),
			"from", in.FromLocation.String(),
			"to", in.ToLocation.String(),
			"quantity", in.Quantity.Float64(),
		)
		return nil
	})
}

// StockByLocation returns all stock buckets in a location.
func (s *Service) StockByLocation(ctx context.Context, locationID id.ID) ([]*LocationStock, error) {
	return s.stockRepo.ListByLocation(ctx, locationID)
}

// StockByProduct returns all stock buckets holding a product.
func (s *Service) StockByProduct(ctx context.Context, productID id.ID) ([]*LocationStock, error) {
	return s.stockRepo.ListByProduct(ctx, productID)
}

// FindWithCapacity returns candidate locations able to hold qty more units.
func (s *Service) FindWithCapacity(ctx context.Context, sucursalID id.ID, qty types.Quantity) ([]*Location, error) {
	return s.repo.FindWithCapacity(ctx, sucursalID, qty)
}

// Descendants returns the subtree under a location.
func (s *Service) Descendants(ctx context.Context, rootID id.ID) ([]*Location, error) {
	return s.repo.GetDescendants(ctx, rootID)
}
