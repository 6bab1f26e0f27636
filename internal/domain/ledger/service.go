package ledger

import (
	"context"
	"fmt"
	"time"

	"comercia/internal/core/apperror"
	appctx "comercia/internal/core/context"
	"comercia/internal/core/id"
	"comercia/internal/core/tenant"
	"comercia/internal/core/tx"
	"comercia/internal/core/types"
	"comercia/internal/domain/catalogs/location"
	"comercia/internal/domain/catalogs/product"
	"comercia/pkg/logger"
)

// ProductStore is the slice of the product repository the ledger needs:
// the row lock it serializes on and the aggregate columns it owns.
type ProductStore interface {
	GetForUpdate(ctx context.Context, id id.ID) (*product.Product, error)

	// UpdateStock writes stock_actual and, when cost is non-nil,
	// costo_unitario. Only the ledger calls this.
	UpdateStock(ctx context.Context, id id.ID, stock types.Quantity, cost *types.Money) error
}

// Service is the stock mutation primitive. All aggregate stock changes in
// the system go through Apply; nothing else writes mov_inventario or
// cat_productos.stock_actual.
type Service struct {
	movements     Repository
	products      ProductStore
	locations     location.Repository
	locationStock location.StockRepository
	txManager     tx.Manager // Optional - if nil, obtained from context
}

// NewService creates the ledger service.
func NewService(
	movements Repository,
	products ProductStore,
	locations location.Repository,
	locationStock location.StockRepository,
) *Service {
	return &Service{
		movements:     movements,
		products:      products,
		locations:     locations,
		locationStock: locationStock,
	}
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

type applyOptions struct {
	// skipLocationBucket records the location on the row without moving
	// the bucket. Used for audit pairs when the buckets were already
	// moved by the caller.
	skipLocationBucket bool

	// updateCost overwrites the product's costo_unitario.
	updateCost *types.Money
}

// Apply executes one stock mutation: lock the product row, compute the new
// aggregate, append one movement row, and update the aggregate and the
// location bucket in the same transaction. Callers already inside a
// transaction are joined, so a document posting many lines holds the locks
// until its own commit.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (*Movement, error) {
	return s.apply(ctx, in, applyOptions{})
}

// ApplyWithCost is Apply plus a rolling update of the product's unit cost.
// Receiving uses it so costo_unitario tracks the latest purchase.
func (s *Service) ApplyWithCost(ctx context.Context, in ApplyInput, newCost types.Money) (*Movement, error) {
	return s.apply(ctx, in, applyOptions{updateCost: &newCost})
}

func (s *Service) apply(ctx context.Context, in ApplyInput, opts applyOptions) (*Movement, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var movement *Movement
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.products.GetForUpdate(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if !p.CanMoveStock() {
			return apperror.NewValidation("product does not allow stock movements").
				WithDetail("product_id", p.ID).
				WithDetail("sku", p.SKU)
		}

		stockBefore := p.StockActual
		signed := in.Quantity
		if in.Type.Sign() < 0 {
			signed = in.Quantity.Neg()
		}
		stockAfter := stockBefore.Add(signed)

		if stockAfter.IsNegative() {
			return apperror.NewInsufficientStock(
				p.ID.String(), in.Quantity.Float64(), stockBefore.Float64(),
			)
		}
		if stockBefore.IsNegative() && !(in.AllowNegativeCorrection && in.Type.AllowsForcedCorrection()) {
			return apperror.NewBusinessRule(
				"NEGATIVE_STOCK",
				"aggregate stock is negative, only a count adjustment may correct it").
				WithDetail("product_id", p.ID).
				WithDetail("stock_actual", stockBefore.Float64())
		}

		unitCost := in.UnitCost
		if unitCost.IsZero() {
			unitCost = p.CostoUnitario
		}

		movement = &Movement{
			ID:          id.New(),
			ProductID:   in.ProductID,
			Type:        in.Type,
			Quantity:    in.Quantity,
			UnitCost:    unitCost,
			TotalValue:  unitCost.Mul(in.Quantity.Decimal()),
			StockBefore: stockBefore,
			StockAfter:  stockAfter,
			LocationID:  in.LocationID,
			Lot:         in.Lot,
			SourceType:  in.SourceType,
			SourceID:    in.SourceID,
			SourceFolio: in.SourceFolio,
			Comment:     in.Comment,
			CreatedAt:   time.Now().UTC(),
			CreatedBy:   appctx.GetUserID(ctx),
		}
		if err := s.movements.Insert(ctx, movement); err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}

		if err := s.products.UpdateStock(ctx, p.ID, stockAfter, opts.updateCost); err != nil {
			return fmt.Errorf("update aggregate stock: %w", err)
		}

		if in.LocationID != nil && !opts.skipLocationBucket {
			if err := s.applyToLocation(ctx, in, signed); err != nil {
				return err
			}
		}

		logger.Debug(ctx, "movement applied",
			"movement_id", movement.ID,
			"product_id", in.ProductID,
			"type", string(in.Type),
			"quantity", in.Quantity.Float64(),
			"stock_after", stockAfter.Float64(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// applyToLocation moves the per-location bucket alongside the aggregate.
func (s *Service) applyToLocation(ctx context.Context, in ApplyInput, signed types.Quantity) error {
	locID := *in.LocationID

	loc, err := s.locations.GetForUpdate(ctx, locID)
	if err != nil {
		return err
	}

	if signed.IsPositive() {
		if !loc.CanHoldStock() {
			return apperror.NewValidation("location is blocked").
				WithDetail("location_id", locID)
		}
		if !loc.HasCapacityFor(signed) {
			return apperror.NewValidation("location capacity exceeded").
				WithDetail("location_id", locID)
		}
	} else {
		bucket, err := s.locationStock.GetForUpdate(ctx, locID, in.ProductID, in.Lot)
		if err != nil {
			return err
		}
		if bucket.Quantity.LessThan(in.Quantity) {
			return apperror.NewInsufficientLocationStock(
				in.ProductID.String(), locID.String(),
				in.Quantity.Float64(), bucket.Quantity.Float64(),
			)
		}
	}

	if err := s.locationStock.Upsert(ctx, locID, in.ProductID, in.Lot, signed); err != nil {
		return fmt.Errorf("update location stock: %w", err)
	}
	return s.locations.AdjustOccupied(ctx, locID, signed)
}

// RecordTransfer appends a zero-net salida/entrada pair documenting an
// internal transfer. The location buckets were already moved by the caller,
// so only the ledger rows and the (unchanged) aggregate chain are written.
// Implements location.TransferRecorder.
func (s *Service) RecordTransfer(ctx context.Context, productID, fromLocation, toLocation id.ID, qty types.Quantity, reference string) error {
	srcType := SourceTransfer
	out := ApplyInput{
		ProductID:  productID,
		Type:       SalidaTransferencia,
		Quantity:   qty,
		LocationID: &fromLocation,
		SourceType: &srcType,
		Comment:    reference,
	}
	if _, err := s.apply(ctx, out, applyOptions{skipLocationBucket: true}); err != nil {
		return err
	}
	in := ApplyInput{
		ProductID:  productID,
		Type:       EntradaTransferencia,
		Quantity:   qty,
		LocationID: &toLocation,
		SourceType: &srcType,
		Comment:    reference,
	}
	_, err := s.apply(ctx, in, applyOptions{skipLocationBucket: true})
	return err
}

// GetByID retrieves a single movement.
func (s *Service) GetByID(ctx context.Context, movementID id.ID) (*Movement, error) {
	m, err := s.movements.GetByID(ctx, movementID)
	if err != nil {
		if apperror.IsAppError(err) {
			return nil, err
		}
		return nil, apperror.NewNotFound("movement", movementID.String())
	}
	return m, nil
}

// History lists movements newest-first according to the filter.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]*Movement, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.movements.History(ctx, filter)
}

// StockAt reconstructs a product's stock at a point in time from the signed
// sum of its movements up to that date.
func (s *Service) StockAt(ctx context.Context, productID id.ID, at time.Time) (types.Quantity, error) {
	return s.movements.SumByProduct(ctx, productID, &at)
}

// VerifyProductBalance compares the aggregate cache with the signed sum
// of the product's full ledger. Runs in its own transaction so the row
// lock blocks concurrent Apply calls while both values are read.
func (s *Service) VerifyProductBalance(ctx context.Context, productID id.ID) (*BalanceReport, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var report *BalanceReport
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.products.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		sum, err := s.movements.SumByProduct(ctx, productID, nil)
		if err != nil {
			return err
		}
		report = &BalanceReport{
			ProductID:   productID,
			StockActual: p.StockActual,
			LedgerSum:   sum,
			Consistent:  p.StockActual == sum,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !report.Consistent {
		logger.Warn(ctx, "aggregate stock diverges from ledger",
			"product_id", productID,
			"stock_actual", report.StockActual.Float64(),
			"ledger_sum", report.LedgerSum.Float64(),
		)
	}
	return report, nil
}

// Turnover aggregates inbound/outbound volume per product in a period.
// Uses a read-only transaction when the manager supports one.
func (s *Service) Turnover(ctx context.Context, from, to time.Time) ([]*TurnoverRow, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	ro, ok := txm.(tx.ReadOnlyManager)
	if !ok {
		return s.movements.Turnover(ctx, from, to)
	}

	var rows []*TurnoverRow
	err = ro.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		rows, err = s.movements.Turnover(ctx, from, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
