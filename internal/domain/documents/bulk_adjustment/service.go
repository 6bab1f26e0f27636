package bulkadjustment

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"comercia/internal/core/apperror"
	"comercia/internal/core/folio"
	"comercia/internal/core/id"
	"comercia/internal/core/tenant"
	"comercia/internal/core/tx"
	"comercia/internal/core/types"
	"comercia/internal/domain"
	"comercia/internal/domain/ledger"
	"comercia/pkg/logger"
)

// EntityType identifies bulk adjustments in audit and movements.
const EntityType = "ajuste_masivo"

// MaxRows caps the size of one uploaded batch.
const MaxRows = 10_000

// MovementPoster posts stock movements. Implemented by the ledger service.
type MovementPoster interface {
	Apply(ctx context.Context, in ledger.ApplyInput) (*ledger.Movement, error)
}

// Service implements the bulk adjustment pipeline.
type Service struct {
	repo      Repository
	products  ProductResolver
	locations LocationResolver
	ledger    MovementPoster
	folios    folio.Generator
	txManager tx.Manager // Optional - if nil, obtained from context
}

// NewService creates the bulk adjustment service.
func NewService(repo Repository, products ProductResolver, locations LocationResolver, movements MovementPoster, folios folio.Generator) *Service {
	return &Service{
		repo:      repo,
		products:  products,
		locations: locations,
		ledger:    movements,
		folios:    folios,
	}
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

// csv column names. The file must carry a header row; column order is free.
const (
	colSKU      = "sku"
	colQuantity = "cantidad"
	colReason   = "motivo"
	colLocation = "ubicacion"
)

// Ingest parses a CSV upload into a pending batch. Parsing is deliberately
// lax: any cell content is accepted here and judged during validation, so
// the user gets per-row feedback instead of a parser abort.
func (s *Service) Ingest(ctx context.Context, reader io.Reader, sucursalID id.ID, fileName string) (*BulkAdjustment, error) {
	b := NewBulkAdjustment(sucursalID, fileName)

	r := csv.NewReader(reader)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, apperror.NewValidation("file is empty or not valid CSV").
			WithDetail("error", err.Error())
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols[colSKU]; !ok {
		return nil, apperror.NewValidation("missing required column").
			WithDetail("column", colSKU)
	}
	if _, ok := cols[colQuantity]; !ok {
		return nil, apperror.NewValidation("missing required column").
			WithDetail("column", colQuantity)
	}

	cell := func(record []string, col string) string {
		idx, ok := cols[col]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	lineNo := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperror.NewValidation("malformed CSV row").
				WithDetail("row", lineNo+1).
				WithDetail("error", err.Error())
		}
		lineNo++
		if lineNo > MaxRows {
			return nil, apperror.NewValidation("batch exceeds row limit").
				WithDetail("limit", MaxRows)
		}

		b.Items = append(b.Items, BulkItem{
			ID:           id.New(),
			AdjustmentID: b.ID,
			LineNo:       lineNo,
			SKUOrBarcode: cell(record, colSKU),
			QuantityRaw:  cell(record, colQuantity),
			Reason:       cell(record, colReason),
			LocationCode: cell(record, colLocation),
			Estado:       ItemPendiente,
		})
	}

	if err := b.Validate(ctx); err != nil {
		return nil, err
	}
	b.RecalculateCounters()

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		// Adjustments are internal documents; gaps in their numbering are fine.
		folioStr, err := s.folios.GetNextFolio(ctx, folio.BulkAdjustmentConfig, folio.CachedOptions(), b.Date)
		if err != nil {
			return fmt.Errorf("generate folio: %w", err)
		}
		b.Folio = folioStr
		if err := s.repo.Create(ctx, b); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		return s.repo.InsertItems(ctx, b.Items)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "bulk adjustment ingested",
		"adjustment_id", b.ID, "folio", b.Folio, "rows", b.TotalItems)
	return b, nil
}

// Validar resolves and checks every row. Each row is judged independently;
// the header becomes validado when at least one row survived.
func (s *Service) Validar(ctx context.Context, adjustmentID id.ID) (*BulkAdjustment, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var b *BulkAdjustment
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.repo.GetForUpdate(ctx, adjustmentID)
		if err != nil {
			return err
		}
		if err := b.RequireState(EntityType, "validar", EstadoPendiente); err != nil {
			return err
		}

		for i := range b.Items {
			item := &b.Items[i]
			s.validateItem(ctx, b, item)
			if err := s.repo.UpdateItem(ctx, item); err != nil {
				return fmt.Errorf("update item %d: %w", item.LineNo, err)
			}
		}

		b.RecalculateCounters()
		if b.ValidItems > 0 {
			b.Transition(EstadoValidado)
		}
		// With zero valid rows the header stays pendiente so the batch can
		// be corrected and validated again.
		return s.repo.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "bulk adjustment validated",
		"adjustment_id", b.ID, "folio", b.Folio,
		"valid", b.ValidItems, "errors", b.ErrorItems)
	return b, nil
}

func (s *Service) validateItem(ctx context.Context, b *BulkAdjustment, item *BulkItem) {
	qty, err := strconv.ParseInt(item.QuantityRaw, 10, 64)
	if err != nil {
		item.MarkError(ErrQuantityInvalid,
			fmt.Sprintf("cantidad %q is not a whole number", item.QuantityRaw))
		return
	}
	if qty == 0 {
		item.MarkError(ErrQuantityZero, "cantidad cannot be zero")
		return
	}
	if qty > math.MaxInt64/types.QuantityScale || qty < math.MinInt64/types.QuantityScale {
		item.MarkError(ErrQuantityInvalid,
			fmt.Sprintf("cantidad %q is out of range", item.QuantityRaw))
		return
	}

	matches, err := s.products.FindBySKUOrBarcode(ctx, item.SKUOrBarcode)
	if err != nil {
		item.MarkError(ErrProductNotFound, err.Error())
		return
	}
	switch len(matches) {
	case 0:
		item.MarkError(ErrProductNotFound,
			fmt.Sprintf("no product matches %q", item.SKUOrBarcode))
		return
	case 1:
	default:
		item.MarkError(ErrProductAmbiguous,
			fmt.Sprintf("%q matches %d products", item.SKUOrBarcode, len(matches)))
		return
	}
	p := matches[0]
	item.ProductID = &p.ID

	if item.LocationCode != "" {
		loc, err := s.locations.FindByCodeInSucursal(ctx, b.SucursalID, item.LocationCode)
		if err != nil || loc == nil {
			item.MarkError(ErrLocationNotFound,
				fmt.Sprintf("no location %q in sucursal", item.LocationCode))
			return
		}
		item.LocationID = &loc.ID
	}

	item.Quantity = types.NewQuantityFromInt64Scaled(qty * types.QuantityScale)
	item.StockBefore = p.StockActual
	item.StockAfter = p.StockActual.Add(item.Quantity)
	if item.StockAfter.IsNegative() {
		item.MarkError(ErrNegativeStock,
			fmt.Sprintf("adjustment would leave stock at %s", item.StockAfter.String()))
		return
	}

	item.ValorAjuste = p.CostoUnitario.Mul(item.Quantity.Decimal())
	item.Estado = ItemValido
	item.ErrorCode = ""
	item.ErrorMessage = ""
}

// Aplicar posts every valid row through the stock primitive. Each row runs
// in its own savepoint: one failing row is recorded and the batch moves on.
// The prospective stock numbers from validation are advisory; the primitive
// re-checks under the row lock, so rows racing other traffic fail cleanly
// here instead of corrupting stock.
func (s *Service) Aplicar(ctx context.Context, adjustmentID id.ID) (*Report, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var b *BulkAdjustment
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.repo.GetForUpdate(ctx, adjustmentID)
		if err != nil {
			return err
		}
		if err := b.RequireState(EntityType, "aplicar", EstadoValidado); err != nil {
			return err
		}

		sp, _ := txm.(tx.SavepointManager)
		srcType := ledger.SourceBulkAdjustment

		for i := range b.Items {
			item := &b.Items[i]
			if item.Estado != ItemValido {
				continue
			}

			movType := ledger.EntradaAjuste
			if item.Quantity.IsNegative() {
				movType = ledger.SalidaAjuste
			}
			input := ledger.ApplyInput{
				ProductID:   *item.ProductID,
				Type:        movType,
				Quantity:    item.Quantity.Abs(),
				LocationID:  item.LocationID,
				SourceType:  &srcType,
				SourceID:    &b.ID,
				SourceFolio: &b.Folio,
				Comment:     item.Reason,
			}

			var movement *ledger.Movement
			applyErr := func() error {
				if sp != nil {
					return sp.RunInSavepoint(ctx, func(ctx context.Context) error {
						var err error
						movement, err = s.ledger.Apply(ctx, input)
						return err
					})
				}
				var err error
				movement, err = s.ledger.Apply(ctx, input)
				return err
			}()

			if applyErr != nil {
				item.MarkError(ErrApplyFailed, applyErr.Error())
				logger.Warn(ctx, "bulk adjustment row failed",
					"adjustment_id", b.ID, "line", item.LineNo, "error", applyErr)
			} else {
				item.Estado = ItemAplicado
				item.MovementID = &movement.ID
			}
			if err := s.repo.UpdateItem(ctx, item); err != nil {
				return fmt.Errorf("update item %d: %w", item.LineNo, err)
			}
		}

		now := time.Now().UTC()
		b.AppliedAt = &now
		b.RecalculateCounters()
		if b.ErrorItems > 0 {
			b.Transition(EstadoConErrores)
		} else {
			b.Transition(EstadoAplicado)
		}
		return s.repo.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	report := s.buildReport(b)
	logger.Info(ctx, "bulk adjustment applied",
		"adjustment_id", b.ID, "folio", b.Folio,
		"applied", report.Applied, "errors", len(report.Errors))
	return report, nil
}

func (s *Service) buildReport(b *BulkAdjustment) *Report {
	report := &Report{
		AdjustmentID: b.ID,
		Folio:        b.Folio,
		Estado:       b.Estado,
		Applied:      b.AppliedItems,
	}
	for i := range b.Items {
		item := &b.Items[i]
		if item.Estado == ItemError {
			report.Errors = append(report.Errors, ReportError{
				LineNo:       item.LineNo,
				SKUOrBarcode: item.SKUOrBarcode,
				Code:         item.ErrorCode,
				Message:      item.ErrorMessage,
			})
		}
	}
	return report
}

// Cancelar hard-deletes a batch that never touched stock. Once any row was
// applied the batch is permanent history.
func (s *Service) Cancelar(ctx context.Context, adjustmentID id.ID) error {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetForUpdate(ctx, adjustmentID)
		if err != nil {
			return err
		}
		if b.AppliedItems > 0 {
			return apperror.NewInvalidState(EntityType, b.Estado, "cancelar").
				WithDetail("applied_items", b.AppliedItems)
		}
		if err := b.RequireState(EntityType, "cancelar",
			EstadoPendiente, EstadoValidado, EstadoConErrores); err != nil {
			return err
		}

		logger.Info(ctx, "bulk adjustment deleted", "adjustment_id", b.ID, "folio", b.Folio)
		return s.repo.Delete(ctx, b.ID)
	})
}

// GetByID loads a batch with its items.
func (s *Service) GetByID(ctx context.Context, adjustmentID id.ID) (*BulkAdjustment, error) {
	return s.repo.GetByID(ctx, adjustmentID)
}

// Report returns the application report of a processed batch.
func (s *Service) Report(ctx context.Context, adjustmentID id.ID) (*Report, error) {
	b, err := s.repo.GetByID(ctx, adjustmentID)
	if err != nil {
		return nil, err
	}
	return s.buildReport(b), nil
}

// List pages batches according to the filter.
func (s *Service) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*BulkAdjustment], error) {
	return s.repo.List(ctx, filter)
}
