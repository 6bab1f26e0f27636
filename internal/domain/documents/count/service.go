package count

import (
	"context"
	"fmt"
	"time"

	"comercia/internal/core/apperror"
	appctx "comercia/internal/core/context"
	"comercia/internal/core/folio"
	"comercia/internal/core/id"
	"comercia/internal/core/tenant"
	"comercia/internal/core/tx"
	"comercia/internal/core/types"
	"comercia/internal/domain"
	"comercia/internal/domain/ledger"
	"comercia/pkg/logger"
)

// EntityType identifies counts in audit and movements.
const EntityType = "conteo_fisico"

// MovementPoster posts stock movements. Implemented by the ledger service.
type MovementPoster interface {
	Apply(ctx context.Context, in ledger.ApplyInput) (*ledger.Movement, error)
}

// Service implements the physical count lifecycle.
type Service struct {
	repo      Repository
	scope     ScopeResolver
	ledger    MovementPoster
	folios    folio.Generator
	txManager tx.Manager // Optional - if nil, obtained from context
}

// NewService creates the count service.
func NewService(repo Repository, scope ScopeResolver, movements MovementPoster, folios folio.Generator) *Service {
	return &Service{
		repo:   repo,
		scope:  scope,
		ledger: movements,
		folios: folios,
	}
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

// Create validates a draft count, assigns its folio and persists it.
func (s *Service) Create(ctx context.Context, c *Count) error {
	if err := c.Validate(ctx); err != nil {
		return err
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		// Counts are internal documents; gaps in their numbering are fine.
		folioStr, err := s.folios.GetNextFolio(ctx, folio.PhysicalCountConfig, folio.CachedOptions(), c.Date)
		if err != nil {
			return fmt.Errorf("generate folio: %w", err)
		}
		c.Folio = folioStr
		if err := s.repo.Create(ctx, c); err != nil {
			return fmt.Errorf("create count: %w", err)
		}
		logger.Info(ctx, "count created", "count_id", c.ID, "folio", c.Folio, "tipo", string(c.Tipo))
		return nil
	})
}

// Iniciar materializes the scope into items, snapshotting cantidad_sistema,
// and moves the count to en_proceso. An empty scope fails: a count over
// nothing is a configuration mistake, not an empty result.
func (s *Service) Iniciar(ctx context.Context, countID id.ID) (*Count, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var c *Count
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.repo.GetForUpdate(ctx, countID)
		if err != nil {
			return err
		}
		if err := c.RequireState(EntityType, "iniciar", EstadoBorrador); err != nil {
			return err
		}

		scope, err := s.scope.Resolve(ctx, c)
		if err != nil {
			return fmt.Errorf("resolve count scope: %w", err)
		}
		if len(scope) == 0 {
			return apperror.NewValidation("count scope matches no products").
				WithDetail("tipo", string(c.Tipo))
		}

		items := make([]CountItem, 0, len(scope))
		for i, sp := range scope {
			items = append(items, CountItem{
				ID:              id.New(),
				CountID:         c.ID,
				LineNo:          i + 1,
				ProductID:       sp.ProductID,
				CantidadSistema: sp.StockActual,
				UnitCost:        sp.UnitCost,
				Estado:          ItemPendiente,
			})
		}
		if err := s.repo.InsertItems(ctx, items); err != nil {
			return fmt.Errorf("insert count items: %w", err)
		}

		now := time.Now().UTC()
		c.Items = items
		c.StartedAt = &now
		c.RecalculateTotals()
		c.Transition(EstadoEnProceso)
		return s.repo.Update(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "count started",
		"count_id", c.ID, "folio", c.Folio, "items", len(c.Items))
	return c, nil
}

// RegistrarConteo records the counted quantity for one line.
func (s *Service) RegistrarConteo(ctx context.Context, countID id.ID, lineNo int, qty types.Quantity) (*Count, error) {
	if qty.IsNegative() {
		return nil, apperror.NewValidation("counted quantity cannot be negative").
			WithDetail("line", lineNo)
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var c *Count
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.repo.GetForUpdate(ctx, countID)
		if err != nil {
			return err
		}
		if err := c.RequireState(EntityType, "registrar_conteo", EstadoEnProceso); err != nil {
			return err
		}

		item := c.ItemByLine(lineNo)
		if item == nil {
			return apperror.NewNotFound("count item", lineNo)
		}

		now := time.Now().UTC()
		item.CantidadContada = &qty
		item.Diferencia = qty.Sub(item.CantidadSistema)
		item.Estado = ItemContado
		item.CountedBy = appctx.GetUserID(ctx)
		item.CountedAt = &now
		if err := s.repo.UpdateItem(ctx, item); err != nil {
			return fmt.Errorf("update count item: %w", err)
		}

		c.RecalculateTotals()
		return s.repo.Update(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Completar closes the counting phase. Pending lines block completion.
func (s *Service) Completar(ctx context.Context, countID id.ID) (*Count, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var c *Count
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.repo.GetForUpdate(ctx, countID)
		if err != nil {
			return err
		}
		if err := c.RequireState(EntityType, "completar", EstadoEnProceso); err != nil {
			return err
		}

		if pending := c.PendingLines(); len(pending) > 0 {
			return apperror.NewInvalidState(EntityType, c.Estado, "completar").
				WithDetail("reason", "pending_items").
				WithDetail("pending_lines", pending)
		}

		now := time.Now().UTC()
		c.CompletedAt = &now
		c.RecalculateTotals()
		c.Transition(EstadoCompletado)
		return s.repo.Update(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "count completed",
		"count_id", c.ID, "folio", c.Folio,
		"total_diferencia", c.TotalDiferencia.Float64())
	return c, nil
}

// AplicarAjustes settles every non-zero difference through an adjustment
// movement and moves the count to ajustado. Differences settle against the
// snapshot, so sales between counting and adjusting are preserved. Zero-diff
// lines produce no movement.
func (s *Service) AplicarAjustes(ctx context.Context, countID id.ID) (*Count, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var c *Count
	var adjusted int
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.repo.GetForUpdate(ctx, countID)
		if err != nil {
			return err
		}
		if err := c.RequireState(EntityType, "aplicar_ajustes", EstadoCompletado); err != nil {
			return err
		}

		srcType := ledger.SourcePhysicalCount
		for i := range c.Items {
			item := &c.Items[i]
			if item.Diferencia.IsZero() {
				continue
			}

			movType := ledger.EntradaAjuste
			if item.Diferencia.IsNegative() {
				movType = ledger.SalidaAjuste
			}

			movement, err := s.ledger.Apply(ctx, ledger.ApplyInput{
				ProductID:               item.ProductID,
				Type:                    movType,
				Quantity:                item.Diferencia.Abs(),
				UnitCost:                item.UnitCost,
				SourceType:              &srcType,
				SourceID:                &c.ID,
				SourceFolio:             &c.Folio,
				AllowNegativeCorrection: true,
			})
			if err != nil {
				return fmt.Errorf("adjust line %d: %w", item.LineNo, err)
			}

			item.MovementID = &movement.ID
			item.Estado = ItemAjustado
			if err := s.repo.UpdateItem(ctx, item); err != nil {
				return fmt.Errorf("update count item: %w", err)
			}
			adjusted++
		}

		c.Transition(EstadoAjustado)
		return s.repo.Update(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "count adjustments applied",
		"count_id", c.ID, "folio", c.Folio, "movements", adjusted)
	return c, nil
}

// Cancelar cancels a count. Once adjustments were applied the count is
// permanent; the movements stay and only a new count can revise them.
func (s *Service) Cancelar(ctx context.Context, countID id.ID, reason string) (*Count, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var c *Count
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.repo.GetForUpdate(ctx, countID)
		if err != nil {
			return err
		}
		if err := c.RequireState(EntityType, "cancelar",
			EstadoBorrador, EstadoEnProceso, EstadoCompletado); err != nil {
			return err
		}
		c.Transition(EstadoCancelado)
		if reason != "" {
			c.Comment = reason
		}
		return s.repo.Update(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "count cancelled", "count_id", c.ID, "folio", c.Folio)
	return c, nil
}

// GetByID loads a count with its items.
func (s *Service) GetByID(ctx context.Context, countID id.ID) (*Count, error) {
	return s.repo.GetByID(ctx, countID)
}

// List pages counts according to the filter.
func (s *Service) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Count], error) {
	return s.repo.List(ctx, filter)
}
