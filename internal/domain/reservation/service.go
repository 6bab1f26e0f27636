package reservation

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
	"comercia/internal/domain/catalogs/product"
	"comercia/internal/domain/ledger"
	"comercia/pkg/logger"
)

// ProductLocker is the slice of the product repository the engine needs:
// availability checks serialize on the same row lock the ledger uses, so a
// reserve and a confirm for the same product never interleave.
type ProductLocker interface {
	GetForUpdate(ctx context.Context, id id.ID) (*product.Product, error)
}

// MovementPoster posts stock movements. Implemented by the ledger service.
type MovementPoster interface {
	Apply(ctx context.Context, in ledger.ApplyInput) (*ledger.Movement, error)
}

// Service implements the reservation engine.
type Service struct {
	repo      Repository
	products  ProductLocker
	ledger    MovementPoster
	folios    folio.Generator
	txManager tx.Manager // Optional - if nil, obtained from context

	// now is swappable for deterministic tests
	now func() time.Time
}

// NewService creates the reservation engine.
func NewService(repo Repository, products ProductLocker, movements MovementPoster, folios folio.Generator) *Service {
	return &Service{
		repo:     repo,
		products: products,
		ledger:   movements,
		folios:   folios,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

// ReserveInput parameterizes Reserve.
type ReserveInput struct {
	ProductID id.ID
	Quantity  types.Quantity
	Origin    OriginType
	OriginID  *id.ID

	// TTL defaults to DefaultTTL when zero.
	TTL     time.Duration
	Comment string
}

// Reserve places a hold if the live availability covers it. Availability is
// stock_actual minus the sum of unexpired active holds, computed under the
// product row lock.
func (s *Service) Reserve(ctx context.Context, in ReserveInput) (*Reservation, error) {
	r := NewReservation(in.ProductID, in.Quantity, in.Origin, in.TTL)
	r.OriginID = in.OriginID
	r.Comment = in.Comment
	if err := r.Validate(ctx); err != nil {
		return nil, err
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.products.GetForUpdate(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if !p.CanMoveStock() {
			return apperror.NewValidation("product does not allow reservations").
				WithDetail("product_id", p.ID)
		}

		now := s.now()
		reserved, err := s.repo.SumActive(ctx, in.ProductID, now)
		if err != nil {
			return fmt.Errorf("sum active holds: %w", err)
		}
		available := p.StockActual.Sub(reserved)
		if available.LessThan(in.Quantity) {
			return apperror.NewInsufficientAvailableStock(
				p.ID.String(),
				in.Quantity.Float64(), available.Float64(), reserved.Float64(),
			)
		}

		folioStr, err := s.folios.GetNextFolio(ctx, folio.ReservationConfig, nil, now)
		if err != nil {
			return fmt.Errorf("generate folio: %w", err)
		}
		r.Folio = folioStr

		if err := s.repo.Create(ctx, r); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock reserved",
		"reservation_id", r.ID,
		"folio", r.Folio,
		"product_id", in.ProductID,
		"quantity", in.Quantity.Float64(),
		"expires_at", r.ExpiresAt,
	)
	return r, nil
}

// Confirm turns an active hold into a committed sale movement. Expired holds
// flip to expirada on access and the confirm fails.
func (s *Service) Confirm(ctx context.Context, reservationID id.ID) (*Reservation, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	if expired, err := s.expireIfOverdue(ctx, txm, reservationID); err != nil {
		return nil, err
	} else if expired {
		return nil, apperror.NewInvalidState("reservation", EstadoExpirada, "confirmar").
			WithDetail("reservation_id", reservationID)
	}

	var r *Reservation
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.repo.GetForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}

		if err := r.RequireState("reservation", "confirmar", EstadoActiva); err != nil {
			return err
		}

		srcType := ledger.SourceReservation
		movement, err := s.ledger.Apply(ctx, ledger.ApplyInput{
			ProductID:   r.ProductID,
			Type:        ledger.SalidaVenta,
			Quantity:    r.Quantity,
			SourceType:  &srcType,
			SourceID:    &r.ID,
			SourceFolio: &r.Folio,
			Comment:     r.Comment,
		})
		if err != nil {
			return err
		}

		now := s.now()
		r.Transition(EstadoConfirmada)
		r.MovementID = &movement.ID
		r.ConfirmedAt = &now
		return s.repo.Update(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "reservation confirmed",
		"reservation_id", r.ID,
		"folio", r.Folio,
		"movement_id", r.MovementID,
	)
	return r, nil
}

// Cancel releases an active hold without moving stock.
func (s *Service) Cancel(ctx context.Context, reservationID id.ID) (*Reservation, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	if expired, err := s.expireIfOverdue(ctx, txm, reservationID); err != nil {
		return nil, err
	} else if expired {
		return nil, apperror.NewInvalidState("reservation", EstadoExpirada, "cancelar").
			WithDetail("reservation_id", reservationID)
	}

	var r *Reservation
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.repo.GetForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}

		if err := r.RequireState("reservation", "cancelar", EstadoActiva); err != nil {
			return err
		}

		now := s.now()
		r.Transition(EstadoCancelada)
		r.CancelledAt = &now
		return s.repo.Update(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "reservation cancelled", "reservation_id", r.ID, "folio", r.Folio)
	return r, nil
}

// expireIfOverdue flips an overdue active hold to expirada. The callers fail
// with INVALID_STATE right after, and the flip has to survive that failure, so
// it runs in a transaction of its own instead of the caller's.
func (s *Service) expireIfOverdue(ctx context.Context, txm tx.Manager, reservationID id.ID) (bool, error) {
	var expired bool
	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Estado != EstadoActiva || !r.IsOverdue(s.now()) {
			return nil
		}
		r.Transition(EstadoExpirada)
		expired = true
		return s.repo.Update(ctx, r)
	})
	return expired, err
}

// GetByID retrieves a reservation, applying lazy expiry on read.
func (s *Service) GetByID(ctx context.Context, reservationID id.ID) (*Reservation, error) {
	r, err := s.repo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.IsOverdue(s.now()) {
		txm, err := s.getTxManager(ctx)
		if err != nil {
			return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
		}
		err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
			r.Transition(EstadoExpirada)
			return s.repo.Update(ctx, r)
		})
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ListByProduct lists all holds for a product.
func (s *Service) ListByProduct(ctx context.Context, productID id.ID) ([]*Reservation, error) {
	return s.repo.ListByProduct(ctx, productID)
}

// Availability returns the live availability picture for a product.
func (s *Service) Availability(ctx context.Context, productID id.ID) (*Availability, error) {
	p, err := s.products.GetForUpdate(ctx, productID)
	if err != nil {
		return nil, err
	}
	reserved, err := s.repo.SumActive(ctx, productID, s.now())
	if err != nil {
		return nil, err
	}
	return &Availability{
		ProductID:   productID,
		StockActual: p.StockActual,
		Reserved:    reserved,
		Available:   p.StockActual.Sub(reserved),
	}, nil
}

// ExpireOverdue flips all overdue active holds. Called by the worker sweep.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return 0, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var count int64
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		count, err = s.repo.ExpireOverdue(ctx, s.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logger.Info(ctx, "expired overdue reservations", "count", count)
	}
	return count, nil
}
