package purchaseorder

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
	"comercia/internal/domain/approval"
	"comercia/internal/domain/ledger"
	"comercia/pkg/logger"
)

// EntityType identifies purchase orders in approvals, audit and movements.
const EntityType = "orden_compra"

// MovementPoster posts stock movements. Implemented by the ledger service.
type MovementPoster interface {
	ApplyWithCost(ctx context.Context, in ledger.ApplyInput, newCost types.Money) (*ledger.Movement, error)
}

// ApprovalGate decides whether an order needs approval before sending.
// Implemented by the approval service; a nil gate disables approvals.
type ApprovalGate interface {
	EvaluateRequiresApproval(ctx context.Context, entityType string, facts approval.Facts) (*approval.Rule, error)
	StartApproval(ctx context.Context, rule *approval.Rule, entityType string, entityID id.ID, entityFolio string) (*approval.Approval, error)
	Decide(ctx context.Context, entityType string, entityID id.ID, approved bool, comment string) (*approval.Approval, error)
}

// Service implements the purchase order lifecycle.
type Service struct {
	repo      Repository
	ledger    MovementPoster
	approvals ApprovalGate // Optional - nil means no approval gate
	folios    folio.Generator
	txManager tx.Manager // Optional - if nil, obtained from context
}

// NewService creates the purchase order service.
func NewService(repo Repository, movements MovementPoster, approvals ApprovalGate, folios folio.Generator) *Service {
	return &Service{
		repo:      repo,
		ledger:    movements,
		approvals: approvals,
		folios:    folios,
	}
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

// Create validates a draft order, assigns its folio and persists it.
func (s *Service) Create(ctx context.Context, po *PurchaseOrder) error {
	if err := po.Validate(ctx); err != nil {
		return err
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		folioStr, err := s.folios.GetNextFolio(ctx, folio.PurchaseOrderConfig, nil, po.Date)
		if err != nil {
			return fmt.Errorf("generate folio: %w", err)
		}
		po.Folio = folioStr
		po.RecalculateTotals()
		if err := s.repo.Create(ctx, po); err != nil {
			return fmt.Errorf("create purchase order: %w", err)
		}
		logger.Info(ctx, "purchase order created", "order_id", po.ID, "folio", po.Folio)
		return nil
	})
}

// Update replaces header fields and lines. Only drafts are editable.
func (s *Service) Update(ctx context.Context, po *PurchaseOrder) error {
	if err := po.Validate(ctx); err != nil {
		return err
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, po.ID)
		if err != nil {
			return err
		}
		if err := current.RequireState(EntityType, "modificar", EstadoBorrador); err != nil {
			return err
		}
		po.Folio = current.Folio
		po.Estado = current.Estado
		po.RecalculateTotals()
		return s.repo.Update(ctx, po)
	})
}

// AddItem appends a line to a draft order.
func (s *Service) AddItem(ctx context.Context, orderID, productID id.ID, qty types.Quantity, unitPrice types.Money) (*PurchaseOrder, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var po *PurchaseOrder
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		po, err = s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := po.RequireState(EntityType, "agregar_item", EstadoBorrador); err != nil {
			return err
		}
		po.AddItem(productID, qty, unitPrice)
		if err := po.Validate(ctx); err != nil {
			return err
		}
		return s.repo.Update(ctx, po)
	})
	if err != nil {
		return nil, err
	}
	return po, nil
}

// Enviar submits a draft. When an approval rule matches the order goes to
// pendiente_aprobacion with an approval instance opened in the same tx;
// otherwise it goes straight to enviada.
func (s *Service) Enviar(ctx context.Context, orderID id.ID) (*PurchaseOrder, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var po *PurchaseOrder
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		po, err = s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := po.RequireState(EntityType, "enviar", EstadoBorrador); err != nil {
			return err
		}
		if len(po.ActiveItems()) == 0 {
			return apperror.NewValidation("order has no items").
				WithDetail("order_id", po.ID)
		}

		if s.approvals != nil {
			total, _ := po.Total.Float64()
			rule, err := s.approvals.EvaluateRequiresApproval(ctx, EntityType, approval.Facts{
				"total":       total,
				"items_count": int64(len(po.ActiveItems())),
				"currency":    po.Currency,
				"supplier_id": po.SupplierID.String(),
				"sucursal_id": po.SucursalID.String(),
				"created_by":  appctx.GetUserID(ctx),
			})
			if err != nil {
				return err
			}
			if rule != nil {
				po.Transition(EstadoPendienteAprobacion)
				if _, err := s.approvals.StartApproval(ctx, rule, EntityType, po.ID, po.Folio); err != nil {
					return err
				}
				return s.repo.Update(ctx, po)
			}
		}

		po.Transition(EstadoEnviada)
		return s.repo.Update(ctx, po)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase order submitted",
		"order_id", po.ID, "folio", po.Folio, "estado", po.Estado)
	return po, nil
}

// Aprobar completes the approval stage and releases the order to enviada.
func (s *Service) Aprobar(ctx context.Context, orderID id.ID, comment string) (*PurchaseOrder, error) {
	return s.decide(ctx, orderID, true, comment)
}

// Rechazar rejects the approval and returns the order to draft.
func (s *Service) Rechazar(ctx context.Context, orderID id.ID, comment string) (*PurchaseOrder, error) {
	return s.decide(ctx, orderID, false, comment)
}

func (s *Service) decide(ctx context.Context, orderID id.ID, approved bool, comment string) (*PurchaseOrder, error) {
	if s.approvals == nil {
		return nil, apperror.NewValidation("approvals are not enabled")
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var po *PurchaseOrder
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		po, err = s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		operation := "aprobar"
		if !approved {
			operation = "rechazar"
		}
		if err := po.RequireState(EntityType, operation, EstadoPendienteAprobacion); err != nil {
			return err
		}
		if _, err := s.approvals.Decide(ctx, EntityType, po.ID, approved, comment); err != nil {
			return err
		}
		if approved {
			po.Transition(EstadoEnviada)
		} else {
			po.Transition(EstadoBorrador)
		}
		return s.repo.Update(ctx, po)
	})
	if err != nil {
		return nil, err
	}
	return po, nil
}

// ReceiptInput is one receiving line of RecibirMercancia.
type ReceiptInput struct {
	ItemID   id.ID
	Quantity types.Quantity

	// UnitCost overrides the ordered price when the invoice differs.
	UnitCost *types.Money

	LocationID *id.ID
	Lot        *string
}

// RecibirMercancia posts goods receipt for one or more lines. Every line is
// one entrada_compra movement through the stock primitive; the order advances
// to parcial or recibida depending on what remains pending. The whole receipt
// is one transaction: any bad line aborts it.
func (s *Service) RecibirMercancia(ctx context.Context, orderID id.ID, receipts []ReceiptInput) (*PurchaseOrder, error) {
	if len(receipts) == 0 {
		return nil, apperror.NewValidation("at least one receipt line is required")
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var po *PurchaseOrder
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		po, err = s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := po.RequireState(EntityType, "recibir", EstadoEnviada, EstadoParcial); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, rcpt := range receipts {
			item := po.ItemByID(rcpt.ItemID)
			if item == nil {
				return apperror.NewNotFound("order item", rcpt.ItemID.String())
			}
			if item.Estado == ItemCompleto || item.Estado == ItemCancelado {
				return apperror.NewInvalidState("order item", item.Estado, "recibir").
					WithDetail("line", item.LineNo)
			}
			if !rcpt.Quantity.IsPositive() {
				return apperror.NewValidation("receipt quantity must be positive").
					WithDetail("line", item.LineNo)
			}
			if item.Pending().LessThan(rcpt.Quantity) {
				return apperror.NewValidation("receipt exceeds pending quantity").
					WithDetail("line", item.LineNo).
					WithDetail("pending", item.Pending().Float64()).
					WithDetail("received", rcpt.Quantity.Float64())
			}

			unitCost := item.UnitPrice
			if rcpt.UnitCost != nil {
				unitCost = *rcpt.UnitCost
			}

			srcType := ledger.SourcePurchaseOrder
			movement, err := s.ledger.ApplyWithCost(ctx, ledger.ApplyInput{
				ProductID:   item.ProductID,
				Type:        ledger.EntradaCompra,
				Quantity:    rcpt.Quantity,
				UnitCost:    unitCost,
				LocationID:  rcpt.LocationID,
				Lot:         rcpt.Lot,
				SourceType:  &srcType,
				SourceID:    &po.ID,
				SourceFolio: &po.Folio,
			}, unitCost)
			if err != nil {
				return err
			}

			item.Received = item.Received.Add(rcpt.Quantity)
			if item.Pending().IsZero() {
				item.Estado = ItemCompleto
			} else {
				item.Estado = ItemParcial
			}
			if err := s.repo.UpdateItem(ctx, item); err != nil {
				return fmt.Errorf("update order item: %w", err)
			}

			receipt := &Receipt{
				ID:         id.New(),
				OrderID:    po.ID,
				ItemID:     item.ID,
				Quantity:   rcpt.Quantity,
				UnitCost:   unitCost,
				LocationID: rcpt.LocationID,
				Lot:        rcpt.Lot,
				MovementID: movement.ID,
				ReceivedBy: appctx.GetUserID(ctx),
				ReceivedAt: now,
			}
			if err := s.repo.AddReceipt(ctx, receipt); err != nil {
				return fmt.Errorf("add receipt: %w", err)
			}
		}

		if po.FullyReceived() {
			po.Transition(EstadoRecibida)
		} else {
			po.Transition(EstadoParcial)
		}
		return s.repo.Update(ctx, po)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "goods received",
		"order_id", po.ID, "folio", po.Folio, "estado", po.Estado, "lines", len(receipts))
	return po, nil
}

// Cancelar cancels an order and its remaining lines. Orders already fully
// received cannot be cancelled.
func (s *Service) Cancelar(ctx context.Context, orderID id.ID, reason string) (*PurchaseOrder, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var po *PurchaseOrder
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		po, err = s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := po.RequireState(EntityType, "cancelar",
			EstadoBorrador, EstadoPendienteAprobacion, EstadoEnviada, EstadoParcial); err != nil {
			return err
		}

		for i := range po.Items {
			item := &po.Items[i]
			if item.Estado == ItemPendiente || item.Estado == ItemParcial {
				item.Estado = ItemCancelado
				if err := s.repo.UpdateItem(ctx, item); err != nil {
					return fmt.Errorf("cancel order item: %w", err)
				}
			}
		}

		po.Transition(EstadoCancelada)
		if reason != "" {
			po.Comment = reason
		}
		return s.repo.Update(ctx, po)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase order cancelled", "order_id", po.ID, "folio", po.Folio)
	return po, nil
}

// RegistrarPago applies a payment. Payments are monetary only and never
// touch stock; received goods on a cancelled order remain in stock.
func (s *Service) RegistrarPago(ctx context.Context, orderID id.ID, amount types.Money) (*PurchaseOrder, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var po *PurchaseOrder
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		po, err = s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := po.RequireState(EntityType, "registrar_pago",
			EstadoEnviada, EstadoParcial, EstadoRecibida); err != nil {
			return err
		}
		if err := po.RegisterPayment(amount); err != nil {
			return err
		}
		return s.repo.Update(ctx, po)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "payment registered",
		"order_id", po.ID, "folio", po.Folio,
		"amount", amount.String(), "estado_pago", po.EstadoPago)
	return po, nil
}

// GetByID loads an order with its items.
func (s *Service) GetByID(ctx context.Context, orderID id.ID) (*PurchaseOrder, error) {
	return s.repo.GetByID(ctx, orderID)
}

// GetByFolio loads an order by folio.
func (s *Service) GetByFolio(ctx context.Context, folioStr string) (*PurchaseOrder, error) {
	return s.repo.GetByFolio(ctx, folioStr)
}

// List pages orders according to the filter.
func (s *Service) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*PurchaseOrder], error) {
	return s.repo.List(ctx, filter)
}

// Receipts returns the receiving history of an order.
func (s *Service) Receipts(ctx context.Context, orderID id.ID) ([]*Receipt, error) {
	return s.repo.ListReceipts(ctx, orderID)
}
