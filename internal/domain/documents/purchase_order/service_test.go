package purchaseorder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comercia/internal/core/apperror"
	"comercia/internal/core/folio"
	"comercia/internal/core/id"
	"comercia/internal/core/tenant"
	"comercia/internal/core/types"
	"comercia/internal/domain"
	"comercia/internal/domain/approval"
	"comercia/internal/domain/catalogs/product"
	"comercia/internal/domain/ledger"
)

type passTxManager struct{}

func (passTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeProducts struct {
	byID map[id.ID]*product.Product
}

func (f *fakeProducts) GetForUpdate(ctx context.Context, productID id.ID) (*product.Product, error) {
	p, ok := f.byID[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	return p, nil
}

func (f *fakeProducts) UpdateStock(ctx context.Context, productID id.ID, stock types.Quantity, cost *types.Money) error {
	p := f.byID[productID]
	p.StockActual = stock
	if cost != nil {
		p.CostoUnitario = *cost
	}
	return nil
}

type fakeMovements struct {
	rows []*ledger.Movement
}

func (f *fakeMovements) Insert(ctx context.Context, m *ledger.Movement) error {
	f.rows = append(f.rows, m)
	return nil
}

func (f *fakeMovements) InsertBatch(ctx context.Context, ms []*ledger.Movement) error {
	f.rows = append(f.rows, ms...)
	return nil
}

func (f *fakeMovements) GetByID(ctx context.Context, movementID id.ID) (*ledger.Movement, error) {
	return nil, apperror.NewNotFound("movement", movementID.String())
}

func (f *fakeMovements) History(ctx context.Context, filter ledger.HistoryFilter) ([]*ledger.Movement, error) {
	return f.rows, nil
}

func (f *fakeMovements) SumByProduct(ctx context.Context, productID id.ID, until *time.Time) (types.Quantity, error) {
	return 0, nil
}

func (f *fakeMovements) Turnover(ctx context.Context, from, to time.Time) ([]*ledger.TurnoverRow, error) {
	return nil, nil
}

type fakeRepo struct {
	orders   map[id.ID]*PurchaseOrder
	receipts []*Receipt
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[id.ID]*PurchaseOrder)}
}

func (f *fakeRepo) Create(ctx context.Context, po *PurchaseOrder) error {
	f.orders[po.ID] = po
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, orderID id.ID) (*PurchaseOrder, error) {
	po, ok := f.orders[orderID]
	if !ok {
		return nil, apperror.NewNotFound("purchase order", orderID.String())
	}
	return po, nil
}

func (f *fakeRepo) GetByFolio(ctx context.Context, folioStr string) (*PurchaseOrder, error) {
	for _, po := range f.orders {
		if po.Folio == folioStr {
			return po, nil
		}
	}
	return nil, apperror.NewNotFound("purchase order", folioStr)
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*PurchaseOrder, error) {
	return f.GetByID(ctx, orderID)
}

func (f *fakeRepo) Update(ctx context.Context, po *PurchaseOrder) error {
	f.orders[po.ID] = po
	return nil
}

func (f *fakeRepo) UpdateItem(ctx context.Context, item *OrderItem) error { return nil }

func (f *fakeRepo) AddReceipt(ctx context.Context, r *Receipt) error {
	f.receipts = append(f.receipts, r)
	return nil
}

func (f *fakeRepo) ListReceipts(ctx context.Context, orderID id.ID) ([]*Receipt, error) {
	return f.receipts, nil
}

func (f *fakeRepo) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*PurchaseOrder], error) {
	return domain.ListResult[*PurchaseOrder]{}, nil
}

// stubGate returns a fixed rule and records calls.
type stubGate struct {
	rule      *approval.Rule
	started   int
	decisions []bool
}

func (g *stubGate) EvaluateRequiresApproval(ctx context.Context, entityType string, facts approval.Facts) (*approval.Rule, error) {
	return g.rule, nil
}

func (g *stubGate) StartApproval(ctx context.Context, rule *approval.Rule, entityType string, entityID id.ID, entityFolio string) (*approval.Approval, error) {
	g.started++
	return &approval.Approval{ID: id.New(), Estado: approval.EstadoPendiente}, nil
}

func (g *stubGate) Decide(ctx context.Context, entityType string, entityID id.ID, approved bool, comment string) (*approval.Approval, error) {
	g.decisions = append(g.decisions, approved)
	return &approval.Approval{ID: id.New()}, nil
}

type testEnv struct {
	ctx      context.Context
	svc      *Service
	repo     *fakeRepo
	products *fakeProducts
	product  *product.Product
	gate     *stubGate
}

func newTestEnv(t *testing.T, gate *stubGate) *testEnv {
	t.Helper()

	p := product.NewProduct("PR-001", "Test Product", "SKU-001")
	p.ID = id.New()

	products := &fakeProducts{byID: map[id.ID]*product.Product{p.ID: p}}
	movements := ledger.NewService(&fakeMovements{}, products, nil, nil)
	repo := newFakeRepo()

	var svcGate ApprovalGate
	if gate != nil {
		svcGate = gate
	}
	svc := NewService(repo, movements, svcGate, &folio.MockGenerator{})
	ctx := tenant.WithTxManager(context.Background(), passTxManager{})

	return &testEnv{ctx: ctx, svc: svc, repo: repo, products: products, product: p, gate: gate}
}

func (env *testEnv) createOrder(t *testing.T, qty float64, price string) *PurchaseOrder {
	t.Helper()
	po := NewPurchaseOrder(id.New(), id.New(), "MXN")
	po.AddItem(env.product.ID, types.NewQuantityFromFloat64(qty), types.MustMoney(price))
	require.NoError(t, env.svc.Create(env.ctx, po))
	return po
}

func TestCreate_AssignsFolioAndTotals(t *testing.T) {
	env := newTestEnv(t, nil)
	po := env.createOrder(t, 10, "100.00")

	assert.NotEmpty(t, po.Folio)
	assert.Equal(t, EstadoBorrador, po.Estado)
	assert.True(t, po.Subtotal.Equal(types.MustMoney("1000.00")), "got %s", po.Subtotal)
	assert.True(t, po.Impuestos.Equal(types.MustMoney("160.00")), "got %s", po.Impuestos)
	assert.True(t, po.Total.Equal(types.MustMoney("1160.00")), "got %s", po.Total)
}

func TestEnviar_WithoutItemsFails(t *testing.T) {
	env := newTestEnv(t, nil)
	po := NewPurchaseOrder(id.New(), id.New(), "MXN")
	require.NoError(t, env.svc.Create(env.ctx, po))

	_, err := env.svc.Enviar(env.ctx, po.ID)
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestEnviar_NoGateGoesStraightToEnviada(t *testing.T) {
	env := newTestEnv(t, nil)
	po := env.createOrder(t, 10, "100.00")

	sent, err := env.svc.Enviar(env.ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, EstadoEnviada, sent.Estado)
}

func TestEnviar_MatchingRuleHoldsForApproval(t *testing.T) {
	rule := &approval.Rule{Code: "APR-TOTAL"}
	rule.ID = id.New()
	gate := &stubGate{rule: rule}
	env := newTestEnv(t, gate)
	po := env.createOrder(t, 10, "100.00")

	sent, err := env.svc.Enviar(env.ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, EstadoPendienteAprobacion, sent.Estado)
	assert.Equal(t, 1, gate.started)

	approved, err := env.svc.Aprobar(env.ctx, po.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, EstadoEnviada, approved.Estado)
	assert.Equal(t, []bool{true}, gate.decisions)
}

func TestRechazar_ReturnsToDraft(t *testing.T) {
	rule := &approval.Rule{Code: "APR-TOTAL"}
	rule.ID = id.New()
	gate := &stubGate{rule: rule}
	env := newTestEnv(t, gate)
	po := env.createOrder(t, 10, "100.00")

	_, err := env.svc.Enviar(env.ctx, po.ID)
	require.NoError(t, err)

	rejected, err := env.svc.Rechazar(env.ctx, po.ID, "too expensive")
	require.NoError(t, err)
	assert.Equal(t, EstadoBorrador, rejected.Estado)
}

func TestRecibirMercancia_PartialThenComplete(t *testing.T) {
	env := newTestEnv(t, nil)
	po := env.createOrder(t, 10, "100.00")
	_, err := env.svc.Enviar(env.ctx, po.ID)
	require.NoError(t, err)

	itemID := po.Items[0].ID
	received, err := env.svc.RecibirMercancia(env.ctx, po.ID, []ReceiptInput{
		{ItemID: itemID, Quantity: types.NewQuantityFromFloat64(4)},
	})
	require.NoError(t, err)

	assert.Equal(t, EstadoParcial, received.Estado)
	assert.Equal(t, ItemParcial, received.Items[0].Estado)
	assert.Equal(t, types.NewQuantityFromFloat64(4), env.product.StockActual)
	assert.True(t, env.product.CostoUnitario.Equal(types.MustMoney("100.00")),
		"receiving updates the product cost")
	require.Len(t, env.repo.receipts, 1)

	received, err = env.svc.RecibirMercancia(env.ctx, po.ID, []ReceiptInput{
		{ItemID: itemID, Quantity: types.NewQuantityFromFloat64(6)},
	})
	require.NoError(t, err)

	assert.Equal(t, EstadoRecibida, received.Estado)
	assert.Equal(t, ItemCompleto, received.Items[0].Estado)
	assert.Equal(t, types.NewQuantityFromFloat64(10), env.product.StockActual)
}

func TestRecibirMercancia_OverReceiptFails(t *testing.T) {
	env := newTestEnv(t, nil)
	po := env.createOrder(t, 10, "100.00")
	_, err := env.svc.Enviar(env.ctx, po.ID)
	require.NoError(t, err)

	_, err = env.svc.RecibirMercancia(env.ctx, po.ID, []ReceiptInput{
		{ItemID: po.Items[0].ID, Quantity: types.NewQuantityFromFloat64(11)},
	})
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
	assert.True(t, env.product.StockActual.IsZero(), "failed receipt must not move stock")
}

func TestRecibirMercancia_CompletedItemFails(t *testing.T) {
	env := newTestEnv(t, nil)
	po := env.createOrder(t, 5, "50.00")
	_, err := env.svc.Enviar(env.ctx, po.ID)
	require.NoError(t, err)

	itemID := po.Items[0].ID
	_, err = env.svc.RecibirMercancia(env.ctx, po.ID, []ReceiptInput{
		{ItemID: itemID, Quantity: types.NewQuantityFromFloat64(5)},
	})
	require.NoError(t, err)

	_, err = env.svc.RecibirMercancia(env.ctx, po.ID, []ReceiptInput{
		{ItemID: itemID, Quantity: types.NewQuantityFromFloat64(1)},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestCancelar_BlockedOnceReceived(t *testing.T) {
	env := newTestEnv(t, nil)
	po := env.createOrder(t, 5, "50.00")
	_, err := env.svc.Enviar(env.ctx, po.ID)
	require.NoError(t, err)

	_, err = env.svc.RecibirMercancia(env.ctx, po.ID, []ReceiptInput{
		{ItemID: po.Items[0].ID, Quantity: types.NewQuantityFromFloat64(5)},
	})
	require.NoError(t, err)

	_, err = env.svc.Cancelar(env.ctx, po.ID, "changed plans")
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestCancelar_PartialKeepsReceivedStock(t *testing.T) {
	env := newTestEnv(t, nil)
	po := env.createOrder(t, 10, "100.00")
	_, err := env.svc.Enviar(env.ctx, po.ID)
	require.NoError(t, err)

	_, err = env.svc.RecibirMercancia(env.ctx, po.ID, []ReceiptInput{
		{ItemID: po.Items[0].ID, Quantity: types.NewQuantityFromFloat64(4)},
	})
	require.NoError(t, err)

	cancelled, err := env.svc.Cancelar(env.ctx, po.ID, "supplier issues")
	require.NoError(t, err)

	assert.Equal(t, EstadoCancelada, cancelled.Estado)
	assert.Equal(t, ItemCancelado, cancelled.Items[0].Estado)
	assert.Equal(t, types.NewQuantityFromFloat64(4), env.product.StockActual,
		"cancellation never reverses received stock")
}

func TestRegistrarPago_DerivesPaymentState(t *testing.T) {
	env := newTestEnv(t, nil)
	po := env.createOrder(t, 10, "100.00") // total 1160.00
	_, err := env.svc.Enviar(env.ctx, po.ID)
	require.NoError(t, err)

	paid, err := env.svc.RegistrarPago(env.ctx, po.ID, types.MustMoney("500.00"))
	require.NoError(t, err)
	assert.Equal(t, PagoParcial, paid.EstadoPago)

	paid, err = env.svc.RegistrarPago(env.ctx, po.ID, types.MustMoney("660.00"))
	require.NoError(t, err)
	assert.Equal(t, PagoPagada, paid.EstadoPago)

	_, err = env.svc.RegistrarPago(env.ctx, po.ID, types.MustMoney("1.00"))
	require.Error(t, err)
}

func TestRegistrarPago_DraftRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	po := env.createOrder(t, 10, "100.00")

	_, err := env.svc.RegistrarPago(env.ctx, po.ID, types.MustMoney("100.00"))
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidState(err))
}
