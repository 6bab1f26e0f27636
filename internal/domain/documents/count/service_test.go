package count

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
	counts map[id.ID]*Count
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{counts: make(map[id.ID]*Count)}
}

func (f *fakeRepo) Create(ctx context.Context, c *Count) error {
	f.counts[c.ID] = c
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, countID id.ID) (*Count, error) {
	c, ok := f.counts[countID]
	if !ok {
		return nil, apperror.NewNotFound("count", countID.String())
	}
	return c, nil
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, countID id.ID) (*Count, error) {
	return f.GetByID(ctx, countID)
}

func (f *fakeRepo) Update(ctx context.Context, c *Count) error {
	f.counts[c.ID] = c
	return nil
}

func (f *fakeRepo) InsertItems(ctx context.Context, items []CountItem) error { return nil }

func (f *fakeRepo) UpdateItem(ctx context.Context, item *CountItem) error { return nil }

func (f *fakeRepo) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Count], error) {
	return domain.ListResult[*Count]{}, nil
}

// scopeFromProducts materializes every product in the fake store.
type scopeFromProducts struct {
	products *fakeProducts
}

func (s *scopeFromProducts) Resolve(ctx context.Context, c *Count) ([]ScopeProduct, error) {
	var out []ScopeProduct
	for _, p := range s.products.byID {
		out = append(out, ScopeProduct{
			ProductID:   p.ID,
			StockActual: p.StockActual,
			UnitCost:    p.CostoUnitario,
		})
	}
	return out, nil
}

type emptyScope struct{}

func (emptyScope) Resolve(ctx context.Context, c *Count) ([]ScopeProduct, error) {
	return nil, nil
}

type testEnv struct {
	ctx       context.Context
	svc       *Service
	products  *fakeProducts
	movements *fakeMovements
	product   *product.Product
}

func newTestEnv(t *testing.T, stock float64) *testEnv {
	t.Helper()

	p := product.NewProduct("PR-001", "Test Product", "SKU-001")
	p.ID = id.New()
	p.StockActual = types.NewQuantityFromFloat64(stock)
	p.CostoUnitario = types.MustMoney("10.00")

	products := &fakeProducts{byID: map[id.ID]*product.Product{p.ID: p}}
	movements := &fakeMovements{}
	ledgerSvc := ledger.NewService(movements, products, nil, nil)

	svc := NewService(newFakeRepo(), &scopeFromProducts{products: products}, ledgerSvc, &folio.MockGenerator{})
	ctx := tenant.WithTxManager(context.Background(), passTxManager{})

	return &testEnv{ctx: ctx, svc: svc, products: products, movements: movements, product: p}
}

func (env *testEnv) startedCount(t *testing.T) *Count {
	t.Helper()
	c := NewCount(TipoTotal, id.New())
	require.NoError(t, env.svc.Create(env.ctx, c))
	started, err := env.svc.Iniciar(env.ctx, c.ID)
	require.NoError(t, err)
	return started
}

func TestIniciar_SnapshotsSystemStock(t *testing.T) {
	env := newTestEnv(t, 50)
	c := env.startedCount(t)

	assert.Equal(t, EstadoEnProceso, c.Estado)
	require.Len(t, c.Items, 1)
	assert.Equal(t, types.NewQuantityFromFloat64(50), c.Items[0].CantidadSistema)
	assert.Equal(t, ItemPendiente, c.Items[0].Estado)
	assert.NotNil(t, c.StartedAt)
}

func TestIniciar_EmptyScopeFails(t *testing.T) {
	env := newTestEnv(t, 50)
	env.svc.scope = emptyScope{}

	c := NewCount(TipoTotal, id.New())
	require.NoError(t, env.svc.Create(env.ctx, c))

	_, err := env.svc.Iniciar(env.ctx, c.ID)
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestCompletar_PendingItemsBlock(t *testing.T) {
	env := newTestEnv(t, 50)
	c := env.startedCount(t)

	_, err := env.svc.Completar(env.ctx, c.ID)
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidState, appErr.Code)
	assert.Equal(t, "pending_items", appErr.Details["reason"])
}

func TestAplicarAjustes_Shortage(t *testing.T) {
	env := newTestEnv(t, 50)
	c := env.startedCount(t)

	_, err := env.svc.RegistrarConteo(env.ctx, c.ID, 1, types.NewQuantityFromFloat64(47))
	require.NoError(t, err)

	completed, err := env.svc.Completar(env.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(-3), completed.TotalDiferencia)

	adjusted, err := env.svc.AplicarAjustes(env.ctx, c.ID)
	require.NoError(t, err)

	assert.Equal(t, EstadoAjustado, adjusted.Estado)
	assert.Equal(t, ItemAjustado, adjusted.Items[0].Estado)
	require.NotNil(t, adjusted.Items[0].MovementID)

	require.Len(t, env.movements.rows, 1)
	assert.Equal(t, ledger.SalidaAjuste, env.movements.rows[0].Type)
	assert.Equal(t, types.NewQuantityFromFloat64(3), env.movements.rows[0].Quantity)
	assert.Equal(t, types.NewQuantityFromFloat64(47), env.product.StockActual)
}

func TestAplicarAjustes_Surplus(t *testing.T) {
	env := newTestEnv(t, 50)
	c := env.startedCount(t)

	_, err := env.svc.RegistrarConteo(env.ctx, c.ID, 1, types.NewQuantityFromFloat64(52))
	require.NoError(t, err)
	_, err = env.svc.Completar(env.ctx, c.ID)
	require.NoError(t, err)

	_, err = env.svc.AplicarAjustes(env.ctx, c.ID)
	require.NoError(t, err)

	require.Len(t, env.movements.rows, 1)
	assert.Equal(t, ledger.EntradaAjuste, env.movements.rows[0].Type)
	assert.Equal(t, types.NewQuantityFromFloat64(52), env.product.StockActual)
}

func TestAplicarAjustes_ZeroDiffProducesNoMovement(t *testing.T) {
	env := newTestEnv(t, 50)
	c := env.startedCount(t)

	_, err := env.svc.RegistrarConteo(env.ctx, c.ID, 1, types.NewQuantityFromFloat64(50))
	require.NoError(t, err)
	_, err = env.svc.Completar(env.ctx, c.ID)
	require.NoError(t, err)

	adjusted, err := env.svc.AplicarAjustes(env.ctx, c.ID)
	require.NoError(t, err)

	assert.Equal(t, EstadoAjustado, adjusted.Estado)
	assert.Empty(t, env.movements.rows)
	assert.Equal(t, ItemContado, adjusted.Items[0].Estado,
		"zero-diff lines are not marked ajustado")
}

func TestCancelar_BlockedAfterAdjustment(t *testing.T) {
	env := newTestEnv(t, 50)
	c := env.startedCount(t)

	_, err := env.svc.RegistrarConteo(env.ctx, c.ID, 1, types.NewQuantityFromFloat64(47))
	require.NoError(t, err)
	_, err = env.svc.Completar(env.ctx, c.ID)
	require.NoError(t, err)
	_, err = env.svc.AplicarAjustes(env.ctx, c.ID)
	require.NoError(t, err)

	_, err = env.svc.Cancelar(env.ctx, c.ID, "mistake")
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidState(err))
	assert.Equal(t, types.NewQuantityFromFloat64(47), env.product.StockActual,
		"applied adjustments are permanent")
}

func TestRegistrarConteo_OnlyWhileInProgress(t *testing.T) {
	env := newTestEnv(t, 50)
	c := NewCount(TipoTotal, id.New())
	require.NoError(t, env.svc.Create(env.ctx, c))

	_, err := env.svc.RegistrarConteo(env.ctx, c.ID, 1, types.NewQuantityFromFloat64(10))
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestValidate_ScopeRequirements(t *testing.T) {
	ctx := context.Background()

	c := NewCount(TipoCategoria, id.New())
	require.Error(t, c.Validate(ctx), "category count needs a category")

	catID := id.New()
	c.CategoryID = &catID
	require.NoError(t, c.Validate(ctx))

	c = NewCount(TipoAleatorio, id.New())
	require.Error(t, c.Validate(ctx), "random count needs a sample size")
	c.SampleSize = 25
	require.NoError(t, c.Validate(ctx))
}
