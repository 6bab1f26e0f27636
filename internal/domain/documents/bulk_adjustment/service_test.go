package bulkadjustment

import (
	"context"
	"fmt"
	"strings"
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
	"comercia/internal/domain/catalogs/location"
	"comercia/internal/domain/catalogs/product"
	"comercia/internal/domain/ledger"
)

type passTxManager struct{}

func (passTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (passTxManager) RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeProducts struct {
	byID  map[id.ID]*product.Product
	bySKU map[string][]*product.Product
}

func newFakeProducts() *fakeProducts {
	return &fakeProducts{
		byID:  make(map[id.ID]*product.Product),
		bySKU: make(map[string][]*product.Product),
	}
}

func (f *fakeProducts) add(p *product.Product) {
	f.byID[p.ID] = p
	f.bySKU[p.SKU] = append(f.bySKU[p.SKU], p)
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
	return nil
}

func (f *fakeProducts) FindBySKUOrBarcode(ctx context.Context, code string) ([]*product.Product, error) {
	return f.bySKU[code], nil
}

type fakeLocations struct {
	byCode map[string]*location.Location
}

func (f *fakeLocations) FindByCodeInSucursal(ctx context.Context, sucursalID id.ID, code string) (*location.Location, error) {
	loc, ok := f.byCode[code]
	if !ok {
		return nil, apperror.NewNotFound("location", code)
	}
	return loc, nil
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
	batches map[id.ID]*BulkAdjustment
	deleted []id.ID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{batches: make(map[id.ID]*BulkAdjustment)}
}

func (f *fakeRepo) Create(ctx context.Context, b *BulkAdjustment) error {
	f.batches[b.ID] = b
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, batchID id.ID) (*BulkAdjustment, error) {
	b, ok := f.batches[batchID]
	if !ok {
		return nil, apperror.NewNotFound("bulk adjustment", batchID.String())
	}
	return b, nil
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, batchID id.ID) (*BulkAdjustment, error) {
	return f.GetByID(ctx, batchID)
}

func (f *fakeRepo) Update(ctx context.Context, b *BulkAdjustment) error {
	f.batches[b.ID] = b
	return nil
}

func (f *fakeRepo) InsertItems(ctx context.Context, items []BulkItem) error { return nil }

func (f *fakeRepo) UpdateItem(ctx context.Context, item *BulkItem) error { return nil }

func (f *fakeRepo) Delete(ctx context.Context, batchID id.ID) error {
	delete(f.batches, batchID)
	f.deleted = append(f.deleted, batchID)
	return nil
}

func (f *fakeRepo) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*BulkAdjustment], error) {
	return domain.ListResult[*BulkAdjustment]{}, nil
}

type testEnv struct {
	ctx        context.Context
	svc        *Service
	repo       *fakeRepo
	products   *fakeProducts
	sucursalID id.ID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	products := newFakeProducts()
	for i := 1; i <= 10; i++ {
		p := product.NewProduct(fmt.Sprintf("PR-%03d", i), fmt.Sprintf("Product %d", i), fmt.Sprintf("SKU-%03d", i))
		p.ID = id.New()
		p.StockActual = types.NewQuantityFromFloat64(100)
		p.CostoUnitario = types.MustMoney("10.00")
		products.add(p)
	}

	movements := ledger.NewService(&fakeMovements{}, products, nil, nil)
	repo := newFakeRepo()
	locations := &fakeLocations{byCode: make(map[string]*location.Location)}

	svc := NewService(repo, products, locations, movements, &folio.MockGenerator{})
	ctx := tenant.WithTxManager(context.Background(), passTxManager{})

	return &testEnv{ctx: ctx, svc: svc, repo: repo, products: products, sucursalID: id.New()}
}

func buildCSV(rows ...string) string {
	return "sku,cantidad,motivo\n" + strings.Join(rows, "\n") + "\n"
}

func TestIngest_ParsesRows(t *testing.T) {
	env := newTestEnv(t)

	csvData := buildCSV(
		"SKU-001,5,merma detectada",
		"SKU-002,-3,rotura",
	)
	b, err := env.svc.Ingest(env.ctx, strings.NewReader(csvData), env.sucursalID, "ajustes.csv")
	require.NoError(t, err)

	assert.Equal(t, EstadoPendiente, b.Estado)
	assert.NotEmpty(t, b.Folio)
	require.Len(t, b.Items, 2)
	assert.Equal(t, "SKU-001", b.Items[0].SKUOrBarcode)
	assert.Equal(t, "-3", b.Items[1].QuantityRaw)
	assert.Equal(t, ItemPendiente, b.Items[0].Estado)
}

func TestIngest_MissingColumnFails(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Ingest(env.ctx, strings.NewReader("codigo,qty\nX,1\n"), env.sucursalID, "bad.csv")
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestIngest_EmptyFileFails(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Ingest(env.ctx, strings.NewReader(""), env.sucursalID, "empty.csv")
	require.Error(t, err)

	_, err = env.svc.Ingest(env.ctx, strings.NewReader("sku,cantidad\n"), env.sucursalID, "header-only.csv")
	require.Error(t, err)
}

func TestValidar_TypedRowErrors(t *testing.T) {
	env := newTestEnv(t)

	// An ambiguous code: one product's barcode equal to another's SKU
	// would do it in production; the fake store just maps two products.
	dup := product.NewProduct("PR-900", "Dup A", "SKU-DUP")
	dup.ID = id.New()
	env.products.add(dup)
	dup2 := product.NewProduct("PR-901", "Dup B", "SKU-DUP")
	dup2.ID = id.New()
	env.products.add(dup2)

	csvData := buildCSV(
		"SKU-001,5,ok",
		"SKU-001,abc,non-integer",
		"SKU-001,0,zero",
		"NO-SUCH-SKU,1,unknown",
		"SKU-DUP,1,ambiguous",
		"SKU-002,-200,would go negative",
	)
	b, err := env.svc.Ingest(env.ctx, strings.NewReader(csvData), env.sucursalID, "mixed.csv")
	require.NoError(t, err)

	validated, err := env.svc.Validar(env.ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, EstadoValidado, validated.Estado)
	assert.Equal(t, 1, validated.ValidItems)
	assert.Equal(t, 5, validated.ErrorItems)

	byLine := make(map[int]*BulkItem)
	for i := range validated.Items {
		byLine[validated.Items[i].LineNo] = &validated.Items[i]
	}
	assert.Equal(t, ItemValido, byLine[1].Estado)
	assert.Equal(t, ErrQuantityInvalid, byLine[2].ErrorCode)
	assert.Equal(t, ErrQuantityZero, byLine[3].ErrorCode)
	assert.Equal(t, ErrProductNotFound, byLine[4].ErrorCode)
	assert.Equal(t, ErrProductAmbiguous, byLine[5].ErrorCode)
	assert.Equal(t, ErrNegativeStock, byLine[6].ErrorCode)
}

func TestValidar_AllRowsBadStaysPendiente(t *testing.T) {
	env := newTestEnv(t)

	csvData := buildCSV(
		"NO-SUCH-SKU,5,unknown",
		"SKU-001,abc,non-integer",
	)
	b, err := env.svc.Ingest(env.ctx, strings.NewReader(csvData), env.sucursalID, "bad.csv")
	require.NoError(t, err)

	validated, err := env.svc.Validar(env.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, EstadoPendiente, validated.Estado)
	assert.Zero(t, validated.ValidItems)
	assert.Equal(t, 2, validated.ErrorItems)

	// The batch is not a dead end: after fixing the data it validates again.
	env.products.add(func() *product.Product {
		p := product.NewProduct("PR-999", "Late Arrival", "NO-SUCH-SKU")
		p.ID = id.New()
		p.StockActual = types.NewQuantityFromFloat64(50)
		return p
	}())
	revalidated, err := env.svc.Validar(env.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, EstadoValidado, revalidated.Estado)
	assert.Equal(t, 1, revalidated.ValidItems)
}

func TestValidar_OutOfRangeQuantityIsTyped(t *testing.T) {
	env := newTestEnv(t)

	csvData := buildCSV(
		"SKU-001,9300000000000000,fat finger",
		"SKU-002,-9300000000000000,fat finger",
	)
	b, err := env.svc.Ingest(env.ctx, strings.NewReader(csvData), env.sucursalID, "huge.csv")
	require.NoError(t, err)

	validated, err := env.svc.Validar(env.ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, validated.ValidItems)
	for i := range validated.Items {
		assert.Equal(t, ErrQuantityInvalid, validated.Items[i].ErrorCode)
	}
}

func TestAplicar_PartialFailureIsFirstClass(t *testing.T) {
	env := newTestEnv(t)

	rows := make([]string, 0, 10)
	for i := 1; i <= 7; i++ {
		rows = append(rows, fmt.Sprintf("SKU-%03d,%d,conteo ciclico", i, i))
	}
	rows = append(rows,
		"BAD-SKU-1,5,unknown",
		"BAD-SKU-2,5,unknown",
		"BAD-SKU-3,5,unknown",
	)

	b, err := env.svc.Ingest(env.ctx, strings.NewReader(buildCSV(rows...)), env.sucursalID, "batch.csv")
	require.NoError(t, err)
	_, err = env.svc.Validar(env.ctx, b.ID)
	require.NoError(t, err)

	report, err := env.svc.Aplicar(env.ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, EstadoConErrores, report.Estado)
	assert.Equal(t, 7, report.Applied)
	assert.Len(t, report.Errors, 3)

	// Applied rows really moved stock.
	for _, p := range env.products.byID {
		if p.SKU == "SKU-003" {
			assert.Equal(t, types.NewQuantityFromFloat64(103), p.StockActual)
		}
	}
}

func TestAplicar_CleanBatchBecomesAplicado(t *testing.T) {
	env := newTestEnv(t)

	b, err := env.svc.Ingest(env.ctx, strings.NewReader(buildCSV("SKU-001,5,ok", "SKU-002,-4,ok")), env.sucursalID, "clean.csv")
	require.NoError(t, err)
	_, err = env.svc.Validar(env.ctx, b.ID)
	require.NoError(t, err)

	report, err := env.svc.Aplicar(env.ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, EstadoAplicado, report.Estado)
	assert.Equal(t, 2, report.Applied)
	assert.Empty(t, report.Errors)
}

func TestAplicar_RequiresValidation(t *testing.T) {
	env := newTestEnv(t)

	b, err := env.svc.Ingest(env.ctx, strings.NewReader(buildCSV("SKU-001,5,ok")), env.sucursalID, "raw.csv")
	require.NoError(t, err)

	_, err = env.svc.Aplicar(env.ctx, b.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestCancelar_DeletesUnappliedBatch(t *testing.T) {
	env := newTestEnv(t)

	b, err := env.svc.Ingest(env.ctx, strings.NewReader(buildCSV("SKU-001,5,ok")), env.sucursalID, "cancel.csv")
	require.NoError(t, err)

	require.NoError(t, env.svc.Cancelar(env.ctx, b.ID))
	assert.Contains(t, env.repo.deleted, b.ID)
}

func TestCancelar_BlockedAfterApply(t *testing.T) {
	env := newTestEnv(t)

	b, err := env.svc.Ingest(env.ctx, strings.NewReader(buildCSV("SKU-001,5,ok")), env.sucursalID, "applied.csv")
	require.NoError(t, err)
	_, err = env.svc.Validar(env.ctx, b.ID)
	require.NoError(t, err)
	_, err = env.svc.Aplicar(env.ctx, b.ID)
	require.NoError(t, err)

	err = env.svc.Cancelar(env.ctx, b.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidState(err))
}
