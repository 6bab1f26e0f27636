package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comercia/internal/core/apperror"
	"comercia/internal/core/id"
	"comercia/internal/core/tenant"
	"comercia/internal/core/types"
	"comercia/internal/domain"
	"comercia/internal/domain/catalogs/location"
	"comercia/internal/domain/catalogs/product"
)

// passTxManager runs the function directly; nesting semantics are the
// concern of the postgres implementation, not of the domain logic.
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
	rows []*Movement
}

func (f *fakeMovements) Insert(ctx context.Context, m *Movement) error {
	f.rows = append(f.rows, m)
	return nil
}

func (f *fakeMovements) InsertBatch(ctx context.Context, movements []*Movement) error {
	f.rows = append(f.rows, movements...)
	return nil
}

func (f *fakeMovements) GetByID(ctx context.Context, movementID id.ID) (*Movement, error) {
	for _, m := range f.rows {
		if m.ID == movementID {
			return m, nil
		}
	}
	return nil, apperror.NewNotFound("movement", movementID.String())
}

func (f *fakeMovements) History(ctx context.Context, filter HistoryFilter) ([]*Movement, error) {
	return f.rows, nil
}

func (f *fakeMovements) SumByProduct(ctx context.Context, productID id.ID, until *time.Time) (types.Quantity, error) {
	var sum types.Quantity
	for _, m := range f.rows {
		if m.ProductID != productID {
			continue
		}
		if until != nil && m.CreatedAt.After(*until) {
			continue
		}
		if m.Type.Sign() < 0 {
			sum = sum.Sub(m.Quantity)
		} else {
			sum = sum.Add(m.Quantity)
		}
	}
	return sum, nil
}

func (f *fakeMovements) Turnover(ctx context.Context, from, to time.Time) ([]*TurnoverRow, error) {
	return nil, nil
}

type fakeLocations struct {
	byID map[id.ID]*location.Location
}

func (f *fakeLocations) GetForUpdate(ctx context.Context, locID id.ID) (*location.Location, error) {
	loc, ok := f.byID[locID]
	if !ok {
		return nil, apperror.NewNotFound("location", locID.String())
	}
	return loc, nil
}

func (f *fakeLocations) AdjustOccupied(ctx context.Context, locID id.ID, delta types.Quantity) error {
	loc := f.byID[locID]
	loc.Occupied = loc.Occupied.Add(delta)
	return nil
}

// The remaining location.Repository methods are not exercised by these tests.

func (f *fakeLocations) Create(ctx context.Context, loc *location.Location) error {
	panic("not implemented in fake")
}

func (f *fakeLocations) GetByID(ctx context.Context, locID id.ID) (*location.Location, error) {
	panic("not implemented in fake")
}

func (f *fakeLocations) GetByCode(ctx context.Context, code string) (*location.Location, error) {
	panic("not implemented in fake")
}

func (f *fakeLocations) Update(ctx context.Context, loc *location.Location) error {
	panic("not implemented in fake")
}

func (f *fakeLocations) Delete(ctx context.Context, locID id.ID) error {
	panic("not implemented in fake")
}

func (f *fakeLocations) SetDeletionMark(ctx context.Context, locID id.ID, marked bool) error {
	panic("not implemented in fake")
}

func (f *fakeLocations) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*location.Location], error) {
	panic("not implemented in fake")
}

func (f *fakeLocations) Exists(ctx context.Context, locID id.ID) (bool, error) {
	panic("not implemented in fake")
}

func (f *fakeLocations) ExistsByCode(ctx context.Context, code string) (bool, error) {
	panic("not implemented in fake")
}

func (f *fakeLocations) GetTree(ctx context.Context, rootID *id.ID) ([]*location.Location, error) {
	panic("not implemented in fake")
}

func (f *fakeLocations) GetPath(ctx context.Context, locID id.ID) ([]*location.Location, error) {
	panic("not implemented in fake")
}

func (f *fakeLocations) FindByCodeInSucursal(ctx context.Context, sucursalID id.ID, code string) (*location.Location, error) {
	panic("not implemented in fake")
}

func (f *fakeLocations) GetDescendants(ctx context.Context, rootID id.ID) ([]*location.Location, error) {
	panic("not implemented in fake")
}

func (f *fakeLocations) FindWithCapacity(ctx context.Context, sucursalID id.ID, qty types.Quantity) ([]*location.Location, error) {
	panic("not implemented in fake")
}

type bucketKey struct {
	loc  id.ID
	prod id.ID
	lot  string
}

type fakeLocationStock struct {
	buckets map[bucketKey]types.Quantity
}

func bucketKeyFor(locID, productID id.ID, lot *string) bucketKey {
	k := bucketKey{loc: locID, prod: productID}
	if lot != nil {
		k.lot = *lot
	}
	return k
}

func (f *fakeLocationStock) GetForUpdate(ctx context.Context, locID, productID id.ID, lot *string) (*location.LocationStock, error) {
	qty := f.buckets[bucketKeyFor(locID, productID, lot)]
	return &location.LocationStock{
		LocationID: locID,
		ProductID:  productID,
		Lot:        lot,
		Quantity:   qty,
	}, nil
}

func (f *fakeLocationStock) Upsert(ctx context.Context, locID, productID id.ID, lot *string, delta types.Quantity) error {
	if f.buckets == nil {
		f.buckets = make(map[bucketKey]types.Quantity)
	}
	k := bucketKeyFor(locID, productID, lot)
	f.buckets[k] = f.buckets[k].Add(delta)
	return nil
}

func (f *fakeLocationStock) ListByLocation(ctx context.Context, locID id.ID) ([]*location.LocationStock, error) {
	return nil, nil
}

func (f *fakeLocationStock) ListByProduct(ctx context.Context, productID id.ID) ([]*location.LocationStock, error) {
	return nil, nil
}

func (f *fakeLocationStock) TotalByProduct(ctx context.Context, productID id.ID) (types.Quantity, error) {
	var total types.Quantity
	for _, qty := range f.buckets {
		total = total.Add(qty)
	}
	return total, nil
}

func testProduct(stock float64) *product.Product {
	p := product.NewProduct("PR-001", "Test Product", "SKU-001")
	p.ID = id.New()
	p.StockActual = types.NewQuantityFromFloat64(stock)
	p.CostoUnitario = types.MustMoney("10.00")
	return p
}

func newTestService(products *fakeProducts, movements *fakeMovements, locs *fakeLocations, locStock *fakeLocationStock) (*Service, context.Context) {
	svc := NewService(movements, products, locs, locStock)
	ctx := tenant.WithTxManager(context.Background(), passTxManager{})
	return svc, ctx
}

func TestApply_InboundUpdatesAggregate(t *testing.T) {
	p := testProduct(0)
	products := &fakeProducts{byID: map[id.ID]*product.Product{p.ID: p}}
	movements := &fakeMovements{}
	svc, ctx := newTestService(products, movements, nil, nil)

	m, err := svc.Apply(ctx, ApplyInput{
		ProductID: p.ID,
		Type:      EntradaCompra,
		Quantity:  types.NewQuantityFromFloat64(10),
		UnitCost:  types.MustMoney("25.50"),
	})
	require.NoError(t, err)

	assert.Equal(t, types.Quantity(0), m.StockBefore)
	assert.Equal(t, types.NewQuantityFromFloat64(10), m.StockAfter)
	assert.True(t, m.TotalValue.Equal(types.MustMoney("255.00")), "got %s", m.TotalValue)
	assert.Equal(t, types.NewQuantityFromFloat64(10), p.StockActual)
	require.Len(t, movements.rows, 1)
}

func TestApply_OutboundRejectsInsufficientStock(t *testing.T) {
	p := testProduct(5)
	products := &fakeProducts{byID: map[id.ID]*product.Product{p.ID: p}}
	movements := &fakeMovements{}
	svc, ctx := newTestService(products, movements, nil, nil)

	_, err := svc.Apply(ctx, ApplyInput{
		ProductID: p.ID,
		Type:      SalidaVenta,
		Quantity:  types.NewQuantityFromFloat64(8),
	})
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Empty(t, movements.rows, "rejected movements must not be recorded")
	assert.Equal(t, types.NewQuantityFromFloat64(5), p.StockActual)
}

func TestApply_OutboundToExactZero(t *testing.T) {
	p := testProduct(5)
	products := &fakeProducts{byID: map[id.ID]*product.Product{p.ID: p}}
	movements := &fakeMovements{}
	svc, ctx := newTestService(products, movements, nil, nil)

	m, err := svc.Apply(ctx, ApplyInput{
		ProductID: p.ID,
		Type:      SalidaVenta,
		Quantity:  types.NewQuantityFromFloat64(5),
	})
	require.NoError(t, err)
	assert.True(t, m.StockAfter.IsZero())
}

func TestApply_UnknownTypeRejected(t *testing.T) {
	p := testProduct(5)
	products := &fakeProducts{byID: map[id.ID]*product.Product{p.ID: p}}
	svc, ctx := newTestService(products, &fakeMovements{}, nil, nil)

	_, err := svc.Apply(ctx, ApplyInput{
		ProductID: p.ID,
		Type:      MovementType("prestamo"),
		Quantity:  types.NewQuantityFromFloat64(1),
	})
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestApply_InactiveProductRejected(t *testing.T) {
	p := testProduct(5)
	p.IsActive = false
	products := &fakeProducts{byID: map[id.ID]*product.Product{p.ID: p}}
	svc, ctx := newTestService(products, &fakeMovements{}, nil, nil)

	_, err := svc.Apply(ctx, ApplyInput{
		ProductID: p.ID,
		Type:      EntradaCompra,
		Quantity:  types.NewQuantityFromFloat64(1),
	})
	require.Error(t, err)
}

func TestApply_LocationBucketFollowsAggregate(t *testing.T) {
	p := testProduct(0)
	loc := location.NewLocation("UB-001", "Shelf A1", id.New(), location.TypeShelf)
	loc.ID = id.New()

	products := &fakeProducts{byID: map[id.ID]*product.Product{p.ID: p}}
	movements := &fakeMovements{}
	locs := &fakeLocations{byID: map[id.ID]*location.Location{loc.ID: loc}}
	locStock := &fakeLocationStock{}
	svc, ctx := newTestService(products, movements, locs, locStock)

	_, err := svc.Apply(ctx, ApplyInput{
		ProductID:  p.ID,
		Type:       EntradaCompra,
		Quantity:   types.NewQuantityFromFloat64(10),
		LocationID: &loc.ID,
	})
	require.NoError(t, err)

	bucket, err := locStock.GetForUpdate(ctx, loc.ID, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(10), bucket.Quantity)
	assert.Equal(t, types.NewQuantityFromFloat64(10), loc.Occupied)

	// Outbound larger than the bucket fails even though the aggregate covers it.
	p.StockActual = types.NewQuantityFromFloat64(100)
	_, err = svc.Apply(ctx, ApplyInput{
		ProductID:  p.ID,
		Type:       SalidaVenta,
		Quantity:   types.NewQuantityFromFloat64(50),
		LocationID: &loc.ID,
	})
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientLocationStock, appErr.Code)
}

func TestApply_BlockedLocationRejectsInbound(t *testing.T) {
	p := testProduct(0)
	loc := location.NewLocation("UB-002", "Blocked bin", id.New(), location.TypeBin)
	loc.ID = id.New()
	loc.Bloqueada = true

	products := &fakeProducts{byID: map[id.ID]*product.Product{p.ID: p}}
	locs := &fakeLocations{byID: map[id.ID]*location.Location{loc.ID: loc}}
	svc, ctx := newTestService(products, &fakeMovements{}, locs, &fakeLocationStock{})

	_, err := svc.Apply(ctx, ApplyInput{
		ProductID:  p.ID,
		Type:       EntradaCompra,
		Quantity:   types.NewQuantityFromFloat64(1),
		LocationID: &loc.ID,
	})
	require.Error(t, err)
}

func TestApplyWithCost_UpdatesUnitCost(t *testing.T) {
	p := testProduct(0)
	products := &fakeProducts{byID: map[id.ID]*product.Product{p.ID: p}}
	svc, ctx := newTestService(products, &fakeMovements{}, nil, nil)

	_, err := svc.ApplyWithCost(ctx, ApplyInput{
		ProductID: p.ID,
		Type:      EntradaCompra,
		Quantity:  types.NewQuantityFromFloat64(4),
		UnitCost:  types.MustMoney("12.25"),
	}, types.MustMoney("12.25"))
	require.NoError(t, err)
	assert.True(t, p.CostoUnitario.Equal(types.MustMoney("12.25")))
}

func TestRecordTransfer_NetsToZero(t *testing.T) {
	p := testProduct(30)
	from := id.New()
	to := id.New()

	products := &fakeProducts{byID: map[id.ID]*product.Product{p.ID: p}}
	movements := &fakeMovements{}
	svc, ctx := newTestService(products, movements, nil, nil)

	err := svc.RecordTransfer(ctx, p.ID, from, to, types.NewQuantityFromFloat64(7), "TR-0001")
	require.NoError(t, err)

	require.Len(t, movements.rows, 2)
	assert.Equal(t, SalidaTransferencia, movements.rows[0].Type)
	assert.Equal(t, EntradaTransferencia, movements.rows[1].Type)
	assert.Equal(t, types.NewQuantityFromFloat64(30), p.StockActual, "transfer must not change the aggregate")

	sum, err := movements.SumByProduct(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}

func TestVerifyProductBalance_DetectsDrift(t *testing.T) {
	p := testProduct(0)
	products := &fakeProducts{byID: map[id.ID]*product.Product{p.ID: p}}
	movements := &fakeMovements{}
	svc, ctx := newTestService(products, movements, nil, nil)

	_, err := svc.Apply(ctx, ApplyInput{
		ProductID: p.ID,
		Type:      EntradaInicial,
		Quantity:  types.NewQuantityFromFloat64(12),
	})
	require.NoError(t, err)

	report, err := svc.VerifyProductBalance(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)

	// Simulate drift: someone wrote the aggregate outside the ledger.
	p.StockActual = types.NewQuantityFromFloat64(15)

	report, err = svc.VerifyProductBalance(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	assert.Equal(t, types.NewQuantityFromFloat64(12), report.LedgerSum)
}

func TestStockAt_ReconstructsHistoricBalance(t *testing.T) {
	p := testProduct(0)
	products := &fakeProducts{byID: map[id.ID]*product.Product{p.ID: p}}
	movements := &fakeMovements{}
	svc, ctx := newTestService(products, movements, nil, nil)

	for _, step := range []struct {
		typ MovementType
		qty float64
	}{
		{EntradaInicial, 100},
		{SalidaVenta, 30},
		{EntradaCompra, 20},
	} {
		_, err := svc.Apply(ctx, ApplyInput{
			ProductID: p.ID,
			Type:      step.typ,
			Quantity:  types.NewQuantityFromFloat64(step.qty),
		})
		require.NoError(t, err)
	}

	balance, err := svc.StockAt(ctx, p.ID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(90), balance)
	assert.Equal(t, types.NewQuantityFromFloat64(90), p.StockActual)
}
