package reservation

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
	for _, m := range f.rows {
		if m.ID == movementID {
			return m, nil
		}
	}
	return nil, apperror.NewNotFound("movement", movementID.String())
}

func (f *fakeMovements) History(ctx context.Context, filter ledger.HistoryFilter) ([]*ledger.Movement, error) {
	return f.rows, nil
}

func (f *fakeMovements) SumByProduct(ctx context.Context, productID id.ID, until *time.Time) (types.Quantity, error) {
	var sum types.Quantity
	for _, m := range f.rows {
		if m.ProductID != productID {
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

func (f *fakeMovements) Turnover(ctx context.Context, from, to time.Time) ([]*ledger.TurnoverRow, error) {
	return nil, nil
}

type fakeRepo struct {
	byID map[id.ID]*Reservation
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: make(map[id.ID]*Reservation)}
}

func (f *fakeRepo) Create(ctx context.Context, r *Reservation) error {
	f.byID[r.ID] = r
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, reservationID id.ID) (*Reservation, error) {
	r, ok := f.byID[reservationID]
	if !ok {
		return nil, apperror.NewNotFound("reservation", reservationID.String())
	}
	return r, nil
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, reservationID id.ID) (*Reservation, error) {
	return f.GetByID(ctx, reservationID)
}

func (f *fakeRepo) Update(ctx context.Context, r *Reservation) error {
	f.byID[r.ID] = r
	return nil
}

func (f *fakeRepo) SumActive(ctx context.Context, productID id.ID, now time.Time) (types.Quantity, error) {
	var sum types.Quantity
	for _, r := range f.byID {
		if r.ProductID == productID && r.Estado == EstadoActiva && now.Before(r.ExpiresAt) {
			sum = sum.Add(r.Quantity)
		}
	}
	return sum, nil
}

func (f *fakeRepo) ListByProduct(ctx context.Context, productID id.ID) ([]*Reservation, error) {
	var out []*Reservation
	for _, r := range f.byID {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListByOrigin(ctx context.Context, originType OriginType, originID id.ID) ([]*Reservation, error) {
	return nil, nil
}

func (f *fakeRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	for _, r := range f.byID {
		if r.IsOverdue(now) {
			r.Transition(EstadoExpirada)
			count++
		}
	}
	return count, nil
}

type testEnv struct {
	ctx      context.Context
	svc      *Service
	repo     *fakeRepo
	products *fakeProducts
	product  *product.Product
}

func newTestEnv(t *testing.T, stock float64) *testEnv {
	t.Helper()

	p := product.NewProduct("PR-001", "Test Product", "SKU-001")
	p.ID = id.New()
	p.StockActual = types.NewQuantityFromFloat64(stock)

	products := &fakeProducts{byID: map[id.ID]*product.Product{p.ID: p}}
	movements := ledger.NewService(&fakeMovements{}, products, nil, nil)
	repo := newFakeRepo()

	svc := NewService(repo, products, movements, &folio.MockGenerator{})
	ctx := tenant.WithTxManager(context.Background(), passTxManager{})

	return &testEnv{ctx: ctx, svc: svc, repo: repo, products: products, product: p}
}

func TestReserve_WithinAvailability(t *testing.T) {
	env := newTestEnv(t, 20)

	r, err := env.svc.Reserve(env.ctx, ReserveInput{
		ProductID: env.product.ID,
		Quantity:  types.NewQuantityFromFloat64(5),
		Origin:    OriginSalesOrder,
	})
	require.NoError(t, err)

	assert.Equal(t, EstadoActiva, r.Estado)
	assert.NotEmpty(t, r.Folio)
	assert.Equal(t, types.NewQuantityFromFloat64(20), env.product.StockActual,
		"reserving must not move stock")

	avail, err := env.svc.Availability(env.ctx, env.product.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(15), avail.Available)
	assert.Equal(t, types.NewQuantityFromFloat64(5), avail.Reserved)
}

func TestReserve_RejectsOversell(t *testing.T) {
	env := newTestEnv(t, 20)

	_, err := env.svc.Reserve(env.ctx, ReserveInput{
		ProductID: env.product.ID,
		Quantity:  types.NewQuantityFromFloat64(5),
		Origin:    OriginSalesOrder,
	})
	require.NoError(t, err)

	// The aggregate still shows 20, but only 15 remain available.
	_, err = env.svc.Reserve(env.ctx, ReserveInput{
		ProductID: env.product.ID,
		Quantity:  types.NewQuantityFromFloat64(16),
		Origin:    OriginSalesOrder,
	})
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientAvailableStock, appErr.Code)
	assert.Equal(t, 15.0, appErr.Details["available"])
}

func TestConfirm_PostsSaleMovement(t *testing.T) {
	env := newTestEnv(t, 20)

	r, err := env.svc.Reserve(env.ctx, ReserveInput{
		ProductID: env.product.ID,
		Quantity:  types.NewQuantityFromFloat64(5),
		Origin:    OriginSalesOrder,
	})
	require.NoError(t, err)

	confirmed, err := env.svc.Confirm(env.ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, EstadoConfirmada, confirmed.Estado)
	require.NotNil(t, confirmed.MovementID)
	assert.Equal(t, types.NewQuantityFromFloat64(15), env.product.StockActual)

	// The confirmed hold no longer counts against availability.
	avail, err := env.svc.Availability(env.ctx, env.product.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(15), avail.Available)
	assert.True(t, avail.Reserved.IsZero())
}

func TestConfirm_ExpiredHoldFails(t *testing.T) {
	env := newTestEnv(t, 20)

	r, err := env.svc.reserveWithTTL(env.ctx, env.product.ID, 5, time.Minute)
	require.NoError(t, err)

	env.svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	_, err = env.svc.Confirm(env.ctx, r.ID)
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidState, appErr.Code)

	stored, err := env.repo.GetByID(env.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, EstadoExpirada, stored.Estado)
	assert.Equal(t, types.NewQuantityFromFloat64(20), env.product.StockActual,
		"expired holds never move stock")
}

// rollbackTxManager restores the repo to its pre-transaction state when the
// transaction function errors, the way a real rollback would.
type rollbackTxManager struct {
	repo *fakeRepo
}

func (m *rollbackTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := make(map[id.ID]Reservation, len(m.repo.byID))
	for k, v := range m.repo.byID {
		snapshot[k] = *v
	}
	if err := fn(ctx); err != nil {
		m.repo.byID = make(map[id.ID]*Reservation, len(snapshot))
		for k, v := range snapshot {
			row := v
			m.repo.byID[k] = &row
		}
		return err
	}
	return nil
}

func TestConfirm_ExpiredFlipSurvivesRollback(t *testing.T) {
	env := newTestEnv(t, 20)
	env.ctx = tenant.WithTxManager(context.Background(), &rollbackTxManager{repo: env.repo})

	r, err := env.svc.reserveWithTTL(env.ctx, env.product.ID, 5, time.Minute)
	require.NoError(t, err)

	env.svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	_, err = env.svc.Confirm(env.ctx, r.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidState(err))

	stored, err := env.repo.GetByID(env.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, EstadoExpirada, stored.Estado,
		"the expirada flip must commit even though the confirm fails")
}

func (s *Service) reserveWithTTL(ctx context.Context, productID id.ID, qty float64, ttl time.Duration) (*Reservation, error) {
	return s.Reserve(ctx, ReserveInput{
		ProductID: productID,
		Quantity:  types.NewQuantityFromFloat64(qty),
		Origin:    OriginManual,
		TTL:       ttl,
	})
}

func TestConfirm_AlreadyConfirmedFails(t *testing.T) {
	env := newTestEnv(t, 20)

	r, err := env.svc.Reserve(env.ctx, ReserveInput{
		ProductID: env.product.ID,
		Quantity:  types.NewQuantityFromFloat64(5),
		Origin:    OriginSalesOrder,
	})
	require.NoError(t, err)

	_, err = env.svc.Confirm(env.ctx, r.ID)
	require.NoError(t, err)

	_, err = env.svc.Confirm(env.ctx, r.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidState(err))
	assert.Equal(t, types.NewQuantityFromFloat64(15), env.product.StockActual,
		"a hold converts to at most one movement")
}

func TestCancel_ReleasesAvailability(t *testing.T) {
	env := newTestEnv(t, 20)

	r, err := env.svc.Reserve(env.ctx, ReserveInput{
		ProductID: env.product.ID,
		Quantity:  types.NewQuantityFromFloat64(5),
		Origin:    OriginCart,
	})
	require.NoError(t, err)

	cancelled, err := env.svc.Cancel(env.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, EstadoCancelada, cancelled.Estado)
	require.NotNil(t, cancelled.CancelledAt)

	avail, err := env.svc.Availability(env.ctx, env.product.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(20), avail.Available)
}

func TestExpireOverdue_Sweep(t *testing.T) {
	env := newTestEnv(t, 100)

	for i := 0; i < 3; i++ {
		_, err := env.svc.reserveWithTTL(env.ctx, env.product.ID, 5, time.Minute)
		require.NoError(t, err)
	}
	_, err := env.svc.reserveWithTTL(env.ctx, env.product.ID, 5, time.Hour)
	require.NoError(t, err)

	env.svc.now = func() time.Time { return time.Now().UTC().Add(10 * time.Minute) }

	count, err := env.svc.ExpireOverdue(env.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	avail, err := env.svc.Availability(env.ctx, env.product.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(5), avail.Reserved)
}
