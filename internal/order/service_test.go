package order

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goimay/orders/internal/retry"
)

type fakeCatalog struct {
	products map[string]*CatalogProduct
	calls    atomic.Int32
}

func (f *fakeCatalog) ResolveProduct(_ context.Context, id string) (*CatalogProduct, error) {
	f.calls.Add(1)
	p, ok := f.products[id]
	if !ok {
		return nil, NewNotFoundError("product not found: " + id)
	}
	cp := *p
	return &cp, nil
}

type fakeUsers map[string]string

func (f fakeUsers) ResolveUserID(_ context.Context, email string) (string, error) {
	id, ok := f[strings.ToLower(email)]
	if !ok {
		return "", NewNotFoundError("user not found")
	}
	return id, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *capturePublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type captureRecorder struct {
	mu  sync.Mutex
	got []string
}

func (r *captureRecorder) ObserveTransition(op, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, op+":"+result)
}

type fixture struct {
	svc     *Service
	repo    *MemRepo
	catalog *fakeCatalog
	events  *capturePublisher
	rec     *captureRecorder
}

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
)

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		repo: NewMemRepo(),
		catalog: &fakeCatalog{products: map[string]*CatalogProduct{
			"P1": {ID: "P1", Name: "Ao thun", Slug: "ao-thun", Price: dec("100000")},
			"P2": {ID: "P2", Name: "Non", Slug: "non", Price: dec("50000"), SalePrice: decimal.NewNullDecimal(dec("40000"))},
		}},
		events: &capturePublisher{},
		rec:    &captureRecorder{},
	}
	base := []Option{
		WithPublisher(f.events),
		WithRecorder(f.rec),
		WithClock(func() time.Time { return t0 }),
		WithRetry(retry.Config{MaxAttempts: 3}),
		WithTimeFormat(time.UTC, ISOTimeLayout),
	}
	f.svc = NewService(f.repo, f.catalog, fakeUsers{alice: "u-alice", bob: "u-bob"}, append(base, opts...)...)
	return f
}

func qty(n int) *int { return &n }

func checkout(items ...CreateOrderItem) CreateOrderRequest {
	return CreateOrderRequest{
		FullName: "Nguyen Van A",
		Phone:    "0901234567",
		Address:  "12 Le Loi",
		Items:    items,
	}
}

func (f *fixture) place(t *testing.T, email string) *View {
	t.Helper()
	v, err := f.svc.CreateOrder(context.Background(), email, checkout(CreateOrderItem{ProductID: "P1", Quantity: qty(1)}))
	require.NoError(t, err)
	return v
}

func TestCreateOrderSnapshotsPrices(t *testing.T) {
	f := newFixture(t)
	v, err := f.svc.CreateOrder(context.Background(), alice, checkout(
		CreateOrderItem{ProductID: "P1", Quantity: qty(2)},
		CreateOrderItem{ProductID: "P2", Quantity: qty(1)},
	))
	require.NoError(t, err)

	assert.Equal(t, StatusPendingConfirmation, v.Status)
	assert.Equal(t, PaymentCOD, v.PaymentMethod)
	assert.True(t, v.Subtotal.Equal(dec("240000")), v.Subtotal.String())
	assert.True(t, v.Total.Equal(dec("240000")))
	require.Len(t, v.Items, 2)
	assert.Equal(t, "P1", v.Items[0].ProductID)
	assert.True(t, v.Items[1].UnitPrice.Equal(dec("40000")))
	assert.True(t, strings.HasPrefix(v.ID, "GM-"))

	// later catalog changes do not touch the stored order
	f.catalog.products["P1"].Price = dec("1")
	got, err := f.svc.GetMyOrder(context.Background(), alice, v.ID)
	require.NoError(t, err)
	assert.True(t, got.Items[0].UnitPrice.Equal(dec("100000")))

	assert.Equal(t, []string{EventCreated}, f.events.types())
	assert.Contains(t, f.rec.got, "create:ok")
}

func TestCreateOrderSkipsBlankLinesAndClampsQuantity(t *testing.T) {
	f := newFixture(t)
	v, err := f.svc.CreateOrder(context.Background(), alice, checkout(
		CreateOrderItem{ProductID: "", Quantity: qty(5)},
		CreateOrderItem{ProductID: "P1", Quantity: qty(0)},
		CreateOrderItem{ProductID: "P2"},
	))
	require.NoError(t, err)
	require.Len(t, v.Items, 2)
	assert.Equal(t, 1, v.Items[0].Quantity)
	assert.Equal(t, 1, v.Items[1].Quantity)
	assert.True(t, v.Total.Equal(dec("140000")))
}

func TestCreateOrderRejectsEmptyCart(t *testing.T) {
	f := newFixture(t)
	for _, req := range []CreateOrderRequest{
		checkout(),
		checkout(CreateOrderItem{ProductID: ""}),
	} {
		_, err := f.svc.CreateOrder(context.Background(), alice, req)
		require.ErrorIs(t, err, ErrValidation)
		assert.EqualError(t, err, "cart is empty")
	}

	all, err := f.repo.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.events.types())
	assert.Zero(t, f.catalog.calls.Load())
}

func TestCreateOrderRequiresShippingInfo(t *testing.T) {
	f := newFixture(t)
	req := checkout(CreateOrderItem{ProductID: "P1"})
	req.Phone = " "
	_, err := f.svc.CreateOrder(context.Background(), alice, req)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "phone")
}

func TestCreateOrderUnknownProductWritesNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), alice, checkout(
		CreateOrderItem{ProductID: "P1"},
		CreateOrderItem{ProductID: "nope"},
	))
	require.ErrorIs(t, err, ErrNotFound)

	all, err := f.repo.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Contains(t, f.rec.got, "create:not_found")
}

func TestCreateOrderUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), "ghost@example.com", checkout(CreateOrderItem{ProductID: "P1"}))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOrderRetriesOnIDConflict(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	newGen := func() *IDGenerator {
		return &IDGenerator{now: func() time.Time { return fixed }, randN: func(int64) int64 { return 5 }}
	}
	taken := newGen().Next()

	f := newFixture(t, WithIDGenerator(newGen()))
	seedOrder(t, f.repo, taken, "u-bob", t0)

	v, err := f.svc.CreateOrder(context.Background(), alice, checkout(CreateOrderItem{ProductID: "P1"}))
	require.NoError(t, err)
	assert.NotEqual(t, taken, v.ID)

	other, err := f.repo.Get(context.Background(), taken)
	require.NoError(t, err)
	assert.Equal(t, "u-bob", other.UserID)
}

func TestOwnershipIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.place(t, alice)

	_, err := f.svc.GetMyOrder(ctx, bob, v.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.AdminConfirm(ctx, v.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkReceived(ctx, bob, v.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := f.svc.ListMyOrders(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, mine)

	mine, err = f.svc.ListMyOrders(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, v.ID, mine[0].ID)
}

func TestAdminConfirmThenCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.place(t, alice)

	got, err := f.svc.AdminConfirm(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmedPreparing, got.Status)

	got, err = f.svc.AdminCancel(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	// cancelling again succeeds but is not a new transition
	got, err = f.svc.AdminCancel(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	assert.Equal(t, []string{EventCreated, EventConfirmed, EventCancelled}, f.events.types())

	_, err = f.svc.AdminConfirm(ctx, v.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, f.rec.got, "confirm:invalid_transition")
}

func TestMarkReceivedRequiresConfirmation(t *testing.T) {
	f := newFixture(t)
	v := f.place(t, alice)

	_, err := f.svc.MarkReceived(context.Background(), alice, v.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, err := f.svc.GetMyOrder(context.Background(), alice, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingConfirmation, got.Status)
}

func TestMarkReceivedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.place(t, alice)
	_, err := f.svc.AdminConfirm(ctx, v.ID)
	require.NoError(t, err)

	first, err := f.svc.MarkReceived(ctx, alice, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, first.Status)

	second, err := f.svc.MarkReceived(ctx, alice, v.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, []string{EventCreated, EventConfirmed, EventDelivered}, f.events.types())

	_, err = f.svc.AdminConfirm(ctx, v.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.AdminCancel(ctx, v.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdminListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.place(t, alice)
	b := f.place(t, bob)
	_, err := f.svc.AdminCancel(ctx, b.ID)
	require.NoError(t, err)

	all, err := f.svc.AdminListAllOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	cancelled, err := f.svc.AdminListOrders(ctx, string(StatusCancelled))
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, b.ID, cancelled[0].ID)

	pending, err := f.svc.AdminListOrders(ctx, string(StatusPendingConfirmation))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	_, err = f.svc.AdminListOrders(ctx, "SHIPPED")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAdminMissingOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AdminConfirm(context.Background(), "GM-NOPE-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "order not found")
}

func TestCancelAndReceiveRace(t *testing.T) {
	for range 50 {
		f := newFixture(t)
		ctx := context.Background()
		v := f.place(t, alice)
		_, err := f.svc.AdminConfirm(ctx, v.ID)
		require.NoError(t, err)

		var (
			wg                 sync.WaitGroup
			cancelErr, recvErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = f.svc.AdminCancel(ctx, v.ID)
		}()
		go func() {
			defer wg.Done()
			_, recvErr = f.svc.MarkReceived(ctx, alice, v.ID)
		}()
		wg.Wait()

		got, err := f.repo.Get(ctx, v.ID)
		require.NoError(t, err)
		switch got.Status {
		case StatusCancelled:
			assert.NoError(t, cancelErr)
			assert.ErrorIs(t, recvErr, ErrInvalidTransition)
		case StatusDelivered:
			assert.NoError(t, recvErr)
			assert.ErrorIs(t, cancelErr, ErrInvalidTransition)
		default:
			t.Fatalf("unexpected status %s", got.Status)
		}
	}
}
