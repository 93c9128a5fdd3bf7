package attribution

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/internal/repository/repotest"
	"marketplace/pkg/utils"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func twoVendorOrder() *model.Order {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &model.Order{
		ID:              7,
		OrderNo:         "ORD1",
		UserID:          1,
		Status:          model.OrderStatusPending,
		ShippingName:    "Ann",
		ShippingPhone:   "555-0100",
		ShippingAddress: "1 Main St",
		CreatedAt:       created,
		UpdatedAt:       created,
		Items: []model.OrderItem{
			{ID: 1, VendorID: 10, ProductID: 100, Quantity: 2, UnitPrice: dec("10.00")},
			{ID: 2, VendorID: 20, ProductID: 200, Quantity: 1, UnitPrice: dec("99.99")},
			{ID: 3, VendorID: 10, ProductID: 101, Quantity: 3, UnitPrice: dec("5.50")},
		},
		Fulfillments: []model.OrderFulfillment{
			{VendorID: 10, Status: model.OrderStatusProcessing, UpdatedAt: created.Add(time.Hour)},
			{VendorID: 20, Status: model.OrderStatusPending, UpdatedAt: created},
		},
	}
}

func TestAttribute_SplitsItemsByVendor(t *testing.T) {
	order := twoVendorOrder()

	x, ok := Attribute(order, 10, dec("10"))
	require.True(t, ok)
	assert.Len(t, x.Items, 2)
	assert.True(t, x.Subtotal.Equal(dec("36.50")))
	assert.Equal(t, model.OrderStatusProcessing, x.Status)
	assert.Equal(t, model.OrderStatusPending, x.OrderStatus)
	assert.Equal(t, "1 Main St", x.Shipping.Address)
	assert.Equal(t, order.CreatedAt.Add(time.Hour), x.UpdatedAt)

	y, ok := Attribute(order, 20, dec("10"))
	require.True(t, ok)
	assert.Len(t, y.Items, 1)
	assert.True(t, y.Subtotal.Equal(dec("99.99")))

	assert.True(t, x.Subtotal.Add(y.Subtotal).Equal(order.ComputeTotal()))
}

func TestAttribute_Commission(t *testing.T) {
	view, ok := Attribute(twoVendorOrder(), 10, dec("15"))
	require.True(t, ok)
	assert.True(t, view.Commission.Equal(dec("5.48")), view.Commission.String())
	assert.True(t, view.NetPayout.Equal(dec("31.02")), view.NetPayout.String())
	assert.True(t, view.CommissionRate.Equal(dec("15")))
}

func TestAttribute_Idempotent(t *testing.T) {
	order := twoVendorOrder()
	first, _ := Attribute(order, 10, dec("10"))
	second, _ := Attribute(order, 10, dec("10"))
	assert.Equal(t, first, second)
	assert.Len(t, order.Items, 3)
}

func TestAttribute_NoItemsNotVisible(t *testing.T) {
	view, ok := Attribute(twoVendorOrder(), 30, dec("10"))
	assert.False(t, ok)
	assert.Nil(t, view)
}

func TestAttribute_MissingFulfillmentDefaultsPending(t *testing.T) {
	order := twoVendorOrder()
	order.Fulfillments = nil
	view, ok := Attribute(order, 20, dec("10"))
	require.True(t, ok)
	assert.Equal(t, model.OrderStatusPending, view.Status)
}

type memoryCache struct {
	entries   map[string][]byte
	sets      int
	err       error
	beforeSet func()
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}) error {
	if c.err != nil {
		return c.err
	}
	if c.beforeSet != nil {
		hook := c.beforeSet
		c.beforeSet = nil
		hook()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.sets++
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

type fixture struct {
	store  *repotest.Store
	cache  *memoryCache
	svc    Service
	x, y   *model.Vendor
	order  *model.Order
	admin  model.Actor
	actorX model.Actor
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := repotest.NewStore()
	cache := newMemoryCache()

	x := store.AddVendor(model.Vendor{UserID: 101, BusinessName: "X", Status: model.VendorStatusApproved, Plan: model.PlanBasic, CommissionRate: dec("10")})
	y := store.AddVendor(model.Vendor{UserID: 102, BusinessName: "Y", Status: model.VendorStatusApproved, Plan: model.PlanBasic, CommissionRate: dec("10")})

	order := &model.Order{
		OrderNo:         "ORD-A",
		UserID:          1,
		TotalAmount:     dec("46.50"),
		Status:          model.OrderStatusPending,
		ShippingName:    "Ann",
		ShippingPhone:   "555-0100",
		ShippingAddress: "1 Main St",
		Items: []model.OrderItem{
			{VendorID: x.ID, ProductID: 1, Quantity: 2, UnitPrice: dec("10.00")},
			{VendorID: y.ID, ProductID: 2, Quantity: 1, UnitPrice: dec("20.00")},
			{VendorID: x.ID, ProductID: 3, Quantity: 1, UnitPrice: dec("6.50")},
		},
	}
	require.NoError(t, store.Orders().Create(context.Background(), order))

	return &fixture{
		store:  store,
		cache:  cache,
		svc:    NewService(store.Orders(), store.Vendors(), cache),
		x:      x,
		y:      y,
		order:  order,
		admin:  model.Actor{UserID: 1000, Role: model.RoleAdmin},
		actorX: model.Actor{UserID: 101, Role: model.RoleVendor, VendorID: x.ID},
	}
}

func TestGetVendorOrder_OwnShare(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	view, err := f.svc.GetVendorOrder(ctx, f.actorX, f.x.ID, f.order.ID)
	require.NoError(t, err)
	assert.Len(t, view.Items, 2)
	assert.True(t, view.Subtotal.Equal(dec("26.50")))
	for _, item := range view.Items {
		assert.Equal(t, f.x.ID, item.VendorID)
	}
	assert.Equal(t, 1, f.cache.sets)
}

func TestGetVendorOrder_OtherVendorForbidden(t *testing.T) {
	f := setup(t)

	_, err := f.svc.GetVendorOrder(context.Background(), f.actorX, f.y.ID, f.order.ID)
	assert.True(t, errors.Is(err, utils.ErrForbidden))
}

func TestGetVendorOrder_AdminSeesAnyVendor(t *testing.T) {
	f := setup(t)

	view, err := f.svc.GetVendorOrder(context.Background(), f.admin, f.y.ID, f.order.ID)
	require.NoError(t, err)
	assert.True(t, view.Subtotal.Equal(dec("20.00")))
}

func TestGetVendorOrder_NotVisibleWithoutItems(t *testing.T) {
	f := setup(t)
	z := f.store.AddVendor(model.Vendor{UserID: 103, Status: model.VendorStatusApproved, CommissionRate: dec("10")})

	_, err := f.svc.GetVendorOrder(context.Background(), f.admin, z.ID, f.order.ID)
	assert.True(t, errors.Is(err, utils.ErrOrderNotFound))
}

func TestGetVendorOrder_Missing(t *testing.T) {
	f := setup(t)

	_, err := f.svc.GetVendorOrder(context.Background(), f.actorX, f.x.ID, 9999)
	assert.True(t, errors.Is(err, utils.ErrOrderNotFound))

	_, err = f.svc.GetVendorOrder(context.Background(), f.admin, 9999, f.order.ID)
	assert.True(t, errors.Is(err, utils.ErrVendorNotFound))
}

func TestGetVendorOrder_CacheHit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.GetVendorOrder(ctx, f.actorX, f.x.ID, f.order.ID)
	require.NoError(t, err)

	// a cached view is served without reloading the order
	f.store.FailOn("Orders.GetByID", errors.New("down"))
	view, err := f.svc.GetVendorOrder(ctx, f.actorX, f.x.ID, f.order.ID)
	require.NoError(t, err)
	assert.True(t, view.Subtotal.Equal(dec("26.50")))
	assert.Equal(t, 1, f.cache.sets)
}

func TestGetVendorOrder_StaleRateRecomputes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.GetVendorOrder(ctx, f.actorX, f.x.ID, f.order.ID)
	require.NoError(t, err)

	require.NoError(t, f.store.Vendors().ChangePlan(ctx, &model.VendorPlanHistory{
		VendorID: f.x.ID, FromPlan: model.PlanBasic, ToPlan: model.PlanGolden,
		FromRate: dec("10"), ToRate: dec("5"), Source: model.PlanChangeAdmin, ChangedAt: time.Now(),
	}))

	view, err := f.svc.GetVendorOrder(ctx, f.actorX, f.x.ID, f.order.ID)
	require.NoError(t, err)
	assert.True(t, view.CommissionRate.Equal(dec("5")))
	assert.True(t, view.Commission.Equal(dec("1.33")), view.Commission.String())
	assert.Equal(t, 2, f.cache.sets)
}

func TestGetVendorOrder_TransitionDuringReload(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	key := CacheKey(f.order.ID, f.x.ID)

	// the transition commits and drops the cached view after this reload
	// read the order but before it writes the view back
	f.cache.beforeSet = func() {
		_, err := f.store.Orders().ApplyTransitions(ctx, f.order.ID, []repository.FulfillmentChange{
			{VendorID: f.x.ID, From: model.OrderStatusPending, To: model.OrderStatusProcessing},
		}, time.Now())
		require.NoError(t, err)
		require.NoError(t, f.cache.Delete(ctx, key))
	}
	view, err := f.svc.GetVendorOrder(ctx, f.actorX, f.x.ID, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, view.Status)
	require.Contains(t, f.cache.entries, key)

	view, err = f.svc.GetVendorOrder(ctx, f.actorX, f.x.ID, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, view.Status)
	assert.Equal(t, model.OrderStatusPending, view.OrderStatus)
	assert.Equal(t, 2, f.cache.sets)
}

func TestGetVendorOrder_OtherVendorMoveRefreshesRollup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.GetVendorOrder(ctx, f.actorX, f.x.ID, f.order.ID)
	require.NoError(t, err)

	// with Y cancelled the order rollup follows X alone
	_, err = f.store.Orders().ApplyTransitions(ctx, f.order.ID, []repository.FulfillmentChange{
		{VendorID: f.x.ID, From: model.OrderStatusPending, To: model.OrderStatusProcessing},
		{VendorID: f.y.ID, From: model.OrderStatusPending, To: model.OrderStatusCancelled},
	}, time.Now())
	require.NoError(t, err)

	view, err := f.svc.GetVendorOrder(ctx, f.actorX, f.x.ID, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, view.Status)
	assert.Equal(t, model.OrderStatusProcessing, view.OrderStatus)
}

func TestGetVendorOrder_CacheErrorsIgnored(t *testing.T) {
	f := setup(t)
	f.cache.err = errors.New("cache down")

	view, err := f.svc.GetVendorOrder(context.Background(), f.actorX, f.x.ID, f.order.ID)
	require.NoError(t, err)
	assert.Len(t, view.Items, 2)
}

func TestGetVendorOrder_StoreFailureUnavailable(t *testing.T) {
	f := setup(t)
	f.store.FailOn("Orders.GetByID", errors.New("down"))

	_, err := f.svc.GetVendorOrder(context.Background(), f.actorX, f.x.ID, f.order.ID)
	assert.True(t, errors.Is(err, utils.ErrDependencyUnavailable))
	assert.True(t, utils.IsRetryable(err))
}

func TestListVendorOrders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	views, total, err := f.svc.ListVendorOrders(ctx, f.actorX, f.x.ID, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, views, 1)
	assert.Len(t, views[0].Items, 2)

	views, total, err = f.svc.ListVendorOrders(ctx, f.actorX, f.x.ID, model.OrderStatusShipped, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, views)

	_, _, err = f.svc.ListVendorOrders(ctx, f.actorX, f.x.ID, "lost", 1, 10)
	assert.True(t, errors.Is(err, utils.ErrInvalidParam))

	_, _, err = f.svc.ListVendorOrders(ctx, f.actorX, f.y.ID, "", 1, 10)
	assert.True(t, errors.Is(err, utils.ErrForbidden))
}
