package cartrecords

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	product "github.com/angelmondragon/storefront-cart/internal/products"
	"github.com/angelmondragon/storefront-cart/pkg/checkout"
	"github.com/angelmondragon/storefront-cart/pkg/db"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
)

type memoryCache struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	gets    int
	failGet bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.failGet {
		return "", errors.New("redis down")
	}
	value, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryCache) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	_, _ = fmt.Sscan(m.values[key], &n)
	n++
	m.values[key] = fmt.Sprint(n)
	return n, nil
}

func (m *memoryCache) GetInt(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return 0, errors.New("redis down")
	}
	var n int64
	if raw, ok := m.values[key]; ok {
		_, _ = fmt.Sscan(raw, &n)
	}
	return n, nil
}

func (m *memoryCache) CartCacheKey(userID string) string {
	return "sf:cart:" + userID
}

func (m *memoryCache) CartVersionKey(userID string) string {
	return "sf:cart_version:" + userID
}

// gatedProducts parks the next ActiveSnapshots call until release is closed.
type gatedProducts struct {
	ProductSource
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedProducts) arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = true
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
}

func (g *gatedProducts) ActiveSnapshots(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]cart.ProductSnapshot, error) {
	g.mu.Lock()
	armed := g.armed
	g.armed = false
	entered, release := g.entered, g.release
	g.mu.Unlock()

	// Read before parking so the result reflects the database as of this call.
	snapshots, err := g.ProductSource.ActiveSnapshots(ctx, ids)
	if armed {
		close(entered)
		<-release
	}
	return snapshots, err
}

type fixture struct {
	conn     *gorm.DB
	svc      Service
	cache    *memoryCache
	registry *prometheus.Registry
	products *product.Repository
}

func newFixture(t *testing.T, limits checkout.LineLimits) *fixture {
	t.Helper()
	return newFixtureWith(t, limits, nil)
}

func newFixtureWith(t *testing.T, limits checkout.LineLimits, wrap func(ProductSource) ProductSource) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Product{}, &models.CartRecord{}, &models.CartItem{}))

	productRepo := product.NewRepository(conn)
	products, err := product.NewService(productRepo)
	require.NoError(t, err)

	var source ProductSource = products
	if wrap != nil {
		source = wrap(products)
	}
	cache := newMemoryCache()
	reg := prometheus.NewRegistry()
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(conn),
		Tx:          db.FromGorm(conn),
		Products:    source,
		Cache:       cache,
		Limits:      limits,
		CacheTTL:    10 * time.Minute,
		CacheJitter: time.Minute,
		Metrics:     metrics.NewStorefrontMetrics(reg),
	})
	require.NoError(t, err)
	return &fixture{conn: conn, svc: svc, cache: cache, registry: reg, products: productRepo}
}

func (f *fixture) product(t *testing.T, name, price string, active bool) *models.Product {
	t.Helper()
	p, err := f.products.Create(context.Background(), &models.Product{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		IsActive: active,
	})
	require.NoError(t, err)
	return p
}

func TestReplaceMergesAndDropsLines(t *testing.T) {
	f := newFixture(t, checkout.LineLimits{})
	ctx := context.Background()
	userID := uuid.New()
	mug := f.product(t, "Mug", "12.50", true)
	tee := f.product(t, "Tee", "20.00", true)
	retired := f.product(t, "Retired", "1.00", false)

	state, err := f.svc.Replace(ctx, userID, []cart.ItemRef{
		{ProductID: mug.ID, Quantity: 1},
		{ProductID: tee.ID, Quantity: 0},
		{ProductID: retired.ID, Quantity: 2},
		{ProductID: uuid.New(), Quantity: 1},
		{ProductID: mug.ID, Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, state.Items, 1)
	assert.Equal(t, mug.ID, state.Items[0].ProductID)
	assert.Equal(t, 3, state.Items[0].Quantity)
	assert.Nil(t, state.Discount)

	got, err := f.svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, state.Refs(), got.Refs())
}

func TestReplaceIsWholesale(t *testing.T) {
	f := newFixture(t, checkout.LineLimits{})
	ctx := context.Background()
	userID := uuid.New()
	mug := f.product(t, "Mug", "12.50", true)
	tee := f.product(t, "Tee", "20.00", true)

	_, err := f.svc.Replace(ctx, userID, []cart.ItemRef{{ProductID: mug.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = f.svc.Replace(ctx, userID, []cart.ItemRef{{ProductID: tee.ID, Quantity: 4}})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, userID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, tee.ID, got.Items[0].ProductID)

	var records int64
	require.NoError(t, f.conn.Model(&models.CartRecord{}).Where("user_id = ?", userID).Count(&records).Error)
	assert.Equal(t, int64(1), records)
}

func TestGetUnknownUserIsEmpty(t *testing.T) {
	f := newFixture(t, checkout.LineLimits{})
	got, err := f.svc.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestGetUsesCacheAndReplaceInvalidates(t *testing.T) {
	f := newFixture(t, checkout.LineLimits{})
	ctx := context.Background()
	userID := uuid.New()
	mug := f.product(t, "Mug", "12.50", true)

	_, err := f.svc.Replace(ctx, userID, []cart.ItemRef{{ProductID: mug.ID, Quantity: 1}})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, userID)
	require.NoError(t, err)
	key := f.cache.CartCacheKey(userID.String())
	ttl := f.cache.ttls[key]
	assert.GreaterOrEqual(t, ttl, 10*time.Minute)
	assert.Less(t, ttl, 11*time.Minute)

	// a deactivated product is still served from cache until the next write
	require.NoError(t, f.products.SetActive(ctx, mug.ID, false))
	cached, err := f.svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, cached.Items, 1)

	_, err = f.svc.Replace(ctx, userID, nil)
	require.NoError(t, err)
	_, ok := f.cache.values[key]
	assert.False(t, ok, "replace should invalidate the cached cart")

	fresh, err := f.svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, fresh.IsEmpty())

	assert.Equal(t, float64(1), counterValue(t, f.registry, "cart_cache_lookups_total", "hit"))
	assert.Equal(t, float64(2), counterValue(t, f.registry, "cart_cache_lookups_total", "miss"))
}

func TestGetRacingReplaceDoesNotCacheOldCart(t *testing.T) {
	gate := &gatedProducts{}
	f := newFixtureWith(t, checkout.LineLimits{}, func(src ProductSource) ProductSource {
		gate.ProductSource = src
		return gate
	})
	ctx := context.Background()
	userID := uuid.New()
	mug := f.product(t, "Mug", "12.50", true)
	tee := f.product(t, "Tee", "20.00", true)

	_, err := f.svc.Replace(ctx, userID, []cart.ItemRef{{ProductID: mug.ID, Quantity: 1}})
	require.NoError(t, err)

	gate.arm()
	type result struct {
		state cart.State
		err   error
	}
	slow := make(chan result, 1)
	go func() {
		state, err := f.svc.Get(ctx, userID)
		slow <- result{state, err}
	}()
	<-gate.entered

	_, err = f.svc.Replace(ctx, userID, []cart.ItemRef{{ProductID: tee.ID, Quantity: 2}})
	require.NoError(t, err)
	close(gate.release)

	old := <-slow
	require.NoError(t, old.err)
	require.Len(t, old.state.Items, 1)
	assert.Equal(t, mug.ID, old.state.Items[0].ProductID, "the racing read saw the cart as of its load")

	for i := 0; i < 2; i++ {
		got, err := f.svc.Get(ctx, userID)
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
		assert.Equal(t, tee.ID, got.Items[0].ProductID)
		assert.Equal(t, 2, got.Items[0].Quantity)
	}
	assert.Equal(t, float64(1), counterValue(t, f.registry, "cart_cache_lookups_total", "stale"))
}

func TestGetFallsBackWhenCacheFails(t *testing.T) {
	f := newFixture(t, checkout.LineLimits{})
	ctx := context.Background()
	userID := uuid.New()
	mug := f.product(t, "Mug", "12.50", true)
	_, err := f.svc.Replace(ctx, userID, []cart.ItemRef{{ProductID: mug.ID, Quantity: 2}})
	require.NoError(t, err)

	f.cache.failGet = true
	got, err := f.svc.Get(ctx, userID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, float64(1), counterValue(t, f.registry, "cart_cache_lookups_total", "error"))
}

func TestReplaceEnforcesLimits(t *testing.T) {
	f := newFixture(t, checkout.LineLimits{MaxLines: 1, MaxQuantity: 5})
	ctx := context.Background()
	mug := f.product(t, "Mug", "12.50", true)
	tee := f.product(t, "Tee", "20.00", true)

	_, err := f.svc.Replace(ctx, uuid.New(), []cart.ItemRef{{ProductID: mug.ID, Quantity: 1}, {ProductID: tee.ID, Quantity: 1}})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Replace(ctx, uuid.New(), []cart.ItemRef{{ProductID: mug.ID, Quantity: 3}, {ProductID: mug.ID, Quantity: 3}})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestServiceRequiresUser(t *testing.T) {
	f := newFixture(t, checkout.LineLimits{})
	_, err := f.svc.Get(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
	_, err = f.svc.Replace(context.Background(), uuid.Nil, nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
}

func TestMergeRefs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	got := MergeRefs([]cart.ItemRef{
		{ProductID: b, Quantity: 1},
		{ProductID: a, Quantity: 2},
		{ProductID: b, Quantity: -1},
		{ProductID: uuid.Nil, Quantity: 4},
		{ProductID: a, Quantity: 1},
	})
	assert.Equal(t, []cart.ItemRef{{ProductID: a, Quantity: 3}}, got)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
