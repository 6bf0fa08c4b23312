package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-cart/api/controllers"
	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/paymentsessions"
	product "github.com/angelmondragon/storefront-cart/internal/products"
	pkgAuth "github.com/angelmondragon/storefront-cart/pkg/auth"
	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memoryRedis struct {
	mu     sync.Mutex
	data   map[string]string
	counts map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

type stubCarts struct{}

func (stubCarts) Get(context.Context, uuid.UUID) (cart.State, error) { return cart.State{}, nil }

func (stubCarts) Replace(context.Context, uuid.UUID, []cart.ItemRef) (cart.State, error) {
	return cart.State{}, nil
}

type stubProducts struct{}

func (stubProducts) GetProduct(_ context.Context, id uuid.UUID) (*product.ProductDTO, error) {
	return &product.ProductDTO{ID: id, Name: "Mug", IsActive: true}, nil
}

func (stubProducts) ListProducts(context.Context, product.ListProductsInput) (*product.ProductListResult, error) {
	return &product.ProductListResult{Products: []product.ProductDTO{}}, nil
}

func (stubProducts) ActiveSnapshots(context.Context, []uuid.UUID) (map[uuid.UUID]cart.ProductSnapshot, error) {
	return map[uuid.UUID]cart.ProductSnapshot{}, nil
}

type stubDiscounts struct{}

func (stubDiscounts) Validate(_ context.Context, code string, _ []cart.ItemRef) (cart.Discount, error) {
	return cart.Discount{Code: code, Type: "fixed"}, nil
}

func (stubDiscounts) ValidateState(context.Context, string, cart.State) (cart.Discount, error) {
	return cart.Discount{}, nil
}

func (stubDiscounts) RecordRedemption(context.Context, string) error { return nil }

type countingCheckout struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCheckout) Create(context.Context, paymentsessions.CreateInput) (*paymentsessions.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return &paymentsessions.Session{URL: fmt.Sprintf("https://pay.example.com/%d", c.calls)}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Env: "dev"},
		JWT:      config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 60},
		Discount: config.DiscountConfig{ValidateWindow: time.Minute, ValidateLimit: 2},
	}
}

func newTestRouter(t *testing.T, checkout *countingCheckout) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "router_test_total"}))
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(testConfig(), logg, Deps{
		Products:  stubProducts{},
		Carts:     stubCarts{},
		Discounts: stubDiscounts{},
		Checkout:  checkout,
		Redis:     newMemoryRedis(),
		Pingers:   map[string]controllers.Pinger{"db": stubPinger{}},
		Gatherer:  reg,
	})
}

func bearer(t *testing.T) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(testConfig().JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), JTI: uuid.NewString()})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestRouterPublicRoutes(t *testing.T) {
	router := newTestRouter(t, &countingCheckout{})

	for _, path := range []string{"/health/live", "/health/ready", "/api/v1/products", "/api/v1/products/" + uuid.NewString()} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, rec.Code)
		}
		if rec.Header().Get("X-Request-Id") == "" {
			t.Fatalf("%s: expected request id header", path)
		}
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &countingCheckout{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "router_test_total") {
		t.Fatalf("expected registered metric in output")
	}
}

func TestRouterCartRequiresAuth(t *testing.T) {
	router := newTestRouter(t, &countingCheckout{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", bearer(t))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestRouterCartReplaceNeedsIdempotencyKey(t *testing.T) {
	router := newTestRouter(t, &countingCheckout{})

	req := httptest.NewRequest(http.MethodPut, "/api/v1/cart", strings.NewReader(`{"items":[]}`))
	req.Header.Set("Authorization", bearer(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key, got %d", rec.Code)
	}
}

func TestRouterDiscountValidateRateLimited(t *testing.T) {
	router := newTestRouter(t, &countingCheckout{})

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/discount/validate", strings.NewReader(`{"code":"SAVE","items":[]}`))
		req.RemoteAddr = "10.1.1.1:1234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		last = rec.Code
		if i < 2 && rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d", i, rec.Code)
		}
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected third attempt to be throttled, got %d", last)
	}
}

func TestRouterCheckoutReplaysByIdempotencyKey(t *testing.T) {
	checkout := &countingCheckout{}
	router := newTestRouter(t, checkout)
	body := `{"cartItems":[{"productId":"` + uuid.NewString() + `","quantity":1}]}`

	var bodies []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "checkout-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d", i, rec.Code)
		}
		bodies = append(bodies, rec.Body.String())
	}
	if checkout.calls != 1 {
		t.Fatalf("expected a single payment session, got %d", checkout.calls)
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("expected replayed body, got %q and %q", bodies[0], bodies[1])
	}
}
