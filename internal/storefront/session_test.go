package storefront

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/checkout"
	"github.com/angelmondragon/storefront-cart/pkg/auth"
	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/enums"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// fakeAPI serves one user's remote cart, discount validation and checkout.
type fakeAPI struct {
	mu       sync.Mutex
	catalog  map[uuid.UUID]cart.ProductSnapshot
	remote   cart.State
	puts     int
	checkout []checkout.Request
}

func newFakeAPI(products ...cart.ProductSnapshot) *fakeAPI {
	catalog := make(map[uuid.UUID]cart.ProductSnapshot, len(products))
	for _, p := range products {
		catalog[p.ID] = p
	}
	return &fakeAPI{catalog: catalog}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/api/v1/cart" && r.Method == http.MethodGet:
		writeData(w, f.remote)
	case r.URL.Path == "/api/v1/cart" && r.Method == http.MethodPut:
		var body struct {
			Items []cart.ItemRef `json:"items"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		state := cart.State{}
		for _, ref := range body.Items {
			p, ok := f.catalog[ref.ProductID]
			if !ok {
				continue
			}
			state.Items = append(state.Items, cart.LineItem{ProductID: p.ID, Product: p, Quantity: ref.Quantity})
		}
		f.remote = state
		f.puts++
		writeData(w, state)
	case r.URL.Path == "/api/v1/discount/validate":
		writeData(w, map[string]any{"discount": map[string]any{"code": "SAVE10", "type": "percentage", "value": "10"}})
	case r.URL.Path == "/api/v1/checkout":
		var req checkout.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.checkout = append(f.checkout, req)
		writeData(w, map[string]string{"url": "https://pay.example.com/s/1"})
	case strings.HasPrefix(r.URL.Path, "/api/v1/products/"):
		id, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/api/v1/products/"))
		p, ok := f.catalog[id]
		if err != nil || !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": "NOT_FOUND", "message": "product not found"}})
			return
		}
		writeData(w, map[string]any{"id": p.ID, "name": p.Name, "price": p.Price, "category": p.Category, "isActive": true})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) snapshot() (cart.State, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote.Clone(), f.puts
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func newTestSession(t *testing.T, baseURL, dbPath string) *Session {
	t.Helper()
	session, err := NewSession(context.Background(), config.StorefrontConfig{
		APIBaseURL:         baseURL,
		LocalDBPath:        dbPath,
		RequestTimeout:     2 * time.Second,
		PersistTimeout:     2 * time.Second,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: time.Second,
		EventBuffer:        8,
	}, logger.Nop(), prometheus.NewRegistry())
	require.NoError(t, err)
	return session
}

func mintToken(t *testing.T) string {
	t.Helper()
	cfg := config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 30}
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{UserID: uuid.New()})
	require.NoError(t, err)
	return token
}

func TestSessionLoginSeedsEmptyRemoteCart(t *testing.T) {
	mug := cart.ProductSnapshot{ID: uuid.New(), Name: "Mug", Price: decimal.NewFromInt(12)}
	tee := cart.ProductSnapshot{ID: uuid.New(), Name: "Tee", Price: decimal.NewFromInt(20)}
	api := newFakeAPI(mug, tee)
	srv := httptest.NewServer(api)
	defer srv.Close()

	ctx := context.Background()
	session := newTestSession(t, srv.URL, filepath.Join(t.TempDir(), "cart.db"))
	defer func() { _ = session.Close(ctx) }()

	store := session.Cart()
	assert.Equal(t, enums.StoreStatusReady, store.Status())
	require.NoError(t, store.AddItem(mug, 1))
	require.NoError(t, store.AddItem(tee, 2))
	require.NoError(t, session.Flush(ctx))
	assert.Equal(t, enums.CartAuthorityLocal.String(), session.Authority())

	require.NoError(t, session.Login(ctx, mintToken(t)))
	assert.Equal(t, enums.CartAuthorityRemote.String(), session.Authority())

	remoteState, puts := api.snapshot()
	assert.Equal(t, 1, puts)
	require.Len(t, remoteState.Items, 2)
	assert.Equal(t, 3, store.Snapshot().ItemCount())
}

func TestSessionPersistsLocallyAcrossRestarts(t *testing.T) {
	mug := cart.ProductSnapshot{ID: uuid.New(), Name: "Mug", Price: decimal.NewFromInt(12)}
	srv := httptest.NewServer(newFakeAPI(mug))
	defer srv.Close()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "cart.db")

	first := newTestSession(t, srv.URL, dbPath)
	require.NoError(t, first.Cart().AddItem(mug, 4))
	require.NoError(t, first.Close(ctx))

	second := newTestSession(t, srv.URL, dbPath)
	defer func() { _ = second.Close(ctx) }()
	state := second.Cart().Snapshot()
	require.Len(t, state.Items, 1)
	assert.Equal(t, 4, state.Items[0].Quantity)
}

func TestSessionDiscountAndCheckout(t *testing.T) {
	mug := cart.ProductSnapshot{ID: uuid.New(), Name: "Mug", Price: decimal.NewFromInt(100)}
	api := newFakeAPI(mug)
	srv := httptest.NewServer(api)
	defer srv.Close()

	ctx := context.Background()
	session := newTestSession(t, srv.URL, filepath.Join(t.TempDir(), "cart.db"))
	defer func() { _ = session.Close(ctx) }()

	_, err := session.Checkout(ctx)
	require.ErrorIs(t, err, checkout.ErrEmptyCart)

	store := session.Cart()
	require.NoError(t, store.AddItem(mug, 1))
	require.NoError(t, store.ApplyDiscount(ctx, "save10"))
	state := store.Snapshot()
	require.NotNil(t, state.Discount)
	assert.True(t, state.Discount.Amount.Equal(decimal.NewFromInt(10)))
	assert.True(t, state.Total().Equal(decimal.NewFromInt(90)))

	url, err := session.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/s/1", url)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.checkout, 1)
	assert.Equal(t, "SAVE10", api.checkout[0].DiscountCode)
}

func TestSessionLogoutKeepsCart(t *testing.T) {
	mug := cart.ProductSnapshot{ID: uuid.New(), Name: "Mug", Price: decimal.NewFromInt(12)}
	srv := httptest.NewServer(newFakeAPI(mug))
	defer srv.Close()

	ctx := context.Background()
	session := newTestSession(t, srv.URL, filepath.Join(t.TempDir(), "cart.db"))
	defer func() { _ = session.Close(ctx) }()

	require.NoError(t, session.Login(ctx, mintToken(t)))
	require.NoError(t, session.Cart().AddItem(mug, 2))
	require.NoError(t, session.Flush(ctx))

	require.NoError(t, session.Logout(ctx))
	assert.False(t, session.IsAuthenticated())
	assert.Equal(t, enums.CartAuthorityLocal.String(), session.Authority())
	assert.Equal(t, 2, session.Cart().Snapshot().ItemCount())
}

func TestSessionAddProductUsesCatalog(t *testing.T) {
	mug := cart.ProductSnapshot{ID: uuid.New(), Name: "Mug", Price: decimal.RequireFromString("12.50"), Category: "kitchen"}
	srv := httptest.NewServer(newFakeAPI(mug))
	defer srv.Close()

	ctx := context.Background()
	session := newTestSession(t, srv.URL, filepath.Join(t.TempDir(), "cart.db"))
	defer func() { _ = session.Close(ctx) }()

	require.NoError(t, session.AddProduct(ctx, mug.ID, 2))
	state := session.Cart().Snapshot()
	require.Len(t, state.Items, 1)
	assert.Equal(t, "kitchen", state.Items[0].Product.Category)
	assert.True(t, state.Subtotal().Equal(decimal.NewFromInt(25)))

	err := session.AddProduct(ctx, uuid.New(), 1)
	require.Error(t, err)
	assert.Len(t, session.Cart().Snapshot().Items, 1)
}
