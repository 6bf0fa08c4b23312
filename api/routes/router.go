package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-cart/api/controllers"
	"github.com/angelmondragon/storefront-cart/api/middleware"
	"github.com/angelmondragon/storefront-cart/internal/cartrecords"
	"github.com/angelmondragon/storefront-cart/internal/discountcodes"
	"github.com/angelmondragon/storefront-cart/internal/paymentsessions"
	product "github.com/angelmondragon/storefront-cart/internal/products"
	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-cart/pkg/redis"
)

// RedisStore is the slice of the redis client the HTTP layer needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Deps carries everything the router wires into handlers. Checkout may be
// nil when no payment provider is configured.
type Deps struct {
	Products  product.Service
	Carts     cartrecords.Service
	Discounts discountcodes.Service
	Checkout  paymentsessions.Service
	Redis     RedisStore
	Pingers   map[string]controllers.Pinger
	Gatherer  prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	validatePolicy := middleware.NewRateLimitPolicy(
		"discount_validate",
		cfg.Discount.ValidateWindow,
		cfg.Discount.ValidateLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(deps.Products, logg))
			r.Get("/{productId}", controllers.ProductDetail(deps.Products, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(
				middleware.Auth(cfg.JWT, logg),
				middleware.Idempotency(deps.Redis, logg),
			)
			r.Get("/cart", controllers.CartGet(deps.Carts, logg))
			r.Put("/cart", controllers.CartReplace(deps.Carts, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.With(middleware.RateLimit(validatePolicy, deps.Redis, logg)).
				Post("/discount/validate", controllers.DiscountValidate(deps.Discounts, logg))
			r.With(middleware.Idempotency(deps.Redis, logg)).
				Post("/checkout", controllers.Checkout(deps.Checkout, logg))
		})
	})

	return r
}
