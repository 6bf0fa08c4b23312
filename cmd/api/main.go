package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/storefront-cart/api/controllers"
	"github.com/angelmondragon/storefront-cart/api/routes"
	"github.com/angelmondragon/storefront-cart/internal/cartrecords"
	"github.com/angelmondragon/storefront-cart/internal/discountcodes"
	"github.com/angelmondragon/storefront-cart/internal/paymentsessions"
	product "github.com/angelmondragon/storefront-cart/internal/products"
	"github.com/angelmondragon/storefront-cart/pkg/checkout"
	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/db"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
	"github.com/angelmondragon/storefront-cart/pkg/migrate"
	"github.com/angelmondragon/storefront-cart/pkg/redis"
	"github.com/angelmondragon/storefront-cart/pkg/square"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	storefrontMetrics := metrics.NewStorefrontMetrics(reg)

	limits := checkout.LineLimits{MaxLines: cfg.Cart.MaxLineItems, MaxQuantity: cfg.Cart.MaxQuantity}

	productService, err := product.NewService(product.NewRepository(dbClient.DB()))
	requireService(ctx, logg, "product", err)

	cartService, err := cartrecords.NewService(cartrecords.ServiceParams{
		Repo:        cartrecords.NewRepository(dbClient.DB()),
		Tx:          dbClient,
		Products:    productService,
		Cache:       redisClient,
		Limits:      limits,
		CacheTTL:    cfg.Cart.CacheTTL,
		CacheJitter: cfg.Cart.CacheJitter,
		Metrics:     storefrontMetrics,
		Logger:      logg,
	})
	requireService(ctx, logg, "cart records", err)

	discountService, err := discountcodes.NewService(discountcodes.ServiceParams{
		Registry: discountcodes.NewRegistry(discountcodes.NewRepository(dbClient.DB()), redisClient, logg),
		Counters: redisClient,
		Products: productService,
		Clock:    time.Now,
		Metrics:  storefrontMetrics,
		Logger:   logg,
	})
	requireService(ctx, logg, "discount codes", err)

	var checkoutService paymentsessions.Service
	if cfg.Square.Enabled() {
		squareClient, err := square.NewClient(ctx, cfg.Square, logg)
		requireService(ctx, logg, "square", err)

		checkoutService, err = paymentsessions.NewService(paymentsessions.ServiceParams{
			Products:  productService,
			Discounts: discountService,
			Links:     squareClient,
			Limits:    limits,
			Metrics:   storefrontMetrics,
			Logger:    logg,
		})
		requireService(ctx, logg, "payment sessions", err)
	} else {
		logg.Warn(ctx, "square credentials missing; checkout disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(serverCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Products:  productService,
			Carts:     cartService,
			Discounts: discountService,
			Checkout:  checkoutService,
			Redis:     redisClient,
			Pingers: map[string]controllers.Pinger{
				"db":    dbClient,
				"redis": redisClient,
			},
			Gatherer: reg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(serverCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(serverCtx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serverCtx, "graceful shutdown failed", err)
		}
	}
}

func requireService(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(ctx, "service", name), "failed to create service", err)
	os.Exit(1)
}
