package storefront

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-cart/internal/apiclient"
	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/cartstore/local"
	"github.com/angelmondragon/storefront-cart/internal/cartstore/remote"
	"github.com/angelmondragon/storefront-cart/internal/checkout"
	"github.com/angelmondragon/storefront-cart/internal/discount"
	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/internal/reconcile"
	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/db"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
)

// Session is one shopper's cart session: a single Cart Store wired to the
// local and remote adapters, the discount validator and checkout.
type Session struct {
	api        *apiclient.Client
	identity   *identity.Provider
	localDB    *db.Client
	controller *reconcile.Controller
	store      *cart.Store
	handoff    *checkout.Handoff
	notifier   *cart.ChannelNotifier
	logger     *logger.Logger
}

// NewSession builds and hydrates a session. reg may be nil.
func NewSession(ctx context.Context, cfg config.StorefrontConfig, logg *logger.Logger, reg prometheus.Registerer) (*Session, error) {
	api, err := apiclient.New(cfg.APIBaseURL, apiclient.WithTimeout(cfg.RequestTimeout), apiclient.WithLogger(logg))
	if err != nil {
		return nil, err
	}

	localDB, err := db.NewSQLite(ctx, cfg.LocalDBPath, logg)
	if err != nil {
		return nil, fmt.Errorf("open local cart: %w", err)
	}
	session, err := build(ctx, cfg, api, localDB, logg, reg)
	if err != nil {
		return nil, multierr.Append(err, localDB.Close())
	}
	return session, nil
}

func build(ctx context.Context, cfg config.StorefrontConfig, api *apiclient.Client, localDB *db.Client, logg *logger.Logger, reg prometheus.Registerer) (*Session, error) {
	ident := identity.NewProvider(nil)

	localStore, err := local.New(ctx, localDB, logg)
	if err != nil {
		return nil, err
	}
	remoteStore, err := remote.New(api, ident, remote.BreakerSettings{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, logg)
	if err != nil {
		return nil, err
	}

	notifier := cart.NewChannelNotifier(cfg.EventBuffer)
	controller, err := reconcile.New(ident, localStore, remoteStore, reconcile.Options{
		PersistTimeout: cfg.PersistTimeout,
		Notifier:       notifier,
		Metrics:        metrics.NewCartSyncMetrics(reg),
		Logger:         logg,
	})
	if err != nil {
		return nil, err
	}

	evaluator, err := discount.NewClient(api, ident)
	if err != nil {
		return nil, multierr.Append(err, controller.Close(ctx))
	}
	store, err := cart.NewStore(controller, evaluator, notifier, logg)
	if err != nil {
		return nil, multierr.Append(err, controller.Close(ctx))
	}
	handoff, err := checkout.New(api, ident, logg)
	if err != nil {
		return nil, multierr.Append(err, controller.Close(ctx))
	}

	controller.SetTransitionHandler(func(ctx context.Context) {
		if err := store.Resync(ctx); err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "storefront.resync_failed")
		}
	})
	if err := store.Hydrate(ctx); err != nil {
		return nil, multierr.Append(err, controller.Close(ctx))
	}

	return &Session{
		api:        api,
		identity:   ident,
		localDB:    localDB,
		controller: controller,
		store:      store,
		handoff:    handoff,
		notifier:   notifier,
		logger:     logg,
	}, nil
}

// Cart exposes the session's Cart Store.
func (s *Session) Cart() *cart.Store {
	return s.store
}

// Login signs the user in and reconciles the cart against their remote cart.
func (s *Session) Login(ctx context.Context, token string) error {
	if err := s.identity.Login(token); err != nil {
		return err
	}
	if userID, ok := s.identity.UserID(); ok {
		ctx = s.logger.WithUserID(ctx, userID.String())
	}
	s.logger.Info(ctx, "storefront.login")
	return s.store.Resync(ctx)
}

// Logout signs the user out. The current cart is kept and written locally.
func (s *Session) Logout(ctx context.Context) error {
	s.identity.Logout()
	s.logger.Info(ctx, "storefront.logout")
	return s.store.Resync(ctx)
}

func (s *Session) IsAuthenticated() bool {
	return s.identity.IsAuthenticated()
}

// Authority reports which adapter currently receives writes.
func (s *Session) Authority() string {
	return s.controller.Authority().String()
}

// Checkout hands the current cart to the payment session endpoint.
func (s *Session) Checkout(ctx context.Context) (string, error) {
	return s.handoff.InitiateCheckout(ctx, s.store.Snapshot())
}

// Events streams background sync failures and authority changes.
func (s *Session) Events() <-chan cart.Event {
	return s.notifier.Events()
}

// Flush waits for queued writes to land.
func (s *Session) Flush(ctx context.Context) error {
	return s.controller.Flush(ctx)
}

// Close drains pending writes and releases the local database.
func (s *Session) Close(ctx context.Context) error {
	err := s.controller.Close(ctx)
	err = multierr.Append(err, s.localDB.Close())
	s.notifier.Close()
	return err
}
