package cartrecords

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/pkg/checkout"
	"github.com/angelmondragon/storefront-cart/pkg/db"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
	"github.com/angelmondragon/storefront-cart/pkg/redis"
)

// Service reads and replaces a user's server cart.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (cart.State, error)
	Replace(ctx context.Context, userID uuid.UUID, items []cart.ItemRef) (cart.State, error)
}

// ProductSource resolves product ids to current, active snapshots.
type ProductSource interface {
	ActiveSnapshots(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]cart.ProductSnapshot, error)
}

// Cache is the read-through cache for expanded carts. Entries are stamped with
// the user's cart version so a read that raced a write cannot be served later.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	GetInt(ctx context.Context, key string) (int64, error)
	CartCacheKey(userID string) string
	CartVersionKey(userID string) string
}

type cachedCart struct {
	Version int64      `json:"version"`
	State   cart.State `json:"state"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups the service collaborators. Cache and Metrics are optional.
type ServiceParams struct {
	Repo        *Repository
	Tx          txRunner
	Products    ProductSource
	Cache       Cache
	Limits      checkout.LineLimits
	CacheTTL    time.Duration
	CacheJitter time.Duration
	Metrics     *metrics.StorefrontMetrics
	Logger      *logger.Logger
}

type service struct {
	repo     *Repository
	tx       txRunner
	products ProductSource
	cache    Cache
	limits   checkout.LineLimits
	ttl      time.Duration
	jitter   time.Duration
	metrics  *metrics.StorefrontMetrics
	logger   *logger.Logger
	group    singleflight.Group
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product source required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		products: params.Products,
		cache:    params.Cache,
		limits:   params.Limits,
		ttl:      params.CacheTTL,
		jitter:   params.CacheJitter,
		metrics:  params.Metrics,
		logger:   params.Logger,
	}, nil
}

// Get returns the expanded cart. Lines whose product is missing or inactive
// are dropped. A user with no cart gets an empty one.
func (s *service) Get(ctx context.Context, userID uuid.UUID) (cart.State, error) {
	if userID == uuid.Nil {
		return cart.State{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}

	key, version, cacheable := "", int64(0), false
	if s.cache != nil {
		key = s.cache.CartCacheKey(userID.String())
		version, cacheable = s.cartVersion(ctx, userID)
		if cacheable {
			if state, ok := s.readCache(ctx, key, version); ok {
				return state, nil
			}
		}
	}

	// Loads are shared per version; a read that starts after a write never
	// joins a load that began before it.
	flight := fmt.Sprintf("%s:%d", userID, version)
	value, err, _ := s.group.Do(flight, func() (any, error) {
		state, err := s.load(ctx, userID)
		if err != nil {
			return cart.State{}, err
		}
		if cacheable {
			s.writeCache(ctx, key, version, state)
		}
		return state, nil
	})
	if err != nil {
		return cart.State{}, err
	}
	return value.(cart.State).Clone(), nil
}

// Replace stores items as the user's whole cart. Duplicate product ids are
// merged, non-positive quantities dropped, and unknown or inactive products
// skipped.
func (s *service) Replace(ctx context.Context, userID uuid.UUID, items []cart.ItemRef) (cart.State, error) {
	if userID == uuid.Nil {
		return cart.State{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}

	refs := MergeRefs(items)
	lines := make([]checkout.LineInput, 0, len(refs))
	ids := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		lines = append(lines, checkout.LineInput{ProductID: ref.ProductID, Quantity: ref.Quantity})
		ids = append(ids, ref.ProductID)
	}
	if err := checkout.ValidateLineLimits(lines, s.limits); err != nil {
		return cart.State{}, err
	}

	snapshots, err := s.products.ActiveSnapshots(ctx, ids)
	if err != nil {
		return cart.State{}, err
	}
	state := expand(refs, snapshots)

	record, err := s.ensureRecord(ctx, userID)
	if err != nil {
		return cart.State{}, err
	}

	rows := make([]models.CartItem, 0, len(state.Items))
	for i, item := range state.Items {
		rows = append(rows, models.CartItem{ProductID: item.ProductID, Quantity: item.Quantity, Position: i})
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).ReplaceItems(ctx, record.ID, rows)
	})
	if err != nil {
		return cart.State{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace cart items")
	}

	s.invalidate(ctx, userID)
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"user_id": userID.String(),
		"lines":   len(state.Items),
		"dropped": len(refs) - len(state.Items),
	}), "cart_records.replaced")
	return state, nil
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (cart.State, error) {
	record, err := s.repo.FindByUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cart.State{}, nil
	}
	if err != nil {
		return cart.State{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	refs := make([]cart.ItemRef, 0, len(record.Items))
	ids := make([]uuid.UUID, 0, len(record.Items))
	for _, item := range record.Items {
		refs = append(refs, cart.ItemRef{ProductID: item.ProductID, Quantity: item.Quantity})
		ids = append(ids, item.ProductID)
	}
	snapshots, err := s.products.ActiveSnapshots(ctx, ids)
	if err != nil {
		return cart.State{}, err
	}
	return expand(refs, snapshots), nil
}

func (s *service) ensureRecord(ctx context.Context, userID uuid.UUID) (*models.CartRecord, error) {
	record, err := s.repo.FindByUser(ctx, userID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	record, err = s.repo.Create(ctx, &models.CartRecord{UserID: userID})
	if err == nil {
		return record, nil
	}
	// Lost a race with a concurrent first write for the same user.
	if db.IsUniqueViolation(err, "") {
		record, err = s.repo.FindByUser(ctx, userID)
		if err == nil {
			return record, nil
		}
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
}

func (s *service) cartVersion(ctx context.Context, userID uuid.UUID) (int64, bool) {
	version, err := s.cache.GetInt(ctx, s.cache.CartVersionKey(userID.String()))
	if err != nil {
		s.metrics.IncCartCache("error")
		s.logger.Warn(s.logger.WithField(ctx, "error", err.Error()), "cart_records.cache_version_failed")
		return 0, false
	}
	return version, true
}

func (s *service) readCache(ctx context.Context, key string, version int64) (cart.State, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if redis.IsMiss(err) {
			s.metrics.IncCartCache("miss")
		} else {
			s.metrics.IncCartCache("error")
			s.logger.Warn(s.logger.WithField(ctx, "error", err.Error()), "cart_records.cache_read_failed")
		}
		return cart.State{}, false
	}
	var entry cachedCart
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		s.metrics.IncCartCache("error")
		return cart.State{}, false
	}
	if entry.Version != version {
		s.metrics.IncCartCache("stale")
		return cart.State{}, false
	}
	s.metrics.IncCartCache("hit")
	return entry.State, true
}

func (s *service) writeCache(ctx context.Context, key string, version int64, state cart.State) {
	if s.cache == nil || key == "" || s.ttl <= 0 {
		return
	}
	payload, err := json.Marshal(cachedCart{Version: version, State: state})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(payload), s.cacheTTL()); err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "error", err.Error()), "cart_records.cache_write_failed")
	}
}

// invalidate bumps the cart version before dropping the entry, so a load that
// read the database before the write cannot repopulate the cache with it.
func (s *service) invalidate(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, s.cache.CartVersionKey(userID.String())); err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "error", err.Error()), "cart_records.cache_version_bump_failed")
	}
	if err := s.cache.Del(ctx, s.cache.CartCacheKey(userID.String())); err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "error", err.Error()), "cart_records.cache_invalidate_failed")
	}
}

// cacheTTL spreads expirations so carts written together do not expire together.
func (s *service) cacheTTL() time.Duration {
	if s.jitter <= 0 {
		return s.ttl
	}
	return s.ttl + time.Duration(rand.Int63n(int64(s.jitter)))
}

// MergeRefs sums quantities of repeated product ids, keeping first-seen order,
// and drops nil ids and non-positive totals.
func MergeRefs(items []cart.ItemRef) []cart.ItemRef {
	order := make([]uuid.UUID, 0, len(items))
	totals := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			continue
		}
		if _, seen := totals[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		totals[item.ProductID] += item.Quantity
	}
	out := make([]cart.ItemRef, 0, len(order))
	for _, id := range order {
		if qty := totals[id]; qty > 0 {
			out = append(out, cart.ItemRef{ProductID: id, Quantity: qty})
		}
	}
	return out
}

func expand(refs []cart.ItemRef, snapshots map[uuid.UUID]cart.ProductSnapshot) cart.State {
	state := cart.State{Items: make([]cart.LineItem, 0, len(refs))}
	for _, ref := range refs {
		snapshot, ok := snapshots[ref.ProductID]
		if !ok {
			continue
		}
		state.Items = append(state.Items, cart.LineItem{ProductID: ref.ProductID, Product: snapshot, Quantity: ref.Quantity})
	}
	return state.Normalize()
}
