package discountcodes

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/internal/discount"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// UsageCounter stores per-code redemption counts.
type UsageCounter interface {
	GetInt(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
	DiscountUsageKey(code string) string
}

// Registry serves discount.Registry lookups from the database, with usage
// counts read from the counter store.
type Registry struct {
	repo     *Repository
	counters UsageCounter
	logger   *logger.Logger
}

func NewRegistry(repo *Repository, counters UsageCounter, logg *logger.Logger) *Registry {
	return &Registry{repo: repo, counters: counters, logger: logg}
}

func (r *Registry) Lookup(ctx context.Context, code string) (discount.Code, bool, error) {
	row, err := r.repo.FindByCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return discount.Code{}, false, nil
	}
	if err != nil {
		return discount.Code{}, false, err
	}

	entry := toEntry(ctx, *row, r.logger)
	if entry.UsageCap != nil && r.counters != nil {
		count, err := r.counters.GetInt(ctx, r.counters.DiscountUsageKey(row.Code))
		if err != nil {
			return discount.Code{}, false, err
		}
		entry.UsageCount = count
	}
	return entry, true, nil
}

func toEntry(ctx context.Context, row models.DiscountCode, logg *logger.Logger) discount.Code {
	entry := discount.Code{
		Code:        row.Code,
		Active:      row.IsActive,
		Type:        row.Type,
		Value:       row.Value,
		MinPurchase: row.MinPurchase,
		StartsAt:    row.StartsAt,
		EndsAt:      row.EndsAt,
		UsageCap:    row.UsageCap,
		Restricted:  len(row.AllowedProductIDs) > 0 || len(row.AllowedCategories) > 0,
	}
	for _, raw := range row.AllowedProductIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			logg.Warn(logg.WithFields(ctx, map[string]any{"code": row.Code, "product_id": raw}), "discount_codes.invalid_scope_id")
			continue
		}
		entry.AllowedProductIDs = append(entry.AllowedProductIDs, id)
	}
	for _, category := range row.AllowedCategories {
		if trimmed := strings.TrimSpace(category); trimmed != "" {
			entry.AllowedCategories = append(entry.AllowedCategories, trimmed)
		}
	}
	return entry
}
