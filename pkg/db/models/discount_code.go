package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-cart/pkg/enums"
)

// DiscountCode is a registry entry. Redemption counts live in Redis so the
// row only carries the cap.
type DiscountCode struct {
	Code              string              `gorm:"column:code;primaryKey"`
	IsActive          bool                `gorm:"column:is_active;not null"`
	Type              enums.DiscountType  `gorm:"column:type;not null"`
	Value             decimal.Decimal     `gorm:"column:value;type:numeric(12,2);not null"`
	MinPurchase       decimal.NullDecimal `gorm:"column:min_purchase;type:numeric(12,2)"`
	StartsAt          *time.Time          `gorm:"column:starts_at"`
	EndsAt            *time.Time          `gorm:"column:ends_at"`
	UsageCap          *int64              `gorm:"column:usage_cap"`
	AllowedProductIDs pq.StringArray      `gorm:"column:allowed_product_ids;type:text[]"`
	AllowedCategories pq.StringArray      `gorm:"column:allowed_categories;type:text[]"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
