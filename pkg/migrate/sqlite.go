package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/pkg/db/models"
)

// sqlite has no array or enum types, so discount scopes are stored as the
// postgres array literal text that pq.StringArray already scans.
const sqliteDiscountCodesDDL = `CREATE TABLE IF NOT EXISTS discount_codes (
	code TEXT PRIMARY KEY,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	type TEXT NOT NULL,
	value NUMERIC NOT NULL,
	min_purchase NUMERIC,
	starts_at DATETIME,
	ends_at DATETIME,
	usage_cap INTEGER,
	allowed_product_ids TEXT DEFAULT '{}',
	allowed_categories TEXT DEFAULT '{}',
	created_at DATETIME,
	updated_at DATETIME
)`

// ApplySQLiteSchema builds the server schema on a sqlite database for local
// runs where goose's postgres migrations cannot apply.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	tx := conn.WithContext(ctx)
	if err := tx.AutoMigrate(&models.Product{}, &models.CartRecord{}, &models.CartItem{}); err != nil {
		return fmt.Errorf("auto migrate cart tables: %w", err)
	}
	if err := tx.Exec(sqliteDiscountCodesDDL).Error; err != nil {
		return fmt.Errorf("create discount_codes: %w", err)
	}
	return nil
}
