package migrate

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/db"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	"github.com/angelmondragon/storefront-cart/pkg/enums"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	return conn
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	conn := openSQLite(t)
	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvProd},
		DB:           config.DBConfig{Driver: config.DBDriverSQLite},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
	}
	require.NoError(t, MaybeRunDev(context.Background(), cfg, logger.Nop(), db.FromGorm(conn)))
	require.False(t, conn.Migrator().HasTable("products"))
}

func TestMaybeRunDevAppliesSQLiteSchema(t *testing.T) {
	conn := openSQLite(t)
	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvDev},
		DB:           config.DBConfig{Driver: config.DBDriverSQLite},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
	}
	ctx := context.Background()
	require.NoError(t, MaybeRunDev(ctx, cfg, logger.Nop(), db.FromGorm(conn)))

	for _, table := range []string{"products", "cart_records", "cart_items", "discount_codes"} {
		require.True(t, conn.Migrator().HasTable(table), table)
	}

	usageCap := int64(5)
	row := models.DiscountCode{
		Code:              "SAVE10",
		IsActive:          true,
		Type:              enums.DiscountTypePercentage,
		Value:             decimal.NewFromInt(10),
		UsageCap:          &usageCap,
		AllowedCategories: []string{"mugs"},
		StartsAt:          ptrTime(time.Now().Add(-time.Hour)),
	}
	require.NoError(t, conn.WithContext(ctx).Create(&row).Error)

	var got models.DiscountCode
	require.NoError(t, conn.WithContext(ctx).First(&got, "code = ?", "SAVE10").Error)
	require.Equal(t, []string{"mugs"}, []string(got.AllowedCategories))

	// idempotent
	require.NoError(t, ApplySQLiteSchema(ctx, conn))
}

func ptrTime(t time.Time) *time.Time { return &t }
