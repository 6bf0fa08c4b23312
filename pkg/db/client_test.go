package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/pkg/config"
)

type lineRow struct {
	ID        int
	ProductID string
}

func memoryDB(t *testing.T) *Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	pool, err := conn.DB()
	require.NoError(t, err)
	pool.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&lineRow{}))
	return FromGorm(conn)
}

func countRows(t *testing.T, client *Client) int64 {
	t.Helper()
	var n int64
	require.NoError(t, client.DB().Model(&lineRow{}).Count(&n).Error)
	return n
}

func TestWithTxCommits(t *testing.T) {
	client := memoryDB(t)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&lineRow{ProductID: "mug"}).Error
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countRows(t, client))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	client := memoryDB(t)
	boom := errors.New("boom")
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&lineRow{ProductID: "tee"}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, countRows(t, client))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	client := memoryDB(t)
	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&lineRow{ProductID: "cap"}).Error)
			panic("handler crashed")
		})
	})
	assert.Zero(t, countRows(t, client))
}

func TestNewSQLitePersistsToFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")

	client, err := NewSQLite(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx))
	require.NoError(t, client.DB().AutoMigrate(&lineRow{}))
	require.NoError(t, client.DB().Create(&lineRow{ProductID: "mug"}).Error)
	require.NoError(t, client.Close())

	reopened, err := NewSQLite(ctx, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	assert.Equal(t, int64(1), countRows(t, reopened))

	_, err = NewSQLite(ctx, "", nil)
	assert.Error(t, err)
}

func TestNewSelectsDriver(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{}, nil)
	assert.Error(t, err)

	client, err := New(context.Background(), config.DBConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "api.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.Equal(t, "sqlite", client.DB().Dialector.Name())
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := errors.New(`ERROR: duplicate key value violates unique constraint "cart_records_user_id_key"`)
	sqliteErr := errors.New("UNIQUE constraint failed: cart_records.user_id")

	assert.True(t, IsUniqueViolation(pgErr, ""))
	assert.True(t, IsUniqueViolation(pgErr, "cart_records_user_id_key"))
	assert.True(t, IsUniqueViolation(sqliteErr, ""))
	assert.True(t, IsUniqueViolation(sqliteErr, "cart_records.user_id"))
	assert.False(t, IsUniqueViolation(errors.New("connection reset"), ""))
	assert.False(t, IsUniqueViolation(sqliteErr, "discount_codes.code"))

	typed := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "cart_records_user_id_key"})
	assert.True(t, IsUniqueViolation(typed, "cart_records_user_id_key"))
	assert.False(t, IsUniqueViolation(typed, "cart_items_pkey"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
}
