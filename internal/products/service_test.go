package product

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

func newTestService(t *testing.T) (Service, *Repository) {
	t.Helper()
	repo := NewRepository(openTestDB(t))
	svc, err := NewService(repo)
	require.NoError(t, err)
	return svc, repo
}

func TestActiveSnapshotsOmitsInactiveAndUnknown(t *testing.T) {
	svc, repo := newTestService(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mug := mustCreateTestProduct(t, repo.db, "Mug", "12.50", true, now)
	retired := mustCreateTestProduct(t, repo.db, "Retired", "5.00", false, now)

	got, err := svc.ActiveSnapshots(context.Background(), []uuid.UUID{mug.ID, retired.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	snap, ok := got[mug.ID]
	require.True(t, ok)
	assert.Equal(t, "Mug", snap.Name)
	assert.True(t, snap.Price.Equal(decimal.RequireFromString("12.50")))
}

func TestGetProduct(t *testing.T) {
	svc, repo := newTestService(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mug := mustCreateTestProduct(t, repo.db, "Mug", "12.50", true, now)
	retired := mustCreateTestProduct(t, repo.db, "Retired", "5.00", false, now)

	dto, err := svc.GetProduct(context.Background(), mug.ID)
	require.NoError(t, err)
	assert.Equal(t, mug.ID, dto.ID)

	_, err = svc.GetProduct(context.Background(), retired.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = svc.GetProduct(context.Background(), uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = svc.GetProduct(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestListProductsPaginates(t *testing.T) {
	svc, repo := newTestService(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"A", "B", "C"} {
		mustCreateTestProduct(t, repo.db, name, "1.00", true, base.Add(time.Duration(i)*time.Minute))
	}
	mustCreateTestProduct(t, repo.db, "Hidden", "1.00", false, base.Add(time.Hour))

	first, err := svc.ListProducts(context.Background(), ListProductsInput{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Products, 2)
	assert.Equal(t, "C", first.Products[0].Name)
	assert.Equal(t, "B", first.Products[1].Name)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.ListProducts(context.Background(), ListProductsInput{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Products, 1)
	assert.Equal(t, "A", second.Products[0].Name)
	assert.Empty(t, second.NextCursor)
}

func TestListProductsRejectsBadCursor(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ListProducts(context.Background(), ListProductsInput{Cursor: "%%%"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestRepositorySetActive(t *testing.T) {
	_, repo := newTestService(t)
	mug := mustCreateTestProduct(t, repo.db, "Mug", "12.50", true, time.Now().UTC())

	require.NoError(t, repo.SetActive(context.Background(), mug.ID, false))
	got, err := repo.FindByID(context.Background(), mug.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.Error(t, repo.SetActive(context.Background(), uuid.New(), true))
}
