package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/pkg/db"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// CartKey is the key holding the serialized cart.
const CartKey = "cart"

// Name identifies the adapter in logs and metrics.
const Name = "local"

// Store persists the cart in a client-local sqlite key/value table.
type Store struct {
	db     *gorm.DB
	logger *logger.Logger
}

// New prepares the kv table on client and returns the adapter.
func New(ctx context.Context, client *db.Client, logg *logger.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("local database client required")
	}
	conn := client.DB().WithContext(ctx)
	if err := conn.AutoMigrate(&models.KVEntry{}); err != nil {
		return nil, fmt.Errorf("migrating kv store: %w", err)
	}
	return &Store{db: client.DB(), logger: logg}, nil
}

func (s *Store) Name() string {
	return Name
}

// Load returns the stored cart, or an empty cart when nothing was saved.
// Unreadable data yields an empty cart together with a persistence error.
func (s *Store) Load(ctx context.Context) (cart.State, error) {
	var entry models.KVEntry
	err := s.db.WithContext(ctx).Where("key = ?", CartKey).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cart.State{}, nil
	}
	if err != nil {
		return cart.State{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "read local cart")
	}

	var state cart.State
	if err := json.Unmarshal([]byte(entry.Value), &state); err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "error", err.Error()), "local_cart.corrupt")
		return cart.State{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "decode local cart").
			WithDetails(map[string]any{"adapter": Name})
	}
	return state.Normalize(), nil
}

// Save overwrites the stored cart with state.
func (s *Store) Save(ctx context.Context, state cart.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode local cart")
	}
	entry := models.KVEntry{Key: CartKey, Value: string(payload), UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "write local cart").
			WithDetails(map[string]any{"adapter": Name})
	}
	return nil
}
