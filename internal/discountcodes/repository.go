package discountcodes

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/pkg/db/models"
)

// Repository reads discount code rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByCode matches the code exactly; codes are case-sensitive.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var row models.DiscountCode
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) Create(ctx context.Context, row *models.DiscountCode) error {
	return r.db.WithContext(ctx).Create(row).Error
}
