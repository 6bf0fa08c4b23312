package product

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
)

// ProductDTO represents the product payload returned to clients.
type ProductDTO struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	PreviewImage string          `json:"previewImage,omitempty"`
	Category     string          `json:"category,omitempty"`
	IsActive     bool            `json:"isActive"`
}

// ProductListResult is one page of the browse endpoint.
type ProductListResult struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// ListProductsInput captures the browse filters.
type ListProductsInput struct {
	Category string
	Limit    int
	Cursor   string
}

func toDTO(p models.Product) ProductDTO {
	return ProductDTO{
		ID:           p.ID,
		Name:         p.Name,
		Price:        p.Price,
		PreviewImage: p.PreviewImage,
		Category:     p.Category,
		IsActive:     p.IsActive,
	}
}

// Snapshot converts a product row into the denormalized cart line data.
func Snapshot(p models.Product) cart.ProductSnapshot {
	return cart.ProductSnapshot{
		ID:           p.ID,
		Name:         p.Name,
		Price:        p.Price,
		PreviewImage: p.PreviewImage,
		Category:     p.Category,
	}
}
