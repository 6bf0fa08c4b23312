package storefront

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-cart/internal/apiclient"
	"github.com/angelmondragon/storefront-cart/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

const productsPath = "/api/v1/products/"

type productPayload struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	PreviewImage string          `json:"previewImage"`
	Category     string          `json:"category"`
	IsActive     bool            `json:"isActive"`
}

// Product fetches the current snapshot of one catalog product.
func (s *Session) Product(ctx context.Context, productID uuid.UUID) (cart.ProductSnapshot, error) {
	if productID == uuid.Nil {
		return cart.ProductSnapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	var payload productPayload
	err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: productsPath + productID.String()}, &payload)
	if err != nil {
		return cart.ProductSnapshot{}, err
	}
	if !payload.IsActive {
		return cart.ProductSnapshot{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not available")
	}
	return cart.ProductSnapshot{
		ID:           payload.ID,
		Name:         payload.Name,
		Price:        payload.Price,
		PreviewImage: payload.PreviewImage,
		Category:     payload.Category,
	}, nil
}

// AddProduct looks the product up and adds qty of it to the cart.
func (s *Session) AddProduct(ctx context.Context, productID uuid.UUID, qty int) error {
	snapshot, err := s.Product(ctx, productID)
	if err != nil {
		return err
	}
	return s.store.AddItem(snapshot, qty)
}
