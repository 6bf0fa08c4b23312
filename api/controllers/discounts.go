package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-cart/api/responses"
	"github.com/angelmondragon/storefront-cart/api/validators"
	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/discountcodes"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

type validateDiscountRequest struct {
	Code string `json:"code" validate:"required,max=64"`
	// CartTotal is what the client displays; the server re-prices from Items.
	CartTotal decimal.Decimal `json:"cartTotal"`
	Items     []cart.ItemRef  `json:"items" validate:"max=500,dive"`
}

type validateDiscountResponse struct {
	Discount cart.Discount `json:"discount"`
}

// DiscountValidate checks a code against the posted cart and returns its descriptor.
func DiscountValidate(svc discountcodes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "discount service unavailable"))
			return
		}

		var payload validateDiscountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		discount, err := svc.Validate(r.Context(), payload.Code, payload.Items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, validateDiscountResponse{Discount: discount})
	}
}
