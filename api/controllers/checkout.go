package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-cart/api/responses"
	"github.com/angelmondragon/storefront-cart/api/validators"
	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/paymentsessions"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

type checkoutRequest struct {
	CartItems    []cart.ItemRef `json:"cartItems" validate:"max=500,dive"`
	DiscountCode string         `json:"discountCode,omitempty" validate:"omitempty,max=64"`
}

// Checkout creates a hosted payment session for the posted cart. Anonymous
// shoppers are allowed.
func Checkout(svc paymentsessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "checkout is not configured"))
			return
		}

		userID, err := optionalUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Create(r.Context(), paymentsessions.CreateInput{
			UserID:         userID,
			Items:          payload.CartItems,
			DiscountCode:   payload.DiscountCode,
			IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}
