package checkout

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/internal/apiclient"
	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

const checkoutPath = "/api/v1/checkout"

// ErrEmptyCart is returned without any network call when the cart has no items.
var ErrEmptyCart = pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")

// TokenSource supplies the bearer token when a user is signed in.
type TokenSource interface {
	CurrentUserToken() (string, bool)
}

// Request is the payment-session payload. Prices and the discount amount are
// never sent; the server re-resolves both.
type Request struct {
	CartItems    []cart.ItemRef `json:"cartItems" validate:"required,min=1,max=500,dive"`
	DiscountCode string         `json:"discountCode,omitempty" validate:"omitempty,max=64"`
}

type Response struct {
	URL string `json:"url"`
}

// Handoff turns a cart snapshot into a payment-session redirect.
type Handoff struct {
	api    *apiclient.Client
	tokens TokenSource
	logger *logger.Logger
	newKey func() string
}

func New(api *apiclient.Client, tokens TokenSource, logg *logger.Logger) (*Handoff, error) {
	if api == nil {
		return nil, fmt.Errorf("api client required")
	}
	return &Handoff{api: api, tokens: tokens, logger: logg, newKey: uuid.NewString}, nil
}

// NewRequest builds the wire payload for state.
func NewRequest(state cart.State) Request {
	req := Request{CartItems: state.Refs()}
	if state.Discount != nil {
		req.DiscountCode = strings.TrimSpace(state.Discount.Code)
	}
	return req
}

// InitiateCheckout makes a single attempt to open a payment session and
// returns its redirect URL. state is never modified.
func (h *Handoff) InitiateCheckout(ctx context.Context, state cart.State) (string, error) {
	if state.IsEmpty() {
		return "", ErrEmptyCart
	}

	req := apiclient.Request{
		Method:         http.MethodPost,
		Path:           checkoutPath,
		Body:           NewRequest(state),
		IdempotencyKey: h.newKey(),
	}
	if h.tokens != nil {
		if token, ok := h.tokens.CurrentUserToken(); ok {
			req.Token = token
		}
	}

	var resp Response
	if err := h.api.Do(ctx, req, &resp); err != nil {
		failure := classify(err)
		h.logger.Warn(h.logger.WithFields(ctx, map[string]any{
			"failure": failure.String(),
			"items":   len(state.Items),
		}), "checkout.failed")
		return "", Failed(failure, err)
	}

	url := strings.TrimSpace(resp.URL)
	if url == "" {
		return "", Failed(enums.CheckoutFailureRejected, fmt.Errorf("payment session returned no url"))
	}
	h.logger.Info(h.logger.WithField(ctx, "items", len(state.Items)), "checkout.session_created")
	return url, nil
}

// Failed wraps cause as CHECKOUT_FAILED with the failure class in details.
func Failed(failure enums.CheckoutFailure, cause error) *pkgerrors.Error {
	details := map[string]any{"reason": failure.String()}
	if typed := pkgerrors.As(cause); typed != nil {
		details["cause"] = string(typed.Code())
		if failure == enums.CheckoutFailureDiscountRejected {
			if reason := pkgerrors.DetailString(cause, "reason"); reason != "" {
				details["discountReason"] = reason
			}
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeCheckout, cause, "checkout could not be started").WithDetails(details)
}

// FailureOf returns the failure class of a checkout error.
func FailureOf(err error) (enums.CheckoutFailure, bool) {
	if !pkgerrors.HasCode(err, pkgerrors.CodeCheckout) {
		return "", false
	}
	failure, parseErr := enums.ParseCheckoutFailure(pkgerrors.DetailString(err, "reason"))
	if parseErr != nil {
		return "", false
	}
	return failure, true
}

func classify(err error) enums.CheckoutFailure {
	if apiclient.IsTransport(err) {
		return enums.CheckoutFailureNetwork
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return enums.CheckoutFailureRejected
	}
	switch typed.Code() {
	case pkgerrors.CodeDiscountRejected:
		return enums.CheckoutFailureDiscountRejected
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeEmptyCart, pkgerrors.CodeStateConflict:
		return enums.CheckoutFailureInvalidCart
	default:
		return enums.CheckoutFailureRejected
	}
}
