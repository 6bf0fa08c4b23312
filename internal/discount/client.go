package discount

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-cart/internal/apiclient"
	"github.com/angelmondragon/storefront-cart/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

const validatePath = "/api/v1/discount/validate"

// TokenSource supplies the bearer token when a user is signed in.
type TokenSource interface {
	CurrentUserToken() (string, bool)
}

type ValidateRequest struct {
	Code      string          `json:"code" validate:"required,max=64"`
	CartTotal decimal.Decimal `json:"cartTotal"`
	Items     []cart.ItemRef  `json:"items" validate:"dive"`
}

type ValidateResponse struct {
	Discount cart.Discount `json:"discount"`
}

// Client evaluates codes through the storefront API's registry.
type Client struct {
	api    *apiclient.Client
	tokens TokenSource
}

func NewClient(api *apiclient.Client, tokens TokenSource) (*Client, error) {
	if api == nil {
		return nil, fmt.Errorf("api client required")
	}
	return &Client{api: api, tokens: tokens}, nil
}

// Evaluate asks the registry to validate code. The returned amount is
// recomputed against the local subtotal so it matches what the cart displays.
func (c *Client) Evaluate(ctx context.Context, code string, state cart.State) (cart.Discount, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return cart.Discount{}, pkgerrors.New(pkgerrors.CodeValidation, "discount code is required")
	}

	req := apiclient.Request{
		Method: http.MethodPost,
		Path:   validatePath,
		Body:   NewValidateRequest(trimmed, state),
	}
	if c.tokens != nil {
		if token, ok := c.tokens.CurrentUserToken(); ok {
			req.Token = token
		}
	}

	var resp ValidateResponse
	if err := c.api.Do(ctx, req, &resp); err != nil {
		return cart.Discount{}, err
	}
	if resp.Discount.Code == "" || !resp.Discount.Type.IsValid() {
		return cart.Discount{}, pkgerrors.New(pkgerrors.CodeDependency, "discount service returned an invalid descriptor")
	}

	out := resp.Discount
	out.Amount = Amount(out.Type, out.Value, state.Subtotal())
	return out, nil
}

// NewValidateRequest builds the wire payload: ids and quantities only.
func NewValidateRequest(code string, state cart.State) ValidateRequest {
	return ValidateRequest{
		Code:      code,
		CartTotal: state.Subtotal(),
		Items:     state.Refs(),
	}
}
