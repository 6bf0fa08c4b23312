package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	"github.com/square/square-go-sdk/checkout"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/storefront-cart/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

var baseURLs = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errLocationRequired    = errors.New("square location id is required")
	errInvalidSquareEnv    = errors.New(`square environment must be "sandbox" or "production"`)
)

// paymentLinks is the one Square endpoint the cart API calls.
type paymentLinks interface {
	Create(ctx context.Context, request *checkout.CreatePaymentLinkRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentLinkResponse, error)
}

// Client opens Square hosted checkout pages for priced carts.
type Client struct {
	links       paymentLinks
	locationID  string
	currency    string
	redirectURL string
	logger      *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	baseURL, ok := baseURLs[cfg.Environment()]
	if !ok {
		return nil, errInvalidSquareEnv
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errAccessTokenRequired
	}
	locationID := strings.TrimSpace(cfg.LocationID)
	if locationID == "" {
		return nil, errLocationRequired
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(token),
	)
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "USD"
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"square_env":  cfg.Environment(),
		"location_id": locationID,
	}), "square client initialized")

	return &Client{
		links:       sdk.Checkout.PaymentLinks,
		locationID:  locationID,
		currency:    currency,
		redirectURL: strings.TrimSpace(cfg.RedirectURL),
		logger:      logg,
	}, nil
}

// CreatePaymentLink creates an order-backed payment link. The idempotency key is
// forwarded to Square so a replayed checkout never opens a second order.
func (c *Client) CreatePaymentLink(ctx context.Context, params PaymentLinkParams) (*PaymentLink, error) {
	if c == nil || c.links == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square client not configured")
	}
	if params.Currency == "" {
		params.Currency = c.currency
	}
	if params.RedirectURL == "" {
		params.RedirectURL = c.redirectURL
	}
	key := strings.TrimSpace(params.IdempotencyKey)
	if key == "" {
		key = "payment_link-" + uuid.NewString()
	}

	ctx = c.logger.WithFields(ctx, map[string]any{
		"square_op":     "create_payment_link",
		"reference_id":  params.ReferenceID,
		"line_items":    len(params.LineItems),
		"discount_code": params.DiscountName,
	})
	c.logger.Debug(ctx, "square.request")

	resp, err := c.links.Create(ctx, params.toSquareRequest(c.locationID, key))
	if err != nil {
		mapped := mapSquareError(err, "create payment link")
		c.logger.Error(ctx, "square.create_payment_link_failed", mapped)
		return nil, mapped
	}

	link := resp.GetPaymentLink()
	if link == nil || stringValue(link.GetURL()) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeCheckout, "square returned a payment link without url")
	}
	out := &PaymentLink{
		ID:      stringValue(link.GetID()),
		URL:     stringValue(link.GetURL()),
		OrderID: stringValue(link.GetOrderID()),
	}
	c.logger.Info(c.logger.WithFields(ctx, map[string]any{
		"payment_link_id": out.ID,
		"order_id":        out.OrderID,
	}), "square.payment_link_created")
	return out, nil
}

// mapSquareError converts SDK failures into typed errors. Transport failures and
// Square 5xx become CHECKOUT_FAILED so the storefront can offer a retry; bad
// credentials surface as a dependency outage.
func mapSquareError(err error, op string) error {
	msg := fmt.Sprintf("square %s failed", op)

	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeCheckout, err, msg)
	}

	code := domainCodeForStatus(apiErr.StatusCode)
	for _, sqErr := range extractSquareErrors(apiErr) {
		if sqErr == nil {
			continue
		}
		if sqErr.Code == sq.ErrorCodeIdempotencyKeyReused {
			code = pkgerrors.CodeIdempotency
			break
		}
		if sqErr.Category == sq.ErrorCategoryAuthenticationError {
			code = pkgerrors.CodeDependency
			break
		}
	}
	return pkgerrors.Wrap(code, err, msg).WithDetails(map[string]any{"status": apiErr.StatusCode})
}

// extractSquareErrors decodes the {"errors":[...]} body the SDK keeps as the wrapped error text.
func extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &payload); err != nil {
		return nil
	}
	return payload.Errors
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.CodeDependency
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	default:
		return pkgerrors.CodeCheckout
	}
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
