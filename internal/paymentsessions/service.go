package paymentsessions

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/pkg/checkout"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
	"github.com/angelmondragon/storefront-cart/pkg/square"
)

// ProductSource resolves product ids to current, active snapshots.
type ProductSource interface {
	ActiveSnapshots(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]cart.ProductSnapshot, error)
}

// DiscountValidator re-evaluates a code against the server-priced cart.
type DiscountValidator interface {
	ValidateState(ctx context.Context, code string, state cart.State) (cart.Discount, error)
	RecordRedemption(ctx context.Context, code string) error
}

// LinkCreator opens a hosted payment page.
type LinkCreator interface {
	CreatePaymentLink(ctx context.Context, params square.PaymentLinkParams) (*square.PaymentLink, error)
}

// CreateInput is one checkout request. Client prices are never trusted.
type CreateInput struct {
	UserID         uuid.UUID
	Items          []cart.ItemRef
	DiscountCode   string
	IdempotencyKey string
}

// Session is the created payment session.
type Session struct {
	URL         string         `json:"url"`
	ID          string         `json:"id,omitempty"`
	ReferenceID string         `json:"referenceId"`
	Discount    *cart.Discount `json:"discount,omitempty"`
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*Session, error)
}

type ServiceParams struct {
	Products  ProductSource
	Discounts DiscountValidator
	Links     LinkCreator
	Limits    checkout.LineLimits
	Metrics   *metrics.StorefrontMetrics
	Logger    *logger.Logger
}

type service struct {
	products  ProductSource
	discounts DiscountValidator
	links     LinkCreator
	limits    checkout.LineLimits
	metrics   *metrics.StorefrontMetrics
	logger    *logger.Logger
	newRef    func() string
}

func NewService(params ServiceParams) (Service, error) {
	if params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product source required")
	}
	if params.Discounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "discount validator required")
	}
	if params.Links == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment link creator required")
	}
	return &service{
		products:  params.Products,
		discounts: params.Discounts,
		links:     params.Links,
		limits:    params.Limits,
		metrics:   params.Metrics,
		logger:    params.Logger,
		newRef:    uuid.NewString,
	}, nil
}

// Create prices the cart, re-checks the discount code and opens a payment link.
// The redemption is counted only once the link exists.
func (s *service) Create(ctx context.Context, input CreateInput) (*Session, error) {
	state, err := s.price(ctx, input.Items)
	if err != nil {
		s.metrics.IncCheckoutSession("invalid_cart")
		return nil, err
	}

	code := strings.TrimSpace(input.DiscountCode)
	if code != "" {
		applied, err := s.discounts.ValidateState(ctx, code, state)
		if err != nil {
			s.metrics.IncCheckoutSession("discount_rejected")
			return nil, err
		}
		state.Discount = &applied
	}

	reference := s.newRef()
	params := square.PaymentLinkParams{
		ReferenceID:    reference,
		IdempotencyKey: input.IdempotencyKey,
		LineItems:      make([]square.PaymentLinkLineItem, 0, len(state.Items)),
	}
	for _, item := range state.Items {
		params.LineItems = append(params.LineItems, square.PaymentLinkLineItem{
			Name:      item.Product.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.Product.Price,
		})
	}
	if state.Discount != nil {
		params.DiscountName = state.Discount.Code
		params.DiscountAmount = state.Discount.Amount
	}

	ctx = s.logger.WithFields(ctx, map[string]any{
		"reference_id": reference,
		"lines":        len(state.Items),
		"total":        state.Total().StringFixed(2),
	})
	if input.UserID != uuid.Nil {
		ctx = s.logger.WithUserID(ctx, input.UserID.String())
	}

	link, err := s.links.CreatePaymentLink(ctx, params)
	if err != nil {
		s.metrics.IncCheckoutSession("provider_error")
		s.logger.Error(ctx, "payment_sessions.create_failed", err)
		return nil, err
	}

	if state.Discount != nil {
		if err := s.discounts.RecordRedemption(ctx, state.Discount.Code); err != nil {
			s.logger.Error(ctx, "payment_sessions.redemption_not_recorded", err)
		}
	}
	s.metrics.IncCheckoutSession("created")
	s.logger.Info(ctx, "payment_sessions.created")

	return &Session{URL: link.URL, ID: link.ID, ReferenceID: reference, Discount: state.Discount}, nil
}

// price rebuilds the cart from the product table. Unknown or inactive
// products fail the whole request.
func (s *service) price(ctx context.Context, items []cart.ItemRef) (cart.State, error) {
	if len(items) == 0 {
		return cart.State{}, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	lines := make([]checkout.LineInput, 0, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil || item.Quantity < 1 {
			return cart.State{}, pkgerrors.New(pkgerrors.CodeValidation, "each cart item needs a product id and a positive quantity")
		}
		lines = append(lines, checkout.LineInput{ProductID: item.ProductID, Quantity: item.Quantity})
		ids = append(ids, item.ProductID)
	}
	if err := checkout.ValidateLineLimits(lines, s.limits); err != nil {
		return cart.State{}, err
	}

	snapshots, err := s.products.ActiveSnapshots(ctx, ids)
	if err != nil {
		return cart.State{}, err
	}

	state := cart.State{Items: make([]cart.LineItem, 0, len(items))}
	var unavailable []string
	for _, item := range items {
		snapshot, ok := snapshots[item.ProductID]
		if !ok {
			unavailable = append(unavailable, item.ProductID.String())
			continue
		}
		state.Items = append(state.Items, cart.LineItem{ProductID: item.ProductID, Product: snapshot, Quantity: item.Quantity})
	}
	if len(unavailable) > 0 {
		return cart.State{}, pkgerrors.New(pkgerrors.CodeValidation, "some products are no longer available").
			WithDetails(map[string]any{"productIds": unavailable})
	}
	return state.Normalize(), nil
}
