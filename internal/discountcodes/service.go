package discountcodes

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/discount"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
)

// ProductSource resolves product ids to current, active snapshots.
type ProductSource interface {
	ActiveSnapshots(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]cart.ProductSnapshot, error)
}

// Service validates codes against server-priced carts and records redemptions.
type Service interface {
	Validate(ctx context.Context, code string, items []cart.ItemRef) (cart.Discount, error)
	// ValidateState evaluates code against an already priced cart.
	ValidateState(ctx context.Context, code string, state cart.State) (cart.Discount, error)
	RecordRedemption(ctx context.Context, code string) error
}

type ServiceParams struct {
	Registry *Registry
	Counters UsageCounter
	Products ProductSource
	Clock    func() time.Time
	Metrics  *metrics.StorefrontMetrics
	Logger   *logger.Logger
}

type service struct {
	evaluator *discount.Evaluator
	counters  UsageCounter
	products  ProductSource
	metrics   *metrics.StorefrontMetrics
	logger    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Registry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "discount registry required")
	}
	if params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product source required")
	}
	evaluator, err := discount.NewEvaluator(params.Registry, params.Clock)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build discount evaluator")
	}
	return &service{
		evaluator: evaluator,
		counters:  params.Counters,
		products:  params.Products,
		metrics:   params.Metrics,
		logger:    params.Logger,
	}, nil
}

// Validate re-prices items from the product table, ignoring any client-side
// total, and evaluates code against the result. Unknown products do not count
// toward the subtotal.
func (s *service) Validate(ctx context.Context, code string, items []cart.ItemRef) (cart.Discount, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	snapshots, err := s.products.ActiveSnapshots(ctx, ids)
	if err != nil {
		return cart.Discount{}, err
	}

	state := cart.State{}
	for _, item := range items {
		snapshot, ok := snapshots[item.ProductID]
		if !ok || item.Quantity < 1 {
			continue
		}
		state.Items = append(state.Items, cart.LineItem{ProductID: item.ProductID, Product: snapshot, Quantity: item.Quantity})
	}
	return s.ValidateState(ctx, code, state.Normalize())
}

func (s *service) ValidateState(ctx context.Context, code string, state cart.State) (cart.Discount, error) {
	result, err := s.evaluator.Evaluate(ctx, code, state)
	if err != nil {
		if reason, ok := discount.ReasonOf(err); ok {
			s.metrics.IncDiscountValidation(reason.String())
		} else {
			s.metrics.IncDiscountValidation("error")
		}
		return cart.Discount{}, err
	}
	s.metrics.IncDiscountValidation("applied")
	s.logger.Debug(s.logger.WithFields(ctx, map[string]any{
		"code":   result.Code,
		"amount": result.Amount.StringFixed(2),
	}), "discount_codes.validated")
	return result, nil
}

// RecordRedemption bumps the usage counter after a payment session is created.
func (s *service) RecordRedemption(ctx context.Context, code string) error {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" || s.counters == nil {
		return nil
	}
	count, err := s.counters.Incr(ctx, s.counters.DiscountUsageKey(trimmed))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record discount redemption")
	}
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{"code": trimmed, "usage": count}), "discount_codes.redeemed")
	return nil
}
