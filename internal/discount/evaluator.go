package discount

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Evaluator validates codes against a registry. It has no side effects.
type Evaluator struct {
	registry Registry
	now      func() time.Time
}

// NewEvaluator binds an evaluator to registry. A nil clock uses time.Now.
func NewEvaluator(registry Registry, clock func() time.Time) (*Evaluator, error) {
	if registry == nil {
		return nil, fmt.Errorf("discount registry required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Evaluator{registry: registry, now: clock}, nil
}

// Evaluate resolves code against state or returns a typed rejection.
func (e *Evaluator) Evaluate(ctx context.Context, code string, state cart.State) (cart.Discount, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return cart.Discount{}, pkgerrors.New(pkgerrors.CodeValidation, "discount code is required")
	}

	entry, found, err := e.registry.Lookup(ctx, trimmed)
	if err != nil {
		return cart.Discount{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup discount code")
	}
	if !found {
		return cart.Discount{}, Rejected(enums.DiscountRejectionNotFound, trimmed)
	}
	return Resolve(entry, state, e.now())
}

// Resolve runs the rule chain in order and stops at the first failure:
// active, window, usage, minimum, scope.
func Resolve(entry Code, state cart.State, now time.Time) (cart.Discount, error) {
	if !entry.Active {
		return cart.Discount{}, Rejected(enums.DiscountRejectionInactive, entry.Code)
	}
	if entry.StartsAt != nil && now.Before(*entry.StartsAt) {
		return cart.Discount{}, Rejected(enums.DiscountRejectionNotYetValid, entry.Code)
	}
	if entry.EndsAt != nil && now.After(*entry.EndsAt) {
		return cart.Discount{}, Rejected(enums.DiscountRejectionExpired, entry.Code)
	}
	if entry.UsageCap != nil && entry.UsageCount >= *entry.UsageCap {
		return cart.Discount{}, Rejected(enums.DiscountRejectionUsageExhausted, entry.Code)
	}

	subtotal := state.Subtotal()
	if entry.MinPurchase.Valid && subtotal.LessThan(entry.MinPurchase.Decimal) {
		return cart.Discount{}, Rejected(enums.DiscountRejectionBelowMinimum, entry.Code)
	}
	if entry.Scoped() && !matchesScope(entry, state) {
		return cart.Discount{}, Rejected(enums.DiscountRejectionScopeMismatch, entry.Code)
	}
	if !entry.Type.IsValid() {
		return cart.Discount{}, pkgerrors.New(pkgerrors.CodeInternal, "discount code has unknown type").
			WithDetails(map[string]any{"code": entry.Code, "type": entry.Type.String()})
	}

	return cart.Discount{
		Code:   entry.Code,
		Type:   entry.Type,
		Value:  entry.Value,
		Amount: Amount(entry.Type, entry.Value, subtotal),
	}, nil
}

// Amount computes the discount for subtotal, rounded to cents and bounded to [0, subtotal].
func Amount(kind enums.DiscountType, value, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch kind {
	case enums.DiscountTypePercentage:
		amount = subtotal.Mul(value).Div(hundred).Round(2)
	case enums.DiscountTypeFixed:
		amount = value.Round(2)
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}

func matchesScope(entry Code, state cart.State) bool {
	for _, item := range state.Items {
		for _, id := range entry.AllowedProductIDs {
			if item.ProductID == id {
				return true
			}
		}
		category := strings.TrimSpace(item.Product.Category)
		if category == "" {
			continue
		}
		for _, allowed := range entry.AllowedCategories {
			if strings.EqualFold(category, strings.TrimSpace(allowed)) {
				return true
			}
		}
	}
	return false
}
