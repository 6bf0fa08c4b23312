package checkout

import (
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

// LineLimits bounds a single cart or checkout request.
type LineLimits struct {
	MaxLines    int
	MaxQuantity int
}

// LineInput describes one requested line.
type LineInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// QuantityViolationDetail exposes the data returned to callers when a line exceeds the cap.
type QuantityViolationDetail struct {
	ProductID    uuid.UUID `json:"productId"`
	MaxQty       int       `json:"maxQty"`
	RequestedQty int       `json:"requestedQty"`
}

// ValidateLineLimits ensures the request stays within the line count and per-line quantity caps.
// A zero limit disables that check.
func ValidateLineLimits(items []LineInput, limits LineLimits) error {
	if limits.MaxLines > 0 && len(items) > limits.MaxLines {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart may hold at most %d lines", limits.MaxLines)).WithDetails(map[string]any{
			"maxLines":       limits.MaxLines,
			"requestedLines": len(items),
		})
	}
	if limits.MaxQuantity <= 0 {
		return nil
	}

	var violations []QuantityViolationDetail
	for _, item := range items {
		if item.Quantity > limits.MaxQuantity {
			violations = append(violations, QuantityViolationDetail{
				ProductID:    item.ProductID,
				MaxQty:       limits.MaxQuantity,
				RequestedQty: item.Quantity,
			})
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity limit exceeded for %d item(s)", len(violations))).WithDetails(map[string]any{
		"violations": violations,
	})
}
