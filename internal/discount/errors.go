package discount

import (
	"github.com/angelmondragon/storefront-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

var rejectionMessages = map[enums.DiscountRejection]string{
	enums.DiscountRejectionNotFound:       "discount code not found",
	enums.DiscountRejectionInactive:       "discount code is inactive",
	enums.DiscountRejectionNotYetValid:    "discount code is not valid yet",
	enums.DiscountRejectionExpired:        "discount code expired",
	enums.DiscountRejectionUsageExhausted: "discount code usage limit reached",
	enums.DiscountRejectionBelowMinimum:   "cart total below discount minimum",
	enums.DiscountRejectionScopeMismatch:  "no cart items qualify for this discount",
}

// Rejected builds the DISCOUNT_REJECTED error for a failed rule.
func Rejected(reason enums.DiscountRejection, code string) *pkgerrors.Error {
	msg, ok := rejectionMessages[reason]
	if !ok {
		msg = "discount code rejected"
	}
	return pkgerrors.New(pkgerrors.CodeDiscountRejected, msg).WithDetails(map[string]any{
		"reason": reason.String(),
		"code":   code,
	})
}

// ReasonOf extracts the failed rule from a rejection, including ones decoded from the API.
func ReasonOf(err error) (enums.DiscountRejection, bool) {
	if !pkgerrors.HasCode(err, pkgerrors.CodeDiscountRejected) {
		return "", false
	}
	reason, parseErr := enums.ParseDiscountRejection(pkgerrors.DetailString(err, "reason"))
	if parseErr != nil {
		return "", false
	}
	return reason, true
}
