package enums

import "fmt"

// DiscountRejection is the rule a discount code failed during evaluation.
type DiscountRejection string

const (
	DiscountRejectionNotFound       DiscountRejection = "not_found"
	DiscountRejectionInactive       DiscountRejection = "inactive"
	DiscountRejectionNotYetValid    DiscountRejection = "not_yet_valid"
	DiscountRejectionExpired        DiscountRejection = "expired"
	DiscountRejectionUsageExhausted DiscountRejection = "usage_exhausted"
	DiscountRejectionBelowMinimum   DiscountRejection = "below_minimum"
	DiscountRejectionScopeMismatch  DiscountRejection = "scope_mismatch"
)

var validDiscountRejections = []DiscountRejection{
	DiscountRejectionNotFound,
	DiscountRejectionInactive,
	DiscountRejectionNotYetValid,
	DiscountRejectionExpired,
	DiscountRejectionUsageExhausted,
	DiscountRejectionBelowMinimum,
	DiscountRejectionScopeMismatch,
}

// String implements fmt.Stringer.
func (d DiscountRejection) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DiscountRejection.
func (d DiscountRejection) IsValid() bool {
	for _, candidate := range validDiscountRejections {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDiscountRejection converts raw input into a DiscountRejection.
func ParseDiscountRejection(value string) (DiscountRejection, error) {
	for _, candidate := range validDiscountRejections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid discount rejection %q", value)
}
