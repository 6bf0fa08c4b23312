package enums

import "fmt"

// CheckoutFailure classifies why a checkout handoff did not produce a redirect.
type CheckoutFailure string

const (
	CheckoutFailureNetwork          CheckoutFailure = "network"
	CheckoutFailureDiscountRejected CheckoutFailure = "discount_rejected"
	CheckoutFailureInvalidCart      CheckoutFailure = "invalid_cart"
	CheckoutFailureRejected         CheckoutFailure = "rejected"
)

var validCheckoutFailures = []CheckoutFailure{
	CheckoutFailureNetwork,
	CheckoutFailureDiscountRejected,
	CheckoutFailureInvalidCart,
	CheckoutFailureRejected,
}

func (c CheckoutFailure) String() string {
	return string(c)
}

func (c CheckoutFailure) IsValid() bool {
	for _, candidate := range validCheckoutFailures {
		if candidate == c {
			return true
		}
	}
	return false
}

func ParseCheckoutFailure(value string) (CheckoutFailure, error) {
	for _, candidate := range validCheckoutFailures {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout failure %q", value)
}
