package metrics

import "github.com/prometheus/client_golang/prometheus"

// StorefrontMetrics covers the server-side cart, discount and checkout endpoints.
type StorefrontMetrics struct {
	discountValidations *prometheus.CounterVec
	checkoutSessions    *prometheus.CounterVec
	cartCache           *prometheus.CounterVec
}

func NewStorefrontMetrics(reg prometheus.Registerer) *StorefrontMetrics {
	if reg == nil {
		return &StorefrontMetrics{}
	}
	discountValidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "discount_validations_total",
		Help: "Discount code validations by result.",
	}, []string{"result"})
	checkoutSessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Payment sessions requested by outcome.",
	}, []string{"outcome"})
	cartCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_cache_lookups_total",
		Help: "Remote cart cache lookups by result.",
	}, []string{"result"})
	reg.MustRegister(discountValidations, checkoutSessions, cartCache)
	return &StorefrontMetrics{
		discountValidations: discountValidations,
		checkoutSessions:    checkoutSessions,
		cartCache:           cartCache,
	}
}

// IncDiscountValidation counts a validation; result is "applied" or a rejection reason.
func (s *StorefrontMetrics) IncDiscountValidation(result string) {
	if s == nil || s.discountValidations == nil {
		return
	}
	s.discountValidations.WithLabelValues(normalizeLabel(result)).Inc()
}

func (s *StorefrontMetrics) IncCheckoutSession(outcome string) {
	if s == nil || s.checkoutSessions == nil {
		return
	}
	s.checkoutSessions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (s *StorefrontMetrics) IncCartCache(result string) {
	if s == nil || s.cartCache == nil {
		return
	}
	s.cartCache.WithLabelValues(normalizeLabel(result)).Inc()
}
