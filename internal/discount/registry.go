package discount

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-cart/pkg/enums"
)

// Code is a registry entry as seen by the evaluator.
type Code struct {
	Code              string
	Active            bool
	Type              enums.DiscountType
	Value             decimal.Decimal
	MinPurchase       decimal.NullDecimal
	StartsAt          *time.Time
	EndsAt            *time.Time
	UsageCap          *int64
	UsageCount        int64
	AllowedProductIDs []uuid.UUID
	AllowedCategories []string
	// Restricted marks a code whose stored allow-list had entries, even when
	// none of them survived parsing. Such a code matches no cart.
	Restricted bool
}

// Scoped reports whether the code is restricted to specific products or categories.
func (c Code) Scoped() bool {
	return c.Restricted || len(c.AllowedProductIDs) > 0 || len(c.AllowedCategories) > 0
}

// Registry resolves codes. Lookup is case-sensitive; found is false for unknown codes.
type Registry interface {
	Lookup(ctx context.Context, code string) (entry Code, found bool, err error)
}

// StaticRegistry is an in-memory Registry.
type StaticRegistry struct {
	mu    sync.RWMutex
	codes map[string]Code
}

func NewStaticRegistry(codes ...Code) *StaticRegistry {
	r := &StaticRegistry{codes: make(map[string]Code, len(codes))}
	for _, c := range codes {
		r.codes[c.Code] = c
	}
	return r
}

func (r *StaticRegistry) Lookup(_ context.Context, code string) (Code, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.codes[strings.TrimSpace(code)]
	return entry, ok, nil
}

// Put adds or replaces an entry.
func (r *StaticRegistry) Put(entry Code) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[entry.Code] = entry
}
