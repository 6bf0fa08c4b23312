package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-cart/pkg/enums"
)

// ProductSnapshot is the denormalized product data a cart line displays.
type ProductSnapshot struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	PreviewImage string          `json:"previewImage,omitempty"`
	Category     string          `json:"category,omitempty"`
}

// LineItem is one product in the cart. ProductID is unique within a State.
type LineItem struct {
	ProductID uuid.UUID       `json:"productId"`
	Product   ProductSnapshot `json:"product"`
	Quantity  int             `json:"quantity"`
}

// LineTotal is price times quantity.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ItemRef is the {productId, quantity} pair exchanged with the storefront API.
type ItemRef struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1"`
}

// Discount describes an applied code. Amount is resolved once at apply time.
type Discount struct {
	Code   string             `json:"code"`
	Type   enums.DiscountType `json:"type"`
	Value  decimal.Decimal    `json:"value"`
	Amount decimal.Decimal    `json:"discountAmount"`
}

// State is the full cart: items in insertion order plus an optional discount.
type State struct {
	Items    []LineItem `json:"items"`
	Discount *Discount  `json:"discount,omitempty"`
}

// Subtotal sums every line total.
func (s State) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Total applies the locked discount amount and floors the result at zero.
func (s State) Total() decimal.Decimal {
	subtotal := s.Subtotal()
	if s.Discount == nil {
		return subtotal
	}
	total := subtotal.Sub(s.Discount.Amount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

func (s State) IsEmpty() bool {
	return len(s.Items) == 0
}

// ItemCount is the sum of quantities across lines.
func (s State) ItemCount() int {
	count := 0
	for _, item := range s.Items {
		count += item.Quantity
	}
	return count
}

// Refs returns the ids and quantities of every line, in order.
func (s State) Refs() []ItemRef {
	refs := make([]ItemRef, 0, len(s.Items))
	for _, item := range s.Items {
		refs = append(refs, ItemRef{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return refs
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s State) Clone() State {
	out := State{}
	if len(s.Items) > 0 {
		out.Items = make([]LineItem, len(s.Items))
		copy(out.Items, s.Items)
	}
	if s.Discount != nil {
		d := *s.Discount
		out.Discount = &d
	}
	return out
}

// WithoutDiscount returns a copy of s with the discount removed.
func (s State) WithoutDiscount() State {
	out := s.Clone()
	out.Discount = nil
	return out
}

// Normalize merges duplicate product ids in first-seen order and drops lines with quantity < 1.
func (s State) Normalize() State {
	out := State{Discount: s.Clone().Discount}
	index := make(map[uuid.UUID]int, len(s.Items))
	for _, item := range s.Items {
		if item.Quantity < 1 {
			continue
		}
		if pos, ok := index[item.ProductID]; ok {
			out.Items[pos].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out.Items)
		out.Items = append(out.Items, item)
	}
	return out
}

func (s State) indexOf(productID uuid.UUID) int {
	for i, item := range s.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}
