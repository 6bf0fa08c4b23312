package square

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	"github.com/square/square-go-sdk/checkout"
)

// PaymentLinkParams describes a priced order to hand off to Square checkout.
type PaymentLinkParams struct {
	ReferenceID    string
	LineItems      []PaymentLinkLineItem
	DiscountName   string
	DiscountAmount decimal.Decimal
	Currency       string
	RedirectURL    string
	IdempotencyKey string
}

type PaymentLinkLineItem struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// PaymentLink is the subset of Square's payment link the storefront needs.
type PaymentLink struct {
	ID      string
	URL     string
	OrderID string
}

func (p PaymentLinkParams) toSquareRequest(locationID, idempotencyKey string) *checkout.CreatePaymentLinkRequest {
	order := &sq.Order{
		LocationID: locationID,
	}
	if trimmed := strings.TrimSpace(p.ReferenceID); trimmed != "" {
		order.ReferenceID = ptrString(trimmed)
	}
	for _, item := range p.LineItems {
		order.LineItems = append(order.LineItems, &sq.OrderLineItem{
			Name:           ptrString(item.Name),
			Quantity:       strconv.Itoa(item.Quantity),
			BasePriceMoney: moneyPtr(toCents(item.UnitPrice), p.Currency),
		})
	}
	if amount := toCents(p.DiscountAmount); amount > 0 {
		discountType := sq.OrderLineItemDiscountTypeFixedAmount
		scope := sq.OrderLineItemDiscountScopeOrder
		order.Discounts = []*sq.OrderLineItemDiscount{{
			UID:         ptrString("cart-discount"),
			Name:        ptrString(p.DiscountName),
			Type:        &discountType,
			AmountMoney: moneyPtr(amount, p.Currency),
			Scope:       &scope,
		}}
	}

	req := &checkout.CreatePaymentLinkRequest{
		IdempotencyKey: ptrString(idempotencyKey),
		Order:          order,
	}
	if trimmed := strings.TrimSpace(p.RedirectURL); trimmed != "" {
		req.CheckoutOptions = &sq.CheckoutOptions{RedirectURL: ptrString(trimmed)}
	}
	return req
}

// toCents converts a two-decimal currency amount into Square's smallest unit.
func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
