package pricing

import (
	"github.com/shopspring/decimal"
)

const (
	TierBulk    = "bulk"
	TierLoyalty = "loyalty"
)

// Policy describes the order-level discount tiers. Tiers are additive.
type Policy struct {
	BulkMinQuantity     int
	BulkRate            decimal.Decimal
	LoyaltyMinCompleted int
	LoyaltyRate         decimal.Decimal
}

// DefaultPolicy gives 5% off orders of five or more books and 10% off for customers with
// ten or more completed orders.
func DefaultPolicy() Policy {
	return Policy{
		BulkMinQuantity:     5,
		BulkRate:            decimal.RequireFromString("0.05"),
		LoyaltyMinCompleted: 10,
		LoyaltyRate:         decimal.RequireFromString("0.10"),
	}
}

// Quote is the priced outcome of an order.
type Quote struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
	Tiers    []string
}

// Apply computes the discount for an order with the given subtotal, total book quantity and
// number of the customer's previously completed orders.
func (p Policy) Apply(subtotal decimal.Decimal, quantity, priorCompleted int) Quote {
	rate := decimal.Zero
	var tiers []string

	if quantity >= p.BulkMinQuantity {
		rate = rate.Add(p.BulkRate)
		tiers = append(tiers, TierBulk)
	}
	if priorCompleted >= p.LoyaltyMinCompleted {
		rate = rate.Add(p.LoyaltyRate)
		tiers = append(tiers, TierLoyalty)
	}

	discount := subtotal.Mul(rate).Round(2)
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	return Quote{
		Subtotal: subtotal,
		Discount: discount,
		Total:    subtotal.Sub(discount),
		Tiers:    tiers,
	}
}
