// Package pricing resolves what a book costs right now and what an order is discounted by.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Offer is the price-relevant part of a book.
type Offer struct {
	ListPrice decimal.Decimal
	SalePrice decimal.NullDecimal
	OnSale    bool
	SaleStart *time.Time
	SaleEnd   *time.Time
}

// SaleActive reports whether the sale window covers now. Missing bounds leave the window open
// on that side; both bounds are inclusive.
func (o Offer) SaleActive(now time.Time) bool {
	if !o.OnSale {
		return false
	}
	if o.SaleStart != nil && now.Before(*o.SaleStart) {
		return false
	}
	if o.SaleEnd != nil && now.After(*o.SaleEnd) {
		return false
	}
	return true
}

// EffectivePrice returns the unit price charged at now: the sale price during an active sale,
// the list price otherwise. An active sale without a sale price charges zero.
func EffectivePrice(o Offer, now time.Time) decimal.Decimal {
	if !o.SaleActive(now) {
		return o.ListPrice
	}
	if !o.SalePrice.Valid {
		return decimal.Zero
	}
	return o.SalePrice.Decimal
}
