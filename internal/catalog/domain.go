// internal/catalog/domain.go
package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookstore/internal/pricing"
)

var (
	ErrBookNotFound   = errors.New("book not found")
	ErrInvalidBook    = errors.New("invalid book")
	ErrInvalidSale    = errors.New("invalid sale")
	ErrStockUnderflow = errors.New("stock cannot go below zero")
	ErrBookInUse      = errors.New("book is referenced by existing orders")
)

const aggregateType = "book"

// Book is a title for sale, with its pricing and inventory.
type Book struct {
	ID             uuid.UUID           `json:"id"`
	ISBN           string              `json:"isbn"`
	Title          string              `json:"title"`
	Author         string              `json:"author"`
	Description    string              `json:"description"`
	Genre          string              `json:"genre"`
	OriginalPrice  decimal.Decimal     `json:"original_price"`
	Price          decimal.NullDecimal `json:"sale_price"`
	IsOnSale       bool                `json:"is_on_sale"`
	SaleStart      *time.Time          `json:"sale_start,omitempty"`
	SaleEnd        *time.Time          `json:"sale_end,omitempty"`
	Stock          int                 `json:"stock"`
	SoldCount      int                 `json:"sold_count"`
	Version        int                 `json:"version"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	EffectivePrice decimal.Decimal     `json:"effective_price"`
	Rating         *Rating             `json:"rating,omitempty"`
}

// Offer returns the price-relevant fields of the book.
func (b *Book) Offer() pricing.Offer {
	return pricing.Offer{
		ListPrice: b.OriginalPrice,
		SalePrice: b.Price,
		OnSale:    b.IsOnSale,
		SaleStart: b.SaleStart,
		SaleEnd:   b.SaleEnd,
	}
}

// Rating summarizes the reviews of a book.
type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// Details are the descriptive, admin-editable fields of a book.
type Details struct {
	ISBN          string          `json:"isbn"`
	Title         string          `json:"title"`
	Author        string          `json:"author"`
	Description   string          `json:"description"`
	Genre         string          `json:"genre"`
	OriginalPrice decimal.Decimal `json:"price"`
}

func (d Details) validate() error {
	switch {
	case d.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidBook)
	case d.Author == "":
		return fmt.Errorf("%w: author is required", ErrInvalidBook)
	case d.OriginalPrice.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidBook)
	}
	return nil
}

// Sale puts a book on sale. Nil bounds leave the window open on that side.
type Sale struct {
	Price decimal.NullDecimal `json:"price"`
	Start *time.Time          `json:"start,omitempty"`
	End   *time.Time          `json:"end,omitempty"`
}

func (s Sale) validate() error {
	if s.Price.Valid && s.Price.Decimal.IsNegative() {
		return fmt.Errorf("%w: sale price must not be negative", ErrInvalidSale)
	}
	if s.Start != nil && s.End != nil && s.End.Before(*s.Start) {
		return fmt.Errorf("%w: sale ends before it starts", ErrInvalidSale)
	}
	return nil
}

// Sort orders for List.
const (
	SortNewest     = "newest"
	SortPriceAsc   = "price_asc"
	SortPriceDesc  = "price_desc"
	SortTitle      = "title"
	SortBestseller = "bestseller"
)

// Filter narrows and orders a book listing.
type Filter struct {
	Query      string
	Genre      string
	OnSaleOnly bool
	Sort       string
	Limit      int
	Offset     int
}

// Page is one page of a listing.
type Page struct {
	Books  []*Book `json:"books"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// BookAddedEvent is recorded when a book enters the catalog.
type BookAddedEvent struct {
	ID    uuid.UUID       `json:"id"`
	ISBN  string          `json:"isbn"`
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// BookUpdatedEvent is recorded when details or the list price change.
type BookUpdatedEvent struct {
	Details
}

// SaleChangedEvent is recorded when a sale is set or cleared.
type SaleChangedEvent struct {
	OnSale bool                `json:"on_sale"`
	Price  decimal.NullDecimal `json:"price"`
	Start  *time.Time          `json:"start,omitempty"`
	End    *time.Time          `json:"end,omitempty"`
}

// StockAdjustedEvent is recorded for manual inventory corrections.
type StockAdjustedEvent struct {
	Delta int `json:"delta"`
	Stock int `json:"stock"`
}

// BookRemovedEvent is recorded when a book is deleted.
type BookRemovedEvent struct {
	ID uuid.UUID `json:"id"`
}
