// internal/cart/domain.go
package cart

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
)

// Item is one line of a user's cart, priced at read time.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	BookID    uuid.UUID       `json:"book_id"`
	Title     string          `json:"title"`
	Author    string          `json:"author"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	InStock   bool            `json:"in_stock"`
	AddedAt   time.Time       `json:"added_at"`
}

// Cart is a user's pending selection with a subtotal preview.
type Cart struct {
	Items    []*Item         `json:"items"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}
