// internal/cart/service.go
package cart

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the cart service.
type Service interface {
	AddItem(ctx context.Context, userID, bookID uuid.UUID, quantity int) (uuid.UUID, error)
	SetQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
	GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error)
}
