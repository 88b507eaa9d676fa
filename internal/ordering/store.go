// internal/ordering/store.go
package ordering

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bookstore/internal/eventstore"
	"bookstore/internal/pricing"
)

// CartLine is a cart item joined with the book it refers to.
type CartLine struct {
	CartItemID uuid.UUID
	BookID     uuid.UUID
	Title      string
	Quantity   int
	Offer      pricing.Offer
}

// ListFilter narrows the admin order listing.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Store gives the workflow access to orders. Mutations happen inside WithinTx.
type Store interface {
	// WithinTx runs fn in a unit of work that commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(Tx) error) error
	FindOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	FindOrderByClaimCode(ctx context.Context, code string) (*Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID) ([]*Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]*Order, error)
}

// Tx is the set of operations available inside a unit of work.
type Tx interface {
	// CartLines returns the listed cart items that belong to userID. Unknown or foreign ids are skipped.
	CartLines(ctx context.Context, userID uuid.UUID, cartItemIDs []uuid.UUID) ([]CartLine, error)
	CompletedOrderCount(ctx context.Context, userID uuid.UUID) (int, error)
	// LockBooks locks the books in the given order and returns their current stock.
	LockBooks(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID]int, error)
	// DecrementStock takes quantity from the book's stock and reports false if not enough is left.
	DecrementStock(ctx context.Context, bookID uuid.UUID, quantity int) (bool, error)
	RestoreStock(ctx context.Context, bookID uuid.UUID, quantity int) error
	IncrementSoldCount(ctx context.Context, bookID uuid.UUID, quantity int) error
	// InsertOrder stores the order and its items. A claim code collision returns ErrDuplicateClaimCode.
	InsertOrder(ctx context.Context, order *Order) error
	DeleteCartItems(ctx context.Context, userID uuid.UUID, cartItemIDs []uuid.UUID) error
	LockOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	LockOrderByClaimCode(ctx context.Context, code string) (*Order, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status, version int, updatedAt time.Time) error
	// Record appends an event to the order's stream, which must be at expectedVersion.
	Record(ctx context.Context, orderID uuid.UUID, expectedVersion int, event eventstore.Event) error
}
