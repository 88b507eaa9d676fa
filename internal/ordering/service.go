// internal/ordering/service.go
package ordering

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the ordering service.
type Service interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, cartItemIDs []uuid.UUID) (*View, error)
	CancelOrder(ctx context.Context, userID, orderID uuid.UUID) error
	GetUserOrders(ctx context.Context, userID uuid.UUID) ([]*View, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*View, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]*View, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) error
	UpdateOrderStatusByClaimCode(ctx context.Context, code, status string) error
	VerifyClaimCode(ctx context.Context, code string) (*View, error)
	History(ctx context.Context, orderID uuid.UUID) ([]HistoryEntry, error)
}
