// internal/ordering/domain.go
package ordering

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNoValidItems       = errors.New("no valid cart items")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrOrderNotFound      = errors.New("order not found")
	ErrNotCancellable     = errors.New("only pending orders can be cancelled")
	ErrInvalidStatus      = errors.New("invalid order status")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrDuplicateClaimCode = errors.New("duplicate claim code")
)

// StockError names the book that could not be supplied.
type StockError struct {
	BookID    uuid.UUID
	Title     string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d", e.Title, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusCompleted, StatusCancelled},
}

// ParseStatus matches s case-insensitively against the known statuses.
func ParseStatus(s string) (Status, error) {
	for _, status := range []Status{StatusPending, StatusCompleted, StatusCancelled} {
		if strings.EqualFold(strings.TrimSpace(s), string(status)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// CanTransitionTo reports whether an order may move from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is a placed order. Only Status, Version and UpdatedAt change after creation.
type Order struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ClaimCode string
	Status    Status
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
	Version   int
	OrderedAt time.Time
	UpdatedAt time.Time
	Items     []Item
}

// Item is an order line with the unit price frozen at order time.
type Item struct {
	ID        uuid.UUID
	BookID    uuid.UUID
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// View is the JSON representation of an order.
type View struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	ClaimCode string          `json:"claim_code"`
	OrderedAt time.Time       `json:"ordered_at"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total_amount"`
	Status    Status          `json:"status"`
	Items     []ItemView      `json:"items"`
}

type ItemView struct {
	BookID    uuid.UUID       `json:"book_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (o *Order) View() *View {
	v := &View{
		ID:        o.ID,
		UserID:    o.UserID,
		ClaimCode: o.ClaimCode,
		OrderedAt: o.OrderedAt,
		Subtotal:  o.Subtotal,
		Discount:  o.Discount,
		Total:     o.Total,
		Status:    o.Status,
		Items:     make([]ItemView, 0, len(o.Items)),
	}
	for _, item := range o.Items {
		v.Items = append(v.Items, ItemView{
			BookID:    item.BookID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return v
}

func views(orders []*Order) []*View {
	out := make([]*View, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.View())
	}
	return out
}

// HistoryEntry is one recorded event of an order. Metadata carries the request id and actor
// when the change came through the API.
type HistoryEntry struct {
	Version    int            `json:"version"`
	EventType  string         `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// OrderPlacedEvent is recorded when an order is created.
type OrderPlacedEvent struct {
	OrderID   uuid.UUID       `json:"order_id"`
	UserID    uuid.UUID       `json:"user_id"`
	ClaimCode string          `json:"claim_code"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total_amount"`
	Tiers     []string        `json:"discount_tiers,omitempty"`
	Items     int             `json:"items"`
}

// OrderStatusChangedEvent is recorded on every status transition.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	Reason  string    `json:"reason"`
}
