// internal/ordering/workflow.go
package ordering

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookstore/internal/eventstore"
	"bookstore/internal/notify"
	"bookstore/internal/pricing"
)

const maxClaimCodeAttempts = 3

// Outcome is the committed result of a workflow step and the messages to send about it.
type Outcome struct {
	Order         *Order
	Changed       bool
	Notifications []notify.Message
}

// Workflow implements order placement, cancellation and status transitions. Each operation runs
// in a single unit of work; notifications are returned to the caller instead of being sent.
type Workflow struct {
	store     Store
	policy    pricing.Policy
	now       func() time.Time
	claimCode func() string
}

func NewWorkflow(store Store, policy pricing.Policy) *Workflow {
	return &Workflow{
		store:     store,
		policy:    policy,
		now:       time.Now,
		claimCode: NewClaimCode,
	}
}

// NewClaimCode returns a code of the form BK-XXXXXXXX made of eight upper-case hex digits of a
// random UUID.
func NewClaimCode() string {
	id := uuid.New()
	return "BK-" + strings.ToUpper(hex.EncodeToString(id[:4]))
}

// NormalizeClaimCode canonicalizes a code typed in by staff.
func NormalizeClaimCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Place turns the given cart items of userID into a Pending order.
func (w *Workflow) Place(ctx context.Context, userID uuid.UUID, cartItemIDs []uuid.UUID) (*Outcome, error) {
	ids := uniqueIDs(cartItemIDs)
	if len(ids) == 0 {
		return nil, ErrNoValidItems
	}

	var lastErr error
	for attempt := 1; attempt <= maxClaimCodeAttempts; attempt++ {
		outcome, err := w.place(ctx, userID, ids, w.claimCode())
		if !errors.Is(err, ErrDuplicateClaimCode) {
			return outcome, err
		}
		log.Printf("Claim code collision on attempt %d for user %s, regenerating", attempt, userID)
		lastErr = err
	}
	return nil, fmt.Errorf("place order after %d attempts: %w", maxClaimCodeAttempts, lastErr)
}

func (w *Workflow) place(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, claimCode string) (*Outcome, error) {
	var order *Order

	err := w.store.WithinTx(ctx, func(tx Tx) error {
		lines, err := tx.CartLines(ctx, userID, ids)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrNoValidItems
		}

		requested := make(map[uuid.UUID]int)
		titles := make(map[uuid.UUID]string)
		for _, line := range lines {
			requested[line.BookID] += line.Quantity
			titles[line.BookID] = line.Title
		}
		bookIDs := sortedKeys(requested)

		stock, err := tx.LockBooks(ctx, bookIDs)
		if err != nil {
			return err
		}
		for _, id := range bookIDs {
			if stock[id] < requested[id] {
				return &StockError{BookID: id, Title: titles[id], Requested: requested[id], Available: stock[id]}
			}
		}

		now := w.now().UTC()
		order = &Order{
			ID:        uuid.New(),
			UserID:    userID,
			ClaimCode: claimCode,
			Status:    StatusPending,
			Version:   1,
			OrderedAt: now,
			UpdatedAt: now,
		}

		subtotal := decimal.Zero
		quantity := 0
		cartIDs := make([]uuid.UUID, 0, len(lines))
		for _, line := range lines {
			price := pricing.EffectivePrice(line.Offer, now)
			order.Items = append(order.Items, Item{
				ID:        uuid.New(),
				BookID:    line.BookID,
				Title:     line.Title,
				Quantity:  line.Quantity,
				UnitPrice: price,
			})
			subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
			quantity += line.Quantity
			cartIDs = append(cartIDs, line.CartItemID)
		}

		prior, err := tx.CompletedOrderCount(ctx, userID)
		if err != nil {
			return err
		}
		quote := w.policy.Apply(subtotal, quantity, prior)
		order.Subtotal = quote.Subtotal
		order.Discount = quote.Discount
		order.Total = quote.Total

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		for _, id := range bookIDs {
			ok, err := tx.DecrementStock(ctx, id, requested[id])
			if err != nil {
				return err
			}
			if !ok {
				return &StockError{BookID: id, Title: titles[id], Requested: requested[id], Available: stock[id]}
			}
		}

		if err := tx.DeleteCartItems(ctx, userID, cartIDs); err != nil {
			return err
		}

		event, err := eventstore.New("OrderPlaced", OrderPlacedEvent{
			OrderID:   order.ID,
			UserID:    userID,
			ClaimCode: order.ClaimCode,
			Subtotal:  order.Subtotal,
			Discount:  order.Discount,
			Total:     order.Total,
			Tiers:     quote.Tiers,
			Items:     len(order.Items),
		})
		if err != nil {
			return err
		}
		return tx.Record(ctx, order.ID, 0, event)
	})
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Order:         order,
		Changed:       true,
		Notifications: []notify.Message{confirmationMessage(order)},
	}, nil
}

// Cancel cancels a Pending order owned by userID and puts its books back in stock.
func (w *Workflow) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*Outcome, error) {
	var order *Order

	err := w.store.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return ErrOrderNotFound
		}
		if o.Status != StatusPending {
			return ErrNotCancellable
		}
		order = o
		return w.transition(ctx, tx, o, StatusCancelled, "cancelled by customer")
	})
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Order:         order,
		Changed:       true,
		Notifications: []notify.Message{statusMessage(order, StatusPending)},
	}, nil
}

// UpdateStatus moves the order with the given id to status. Setting the current status again is
// accepted and changes nothing.
func (w *Workflow) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*Outcome, error) {
	return w.updateStatus(ctx, status, "updated by admin", func(tx Tx) (*Order, error) {
		return tx.LockOrder(ctx, orderID)
	})
}

// UpdateStatusByClaimCode is UpdateStatus for staff who only know the claim code.
func (w *Workflow) UpdateStatusByClaimCode(ctx context.Context, code, status string) (*Outcome, error) {
	code = NormalizeClaimCode(code)
	return w.updateStatus(ctx, status, "updated by staff", func(tx Tx) (*Order, error) {
		return tx.LockOrderByClaimCode(ctx, code)
	})
}

func (w *Workflow) updateStatus(ctx context.Context, status, reason string, locate func(Tx) (*Order, error)) (*Outcome, error) {
	target, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	var (
		order   *Order
		from    Status
		changed bool
	)
	err = w.store.WithinTx(ctx, func(tx Tx) error {
		o, err := locate(tx)
		if err != nil {
			return err
		}
		order = o
		if o.Status == target {
			return nil
		}
		if !o.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, o.Status, target)
		}
		from = o.Status
		changed = true
		return w.transition(ctx, tx, o, target, reason)
	})
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Order: order, Changed: changed}
	if changed {
		outcome.Notifications = []notify.Message{statusMessage(order, from)}
	}
	return outcome, nil
}

// transition applies the side effects of entering status to, then records the change.
func (w *Workflow) transition(ctx context.Context, tx Tx, o *Order, to Status, reason string) error {
	items := slices.Clone(o.Items)
	slices.SortFunc(items, func(a, b Item) int { return strings.Compare(a.BookID.String(), b.BookID.String()) })

	switch to {
	case StatusCompleted:
		for _, item := range items {
			if err := tx.IncrementSoldCount(ctx, item.BookID, item.Quantity); err != nil {
				return err
			}
		}
	case StatusCancelled:
		for _, item := range items {
			if err := tx.RestoreStock(ctx, item.BookID, item.Quantity); err != nil {
				return err
			}
		}
	}

	from := o.Status
	previous := o.Version
	o.Status = to
	o.Version++
	o.UpdatedAt = w.now().UTC()

	if err := tx.SetStatus(ctx, o.ID, o.Status, o.Version, o.UpdatedAt); err != nil {
		return err
	}

	event, err := eventstore.New("OrderStatusChanged", OrderStatusChangedEvent{
		OrderID: o.ID,
		From:    from,
		To:      to,
		Reason:  reason,
	})
	if err != nil {
		return err
	}
	return tx.Record(ctx, o.ID, previous, event)
}

func confirmationMessage(o *Order) notify.Message {
	var body strings.Builder
	fmt.Fprintf(&body, "Thank you for your order.\n\nClaim code: %s\n\n", o.ClaimCode)
	for _, item := range o.Items {
		fmt.Fprintf(&body, "%d x %s @ %s\n", item.Quantity, item.Title, item.UnitPrice.StringFixed(2))
	}
	fmt.Fprintf(&body, "\nSubtotal: %s\nDiscount: %s\nTotal: %s\n",
		o.Subtotal.StringFixed(2), o.Discount.StringFixed(2), o.Total.StringFixed(2))
	fmt.Fprintf(&body, "\nPresent the claim code when you collect your books.\n")

	return notify.Message{
		UserID:  o.UserID,
		Subject: fmt.Sprintf("Order %s confirmed", o.ClaimCode),
		Body:    body.String(),
	}
}

func statusMessage(o *Order, from Status) notify.Message {
	return notify.Message{
		UserID:  o.UserID,
		Subject: fmt.Sprintf("Order %s is now %s", o.ClaimCode, o.Status),
		Body:    fmt.Sprintf("The status of order %s changed from %s to %s.\n", o.ClaimCode, from, o.Status),
	}
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// sortedKeys returns the book ids in lock order.
func sortedKeys(m map[uuid.UUID]int) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	return keys
}
