// internal/clients/ordering_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"bookstore/internal/ordering"
)

// AddToCart puts quantity copies of a book in the caller's cart and returns the cart item id.
func (c *Client) AddToCart(ctx context.Context, bookID uuid.UUID, quantity int) (uuid.UUID, error) {
	req := struct {
		BookID   uuid.UUID `json:"book_id"`
		Quantity int       `json:"quantity"`
	}{bookID, quantity}

	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/cart/items", req, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.ID, nil
}

// PlaceOrder checks out the given cart items. A non-empty idempotencyKey is sent with the request.
func (c *Client) PlaceOrder(ctx context.Context, cartItemIDs []uuid.UUID, idempotencyKey string) (*ordering.View, error) {
	var headers []string
	if idempotencyKey != "" {
		headers = []string{ordering.IdempotencyHeader, idempotencyKey}
	}

	var view ordering.View
	req := map[string][]uuid.UUID{"cart_item_ids": cartItemIDs}
	if err := c.do(ctx, http.MethodPost, "/orders", req, &view, headers...); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/orders/%s/cancel", orderID), nil, nil)
}

func (c *Client) MyOrders(ctx context.Context) ([]*ordering.View, error) {
	var views []*ordering.View
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}
