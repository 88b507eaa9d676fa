// internal/clients/catalog_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"bookstore/internal/catalog"
)

func (c *Client) GetBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/books/%s", id), nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// CreateBook adds a book to the catalog. It needs an admin token.
func (c *Client) CreateBook(ctx context.Context, details catalog.Details, stock int) (*catalog.Book, error) {
	req := struct {
		catalog.Details
		Stock int `json:"stock"`
	}{details, stock}

	var book catalog.Book
	if err := c.do(ctx, http.MethodPost, "/admin/books", req, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/admin/books/%s/stock", id), map[string]int{"delta": delta}, &book); err != nil {
		return nil, err
	}
	return &book, nil
}
