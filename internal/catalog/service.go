// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddBook(ctx context.Context, details Details, stock int) (*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	UpdateBook(ctx context.Context, id uuid.UUID, details Details) (*Book, error)
	SetSale(ctx context.Context, id uuid.UUID, sale Sale) (*Book, error)
	ClearSale(ctx context.Context, id uuid.UUID) (*Book, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Book, error)
	RemoveBook(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter Filter) (*Page, error)
	Search(ctx context.Context, query string) ([]*Book, error)
}
