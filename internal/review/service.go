// internal/review/service.go
package review

import (
	"context"

	"github.com/google/uuid"

	"bookstore/internal/catalog"
)

// Service defines the interface for the review service.
type Service interface {
	// Submit creates the user's review of a book or replaces its rating and comment.
	Submit(ctx context.Context, userID, bookID uuid.UUID, sub Submission) (*Review, error)
	Delete(ctx context.Context, userID, bookID uuid.UUID) error
	ListForBook(ctx context.Context, bookID uuid.UUID) ([]*Review, error)
	Stats(ctx context.Context, bookID uuid.UUID) (catalog.Rating, error)
}
