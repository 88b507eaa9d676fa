// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the membership service.
type Service interface {
	Register(ctx context.Context, email, name, password string) (*User, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role string) (*User, error)
	EnsureAdmin(ctx context.Context, email, password string) error
	// Email returns the registered address of a user.
	Email(ctx context.Context, id uuid.UUID) (string, error)
}
