// internal/membership/domain.go
package membership

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRegistration = errors.New("invalid registration")
	ErrInvalidRole         = errors.New("invalid role")
	ErrRateLimited         = errors.New("rate limit exceeded")
)

const (
	aggregateType     = "user"
	minPasswordLength = 8
)

// User is a registered account.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserRegisteredEvent is recorded when an account is created.
type UserRegisteredEvent struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  string    `json:"role"`
}

// UserRoleChangedEvent is recorded when an admin changes a user's role.
type UserRoleChangedEvent struct {
	ID      uuid.UUID `json:"id"`
	OldRole string    `json:"old_role"`
	NewRole string    `json:"new_role"`
}
