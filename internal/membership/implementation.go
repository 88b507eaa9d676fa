// internal/membership/implementation.go
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"bookstore/internal/auth"
	"bookstore/internal/database"
	"bookstore/internal/eventstore"
)

const (
	attemptsPerMinute = 5
	maxTrackedKeys    = 10_000
)

// service implements the Service interface.
type service struct {
	eventStore *eventstore.EventStore
	db         *sql.DB
	now        func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewService creates a new membership service instance.
func NewService(es *eventstore.EventStore, db *sql.DB) Service {
	return &service{
		eventStore: es,
		db:         db,
		now:        time.Now,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// allow applies a per-email limit of five attempts per minute to registration and login.
func (s *service) allow(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[email]
	if !ok {
		if len(s.limiters) >= maxTrackedKeys {
			s.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rate.Every(time.Minute/attemptsPerMinute), attemptsPerMinute)
		s.limiters[email] = limiter
	}
	return limiter.Allow()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a customer account.
func (s *service) Register(ctx context.Context, email, name, password string) (*User, error) {
	email = normalizeEmail(email)
	if !s.allow(email) {
		return nil, ErrRateLimited
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidRegistration)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRegistration)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidRegistration, minPasswordLength)
	}
	return s.create(ctx, email, strings.TrimSpace(name), password, auth.RoleCustomer)
}

func (s *service) create(ctx context.Context, email, name, password, role string) (*User, error) {
	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &User{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		Role:      role,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	event, err := eventstore.New("UserRegistered", UserRegisteredEvent{ID: user.ID, Email: email, Name: name, Role: role})
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.Email, user.Name, user.Role, passwordHash, user.Version, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "users_email_key") {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	if err := s.eventStore.AppendEventsTx(ctx, tx, user.ID, aggregateType, 0, []eventstore.Event{event}); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return user, nil
}

// Authenticate verifies credentials and returns the user if they match.
func (s *service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if !s.allow(email) {
		return nil, ErrRateLimited
	}

	var passwordHash string
	user := &User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, version, created_at, updated_at, password_hash
		FROM users
		WHERE LOWER(email) = $1
	`, email).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.Version,
		&user.CreatedAt,
		&user.UpdatedAt,
		&passwordHash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	ok, err := verifyPassword(password, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

const userColumns = `id, email, name, role, version, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	user := &User{}
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.Version, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by id.
func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *service) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// UpdateRole changes a user's role.
func (s *service) UpdateRole(ctx context.Context, id uuid.UUID, role string) (*User, error) {
	if !auth.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	user, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}
	if user.Role == role {
		return user, nil
	}

	event, err := eventstore.New("UserRoleChanged", UserRoleChangedEvent{ID: id, OldRole: user.Role, NewRole: role})
	if err != nil {
		return nil, err
	}
	if err := s.eventStore.AppendEventsTx(ctx, tx, id, aggregateType, user.Version, []eventstore.Event{event}); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	user.Role = role
	user.Version++
	user.UpdatedAt = s.now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE users SET role = $1, version = $2, updated_at = $3 WHERE id = $4
	`, user.Role, user.Version, user.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return user, nil
}

// EnsureAdmin makes sure an admin account with the given email exists. An existing account is
// promoted; its password is left untouched.
func (s *service) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)

	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE LOWER(email) = $1`, email).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if len(password) < minPasswordLength {
			return fmt.Errorf("%w: admin password must be at least %d characters", ErrInvalidRegistration, minPasswordLength)
		}
		if _, err := s.create(ctx, email, "Administrator", password, auth.RoleAdmin); err != nil {
			return err
		}
		log.Printf("Created admin account %s", email)
		return nil
	case err != nil:
		return fmt.Errorf("lookup admin: %w", err)
	}

	_, err = s.UpdateRole(ctx, id, auth.RoleAdmin)
	return err
}

func (s *service) Email(ctx context.Context, id uuid.UUID) (string, error) {
	var email string
	err := s.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, id).Scan(&email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("lookup email: %w", err)
	}
	return email, nil
}
