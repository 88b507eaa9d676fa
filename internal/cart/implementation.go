// internal/cart/implementation.go
package cart

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookstore/internal/catalog"
	"bookstore/internal/database"
	"bookstore/internal/pricing"
)

type service struct {
	db  *sql.DB
	now func() time.Time
}

// NewService creates a cart service backed by Postgres.
func NewService(db *sql.DB) Service {
	return &service{db: db, now: time.Now}
}

// AddItem adds quantity copies of a book, merging with an existing line for the same book.
func (s *service) AddItem(ctx context.Context, userID, bookID uuid.UUID, quantity int) (uuid.UUID, error) {
	if quantity <= 0 {
		return uuid.Nil, ErrInvalidQuantity
	}

	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cart_items (id, user_id, book_id, quantity, added_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, book_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id
	`, uuid.New(), userID, bookID, quantity, s.now().UTC()).Scan(&id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return uuid.Nil, catalog.ErrBookNotFound
		}
		return uuid.Nil, fmt.Errorf("add cart item: %w", err)
	}
	return id, nil
}

// SetQuantity overwrites the quantity of a line; zero or less removes it.
func (s *service) SetQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, itemID)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $1 WHERE id = $2 AND user_id = $3
	`, quantity, itemID, userID)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return expectOneRow(res)
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return expectOneRow(res)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// GetCart lists the user's cart at current effective prices.
func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ci.id, ci.quantity, ci.added_at, `+catalog.Columns("b")+`
		FROM cart_items ci
		JOIN books b ON b.id = ci.book_id
		WHERE ci.user_id = $1
		ORDER BY ci.added_at, ci.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	now := s.now()
	cart := &Cart{Items: []*Item{}, Subtotal: decimal.Zero}
	for rows.Next() {
		var item Item
		book, err := catalog.ScanBook(rows, &item.ID, &item.Quantity, &item.AddedAt)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}

		item.BookID = book.ID
		item.Title = book.Title
		item.Author = book.Author
		item.UnitPrice = pricing.EffectivePrice(book.Offer(), now)
		item.LineTotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		item.InStock = book.Stock >= item.Quantity

		cart.Items = append(cart.Items, &item)
		cart.Quantity += item.Quantity
		cart.Subtotal = cart.Subtotal.Add(item.LineTotal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart: %w", err)
	}
	return cart, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrCartItemNotFound
	}
	return nil
}
