// internal/review/implementation.go
package review

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookstore/internal/catalog"
	"bookstore/internal/database"
)

type service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) Service {
	return &service{db: db, now: time.Now}
}

func (s *service) Submit(ctx context.Context, userID, bookID uuid.UUID, sub Submission) (*Review, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}

	r := &Review{UserID: userID, BookID: bookID, Rating: sub.Rating, Comment: sub.Comment}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO reviews (id, user_id, book_id, rating, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id, book_id)
		DO UPDATE SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`, uuid.New(), userID, bookID, sub.Rating, sub.Comment, s.now().UTC()).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, catalog.ErrBookNotFound
		}
		return nil, fmt.Errorf("save review: %w", err)
	}
	return r, nil
}

func (s *service) Delete(ctx context.Context, userID, bookID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reviews WHERE user_id = $1 AND book_id = $2`, userID, bookID)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if n == 0 {
		return ErrReviewNotFound
	}
	return nil
}

// ListForBook returns a book's reviews, newest first.
func (s *service) ListForBook(ctx context.Context, bookID uuid.UUID) ([]*Review, error) {
	if err := s.requireBook(ctx, bookID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.user_id, r.book_id, u.name, r.rating, r.comment, r.created_at, r.updated_at
		FROM reviews r
		JOIN users u ON u.id = r.user_id
		WHERE r.book_id = $1
		ORDER BY r.created_at DESC, r.id
	`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []*Review{}
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.UserID, &r.BookID, &r.Author, &r.Rating, &r.Comment, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, &r)
	}
	return reviews, rows.Err()
}

// Stats returns the average rating rounded to one decimal and the number of reviews.
func (s *service) Stats(ctx context.Context, bookID uuid.UUID) (catalog.Rating, error) {
	if err := s.requireBook(ctx, bookID); err != nil {
		return catalog.Rating{}, err
	}

	var (
		avg   decimal.Decimal
		count int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(rating), 0), COUNT(*) FROM reviews WHERE book_id = $1
	`, bookID).Scan(&avg, &count)
	if err != nil {
		return catalog.Rating{}, fmt.Errorf("review stats: %w", err)
	}
	return catalog.Rating{Average: avg.Round(1).InexactFloat64(), Count: count}, nil
}

func (s *service) requireBook(ctx context.Context, bookID uuid.UUID) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, bookID).Scan(&exists); err != nil {
		return fmt.Errorf("check book: %w", err)
	}
	if !exists {
		return catalog.ErrBookNotFound
	}
	return nil
}
