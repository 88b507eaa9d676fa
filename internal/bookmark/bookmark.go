// Package bookmark keeps the books a user has saved for later.
package bookmark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"bookstore/internal/auth"
	"bookstore/internal/catalog"
	"bookstore/internal/database"
	"bookstore/internal/pricing"
	"bookstore/internal/web"
)

var ErrBookmarkNotFound = errors.New("bookmark not found")

// Bookmark is a saved book with the time it was saved.
type Bookmark struct {
	Book    *catalog.Book `json:"book"`
	SavedAt time.Time     `json:"saved_at"`
}

type Service interface {
	// Add saves a book. Saving the same book again is a no-op.
	Add(ctx context.Context, userID, bookID uuid.UUID) error
	Remove(ctx context.Context, userID, bookID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID) ([]*Bookmark, error)
}

type service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) Service {
	return &service{db: db, now: time.Now}
}

func (s *service) Add(ctx context.Context, userID, bookID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (user_id, book_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, book_id) DO NOTHING
	`, userID, bookID, s.now().UTC())
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return catalog.ErrBookNotFound
		}
		return fmt.Errorf("add bookmark: %w", err)
	}
	return nil
}

func (s *service) Remove(ctx context.Context, userID, bookID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE user_id = $1 AND book_id = $2`, userID, bookID)
	if err != nil {
		return fmt.Errorf("remove bookmark: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove bookmark: %w", err)
	}
	if n == 0 {
		return ErrBookmarkNotFound
	}
	return nil
}

// List returns the user's bookmarks, most recently saved first.
func (s *service) List(ctx context.Context, userID uuid.UUID) ([]*Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bm.created_at, `+catalog.Columns("b")+`
		FROM bookmarks bm
		JOIN books b ON b.id = bm.book_id
		WHERE bm.user_id = $1
		ORDER BY bm.created_at DESC, b.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	now := s.now()
	bookmarks := []*Bookmark{}
	for rows.Next() {
		var savedAt time.Time
		book, err := catalog.ScanBook(rows, &savedAt)
		if err != nil {
			return nil, err
		}
		book.EffectivePrice = pricing.EffectivePrice(book.Offer(), now)
		bookmarks = append(bookmarks, &Bookmark{Book: book, SavedAt: savedAt})
	}
	return bookmarks, rows.Err()
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	bookmarks, err := h.service.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, bookmarks)
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	bookID, err := web.UUIDParam(r, "bookID")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.Add(r.Context(), auth.UserID(r.Context()), bookID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	bookID, err := web.UUIDParam(r, "bookID")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.Remove(r.Context(), auth.UserID(r.Context()), bookID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrBookNotFound), errors.Is(err, ErrBookmarkNotFound):
		web.WriteError(w, http.StatusNotFound, err.Error())
	default:
		web.WriteInternal(w, r, err)
	}
}
