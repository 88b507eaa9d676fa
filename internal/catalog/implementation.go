// internal/catalog/implementation.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookstore/internal/database"
	"bookstore/internal/eventstore"
	"bookstore/internal/pricing"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	searchLimit  = 20
)

// service implements the Service interface.
type service struct {
	eventStore *eventstore.EventStore
	db         *sql.DB
	now        func() time.Time
}

// NewService creates a new catalog service instance.
func NewService(es *eventstore.EventStore, db *sql.DB) Service {
	return &service{
		eventStore: es,
		db:         db,
		now:        time.Now,
	}
}

// Columns lists the book columns in the order ScanBook reads them, qualified by alias when set.
func Columns(alias string) string {
	cols := []string{
		"id", "isbn", "title", "author", "description", "genre",
		"original_price", "sale_price", "is_on_sale", "sale_start", "sale_end",
		"stock", "sold_count", "version", "created_at", "updated_at",
	}
	if alias != "" {
		for i, c := range cols {
			cols[i] = alias + "." + c
		}
	}
	return strings.Join(cols, ", ")
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanBook reads a row whose trailing columns are Columns. Leading destinations are scanned first.
func ScanBook(row Scanner, leading ...any) (*Book, error) {
	var (
		book      Book
		saleStart sql.NullTime
		saleEnd   sql.NullTime
	)
	dest := append(leading,
		&book.ID,
		&book.ISBN,
		&book.Title,
		&book.Author,
		&book.Description,
		&book.Genre,
		&book.OriginalPrice,
		&book.Price,
		&book.IsOnSale,
		&saleStart,
		&saleEnd,
		&book.Stock,
		&book.SoldCount,
		&book.Version,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if saleStart.Valid {
		book.SaleStart = &saleStart.Time
	}
	if saleEnd.Valid {
		book.SaleEnd = &saleEnd.Time
	}
	return &book, nil
}

// AddBook creates a new book in the catalog.
func (s *service) AddBook(ctx context.Context, details Details, stock int) (*Book, error) {
	if err := details.validate(); err != nil {
		return nil, err
	}
	if stock < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", ErrInvalidBook)
	}

	now := s.now().UTC()
	book := &Book{
		ID:            uuid.New(),
		ISBN:          details.ISBN,
		Title:         details.Title,
		Author:        details.Author,
		Description:   details.Description,
		Genre:         details.Genre,
		OriginalPrice: details.OriginalPrice,
		Stock:         stock,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	event, err := eventstore.New("BookAdded", BookAddedEvent{
		ID:    book.ID,
		ISBN:  book.ISBN,
		Title: book.Title,
		Price: book.OriginalPrice,
		Stock: book.Stock,
	})
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO books (id, isbn, title, author, description, genre, original_price, stock, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, book.ID, book.ISBN, book.Title, book.Author, book.Description, book.Genre, book.OriginalPrice, book.Stock, book.Version, book.CreatedAt, book.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert book: %w", err)
	}

	if err := s.eventStore.AppendEventsTx(ctx, tx, book.ID, aggregateType, 0, []eventstore.Event{event}); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.price(book)
	return book, nil
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+Columns("")+` FROM books WHERE id = $1`, id)
	book, err := ScanBook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	s.price(book)
	return book, nil
}

// UpdateBook replaces the descriptive fields and the list price.
func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, details Details) (*Book, error) {
	if err := details.validate(); err != nil {
		return nil, err
	}
	return s.modify(ctx, id, func(book *Book) (string, any, error) {
		book.ISBN = details.ISBN
		book.Title = details.Title
		book.Author = details.Author
		book.Description = details.Description
		book.Genre = details.Genre
		book.OriginalPrice = details.OriginalPrice
		return "BookUpdated", BookUpdatedEvent{Details: details}, nil
	})
}

// SetSale puts the book on sale with the given price and window.
func (s *service) SetSale(ctx context.Context, id uuid.UUID, sale Sale) (*Book, error) {
	if err := sale.validate(); err != nil {
		return nil, err
	}
	return s.modify(ctx, id, func(book *Book) (string, any, error) {
		book.IsOnSale = true
		book.Price = sale.Price
		book.SaleStart = sale.Start
		book.SaleEnd = sale.End
		return "SaleChanged", SaleChangedEvent{OnSale: true, Price: sale.Price, Start: sale.Start, End: sale.End}, nil
	})
}

// ClearSale ends any sale on the book.
func (s *service) ClearSale(ctx context.Context, id uuid.UUID) (*Book, error) {
	return s.modify(ctx, id, func(book *Book) (string, any, error) {
		book.IsOnSale = false
		book.Price = decimal.NullDecimal{}
		book.SaleStart = nil
		book.SaleEnd = nil
		return "SaleChanged", SaleChangedEvent{OnSale: false}, nil
	})
}

// AdjustStock changes the stock by delta.
func (s *service) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Book, error) {
	return s.modify(ctx, id, func(book *Book) (string, any, error) {
		if book.Stock+delta < 0 {
			return "", nil, ErrStockUnderflow
		}
		book.Stock += delta
		return "StockAdjusted", StockAdjustedEvent{Delta: delta, Stock: book.Stock}, nil
	})
}

// modify locks the book row, applies change to it, writes it back with a bumped version and
// records the returned event, all in one transaction.
func (s *service) modify(ctx context.Context, id uuid.UUID, change func(*Book) (string, any, error)) (*Book, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	book, err := lockBook(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	eventType, payload, err := change(book)
	if err != nil {
		return nil, err
	}
	event, err := eventstore.New(eventType, payload)
	if err != nil {
		return nil, err
	}

	previous := book.Version
	book.Version++
	book.UpdatedAt = s.now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE books
		SET isbn = $1, title = $2, author = $3, description = $4, genre = $5,
			original_price = $6, sale_price = $7, is_on_sale = $8, sale_start = $9, sale_end = $10,
			stock = $11, version = $12, updated_at = $13
		WHERE id = $14
	`, book.ISBN, book.Title, book.Author, book.Description, book.Genre,
		book.OriginalPrice, book.Price, book.IsOnSale, book.SaleStart, book.SaleEnd,
		book.Stock, book.Version, book.UpdatedAt, book.ID)
	if err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}

	if err := s.eventStore.AppendEventsTx(ctx, tx, id, aggregateType, previous, []eventstore.Event{event}); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.price(book)
	return book, nil
}

// RemoveBook deletes a book that no order refers to.
func (s *service) RemoveBook(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	book, err := lockBook(ctx, tx, id)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id); err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrBookInUse
		}
		return fmt.Errorf("delete book: %w", err)
	}

	event, err := eventstore.New("BookRemoved", BookRemovedEvent{ID: id})
	if err != nil {
		return err
	}
	if err := s.eventStore.AppendEventsTx(ctx, tx, id, aggregateType, book.Version, []eventstore.Event{event}); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// List returns one page of books matching filter.
func (s *service) List(ctx context.Context, filter Filter) (*Page, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	now := s.now().UTC()
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Query != "" {
		where = append(where, "to_tsvector('english', title || ' ' || author) @@ plainto_tsquery('english', "+arg(filter.Query)+")")
	}
	if filter.Genre != "" {
		where = append(where, "LOWER(genre) = LOWER("+arg(filter.Genre)+")")
	}
	if filter.OnSaleOnly {
		p := arg(now)
		where = append(where, "is_on_sale AND (sale_start IS NULL OR sale_start <= "+p+") AND (sale_end IS NULL OR sale_end >= "+p+")")
	}

	query := `SELECT COUNT(*) OVER (), ` + Columns("") + ` FROM books`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + s.orderBy(filter.Sort, arg, now)
	query += " LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	page := &Page{Books: []*Book{}, Limit: limit, Offset: offset}
	for rows.Next() {
		book, err := ScanBook(rows, &page.Total)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		s.price(book)
		page.Books = append(page.Books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return page, nil
}

func (s *service) orderBy(sort string, arg func(any) string, now time.Time) string {
	switch sort {
	case SortPriceAsc, SortPriceDesc:
		p := arg(now)
		effective := "CASE WHEN is_on_sale AND (sale_start IS NULL OR sale_start <= " + p + ") AND (sale_end IS NULL OR sale_end >= " + p + ") THEN COALESCE(sale_price, 0) ELSE original_price END"
		if sort == SortPriceDesc {
			return effective + " DESC, id"
		}
		return effective + " ASC, id"
	case SortTitle:
		return "LOWER(title), id"
	case SortBestseller:
		return "sold_count DESC, id"
	default:
		return "created_at DESC, id"
	}
}

// Search finds books whose title or author match the query.
func (s *service) Search(ctx context.Context, query string) ([]*Book, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+Columns("")+`
		FROM books
		WHERE to_tsvector('english', title || ' ' || author) @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(to_tsvector('english', title || ' ' || author), plainto_tsquery('english', $1)) DESC, id
		LIMIT $2
	`, query, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("database search failed: %w", err)
	}
	defer rows.Close()

	books := []*Book{}
	for rows.Next() {
		book, err := ScanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		s.price(book)
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return books, nil
}

func (s *service) price(book *Book) {
	book.EffectivePrice = pricing.EffectivePrice(book.Offer(), s.now())
}

func lockBook(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*Book, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+Columns("")+` FROM books WHERE id = $1 FOR UPDATE`, id)
	book, err := ScanBook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("lock book: %w", err)
	}
	return book, nil
}
