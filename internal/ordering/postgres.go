package ordering

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"bookstore/internal/catalog"
	"bookstore/internal/database"
	"bookstore/internal/eventstore"
)

const (
	aggregateType    = "order"
	defaultListLimit = 50
	maxListLimit     = 200
	orderColumns     = `id, user_id, claim_code, status, subtotal, discount, total_amount, version, ordered_at, updated_at`
)

// PostgresStore keeps orders in Postgres and records their events in the event store.
type PostgresStore struct {
	db     *sql.DB
	events *eventstore.EventStore
}

func NewPostgresStore(db *sql.DB, events *eventstore.EventStore) *PostgresStore {
	return &PostgresStore{db: db, events: events}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx, events: s.events}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return findOrder(ctx, s.db, `WHERE id = $1`, id)
}

func (s *PostgresStore) FindOrderByClaimCode(ctx context.Context, code string) (*Order, error) {
	return findOrder(ctx, s.db, `WHERE claim_code = $1`, code)
}

func (s *PostgresStore) ListUserOrders(ctx context.Context, userID uuid.UUID) ([]*Order, error) {
	return listOrders(ctx, s.db, `WHERE user_id = $1 ORDER BY ordered_at DESC, id`, userID)
}

func (s *PostgresStore) ListOrders(ctx context.Context, filter ListFilter) ([]*Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(filter.Offset, 0)

	if filter.Status != "" {
		return listOrders(ctx, s.db, `WHERE status = $1 ORDER BY ordered_at DESC, id LIMIT $2 OFFSET $3`, string(filter.Status), limit, offset)
	}
	return listOrders(ctx, s.db, `ORDER BY ordered_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanOrder(row catalog.Scanner) (*Order, error) {
	o := &Order{}
	var status string
	if err := row.Scan(&o.ID, &o.UserID, &o.ClaimCode, &status, &o.Subtotal, &o.Discount, &o.Total, &o.Version, &o.OrderedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = Status(status)
	return o, nil
}

func findOrder(ctx context.Context, q querier, where string, args ...any) (*Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders `+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := loadItems(ctx, q, []*Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func listOrders(ctx context.Context, q querier, clause string, args ...any) ([]*Order, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []*Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if err := loadItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadItems fills the items of orders with a single query.
func loadItems(ctx context.Context, q querier, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		o.Items = []Item{}
		byID[o.ID] = o
		ids = append(ids, o.ID.String())
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, book_id, title, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY title, id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    Item
			orderID uuid.UUID
		)
		if err := rows.Scan(&item.ID, &orderID, &item.BookID, &item.Title, &item.Quantity, &item.UnitPrice); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order items: %w", err)
	}
	return nil
}

type pgTx struct {
	tx     *sql.Tx
	events *eventstore.EventStore
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (t *pgTx) CartLines(ctx context.Context, userID uuid.UUID, cartItemIDs []uuid.UUID) ([]CartLine, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT ci.id, ci.quantity, `+catalog.Columns("b")+`
		FROM cart_items ci
		JOIN books b ON b.id = ci.book_id
		WHERE ci.user_id = $1 AND ci.id = ANY($2::uuid[])
		ORDER BY ci.added_at, ci.id
	`, userID, pq.Array(idStrings(cartItemIDs)))
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	var lines []CartLine
	for rows.Next() {
		var line CartLine
		book, err := catalog.ScanBook(rows, &line.CartItemID, &line.Quantity)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		line.BookID = book.ID
		line.Title = book.Title
		line.Offer = book.Offer()
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}
	return lines, nil
}

func (t *pgTx) CompletedOrderCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status = $2
	`, userID, string(StatusCompleted)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed orders: %w", err)
	}
	return n, nil
}

func (t *pgTx) LockBooks(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, stock FROM books WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE
	`, pq.Array(idStrings(bookIDs)))
	if err != nil {
		return nil, fmt.Errorf("lock books: %w", err)
	}
	defer rows.Close()

	stock := make(map[uuid.UUID]int, len(bookIDs))
	for rows.Next() {
		var (
			id uuid.UUID
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		stock[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock: %w", err)
	}
	return stock, nil
}

func (t *pgTx) DecrementStock(ctx context.Context, bookID uuid.UUID, quantity int) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE books SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1
	`, quantity, bookID)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return n == 1, nil
}

func (t *pgTx) RestoreStock(ctx context.Context, bookID uuid.UUID, quantity int) error {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE books SET stock = stock + $1, updated_at = NOW() WHERE id = $2
	`, quantity, bookID); err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	return nil
}

func (t *pgTx) IncrementSoldCount(ctx context.Context, bookID uuid.UUID, quantity int) error {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE books SET sold_count = sold_count + $1, updated_at = NOW() WHERE id = $2
	`, quantity, bookID); err != nil {
		return fmt.Errorf("increment sold count: %w", err)
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, claim_code, status, subtotal, discount, total_amount, version, ordered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, o.ID, o.UserID, o.ClaimCode, string(o.Status), o.Subtotal, o.Discount, o.Total, o.Version, o.OrderedAt, o.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "orders_claim_code_key") {
			return ErrDuplicateClaimCode
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range o.Items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, book_id, title, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.ID, o.ID, item.BookID, item.Title, item.Quantity, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (t *pgTx) DeleteCartItems(ctx context.Context, userID uuid.UUID, cartItemIDs []uuid.UUID) error {
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM cart_items WHERE user_id = $1 AND id = ANY($2::uuid[])
	`, userID, pq.Array(idStrings(cartItemIDs))); err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return findOrder(ctx, t.tx, `WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) LockOrderByClaimCode(ctx context.Context, code string) (*Order, error) {
	return findOrder(ctx, t.tx, `WHERE claim_code = $1 FOR UPDATE`, code)
}

func (t *pgTx) SetStatus(ctx context.Context, id uuid.UUID, status Status, version int, updatedAt time.Time) error {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, version = $2, updated_at = $3 WHERE id = $4
	`, string(status), version, updatedAt, id); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (t *pgTx) Record(ctx context.Context, orderID uuid.UUID, expectedVersion int, event eventstore.Event) error {
	if err := t.events.AppendEventsTx(ctx, t.tx, orderID, aggregateType, expectedVersion, []eventstore.Event{event}); err != nil {
		return fmt.Errorf("record %s: %w", event.EventType, err)
	}
	return nil
}
