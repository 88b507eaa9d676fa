// internal/chaos/drills.go
package chaos

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bookstore/internal/catalog"
	"bookstore/internal/clients"
)

const drillPassword = "drill-password-1"

// Drills builds the bookstore drills. They talk to the API as real users and read the database
// directly to check invariants.
type Drills struct {
	db      *sql.DB
	api     *clients.Client
	admin   *clients.Client
	workers int
	window  time.Duration
}

// NewDrills returns drills running at most workers concurrent requests. admin must carry an
// admin token.
func NewDrills(db *sql.DB, api, admin *clients.Client, workers int, window time.Duration) *Drills {
	if workers < 1 {
		workers = 1
	}
	return &Drills{db: db, api: api, admin: admin, workers: workers, window: window}
}

// All returns the standard drill set.
func (d *Drills) All() []Drill {
	return []Drill{
		d.OversellRace(3, 12),
		d.CancelStorm(5),
		d.DuplicateCheckout(6),
	}
}

func (d *Drills) negativeStock() Probe {
	return Probe{
		Name: "negative_stock_books",
		Query: func(ctx context.Context) (float64, error) {
			var n int
			err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books WHERE stock < 0`).Scan(&n)
			return float64(n), err
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

func (d *Drills) bookStock(name string, id *uuid.UUID) Probe {
	return Probe{
		Name: name,
		Query: func(ctx context.Context) (float64, error) {
			var stock int
			err := d.db.QueryRowContext(ctx, `SELECT stock FROM books WHERE id = $1`, *id).Scan(&stock)
			return float64(stock), err
		},
		Threshold: Threshold{Operator: ">=", Value: 0},
	}
}

func counter(name string, c *atomic.Int64) Probe {
	return Probe{
		Name:      name,
		Query:     func(context.Context) (float64, error) { return float64(c.Load()), nil },
		Threshold: Threshold{Operator: ">=", Value: 0},
	}
}

func (d *Drills) seedBook(ctx context.Context, label string, stock int) (uuid.UUID, error) {
	book, err := d.admin.CreateBook(ctx, catalog.Details{
		Title:         fmt.Sprintf("Drill %s %s", label, uuid.NewString()[:8]),
		Author:        "Drill Runner",
		Genre:         "drill",
		OriginalPrice: decimal.RequireFromString("1.00"),
	}, stock)
	if err != nil {
		return uuid.Nil, fmt.Errorf("seed book: %w", err)
	}
	return book.ID, nil
}

// retire withdraws whatever stock a drill book has left so shoppers never buy it.
func (d *Drills) retire(id *uuid.UUID) Action {
	return Action{Name: "retire drill book", Run: func(ctx context.Context) error {
		if *id == uuid.Nil {
			return nil
		}
		book, err := d.admin.GetBook(ctx, *id)
		if err != nil {
			return fmt.Errorf("get drill book: %w", err)
		}
		if book.Stock == 0 {
			return nil
		}
		_, err = d.admin.AdjustStock(ctx, *id, -book.Stock)
		return err
	}}
}

// customer registers a throwaway account and returns a client acting as it.
func (d *Drills) customer(ctx context.Context) (*clients.Client, error) {
	email := fmt.Sprintf("drill-%s@example.com", uuid.NewString())
	session, err := d.api.Register(ctx, email, "Drill Customer", drillPassword)
	if err != nil {
		return nil, fmt.Errorf("register customer: %w", err)
	}
	return d.api.WithToken(session.Token), nil
}

// OversellRace has buyers customers race for a book with stock copies, one copy each.
func (d *Drills) OversellRace(stock, buyers int) Drill {
	var (
		bookID   uuid.UUID
		placed   atomic.Int64
		rejected atomic.Int64
	)

	return Drill{
		Name:        "oversell-race",
		Hypothesis:  "Concurrent checkouts of the last copies never sell more than the stock",
		SteadyState: []Probe{d.negativeStock()},
		Observe: []Probe{
			d.bookStock("drill_book_stock", &bookID),
			counter("orders_placed", &placed),
			counter("orders_rejected", &rejected),
		},
		Method: []Action{
			{Name: "seed book", Run: func(ctx context.Context) (err error) {
				bookID, err = d.seedBook(ctx, "oversell", stock)
				return err
			}},
			{Name: "concurrent checkouts", Run: func(ctx context.Context) error {
				g, ctx := errgroup.WithContext(ctx)
				g.SetLimit(d.workers)
				for i := 0; i < buyers; i++ {
					g.Go(func() error {
						c, err := d.customer(ctx)
						if err != nil {
							return err
						}
						item, err := c.AddToCart(ctx, bookID, 1)
						if err != nil {
							return fmt.Errorf("add to cart: %w", err)
						}
						_, err = c.PlaceOrder(ctx, []uuid.UUID{item}, "")
						switch {
						case err == nil:
							placed.Add(1)
						case clients.StatusCode(err) == http.StatusConflict:
							rejected.Add(1)
						default:
							return fmt.Errorf("place order: %w", err)
						}
						return nil
					})
				}
				return g.Wait()
			}},
		},
		Rollback: []Action{d.retire(&bookID)},
		Validation: []Assertion{
			{Probe: "orders_placed", Condition: func(v float64) bool { return v == float64(min(stock, buyers)) }, Message: "every copy sells exactly once"},
			{Probe: "orders_rejected", Condition: func(v float64) bool { return v == float64(max(buyers-stock, 0)) }, Message: "buyers beyond the stock are turned away"},
			{Probe: "drill_book_stock", Condition: func(v float64) bool { return v == float64(max(stock-buyers, 0)) }, Message: "stock ends at what was not sold"},
		},
		Window: d.window,
	}
}

// CancelStorm places orders and then cancels each of them twice at once.
func (d *Drills) CancelStorm(orders int) Drill {
	const perOrder = 2
	var (
		bookID    uuid.UUID
		placed    []uuid.UUID
		cancelled atomic.Int64
		conflicts atomic.Int64
		buyer     *clients.Client
	)

	return Drill{
		Name:        "cancel-storm",
		Hypothesis:  "Duplicate concurrent cancellations restore stock exactly once",
		SteadyState: []Probe{d.negativeStock()},
		Observe: []Probe{
			d.bookStock("drill_book_stock", &bookID),
			counter("orders_cancelled", &cancelled),
			counter("cancel_conflicts", &conflicts),
		},
		Method: []Action{
			{Name: "seed book", Run: func(ctx context.Context) (err error) {
				bookID, err = d.seedBook(ctx, "cancel", orders*perOrder)
				return err
			}},
			{Name: "place orders", Run: func(ctx context.Context) (err error) {
				if buyer, err = d.customer(ctx); err != nil {
					return err
				}
				for i := 0; i < orders; i++ {
					item, err := buyer.AddToCart(ctx, bookID, perOrder)
					if err != nil {
						return fmt.Errorf("add to cart: %w", err)
					}
					view, err := buyer.PlaceOrder(ctx, []uuid.UUID{item}, "")
					if err != nil {
						return fmt.Errorf("place order: %w", err)
					}
					placed = append(placed, view.ID)
				}
				return nil
			}},
			{Name: "double cancellations", Run: func(ctx context.Context) error {
				g, ctx := errgroup.WithContext(ctx)
				g.SetLimit(d.workers)
				for _, id := range placed {
					for range 2 {
						g.Go(func() error {
							err := buyer.CancelOrder(ctx, id)
							switch {
							case err == nil:
								cancelled.Add(1)
							case clients.StatusCode(err) == http.StatusConflict:
								conflicts.Add(1)
							default:
								return fmt.Errorf("cancel order: %w", err)
							}
							return nil
						})
					}
				}
				return g.Wait()
			}},
		},
		Rollback: []Action{d.retire(&bookID)},
		Validation: []Assertion{
			{Probe: "orders_cancelled", Condition: func(v float64) bool { return v == float64(orders) }, Message: "each order is cancelled once"},
			{Probe: "cancel_conflicts", Condition: func(v float64) bool { return v == float64(orders) }, Message: "each repeat cancellation is rejected"},
			{Probe: "drill_book_stock", Condition: func(v float64) bool { return v == float64(orders*perOrder) }, Message: "all stock is back"},
		},
		Window: d.window,
	}
}

// DuplicateCheckout fires the same checkout with one idempotency key attempts times at once.
func (d *Drills) DuplicateCheckout(attempts int) Drill {
	var (
		bookID uuid.UUID
		placed atomic.Int64
		dups   atomic.Int64
	)

	return Drill{
		Name:        "duplicate-checkout",
		Hypothesis:  "Retried checkouts with one idempotency key create a single order",
		SteadyState: []Probe{d.negativeStock()},
		Observe: []Probe{
			d.bookStock("drill_book_stock", &bookID),
			counter("orders_placed", &placed),
			counter("duplicates_rejected", &dups),
		},
		Method: []Action{
			{Name: "seed book", Run: func(ctx context.Context) (err error) {
				bookID, err = d.seedBook(ctx, "retry", attempts)
				return err
			}},
			{Name: "retry storm", Run: func(ctx context.Context) error {
				buyer, err := d.customer(ctx)
				if err != nil {
					return err
				}
				item, err := buyer.AddToCart(ctx, bookID, 1)
				if err != nil {
					return fmt.Errorf("add to cart: %w", err)
				}

				key := uuid.NewString()
				g, ctx := errgroup.WithContext(ctx)
				g.SetLimit(d.workers)
				for i := 0; i < attempts; i++ {
					g.Go(func() error {
						_, err := buyer.PlaceOrder(ctx, []uuid.UUID{item}, key)
						switch {
						case err == nil:
							placed.Add(1)
						case clients.StatusCode(err) == http.StatusConflict:
							dups.Add(1)
						default:
							return fmt.Errorf("place order: %w", err)
						}
						return nil
					})
				}
				return g.Wait()
			}},
		},
		Rollback: []Action{d.retire(&bookID)},
		Validation: []Assertion{
			{Probe: "orders_placed", Condition: func(v float64) bool { return v == 1 }, Message: "exactly one order is created"},
			{Probe: "duplicates_rejected", Condition: func(v float64) bool { return v == float64(attempts-1) }, Message: "every retry is rejected"},
			{Probe: "drill_book_stock", Condition: func(v float64) bool { return v == float64(attempts-1) }, Message: "one copy leaves stock"},
		},
		Window: d.window,
	}
}
