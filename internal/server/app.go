// internal/server/app.go
package server

import (
	"database/sql"
	"fmt"
	"net/http"

	"bookstore/internal/auth"
	"bookstore/internal/bookmark"
	"bookstore/internal/cart"
	"bookstore/internal/catalog"
	"bookstore/internal/eventstore"
	"bookstore/internal/idempotency"
	"bookstore/internal/membership"
	"bookstore/internal/notify"
	"bookstore/internal/ordering"
	"bookstore/internal/pricing"
	"bookstore/internal/review"
)

// Deps are the external resources the API runs on.
type Deps struct {
	DB     *sql.DB
	Tokens *auth.Issuer
	Guard  idempotency.Guard
	Sender notify.Sender
	// NotifyRatePerMinute caps outgoing emails; zero disables the limit.
	NotifyRatePerMinute int
	Policy              pricing.Policy
}

// App is the wired API.
type App struct {
	Router  http.Handler
	Members membership.Service
}

// NewApp builds every service over deps and returns the routed API.
func NewApp(deps Deps) (*App, error) {
	es := eventstore.NewEventStore(deps.DB)

	books := catalog.NewService(es, deps.DB)
	members := membership.NewService(es, deps.DB)
	reviews := review.NewService(deps.DB)

	store := ordering.NewPostgresStore(deps.DB, es)
	dispatcher := notify.NewDispatcher(members, deps.Sender, deps.NotifyRatePerMinute)
	orders, err := ordering.NewService(ordering.NewWorkflow(store, deps.Policy), store, es, dispatcher)
	if err != nil {
		return nil, fmt.Errorf("create ordering service: %w", err)
	}

	router := NewRouter(Handlers{
		Tokens:    deps.Tokens,
		Catalog:   catalog.NewHandler(books, reviews.Stats),
		Members:   membership.NewHandler(members, deps.Tokens),
		Cart:      cart.NewHandler(cart.NewService(deps.DB)),
		Orders:    ordering.NewHandler(orders, deps.Guard),
		Reviews:   review.NewHandler(reviews),
		Bookmarks: bookmark.NewHandler(bookmark.NewService(deps.DB)),
		Health:    deps.DB.PingContext,
	})
	return &App{Router: router, Members: members}, nil
}
