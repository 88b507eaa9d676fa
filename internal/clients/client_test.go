package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore/internal/catalog"
	"bookstore/internal/membership"
	"bookstore/internal/ordering"
	"bookstore/internal/web"
)

func TestClient_RoundTrips(t *testing.T) {
	bookID := uuid.New()
	itemID := uuid.New()
	orderID := uuid.New()

	r := chi.NewRouter()
	r.Post("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ada@example.com", req["email"])
		web.WriteJSON(w, http.StatusCreated, map[string]any{
			"token": "tok",
			"user":  membership.User{ID: uuid.New(), Email: req["email"], Role: "customer"},
		})
	})
	r.Post("/admin/books", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Dune", req["title"])
		assert.EqualValues(t, 3, req["stock"])
		web.WriteJSON(w, http.StatusCreated, catalog.Book{ID: bookID, Title: "Dune", Stock: 3})
	})
	r.Post("/cart/items", func(w http.ResponseWriter, r *http.Request) {
		web.WriteJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": itemID})
	})
	r.Post("/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get(ordering.IdempotencyHeader))
		web.WriteJSON(w, http.StatusCreated, ordering.View{ID: orderID, ClaimCode: "BK-00C0FFEE", Status: ordering.StatusPending})
	})
	r.Post("/orders/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		web.WriteError(w, http.StatusConflict, "only pending orders can be cancelled")
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx := context.Background()
	anon := NewClient(srv.URL + "/")

	session, err := anon.Register(ctx, "ada@example.com", "Ada", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "tok", session.Token)
	assert.Equal(t, "ada@example.com", session.User.Email)

	c := anon.WithToken(session.Token)
	book, err := c.CreateBook(ctx, catalog.Details{Title: "Dune", Author: "Frank Herbert", OriginalPrice: decimal.RequireFromString("9.99")}, 3)
	require.NoError(t, err)
	assert.Equal(t, bookID, book.ID)

	id, err := c.AddToCart(ctx, book.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, itemID, id)

	view, err := c.PlaceOrder(ctx, []uuid.UUID{id}, "key-1")
	require.NoError(t, err)
	assert.Equal(t, orderID, view.ID)

	err = c.CancelOrder(ctx, view.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, StatusCode(err))
	assert.Contains(t, err.Error(), "only pending orders")

	_, err = c.MyOrders(ctx)
	assert.Equal(t, http.StatusMethodNotAllowed, StatusCode(err))
}

func TestStatusCode_NonAPIError(t *testing.T) {
	assert.Zero(t, StatusCode(assert.AnError))
	assert.Zero(t, StatusCode(nil))
}
