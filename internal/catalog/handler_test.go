package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	mu    sync.Mutex
	books map[uuid.UUID]*Book
}

func newStubService() *stubService {
	return &stubService{books: make(map[uuid.UUID]*Book)}
}

func (s *stubService) AddBook(ctx context.Context, details Details, stock int) (*Book, error) {
	if err := details.validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	book := &Book{ID: uuid.New(), Title: details.Title, Author: details.Author, OriginalPrice: details.OriginalPrice, Stock: stock, Version: 1}
	s.books[book.ID] = book
	return book, nil
}

func (s *stubService) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[id]
	if !ok {
		return nil, ErrBookNotFound
	}
	copied := *book
	return &copied, nil
}

func (s *stubService) UpdateBook(ctx context.Context, id uuid.UUID, details Details) (*Book, error) {
	return s.GetBook(ctx, id)
}

func (s *stubService) SetSale(ctx context.Context, id uuid.UUID, sale Sale) (*Book, error) {
	if err := sale.validate(); err != nil {
		return nil, err
	}
	return s.GetBook(ctx, id)
}

func (s *stubService) ClearSale(ctx context.Context, id uuid.UUID) (*Book, error) {
	return s.GetBook(ctx, id)
}

func (s *stubService) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[id]
	if !ok {
		return nil, ErrBookNotFound
	}
	if book.Stock+delta < 0 {
		return nil, ErrStockUnderflow
	}
	book.Stock += delta
	copied := *book
	return &copied, nil
}

func (s *stubService) RemoveBook(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		return ErrBookNotFound
	}
	delete(s.books, id)
	return nil
}

func (s *stubService) List(ctx context.Context, filter Filter) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := &Page{Books: []*Book{}, Limit: filter.Limit, Offset: filter.Offset}
	for _, b := range s.books {
		page.Books = append(page.Books, b)
	}
	page.Total = len(page.Books)
	return page, nil
}

func (s *stubService) Search(ctx context.Context, query string) ([]*Book, error) {
	return []*Book{}, nil
}

func newTestRouter(svc Service, ratings RatingFunc) http.Handler {
	h := NewHandler(svc, ratings)
	r := chi.NewRouter()
	r.Get("/books", h.ListBooks)
	r.Get("/books/search", h.SearchBooks)
	r.Get("/books/{id}", h.GetBook)
	r.Post("/admin/books", h.CreateBook)
	r.Put("/admin/books/{id}", h.UpdateBook)
	r.Delete("/admin/books/{id}", h.RemoveBook)
	r.Put("/admin/books/{id}/sale", h.SetSale)
	r.Patch("/admin/books/{id}/stock", h.AdjustStock)
	return r
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CreateAndGetBook(t *testing.T) {
	svc := newStubService()
	ratings := func(ctx context.Context, id uuid.UUID) (Rating, error) {
		return Rating{Average: 4.5, Count: 2}, nil
	}
	router := newTestRouter(svc, ratings)

	rec := serve(t, router, http.MethodPost, "/admin/books", `{"title":"Dune","author":"Frank Herbert","price":"19.99","stock":3}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created Book
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Dune", created.Title)
	assert.True(t, created.OriginalPrice.Equal(decimal.RequireFromString("19.99")))

	rec = serve(t, router, http.MethodGet, "/books/"+created.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched Book
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	require.NotNil(t, fetched.Rating)
	assert.Equal(t, 2, fetched.Rating.Count)
}

func TestHandler_StatusMapping(t *testing.T) {
	svc := newStubService()
	book, err := svc.AddBook(context.Background(), Details{Title: "Emma", Author: "Jane Austen", OriginalPrice: decimal.NewFromInt(10)}, 1)
	require.NoError(t, err)
	router := newTestRouter(svc, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"invalid id", http.MethodGet, "/books/nope", "", http.StatusBadRequest},
		{"unknown book", http.MethodGet, "/books/" + uuid.NewString(), "", http.StatusNotFound},
		{"missing title", http.MethodPost, "/admin/books", `{"author":"x","price":"1"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/admin/books", `{"title":"x","author":"y","colour":"red"}`, http.StatusBadRequest},
		{"stock underflow", http.MethodPatch, "/admin/books/" + book.ID.String() + "/stock", `{"delta":-2}`, http.StatusConflict},
		{"stock adjusted", http.MethodPatch, "/admin/books/" + book.ID.String() + "/stock", `{"delta":4}`, http.StatusOK},
		{"sale ends before start", http.MethodPut, "/admin/books/" + book.ID.String() + "/sale", `{"price":"5","start":"2026-02-01T00:00:00Z","end":"2026-01-01T00:00:00Z"}`, http.StatusBadRequest},
		{"missing query", http.MethodGet, "/books/search", "", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/books?limit=abc", "", http.StatusBadRequest},
		{"list", http.MethodGet, "/books?sort=price_asc&on_sale=true", "", http.StatusOK},
		{"remove", http.MethodDelete, "/admin/books/" + book.ID.String(), "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
