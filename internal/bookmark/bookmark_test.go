package bookmark

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore/internal/auth"
	"bookstore/internal/catalog"
	"bookstore/internal/database"
	"bookstore/internal/eventstore"
)

func TestBookmarks(t *testing.T) {
	db := database.OpenForTest(t)
	ctx := context.Background()
	books := catalog.NewService(eventstore.NewEventStore(db), db)

	user := uuid.New()
	_, err := db.Exec(`INSERT INTO users (id, email, name, password_hash) VALUES ($1, 'reader@example.com', 'Reader', 'x')`, user)
	require.NoError(t, err)

	dune, err := books.AddBook(ctx, catalog.Details{Title: "Dune", Author: "Frank Herbert", OriginalPrice: decimal.RequireFromString("10.00")}, 1)
	require.NoError(t, err)
	emma, err := books.AddBook(ctx, catalog.Details{Title: "Emma", Author: "Jane Austen", OriginalPrice: decimal.RequireFromString("8.00")}, 1)
	require.NoError(t, err)

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := &service{db: db, now: func() time.Time { return base }}
	require.NoError(t, svc.Add(ctx, user, dune.ID))
	require.NoError(t, svc.Add(ctx, user, dune.ID), "adding twice is a no-op")

	svc.now = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, svc.Add(ctx, user, emma.ID))

	assert.ErrorIs(t, svc.Add(ctx, user, uuid.New()), catalog.ErrBookNotFound)

	list, err := svc.List(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, emma.ID, list[0].Book.ID)
	assert.Equal(t, dune.ID, list[1].Book.ID)
	assert.True(t, decimal.RequireFromString("10.00").Equal(list[1].Book.EffectivePrice))

	require.NoError(t, svc.Remove(ctx, user, dune.ID))
	assert.ErrorIs(t, svc.Remove(ctx, user, dune.ID), ErrBookmarkNotFound)

	list, err = svc.List(ctx, user)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

type fakeService struct {
	err error
}

func (f *fakeService) Add(ctx context.Context, userID, bookID uuid.UUID) error    { return f.err }
func (f *fakeService) Remove(ctx context.Context, userID, bookID uuid.UUID) error { return f.err }
func (f *fakeService) List(ctx context.Context, userID uuid.UUID) ([]*Bookmark, error) {
	return []*Bookmark{}, f.err
}

func TestHandler_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		path   string
		want   int
	}{
		{"add", nil, http.MethodPut, "/bookmarks/" + uuid.NewString(), http.StatusNoContent},
		{"add unknown book", catalog.ErrBookNotFound, http.MethodPut, "/bookmarks/" + uuid.NewString(), http.StatusNotFound},
		{"bad id", nil, http.MethodPut, "/bookmarks/abc", http.StatusBadRequest},
		{"remove missing", ErrBookmarkNotFound, http.MethodDelete, "/bookmarks/" + uuid.NewString(), http.StatusNotFound},
		{"list", nil, http.MethodGet, "/bookmarks", http.StatusOK},
		{"list failure", assert.AnError, http.MethodGet, "/bookmarks", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeService{err: tt.err})
			r := chi.NewRouter()
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					ctx := auth.WithPrincipal(r.Context(), auth.Principal{UserID: uuid.New(), Role: auth.RoleCustomer})
					next.ServeHTTP(w, r.WithContext(ctx))
				})
			})
			r.Get("/bookmarks", h.List)
			r.Put("/bookmarks/{bookID}", h.Add)
			r.Delete("/bookmarks/{bookID}", h.Remove)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
