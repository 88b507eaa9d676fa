package review

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"bookstore/internal/auth"
	"bookstore/internal/catalog"
)

type fakeService struct {
	err error
}

func (f *fakeService) Submit(ctx context.Context, userID, bookID uuid.UUID, sub Submission) (*Review, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}
	return &Review{ID: uuid.New(), UserID: userID, BookID: bookID, Rating: sub.Rating}, f.err
}

func (f *fakeService) Delete(ctx context.Context, userID, bookID uuid.UUID) error {
	return f.err
}

func (f *fakeService) ListForBook(ctx context.Context, bookID uuid.UUID) ([]*Review, error) {
	return []*Review{}, f.err
}

func (f *fakeService) Stats(ctx context.Context, bookID uuid.UUID) (catalog.Rating, error) {
	return catalog.Rating{}, f.err
}

func router(svc Service) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithPrincipal(r.Context(), auth.Principal{UserID: uuid.New(), Role: auth.RoleCustomer})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Get("/books/{id}/reviews", h.List)
	r.Get("/books/{id}/reviews/stats", h.Stats)
	r.Put("/books/{id}/review", h.Submit)
	r.Delete("/books/{id}/review", h.Delete)
	return r
}

func TestHandler_StatusCodes(t *testing.T) {
	book := "/books/" + uuid.NewString()

	tests := []struct {
		name   string
		err    error
		method string
		path   string
		body   string
		want   int
	}{
		{"submit", nil, http.MethodPut, book + "/review", `{"rating":4,"comment":"good"}`, http.StatusOK},
		{"rating too high", nil, http.MethodPut, book + "/review", `{"rating":9}`, http.StatusBadRequest},
		{"rating missing", nil, http.MethodPut, book + "/review", `{"comment":"no stars"}`, http.StatusBadRequest},
		{"unknown book", catalog.ErrBookNotFound, http.MethodPut, book + "/review", `{"rating":4}`, http.StatusNotFound},
		{"bad id", nil, http.MethodPut, "/books/nope/review", `{"rating":4}`, http.StatusBadRequest},
		{"delete", nil, http.MethodDelete, book + "/review", "", http.StatusNoContent},
		{"delete missing", ErrReviewNotFound, http.MethodDelete, book + "/review", "", http.StatusNotFound},
		{"list", nil, http.MethodGet, book + "/reviews", "", http.StatusOK},
		{"stats", nil, http.MethodGet, book + "/reviews/stats", "", http.StatusOK},
		{"stats unknown book", catalog.ErrBookNotFound, http.MethodGet, book + "/reviews/stats", "", http.StatusNotFound},
		{"store failure", assert.AnError, http.MethodGet, book + "/reviews", "", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router(&fakeService{err: tt.err}).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
