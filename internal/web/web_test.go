package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusConflict, "sold out")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"sold out"}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"dune"}`))
	require.NoError(t, DecodeJSON(r, &dst))
	assert.Equal(t, "dune", dst.Name)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nope":1}`))
	assert.Error(t, DecodeJSON(r, &dst))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}{"name":"b"}`))
	assert.Error(t, DecodeJSON(r, &dst))
}

func TestUUIDParam(t *testing.T) {
	id := uuid.New()
	router := chi.NewRouter()

	var got uuid.UUID
	var gotErr error
	router.Get("/books/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = UUIDParam(r, "id")
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/books/"+id.String(), nil))
	require.NoError(t, gotErr)
	assert.Equal(t, id, got)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/books/not-a-uuid", nil))
	assert.Error(t, gotErr)
}

func TestIntQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=5&bad=x", nil)

	v, err := IntQuery(r, "limit", 20)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	v, err = IntQuery(r, "offset", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = IntQuery(r, "bad", 0)
	assert.Error(t, err)
}
