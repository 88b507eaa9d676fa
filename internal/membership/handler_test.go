package membership

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore/internal/auth"
)

type fakeService struct {
	user *User
	err  error
}

func (f *fakeService) Register(ctx context.Context, email, name, password string) (*User, error) {
	return f.user, f.err
}

func (f *fakeService) Authenticate(ctx context.Context, email, password string) (*User, error) {
	return f.user, f.err
}

func (f *fakeService) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return f.user, f.err
}

func (f *fakeService) ListUsers(ctx context.Context) ([]*User, error) {
	return []*User{f.user}, f.err
}

func (f *fakeService) UpdateRole(ctx context.Context, id uuid.UUID, role string) (*User, error) {
	return f.user, f.err
}

func (f *fakeService) EnsureAdmin(ctx context.Context, email, password string) error {
	return f.err
}

func (f *fakeService) Email(ctx context.Context, id uuid.UUID) (string, error) {
	return f.user.Email, f.err
}

func newRouter(svc Service) http.Handler {
	h := NewHandler(svc, auth.NewIssuer("secret", time.Hour))
	r := chi.NewRouter()
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/auth/me", h.Me)
	r.Patch("/admin/users/{id}/role", h.UpdateRole)
	return r
}

func TestHandler_LoginIssuesVerifiableToken(t *testing.T) {
	user := &User{ID: uuid.New(), Email: "reader@example.com", Role: auth.RoleStaff}
	router := newRouter(&fakeService{user: user})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"reader@example.com","password":"long enough"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	principal, err := auth.NewIssuer("secret", time.Hour).Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.UserID)
	assert.Equal(t, auth.RoleStaff, principal.Role)
}

func TestHandler_StatusMapping(t *testing.T) {
	user := &User{ID: uuid.New(), Email: "reader@example.com", Role: auth.RoleCustomer}

	tests := []struct {
		name   string
		err    error
		method string
		path   string
		body   string
		want   int
	}{
		{"register", nil, http.MethodPost, "/auth/register", `{"email":"a@b.c","name":"A","password":"long enough"}`, http.StatusCreated},
		{"register invalid", ErrInvalidRegistration, http.MethodPost, "/auth/register", `{"email":"a"}`, http.StatusBadRequest},
		{"register taken", ErrEmailTaken, http.MethodPost, "/auth/register", `{"email":"a@b.c"}`, http.StatusConflict},
		{"register limited", ErrRateLimited, http.MethodPost, "/auth/register", `{"email":"a@b.c"}`, http.StatusTooManyRequests},
		{"login bad credentials", ErrInvalidCredentials, http.MethodPost, "/auth/login", `{"email":"a@b.c","password":"x"}`, http.StatusUnauthorized},
		{"login malformed", nil, http.MethodPost, "/auth/login", `{`, http.StatusBadRequest},
		{"me missing", ErrUserNotFound, http.MethodGet, "/auth/me", "", http.StatusNotFound},
		{"role invalid", ErrInvalidRole, http.MethodPatch, "/admin/users/" + uuid.NewString() + "/role", `{"role":"owner"}`, http.StatusBadRequest},
		{"role bad id", nil, http.MethodPatch, "/admin/users/nope/role", `{"role":"staff"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newRouter(&fakeService{user: user, err: tt.err}).ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
