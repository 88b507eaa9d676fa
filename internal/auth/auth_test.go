package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_RoundTrip(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	userID := uuid.New()

	token, expires, err := issuer.Issue(userID, RoleStaff)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	principal, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, principal.UserID)
	assert.Equal(t, RoleStaff, principal.Role)
}

func TestIssuer_RejectsBadTokens(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	userID := uuid.New()

	other := NewIssuer("other-secret", time.Hour)
	forged, _, err := other.Issue(userID, RoleAdmin)
	require.NoError(t, err)
	_, err = issuer.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expiredIssuer := NewIssuer("secret", time.Minute)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := expiredIssuer.Issue(userID, RoleCustomer)
	require.NoError(t, err)
	_, err = issuer.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unknownRole, _, err := issuer.Issue(userID, "superuser")
	require.NoError(t, err)
	_, err = issuer.Verify(unknownRole)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	customer, _, err := issuer.Issue(uuid.New(), RoleCustomer)
	require.NoError(t, err)
	admin, _, err := issuer.Issue(uuid.New(), RoleAdmin)
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserID(r.Context()) == uuid.Nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := Authenticate(issuer)(RequireRole(RoleAdmin)(ok))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"wrong role", "Bearer " + customer, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireRole_WithoutAuthenticate(t *testing.T) {
	handler := RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
