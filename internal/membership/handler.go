// internal/membership/handler.go
package membership

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"bookstore/internal/auth"
	"bookstore/internal/web"
)

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID uuid.UUID, role string) (string, time.Time, error)
}

type Handler struct {
	service Service
	tokens  TokenIssuer
}

func NewHandler(service Service, tokens TokenIssuer) *Handler {
	return &Handler{service: service, tokens: tokens}
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondWithToken(w, r, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondWithToken(w, r, http.StatusOK, user)
}

func (h *Handler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user *User) {
	token, expiresAt, err := h.tokens.Issue(user.ID, user.Role)
	if err != nil {
		web.WriteInternal(w, r, err)
		return
	}
	web.WriteJSON(w, status, tokenResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, users)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.UpdateRole(r.Context(), id, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, user)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidRegistration), errors.Is(err, ErrInvalidRole):
		web.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		web.WriteError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrUserNotFound):
		web.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmailTaken):
		web.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrRateLimited):
		web.WriteError(w, http.StatusTooManyRequests, err.Error())
	default:
		web.WriteInternal(w, r, err)
	}
}
