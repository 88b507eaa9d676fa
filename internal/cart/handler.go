// internal/cart/handler.go
package cart

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"bookstore/internal/auth"
	"bookstore/internal/catalog"
	"bookstore/internal/web"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.GetCart(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, cart)
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID   uuid.UUID `json:"book_id"`
		Quantity int       `json:"quantity"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.service.AddItem(r.Context(), auth.UserID(r.Context()), req.BookID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": id})
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.SetQuantity(r.Context(), auth.UserID(r.Context()), id, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.RemoveItem(r.Context(), auth.UserID(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context(), auth.UserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		web.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrCartItemNotFound), errors.Is(err, catalog.ErrBookNotFound):
		web.WriteError(w, http.StatusNotFound, err.Error())
	default:
		web.WriteInternal(w, r, err)
	}
}
