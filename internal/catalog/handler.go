// internal/catalog/handler.go
package catalog

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"bookstore/internal/web"
)

// RatingFunc looks up the review summary shown with a single book.
type RatingFunc func(ctx context.Context, bookID uuid.UUID) (Rating, error)

type Handler struct {
	service Service
	ratings RatingFunc
}

// NewHandler returns catalog HTTP handlers. ratings may be nil.
func NewHandler(service Service, ratings RatingFunc) *Handler {
	return &Handler{service: service, ratings: ratings}
}

func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := web.IntQuery(r, "limit", defaultLimit)
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := web.IntQuery(r, "offset", 0)
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	onSale, _ := strconv.ParseBool(q.Get("on_sale"))

	page, err := h.service.List(r.Context(), Filter{
		Query:      q.Get("q"),
		Genre:      q.Get("genre"),
		OnSaleOnly: onSale,
		Sort:       q.Get("sort"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) SearchBooks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		web.WriteError(w, http.StatusBadRequest, "missing search query")
		return
	}

	books, err := h.service.Search(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.ratings != nil {
		rating, err := h.ratings(r.Context(), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		book.Rating = &rating
	}
	web.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Details
		Stock int `json:"stock"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.service.AddBook(r.Context(), req.Details, req.Stock)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, book)
}

func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var details Details
	if err := web.DecodeJSON(r, &details); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.service.UpdateBook(r.Context(), id, details)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) SetSale(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var sale Sale
	if err := web.DecodeJSON(r, &sale); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.service.SetSale(r.Context(), id, sale)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) ClearSale(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.service.ClearSale(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Delta int `json:"delta"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.service.AdjustStock(r.Context(), id, req.Delta)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) RemoveBook(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.RemoveBook(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrBookNotFound):
		web.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidBook), errors.Is(err, ErrInvalidSale):
		web.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrStockUnderflow), errors.Is(err, ErrBookInUse):
		web.WriteError(w, http.StatusConflict, err.Error())
	default:
		web.WriteInternal(w, r, err)
	}
}
