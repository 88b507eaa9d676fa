// internal/review/handler.go
package review

import (
	"errors"
	"net/http"

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

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	bookID, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	reviews, err := h.service.ListForBook(r.Context(), bookID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, reviews)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	bookID, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.service.Stats(r.Context(), bookID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	bookID, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var sub Submission
	if err := web.DecodeJSON(r, &sub); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	review, err := h.service.Submit(r.Context(), auth.UserID(r.Context()), bookID, sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, review)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	bookID, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Delete(r.Context(), auth.UserID(r.Context()), bookID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidRating):
		web.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrReviewNotFound), errors.Is(err, catalog.ErrBookNotFound):
		web.WriteError(w, http.StatusNotFound, err.Error())
	default:
		web.WriteInternal(w, r, err)
	}
}
