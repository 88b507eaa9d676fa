// internal/ordering/handler.go
package ordering

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bookstore/internal/auth"
	"bookstore/internal/idempotency"
	"bookstore/internal/web"
)

// IdempotencyHeader carries the client's retry key on checkout.
const IdempotencyHeader = "Idempotency-Key"

const releaseTimeout = 5 * time.Second

type Handler struct {
	service Service
	guard   idempotency.Guard
}

// NewHandler returns the order handlers. guard may be nil to disable idempotency keys.
func NewHandler(service Service, guard idempotency.Guard) *Handler {
	return &Handler{service: service, guard: guard}
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CartItemIDs []uuid.UUID `json:"cart_item_ids"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	userID := auth.UserID(ctx)

	var release func()
	if key := r.Header.Get(IdempotencyHeader); key != "" && h.guard != nil {
		scoped := "order:" + userID.String() + ":" + key
		ok, err := h.guard.Claim(ctx, scoped)
		if err != nil {
			web.WriteInternal(w, r, err)
			return
		}
		if !ok {
			writeError(w, r, idempotency.ErrDuplicateRequest)
			return
		}
		release = func() {
			// The request context may already be cancelled when placement failed because of it.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			if err := h.guard.Release(ctx, scoped); err != nil {
				log.Printf("Failed to release idempotency key %s: %v", scoped, err)
			}
		}
	}

	view, err := h.service.PlaceOrder(ctx, userID, req.CartItemIDs)
	if err != nil {
		// A failed attempt frees the key so the client can retry once the cause is fixed.
		if release != nil {
			release()
		}
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetUserOrders(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.CancelOrder(r.Context(), auth.UserID(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (h *Handler) VerifyClaimCode(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.VerifyClaimCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, view)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatusByClaimCode(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.UpdateOrderStatusByClaimCode(r.Context(), chi.URLParam(r, "code"), req.Status); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var filter ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		filter.Status = status
	}
	var err error
	if filter.Limit, err = web.IntQuery(r, "limit", defaultListLimit); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Offset, err = web.IntQuery(r, "offset", 0); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := h.service.History(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, history)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "id")
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req statusRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), id, req.Status); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNoValidItems), errors.Is(err, ErrInvalidStatus):
		web.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrOrderNotFound):
		web.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrNotCancellable),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, idempotency.ErrDuplicateRequest):
		web.WriteError(w, http.StatusConflict, err.Error())
	default:
		web.WriteInternal(w, r, err)
	}
}
