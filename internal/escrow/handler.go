package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/devtube/backend/internal/middleware"
)

// Handler serves the buyer-facing purchase endpoints.
type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// List handles GET /api/v1/wallet/purchases.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	purchases, err := h.svc.ListByBuyer(r.Context(), acc.User.ID)
	if err != nil {
		h.log.Error("list purchases", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, purchases)
}

// Buy handles POST /api/v1/listings/{id}/buy.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	listingID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid listing id"}`, http.StatusBadRequest)
		return
	}
	p, err := h.svc.Purchase(r.Context(), acc.User, listingID)
	if err != nil {
		switch {
		case errors.Is(err, ErrListingFrozen):
			http.Error(w, `{"error":"listing is frozen"}`, http.StatusConflict)
		case errors.Is(err, ErrOwnListing):
			http.Error(w, `{"error":"cannot buy your own listing"}`, http.StatusConflict)
		case errors.Is(err, ErrAlreadyPurchased):
			http.Error(w, `{"error":"already purchased"}`, http.StatusConflict)
		case errors.Is(err, ErrInsufficientFunds):
			http.Error(w, `{"error":"insufficient funds"}`, http.StatusConflict)
		default:
			h.log.Error("purchase", "listing_id", listingID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	if p == nil {
		// Free listing: access granted without an escrow entry.
		writeJSON(w, http.StatusOK, map[string]string{"status": "access granted"})
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Confirm handles POST /api/v1/purchases/{id}/confirm: the buyer releases
// the hold to the seller.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Confirm)
}

// Dispute handles POST /api/v1/purchases/{id}/dispute.
func (h *Handler) Dispute(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Dispute)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, buyerID, purchaseID uuid.UUID) error) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid purchase id"}`, http.StatusBadRequest)
		return
	}
	if err := op(r.Context(), acc.User.ID, id); err != nil {
		switch {
		case errors.Is(err, ErrForbidden):
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		case errors.Is(err, ErrNotHold):
			http.Error(w, `{"error":"purchase is not on hold"}`, http.StatusConflict)
		case errors.Is(err, ErrLedgerInconsistent):
			h.log.Error("purchase transition hit inconsistent ledger", "purchase_id", id, "error", err)
			http.Error(w, `{"error":"ledger inconsistency, operators notified"}`, http.StatusConflict)
		default:
			h.log.Error("purchase transition", "purchase_id", id, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
