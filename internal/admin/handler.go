// Package admin exposes the operator endpoints: funding review, dispute
// resolution and manual listing freezes. Every route is behind RequireAdmin.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/devtube/backend/internal/escrow"
	"github.com/devtube/backend/internal/models"
	"github.com/devtube/backend/internal/wallet"
)

// Disputes is the escrow surface the admin needs.
type Disputes interface {
	ListDisputed(ctx context.Context) ([]*models.Purchase, error)
	Resolve(ctx context.Context, purchaseID uuid.UUID, refund bool) error
}

// Freezer toggles a listing's frozen flag.
type Freezer interface {
	SetFrozen(ctx context.Context, listingID uuid.UUID, frozen bool) error
}

type Handler struct {
	wallet   *wallet.Service
	disputes Disputes
	freezer  Freezer
	log      *slog.Logger
}

func NewHandler(w *wallet.Service, disputes Disputes, freezer Freezer, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{wallet: w, disputes: disputes, freezer: freezer, log: log}
}

// PendingDeposits handles GET /api/v1/admin/deposits.
func (h *Handler) PendingDeposits(w http.ResponseWriter, r *http.Request) {
	list, err := h.wallet.ListPendingDeposits(r.Context())
	if err != nil {
		h.internal(w, "pending deposits", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ApproveDeposit handles POST /api/v1/admin/deposits/{id}/approve.
func (h *Handler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	h.fundingAction(w, r, h.wallet.ApproveDeposit, "approved")
}

// RejectDeposit handles POST /api/v1/admin/deposits/{id}/reject.
func (h *Handler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	h.fundingAction(w, r, h.wallet.RejectDeposit, "rejected")
}

// PendingWithdrawals handles GET /api/v1/admin/withdrawals.
func (h *Handler) PendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := h.wallet.ListPendingWithdrawals(r.Context())
	if err != nil {
		h.internal(w, "pending withdrawals", err)
		return
	}
	views := make([]map[string]any, 0, len(list))
	for _, wd := range list {
		views = append(views, map[string]any{
			"id":         wd.ID,
			"user_id":    wd.UserID,
			"amount":     wd.Amount,
			"card":       wd.MaskedCard(),
			"status":     wd.Status,
			"created_at": wd.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// ApproveWithdrawal handles POST /api/v1/admin/withdrawals/{id}/approve.
func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.fundingAction(w, r, h.wallet.ApproveWithdrawal, "approved")
}

// RejectWithdrawal handles POST /api/v1/admin/withdrawals/{id}/reject.
func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.fundingAction(w, r, h.wallet.RejectWithdrawal, "rejected")
}

func (h *Handler) fundingAction(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) error, status string) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	if err := op(r.Context(), id); err != nil {
		if errors.Is(err, wallet.ErrAlreadyProcessed) {
			httpError(w, http.StatusConflict, "request already processed")
			return
		}
		h.internal(w, "funding "+status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// ListDisputes handles GET /api/v1/admin/disputes.
func (h *Handler) ListDisputes(w http.ResponseWriter, r *http.Request) {
	list, err := h.disputes.ListDisputed(r.Context())
	if err != nil {
		h.internal(w, "list disputes", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type resolveRequest struct {
	Refund bool `json:"refund"`
}

// ResolveDispute handles POST /api/v1/admin/disputes/{id}/resolve. refund
// true returns the money to the buyer, false releases it to the seller.
func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid purchase id")
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.disputes.Resolve(r.Context(), id, req.Refund); err != nil {
		switch {
		case errors.Is(err, escrow.ErrNotDisputed):
			httpError(w, http.StatusConflict, "purchase is not disputed")
		case errors.Is(err, escrow.ErrLedgerInconsistent):
			h.log.Error("dispute resolution hit inconsistent ledger", "purchase_id", id, "error", err)
			httpError(w, http.StatusConflict, "ledger inconsistency, entry kept")
		default:
			h.internal(w, "resolve dispute", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// FreezeListing handles POST /api/v1/admin/listings/{id}/freeze.
func (h *Handler) FreezeListing(w http.ResponseWriter, r *http.Request) {
	h.setFrozen(w, r, true)
}

// UnfreezeListing handles POST /api/v1/admin/listings/{id}/unfreeze.
func (h *Handler) UnfreezeListing(w http.ResponseWriter, r *http.Request) {
	h.setFrozen(w, r, false)
}

func (h *Handler) setFrozen(w http.ResponseWriter, r *http.Request, frozen bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	if err := h.freezer.SetFrozen(r.Context(), id, frozen); err != nil {
		h.internal(w, "set frozen", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_frozen": frozen})
}

func (h *Handler) internal(w http.ResponseWriter, op string, err error) {
	h.log.Error(op, "error", err)
	httpError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
