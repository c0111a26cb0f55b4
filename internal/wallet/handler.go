package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/devtube/backend/internal/middleware"
	"github.com/devtube/backend/internal/models"
)

const maxReceiptBytes = 10 << 20

// Uploader stores receipt images and returns a public URL.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

type Handler struct {
	svc      *Service
	uploader Uploader
	log      *slog.Logger
}

func NewHandler(svc *Service, uploader Uploader, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, uploader: uploader, log: log}
}

type balanceResponse struct {
	Balance       decimal.Decimal `json:"balance"`
	FrozenBalance decimal.Decimal `json:"frozen_balance"`
}

// Balance handles GET /api/v1/wallet.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	available, frozen, err := h.svc.Balances(r.Context(), acc.User.ID)
	if err != nil {
		h.log.Error("wallet balance", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: available, FrozenBalance: frozen})
}

// CreateDeposit handles POST /api/v1/wallet/deposits. The body is multipart:
// an "amount" field plus a "receipt" image proving the bank transfer.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if err := r.ParseMultipartForm(maxReceiptBytes); err != nil {
		http.Error(w, `{"error":"invalid multipart body"}`, http.StatusBadRequest)
		return
	}
	amount, err := decimal.NewFromString(r.FormValue("amount"))
	if err != nil {
		http.Error(w, `{"error":"invalid amount"}`, http.StatusBadRequest)
		return
	}

	var receiptURL string
	if file, header, err := r.FormFile("receipt"); err == nil {
		defer file.Close()
		receiptURL, err = h.uploader.Upload(r.Context(), header.Filename, file)
		if err != nil {
			h.log.Error("upload receipt", "error", err)
			http.Error(w, `{"error":"receipt upload failed"}`, http.StatusBadGateway)
			return
		}
	}

	d, err := h.svc.RequestDeposit(r.Context(), acc.User.ID, amount, receiptURL)
	if err != nil {
		if errors.Is(err, ErrAmountInvalid) {
			http.Error(w, `{"error":"amount must be positive"}`, http.StatusBadRequest)
			return
		}
		h.log.Error("create deposit", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// ListDeposits handles GET /api/v1/wallet/deposits.
func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.svc.ListDeposits(r.Context(), acc.User.ID)
	if err != nil {
		h.log.Error("list deposits", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type withdrawalRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	CardNumber string          `json:"card_number"`
}

// CreateWithdrawal handles POST /api/v1/wallet/withdrawals. The amount leaves
// the available balance immediately; rejection puts it back.
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if len(req.CardNumber) < 8 {
		http.Error(w, `{"error":"invalid card number"}`, http.StatusBadRequest)
		return
	}

	wd, err := h.svc.RequestWithdrawal(r.Context(), acc.User.ID, req.Amount, req.CardNumber)
	if err != nil {
		switch {
		case errors.Is(err, ErrAmountInvalid):
			http.Error(w, `{"error":"amount must be positive"}`, http.StatusBadRequest)
		case errors.Is(err, ErrBelowMinimum):
			http.Error(w, `{"error":"amount below the minimum withdrawal"}`, http.StatusBadRequest)
		case errors.Is(err, ErrInsufficientFunds):
			http.Error(w, `{"error":"insufficient funds"}`, http.StatusConflict)
		default:
			h.log.Error("create withdrawal", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, withdrawalView(wd))
}

// ListWithdrawals handles GET /api/v1/wallet/withdrawals.
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.svc.ListWithdrawals(r.Context(), acc.User.ID)
	if err != nil {
		h.log.Error("list withdrawals", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	views := make([]map[string]any, 0, len(list))
	for _, wd := range list {
		views = append(views, withdrawalView(wd))
	}
	writeJSON(w, http.StatusOK, views)
}

// withdrawalView masks the card number; the raw value never leaves the server.
func withdrawalView(wd *models.Withdrawal) map[string]any {
	return map[string]any{
		"id":         wd.ID,
		"amount":     wd.Amount,
		"card":       wd.MaskedCard(),
		"status":     wd.Status,
		"created_at": wd.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
