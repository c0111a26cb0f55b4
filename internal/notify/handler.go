package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgmodels "github.com/go-telegram/bot/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/devtube/backend/internal/middleware"
)

// linkTokenTTL is how long a t.me deep link stays valid.
const linkTokenTTL = 5 * time.Minute

// Binder is the repository surface the webhook needs.
type Binder interface {
	BindTelegram(ctx context.Context, userID uuid.UUID, chatID int64) error
	UsernameByID(ctx context.Context, userID uuid.UUID) (string, error)
}

// Handler serves the Telegram link flow: a signed deep link for the logged-in
// user and the bot webhook that consumes it.
type Handler struct {
	binder  Binder
	tg      *Telegram
	secret  []byte
	botName string
	log     *slog.Logger
}

func NewHandler(binder Binder, tg *Telegram, secret, botName string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{binder: binder, tg: tg, secret: []byte(secret), botName: botName, log: log}
}

type linkResponse struct {
	Link string `json:"link"`
}

// Link handles GET /api/v1/telegram/link. The token inside the link expires
// after five minutes so a leaked link cannot bind someone else's chat later.
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	token, err := h.issueLinkToken(acc.User.ID)
	if err != nil {
		h.log.Error("telegram link token", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(linkResponse{
		Link: fmt.Sprintf("https://t.me/%s?start=%s", h.botName, token),
	})
}

// Webhook handles POST /api/v1/telegram/webhook updates from the bot API.
// Only "/start <token>" is meaningful; everything else gets a short hint.
// Telegram retries on non-200, so the handler always answers OK.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var update tgmodels.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	if update.Message == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	chatID := update.Message.Chat.ID
	text := update.Message.Text
	if strings.HasPrefix(text, "/start") {
		h.handleStart(r.Context(), chatID, text)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleStart(ctx context.Context, chatID int64, text string) {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		h.tg.Send(chatID, "Open the link from your DevTube profile to connect this chat.")
		return
	}
	userID, err := h.verifyLinkToken(parts[1])
	if err != nil {
		h.tg.Send(chatID, "⚠️ This link is expired or invalid. Request a new one from your profile.")
		return
	}
	if err := h.binder.BindTelegram(ctx, userID, chatID); err != nil {
		h.log.Error("telegram bind failed", "user_id", userID, "error", err)
		h.tg.Send(chatID, "❌ Could not connect your account. Try again later.")
		return
	}
	username, err := h.binder.UsernameByID(ctx, userID)
	if err != nil {
		username = "there"
	}
	h.tg.Send(chatID, fmt.Sprintf("✅ <b>Connected!</b>\nHi, %s! Sale and moderation alerts will arrive here.", username))
}

func (h *Handler) issueLinkToken(userID uuid.UUID) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{"telegram-link"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(linkTokenTTL)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}

func (h *Handler) verifyLinkToken(token string) (uuid.UUID, error) {
	tok, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return h.secret, nil
	}, jwt.WithAudience("telegram-link"), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return uuid.Nil, err
	}
	claims, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok || !tok.Valid {
		return uuid.Nil, errors.New("invalid token")
	}
	return uuid.Parse(claims.Subject)
}
