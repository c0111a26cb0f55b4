package social

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/devtube/backend/internal/middleware"
	"github.com/devtube/backend/internal/models"
)

// NotificationStore is the slice of the notification repository the social
// surface exposes.
type NotificationStore interface {
	ListByRecipient(ctx context.Context, recipientID uuid.UUID) ([]*models.Notification, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) error
}

type Handler struct {
	svc           *Service
	notifications NotificationStore
	log           *slog.Logger
}

func NewHandler(svc *Service, notifications NotificationStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, notifications: notifications, log: log}
}

// Follow handles POST /api/v1/users/{id}/follow.
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	followeeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	following, err := h.svc.ToggleFollow(r.Context(), acc.User.ID, followeeID)
	if err != nil {
		if errors.Is(err, ErrSelfFollow) {
			httpError(w, http.StatusConflict, "cannot follow yourself")
			return
		}
		h.internal(w, "toggle follow", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"following": following})
}

// Profile handles GET /api/v1/users/{username}.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	var viewerID *uuid.UUID
	if acc := middleware.AccountFromCtx(r.Context()); acc != nil {
		viewerID = &acc.User.ID
	}
	profile, err := h.svc.Profile(r.Context(), viewerID, r.PathValue("username"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpError(w, http.StatusNotFound, "profile not found")
			return
		}
		h.internal(w, "public profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type commentRequest struct {
	Body string `json:"body"`
}

// CreateComment handles POST /api/v1/listings/{id}/comments.
func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	listingID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := h.svc.Comment(r.Context(), acc.User.ID, listingID, req.Body)
	if err != nil {
		if errors.Is(err, ErrEmptyBody) {
			httpError(w, http.StatusBadRequest, "body is required")
			return
		}
		h.internal(w, "create comment", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListComments handles GET /api/v1/listings/{id}/comments.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	listingID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	comments, err := h.svc.Comments(r.Context(), listingID)
	if err != nil {
		h.internal(w, "list comments", err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// CreateReview handles POST /api/v1/listings/{id}/reviews.
func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	listingID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rv, err := h.svc.Review(r.Context(), acc.User.ID, listingID, req.Rating, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRating):
			httpError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		case errors.Is(err, ErrAlreadyReviewed):
			httpError(w, http.StatusConflict, "listing already reviewed")
		default:
			h.internal(w, "create review", err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}

// ListReviews handles GET /api/v1/listings/{id}/reviews.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	listingID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	reviews, err := h.svc.Reviews(r.Context(), listingID)
	if err != nil {
		h.internal(w, "list reviews", err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// Chat handles GET /api/v1/community/messages.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	messages, err := h.svc.ChatHistory(r.Context())
	if err != nil {
		h.internal(w, "chat history", err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// PostMessage handles POST /api/v1/community/messages.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, err := h.svc.PostMessage(r.Context(), acc.User.ID, req.Body)
	if err != nil {
		if errors.Is(err, ErrEmptyBody) {
			httpError(w, http.StatusBadRequest, "body is required")
			return
		}
		h.internal(w, "post message", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type contactRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Contact handles POST /api/v1/contact.
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := h.svc.Contact(r.Context(), acc.User.ID, req.Subject, req.Message)
	if err != nil {
		if errors.Is(err, ErrEmptyBody) {
			httpError(w, http.StatusBadRequest, "message is required")
			return
		}
		h.internal(w, "contact", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Notifications handles GET /api/v1/notifications.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	list, err := h.notifications.ListByRecipient(r.Context(), acc.User.ID)
	if err != nil {
		h.internal(w, "list notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ReadNotifications handles POST /api/v1/notifications/read.
func (h *Handler) ReadNotifications(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	if err := h.notifications.MarkAllRead(r.Context(), acc.User.ID); err != nil {
		h.internal(w, "mark notifications read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (*middleware.Account, bool) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return acc, true
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
