package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/devtube/backend/internal/middleware"
)

const maxAvatarBytes = 10 << 20

// Uploader stores avatar images.
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

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /api/v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrWeakPassword):
			httpError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrUsernameTaken):
			httpError(w, http.StatusConflict, "username or email already taken")
		default:
			h.log.Error("register", "error", err)
			httpError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, u, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		h.log.Error("login", "error", err)
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": u})
}

// Me handles GET /api/v1/profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": acc.User, "profile": acc.Profile})
}

// UpdateMe handles PUT /api/v1/profile (multipart: bio, avatar file,
// unlink_telegram flag).
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	var avatarURL string
	if file, header, err := r.FormFile("avatar"); err == nil {
		defer file.Close()
		avatarURL, err = h.uploader.Upload(r.Context(), header.Filename, file)
		if err != nil {
			h.log.Error("avatar upload", "error", err)
			httpError(w, http.StatusBadGateway, "avatar upload failed")
			return
		}
	}
	unlink := r.FormValue("unlink_telegram") == "true"
	if err := h.svc.UpdateProfile(r.Context(), acc.User.ID, r.FormValue("bio"), avatarURL, unlink); err != nil {
		h.log.Error("update profile", "error", err)
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
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
