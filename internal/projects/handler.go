package projects

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/devtube/backend/internal/middleware"
	"github.com/devtube/backend/internal/models"
)

const maxUploadBytes = 64 << 20

// Reporter counts complaints; the freeze threshold lives behind it.
type Reporter interface {
	Report(ctx context.Context, reporterID, listingID uuid.UUID) (int, error)
}

// Fetcher pulls stored source bytes for the live HTML preview.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Handler struct {
	svc      *Service
	reporter Reporter
	fetcher  Fetcher
	log      *slog.Logger
}

func NewHandler(svc *Service, reporter Reporter, fetcher Fetcher, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, reporter: reporter, fetcher: fetcher, log: log}
}

// List handles GET /api/v1/listings with q, category and price filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	listings, err := h.svc.Search(r.Context(), query.Get("q"), query.Get("category"), query.Get("price"))
	if err != nil {
		if errors.Is(err, ErrInvalidCategory) {
			httpError(w, http.StatusBadRequest, "unknown category")
			return
		}
		h.internal(w, "search listings", err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

// Trending handles GET /api/v1/listings/trending.
func (h *Handler) Trending(w http.ResponseWriter, r *http.Request) {
	h.collection(w, func() ([]*models.Listing, error) { return h.svc.Trending(r.Context()) })
}

// Feed handles GET /api/v1/listings/feed.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.collection(w, func() ([]*models.Listing, error) { return h.svc.Feed(r.Context(), acc.User.ID) })
}

// Mine, Liked, Saved and Bought serve the profile tabs.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	h.userCollection(w, r, h.svc.Mine)
}

func (h *Handler) Liked(w http.ResponseWriter, r *http.Request) {
	h.userCollection(w, r, h.svc.Liked)
}

func (h *Handler) Saved(w http.ResponseWriter, r *http.Request) {
	h.userCollection(w, r, h.svc.Saved)
}

func (h *Handler) Bought(w http.ResponseWriter, r *http.Request) {
	h.userCollection(w, r, h.svc.Bought)
}

// Detail handles GET /api/v1/listings/{slug}.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	l, images, err := h.svc.Detail(r.Context(), acc, r.PathValue("slug"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpError(w, http.StatusNotFound, "listing not found")
			return
		}
		h.internal(w, "listing detail", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listing": l, "images": images})
}

// Live handles GET /api/v1/listings/{slug}/live: serves a stored HTML source
// file directly so single-page demos render in the browser.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	l, _, err := h.svc.Detail(r.Context(), acc, r.PathValue("slug"))
	if err != nil {
		httpError(w, http.StatusNotFound, "listing not found")
		return
	}
	if !strings.HasSuffix(strings.ToLower(l.SourceName), ".html") || l.SourceURL == "" {
		httpError(w, http.StatusUnsupportedMediaType, "listing has no HTML source")
		return
	}
	content, err := h.fetcher.Fetch(r.Context(), l.SourceURL)
	if err != nil {
		h.internal(w, "live fetch", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(content)
}

// Create handles POST /api/v1/listings (multipart).
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	in, cleanup, err := parseListingForm(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	l, err := h.svc.Create(r.Context(), acc.User.ID, *in)
	if err != nil {
		h.mapServiceError(w, "create listing", err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// Update handles PUT /api/v1/listings/{id} (multipart).
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	in, cleanup, err := parseListingForm(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	l, err := h.svc.Update(r.Context(), acc, id, *in)
	if err != nil {
		h.mapServiceError(w, "update listing", err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Delete handles DELETE /api/v1/listings/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	if err := h.svc.Delete(r.Context(), acc, id); err != nil {
		h.mapServiceError(w, "delete listing", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Like handles POST /api/v1/listings/{id}/like.
func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.svc.Like, "liked")
}

// Save handles POST /api/v1/listings/{id}/save.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.svc.Save, "saved")
}

// Report handles POST /api/v1/listings/{id}/report.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	count, err := h.reporter.Report(r.Context(), acc.User.ID, id)
	if err != nil {
		h.internal(w, "report listing", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reports_count": count})
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, listingID uuid.UUID) (bool, error), key string) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	on, err := op(r.Context(), acc.User.ID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpError(w, http.StatusNotFound, "listing not found")
			return
		}
		h.internal(w, "toggle "+key, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{key: on})
}

func (h *Handler) collection(w http.ResponseWriter, load func() ([]*models.Listing, error)) {
	listings, err := load()
	if err != nil {
		h.internal(w, "load listings", err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

func (h *Handler) userCollection(w http.ResponseWriter, r *http.Request, load func(ctx context.Context, userID uuid.UUID) ([]*models.Listing, error)) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.collection(w, func() ([]*models.Listing, error) { return load(r.Context(), acc.User.ID) })
}

func (h *Handler) mapServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpError(w, http.StatusNotFound, "listing not found")
	case errors.Is(err, ErrForbidden):
		httpError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, ErrInvalidTitle),
		errors.Is(err, ErrInvalidCategory),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrFileType):
		httpError(w, http.StatusBadRequest, err.Error())
	default:
		h.internal(w, op, err)
	}
}

func (h *Handler) internal(w http.ResponseWriter, op string, err error) {
	h.log.Error(op, "error", err)
	httpError(w, http.StatusInternalServerError, "internal error")
}

// parseListingForm reads the multipart body into an Input. The cleanup
// closes every opened file.
func parseListingForm(r *http.Request) (*Input, func(), error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, func() {}, errors.New("invalid multipart body")
	}
	price := decimal.Zero
	if raw := r.FormValue("price"); raw != "" {
		var err error
		if price, err = decimal.NewFromString(raw); err != nil {
			return nil, func() {}, errors.New("invalid price")
		}
	}
	in := &Input{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Price:       price,
		YoutubeLink: r.FormValue("youtube_link"),
	}

	var open []multipart.File
	cleanup := func() {
		for _, f := range open {
			f.Close()
		}
	}
	if file, header, err := r.FormFile("image"); err == nil {
		open = append(open, file)
		in.Image = &FileUpload{Name: header.Filename, Size: header.Size, Reader: file}
	}
	if file, header, err := r.FormFile("source"); err == nil {
		open = append(open, file)
		in.Source = &FileUpload{Name: header.Filename, Size: header.Size, Reader: file}
	}
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["gallery"] {
			file, err := header.Open()
			if err != nil {
				continue
			}
			open = append(open, file)
			in.Gallery = append(in.Gallery, &FileUpload{Name: header.Filename, Size: header.Size, Reader: file})
		}
	}
	return in, cleanup, nil
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
