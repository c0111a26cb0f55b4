// Package sandbox runs visitor-submitted snippets through the public Piston
// execution API.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/devtube/backend/internal/middleware"
)

const defaultBaseURL = "https://emkc.org/api/v2/piston"

var ErrEmptySource = errors.New("source is required")

// Client talks to a Piston instance.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient() *Client {
	return &Client{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// NewClientWithBase points the client at a custom Piston instance.
func NewClientWithBase(baseURL string) *Client {
	c := NewClient()
	c.baseURL = baseURL
	return c
}

type executeRequest struct {
	Language string        `json:"language"`
	Version  string        `json:"version"`
	Files    []executeFile `json:"files"`
}

type executeFile struct {
	Content string `json:"content"`
}

type executeResponse struct {
	Run struct {
		Stdout string `json:"stdout"`
		Stderr string `json:"stderr"`
		Code   int    `json:"code"`
	} `json:"run"`
	Message string `json:"message"`
}

// Result is what the caller sees, regardless of vendor errors.
type Result struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Execute runs the snippet. Version "*" lets Piston pick the latest runtime.
func (c *Client) Execute(ctx context.Context, language, source string) (*Result, error) {
	if source == "" {
		return nil, ErrEmptySource
	}
	body, err := json.Marshal(executeRequest{
		Language: language,
		Version:  "*",
		Files:    []executeFile{{Content: source}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piston: %w", err)
	}
	defer resp.Body.Close()

	var out executeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("piston response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("piston: status %d: %s", resp.StatusCode, out.Message)
	}
	return &Result{Stdout: out.Run.Stdout, Stderr: out.Run.Stderr, ExitCode: out.Run.Code}, nil
}

// Handler exposes POST /api/v1/tools/execute.
type Handler struct {
	client *Client
	log    *slog.Logger
}

func NewHandler(client *Client, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{client: client, log: log}
}

type executeBody struct {
	Language string `json:"language"`
	Source   string `json:"source"`
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	if middleware.AccountFromCtx(r.Context()) == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req executeBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	result, err := h.client.Execute(r.Context(), req.Language, req.Source)
	if err != nil {
		if errors.Is(err, ErrEmptySource) {
			http.Error(w, `{"error":"source is required"}`, http.StatusBadRequest)
			return
		}
		// Vendor failures come back as result text so the editor UI can show
		// them inline.
		h.log.Error("piston execute", "error", err)
		result = &Result{Stderr: err.Error(), ExitCode: -1}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
