// Package storage uploads user media to Cloudinary and fetches stored
// artifacts back for scanning.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// fetchLimit bounds how much of a stored artifact the scanner pulls back.
const fetchLimit = 64 << 20

// Cloudinary uploads via the unsigned upload API: no per-request signature,
// the upload preset carries the account policy.
type Cloudinary struct {
	cloudName string
	preset    string
	client    *http.Client
}

func NewCloudinary(cloudName, preset string) *Cloudinary {
	return &Cloudinary{
		cloudName: cloudName,
		preset:    preset,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload streams the file as multipart form data and returns its public URL.
func (c *Cloudinary) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		var err error
		defer func() { pw.CloseWithError(err) }()
		if err = mw.WriteField("upload_preset", c.preset); err != nil {
			return
		}
		var part io.Writer
		if part, err = mw.CreateFormFile("file", filename); err != nil {
			return
		}
		if _, err = io.Copy(part, r); err != nil {
			return
		}
		err = mw.Close()
	}()

	endpoint := fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/auto/upload", c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("cloudinary response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cloudinary upload: status %d: %s", resp.StatusCode, out.Error.Message)
	}
	if out.SecureURL == "" {
		return "", fmt.Errorf("cloudinary upload: empty secure_url")
	}
	return out.SecureURL, nil
}

// Fetch downloads a stored artifact, capped at fetchLimit bytes.
func (c *Cloudinary) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch artifact: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, fetchLimit))
}
