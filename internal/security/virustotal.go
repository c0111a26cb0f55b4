package security

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const vtBase = "https://www.virustotal.com/api/v3"

// VirusTotal uploads artifacts and polls the analysis until it finishes.
// A zero API key disables the scanner.
type VirusTotal struct {
	apiKey string
	client *http.Client
}

func NewVirusTotal(apiKey string) *VirusTotal {
	return &VirusTotal{
		apiKey: apiKey,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// Report is the per-file outcome: a human-facing link plus the aggregate
// engine stats serialized as the status string.
type Report struct {
	Link   string
	Status string
}

func (v *VirusTotal) Enabled() bool { return v.apiKey != "" }

type vtUploadResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type vtAnalysisResponse struct {
	Data struct {
		Attributes struct {
			Status string `json:"status"`
			Stats  struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
				Harmless   int `json:"harmless"`
				Undetected int `json:"undetected"`
			} `json:"stats"`
		} `json:"attributes"`
	} `json:"data"`
	Meta struct {
		FileInfo struct {
			SHA256 string `json:"sha256"`
		} `json:"file_info"`
	} `json:"meta"`
}

// Scan uploads the file and waits for the analysis verdict. The returned
// status contains "malicious" when any engine flags the file.
func (v *VirusTotal) Scan(ctx context.Context, filename string, content []byte) (*Report, error) {
	if !v.Enabled() {
		return &Report{Status: "skipped: scanner not configured"}, nil
	}

	analysisID, err := v.upload(ctx, filename, content)
	if err != nil {
		return nil, err
	}
	return v.waitForAnalysis(ctx, analysisID)
}

func (v *VirusTotal) upload(ctx context.Context, filename string, content []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(content); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, vtBase+"/files", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("x-apikey", v.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("virustotal upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("virustotal upload: status %d", resp.StatusCode)
	}

	var out vtUploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("virustotal response: %w", err)
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("virustotal upload: empty analysis id")
	}
	return out.Data.ID, nil
}

func (v *VirusTotal) waitForAnalysis(ctx context.Context, analysisID string) (*Report, error) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		report, done, err := v.fetchAnalysis(ctx, analysisID)
		if err != nil {
			return nil, err
		}
		if done {
			return report, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (v *VirusTotal) fetchAnalysis(ctx context.Context, analysisID string) (*Report, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, vtBase+"/analyses/"+analysisID, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("x-apikey", v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("virustotal analysis: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("virustotal analysis: status %d", resp.StatusCode)
	}

	var out vtAnalysisResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("virustotal response: %w", err)
	}
	if out.Data.Attributes.Status != "completed" {
		return nil, false, nil
	}

	stats := out.Data.Attributes.Stats
	status := fmt.Sprintf("clean: %d engines, %d undetected",
		stats.Harmless, stats.Undetected)
	if stats.Malicious > 0 || stats.Suspicious > 0 {
		status = fmt.Sprintf("malicious: flagged by %d engines (%d suspicious)",
			stats.Malicious, stats.Suspicious)
	}
	link := ""
	if sha := out.Meta.FileInfo.SHA256; sha != "" {
		link = "https://www.virustotal.com/gui/file/" + sha
	}
	return &Report{Link: link, Status: status}, true, nil
}
