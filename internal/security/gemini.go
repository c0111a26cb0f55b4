// Package security holds the clients for the two external content
// classifiers: Gemini for source review and VirusTotal for file scanning.
package security

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// promptSampleBytes is how much of the artifact goes into the prompt.
const promptSampleBytes = 8 << 10

const geminiPrompt = `You are a security reviewer for a code marketplace.
Review the following project source sample for malware, credential stealers,
crypto miners, obfuscated payloads or destructive commands. Start your answer
with the single word DANGER if the code is malicious, or SAFE if it is not,
then explain briefly.

Sample:
`

// Gemini calls the generativelanguage REST API. A zero API key disables the
// classifier; its skipped verdict carries no SAFE marker, so the combined
// scan result stays at warning instead of vouching for unreviewed content.
type Gemini struct {
	apiKey string
	model  string
	client *http.Client
}

func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 90 * time.Second},
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze submits the first 8KB of content and returns the model's verdict
// text. The caller decides danger/safe by the DANGER/SAFE markers.
func (g *Gemini) Analyze(ctx context.Context, content []byte) (string, error) {
	if g.apiKey == "" {
		return "analysis skipped, classifier not configured", nil
	}
	sample := content
	if len(sample) > promptSampleBytes {
		sample = sample[:promptSampleBytes]
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: geminiPrompt + string(sample)}}}},
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf(
		"https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s",
		g.model, g.apiKey,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	var out geminiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: status %d: %s", resp.StatusCode, out.Error.Message)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty response")
	}

	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// IsDanger reports whether a classifier verdict flags the content. DANGER
// wins over SAFE when both appear.
func IsDanger(verdict string) bool {
	return strings.Contains(verdict, "DANGER")
}

// IsSafe reports an explicit SAFE verdict without a DANGER marker.
func IsSafe(verdict string) bool {
	return strings.Contains(verdict, "SAFE") && !IsDanger(verdict)
}
