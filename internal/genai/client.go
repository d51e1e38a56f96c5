// Package genai is the HTTP client for the generation backend, speaking the
// generateContent wire format: multi-turn contents, a system instruction, and
// a generation config. Responses carry text plus a finish reason the
// continuation driver inspects for truncation.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	maxErrBody        = 2048
	defaultMaxRetries = 3
)

// ErrMissingAPIKey is returned before any request when no credential is set.
var ErrMissingAPIKey = errors.New("missing API key")

// Turn is one message in a multi-turn conversation. Role is "user" or
// "model".
type Turn struct {
	Role string
	Text string
}

// Request describes one generateContent call.
type Request struct {
	Turns            []Turn
	SystemText       string
	Temperature      float64
	MaxOutputTokens  int
	ResponseMimeType string

	// ResponseModalities selects non-text output, e.g. ["IMAGE", "TEXT"]
	// for image-capable models. Empty means text only.
	ResponseModalities []string

	// Observability only; empty values are fine.
	TraceID    string
	TurnNumber int
}

// Usage mirrors the backend's token accounting when present.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	Available    bool
}

// InlineImage is binary content returned by an image-capable model, base64
// encoded as it arrived on the wire.
type InlineImage struct {
	MimeType string
	Data     string
}

// Response is the extracted result of one call.
type Response struct {
	Text         string
	FinishReason string
	Images       []InlineImage
	Usage        Usage
}

// FirstImageDataURI renders the first inline image as a data URI.
func (r Response) FirstImageDataURI() (string, bool) {
	if len(r.Images) == 0 {
		return "", false
	}
	img := r.Images[0]
	return "data:" + img.MimeType + ";base64," + img.Data, true
}

// Client calls the generation backend. Transient transport conditions (429,
// 5xx) are retried with exponential backoff; every other failure propagates
// to the caller, which must not retry it.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	progress   io.Writer
}

// NewClient builds a client. An empty baseURL selects the public endpoint;
// progress may be nil to suppress per-call trace lines.
func NewClient(apiKey, baseURL string, httpClient *http.Client, maxRetries int, progress io.Writer) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: maxRetries,
		progress:   progress,
	}
}

// Generate performs one generateContent call for model.
func (c *Client) Generate(ctx context.Context, model string, req Request) (Response, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return Response{}, ErrMissingAPIKey
	}
	if len(req.Turns) == 0 {
		return Response{}, errors.New("request has no conversation turns")
	}

	body, err := json.Marshal(buildPayload(req))
	if err != nil {
		return Response{}, fmt.Errorf("marshal generate request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, retry, err := c.call(ctx, endpoint, body, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !retry || attempt == c.maxRetries {
			break
		}

		select {
		case <-time.After(backoffDelay(attempt)):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}

	if lastErr == nil {
		lastErr = errors.New("unknown generation error")
	}
	return Response{}, lastErr
}

func buildPayload(req Request) map[string]any {
	contents := make([]map[string]any, 0, len(req.Turns))
	for _, turn := range req.Turns {
		role := turn.Role
		if role == "" {
			role = "user"
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]any{{"text": turn.Text}},
		})
	}

	generationConfig := map[string]any{
		"temperature": req.Temperature,
	}
	if req.MaxOutputTokens > 0 {
		generationConfig["maxOutputTokens"] = req.MaxOutputTokens
	}
	if req.ResponseMimeType != "" {
		generationConfig["responseMimeType"] = req.ResponseMimeType
	}
	if len(req.ResponseModalities) > 0 {
		generationConfig["responseModalities"] = req.ResponseModalities
	}

	payload := map[string]any{
		"contents":         contents,
		"generationConfig": generationConfig,
	}
	if strings.TrimSpace(req.SystemText) != "" {
		payload["systemInstruction"] = map[string]any{
			"role":  "system",
			"parts": []map[string]any{{"text": req.SystemText}},
		}
	}
	return payload
}

func (c *Client) call(ctx context.Context, endpoint string, body []byte, req Request) (Response, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, false, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, true, fmt.Errorf("request generation backend: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, true, fmt.Errorf("read generation response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		message := parseAPIError(respBody)
		err := fmt.Errorf("generation backend status %d: %s", httpResp.StatusCode, message)
		if httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500 {
			if retryAfter := parseRetryAfter(httpResp.Header.Get("Retry-After")); retryAfter > 0 {
				select {
				case <-time.After(retryAfter):
				case <-ctx.Done():
					return Response{}, false, ctx.Err()
				}
			}
			return Response{}, true, err
		}
		return Response{}, false, err
	}

	resp, err := extractResponse(respBody)
	if err != nil {
		return Response{}, false, err
	}

	_, _ = fmt.Fprintf(
		c.progress,
		"[GEN] trace=%s turn=%d dur=%dms inBytes=%d outChars=%d finish=%s\n",
		orDash(req.TraceID),
		req.TurnNumber,
		time.Since(started).Milliseconds(),
		len(body),
		len(resp.Text),
		orDash(resp.FinishReason),
	)
	return resp, false, nil
}

func extractResponse(body []byte) (Response, error) {
	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text       string `json:"text"`
					InlineData *struct {
						MimeType string `json:"mimeType"`
						Data     string `json:"data"`
					} `json:"inlineData"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int64 `json:"promptTokenCount"`
			CandidatesTokenCount int64 `json:"candidatesTokenCount"`
			TotalTokenCount      int64 `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return Response{}, fmt.Errorf("parse generation response JSON: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return Response{}, errors.New("generation response has no candidates")
	}

	var builder strings.Builder
	var images []InlineImage
	for _, part := range parsed.Candidates[0].Content.Parts {
		builder.WriteString(part.Text)
		if part.InlineData != nil && part.InlineData.Data != "" {
			images = append(images, InlineImage{
				MimeType: part.InlineData.MimeType,
				Data:     part.InlineData.Data,
			})
		}
	}

	resp := Response{
		Text:         builder.String(),
		FinishReason: parsed.Candidates[0].FinishReason,
		Images:       images,
	}
	if parsed.UsageMetadata.TotalTokenCount > 0 {
		resp.Usage = Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  parsed.UsageMetadata.TotalTokenCount,
			Available:    true,
		}
	}
	return resp, nil
}

func parseAPIError(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &parsed); err == nil && strings.TrimSpace(parsed.Error.Message) != "" {
		return parsed.Error.Message
	}

	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrBody {
		snippet = snippet[:maxErrBody] + "..."
	}
	if snippet == "" {
		return "empty error response"
	}
	return snippet
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if ts, err := http.ParseTime(value); err == nil {
		delta := time.Until(ts)
		if delta > 0 {
			return delta
		}
	}

	return 0
}

func backoffDelay(attempt int) time.Duration {
	base := time.Second
	delay := base * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Intn(250)) * time.Millisecond
	max := 30 * time.Second
	if delay+jitter > max {
		return max
	}
	return delay + jitter
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
