package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPProvider talks to an inference service exposing /classify/text and
// /classify/image JSON endpoints.
type HTTPProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

type textRequest struct {
	Text string `json:"text"`
}

type imageRequest struct {
	ImageURL string `json:"image_url"`
}

type classifyResponse struct {
	Category     string  `json:"category"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
	ModelVersion string  `json:"model_version"`
}

func (h HTTPProvider) ClassifyText(ctx context.Context, text string) (Prediction, error) {
	return h.post(ctx, "/classify/text", textRequest{Text: text})
}

func (h HTTPProvider) ClassifyImage(ctx context.Context, ref string) (Prediction, error) {
	return h.post(ctx, "/classify/image", imageRequest{ImageURL: ref})
}

func (h HTTPProvider) post(ctx context.Context, path string, payload any) (Prediction, error) {
	if strings.TrimSpace(h.BaseURL) == "" {
		return Prediction{}, unavailable("AI_URL is not set", nil)
	}
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	b, _ := json.Marshal(payload)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(h.BaseURL, "/")+path, bytes.NewBuffer(b))
	if err != nil {
		return Prediction{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Prediction{}, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Prediction{}, RateLimitError{RetryAfter: parseRetryAfterHeader(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Prediction{}, unavailable(fmt.Sprintf("ai service error: %s", resp.Status), nil)
	}

	var r classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Prediction{}, unavailable("decode response", err)
	}

	return Prediction{
		Category:     r.Category,
		Confidence:   clamp01(r.Confidence),
		Reasoning:    r.Reasoning,
		ModelVersion: r.ModelVersion,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return unavailable("request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return unavailable("request timed out", err)
	}
	return unavailable("request failed", err)
}

func parseRetryAfterHeader(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
