package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// OpenAICompatProvider classifies complaints through any OpenAI-compatible
// /chat/completions endpoint, using image_url parts for photos.
type OpenAICompatProvider struct {
	BaseURL    string
	Model      string
	APIKey     string
	MaxTokens  int
	Categories []string
	Client     *http.Client
	CacheTTL   time.Duration

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	value Prediction
	exp   time.Time
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

const systemPrompt = `You triage municipal complaints. Answer with a single JSON object:
{"category": "<one of: %s>", "confidence": <number between 0 and 1>, "reasoning": "<one sentence>"}`

func (a *OpenAICompatProvider) ClassifyText(ctx context.Context, text string) (Prediction, error) {
	return a.complete(ctx, "text:"+text, text)
}

func (a *OpenAICompatProvider) ClassifyImage(ctx context.Context, ref string) (Prediction, error) {
	parts := []contentPart{
		{Type: "text", Text: "Classify the civic issue shown in this photo."},
		{Type: "image_url", ImageURL: &imageURL{URL: ref}},
	}
	return a.complete(ctx, "image:"+ref, parts)
}

func (a *OpenAICompatProvider) complete(ctx context.Context, cacheKey string, content any) (Prediction, error) {
	if strings.TrimSpace(a.BaseURL) == "" {
		return Prediction{}, unavailable("AI_URL is not set", nil)
	}
	if strings.TrimSpace(a.Model) == "" {
		return Prediction{}, unavailable("AI_MODEL is not set", nil)
	}

	if v, ok := a.cacheGet(cacheKey); ok {
		return v, nil
	}

	payload := struct {
		Model          string         `json:"model"`
		Temperature    float64        `json:"temperature"`
		MaxTokens      int            `json:"max_tokens,omitempty"`
		ResponseFormat map[string]any `json:"response_format,omitempty"`
		Messages       []chatMessage  `json:"messages"`
	}{
		Model:          a.Model,
		MaxTokens:      a.MaxTokens,
		ResponseFormat: map[string]any{"type": "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, strings.Join(a.Categories, ", "))},
			{Role: "user", Content: content},
		},
	}

	b, _ := json.Marshal(payload)
	url := strings.TrimRight(a.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return Prediction{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(a.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}

	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Prediction{}, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if resp.StatusCode == http.StatusTooManyRequests {
			if d := extractRetryAfter(errBody); d > 0 {
				return Prediction{}, RateLimitError{RetryAfter: d}
			}
			return Prediction{}, RateLimitError{RetryAfter: parseRetryAfterHeader(resp.Header.Get("Retry-After"))}
		}
		return Prediction{}, unavailable(fmt.Sprintf("http error: %s", resp.Status), nil)
	}

	var res struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Prediction{}, unavailable("decode response", err)
	}
	if len(res.Choices) == 0 {
		return Prediction{}, unavailable("empty completion", nil)
	}

	pred, err := parseCompletion(res.Choices[0].Message.Content)
	if err != nil {
		return Prediction{}, unavailable("parse completion", err)
	}
	pred.ModelVersion = res.Model
	if pred.ModelVersion == "" {
		pred.ModelVersion = a.Model
	}
	pred.LatencyMs = time.Since(start).Milliseconds()
	a.cacheSet(cacheKey, pred)
	return pred, nil
}

// parseCompletion extracts the JSON object from a completion, tolerating
// markdown fences around it.
func parseCompletion(content string) (Prediction, error) {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "{"); i >= 0 {
		if j := strings.LastIndex(content, "}"); j > i {
			content = content[i : j+1]
		}
	}
	var out struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Prediction{}, err
	}
	if strings.TrimSpace(out.Category) == "" {
		return Prediction{}, fmt.Errorf("completion has no category")
	}
	return Prediction{
		Category:   out.Category,
		Confidence: clamp01(out.Confidence),
		Reasoning:  out.Reasoning,
	}, nil
}

func (a *OpenAICompatProvider) cacheGet(key string) (Prediction, bool) {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	if e, ok := a.cache[key]; ok {
		if time.Now().Before(e.exp) {
			return e.value, true
		}
		delete(a.cache, key)
	}
	return Prediction{}, false
}

func (a *OpenAICompatProvider) cacheSet(key string, value Prediction) {
	ttl := a.CacheTTL
	if ttl <= 0 {
		return
	}
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	if a.cache == nil {
		a.cache = map[string]cacheEntry{}
	}
	a.cache[key] = cacheEntry{
		value: value,
		exp:   time.Now().Add(ttl),
	}
}

func extractRetryAfter(errBody map[string]any) time.Duration {
	errObj, ok := errBody["error"].(map[string]any)
	if !ok {
		return 0
	}
	details, ok := errObj["details"].([]any)
	if !ok {
		return 0
	}
	for _, d := range details {
		m, ok := d.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := m["@type"].(string); ok && strings.Contains(t, "RetryInfo") {
			if s, ok := m["retryDelay"].(string); ok {
				if dur, err := time.ParseDuration(s); err == nil {
					return dur
				}
			}
		}
	}
	return 0
}
