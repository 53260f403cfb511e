package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"
)

// MockProvider returns deterministic predictions derived from a hash of the
// input. It is used when no AI_URL is configured.
type MockProvider struct {
	ModelVersion string
	Categories   []string
}

func (m MockProvider) ClassifyText(ctx context.Context, text string) (Prediction, error) {
	return m.predict(ctx, "text", text)
}

func (m MockProvider) ClassifyImage(ctx context.Context, ref string) (Prediction, error) {
	return m.predict(ctx, "image", ref)
}

func (m MockProvider) predict(ctx context.Context, kind, input string) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, unavailable("context done", err)
	}
	start := time.Now()
	categories := m.Categories
	if len(categories) == 0 {
		categories = []string{"other"}
	}
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(kind + ":" + input))
	h := hasher.Sum64()

	confidences := []float64{0.55, 0.65, 0.75, 0.85, 0.95}
	category := categories[int(h%uint64(len(categories)))]
	confidence := confidences[int((h/7)%uint64(len(confidences)))]

	return Prediction{
		Category:     category,
		Confidence:   confidence,
		Reasoning:    fmt.Sprintf("mock %s classification", kind),
		ModelVersion: m.ModelVersion,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}
