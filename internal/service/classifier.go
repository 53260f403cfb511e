package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/civic_complaints/backend/internal/ai"
	"github.com/civic_complaints/backend/internal/budget"
	"github.com/civic_complaints/backend/internal/metrics"
	"github.com/civic_complaints/backend/internal/models"
	"github.com/civic_complaints/backend/internal/taxonomy"
)

const (
	SourceKeyword       = "keyword"
	SourceAIText        = "ai_text"
	SourceImageOverride = "image_override"

	textWeight           = 0.7
	imageWeight          = 0.3
	imageOverrideMinConf = 0.7
	fallbackConfidence   = 0.5
	keywordsForFullConf  = 3.0
)

type ClassifierConfig struct {
	AIEnabled            bool
	Timeout              time.Duration
	TextCallCost         float64
	ImageCallCost        float64
	ImageAnalysisEnabled bool
	ImageSkipConfidence  float64
	MaxImages            int
}

// ContentClassifier turns complaint text and photos into a category. It never
// fails: provider problems fall back to keyword scoring.
type ContentClassifier struct {
	Provider ai.Provider
	Budget   budget.Tracker
	Taxonomy *taxonomy.Taxonomy
	Config   ClassifierConfig
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

type ClassifyInput struct {
	Title       string
	Description string
	Images      []string
	// AllowAI lets the caller withhold inference, e.g. once a batch quota is spent.
	AllowAI bool
}

func (c *ContentClassifier) Classify(ctx context.Context, title, description string, images []string) models.ClassificationResult {
	return c.ClassifyWith(ctx, ClassifyInput{Title: title, Description: description, Images: images, AllowAI: true})
}

func (c *ContentClassifier) ClassifyWith(ctx context.Context, in ClassifyInput) models.ClassificationResult {
	blob := taxonomy.Normalize(in.Title + " " + in.Description)

	result, ok := c.classifyTextAI(ctx, blob, in.AllowAI)
	if !ok {
		result = c.KeywordClassify(blob)
	}

	if c.imageAnalysisAllowed(in, result) {
		if img, ok := c.classifyImages(ctx, in.Images); ok {
			result = c.combine(result, img)
		} else {
			result.ImageResults = img.results
		}
	}

	c.Metrics.Classification(result.Source)
	return result
}

func (c *ContentClassifier) taxonomy() *taxonomy.Taxonomy {
	if c.Taxonomy != nil {
		return c.Taxonomy
	}
	return taxonomy.Default()
}

func (c *ContentClassifier) aiAvailable(allow bool) bool {
	return allow && c.Config.AIEnabled && c.Provider != nil
}

// KeywordClassify is the deterministic fallback: the category with the most
// keyword hits wins with confidence min(hits/3, 1). Ties and zero hits yield
// the catch-all category at 0.5.
func (c *ContentClassifier) KeywordClassify(blob string) models.ClassificationResult {
	tx := c.taxonomy()
	tokens := taxonomy.Tokens(taxonomy.Normalize(blob))

	best := models.CategoryOther
	bestCount := 0
	tied := false
	var bestHits []string
	for _, cat := range tx.KeywordCategories() {
		count := 0
		var hits []string
		for _, kw := range tx.Keywords[cat] {
			if n := taxonomy.CountPhrase(tokens, kw); n > 0 {
				count += n
				hits = append(hits, kw)
			}
		}
		switch {
		case count > bestCount:
			best, bestCount, bestHits, tied = cat, count, hits, false
		case count == bestCount && count > 0:
			tied = true
		}
	}

	if bestCount == 0 || tied {
		reason := "no category keywords matched"
		if tied {
			reason = fmt.Sprintf("keyword tie at %d matches", bestCount)
		}
		return models.ClassificationResult{
			Category:   models.CategoryOther,
			Confidence: fallbackConfidence,
			Reasoning:  reason,
			Source:     SourceKeyword,
		}
	}

	conf := float64(bestCount) / keywordsForFullConf
	if conf > 1 {
		conf = 1
	}
	return models.ClassificationResult{
		Category:   best,
		Confidence: conf,
		Reasoning:  fmt.Sprintf("keyword match (%d): %s", bestCount, strings.Join(bestHits, ", ")),
		Source:     SourceKeyword,
	}
}

func (c *ContentClassifier) reserve(ctx context.Context, cost float64) bool {
	if c.Budget == nil {
		return true
	}
	ok, err := c.Budget.Reserve(ctx, cost)
	if err != nil {
		c.Logger.Warn().Err(err).Msg("ai budget unavailable, using keyword fallback")
		return false
	}
	if !ok {
		c.Logger.Debug().Msg("ai budget exhausted for window")
	}
	return ok
}

func (c *ContentClassifier) providerFailed(ctx context.Context, op string, err error) {
	var rl ai.RateLimitError
	if errors.As(err, &rl) {
		c.Logger.Warn().Dur("retry_after", rl.RetryAfter).Msg("ai provider rate limited, suspending inference for budget window")
		if c.Budget != nil {
			if serr := c.Budget.Suspend(ctx, 0); serr != nil {
				c.Logger.Error().Err(serr).Msg("failed to suspend ai budget")
			}
		}
		return
	}
	c.Logger.Warn().Err(err).Str("op", op).Bool("unavailable", errors.Is(err, ai.ErrUnavailable)).Msg("ai classification failed, using fallback")
}

func (c *ContentClassifier) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.Config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *ContentClassifier) classifyTextAI(ctx context.Context, blob string, allow bool) (models.ClassificationResult, bool) {
	if !c.aiAvailable(allow) || blob == "" {
		return models.ClassificationResult{}, false
	}
	if !c.reserve(ctx, c.Config.TextCallCost) {
		return models.ClassificationResult{}, false
	}

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	pred, err := c.Provider.ClassifyText(callCtx, blob)
	if err != nil {
		c.providerFailed(ctx, "text", err)
		return models.ClassificationResult{}, false
	}
	cat, known := models.ParseCategory(pred.Category)
	if !known {
		c.Logger.Warn().Str("category", pred.Category).Msg("ai returned unknown category, using fallback")
		return models.ClassificationResult{}, false
	}
	reasoning := pred.Reasoning
	if reasoning == "" {
		reasoning = "ai text classification"
	}
	return models.ClassificationResult{
		Category:     cat,
		Confidence:   clamp01(pred.Confidence),
		Reasoning:    reasoning,
		Source:       SourceAIText,
		UsedAI:       true,
		ModelVersion: pred.ModelVersion,
	}, true
}

func (c *ContentClassifier) imageAnalysisAllowed(in ClassifyInput, text models.ClassificationResult) bool {
	if !c.Config.ImageAnalysisEnabled || !c.aiAvailable(in.AllowAI) || len(in.Images) == 0 {
		return false
	}
	if c.Config.ImageSkipConfidence > 0 && text.Confidence >= c.Config.ImageSkipConfidence {
		return false
	}
	return true
}

type imageVote struct {
	category   models.Category
	confidence float64
	results    []models.ImageResult
}

func (c *ContentClassifier) classifyImages(ctx context.Context, images []string) (imageVote, bool) {
	limit := c.Config.MaxImages
	if limit <= 0 {
		limit = 3
	}
	if len(images) > limit {
		images = images[:limit]
	}

	var vote imageVote
	counts := map[models.Category]int{}
	sums := map[models.Category]float64{}
	total := 0.0
	ok := 0
	for _, ref := range images {
		res := models.ImageResult{Ref: ref}
		if !c.reserve(ctx, c.Config.ImageCallCost) {
			res.Error = "budget exhausted"
			vote.results = append(vote.results, res)
			break
		}
		callCtx, cancel := c.withTimeout(ctx)
		pred, err := c.Provider.ClassifyImage(callCtx, ref)
		cancel()
		if err != nil {
			c.providerFailed(ctx, "image", err)
			res.Error = err.Error()
			vote.results = append(vote.results, res)
			continue
		}
		cat, known := models.ParseCategory(pred.Category)
		if !known {
			res.Error = "unknown category " + pred.Category
			vote.results = append(vote.results, res)
			continue
		}
		res.Category = cat
		res.Confidence = clamp01(pred.Confidence)
		vote.results = append(vote.results, res)
		counts[cat]++
		sums[cat] += res.Confidence
		total += res.Confidence
		ok++
	}
	if ok == 0 {
		return vote, false
	}

	cats := make([]models.Category, 0, len(counts))
	for cat := range counts {
		cats = append(cats, cat)
	}
	tx := c.taxonomy()
	sort.Slice(cats, func(i, j int) bool {
		a, b := cats[i], cats[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		if sums[a] != sums[b] {
			return sums[a] > sums[b]
		}
		if tx.SpecificityOf(a) != tx.SpecificityOf(b) {
			return tx.SpecificityOf(a) > tx.SpecificityOf(b)
		}
		return a < b
	})
	vote.category = cats[0]
	vote.confidence = total / float64(ok)
	return vote, true
}

// combine weighs text at 0.7 and images at 0.3, unless a confident image
// result names a more specific category than the text.
func (c *ContentClassifier) combine(text models.ClassificationResult, img imageVote) models.ClassificationResult {
	tx := c.taxonomy()
	out := text
	out.UsedAI = true
	out.ImageResults = img.results

	if img.confidence > imageOverrideMinConf && tx.SpecificityOf(img.category) > tx.SpecificityOf(text.Category) {
		out.Category = img.category
		out.Confidence = clamp01(img.confidence)
		out.Source = SourceImageOverride
		out.Reasoning = fmt.Sprintf("%s; image analysis overrides with %s (%.2f)", text.Reasoning, img.category, img.confidence)
		return out
	}

	if img.category == text.Category {
		out.Confidence = clamp01(textWeight*text.Confidence + imageWeight*img.confidence)
	} else {
		out.Confidence = clamp01(textWeight * text.Confidence)
	}
	out.Source = text.Source + "+image"
	out.Reasoning = fmt.Sprintf("%s; images suggest %s (%.2f)", text.Reasoning, img.category, img.confidence)
	return out
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
