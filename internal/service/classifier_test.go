package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic_complaints/backend/internal/ai"
	"github.com/civic_complaints/backend/internal/budget"
	"github.com/civic_complaints/backend/internal/models"
	"github.com/civic_complaints/backend/internal/taxonomy"
)

func TestKeywordClassifyThreeKeywordsFullConfidence(t *testing.T) {
	c := keywordClassifier()
	res := c.KeywordClassify("garbage and trash dumping behind the market")
	require.Equal(t, models.CategoryWasteManagement, res.Category)
	require.Equal(t, 1.0, res.Confidence)
	require.False(t, res.UsedAI)
	require.Equal(t, SourceKeyword, res.Source)
}

func TestKeywordClassifyPartialConfidence(t *testing.T) {
	c := keywordClassifier()
	res := c.KeywordClassify("there is garbage here")
	require.Equal(t, models.CategoryWasteManagement, res.Category)
	assert.InDelta(t, 1.0/3.0, res.Confidence, 1e-9)
}

func TestKeywordClassifyNoMatchAndTie(t *testing.T) {
	c := keywordClassifier()

	res := c.KeywordClassify("hello there")
	require.Equal(t, models.CategoryOther, res.Category)
	require.Equal(t, 0.5, res.Confidence)

	res = c.KeywordClassify("garbage near the bus")
	require.Equal(t, models.CategoryOther, res.Category)
	require.Equal(t, 0.5, res.Confidence)
}

func TestKeywordClassifyWholeWords(t *testing.T) {
	c := keywordClassifier()
	res := c.KeywordClassify("waterlogging everywhere")
	require.Equal(t, models.CategoryDrainageSewage, res.Category)
}

func TestClassifyWaterPipeBurstScenario(t *testing.T) {
	tx := taxonomy.Default()
	for _, kw := range []string{"water leak", "pipe burst", "flooding"} {
		require.Contains(t, tx.Keywords[models.CategoryWaterSupply], kw)
	}
	require.Contains(t, tx.Indicators[0].Phrases, "flooding")
	require.Equal(t, models.PriorityUrgent, tx.Indicators[0].Level)

	c := &ContentClassifier{Taxonomy: tx, Logger: zerolog.Nop()}
	text := "water pipe burst causing flooding near Main Street"

	res := c.Classify(context.Background(), text, "", nil)
	require.Equal(t, models.CategoryWaterSupply, res.Category)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	require.False(t, res.UsedAI)

	b := PriorityScorer{Taxonomy: tx}.Breakdown(text, res.Category)
	require.Equal(t, models.PriorityUrgent, b.Priority)
	require.Equal(t, 10+7+2, b.Points)
}

func TestClassifyDisabledProviderNeverUsesAI(t *testing.T) {
	p := &fakeProvider{text: ai.Prediction{Category: "electricity", Confidence: 0.9}}
	c := &ContentClassifier{
		Provider: p,
		Config:   ClassifierConfig{AIEnabled: false, ImageAnalysisEnabled: true},
		Logger:   zerolog.Nop(),
	}
	for _, text := range []string{"", "pothole on road", "nothing relevant", "loud noise"} {
		res := c.Classify(context.Background(), text, "", []string{"img-1"})
		require.False(t, res.UsedAI)
		require.NotEmpty(t, res.Category)
	}
	require.Zero(t, p.textCalls)
	require.Zero(t, p.imageCalls)
}

func TestClassifyUsesProviderAndFallsBackOnError(t *testing.T) {
	p := &fakeProvider{text: ai.Prediction{Category: "Electricity", Confidence: 0.92, ModelVersion: "m1"}}
	c := &ContentClassifier{Provider: p, Config: ClassifierConfig{AIEnabled: true}, Logger: zerolog.Nop()}

	res := c.Classify(context.Background(), "lights out", "", nil)
	require.True(t, res.UsedAI)
	require.Equal(t, models.CategoryElectricity, res.Category)
	require.Equal(t, SourceAIText, res.Source)

	p.textErr = &ai.UnavailableError{Reason: "timeout"}
	res = c.Classify(context.Background(), "garbage and trash dumping", "", nil)
	require.False(t, res.UsedAI)
	require.Equal(t, models.CategoryWasteManagement, res.Category)
}

func TestClassifyRateLimitSuspendsBudgetWindow(t *testing.T) {
	tracker := budget.NewMemoryTracker(budget.Limits{Daily: 10})
	p := &fakeProvider{textErr: ai.RateLimitError{RetryAfter: time.Second}}
	c := &ContentClassifier{Provider: p, Budget: tracker, Config: ClassifierConfig{AIEnabled: true, TextCallCost: 0.01}, Logger: zerolog.Nop()}

	res := c.Classify(context.Background(), "pothole", "", nil)
	require.False(t, res.UsedAI)
	require.Equal(t, 1, p.textCalls)

	p.textErr = nil
	p.text = ai.Prediction{Category: "road_issues", Confidence: 0.9}
	res = c.Classify(context.Background(), "pothole", "", nil)
	require.False(t, res.UsedAI)
	require.Equal(t, 1, p.textCalls, "provider must not be called while suspended")
}

func TestClassifyBudgetExhaustionFallsBack(t *testing.T) {
	tracker := budget.NewMemoryTracker(budget.Limits{Daily: 0.015})
	p := &fakeProvider{text: ai.Prediction{Category: "road_issues", Confidence: 0.9}}
	c := &ContentClassifier{Provider: p, Budget: tracker, Config: ClassifierConfig{AIEnabled: true, TextCallCost: 0.01}, Logger: zerolog.Nop()}

	require.True(t, c.Classify(context.Background(), "pothole", "", nil).UsedAI)
	require.False(t, c.Classify(context.Background(), "pothole", "", nil).UsedAI)
	require.False(t, c.Classify(context.Background(), "pothole", "", nil).UsedAI)
	require.Equal(t, 1, p.textCalls)
}

func TestClassifyImageOverrideWhenMoreSpecific(t *testing.T) {
	p := &fakeProvider{
		text: ai.Prediction{Category: "building_infrastructure", Confidence: 0.6},
		images: map[string]ai.Prediction{
			"a": {Category: "road_issues", Confidence: 0.9},
			"b": {Category: "road_issues", Confidence: 0.8},
		},
	}
	c := &ContentClassifier{
		Provider: p,
		Config:   ClassifierConfig{AIEnabled: true, ImageAnalysisEnabled: true, ImageSkipConfidence: 0.85, MaxImages: 3},
		Logger:   zerolog.Nop(),
	}
	res := c.Classify(context.Background(), "something broke", "", []string{"a", "b"})
	require.Equal(t, models.CategoryRoadIssues, res.Category)
	require.Equal(t, SourceImageOverride, res.Source)
	assert.InDelta(t, 0.85, res.Confidence, 1e-9)
	require.Len(t, res.ImageResults, 2)
}

func TestClassifyImageCombination(t *testing.T) {
	p := &fakeProvider{
		text:   ai.Prediction{Category: "road_issues", Confidence: 0.6},
		images: map[string]ai.Prediction{"a": {Category: "road_issues", Confidence: 0.8}},
	}
	c := &ContentClassifier{
		Provider: p,
		Config:   ClassifierConfig{AIEnabled: true, ImageAnalysisEnabled: true, ImageSkipConfidence: 0.85},
		Logger:   zerolog.Nop(),
	}
	res := c.Classify(context.Background(), "pothole", "", []string{"a"})
	require.Equal(t, models.CategoryRoadIssues, res.Category)
	assert.InDelta(t, 0.7*0.6+0.3*0.8, res.Confidence, 1e-9)

	// a less specific image category never overrides and lowers confidence
	p.images["a"] = ai.Prediction{Category: "other", Confidence: 0.95}
	res = c.Classify(context.Background(), "pothole", "", []string{"a"})
	require.Equal(t, models.CategoryRoadIssues, res.Category)
	assert.InDelta(t, 0.7*0.6, res.Confidence, 1e-9)
}

func TestClassifySkipsImagesWhenTextConfident(t *testing.T) {
	p := &fakeProvider{text: ai.Prediction{Category: "road_issues", Confidence: 0.95}}
	c := &ContentClassifier{
		Provider: p,
		Config:   ClassifierConfig{AIEnabled: true, ImageAnalysisEnabled: true, ImageSkipConfidence: 0.85},
		Logger:   zerolog.Nop(),
	}
	res := c.Classify(context.Background(), "pothole", "", []string{"a"})
	require.Equal(t, 0, p.imageCalls)
	require.Equal(t, 0.95, res.Confidence)
}

func TestClassifyRespectsAllowAI(t *testing.T) {
	p := &fakeProvider{text: ai.Prediction{Category: "road_issues", Confidence: 0.95}}
	c := &ContentClassifier{Provider: p, Config: ClassifierConfig{AIEnabled: true}, Logger: zerolog.Nop()}
	res := c.ClassifyWith(context.Background(), ClassifyInput{Title: "pothole", AllowAI: false})
	require.False(t, res.UsedAI)
	require.Zero(t, p.textCalls)
}

// stalledProvider never answers on its own; it returns once the caller gives up.
type stalledProvider struct{}

func (stalledProvider) ClassifyText(ctx context.Context, _ string) (ai.Prediction, error) {
	<-ctx.Done()
	return ai.Prediction{}, ctx.Err()
}

func (stalledProvider) ClassifyImage(ctx context.Context, _ string) (ai.Prediction, error) {
	<-ctx.Done()
	return ai.Prediction{}, ctx.Err()
}

func TestClassifyProviderTimeoutFallsBackToKeywords(t *testing.T) {
	c := &ContentClassifier{
		Provider: stalledProvider{},
		Taxonomy: taxonomy.Default(),
		Config:   ClassifierConfig{AIEnabled: true, Timeout: 10 * time.Millisecond},
		Logger:   zerolog.Nop(),
	}

	start := time.Now()
	res := c.Classify(context.Background(), "pothole on the road", "", nil)
	require.Less(t, time.Since(start), 2*time.Second)
	require.False(t, res.UsedAI)
	require.Equal(t, SourceKeyword, res.Source)
	require.Equal(t, models.CategoryRoadIssues, res.Category)
}

func TestClassifyDefaultTaxonomyConcurrent(t *testing.T) {
	c := &ContentClassifier{Logger: zerolog.Nop()}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.Classify(context.Background(), "garbage and trash dumping", "", nil)
			assert.Equal(t, models.CategoryWasteManagement, res.Category)
		}()
	}
	wg.Wait()
	require.Nil(t, c.Taxonomy)
}
