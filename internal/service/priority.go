package service

import (
	"github.com/civic_complaints/backend/internal/models"
	"github.com/civic_complaints/backend/internal/taxonomy"
)

const (
	urgentThreshold = 8
	highThreshold   = 5
	mediumThreshold = 2
)

type PriorityScorer struct {
	Taxonomy *taxonomy.Taxonomy
}

type PriorityBreakdown struct {
	Points     int               `json:"points"`
	Matched    []models.Priority `json:"matched_indicators"`
	Adjustment int               `json:"category_adjustment"`
	Priority   models.Priority   `json:"priority"`
}

func (p PriorityScorer) Score(text string, category models.Category) models.Priority {
	return p.Breakdown(text, category).Priority
}

// Breakdown adds each indicator set's weight once when any of its phrases
// occurs, then the category adjustment.
func (p PriorityScorer) Breakdown(text string, category models.Category) PriorityBreakdown {
	tx := p.Taxonomy
	if tx == nil {
		tx = taxonomy.Default()
	}
	tokens := taxonomy.Tokens(taxonomy.Normalize(text))

	var b PriorityBreakdown
	for _, set := range tx.Indicators {
		if taxonomy.ContainsAny(tokens, set.Phrases) {
			b.Points += set.Weight
			b.Matched = append(b.Matched, set.Level)
		}
	}
	b.Adjustment = tx.AdjustmentFor(category)
	b.Points += b.Adjustment
	b.Priority = PriorityFromPoints(b.Points)
	return b
}

func PriorityFromPoints(points int) models.Priority {
	switch {
	case points >= urgentThreshold:
		return models.PriorityUrgent
	case points >= highThreshold:
		return models.PriorityHigh
	case points >= mediumThreshold:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}
