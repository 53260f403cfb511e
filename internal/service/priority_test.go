package service

import (
	"testing"

	"github.com/civic_complaints/backend/internal/models"
)

func TestPriorityScorerThresholds(t *testing.T) {
	scorer := PriorityScorer{}
	cases := []struct {
		text     string
		category models.Category
		want     models.Priority
	}{
		{"a dangerous live wire on the footpath", models.CategoryElectricity, models.PriorityUrgent},
		{"the swing is broken", models.CategoryParksRecreation, models.PriorityHigh},
		{"bench needs repair", models.CategoryParksRecreation, models.PriorityMedium},
		{"old bench", models.CategoryParksRecreation, models.PriorityLow},
		{"suspicious activity at night", models.CategoryPublicSafety, models.PriorityMedium},
		{"minor cosmetic suggestion", models.CategoryOther, models.PriorityMedium},
		{"nothing to say", models.CategoryOther, models.PriorityLow},
		{"severe pothole", models.CategoryRoadIssues, models.PriorityUrgent},
	}
	for _, tc := range cases {
		if got := scorer.Score(tc.text, tc.category); got != tc.want {
			t.Fatalf("Score(%q, %s) = %s, want %s", tc.text, tc.category, got, tc.want)
		}
	}
}

func TestPriorityIndicatorCountsOncePerSet(t *testing.T) {
	b := PriorityScorer{}.Breakdown("urgent emergency danger", models.CategoryOther)
	if b.Points != 10 {
		t.Fatalf("expected one urgent weight, got %d", b.Points)
	}
	if len(b.Matched) != 1 || b.Matched[0] != models.PriorityUrgent {
		t.Fatalf("unexpected matched sets %v", b.Matched)
	}
}

func TestPriorityFromPoints(t *testing.T) {
	if PriorityFromPoints(8) != models.PriorityUrgent || PriorityFromPoints(7) != models.PriorityHigh {
		t.Fatalf("urgent/high boundary wrong")
	}
	if PriorityFromPoints(5) != models.PriorityHigh || PriorityFromPoints(4) != models.PriorityMedium {
		t.Fatalf("high/medium boundary wrong")
	}
	if PriorityFromPoints(2) != models.PriorityMedium || PriorityFromPoints(1) != models.PriorityLow {
		t.Fatalf("medium/low boundary wrong")
	}
}
