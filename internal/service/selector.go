package service

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/civic_complaints/backend/internal/models"
	"github.com/civic_complaints/backend/internal/taxonomy"
)

type SelectorWeights struct {
	Load            float64
	Experience      float64
	Unavailable     float64
	UrgentLoad      float64
	HighLoad        float64
	RotationPerDay  float64
	RotationCapDays float64
}

func DefaultSelectorWeights() SelectorWeights {
	return SelectorWeights{
		Load:            10,
		Experience:      2,
		Unavailable:     100,
		UrgentLoad:      5,
		HighLoad:        3,
		RotationPerDay:  0.1,
		RotationCapDays: 30,
	}
}

type ScoreComponents struct {
	Load         float64 `json:"load"`
	Experience   float64 `json:"experience"`
	Availability float64 `json:"availability"`
	PriorityLoad float64 `json:"priority_load"`
	Rotation     float64 `json:"rotation"`
}

type CandidateScore struct {
	Staff      models.StaffMember `json:"staff"`
	Score      float64            `json:"score"`
	Components ScoreComponents    `json:"components"`
}

type SelectionResult struct {
	Staff      models.StaffMember `json:"staff"`
	Department models.Department  `json:"department"`
	Score      float64            `json:"score"`
	Candidates []CandidateScore   `json:"candidates"`
	Reason     string             `json:"reason"`
}

// AssignmentSelector ranks field workers for a complaint. Lower scores win.
type AssignmentSelector struct {
	Weights  SelectorWeights
	Taxonomy *taxonomy.Taxonomy
	Now      func() time.Time
}

func (s AssignmentSelector) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s AssignmentSelector) Department(category models.Category) models.Department {
	tx := s.Taxonomy
	if tx == nil {
		tx = taxonomy.Default()
	}
	return tx.DepartmentFor(category)
}

func (s AssignmentSelector) score(m models.StaffMember, priority models.Priority, now time.Time) CandidateScore {
	w := s.Weights
	active := float64(m.ActiveAssignments)

	var c ScoreComponents
	c.Load = w.Load * active
	c.Experience = -w.Experience * float64(m.ExperienceYears)
	if !m.Available {
		c.Availability = w.Unavailable
	}
	switch priority {
	case models.PriorityUrgent:
		c.PriorityLoad = w.UrgentLoad * active
	case models.PriorityHigh:
		c.PriorityLoad = w.HighLoad * active
	}
	days := w.RotationCapDays
	if m.LastAssignedAt != nil {
		days = math.Min(math.Max(now.Sub(*m.LastAssignedAt).Hours()/24, 0), w.RotationCapDays)
	}
	c.Rotation = -w.RotationPerDay * days

	return CandidateScore{
		Staff:      m,
		Score:      c.Load + c.Experience + c.Availability + c.PriorityLoad + c.Rotation,
		Components: c,
	}
}

// Rank scores every active member of pool, best first. Ties go to the earliest
// registration, then the lowest id.
func (s AssignmentSelector) Rank(priority models.Priority, pool []models.StaffMember) []CandidateScore {
	now := s.now()
	out := make([]CandidateScore, 0, len(pool))
	for _, m := range pool {
		if !m.Active {
			continue
		}
		out = append(out, s.score(m, priority, now))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if !a.Staff.RegisteredAt.Equal(b.Staff.RegisteredAt) {
			return a.Staff.RegisteredAt.Before(b.Staff.RegisteredAt)
		}
		return a.Staff.ID < b.Staff.ID
	})
	return out
}

// SelectBestStaff returns ok=false when the pool holds no active staff.
func (s AssignmentSelector) SelectBestStaff(category models.Category, priority models.Priority, pool []models.StaffMember) (SelectionResult, bool) {
	dept := s.Department(category)
	ranked := s.Rank(priority, pool)
	if len(ranked) == 0 {
		return SelectionResult{Department: dept, Reason: fmt.Sprintf("no eligible staff in %s", dept)}, false
	}
	best := ranked[0]
	return SelectionResult{
		Staff:      best.Staff,
		Department: dept,
		Score:      best.Score,
		Candidates: ranked,
		Reason: fmt.Sprintf("best score %.2f of %d candidates in %s (active %d, experience %d)",
			best.Score, len(ranked), dept, best.Staff.ActiveAssignments, best.Staff.ExperienceYears),
	}, true
}

func excludeStaff(pool []models.StaffMember, excluded map[string]bool) []models.StaffMember {
	if len(excluded) == 0 {
		return pool
	}
	out := make([]models.StaffMember, 0, len(pool))
	for _, m := range pool {
		if !excluded[m.ID] {
			out = append(out, m)
		}
	}
	return out
}
