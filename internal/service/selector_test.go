package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civic_complaints/backend/internal/models"
)

func TestSelectorPrefersLowerLoadOverExperience(t *testing.T) {
	pool := []models.StaffMember{
		{ID: "A", Active: true, Available: true, ActiveAssignments: 2, ExperienceYears: 5},
		{ID: "B", Active: true, Available: true, ActiveAssignments: 0, ExperienceYears: 1},
	}
	sel, ok := newSelector().SelectBestStaff(models.CategoryWaterSupply, models.PriorityMedium, pool)
	require.True(t, ok)
	require.Equal(t, "B", sel.Staff.ID)
	require.Equal(t, models.DepartmentWater, sel.Department)
}

func TestSelectorDeterministic(t *testing.T) {
	reg := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pool := []models.StaffMember{
		{ID: "s3", Active: true, Available: true, ActiveAssignments: 1, RegisteredAt: reg},
		{ID: "s1", Active: true, Available: true, ActiveAssignments: 1, RegisteredAt: reg},
		{ID: "s2", Active: true, Available: true, ActiveAssignments: 1, RegisteredAt: reg},
	}
	s := newSelector()
	first, ok := s.SelectBestStaff(models.CategoryRoadIssues, models.PriorityHigh, pool)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		again, _ := s.SelectBestStaff(models.CategoryRoadIssues, models.PriorityHigh, pool)
		require.Equal(t, first.Staff.ID, again.Staff.ID)
	}
	require.Equal(t, "s1", first.Staff.ID)
}

func TestSelectorTieBreaksOnRegistration(t *testing.T) {
	pool := []models.StaffMember{
		{ID: "a", Active: true, Available: true, RegisteredAt: testNow.Add(-time.Hour)},
		{ID: "b", Active: true, Available: true, RegisteredAt: testNow.Add(-48 * time.Hour)},
	}
	sel, ok := newSelector().SelectBestStaff(models.CategoryOther, models.PriorityLow, pool)
	require.True(t, ok)
	require.Equal(t, "b", sel.Staff.ID)
}

func TestSelectorSoftDegradationAtCapacity(t *testing.T) {
	pool := []models.StaffMember{
		{ID: "x", Active: true, Available: true, ActiveAssignments: 5, MaxWorkload: 5},
		{ID: "y", Active: true, Available: false, ActiveAssignments: 9, MaxWorkload: 3},
	}
	sel, ok := newSelector().SelectBestStaff(models.CategoryElectricity, models.PriorityUrgent, pool)
	require.True(t, ok)
	require.Equal(t, "x", sel.Staff.ID)
}

func TestSelectorEmptyPool(t *testing.T) {
	_, ok := newSelector().SelectBestStaff(models.CategoryRoadIssues, models.PriorityLow, nil)
	require.False(t, ok)

	_, ok = newSelector().SelectBestStaff(models.CategoryRoadIssues, models.PriorityLow, []models.StaffMember{{ID: "z", Active: false}})
	require.False(t, ok)
}

func TestSelectorRotationFavoursLongIdle(t *testing.T) {
	recent := testNow.Add(-time.Hour)
	old := testNow.Add(-20 * 24 * time.Hour)
	pool := []models.StaffMember{
		{ID: "recent", Active: true, Available: true, LastAssignedAt: &recent},
		{ID: "idle", Active: true, Available: true, LastAssignedAt: &old},
	}
	ranked := newSelector().Rank(models.PriorityLow, pool)
	require.Equal(t, "idle", ranked[0].Staff.ID)
	require.InDelta(t, -2.0, ranked[0].Components.Rotation, 1e-9)
}

func TestSelectorUnavailablePenalty(t *testing.T) {
	pool := []models.StaffMember{
		{ID: "away", Active: true, Available: false, ExperienceYears: 20},
		{ID: "here", Active: true, Available: true, ActiveAssignments: 3},
	}
	sel, _ := newSelector().SelectBestStaff(models.CategoryOther, models.PriorityLow, pool)
	require.Equal(t, "here", sel.Staff.ID)
}
