package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic_complaints/backend/internal/ai"
	"github.com/civic_complaints/backend/internal/budget"
	"github.com/civic_complaints/backend/internal/config"
	"github.com/civic_complaints/backend/internal/db"
	"github.com/civic_complaints/backend/internal/models"
)

const fixtureYAML = `
staff:
  - id: s1
    name: Ana
    department: roads
    experience_years: 4
    max_workload: 5
  - id: s2
    name: Ben
    department: water
    unavailable: true
    max_workload: 5
complaints:
  - id: c1
    title: Pothole on Elm Street
    description: deep pothole damaging cars
    age_minutes: 30
  - id: c2
    title: Water leak
    description: water main leaking for two days
`

func testConfig() config.Config {
	return config.Config{
		Env:                "test",
		LogLevel:           "disabled",
		BatchSize:          10,
		BatchWorkers:       2,
		AIDailyCostLimit:   1,
		AIMonthlyCostLimit: 10,
		TierLightMax:       3,
		TierModerateMax:    6,
		TierHeavyMax:       10,
		MaxRunHistory:      5,
	}
}

func TestParseFixture(t *testing.T) {
	f, err := ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)
	require.Len(t, f.Staff, 2)
	require.Len(t, f.Complaints, 2)
	assert.True(t, f.Staff[1].Unavailable)
	assert.Equal(t, 30, f.Complaints[0].AgeMinutes)
}

func TestParseFixtureRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown department": "staff:\n  - id: s1\n    department: moon\n",
		"missing id":         "complaints:\n  - title: x\n",
		"duplicate":          "complaints:\n  - id: c1\n  - id: c1\n",
		"not yaml":           "staff: [",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFixture([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestFixtureSeed(t *testing.T) {
	f, err := ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)
	store := db.NewMemoryStore()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	staff, complaints, err := f.Seed(context.Background(), store, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, staff)
	assert.EqualValues(t, 2, complaints)

	pending, err := store.ListProcessable(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "c1", pending[0].ID, "older complaint first")

	s2, err := store.GetStaff(context.Background(), "s2")
	require.NoError(t, err)
	assert.True(t, s2.Active)
	assert.False(t, s2.Available)
}

func TestNewWiresMemoryDefaults(t *testing.T) {
	store := db.NewMemoryStore()
	a, err := New(context.Background(), testConfig(), store, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	_, isMemory := a.Budget.(*budget.MemoryTracker)
	assert.True(t, isMemory, "no REDIS_ADDR means in-process budget")
	_, isMock := a.Provider.(ai.MockProvider)
	assert.True(t, isMock, "no AI_URL means mock provider")
	assert.Equal(t, 3, a.Rebalancer.Tiers.LightMax)
}

func TestEndToEndSweepOverFixture(t *testing.T) {
	store := db.NewMemoryStore()
	f, err := ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)
	_, _, err = f.Seed(context.Background(), store, time.Now().UTC())
	require.NoError(t, err)

	a, err := New(context.Background(), testConfig(), store, zerolog.Nop())
	require.NoError(t, err)

	res := a.Scheduler.TriggerSweep(context.Background(), 0)
	require.False(t, res.Skipped)
	require.NotNil(t, res.Summary)
	assert.Equal(t, 2, res.Summary.Processed)
	assert.Equal(t, 2, res.Summary.Succeeded, "unavailable staff still take work when they are the only option")

	c1, err := store.GetComplaint(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, c1.Category)
	assert.Equal(t, models.CategoryRoadIssues, *c1.Category)
	require.NotNil(t, c1.AssignedStaffID)
	assert.Equal(t, "s1", *c1.AssignedStaffID)

	run, err := store.GetLatestRun(context.Background(), "sweep")
	require.NoError(t, err)
	assert.Equal(t, db.RunStatusCompleted, run.Status)
}

func TestLoadFixtureFromRepo(t *testing.T) {
	f, err := LoadFixture("../../testdata/fixture.yaml")
	require.NoError(t, err)
	assert.Len(t, f.Staff, 4)
	assert.Len(t, f.Complaints, 3)

	_, err = LoadFixture("../../testdata/missing.yaml")
	assert.Error(t, err)
}
