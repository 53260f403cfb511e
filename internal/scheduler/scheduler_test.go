package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic_complaints/backend/internal/budget"
	"github.com/civic_complaints/backend/internal/db"
	"github.com/civic_complaints/backend/internal/models"
	"github.com/civic_complaints/backend/internal/service"
)

type blockingBatch struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
	err     error
}

func newBlockingBatch() *blockingBatch {
	return &blockingBatch{started: make(chan struct{}, 10), release: make(chan struct{})}
}

func (b *blockingBatch) ProcessPendingBatch(ctx context.Context, maxItems int) (service.BatchSummary, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return service.BatchSummary{Processed: maxItems}, b.err
}

type instantBatch struct{}

func (instantBatch) ProcessPendingBatch(context.Context, int) (service.BatchSummary, error) {
	return service.BatchSummary{Processed: 1, Succeeded: 1}, nil
}

type countingRebalancer struct {
	mu    sync.Mutex
	depts []*models.Department
	done  chan struct{}
}

func (r *countingRebalancer) Rebalance(_ context.Context, dept *models.Department) (service.RebalanceResult, error) {
	r.mu.Lock()
	r.depts = append(r.depts, dept)
	r.mu.Unlock()
	if r.done != nil {
		r.done <- struct{}{}
	}
	return service.RebalanceResult{}, nil
}

func newTestScheduler(batch BatchRunner, rb Rebalancer, runs RunStore) *Scheduler {
	return New(Config{BatchSize: 5, MaxHistory: 3}, Deps{
		Batch:      batch,
		Rebalancer: rb,
		Runs:       runs,
		Logger:     zerolog.Nop(),
	})
}

func TestManualSweepSkippedWhileRunning(t *testing.T) {
	batch := newBlockingBatch()
	s := newTestScheduler(batch, &countingRebalancer{}, nil)

	first := make(chan SweepResult, 1)
	go func() { first <- s.TriggerSweep(context.Background(), 10) }()
	<-batch.started

	require.True(t, s.Status().IsRunning)
	second := s.TriggerSweep(context.Background(), 10)
	require.True(t, second.Skipped)
	require.Equal(t, ReasonAlreadyRunning, second.Reason)

	close(batch.release)
	res := <-first
	require.False(t, res.Skipped)
	require.Equal(t, 10, res.Summary.Processed)
	require.Equal(t, 1, batch.calls)
	require.False(t, s.Status().IsRunning)
}

func TestRebalanceDeferredUntilSweepCompletes(t *testing.T) {
	batch := newBlockingBatch()
	rb := &countingRebalancer{done: make(chan struct{}, 1)}
	s := newTestScheduler(batch, rb, nil)

	first := make(chan SweepResult, 1)
	go func() { first <- s.TriggerSweep(context.Background(), 1) }()
	<-batch.started

	water := models.DepartmentWater
	out := s.TriggerRebalance(context.Background(), &water)
	require.True(t, out.Deferred)
	require.Equal(t, 1, s.Status().PendingRebalances)

	close(batch.release)
	<-first
	select {
	case <-rb.done:
	case <-time.After(2 * time.Second):
		t.Fatal("deferred rebalance never ran")
	}
	rb.mu.Lock()
	defer rb.mu.Unlock()
	require.Len(t, rb.depts, 1)
	require.Equal(t, models.DepartmentWater, *rb.depts[0])
}

func TestRebalanceRunsImmediatelyWhenIdle(t *testing.T) {
	rb := &countingRebalancer{}
	s := newTestScheduler(instantBatch{}, rb, nil)

	out := s.TriggerRebalance(context.Background(), nil)
	require.False(t, out.Deferred)
	require.NotNil(t, out.Result)
	require.Len(t, rb.depts, 1)
}

func TestPassesArePersistedAndHistoryTrimmed(t *testing.T) {
	store := db.NewMemoryStore()
	s := newTestScheduler(instantBatch{}, &countingRebalancer{}, store)

	var last SweepResult
	for i := 0; i < 5; i++ {
		last = s.TriggerSweep(context.Background(), 0)
	}
	require.NotEmpty(t, last.RunID)

	run, err := store.GetLatestRun(context.Background(), KindSweep)
	require.NoError(t, err)
	require.Equal(t, last.RunID, run.ID)
	require.Equal(t, db.RunStatusCompleted, run.Status)
	var summary service.BatchSummary
	require.NoError(t, json.Unmarshal(run.Summary, &summary))
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)

	history := s.History()
	require.Len(t, history, 3)
	require.Equal(t, TriggerManual, history[0].Trigger)
}

func TestFailedPassRecordsError(t *testing.T) {
	batch := newBlockingBatch()
	batch.err = errors.New("database unavailable")
	close(batch.release)
	s := newTestScheduler(batch, &countingRebalancer{}, nil)

	res := s.TriggerSweep(context.Background(), 1)
	require.Equal(t, "database unavailable", res.Error)
	require.Equal(t, "database unavailable", s.Status().LastRunError)
	require.Equal(t, db.RunStatusFailed, s.History()[0].Status)
}

func TestBusinessHoursGate(t *testing.T) {
	loc := time.FixedZone("local", 3*3600)
	s := New(Config{BusinessHoursOnly: true, BusinessHoursStart: 8, BusinessHoursEnd: 20, Location: loc}, Deps{Logger: zerolog.Nop()})

	require.True(t, s.WithinBusinessHours(time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)))
	require.False(t, s.WithinBusinessHours(time.Date(2026, 3, 2, 17, 30, 0, 0, time.UTC)))
	require.False(t, s.WithinBusinessHours(time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)))

	open := New(Config{}, Deps{Logger: zerolog.Nop()})
	require.True(t, open.WithinBusinessHours(time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)))
}

func TestTimerSweepSuppressedOutsideHours(t *testing.T) {
	batch := newBlockingBatch()
	night := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	s := New(Config{BusinessHoursOnly: true, BusinessHoursStart: 8, BusinessHoursEnd: 20}, Deps{
		Batch:  batch,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return night },
	})
	s.timerSweep(context.Background())
	require.Zero(t, batch.calls)
}

func TestCheckHealth(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	_, err := store.InsertStaff(ctx, []models.StaffMember{{ID: "s1", Active: true}})
	require.NoError(t, err)
	var complaints []models.Complaint
	for _, id := range []string{"a", "b", "c"} {
		complaints = append(complaints, models.Complaint{ID: id})
	}
	_, err = store.InsertComplaints(ctx, complaints)
	require.NoError(t, err)
	_, err = store.ApplyAssignment(ctx, models.AssignmentWrite{ComplaintID: "a", StaffID: "s1", At: time.Now()})
	require.NoError(t, err)

	s := New(Config{}, Deps{
		Health: store,
		Budget: budget.NewMemoryTracker(budget.Limits{Daily: 1}),
		Logger: zerolog.Nop(),
	})
	report := s.CheckHealth(ctx)
	require.True(t, report.StoreOK)
	require.Equal(t, 2, report.Backlog)
	require.NotNil(t, report.Budget)
	require.Equal(t, report, s.Status().Health)
}

func TestStartRegistersNextRun(t *testing.T) {
	s := New(Config{SweepInterval: time.Hour}, Deps{Batch: instantBatch{}, Logger: zerolog.Nop()})
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop(context.Background()) }()
	require.False(t, s.Status().NextRun.IsZero())
}
