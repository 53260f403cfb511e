// Package scheduler runs sweeps, rebalances and health checks on a single
// serialized lane.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/civic_complaints/backend/internal/budget"
	"github.com/civic_complaints/backend/internal/db"
	"github.com/civic_complaints/backend/internal/lock"
	"github.com/civic_complaints/backend/internal/metrics"
	"github.com/civic_complaints/backend/internal/models"
	"github.com/civic_complaints/backend/internal/service"
)

const (
	KindSweep     = "sweep"
	KindRebalance = "rebalance"

	TriggerTimer    = "timer"
	TriggerManual   = "manual"
	TriggerDeferred = "deferred"

	ReasonAlreadyRunning = "already running"
	ReasonOutsideHours   = "outside business hours"

	defaultLaneKey = "automation-lane"
)

type BatchRunner interface {
	ProcessPendingBatch(ctx context.Context, maxItems int) (service.BatchSummary, error)
}

type Rebalancer interface {
	Rebalance(ctx context.Context, dept *models.Department) (service.RebalanceResult, error)
}

// RunStore persists one row per automation pass.
type RunStore interface {
	CreateRun(ctx context.Context, kind string) (string, error)
	FinishRun(ctx context.Context, runID, status string, summary []byte) error
}

type HealthSource interface {
	Ping(ctx context.Context) error
	CountBacklog(ctx context.Context) (int, error)
	ListStaff(ctx context.Context, dept *models.Department) ([]models.StaffMember, error)
}

type Config struct {
	SweepInterval      time.Duration
	HealthInterval     time.Duration
	RebalanceInterval  time.Duration
	BatchSize          int
	BusinessHoursOnly  bool
	BusinessHoursStart int
	BusinessHoursEnd   int
	Location           *time.Location
	MaxHistory         int
	LaneKey            string
}

type Deps struct {
	Batch      BatchRunner
	Rebalancer Rebalancer
	Runs       RunStore
	Health     HealthSource
	Budget     budget.Tracker
	Locker     lock.Locker
	Tiers      service.TierThresholds
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
	Now        func() time.Time
}

type Status struct {
	IsRunning         bool         `json:"is_running"`
	CurrentPass       string       `json:"current_pass,omitempty"`
	LastRunStart      time.Time    `json:"last_run_start"`
	LastRunFinish     time.Time    `json:"last_run_finish"`
	LastRunError      string       `json:"last_run_error,omitempty"`
	NextRun           time.Time    `json:"next_run"`
	PendingRebalances int          `json:"pending_rebalances"`
	Health            HealthReport `json:"health"`
}

type RunRecord struct {
	Kind      string        `json:"kind"`
	Trigger   string        `json:"trigger"`
	RunID     string        `json:"run_id,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	Details   string        `json:"details"`
}

type HealthReport struct {
	CheckedAt       time.Time     `json:"checked_at"`
	StoreOK         bool          `json:"store_ok"`
	StoreError      string        `json:"store_error,omitempty"`
	Backlog         int           `json:"backlog"`
	OverloadedStaff int           `json:"overloaded_staff"`
	Budget          *budget.Usage `json:"budget,omitempty"`
}

type SweepResult struct {
	Skipped bool                  `json:"skipped"`
	Reason  string                `json:"reason,omitempty"`
	RunID   string                `json:"run_id,omitempty"`
	Summary *service.BatchSummary `json:"summary,omitempty"`
	Error   string                `json:"error,omitempty"`
}

type RebalanceOutcome struct {
	Deferred bool                     `json:"deferred"`
	Skipped  bool                     `json:"skipped"`
	Reason   string                   `json:"reason,omitempty"`
	RunID    string                   `json:"run_id,omitempty"`
	Result   *service.RebalanceResult `json:"result,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

type Scheduler struct {
	cfg  Config
	deps Deps
	cron *cron.Cron

	mu         sync.Mutex
	status     Status
	history    []RunRecord
	deferred   []*models.Department
	sweepEntry cron.EntryID
	started    bool
}

func New(cfg Config, deps Deps) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 50
	}
	if cfg.LaneKey == "" {
		cfg.LaneKey = defaultLaneKey
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Tiers.HeavyMax == 0 {
		deps.Tiers = service.DefaultTierThresholds()
	}
	s := &Scheduler{
		cfg:     cfg,
		deps:    deps,
		history: make([]RunRecord, 0, cfg.MaxHistory),
	}
	s.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLogger{deps.Logger}),
		cron.WithChain(cron.Recover(cronLogger{deps.Logger})),
	)
	return s
}

// Start registers the periodic jobs and starts the cron runner. ctx bounds
// every timer-driven pass.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if s.cfg.SweepInterval > 0 {
		id, err := s.cron.AddFunc(every(s.cfg.SweepInterval), func() { s.timerSweep(ctx) })
		if err != nil {
			return fmt.Errorf("schedule sweep: %w", err)
		}
		s.sweepEntry = id
	}
	if s.cfg.HealthInterval > 0 {
		if _, err := s.cron.AddFunc(every(s.cfg.HealthInterval), func() { s.CheckHealth(ctx) }); err != nil {
			return fmt.Errorf("schedule health check: %w", err)
		}
	}
	if s.cfg.RebalanceInterval > 0 {
		if _, err := s.cron.AddFunc(every(s.cfg.RebalanceInterval), func() { s.timerRebalance(ctx) }); err != nil {
			return fmt.Errorf("schedule rebalance: %w", err)
		}
	}
	s.cron.Start()
	s.started = true

	s.deps.Logger.Info().
		Dur("sweep_interval", s.cfg.SweepInterval).
		Dur("health_interval", s.cfg.HealthInterval).
		Dur("rebalance_interval", s.cfg.RebalanceInterval).
		Bool("business_hours_only", s.cfg.BusinessHoursOnly).
		Msg("scheduler started")
	return nil
}

// Stop halts the timers and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.deps.Logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// TriggerSweep runs one sweep now unless another pass holds the lane.
func (s *Scheduler) TriggerSweep(ctx context.Context, maxItems int) SweepResult {
	return s.sweep(ctx, maxItems, TriggerManual)
}

func (s *Scheduler) timerSweep(ctx context.Context) {
	if !s.WithinBusinessHours(s.deps.Now()) {
		s.deps.Metrics.Pass(KindSweep, "skipped", 0)
		s.deps.Logger.Debug().Str("reason", ReasonOutsideHours).Msg("timer sweep suppressed")
		return
	}
	s.sweep(ctx, s.cfg.BatchSize, TriggerTimer)
}

func (s *Scheduler) sweep(ctx context.Context, maxItems int, trigger string) SweepResult {
	release, ok := s.acquire(ctx)
	if !ok {
		s.deps.Metrics.Pass(KindSweep, "skipped", 0)
		s.deps.Logger.Info().Str("trigger", trigger).Msg("sweep skipped, lane already running")
		return SweepResult{Skipped: true, Reason: ReasonAlreadyRunning}
	}
	defer s.finishLane(ctx, release)

	var result SweepResult
	s.runPass(ctx, KindSweep, trigger, func(pctx context.Context) (any, string, error) {
		summary, err := s.deps.Batch.ProcessPendingBatch(pctx, maxItems)
		result.Summary = &summary
		details := fmt.Sprintf("processed=%d succeeded=%d failed=%d no_staff=%d used_ai=%d",
			summary.Processed, summary.Succeeded, summary.Failed, summary.NoStaff, summary.UsedAI)
		return summary, details, err
	}, &result.RunID, &result.Error)
	return result
}

// TriggerRebalance runs a rebalance now, or defers it until the running pass
// completes.
func (s *Scheduler) TriggerRebalance(ctx context.Context, dept *models.Department) RebalanceOutcome {
	release, ok := s.acquire(ctx)
	if !ok {
		s.mu.Lock()
		s.deferred = append(s.deferred, dept)
		s.status.PendingRebalances = len(s.deferred)
		s.mu.Unlock()
		s.deps.Logger.Info().Msg("rebalance deferred until the running pass completes")
		go s.drainIfIdle(context.WithoutCancel(ctx))
		return RebalanceOutcome{Deferred: true, Reason: ReasonAlreadyRunning}
	}
	defer s.finishLane(ctx, release)
	return s.rebalance(ctx, dept, TriggerManual)
}

func (s *Scheduler) timerRebalance(ctx context.Context) {
	release, ok := s.acquire(ctx)
	if !ok {
		s.deps.Metrics.Pass(KindRebalance, "skipped", 0)
		return
	}
	defer s.finishLane(ctx, release)
	s.rebalance(ctx, nil, TriggerTimer)
}

// rebalance must run while holding the lane.
func (s *Scheduler) rebalance(ctx context.Context, dept *models.Department, trigger string) RebalanceOutcome {
	var out RebalanceOutcome
	s.runPass(ctx, KindRebalance, trigger, func(pctx context.Context) (any, string, error) {
		res, err := s.deps.Rebalancer.Rebalance(pctx, dept)
		out.Result = &res
		return res, fmt.Sprintf("reassigned=%d errors=%d", res.ReassignedCount, len(res.Errors)), err
	}, &out.RunID, &out.Error)
	return out
}

func (s *Scheduler) acquire(ctx context.Context) (func(), bool) {
	release, ok, err := s.deps.Locker.TryAcquire(ctx, s.cfg.LaneKey)
	if err != nil {
		s.deps.Logger.Error().Err(err).Msg("failed to acquire automation lane")
		return nil, false
	}
	return release, ok
}

// finishLane runs rebalances that were deferred while the lane was held, then
// releases it.
func (s *Scheduler) finishLane(ctx context.Context, release func()) {
	ctx = context.WithoutCancel(ctx)
	for {
		for {
			dept, ok := s.popDeferred()
			if !ok {
				break
			}
			s.rebalance(ctx, dept, TriggerDeferred)
		}
		release()
		if !s.hasDeferred() {
			return
		}
		next, ok := s.acquire(ctx)
		if !ok {
			return
		}
		release = next
	}
}

func (s *Scheduler) drainIfIdle(ctx context.Context) {
	if !s.hasDeferred() {
		return
	}
	release, ok := s.acquire(ctx)
	if !ok {
		return
	}
	s.finishLane(ctx, release)
}

func (s *Scheduler) popDeferred() (*models.Department, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.deferred) == 0 {
		return nil, false
	}
	dept := s.deferred[0]
	s.deferred = s.deferred[1:]
	s.status.PendingRebalances = len(s.deferred)
	return dept, true
}

func (s *Scheduler) hasDeferred() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deferred) > 0
}

// runPass wraps one lane pass with status, history, run persistence and metrics.
func (s *Scheduler) runPass(ctx context.Context, kind, trigger string, fn func(context.Context) (any, string, error), runID *string, errOut *string) {
	start := s.deps.Now()
	s.mu.Lock()
	s.status.IsRunning = true
	s.status.CurrentPass = kind
	s.status.LastRunStart = start
	s.mu.Unlock()

	if s.deps.Runs != nil {
		id, err := s.deps.Runs.CreateRun(ctx, kind)
		if err != nil {
			s.deps.Logger.Warn().Err(err).Str("kind", kind).Msg("failed to record automation run")
		}
		*runID = id
	}

	summary, details, err := fn(ctx)
	end := s.deps.Now()

	status := db.RunStatusCompleted
	result := "ok"
	if err != nil {
		status = db.RunStatusFailed
		result = "error"
		*errOut = err.Error()
		s.deps.Logger.Error().Err(err).Str("kind", kind).Str("trigger", trigger).Msg("automation pass failed")
	}

	if s.deps.Runs != nil && *runID != "" {
		payload, _ := json.Marshal(summary)
		if ferr := s.deps.Runs.FinishRun(context.WithoutCancel(ctx), *runID, status, payload); ferr != nil {
			s.deps.Logger.Warn().Err(ferr).Str("run_id", *runID).Msg("failed to finish automation run")
		}
	}
	s.deps.Metrics.Pass(kind, result, end.Sub(start))

	s.mu.Lock()
	s.status.IsRunning = false
	s.status.CurrentPass = ""
	s.status.LastRunFinish = end
	s.status.LastRunError = *errOut
	s.history = append(s.history, RunRecord{
		Kind:      kind,
		Trigger:   trigger,
		RunID:     *runID,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Status:    status,
		Details:   details,
	})
	if len(s.history) > s.cfg.MaxHistory {
		s.history = s.history[len(s.history)-s.cfg.MaxHistory:]
	}
	s.mu.Unlock()

	s.deps.Logger.Info().
		Str("kind", kind).
		Str("trigger", trigger).
		Str("status", status).
		Dur("elapsed", end.Sub(start)).
		Str("details", details).
		Msg("automation pass finished")
}

// WithinBusinessHours reports whether timer-driven sweeps may run at t.
func (s *Scheduler) WithinBusinessHours(t time.Time) bool {
	if !s.cfg.BusinessHoursOnly {
		return true
	}
	hour := t.In(s.cfg.Location).Hour()
	start, end := s.cfg.BusinessHoursStart, s.cfg.BusinessHoursEnd
	if start <= end {
		return hour >= start && hour < end
	}
	// window wraps midnight
	return hour >= start || hour < end
}

// CheckHealth pings the store, counts the backlog and overloaded staff and
// snapshots the AI budget.
func (s *Scheduler) CheckHealth(ctx context.Context) HealthReport {
	report := HealthReport{CheckedAt: s.deps.Now()}
	if h := s.deps.Health; h != nil {
		if err := h.Ping(ctx); err != nil {
			report.StoreError = err.Error()
		} else {
			report.StoreOK = true
			if n, err := h.CountBacklog(ctx); err == nil {
				report.Backlog = n
			}
			if staff, err := h.ListStaff(ctx, nil); err == nil {
				for _, m := range staff {
					if s.deps.Tiers.TierFor(m.ActiveAssignments) == models.TierOverloaded {
						report.OverloadedStaff++
					}
				}
			}
		}
	}
	if s.deps.Budget != nil {
		if usage, err := s.deps.Budget.Snapshot(ctx); err == nil {
			report.Budget = &usage
		}
	}

	s.mu.Lock()
	s.status.Health = report
	s.mu.Unlock()

	ev := s.deps.Logger.Info()
	if !report.StoreOK {
		ev = s.deps.Logger.Warn()
	}
	ev.Bool("store_ok", report.StoreOK).
		Int("backlog", report.Backlog).
		Int("overloaded_staff", report.OverloadedStaff).
		Msg("health check")
	return report
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if s.started && s.sweepEntry != 0 {
		st.NextRun = s.cron.Entry(s.sweepEntry).Next
	}
	return st
}

func (s *Scheduler) History() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunRecord, len(s.history))
	copy(out, s.history)
	return out
}

// cronLogger adapts zerolog to the cron.Logger interface.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
