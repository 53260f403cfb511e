package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/civic_complaints/backend/internal/metrics"
	"github.com/civic_complaints/backend/internal/models"
)

const (
	OutcomeAssigned = "assigned"
	OutcomeNoStaff  = "no_staff"
	OutcomeFailed   = "failed"
)

// ProcessingService drives pending complaints through classification,
// scoring, selection and assignment.
type ProcessingService struct {
	Store      Store
	Classifier *ContentClassifier
	Scorer     PriorityScorer
	Selector   AssignmentSelector
	Executor   *AssignmentExecutor
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
	Now        func() time.Time

	BatchSize int
	Workers   int
	// AIMaxItems caps how many complaints per batch may use inference; 0 means
	// no cap.
	AIMaxItems int
}

type BatchItem struct {
	ComplaintID  string            `json:"complaint_id"`
	Outcome      string            `json:"outcome"`
	Category     models.Category   `json:"category,omitempty"`
	Priority     models.Priority   `json:"priority,omitempty"`
	Department   models.Department `json:"department,omitempty"`
	StaffID      string            `json:"staff_id,omitempty"`
	Confidence   float64           `json:"confidence,omitempty"`
	Source       string            `json:"source,omitempty"`
	UsedAI       bool              `json:"used_ai"`
	Reclassified bool              `json:"reclassified"`
	Notified     bool              `json:"notified"`
	Error        string            `json:"error,omitempty"`
}

type BatchSummary struct {
	Processed  int         `json:"processed"`
	Succeeded  int         `json:"succeeded"`
	// Failed counts every unassigned item; NoStaff is the subset with no
	// eligible staff.
	Failed     int         `json:"failed"`
	NoStaff    int         `json:"no_staff"`
	UsedAI     int         `json:"used_ai"`
	Errors     []string    `json:"errors"`
	Items      []BatchItem `json:"items"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

func (s *ProcessingService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ProcessPendingBatch handles up to maxItems pending complaints, oldest first.
// Item failures are recorded and never abort the batch; only a failed batch
// query returns an error.
func (s *ProcessingService) ProcessPendingBatch(ctx context.Context, maxItems int) (BatchSummary, error) {
	if maxItems <= 0 {
		maxItems = s.BatchSize
	}
	if maxItems <= 0 {
		maxItems = 50
	}
	summary := BatchSummary{StartedAt: s.now(), Errors: []string{}, Items: []BatchItem{}}

	complaints, err := s.Store.ListProcessable(ctx, maxItems)
	if err != nil {
		summary.FinishedAt = s.now()
		return summary, fmt.Errorf("list processable complaints: %w", err)
	}

	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}
	items := make([]BatchItem, len(complaints))
	var aiUsed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range complaints {
		i, c := i, c
		g.Go(func() error {
			allowAI := true
			if s.AIMaxItems > 0 && c.NeedsClassification() {
				allowAI = aiUsed.Add(1) <= int64(s.AIMaxItems)
			}
			items[i] = s.processOne(gctx, c, allowAI)
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range items {
		summary.Processed++
		switch item.Outcome {
		case OutcomeAssigned:
			summary.Succeeded++
		case OutcomeNoStaff:
			summary.NoStaff++
			summary.Failed++
		default:
			summary.Failed++
		}
		if item.UsedAI {
			summary.UsedAI++
		}
		if item.Error != "" {
			summary.Errors = append(summary.Errors, item.ComplaintID+": "+item.Error)
		}
		s.Metrics.BatchItem(item.Outcome)
	}
	summary.Items = items
	summary.FinishedAt = s.now()

	s.Logger.Info().
		Int("processed", summary.Processed).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("no_staff", summary.NoStaff).
		Int("used_ai", summary.UsedAI).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("pending batch processed")
	return summary, nil
}

func (s *ProcessingService) processOne(ctx context.Context, c models.Complaint, allowAI bool) BatchItem {
	item := BatchItem{ComplaintID: c.ID}

	var category models.Category
	var priority models.Priority
	if c.NeedsClassification() {
		res := s.Classifier.ClassifyWith(ctx, ClassifyInput{
			Title:       c.Title,
			Description: c.Description,
			Images:      c.Images,
			AllowAI:     allowAI,
		})
		category = res.Category
		priority = s.Scorer.Score(c.Title+" "+c.Description, category)
		item.Reclassified = true
		item.UsedAI = res.UsedAI
		item.Confidence = res.Confidence
		item.Source = res.Source

		cls := models.Classification{
			Confidence:   res.Confidence,
			Reasoning:    res.Reasoning,
			Source:       res.Source,
			UsedAI:       res.UsedAI,
			ModelVersion: res.ModelVersion,
			ClassifiedAt: s.now(),
		}
		if err := s.Store.SaveClassification(ctx, c.ID, category, priority, cls); err != nil {
			return s.fail(ctx, item, "save classification", err)
		}
	} else {
		category = *c.Category
		priority = *c.Priority
		item.Confidence = c.Classification.Confidence
		item.Source = c.Classification.Source
	}
	item.Category = category
	item.Priority = priority

	dept := s.Selector.Department(category)
	item.Department = dept
	pool, err := s.Store.ListEligibleStaff(ctx, dept)
	if err != nil {
		return s.fail(ctx, item, "list eligible staff", err)
	}

	pending := models.StatusPending
	excluded := map[string]bool{}
	for _, m := range pool {
		if m.AtCapacity() {
			excluded[m.ID] = true
		}
	}
	for {
		sel, ok := s.Selector.SelectBestStaff(category, priority, excludeStaff(pool, excluded))
		if !ok {
			item.Outcome = OutcomeNoStaff
			item.Error = sel.Reason
			s.recordFailure(ctx, c.ID, sel.Reason, map[string]any{"department": string(dept), "excluded": len(excluded)})
			return item
		}

		decision, err := s.Executor.Assign(ctx, AssignRequest{
			ComplaintID:     c.ID,
			StaffID:         sel.Staff.ID,
			Action:          models.ActionAutoAssign,
			Reason:          sel.Reason,
			EnforceCapacity: true,
			ExpectStaff:     true,
			ExpectStatus:    &pending,
			Details: map[string]any{
				"category":   string(category),
				"priority":   string(priority),
				"department": string(dept),
				"score":      sel.Score,
			},
		})
		if errors.Is(err, models.ErrAtCapacity) {
			excluded[sel.Staff.ID] = true
			continue
		}
		if err != nil {
			return s.fail(ctx, item, "assign", err)
		}
		item.Outcome = OutcomeAssigned
		item.StaffID = decision.StaffID
		item.Notified = decision.Notified
		return item
	}
}

func (s *ProcessingService) fail(ctx context.Context, item BatchItem, stage string, err error) BatchItem {
	item.Outcome = OutcomeFailed
	item.Error = fmt.Sprintf("%s: %v", stage, err)
	s.Logger.Warn().Err(err).Str("complaint_id", item.ComplaintID).Str("stage", stage).Msg("complaint automation failed")
	s.recordFailure(ctx, item.ComplaintID, item.Error, map[string]any{"stage": stage})
	return item
}

// recordFailure leaves the complaint pending for the next sweep and appends an
// audit entry explaining why. A repeat of the latest entry is not appended
// again, so a complaint stuck on the same cause keeps one record.
func (s *ProcessingService) recordFailure(ctx context.Context, complaintID, reason string, details map[string]any) {
	if prev, err := s.Store.ListAudit(ctx, complaintID); err == nil && len(prev) > 0 {
		last := prev[len(prev)-1]
		if last.Action == models.ActionAutoAssignFailed && last.Reason == reason {
			s.Logger.Debug().Str("complaint_id", complaintID).Str("reason", reason).Msg("failure unchanged since last sweep")
			return
		}
	}
	entry := models.AuditEntry{
		ID:          newAuditID(),
		Actor:       models.ActorSystem,
		Action:      models.ActionAutoAssignFailed,
		ComplaintID: complaintID,
		Reason:      reason,
		Details:     details,
		CreatedAt:   s.now(),
	}
	if err := s.Store.AppendAudit(ctx, entry); err != nil {
		s.Logger.Error().Err(err).Str("complaint_id", complaintID).Msg("failed to append audit entry")
	}
}
