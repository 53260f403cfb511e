package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/civic_complaints/backend/internal/lock"
	"github.com/civic_complaints/backend/internal/metrics"
	"github.com/civic_complaints/backend/internal/models"
	"github.com/civic_complaints/backend/internal/notify"
)

var ErrInvalidRequest = errors.New("invalid assignment request")

func newAuditID() string { return uuid.NewString() }

type AssignRequest struct {
	ComplaintID string
	StaffID     string
	// Operator is nil for automation.
	Operator        *string
	Action          models.AuditAction
	Reason          string
	EnforceCapacity bool
	// ExpectStaffID, when ExpectStaff is set, pins the staff reference the
	// caller observed. Otherwise the executor pins whatever it reads first.
	ExpectStaff   bool
	ExpectStaffID *string
	ExpectStatus  *models.Status
	Details       map[string]any
}

// AssignmentExecutor commits assignments. Writes for the same staff member are
// serialized in-process and the store recounts live workload inside its
// transaction.
type AssignmentExecutor struct {
	Store         ComplaintStore
	Notifier      notify.Notifier
	NotifyTimeout time.Duration
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
	Now           func() time.Time

	locks lock.KeyedMutex
}

func (e *AssignmentExecutor) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *AssignmentExecutor) Assign(ctx context.Context, req AssignRequest) (models.AssignmentDecision, error) {
	if req.ComplaintID == "" || req.StaffID == "" {
		return models.AssignmentDecision{}, ErrInvalidRequest
	}

	current, err := e.Store.GetComplaint(ctx, req.ComplaintID)
	if err != nil {
		return models.AssignmentDecision{}, err
	}
	if current.Status.IsTerminal() {
		return models.AssignmentDecision{}, fmt.Errorf("%w: status %s", models.ErrInvalidTransition, current.Status)
	}

	actor := models.ActorSystem
	if req.Operator != nil && *req.Operator != "" {
		actor = *req.Operator
	}
	action := req.Action
	if action == "" {
		action = models.ActionAutoAssign
		if req.Operator != nil {
			action = models.ActionManualAssign
		}
	}
	if current.AssignedStaffID != nil && *current.AssignedStaffID != req.StaffID && action != models.ActionRebalance {
		action = models.ActionReassign
	}

	expectStaffID := current.AssignedStaffID
	if req.ExpectStaff {
		expectStaffID = req.ExpectStaffID
	}

	at := e.now()
	staffID := req.StaffID
	entry := models.AuditEntry{
		ID:          newAuditID(),
		Actor:       actor,
		Action:      action,
		ComplaintID: req.ComplaintID,
		FromStaffID: expectStaffID,
		ToStaffID:   &staffID,
		Reason:      req.Reason,
		Details:     req.Details,
		CreatedAt:   at,
	}

	unlock := e.locks.Lock(req.StaffID)
	applied, err := e.Store.ApplyAssignment(ctx, models.AssignmentWrite{
		ComplaintID:     req.ComplaintID,
		StaffID:         req.StaffID,
		EnforceCapacity: req.EnforceCapacity,
		ExpectStaff:     true,
		ExpectStaffID:   expectStaffID,
		ExpectStatus:    req.ExpectStatus,
		At:              at,
		Audit:           entry,
	})
	unlock()
	if err != nil {
		return models.AssignmentDecision{}, err
	}

	decision := models.AssignmentDecision{
		ComplaintID:     req.ComplaintID,
		StaffID:         req.StaffID,
		PreviousStaffID: applied.PreviousStaffID,
		Status:          applied.Status,
		Action:          action,
		Actor:           actor,
		Changed:         applied.Changed,
		AssignedAt:      at,
	}
	if !applied.Changed {
		return decision, nil
	}
	decision.AuditID = entry.ID
	e.Metrics.Assignment(string(action))

	e.notify(ctx, &decision, req.Reason)
	return decision, nil
}

// notify runs after commit. A failed delivery is recorded on the decision and
// never undoes the assignment.
func (e *AssignmentExecutor) notify(ctx context.Context, d *models.AssignmentDecision, reason string) {
	if e.Notifier == nil {
		return
	}
	timeout := e.NotifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err := e.Notifier.NotifyAssignment(nctx, notify.Assignment{
		ComplaintID:     d.ComplaintID,
		StaffID:         d.StaffID,
		PreviousStaffID: d.PreviousStaffID,
		Action:          string(d.Action),
		Reason:          reason,
		AssignedAt:      d.AssignedAt,
	})
	if err != nil {
		d.NotifyError = err.Error()
		e.Logger.Warn().Err(err).
			Str("complaint_id", d.ComplaintID).
			Str("staff_id", d.StaffID).
			Msg("assignment notification failed")
		return
	}
	d.Notified = true
}
