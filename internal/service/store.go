package service

import (
	"context"

	"github.com/civic_complaints/backend/internal/models"
)

type ComplaintStore interface {
	// ListProcessable returns pending, unassigned complaints, oldest first.
	ListProcessable(ctx context.Context, limit int) ([]models.Complaint, error)
	GetComplaint(ctx context.Context, id string) (models.Complaint, error)
	SaveClassification(ctx context.Context, id string, category models.Category, priority models.Priority, cls models.Classification) error
	// ListByStaff returns complaints assigned to staffID in the given statuses,
	// oldest assignment first.
	ListByStaff(ctx context.Context, staffID string, statuses ...models.Status) ([]models.Complaint, error)
	// ApplyAssignment recounts the staff member's live workload, checks capacity
	// and expectations, updates the complaint and appends the audit entry as one
	// atomic unit.
	ApplyAssignment(ctx context.Context, w models.AssignmentWrite) (models.AssignmentApplied, error)
}

// StaffDirectory is the query surface over field workers. ActiveAssignments is
// always computed from live complaint state.
type StaffDirectory interface {
	ListEligibleStaff(ctx context.Context, dept models.Department) ([]models.StaffMember, error)
	// ListStaff returns active staff, optionally restricted to one department.
	ListStaff(ctx context.Context, dept *models.Department) ([]models.StaffMember, error)
	GetStaff(ctx context.Context, id string) (models.StaffMember, error)
	CurrentActiveAssignmentCount(ctx context.Context, staffID string) (int, error)
}

type AuditLog interface {
	AppendAudit(ctx context.Context, e models.AuditEntry) error
	ListAudit(ctx context.Context, complaintID string) ([]models.AuditEntry, error)
}

// Store is the full persistence surface the automation needs.
type Store interface {
	ComplaintStore
	StaffDirectory
	AuditLog
	Ping(ctx context.Context) error
}
