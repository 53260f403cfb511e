package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civic_complaints/backend/internal/models"
)

// MemoryStore is an in-process store with the same semantics as Store. It
// backs tests and the CLI's dry runs.
type MemoryStore struct {
	// Fail, when set, is consulted before each write; a non-nil result is
	// returned instead of performing it. op is the method name.
	Fail func(op, id string) error

	mu         sync.Mutex
	complaints map[string]models.Complaint
	staff      map[string]models.StaffMember
	audit      []models.AuditEntry
	runs       []models.Run
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		complaints: map[string]models.Complaint{},
		staff:      map[string]models.StaffMember{},
	}
}

func (m *MemoryStore) fail(op, id string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op, id)
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) InsertComplaints(_ context.Context, complaints []models.Complaint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range complaints {
		if c.Status == "" {
			c.Status = models.StatusPending
		}
		m.complaints[c.ID] = cloneComplaint(c)
	}
	return int64(len(complaints)), nil
}

func (m *MemoryStore) InsertStaff(_ context.Context, staff []models.StaffMember) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range staff {
		s.ActiveAssignments = 0
		m.staff[s.ID] = s
	}
	return int64(len(staff)), nil
}

// SetStatus moves a complaint outside the automation, as field work would.
func (m *MemoryStore) SetStatus(_ context.Context, id string, status models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return models.ErrNotFound
	}
	c.Status = status
	m.complaints[id] = c
	return nil
}

func (m *MemoryStore) ListProcessable(_ context.Context, limit int) ([]models.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Complaint
	for _, c := range m.complaints {
		if c.EligibleForAutomation() {
			out = append(out, cloneComplaint(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetComplaint(_ context.Context, id string) (models.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return models.Complaint{}, models.ErrNotFound
	}
	return cloneComplaint(c), nil
}

func (m *MemoryStore) SaveClassification(_ context.Context, id string, category models.Category, priority models.Priority, cls models.Classification) error {
	if err := m.fail("SaveClassification", id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return models.ErrNotFound
	}
	c.Category = &category
	c.Priority = &priority
	c.Classification = &cls
	m.complaints[id] = c
	return nil
}

func (m *MemoryStore) ListByStaff(_ context.Context, staffID string, statuses ...models.Status) ([]models.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[models.Status]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	var out []models.Complaint
	for _, c := range m.complaints {
		if c.AssignedStaffID == nil || *c.AssignedStaffID != staffID {
			continue
		}
		if len(want) > 0 && !want[c.Status] {
			continue
		}
		out = append(out, cloneComplaint(c))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := assignedAt(out[i]), assignedAt(out[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) ApplyAssignment(_ context.Context, w models.AssignmentWrite) (models.AssignmentApplied, error) {
	if err := m.fail("ApplyAssignment", w.ComplaintID); err != nil {
		return models.AssignmentApplied{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.complaints[w.ComplaintID]
	if !ok {
		return models.AssignmentApplied{}, fmt.Errorf("complaint %s: %w", w.ComplaintID, models.ErrNotFound)
	}
	staff, ok := m.staff[w.StaffID]
	if !ok {
		return models.AssignmentApplied{}, fmt.Errorf("staff %s: %w", w.StaffID, models.ErrNotFound)
	}
	if err := checkAssignment(c.Status, c.AssignedStaffID, staff.Active, w); err != nil {
		return models.AssignmentApplied{}, err
	}
	if c.AssignedStaffID != nil && *c.AssignedStaffID == w.StaffID {
		return models.AssignmentApplied{PreviousStaffID: c.AssignedStaffID, Status: c.Status}, nil
	}
	if w.EnforceCapacity && staff.MaxWorkload > 0 && m.activeCount(w.StaffID) >= staff.MaxWorkload {
		return models.AssignmentApplied{}, models.ErrAtCapacity
	}

	prev := c.AssignedStaffID
	staffID := w.StaffID
	at := w.At
	c.AssignedStaffID = &staffID
	c.AssignedAt = &at
	c.Status = nextStatus(c.Status)
	m.complaints[c.ID] = c

	staff.LastAssignedAt = &at
	m.staff[staff.ID] = staff

	entry := w.Audit
	entry.FromStaffID = prev
	m.audit = append(m.audit, entry)

	return models.AssignmentApplied{PreviousStaffID: prev, Status: c.Status, Changed: true}, nil
}

func (m *MemoryStore) activeCount(staffID string) int {
	n := 0
	for _, c := range m.complaints {
		if c.AssignedStaffID != nil && *c.AssignedStaffID == staffID && c.Status.IsActive() {
			n++
		}
	}
	return n
}

func (m *MemoryStore) withCount(s models.StaffMember) models.StaffMember {
	s.ActiveAssignments = m.activeCount(s.ID)
	return s
}

func (m *MemoryStore) ListEligibleStaff(_ context.Context, dept models.Department) ([]models.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StaffMember
	for _, s := range m.staff {
		if s.Active && s.Department == dept {
			out = append(out, m.withCount(s))
		}
	}
	sortStaff(out)
	return out, nil
}

func (m *MemoryStore) ListStaff(_ context.Context, dept *models.Department) ([]models.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StaffMember
	for _, s := range m.staff {
		if !s.Active || (dept != nil && s.Department != *dept) {
			continue
		}
		out = append(out, m.withCount(s))
	}
	sortStaff(out)
	return out, nil
}

func (m *MemoryStore) GetStaff(_ context.Context, id string) (models.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.staff[id]
	if !ok {
		return models.StaffMember{}, models.ErrNotFound
	}
	return m.withCount(s), nil
}

func (m *MemoryStore) CurrentActiveAssignmentCount(_ context.Context, staffID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.staff[staffID]; !ok {
		return 0, models.ErrNotFound
	}
	return m.activeCount(staffID), nil
}

func (m *MemoryStore) CountBacklog(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.complaints {
		if c.EligibleForAutomation() {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) AppendAudit(_ context.Context, e models.AuditEntry) error {
	if err := m.fail("AppendAudit", e.ComplaintID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

func (m *MemoryStore) ListAudit(_ context.Context, complaintID string) ([]models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range m.audit {
		if e.ComplaintID == complaintID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateRun(_ context.Context, kind string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.runs = append(m.runs, models.Run{ID: id, Kind: kind, StartedAt: time.Now().UTC(), Status: RunStatusRunning})
	return id, nil
}

func (m *MemoryStore) FinishRun(_ context.Context, runID, status string, summary []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == runID {
			now := time.Now().UTC()
			m.runs[i].Status = status
			m.runs[i].Summary = summary
			m.runs[i].FinishedAt = &now
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *MemoryStore) GetLatestRun(_ context.Context, kind string) (models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.runs) - 1; i >= 0; i-- {
		if kind == "" || m.runs[i].Kind == kind {
			return m.runs[i], nil
		}
	}
	return models.Run{}, models.ErrNotFound
}

func sortStaff(staff []models.StaffMember) {
	sort.Slice(staff, func(i, j int) bool { return staff[i].ID < staff[j].ID })
}

func assignedAt(c models.Complaint) time.Time {
	if c.AssignedAt == nil {
		return time.Time{}
	}
	return *c.AssignedAt
}

func cloneComplaint(c models.Complaint) models.Complaint {
	if c.Images != nil {
		c.Images = append([]string(nil), c.Images...)
	}
	return c
}
