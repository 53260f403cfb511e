package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic_complaints/backend/internal/models"
)

const (
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
	RunStatusSkipped   = "SKIPPED"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) InsertStaff(ctx context.Context, staff []models.StaffMember) (int64, error) {
	rows := make([][]any, 0, len(staff))
	for _, m := range staff {
		registered := m.RegisteredAt
		if registered.IsZero() {
			registered = time.Now().UTC()
		}
		rows = append(rows, []any{m.ID, m.Name, string(m.Department), m.Active, m.Available, m.ExperienceYears, m.MaxWorkload, m.LastAssignedAt, registered})
	}
	return s.Pool.CopyFrom(ctx, pgx.Identifier{"staff"},
		[]string{"id", "name", "department", "active", "available", "experience_years", "max_workload", "last_assigned_at", "registered_at"},
		pgx.CopyFromRows(rows))
}

func (s *Store) InsertComplaints(ctx context.Context, complaints []models.Complaint) (int64, error) {
	rows := make([][]any, 0, len(complaints))
	for _, c := range complaints {
		status := c.Status
		if status == "" {
			status = models.StatusPending
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		images := c.Images
		if images == nil {
			images = []string{}
		}
		rows = append(rows, []any{c.ID, c.Title, c.Description, images, string(status), created})
	}
	return s.Pool.CopyFrom(ctx, pgx.Identifier{"complaints"},
		[]string{"id", "title", "description", "images", "status", "created_at"},
		pgx.CopyFromRows(rows))
}

const complaintColumns = `id, title, description, images, category, priority, status, assigned_staff_id, assigned_at, classification, created_at`

func scanComplaint(row pgx.Row) (models.Complaint, error) {
	var (
		c        models.Complaint
		category *string
		priority *string
		status   string
		cls      []byte
	)
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Images, &category, &priority, &status, &c.AssignedStaffID, &c.AssignedAt, &cls, &c.CreatedAt); err != nil {
		return models.Complaint{}, err
	}
	c.Status = models.Status(status)
	if category != nil {
		cat, _ := models.ParseCategory(*category)
		c.Category = &cat
	}
	if priority != nil {
		p, _ := models.ParsePriority(*priority)
		c.Priority = &p
	}
	if len(cls) > 0 {
		var parsed models.Classification
		if err := json.Unmarshal(cls, &parsed); err != nil {
			return models.Complaint{}, fmt.Errorf("decode classification for %s: %w", c.ID, err)
		}
		c.Classification = &parsed
	}
	return c, nil
}

func collectComplaints(rows pgx.Rows) ([]models.Complaint, error) {
	defer rows.Close()
	var out []models.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListProcessable(ctx context.Context, limit int) ([]models.Complaint, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+complaintColumns+`
		FROM complaints
		WHERE status = 'pending' AND assigned_staff_id IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return collectComplaints(rows)
}

func (s *Store) GetComplaint(ctx context.Context, id string) (models.Complaint, error) {
	c, err := scanComplaint(s.Pool.QueryRow(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Complaint{}, models.ErrNotFound
	}
	return c, err
}

func (s *Store) SaveClassification(ctx context.Context, id string, category models.Category, priority models.Priority, cls models.Classification) error {
	payload, err := json.Marshal(cls)
	if err != nil {
		return err
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE complaints SET category = $1, priority = $2, classification = $3
		WHERE id = $4
	`, string(category), string(priority), payload, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) ListByStaff(ctx context.Context, staffID string, statuses ...models.Status) ([]models.Complaint, error) {
	wanted := make([]string, 0, len(statuses))
	for _, st := range statuses {
		wanted = append(wanted, string(st))
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+complaintColumns+`
		FROM complaints
		WHERE assigned_staff_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY assigned_at ASC NULLS FIRST, id ASC
	`, staffID, wanted)
	if err != nil {
		return nil, err
	}
	return collectComplaints(rows)
}

// ApplyAssignment locks the complaint and staff rows, recounts the staff
// member's live workload and commits the assignment together with its audit
// entry.
func (s *Store) ApplyAssignment(ctx context.Context, w models.AssignmentWrite) (models.AssignmentApplied, error) {
	var applied models.AssignmentApplied
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var (
			status  string
			current *string
		)
		err := tx.QueryRow(ctx, `SELECT status, assigned_staff_id FROM complaints WHERE id = $1 FOR UPDATE`, w.ComplaintID).Scan(&status, &current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("complaint %s: %w", w.ComplaintID, models.ErrNotFound)
		}
		if err != nil {
			return err
		}

		var (
			active      bool
			maxWorkload int
		)
		err = tx.QueryRow(ctx, `SELECT active, max_workload FROM staff WHERE id = $1 FOR UPDATE`, w.StaffID).Scan(&active, &maxWorkload)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("staff %s: %w", w.StaffID, models.ErrNotFound)
		}
		if err != nil {
			return err
		}

		cur := models.Status(status)
		if err := checkAssignment(cur, current, active, w); err != nil {
			return err
		}
		if current != nil && *current == w.StaffID {
			applied = models.AssignmentApplied{PreviousStaffID: current, Status: cur}
			return nil
		}

		if w.EnforceCapacity && maxWorkload > 0 {
			var count int
			if err := tx.QueryRow(ctx, activeCountQuery, w.StaffID).Scan(&count); err != nil {
				return err
			}
			if count >= maxWorkload {
				return models.ErrAtCapacity
			}
		}

		next := nextStatus(cur)
		if _, err := tx.Exec(ctx, `
			UPDATE complaints SET assigned_staff_id = $1, assigned_at = $2, status = $3
			WHERE id = $4
		`, w.StaffID, w.At, string(next), w.ComplaintID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE staff SET last_assigned_at = $1 WHERE id = $2`, w.At, w.StaffID); err != nil {
			return err
		}

		entry := w.Audit
		entry.FromStaffID = current
		if err := insertAudit(ctx, tx, entry); err != nil {
			return err
		}
		applied = models.AssignmentApplied{PreviousStaffID: current, Status: next, Changed: true}
		return nil
	})
	return applied, err
}

const activeCountQuery = `SELECT COUNT(*) FROM complaints WHERE assigned_staff_id = $1 AND status IN ('assigned', 'in_progress')`

const staffSelect = `
	SELECT s.id, s.name, s.department, s.active, s.available, s.experience_years, s.max_workload,
		s.last_assigned_at, s.registered_at,
		(SELECT COUNT(*) FROM complaints c WHERE c.assigned_staff_id = s.id AND c.status IN ('assigned', 'in_progress'))
	FROM staff s`

func scanStaff(row pgx.Row) (models.StaffMember, error) {
	var (
		m    models.StaffMember
		dept string
	)
	if err := row.Scan(&m.ID, &m.Name, &dept, &m.Active, &m.Available, &m.ExperienceYears, &m.MaxWorkload, &m.LastAssignedAt, &m.RegisteredAt, &m.ActiveAssignments); err != nil {
		return models.StaffMember{}, err
	}
	m.Department, _ = models.ParseDepartment(dept)
	return m, nil
}

func (s *Store) queryStaff(ctx context.Context, where string, args ...any) ([]models.StaffMember, error) {
	rows, err := s.Pool.Query(ctx, staffSelect+" "+where+" ORDER BY s.id ASC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.StaffMember
	for rows.Next() {
		m, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ListEligibleStaff(ctx context.Context, dept models.Department) ([]models.StaffMember, error) {
	return s.queryStaff(ctx, "WHERE s.active AND s.department = $1", string(dept))
}

func (s *Store) ListStaff(ctx context.Context, dept *models.Department) ([]models.StaffMember, error) {
	if dept == nil {
		return s.queryStaff(ctx, "WHERE s.active")
	}
	return s.queryStaff(ctx, "WHERE s.active AND s.department = $1", string(*dept))
}

func (s *Store) GetStaff(ctx context.Context, id string) (models.StaffMember, error) {
	m, err := scanStaff(s.Pool.QueryRow(ctx, staffSelect+" WHERE s.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.StaffMember{}, models.ErrNotFound
	}
	return m, err
}

func (s *Store) CurrentActiveAssignmentCount(ctx context.Context, staffID string) (int, error) {
	var count int
	err := s.Pool.QueryRow(ctx, activeCountQuery, staffID).Scan(&count)
	return count, err
}

func (s *Store) CountBacklog(ctx context.Context) (int, error) {
	var count int
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM complaints WHERE status = 'pending' AND assigned_staff_id IS NULL`).Scan(&count)
	return count, err
}

func insertAudit(ctx context.Context, tx pgx.Tx, e models.AuditEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO audit_entries (id, actor, action, complaint_id, from_staff_id, to_staff_id, reason, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.Actor, string(e.Action), e.ComplaintID, e.FromStaffID, e.ToStaffID, e.Reason, details, e.CreatedAt)
	return err
}

func (s *Store) AppendAudit(ctx context.Context, e models.AuditEntry) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		return insertAudit(ctx, tx, e)
	})
}

func (s *Store) ListAudit(ctx context.Context, complaintID string) ([]models.AuditEntry, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, actor, action, complaint_id, from_staff_id, to_staff_id, reason, details, created_at
		FROM audit_entries WHERE complaint_id = $1
		ORDER BY created_at ASC, id ASC
	`, complaintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			e       models.AuditEntry
			action  string
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.Actor, &action, &e.ComplaintID, &e.FromStaffID, &e.ToStaffID, &e.Reason, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = models.AuditAction(action)
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateRun(ctx context.Context, kind string) (string, error) {
	id := uuid.NewString()
	_, err := s.Pool.Exec(ctx, `INSERT INTO runs (id, kind, status, started_at) VALUES ($1, $2, $3, NOW())`, id, kind, RunStatusRunning)
	return id, err
}

func (s *Store) FinishRun(ctx context.Context, runID string, status string, summary []byte) error {
	_, err := s.Pool.Exec(ctx, `UPDATE runs SET status = $1, summary = $2, finished_at = NOW() WHERE id = $3`, status, summary, runID)
	return err
}

// GetLatestRun returns the newest run of kind, or of any kind when kind is empty.
func (s *Store) GetLatestRun(ctx context.Context, kind string) (models.Run, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, kind, started_at, finished_at, status, summary FROM runs
		WHERE $1 = '' OR kind = $1
		ORDER BY started_at DESC LIMIT 1
	`, kind)
	var r models.Run
	if err := row.Scan(&r.ID, &r.Kind, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Summary); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Run{}, models.ErrNotFound
		}
		return models.Run{}, err
	}
	return r, nil
}

// checkAssignment validates a write against the locked complaint state.
func checkAssignment(status models.Status, current *string, staffActive bool, w models.AssignmentWrite) error {
	if status.IsTerminal() {
		return fmt.Errorf("%w: status %s", models.ErrInvalidTransition, status)
	}
	if w.ExpectStaff && !sameStaff(current, w.ExpectStaffID) {
		return fmt.Errorf("%w: staff reference changed", models.ErrConflict)
	}
	if w.ExpectStatus != nil && status != *w.ExpectStatus {
		return fmt.Errorf("%w: status is %s, expected %s", models.ErrConflict, status, *w.ExpectStatus)
	}
	if !staffActive {
		return fmt.Errorf("%w: staff %s is inactive", models.ErrConflict, w.StaffID)
	}
	return nil
}

// nextStatus keeps started work in progress and marks everything else assigned.
func nextStatus(current models.Status) models.Status {
	if current == models.StatusInProgress {
		return models.StatusInProgress
	}
	return models.StatusAssigned
}

func sameStaff(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
