package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/civic_complaints/backend/internal/metrics"
	"github.com/civic_complaints/backend/internal/models"
)

const rebalanceReason = "workload balancing"

type TierThresholds struct {
	LightMax    int
	ModerateMax int
	HeavyMax    int
}

func DefaultTierThresholds() TierThresholds {
	return TierThresholds{LightMax: 3, ModerateMax: 6, HeavyMax: 10}
}

func (t TierThresholds) TierFor(active int) models.WorkloadTier {
	switch {
	case active <= 0:
		return models.TierAvailable
	case active <= t.LightMax:
		return models.TierLight
	case active <= t.ModerateMax:
		return models.TierModerate
	case active <= t.HeavyMax:
		return models.TierHeavy
	default:
		return models.TierOverloaded
	}
}

type RebalanceResult struct {
	ReassignedCount int                         `json:"reassigned_count"`
	Actions         []models.ReassignmentRecord `json:"actions"`
	Errors          []string                    `json:"errors"`
	Departments     []models.Department         `json:"departments"`
}

// WorkloadRebalancer moves not-yet-started work from heavily loaded staff to
// lightly loaded colleagues in the same department.
type WorkloadRebalancer struct {
	Directory        StaffDirectory
	Complaints       ComplaintStore
	Executor         *AssignmentExecutor
	Tiers            TierThresholds
	MaxMovesPerStaff int
	Metrics          *metrics.Metrics
	Logger           zerolog.Logger
	Now              func() time.Time
}

// Rebalance runs over one department, or every department when dept is nil.
func (r *WorkloadRebalancer) Rebalance(ctx context.Context, dept *models.Department) (RebalanceResult, error) {
	result := RebalanceResult{Actions: []models.ReassignmentRecord{}, Errors: []string{}}

	staff, err := r.Directory.ListStaff(ctx, dept)
	if err != nil {
		return result, fmt.Errorf("list staff: %w", err)
	}
	byDept := map[models.Department][]models.StaffMember{}
	for _, m := range staff {
		byDept[m.Department] = append(byDept[m.Department], m)
	}
	depts := make([]models.Department, 0, len(byDept))
	for d := range byDept {
		depts = append(depts, d)
	}
	sort.Slice(depts, func(i, j int) bool { return depts[i] < depts[j] })

	for _, d := range depts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Departments = append(result.Departments, d)
		r.rebalanceDepartment(ctx, d, byDept[d], &result)
	}
	result.ReassignedCount = len(result.Actions)

	r.Logger.Info().
		Int("reassigned", result.ReassignedCount).
		Int("errors", len(result.Errors)).
		Int("departments", len(result.Departments)).
		Msg("workload rebalance finished")
	return result, nil
}

func (r *WorkloadRebalancer) tiers() TierThresholds {
	if r.Tiers.HeavyMax == 0 {
		return DefaultTierThresholds()
	}
	return r.Tiers
}

func (r *WorkloadRebalancer) movesPerStaff() int {
	if r.MaxMovesPerStaff <= 0 {
		return 2
	}
	return r.MaxMovesPerStaff
}

func (r *WorkloadRebalancer) rebalanceDepartment(ctx context.Context, dept models.Department, staff []models.StaffMember, result *RebalanceResult) {
	tiers := r.tiers()

	var sources, targets []*models.StaffMember
	for i := range staff {
		m := &staff[i]
		if !m.Active {
			continue
		}
		switch tiers.TierFor(m.ActiveAssignments) {
		case models.TierHeavy, models.TierOverloaded:
			sources = append(sources, m)
		case models.TierAvailable, models.TierLight:
			if m.Available && !m.AtCapacity() {
				targets = append(targets, m)
			}
		}
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].ActiveAssignments != sources[j].ActiveAssignments {
			return sources[i].ActiveAssignments > sources[j].ActiveAssignments
		}
		return sources[i].ID < sources[j].ID
	})
	sortTargets(targets)

	assigned := models.StatusAssigned
	for _, src := range sources {
		if len(targets) == 0 {
			return
		}
		complaints, err := r.Complaints.ListByStaff(ctx, src.ID, models.StatusAssigned)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: list work: %v", src.ID, err))
			continue
		}
		if len(complaints) > r.movesPerStaff() {
			complaints = complaints[:r.movesPerStaff()]
		}

		for _, c := range complaints {
			// A target only takes work it can absorb without leaving the light tier.
			for len(targets) > 0 && !staysLight(tiers, targets[0].ActiveAssignments+1) {
				targets = targets[1:]
			}
			if len(targets) == 0 {
				return
			}
			dst := targets[0]
			fromTier := tiers.TierFor(src.ActiveAssignments)
			srcID := src.ID

			_, err := r.Executor.Assign(ctx, AssignRequest{
				ComplaintID:     c.ID,
				StaffID:         dst.ID,
				Action:          models.ActionRebalance,
				Reason:          rebalanceReason,
				EnforceCapacity: true,
				ExpectStaff:     true,
				ExpectStaffID:   &srcID,
				ExpectStatus:    &assigned,
				Details: map[string]any{
					"department": string(dept),
					"from_tier":  string(fromTier),
					"to_tier":    string(tiers.TierFor(dst.ActiveAssignments)),
				},
			})
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", c.ID, err))
				if errors.Is(err, models.ErrAtCapacity) {
					targets = targets[1:]
				}
				continue
			}

			toTier := tiers.TierFor(dst.ActiveAssignments)
			src.ActiveAssignments--
			dst.ActiveAssignments++
			result.Actions = append(result.Actions, models.ReassignmentRecord{
				ComplaintID: c.ID,
				FromStaffID: src.ID,
				ToStaffID:   dst.ID,
				FromTier:    fromTier,
				ToTier:      toTier,
				Reason:      rebalanceReason,
				At:          r.now(),
			})
			r.Metrics.RebalanceMove()
			sortTargets(targets)
		}
	}
}

func staysLight(tiers TierThresholds, active int) bool {
	t := tiers.TierFor(active)
	return t == models.TierAvailable || t == models.TierLight
}

func sortTargets(targets []*models.StaffMember) {
	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].ActiveAssignments != targets[j].ActiveAssignments {
			return targets[i].ActiveAssignments < targets[j].ActiveAssignments
		}
		return targets[i].ID < targets[j].ID
	})
}

func (r *WorkloadRebalancer) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// StaffTiers reports the workload tier of each staff member.
func (r *WorkloadRebalancer) StaffTiers(staff []models.StaffMember) map[string]models.WorkloadTier {
	tiers := r.tiers()
	out := make(map[string]models.WorkloadTier, len(staff))
	for _, m := range staff {
		out[m.ID] = tiers.TierFor(m.ActiveAssignments)
	}
	return out
}
