package models

import (
	"strings"
	"time"
)

type Category string

const (
	CategoryRoadIssues             Category = "road_issues"
	CategoryWaterSupply            Category = "water_supply"
	CategoryElectricity            Category = "electricity"
	CategoryWasteManagement        Category = "waste_management"
	CategoryDrainageSewage         Category = "drainage_sewage"
	CategoryStreetLighting         Category = "street_lighting"
	CategoryPublicSafety           Category = "public_safety"
	CategoryNoisePollution         Category = "noise_pollution"
	CategoryParksRecreation        Category = "parks_recreation"
	CategoryPublicTransport        Category = "public_transport"
	CategoryBuildingInfrastructure Category = "building_infrastructure"
	CategoryOther                  Category = "other"
)

// Categories lists the closed taxonomy in a stable order.
var Categories = []Category{
	CategoryRoadIssues,
	CategoryWaterSupply,
	CategoryElectricity,
	CategoryWasteManagement,
	CategoryDrainageSewage,
	CategoryStreetLighting,
	CategoryPublicSafety,
	CategoryNoisePollution,
	CategoryParksRecreation,
	CategoryPublicTransport,
	CategoryBuildingInfrastructure,
	CategoryOther,
}

// ParseCategory maps free-form provider output onto the taxonomy.
// Unknown values return CategoryOther and false.
func ParseCategory(value string) (Category, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(v)
	switch v {
	case "road", "roads", "road_issue", "pothole", "potholes":
		return CategoryRoadIssues, true
	case "water", "water_issues":
		return CategoryWaterSupply, true
	case "electric", "power", "electrical":
		return CategoryElectricity, true
	case "garbage", "waste", "sanitation":
		return CategoryWasteManagement, true
	case "drainage", "sewage", "sewer":
		return CategoryDrainageSewage, true
	case "streetlight", "streetlights", "lighting":
		return CategoryStreetLighting, true
	case "safety", "security":
		return CategoryPublicSafety, true
	case "noise":
		return CategoryNoisePollution, true
	case "parks", "park", "recreation":
		return CategoryParksRecreation, true
	case "transport", "transit":
		return CategoryPublicTransport, true
	case "infrastructure", "building", "buildings":
		return CategoryBuildingInfrastructure, true
	}
	for _, c := range Categories {
		if string(c) == v {
			return c, true
		}
	}
	return CategoryOther, false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	default:
		return 0
	}
}

func ParsePriority(value string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(value)))
	if p.Rank() == 0 {
		return PriorityLow, false
	}
	return p, true
}

type Status string

const (
	StatusPending       Status = "pending"
	StatusAssigned      Status = "assigned"
	StatusInProgress    Status = "in_progress"
	StatusWorkCompleted Status = "work_completed"
	StatusResolved      Status = "resolved"
	StatusRejected      Status = "rejected"
)

// IsActive reports whether the status counts towards a staff member's workload.
func (s Status) IsActive() bool {
	return s == StatusAssigned || s == StatusInProgress
}

func (s Status) IsTerminal() bool {
	return s == StatusWorkCompleted || s == StatusResolved || s == StatusRejected
}

type Department string

const (
	DepartmentRoads        Department = "roads"
	DepartmentWater        Department = "water"
	DepartmentElectrical   Department = "electrical"
	DepartmentSanitation   Department = "sanitation"
	DepartmentPublicSafety Department = "public_safety"
	DepartmentParks        Department = "parks"
	DepartmentTransport    Department = "transport"
	DepartmentPublicWorks  Department = "public_works"
	DepartmentGeneral      Department = "general"
)

var Departments = []Department{
	DepartmentRoads,
	DepartmentWater,
	DepartmentElectrical,
	DepartmentSanitation,
	DepartmentPublicSafety,
	DepartmentParks,
	DepartmentTransport,
	DepartmentPublicWorks,
	DepartmentGeneral,
}

func ParseDepartment(value string) (Department, bool) {
	v := Department(strings.ToLower(strings.TrimSpace(value)))
	for _, d := range Departments {
		if d == v {
			return d, true
		}
	}
	return DepartmentGeneral, false
}

type Complaint struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Images          []string        `json:"images"`
	Category        *Category       `json:"category"`
	Priority        *Priority       `json:"priority"`
	Status          Status          `json:"status"`
	AssignedStaffID *string         `json:"assigned_staff_id"`
	AssignedAt      *time.Time      `json:"assigned_at"`
	Classification  *Classification `json:"classification,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NeedsClassification is the reprocessing predicate: a complaint carrying a
// classification record is never classified again.
func (c Complaint) NeedsClassification() bool {
	return c.Classification == nil || c.Category == nil || c.Priority == nil
}

// EligibleForAutomation reports whether a sweep may pick the complaint up.
func (c Complaint) EligibleForAutomation() bool {
	return c.Status == StatusPending && c.AssignedStaffID == nil
}

// Classification is the persisted form of a ClassificationResult.
type Classification struct {
	Confidence   float64   `json:"confidence"`
	Reasoning    string    `json:"reasoning"`
	Source       string    `json:"source"`
	UsedAI       bool      `json:"used_ai"`
	ModelVersion string    `json:"model_version,omitempty"`
	ClassifiedAt time.Time `json:"classified_at"`
}

type StaffMember struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Department        Department `json:"department"`
	Active            bool       `json:"active"`
	Available         bool       `json:"available"`
	ExperienceYears   int        `json:"experience_years"`
	MaxWorkload       int        `json:"max_workload"`
	ActiveAssignments int        `json:"active_assignments"`
	LastAssignedAt    *time.Time `json:"last_assigned_at"`
	RegisteredAt      time.Time  `json:"registered_at"`
}

// AtCapacity reports whether another assignment would exceed MaxWorkload.
// A zero MaxWorkload means unlimited.
func (s StaffMember) AtCapacity() bool {
	return s.MaxWorkload > 0 && s.ActiveAssignments >= s.MaxWorkload
}

type ImageResult struct {
	Ref        string   `json:"ref"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Error      string   `json:"error,omitempty"`
}

type ClassificationResult struct {
	Category     Category      `json:"category"`
	Confidence   float64       `json:"confidence"`
	Reasoning    string        `json:"reasoning"`
	Source       string        `json:"source"`
	UsedAI       bool          `json:"used_ai"`
	ModelVersion string        `json:"model_version,omitempty"`
	ImageResults []ImageResult `json:"image_results,omitempty"`
}

const ActorSystem = "system"

type AuditAction string

const (
	ActionAutoAssign       AuditAction = "auto_assign"
	ActionManualAssign     AuditAction = "manual_assign"
	ActionReassign         AuditAction = "reassign"
	ActionRebalance        AuditAction = "rebalance"
	ActionAutoAssignFailed AuditAction = "auto_assign_failed"
)

type AuditEntry struct {
	ID          string         `json:"id"`
	Actor       string         `json:"actor"`
	Action      AuditAction    `json:"action"`
	ComplaintID string         `json:"complaint_id"`
	FromStaffID *string        `json:"from_staff_id"`
	ToStaffID   *string        `json:"to_staff_id"`
	Reason      string         `json:"reason"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type AssignmentDecision struct {
	ComplaintID     string      `json:"complaint_id"`
	StaffID         string      `json:"staff_id"`
	PreviousStaffID *string     `json:"previous_staff_id"`
	Status          Status      `json:"status"`
	Action          AuditAction `json:"action"`
	Actor           string      `json:"actor"`
	AuditID         string      `json:"audit_id,omitempty"`
	Changed         bool        `json:"changed"`
	Notified        bool        `json:"notified"`
	NotifyError     string      `json:"notify_error,omitempty"`
	AssignedAt      time.Time   `json:"assigned_at"`
}

// AssignmentWrite is the unit the store applies in one transaction: capacity
// recount, complaint update and audit append.
type AssignmentWrite struct {
	ComplaintID     string
	StaffID         string
	EnforceCapacity bool
	// ExpectStaff makes the write conditional on the current staff reference
	// equalling ExpectStaffID (nil meaning unassigned).
	ExpectStaff   bool
	ExpectStaffID *string
	ExpectStatus  *Status
	At              time.Time
	Audit           AuditEntry
}

type AssignmentApplied struct {
	PreviousStaffID *string
	Status          Status
	Changed         bool
}

type WorkloadTier string

const (
	TierAvailable  WorkloadTier = "available"
	TierLight      WorkloadTier = "light"
	TierModerate   WorkloadTier = "moderate"
	TierHeavy      WorkloadTier = "heavy"
	TierOverloaded WorkloadTier = "overloaded"
)

type ReassignmentRecord struct {
	ComplaintID string       `json:"complaint_id"`
	FromStaffID string       `json:"from_staff_id"`
	ToStaffID   string       `json:"to_staff_id"`
	FromTier    WorkloadTier `json:"from_tier"`
	ToTier      WorkloadTier `json:"to_tier"`
	Reason      string       `json:"reason"`
	At          time.Time    `json:"at"`
}

type Run struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Status     string     `json:"status"`
	Summary    []byte     `json:"summary"`
}
