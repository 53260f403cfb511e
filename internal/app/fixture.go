package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/civic_complaints/backend/internal/models"
)

// Fixture is the YAML seed format accepted by triagectl.
type Fixture struct {
	Staff      []FixtureStaff     `yaml:"staff"`
	Complaints []FixtureComplaint `yaml:"complaints"`
}

type FixtureStaff struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Department      string `yaml:"department"`
	Inactive        bool   `yaml:"inactive"`
	Unavailable     bool   `yaml:"unavailable"`
	ExperienceYears int    `yaml:"experience_years"`
	MaxWorkload     int    `yaml:"max_workload"`
}

type FixtureComplaint struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Images      []string `yaml:"images"`
	// AgeMinutes backdates creation so fixtures control processing order.
	AgeMinutes int `yaml:"age_minutes"`
}

// Seeder is the write side needed to load a fixture.
type Seeder interface {
	InsertStaff(ctx context.Context, staff []models.StaffMember) (int64, error)
	InsertComplaints(ctx context.Context, complaints []models.Complaint) (int64, error)
}

func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

func ParseFixture(data []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	seen := map[string]bool{}
	for i, s := range f.Staff {
		if s.ID == "" {
			return Fixture{}, fmt.Errorf("staff[%d]: id is required", i)
		}
		if seen["s:"+s.ID] {
			return Fixture{}, fmt.Errorf("staff[%d]: duplicate id %q", i, s.ID)
		}
		seen["s:"+s.ID] = true
		if _, ok := models.ParseDepartment(s.Department); !ok {
			return Fixture{}, fmt.Errorf("staff %s: unknown department %q", s.ID, s.Department)
		}
	}
	for i, c := range f.Complaints {
		if c.ID == "" {
			return Fixture{}, fmt.Errorf("complaints[%d]: id is required", i)
		}
		if seen["c:"+c.ID] {
			return Fixture{}, fmt.Errorf("complaints[%d]: duplicate id %q", i, c.ID)
		}
		seen["c:"+c.ID] = true
	}
	return f, nil
}

// Seed inserts the fixture as pending, unclassified work.
func (f Fixture) Seed(ctx context.Context, s Seeder, now time.Time) (staff, complaints int64, err error) {
	members := make([]models.StaffMember, 0, len(f.Staff))
	for _, fs := range f.Staff {
		dept, _ := models.ParseDepartment(fs.Department)
		members = append(members, models.StaffMember{
			ID:              fs.ID,
			Name:            fs.Name,
			Department:      dept,
			Active:          !fs.Inactive,
			Available:       !fs.Unavailable,
			ExperienceYears: fs.ExperienceYears,
			MaxWorkload:     fs.MaxWorkload,
			RegisteredAt:    now,
		})
	}
	items := make([]models.Complaint, 0, len(f.Complaints))
	for _, fc := range f.Complaints {
		items = append(items, models.Complaint{
			ID:          fc.ID,
			Title:       fc.Title,
			Description: fc.Description,
			Images:      fc.Images,
			Status:      models.StatusPending,
			CreatedAt:   now.Add(-time.Duration(fc.AgeMinutes) * time.Minute),
		})
	}

	if len(members) > 0 {
		if staff, err = s.InsertStaff(ctx, members); err != nil {
			return 0, 0, fmt.Errorf("insert staff: %w", err)
		}
	}
	if len(items) > 0 {
		if complaints, err = s.InsertComplaints(ctx, items); err != nil {
			return staff, 0, fmt.Errorf("insert complaints: %w", err)
		}
	}
	return staff, complaints, nil
}
