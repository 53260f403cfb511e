// Package taxonomy holds the category keyword sets, priority indicators,
// specificity ranking and department mapping used by triage.
package taxonomy

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/civic_complaints/backend/internal/models"
)

type IndicatorSet struct {
	Level   models.Priority
	Weight  int
	Phrases []string
}

type Taxonomy struct {
	Keywords    map[models.Category][]string
	Indicators  []IndicatorSet
	Adjustments map[models.Category]int
	Specificity map[models.Category]int
	Departments map[models.Category]models.Department
}

func Default() *Taxonomy {
	return &Taxonomy{
		Keywords: map[models.Category][]string{
			models.CategoryRoadIssues: {
				"pothole", "potholes", "road", "roads", "cracked road", "asphalt", "speed breaker",
				"road damage", "footpath", "pavement", "sidewalk",
			},
			models.CategoryWaterSupply: {
				"water", "water leak", "water supply", "pipe", "pipe burst", "burst pipe", "pipeline",
				"leakage", "flooding", "tap", "no water", "contaminated water", "water pressure",
			},
			models.CategoryElectricity: {
				"electricity", "power cut", "power outage", "power", "transformer", "electric",
				"voltage", "live wire", "electric pole", "outage",
			},
			models.CategoryWasteManagement: {
				"garbage", "trash", "waste", "litter", "dumping", "dustbin", "rubbish",
				"overflowing bin", "garbage collection",
			},
			models.CategoryDrainageSewage: {
				"drain", "drainage", "sewage", "sewer", "manhole", "clogged drain", "blocked drain",
				"stagnant", "waterlogging",
			},
			models.CategoryStreetLighting: {
				"streetlight", "streetlights", "street light", "street lights", "lamp", "lamp post",
				"dark street", "bulb",
			},
			models.CategoryPublicSafety: {
				"crime", "theft", "unsafe", "harassment", "violence", "assault", "robbery",
				"security", "fire", "accident",
			},
			models.CategoryNoisePollution: {
				"noise", "noisy", "loud", "loudspeaker", "honking", "construction noise", "barking",
			},
			models.CategoryParksRecreation: {
				"park", "playground", "garden", "bench", "swing", "tree", "trees", "grass",
				"fountain", "sports ground",
			},
			models.CategoryPublicTransport: {
				"bus", "bus stop", "bus shelter", "metro", "train", "transport", "route",
			},
			models.CategoryBuildingInfrastructure: {
				"building", "bridge", "wall", "collapse", "structure", "illegal construction",
				"public toilet", "flyover",
			},
		},
		Indicators: []IndicatorSet{
			{Level: models.PriorityUrgent, Weight: 10, Phrases: []string{
				"emergency", "urgent", "immediately", "danger", "dangerous", "life threatening",
				"flooding", "fire", "collapse", "collapsed", "live wire", "electrocution",
				"accident", "injured", "gas leak",
			}},
			{Level: models.PriorityHigh, Weight: 7, Phrases: []string{
				"broken", "burst", "no water", "power outage", "blocked", "overflowing", "unsafe",
				"severe", "major", "not working",
			}},
			{Level: models.PriorityMedium, Weight: 5, Phrases: []string{
				"damaged", "leak", "leaking", "dirty", "delay", "delayed", "repair", "problem",
			}},
			{Level: models.PriorityLow, Weight: 2, Phrases: []string{
				"minor", "small", "suggestion", "request", "cosmetic", "whenever possible",
			}},
		},
		Adjustments: map[models.Category]int{
			models.CategoryPublicSafety:           3,
			models.CategoryWaterSupply:            2,
			models.CategoryElectricity:            2,
			models.CategoryDrainageSewage:         2,
			models.CategoryRoadIssues:             1,
			models.CategoryStreetLighting:         1,
			models.CategoryBuildingInfrastructure: 1,
			models.CategoryPublicTransport:        1,
			models.CategoryParksRecreation:        -1,
		},
		Specificity: map[models.Category]int{
			models.CategoryOther:                  0,
			models.CategoryBuildingInfrastructure: 1,
			models.CategoryPublicSafety:           2,
			models.CategoryNoisePollution:         2,
			models.CategoryParksRecreation:        2,
			models.CategoryPublicTransport:        2,
			models.CategoryWasteManagement:        3,
			models.CategoryElectricity:            3,
			models.CategoryWaterSupply:            3,
			models.CategoryDrainageSewage:         4,
			models.CategoryStreetLighting:         4,
			models.CategoryRoadIssues:             4,
		},
		Departments: map[models.Category]models.Department{
			models.CategoryRoadIssues:             models.DepartmentRoads,
			models.CategoryWaterSupply:            models.DepartmentWater,
			models.CategoryElectricity:            models.DepartmentElectrical,
			models.CategoryStreetLighting:         models.DepartmentElectrical,
			models.CategoryWasteManagement:        models.DepartmentSanitation,
			models.CategoryDrainageSewage:         models.DepartmentSanitation,
			models.CategoryPublicSafety:           models.DepartmentPublicSafety,
			models.CategoryNoisePollution:         models.DepartmentPublicSafety,
			models.CategoryParksRecreation:        models.DepartmentParks,
			models.CategoryPublicTransport:        models.DepartmentTransport,
			models.CategoryBuildingInfrastructure: models.DepartmentPublicWorks,
		},
	}
}

// DepartmentFor maps a category to the owning department; unmapped categories
// fall back to the general department.
func (t *Taxonomy) DepartmentFor(c models.Category) models.Department {
	if d, ok := t.Departments[c]; ok {
		return d
	}
	return models.DepartmentGeneral
}

func (t *Taxonomy) SpecificityOf(c models.Category) int {
	return t.Specificity[c]
}

func (t *Taxonomy) AdjustmentFor(c models.Category) int {
	return t.Adjustments[c]
}

// KeywordCategories returns the categories that carry keyword sets, sorted for
// deterministic iteration.
func (t *Taxonomy) KeywordCategories() []models.Category {
	out := make([]models.Category, 0, len(t.Keywords))
	for c := range t.Keywords {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type fileCategory struct {
	Keywords           []string `yaml:"keywords"`
	Specificity        *int     `yaml:"specificity"`
	Department         string   `yaml:"department"`
	PriorityAdjustment *int     `yaml:"priority_adjustment"`
}

type fileIndicator struct {
	Weight  *int     `yaml:"weight"`
	Phrases []string `yaml:"phrases"`
}

type file struct {
	Categories         map[string]fileCategory  `yaml:"categories"`
	PriorityIndicators map[string]fileIndicator `yaml:"priority_indicators"`
}

// Load reads a YAML taxonomy file and overlays it on the defaults. An empty
// path returns the defaults.
func Load(path string) (*Taxonomy, error) {
	t := Default()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	if err := t.Overlay(data); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Taxonomy) Overlay(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse taxonomy: %w", err)
	}

	for name, fc := range f.Categories {
		cat, ok := models.ParseCategory(name)
		if !ok && name != string(models.CategoryOther) {
			return fmt.Errorf("unknown category %q", name)
		}
		if len(fc.Keywords) > 0 {
			t.Keywords[cat] = fc.Keywords
		}
		if fc.Specificity != nil {
			t.Specificity[cat] = *fc.Specificity
		}
		if fc.PriorityAdjustment != nil {
			t.Adjustments[cat] = *fc.PriorityAdjustment
		}
		if fc.Department != "" {
			dept, ok := models.ParseDepartment(fc.Department)
			if !ok {
				return fmt.Errorf("unknown department %q for %s", fc.Department, name)
			}
			t.Departments[cat] = dept
		}
	}

	for level, fi := range f.PriorityIndicators {
		p, ok := models.ParsePriority(level)
		if !ok {
			return fmt.Errorf("unknown priority level %q", level)
		}
		for i := range t.Indicators {
			if t.Indicators[i].Level != p {
				continue
			}
			if fi.Weight != nil {
				t.Indicators[i].Weight = *fi.Weight
			}
			if len(fi.Phrases) > 0 {
				t.Indicators[i].Phrases = fi.Phrases
			}
		}
	}
	return nil
}
