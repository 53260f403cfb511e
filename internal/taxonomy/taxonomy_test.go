package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic_complaints/backend/internal/models"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "water pipe burst near main st", Normalize("  Water-pipe BURST, near Main St.!"))
	assert.Equal(t, "", Normalize("!!!"))
}

func TestCountPhraseWholeWords(t *testing.T) {
	tokens := Tokens(Normalize("Waterlogging near the water tank, water everywhere"))
	assert.Equal(t, 2, CountPhrase(tokens, "water"))
	assert.Equal(t, 1, CountPhrase(tokens, "water tank"))
	assert.Equal(t, 0, CountPhrase(tokens, "tank water"))
	assert.Equal(t, 0, CountPhrase(tokens, ""))
}

func TestDepartmentFallback(t *testing.T) {
	tx := Default()
	assert.Equal(t, models.DepartmentWater, tx.DepartmentFor(models.CategoryWaterSupply))
	assert.Equal(t, models.DepartmentGeneral, tx.DepartmentFor(models.CategoryOther))
	assert.Greater(t, tx.SpecificityOf(models.CategoryRoadIssues), tx.SpecificityOf(models.CategoryOther))
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	content := `
categories:
  water_supply:
    keywords: [water leak, pipe burst, flooding]
    department: public_works
  parks_recreation:
    priority_adjustment: 0
priority_indicators:
  low:
    weight: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	tx, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"water leak", "pipe burst", "flooding"}, tx.Keywords[models.CategoryWaterSupply])
	assert.Equal(t, models.DepartmentPublicWorks, tx.DepartmentFor(models.CategoryWaterSupply))
	assert.Equal(t, 0, tx.AdjustmentFor(models.CategoryParksRecreation))
	for _, set := range tx.Indicators {
		if set.Level == models.PriorityLow {
			assert.Equal(t, 1, set.Weight)
		}
	}
	// untouched categories keep defaults
	assert.NotEmpty(t, tx.Keywords[models.CategoryRoadIssues])
}

func TestLoadRejectsUnknownCategory(t *testing.T) {
	tx := Default()
	err := tx.Overlay([]byte("categories:\n  lunar_issues:\n    keywords: [moon]\n"))
	require.Error(t, err)
}
