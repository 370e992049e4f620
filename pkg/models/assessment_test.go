package models

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRubricLabels(t *testing.T) {
	assert.Equal(t, []string{"Onvoldoende", "Voldoende"}, RubricLabels(2))
	assert.Equal(t, []string{"Onvoldoende", "Voldoende", "Goed"}, RubricLabels(3))
	assert.Equal(t, []string{"Onvoldoende", "Voldoende", "Goed", "Uitstekend"}, RubricLabels(4))
	assert.Equal(t, []string{"Level 1", "Level 2", "Level 3", "Level 4", "Level 5"}, RubricLabels(5))
	assert.Len(t, RubricLabels(6), 6)
	assert.Nil(t, RubricLabels(1))
	assert.Nil(t, RubricLabels(7))
}

func TestEmptyLevelsMatchesLabelSet(t *testing.T) {
	levels := EmptyLevels(4)
	require.Len(t, levels, 4)
	for i, level := range levels {
		assert.Equal(t, RubricLabels(4)[i], level.Label)
		assert.Empty(t, level.Value)
		assert.Equal(t, i, level.Position)
	}
}

func TestTemporaryIDRoundTrip(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := NewTemporaryID()
		assert.True(t, IsTemporaryID(id), "generated id %q should be temporary", id)
	}
}

func TestIsTemporaryIDRejectsUUIDs(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.False(t, IsTemporaryID(uuid.NewString()))
	}
	assert.False(t, IsTemporaryID(""))
	assert.False(t, IsTemporaryID("abc123"))
	assert.False(t, IsTemporaryID("abcdef123X"))
	assert.False(t, IsTemporaryID("ABCDEF123"))
}

func filledVersion(rubricLevels, documents int) *Version {
	levels := make([]AssessmentLevel, rubricLevels)
	for i := range levels {
		levels[i] = AssessmentLevel{Label: RubricLabels(rubricLevels)[i], Value: fmt.Sprintf("niveau %d", i+1)}
	}
	docs := make([]Document, documents)
	for i := range docs {
		docs[i] = Document{ID: uuid.NewString(), Name: fmt.Sprintf("doc-%d.pdf", i)}
	}
	return &Version{
		Version:      "1.0",
		ReleaseDate:  "2026-01-01",
		RubricLevels: rubricLevels,
		Onderdelen: []AssessmentOnderdeel{
			{Onderdeel: "Voorbereiding", Criteria: []AssessmentCriteria{
				{Criteria: "Plan van aanpak", Levels: levels},
			}},
		},
		Documents: docs,
	}
}

func TestPublicationIssuesDocumentCount(t *testing.T) {
	v := filledVersion(3, 2)
	issues := v.PublicationIssues()
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "documenten")
	assert.False(t, v.IsPublicationReady())

	v.Documents = append(v.Documents, Document{ID: uuid.NewString(), Name: "doc-3.pdf"})
	assert.True(t, v.IsPublicationReady())
}

func TestPublicationIssuesItemized(t *testing.T) {
	v := &Version{RubricLevels: 1}
	issues := v.PublicationIssues()
	assert.Contains(t, issues, "aantal rubric-niveaus moet tussen 2 en 6 liggen")
	assert.Contains(t, issues, "versienummer ontbreekt")
	assert.Contains(t, issues, "releasedatum ontbreekt")
	assert.Contains(t, issues, "minimaal één beoordelingsonderdeel is vereist")
}

func TestPublicationIssuesEmptyLevelValues(t *testing.T) {
	v := filledVersion(3, 3)
	v.Onderdelen[0].Criteria[0].Levels[1].Value = "  "
	issues := v.PublicationIssues()
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "lege niveaus")
}

func TestPublicationIssuesLevelCountMismatch(t *testing.T) {
	v := filledVersion(4, 3)
	v.Onderdelen[0].Criteria[0].Levels = v.Onderdelen[0].Criteria[0].Levels[:3]
	issues := v.PublicationIssues()
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "mist rubric-niveaus")
}

func TestHasFilledLevels(t *testing.T) {
	v := filledVersion(2, 0)
	assert.True(t, HasFilledLevels(v.Onderdelen))

	empty := []AssessmentOnderdeel{{Criteria: []AssessmentCriteria{{Levels: EmptyLevels(2)}}}}
	assert.False(t, HasFilledLevels(empty))
}

func TestProductReadyForPublication(t *testing.T) {
	p := &ExamProduct{
		Code:        "EX-2026-01",
		Title:       "Examen Ondernemerschap",
		Description: "Praktijkexamen",
		Credits:     5,
		Cohort:      "2026-27",
		Versions:    []Version{{IsEnabled: false}},
	}
	assert.False(t, p.IsReadyForPublication())

	p.Versions[0].IsEnabled = true
	assert.True(t, p.IsReadyForPublication())

	p.Title = " "
	assert.False(t, p.IsReadyForPublication())
}
