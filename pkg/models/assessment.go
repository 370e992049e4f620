package models

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

// AssessmentOnderdeel is a named section of an exam rubric.
type AssessmentOnderdeel struct {
	ID        string `db:"id" json:"id"`
	VersionID string `db:"version_id" json:"version_id"`
	Onderdeel string `db:"onderdeel" json:"onderdeel"`
	Position  int    `db:"position" json:"position"`

	Criteria []AssessmentCriteria `db:"-" json:"criteria,omitempty"`
}

// AssessmentCriteria is a gradable dimension within an onderdeel, scored
// across the version's rubric levels.
type AssessmentCriteria struct {
	ID          string `db:"id" json:"id"`
	OnderdeelID string `db:"onderdeel_id" json:"onderdeel_id"`
	Criteria    string `db:"criteria" json:"criteria"`
	Position    int    `db:"position" json:"position"`

	Levels []AssessmentLevel `db:"-" json:"levels,omitempty"`
}

// AssessmentLevel is one rubric tier of a criterion. The label is derived
// from the version's rubric level count; the value is free text.
type AssessmentLevel struct {
	ID         string `db:"id" json:"id"`
	CriteriaID string `db:"criteria_id" json:"criteria_id"`
	Label      string `db:"label" json:"label"`
	Value      string `db:"value" json:"value"`
	Position   int    `db:"position" json:"position"`
}

// Rubric level counts supported by the editor.
const (
	MinRubricLevels = 2
	MaxRubricLevels = 6
)

// RubricLabels returns the fixed label set for a rubric level count.
// Counts outside [2,6] return nil.
func RubricLabels(count int) []string {
	switch count {
	case 2:
		return []string{"Onvoldoende", "Voldoende"}
	case 3:
		return []string{"Onvoldoende", "Voldoende", "Goed"}
	case 4:
		return []string{"Onvoldoende", "Voldoende", "Goed", "Uitstekend"}
	case 5:
		labels := make([]string, 5)
		for i := range labels {
			labels[i] = fmt.Sprintf("Level %d", i+1)
		}
		return labels
	case 6:
		return []string{"Onvoldoende", "Voldoende", "Goed", "Uitstekend", "Uitmuntend", "Uitzonderlijk"}
	default:
		return nil
	}
}

// EmptyLevels builds placeholder levels for the given rubric count with
// labels from the fixed table and empty values.
func EmptyLevels(count int) []AssessmentLevel {
	labels := RubricLabels(count)
	levels := make([]AssessmentLevel, len(labels))
	for i, label := range labels {
		levels[i] = AssessmentLevel{Label: label, Position: i}
	}
	return levels
}

// HasFilledLevels reports whether any criterion below the onderdelen carries
// non-empty rubric content. Changing the rubric level count is destructive
// exactly when this holds.
func HasFilledLevels(onderdelen []AssessmentOnderdeel) bool {
	for _, o := range onderdelen {
		for _, c := range o.Criteria {
			for _, l := range c.Levels {
				if strings.TrimSpace(l.Value) != "" {
					return true
				}
			}
		}
	}
	return false
}

var temporaryIDPattern = regexp.MustCompile(`^[a-z0-9]{9}$`)

const temporaryIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewTemporaryID generates a 9-character local placeholder ID for entities
// that have not been persisted yet. Temporary IDs are never sent to the
// backend as lookup keys.
func NewTemporaryID() string {
	buf := make([]byte, 9)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = temporaryIDAlphabet[int(b)%len(temporaryIDAlphabet)]
	}
	return string(buf)
}

// IsTemporaryID reports whether the ID is a locally generated placeholder.
func IsTemporaryID(id string) bool {
	return temporaryIDPattern.MatchString(id)
}

// PublicationIssues returns the itemized list of reasons a version may not be
// enabled yet. An empty slice means the version is publication ready.
func (v *Version) PublicationIssues() []string {
	issues := []string{}

	if v.RubricLevels < MinRubricLevels || v.RubricLevels > MaxRubricLevels {
		issues = append(issues, "aantal rubric-niveaus moet tussen 2 en 6 liggen")
	}
	if strings.TrimSpace(v.Version) == "" {
		issues = append(issues, "versienummer ontbreekt")
	}
	if strings.TrimSpace(v.ReleaseDate) == "" {
		issues = append(issues, "releasedatum ontbreekt")
	}

	if len(v.Onderdelen) == 0 {
		issues = append(issues, "minimaal één beoordelingsonderdeel is vereist")
	}
	for _, o := range v.Onderdelen {
		if len(o.Criteria) == 0 {
			issues = append(issues, fmt.Sprintf("onderdeel %q heeft minimaal één criterium nodig", o.Onderdeel))
			continue
		}
		for _, c := range o.Criteria {
			if len(c.Levels) != v.RubricLevels {
				issues = append(issues, fmt.Sprintf("criterium %q mist rubric-niveaus", c.Criteria))
				continue
			}
			for _, l := range c.Levels {
				if strings.TrimSpace(l.Value) == "" {
					issues = append(issues, fmt.Sprintf("criterium %q heeft lege niveaus", c.Criteria))
					break
				}
			}
		}
	}

	if len(v.Documents) < MinimumDocuments {
		issues = append(issues, fmt.Sprintf("minimaal %d documenten zijn vereist (nu %d)", MinimumDocuments, len(v.Documents)))
	}

	return issues
}

// IsPublicationReady reports whether the version may be enabled.
func (v *Version) IsPublicationReady() bool {
	return len(v.PublicationIssues()) == 0
}
