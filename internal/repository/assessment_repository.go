package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/exgen-nl/exgen-api/pkg/models"
)

// AssessmentRepository handles the rubric tree of a version: onderdelen,
// criteria, and levels.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs the repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// ListTreeByVersion loads the full assessment tree of a version.
func (r *AssessmentRepository) ListTreeByVersion(ctx context.Context, versionID string) ([]models.AssessmentOnderdeel, error) {
	var onderdelen []models.AssessmentOnderdeel
	const onderdeelQuery = `SELECT id, version_id, onderdeel, position FROM assessment_onderdelen
	WHERE version_id = $1 ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &onderdelen, onderdeelQuery, versionID); err != nil {
		return nil, fmt.Errorf("list onderdelen: %w", err)
	}

	var criteria []models.AssessmentCriteria
	const criteriaQuery = `SELECT c.id, c.onderdeel_id, c.criteria, c.position FROM assessment_criteria c
	JOIN assessment_onderdelen o ON o.id = c.onderdeel_id
	WHERE o.version_id = $1 ORDER BY c.position ASC`
	if err := r.db.SelectContext(ctx, &criteria, criteriaQuery, versionID); err != nil {
		return nil, fmt.Errorf("list criteria: %w", err)
	}

	var levels []models.AssessmentLevel
	const levelQuery = `SELECT l.id, l.criteria_id, l.label, l.value, l.position FROM assessment_levels l
	JOIN assessment_criteria c ON c.id = l.criteria_id
	JOIN assessment_onderdelen o ON o.id = c.onderdeel_id
	WHERE o.version_id = $1 ORDER BY l.position ASC`
	if err := r.db.SelectContext(ctx, &levels, levelQuery, versionID); err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}

	levelsByCriteria := make(map[string][]models.AssessmentLevel, len(criteria))
	for _, l := range levels {
		levelsByCriteria[l.CriteriaID] = append(levelsByCriteria[l.CriteriaID], l)
	}
	criteriaByOnderdeel := make(map[string][]models.AssessmentCriteria, len(onderdelen))
	for _, c := range criteria {
		c.Levels = levelsByCriteria[c.ID]
		criteriaByOnderdeel[c.OnderdeelID] = append(criteriaByOnderdeel[c.OnderdeelID], c)
	}
	for i := range onderdelen {
		onderdelen[i].Criteria = criteriaByOnderdeel[onderdelen[i].ID]
	}
	return onderdelen, nil
}

// CreateOnderdeel appends a component at the end of the version's tree.
func (r *AssessmentRepository) CreateOnderdeel(ctx context.Context, item *models.AssessmentOnderdeel) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	const query = `INSERT INTO assessment_onderdelen (id, version_id, onderdeel, position)
	VALUES ($1, $2, $3, COALESCE((SELECT MAX(position) + 1 FROM assessment_onderdelen WHERE version_id = $2), 0))`
	if _, err := r.db.ExecContext(ctx, query, item.ID, item.VersionID, item.Onderdeel); err != nil {
		return fmt.Errorf("create onderdeel: %w", err)
	}
	return nil
}

// GetOnderdeel retrieves one component row.
func (r *AssessmentRepository) GetOnderdeel(ctx context.Context, id string) (*models.AssessmentOnderdeel, error) {
	const query = `SELECT id, version_id, onderdeel, position FROM assessment_onderdelen WHERE id = $1`
	var item models.AssessmentOnderdeel
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get onderdeel: %w", err)
	}
	return &item, nil
}

// UpdateOnderdeel renames a component.
func (r *AssessmentRepository) UpdateOnderdeel(ctx context.Context, id, name string) error {
	const query = `UPDATE assessment_onderdelen SET onderdeel = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, name)
	if err != nil {
		return fmt.Errorf("update onderdeel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check onderdeel update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteOnderdeel removes a component and its criteria/levels.
func (r *AssessmentRepository) DeleteOnderdeel(ctx context.Context, id string) error {
	const query = `DELETE FROM assessment_onderdelen WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete onderdeel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check onderdeel delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateCriteria inserts a criterion together with its placeholder levels in
// one transaction.
func (r *AssessmentRepository) CreateCriteria(ctx context.Context, criteria *models.AssessmentCriteria, levels []models.AssessmentLevel) error {
	if criteria.ID == "" {
		criteria.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create criteria: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const criteriaQuery = `INSERT INTO assessment_criteria (id, onderdeel_id, criteria, position)
	VALUES ($1, $2, $3, COALESCE((SELECT MAX(position) + 1 FROM assessment_criteria WHERE onderdeel_id = $2), 0))`
	if _, err := tx.ExecContext(ctx, criteriaQuery, criteria.ID, criteria.OnderdeelID, criteria.Criteria); err != nil {
		return fmt.Errorf("create criteria: %w", err)
	}

	const levelQuery = `INSERT INTO assessment_levels (id, criteria_id, label, value, position) VALUES ($1, $2, $3, $4, $5)`
	for i := range levels {
		if levels[i].ID == "" {
			levels[i].ID = uuid.NewString()
		}
		levels[i].CriteriaID = criteria.ID
		if _, err := tx.ExecContext(ctx, levelQuery, levels[i].ID, criteria.ID, levels[i].Label, levels[i].Value, levels[i].Position); err != nil {
			return fmt.Errorf("create level: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create criteria: %w", err)
	}
	criteria.Levels = levels
	return nil
}

// UpdateCriteria updates a criterion's text.
func (r *AssessmentRepository) UpdateCriteria(ctx context.Context, id, text string) error {
	const query = `UPDATE assessment_criteria SET criteria = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, text)
	if err != nil {
		return fmt.Errorf("update criteria: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check criteria update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteCriteria removes a criterion and its levels.
func (r *AssessmentRepository) DeleteCriteria(ctx context.Context, id string) error {
	const query = `DELETE FROM assessment_criteria WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete criteria: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check criteria delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateLevel sets the free-text value of one rubric level.
func (r *AssessmentRepository) UpdateLevel(ctx context.Context, criteriaID, levelID, value string) error {
	const query = `UPDATE assessment_levels SET value = $3 WHERE id = $2 AND criteria_id = $1`
	res, err := r.db.ExecContext(ctx, query, criteriaID, levelID, value)
	if err != nil {
		return fmt.Errorf("update level: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check level update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResetLevels replaces every criterion's levels under a version with empty
// placeholders for the new rubric count and updates the version row, all in
// one transaction.
func (r *AssessmentRepository) ResetLevels(ctx context.Context, versionID string, count int, labels []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset levels: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const wipe = `DELETE FROM assessment_levels WHERE criteria_id IN (
		SELECT c.id FROM assessment_criteria c
		JOIN assessment_onderdelen o ON o.id = c.onderdeel_id
		WHERE o.version_id = $1
	)`
	if _, err := tx.ExecContext(ctx, wipe, versionID); err != nil {
		return fmt.Errorf("wipe levels: %w", err)
	}

	var criteriaIDs []string
	const criteriaQuery = `SELECT c.id FROM assessment_criteria c
	JOIN assessment_onderdelen o ON o.id = c.onderdeel_id
	WHERE o.version_id = $1`
	if err := tx.SelectContext(ctx, &criteriaIDs, criteriaQuery, versionID); err != nil {
		return fmt.Errorf("list criteria for reset: %w", err)
	}

	const insert = `INSERT INTO assessment_levels (id, criteria_id, label, value, position) VALUES ($1, $2, $3, '', $4)`
	for _, criteriaID := range criteriaIDs {
		for i, label := range labels {
			if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), criteriaID, label, i); err != nil {
				return fmt.Errorf("insert placeholder level: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE versions SET rubric_levels = $2 WHERE id = $1`, versionID, count); err != nil {
		return fmt.Errorf("update rubric count: %w", err)
	}

	return tx.Commit()
}

// CopyTree duplicates the full assessment tree of one version onto another.
// Used by version duplication; fresh IDs are generated for every row.
func (r *AssessmentRepository) CopyTree(ctx context.Context, fromVersionID, toVersionID string) error {
	tree, err := r.ListTreeByVersion(ctx, fromVersionID)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin copy tree: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const onderdeelInsert = `INSERT INTO assessment_onderdelen (id, version_id, onderdeel, position) VALUES ($1, $2, $3, $4)`
	const criteriaInsert = `INSERT INTO assessment_criteria (id, onderdeel_id, criteria, position) VALUES ($1, $2, $3, $4)`
	const levelInsert = `INSERT INTO assessment_levels (id, criteria_id, label, value, position) VALUES ($1, $2, $3, $4, $5)`

	for _, o := range tree {
		newOnderdeelID := uuid.NewString()
		if _, err := tx.ExecContext(ctx, onderdeelInsert, newOnderdeelID, toVersionID, o.Onderdeel, o.Position); err != nil {
			return fmt.Errorf("copy onderdeel: %w", err)
		}
		for _, c := range o.Criteria {
			newCriteriaID := uuid.NewString()
			if _, err := tx.ExecContext(ctx, criteriaInsert, newCriteriaID, newOnderdeelID, c.Criteria, c.Position); err != nil {
				return fmt.Errorf("copy criteria: %w", err)
			}
			for _, l := range c.Levels {
				if _, err := tx.ExecContext(ctx, levelInsert, uuid.NewString(), newCriteriaID, l.Label, l.Value, l.Position); err != nil {
					return fmt.Errorf("copy level: %w", err)
				}
			}
		}
	}

	return tx.Commit()
}
