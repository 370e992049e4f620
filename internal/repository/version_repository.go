package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/exgen-nl/exgen-api/pkg/models"
)

// VersionRepository handles product version persistence.
type VersionRepository struct {
	db *sqlx.DB
}

// NewVersionRepository constructs the repository.
func NewVersionRepository(db *sqlx.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

const versionColumns = `id, product_id, version, release_date, is_latest, is_enabled, rubric_levels, created_at, deleted_at`

// Create inserts a version and, inside one transaction, clears the latest
// flag on the product's other versions when the new version takes it.
func (r *VersionRepository) Create(ctx context.Context, version *models.Version) error {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	if version.RubricLevels == 0 {
		version.RubricLevels = 3
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create version: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if version.IsLatest {
		if _, err := tx.ExecContext(ctx, `UPDATE versions SET is_latest = FALSE WHERE product_id = $1`, version.ProductID); err != nil {
			return fmt.Errorf("clear latest flags: %w", err)
		}
	}

	const query = `INSERT INTO versions (id, product_id, version, release_date, is_latest, is_enabled, rubric_levels, created_at)
	VALUES (:id, :product_id, :version, :release_date, :is_latest, :is_enabled, :rubric_levels, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, version); err != nil {
		return fmt.Errorf("create version: %w", err)
	}

	return tx.Commit()
}

// GetByID retrieves one version row.
func (r *VersionRepository) GetByID(ctx context.Context, id string) (*models.Version, error) {
	query := fmt.Sprintf(`SELECT %s FROM versions WHERE id = $1 AND deleted_at IS NULL`, versionColumns)
	var version models.Version
	if err := r.db.GetContext(ctx, &version, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get version: %w", err)
	}
	return &version, nil
}

// ListByProduct returns the non-deleted versions of a product, newest first.
func (r *VersionRepository) ListByProduct(ctx context.Context, productID string) ([]models.Version, error) {
	query := fmt.Sprintf(`SELECT %s FROM versions WHERE product_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, versionColumns)
	var versions []models.Version
	if err := r.db.SelectContext(ctx, &versions, query, productID); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

// GetLatest returns the version carrying the is_latest flag.
func (r *VersionRepository) GetLatest(ctx context.Context, productID string) (*models.Version, error) {
	query := fmt.Sprintf(`SELECT %s FROM versions WHERE product_id = $1 AND is_latest = TRUE AND deleted_at IS NULL LIMIT 1`, versionColumns)
	var version models.Version
	if err := r.db.GetContext(ctx, &version, query, productID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get latest version: %w", err)
	}
	return &version, nil
}

// Update persists version ordinal and release date edits.
func (r *VersionRepository) Update(ctx context.Context, version *models.Version) error {
	const query = `UPDATE versions SET version = :version, release_date = :release_date WHERE id = :id AND deleted_at IS NULL`
	res, err := r.db.NamedExecContext(ctx, query, version)
	if err != nil {
		return fmt.Errorf("update version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check version update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetEnabled toggles download visibility.
func (r *VersionRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	const query = `UPDATE versions SET is_enabled = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, enabled)
	if err != nil {
		return fmt.Errorf("set version enabled: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check version enable rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetRubricLevels updates the rubric tier count.
func (r *VersionRepository) SetRubricLevels(ctx context.Context, id string, count int) error {
	const query = `UPDATE versions SET rubric_levels = $2 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, count); err != nil {
		return fmt.Errorf("set rubric levels: %w", err)
	}
	return nil
}

// SoftDelete marks a version as deleted. When the deleted version held the
// latest flag, it moves to the newest surviving version.
func (r *VersionRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete version: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var version models.Version
	query := fmt.Sprintf(`SELECT %s FROM versions WHERE id = $1 AND deleted_at IS NULL`, versionColumns)
	if err := tx.GetContext(ctx, &version, query, id); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("load version for delete: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE versions SET deleted_at = $2, is_latest = FALSE WHERE id = $1`, id, deletedAt); err != nil {
		return fmt.Errorf("soft delete version: %w", err)
	}

	if version.IsLatest {
		const promote = `UPDATE versions SET is_latest = TRUE WHERE id = (
			SELECT id FROM versions WHERE product_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC LIMIT 1
		)`
		if _, err := tx.ExecContext(ctx, promote, version.ProductID); err != nil {
			return fmt.Errorf("promote latest version: %w", err)
		}
	}

	return tx.Commit()
}
