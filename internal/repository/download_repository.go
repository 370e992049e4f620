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

// DownloadRepository persists download records and their packaging state.
type DownloadRepository struct {
	db *sqlx.DB
}

// NewDownloadRepository constructs the repository.
func NewDownloadRepository(db *sqlx.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

const downloadColumns = `id, user_id, product_id, version_id, verification_code, status, file_path, created_at, packaged_at`

// Create inserts an initiated download with its verification code.
func (r *DownloadRepository) Create(ctx context.Context, download *models.Download) error {
	if download.ID == "" {
		download.ID = uuid.NewString()
	}
	if download.CreatedAt.IsZero() {
		download.CreatedAt = time.Now().UTC()
	}
	if download.Status == "" {
		download.Status = models.DownloadStatusInitiated
	}
	const query = `INSERT INTO downloads (id, user_id, product_id, version_id, verification_code, status, file_path, created_at, packaged_at)
	VALUES (:id, :user_id, :product_id, :version_id, :verification_code, :status, :file_path, :created_at, :packaged_at)`
	if _, err := r.db.NamedExecContext(ctx, query, download); err != nil {
		return fmt.Errorf("create download: %w", err)
	}
	return nil
}

// GetByID retrieves one download record.
func (r *DownloadRepository) GetByID(ctx context.Context, id string) (*models.Download, error) {
	query := fmt.Sprintf(`SELECT %s FROM downloads WHERE id = $1`, downloadColumns)
	var download models.Download
	if err := r.db.GetContext(ctx, &download, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get download: %w", err)
	}
	return &download, nil
}

// GetByCode looks a download up by its verification code.
func (r *DownloadRepository) GetByCode(ctx context.Context, code string) (*models.Download, error) {
	query := fmt.Sprintf(`SELECT %s FROM downloads WHERE verification_code = $1`, downloadColumns)
	var download models.Download
	if err := r.db.GetContext(ctx, &download, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get download by code: %w", err)
	}
	return &download, nil
}

// ListByUser returns a user's downloads newest first.
func (r *DownloadRepository) ListByUser(ctx context.Context, userID string) ([]models.Download, error) {
	query := fmt.Sprintf(`SELECT %s FROM downloads WHERE user_id = $1 ORDER BY created_at DESC`, downloadColumns)
	var downloads []models.Download
	if err := r.db.SelectContext(ctx, &downloads, query, userID); err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	return downloads, nil
}

// MarkPackaged records the assembled archive path.
func (r *DownloadRepository) MarkPackaged(ctx context.Context, id, filePath string, packagedAt time.Time) error {
	const query = `UPDATE downloads SET status = $2, file_path = $3, packaged_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, models.DownloadStatusPackaged, filePath, packagedAt)
	if err != nil {
		return fmt.Errorf("mark download packaged: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check download update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkFailed flags a download whose packaging did not complete.
func (r *DownloadRepository) MarkFailed(ctx context.Context, id string) error {
	const query = `UPDATE downloads SET status = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, models.DownloadStatusFailed)
	if err != nil {
		return fmt.Errorf("mark download failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check download update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
