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

// DocumentRepository handles document metadata persistence.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, version_id, name, url, file_path, is_preview, s3_status, uploaded_at`

// Create stores metadata for an uploaded document.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if doc.S3Status == "" {
		doc.S3Status = models.S3StatusChecking
	}
	const query = `INSERT INTO documents (id, version_id, name, url, file_path, is_preview, s3_status, uploaded_at)
	VALUES (:id, :version_id, :name, :url, :file_path, :is_preview, :s3_status, :uploaded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID retrieves one document row.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1`, documentColumns)
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// ListByVersion returns the documents of a version, oldest upload first.
func (r *DocumentRepository) ListByVersion(ctx context.Context, versionID string) ([]models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE version_id = $1 ORDER BY uploaded_at ASC`, documentColumns)
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, versionID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Delete removes a document row.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM documents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetPreview flags a document as the version's preview, clearing the flag on
// its siblings so at most one preview exists per version.
func (r *DocumentRepository) SetPreview(ctx context.Context, id string, isPreview bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set preview: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if isPreview {
		const clear = `UPDATE documents SET is_preview = FALSE
		WHERE version_id = (SELECT version_id FROM documents WHERE id = $1) AND id <> $1`
		if _, err := tx.ExecContext(ctx, clear, id); err != nil {
			return fmt.Errorf("clear preview flags: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `UPDATE documents SET is_preview = $2 WHERE id = $1`, id, isPreview)
	if err != nil {
		return fmt.Errorf("set preview: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check preview rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}

// UpdateS3Status records the result of a storage verification pass.
func (r *DocumentRepository) UpdateS3Status(ctx context.Context, id string, status models.S3Status) error {
	const query = `UPDATE documents SET s3_status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update s3 status: %w", err)
	}
	return nil
}

// CopyToVersion duplicates a version's document rows onto another version.
// The underlying files are shared; only metadata rows are copied.
func (r *DocumentRepository) CopyToVersion(ctx context.Context, fromVersionID, toVersionID string) error {
	const query = `INSERT INTO documents (id, version_id, name, url, file_path, is_preview, s3_status, uploaded_at)
	SELECT $3, $2, name, url, file_path, is_preview, s3_status, $4 FROM documents WHERE id = $1`

	docs, err := r.ListByVersion(ctx, fromVersionID)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin copy documents: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, doc := range docs {
		if _, err := tx.ExecContext(ctx, query, doc.ID, toVersionID, uuid.NewString(), now); err != nil {
			return fmt.Errorf("copy document %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}
