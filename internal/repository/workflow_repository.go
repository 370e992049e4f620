package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/exgen-nl/exgen-api/pkg/models"
)

// WorkflowRepository handles workflow steps and generation jobs.
type WorkflowRepository struct {
	db *sqlx.DB
}

// NewWorkflowRepository constructs the repository.
func NewWorkflowRepository(db *sqlx.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

const stepColumns = `id, name, prompt, position, is_enabled, created_at, updated_at`

// ListSteps returns every workflow step in position order.
func (r *WorkflowRepository) ListSteps(ctx context.Context) ([]models.WorkflowStep, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_steps ORDER BY position ASC`, stepColumns)
	var steps []models.WorkflowStep
	if err := r.db.SelectContext(ctx, &steps, query); err != nil {
		return nil, fmt.Errorf("list workflow steps: %w", err)
	}
	return steps, nil
}

// CreateStep appends a step at the end of the pipeline.
func (r *WorkflowRepository) CreateStep(ctx context.Context, step *models.WorkflowStep) error {
	if step.ID == "" {
		step.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	step.CreatedAt = now
	step.UpdatedAt = now
	const query = `INSERT INTO workflow_steps (id, name, prompt, position, is_enabled, created_at, updated_at)
	VALUES ($1, $2, $3, COALESCE((SELECT MAX(position) + 1 FROM workflow_steps), 0), $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, step.ID, step.Name, step.Prompt, step.IsEnabled, step.CreatedAt, step.UpdatedAt); err != nil {
		return fmt.Errorf("create workflow step: %w", err)
	}
	return nil
}

// UpdateStep persists name, prompt, and enabled flag edits.
func (r *WorkflowRepository) UpdateStep(ctx context.Context, step *models.WorkflowStep) error {
	step.UpdatedAt = time.Now().UTC()
	const query = `UPDATE workflow_steps SET name = :name, prompt = :prompt, is_enabled = :is_enabled, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, step)
	if err != nil {
		return fmt.Errorf("update workflow step: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check step update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteStep removes a step.
func (r *WorkflowRepository) DeleteStep(ctx context.Context, id string) error {
	const query = `DELETE FROM workflow_steps WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete workflow step: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check step delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReorderSteps persists a drag-and-drop ordering atomically. Positions are
// assigned contiguously from zero in the given ID order.
func (r *WorkflowRepository) ReorderSteps(ctx context.Context, stepIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder steps: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `UPDATE workflow_steps SET position = $2, updated_at = $3 WHERE id = $1`
	now := time.Now().UTC()
	for i, id := range stepIDs {
		res, err := tx.ExecContext(ctx, query, id, i, now)
		if err != nil {
			return fmt.Errorf("reorder step %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check reorder rows: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
	}

	return tx.Commit()
}

const jobColumns = `id, params, status, progress, result_url, created_by, created_at, finished_at, error_message`

// CreateJob persists a queued generation job.
func (r *WorkflowRepository) CreateJob(ctx context.Context, job *models.GenerationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO generation_jobs (id, params, status, progress, result_url, created_by, created_at, finished_at, error_message)
	VALUES (:id, :params, :status, :progress, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create generation job: %w", err)
	}
	return nil
}

// GetJob retrieves one generation job.
func (r *WorkflowRepository) GetJob(ctx context.Context, id string) (*models.GenerationJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM generation_jobs WHERE id = $1`, jobColumns)
	var job models.GenerationJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get generation job: %w", err)
	}
	return &job, nil
}

// UpdateJobParams holds the mutable fields of a generation job.
type UpdateJobParams struct {
	Status       *models.GenerationStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// UpdateJob applies the provided fields to a job row.
func (r *WorkflowRepository) UpdateJob(ctx context.Context, id string, params UpdateJobParams) error {
	sets := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	args = append(args, id)

	if params.Status != nil {
		args = append(args, *params.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.Progress != nil {
		args = append(args, *params.Progress)
		sets = append(sets, fmt.Sprintf("progress = $%d", len(args)))
	}
	if params.ResultURL != nil {
		args = append(args, *params.ResultURL)
		sets = append(sets, fmt.Sprintf("result_url = $%d", len(args)))
	}
	if params.ErrorMessage != nil {
		args = append(args, *params.ErrorMessage)
		sets = append(sets, fmt.Sprintf("error_message = $%d", len(args)))
	}
	if params.FinishedAt != nil {
		args = append(args, *params.FinishedAt)
		sets = append(sets, fmt.Sprintf("finished_at = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE generation_jobs SET %s WHERE id = $1", strings.Join(sets, ", "))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update generation job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check job update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListQueued returns jobs awaiting processing, used for queue recovery on
// startup.
func (r *WorkflowRepository) ListQueued(ctx context.Context, limit int) ([]models.GenerationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM generation_jobs WHERE status = $1 ORDER BY created_at ASC LIMIT %d`, jobColumns, limit)
	var jobs []models.GenerationJob
	if err := r.db.SelectContext(ctx, &jobs, query, models.GenerationStatusQueued); err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}
	return jobs, nil
}
