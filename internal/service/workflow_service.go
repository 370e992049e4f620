package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/exgen-nl/exgen-api/internal/repository"
	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/export"
	"github.com/exgen-nl/exgen-api/pkg/jobs"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

type workflowRepository interface {
	ListSteps(ctx context.Context) ([]models.WorkflowStep, error)
	CreateStep(ctx context.Context, step *models.WorkflowStep) error
	UpdateStep(ctx context.Context, step *models.WorkflowStep) error
	DeleteStep(ctx context.Context, id string) error
	ReorderSteps(ctx context.Context, stepIDs []string) error
	CreateJob(ctx context.Context, job *models.GenerationJob) error
	GetJob(ctx context.Context, id string) (*models.GenerationJob, error)
	UpdateJob(ctx context.Context, id string, params repository.UpdateJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.GenerationJob, error)
}

type workflowProductLookup interface {
	GetByID(ctx context.Context, id string) (*models.ExamProduct, error)
}

type workflowDispatcher interface {
	Enqueue(job jobs.Job) error
}

// WorkflowService manages the configurable AI generation pipeline and its
// background jobs. Steps run in position order; disabled steps are skipped.
type WorkflowService struct {
	repo      workflowRepository
	products  workflowProductLookup
	queue     workflowDispatcher
	enabled   bool
	validator *validator.Validate
	logger    *zap.Logger
}

// NewWorkflowService constructs a WorkflowService.
func NewWorkflowService(repo workflowRepository, products workflowProductLookup, queue workflowDispatcher, enabled bool, validate *validator.Validate, logger *zap.Logger) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{
		repo:      repo,
		products:  products,
		queue:     queue,
		enabled:   enabled,
		validator: validate,
		logger:    logger,
	}
}

// ListSteps returns the pipeline in position order.
func (s *WorkflowService) ListSteps(ctx context.Context) ([]models.WorkflowStep, error) {
	steps, err := s.repo.ListSteps(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list workflow steps")
	}
	return steps, nil
}

// CreateStep appends a step to the end of the pipeline.
func (s *WorkflowService) CreateStep(ctx context.Context, req dto.CreateWorkflowStepRequest) (*models.WorkflowStep, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid step payload")
	}
	step := &models.WorkflowStep{
		Name:      strings.TrimSpace(req.Name),
		Prompt:    strings.TrimSpace(req.Prompt),
		IsEnabled: true,
	}
	if err := s.repo.CreateStep(ctx, step); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workflow step")
	}
	return step, nil
}

// UpdateStep saves a step's name, prompt, and enabled flag.
func (s *WorkflowService) UpdateStep(ctx context.Context, id string, req dto.UpdateWorkflowStepRequest) (*models.WorkflowStep, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid step payload")
	}
	step := &models.WorkflowStep{
		ID:        id,
		Name:      strings.TrimSpace(req.Name),
		Prompt:    strings.TrimSpace(req.Prompt),
		IsEnabled: req.IsEnabled,
	}
	if err := s.repo.UpdateStep(ctx, step); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflowstap niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update workflow step")
	}
	return step, nil
}

// DeleteStep removes a step from the pipeline.
func (s *WorkflowService) DeleteStep(ctx context.Context, id string) error {
	if err := s.repo.DeleteStep(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "workflowstap niet gevonden")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete workflow step")
	}
	return nil
}

// ReorderSteps persists a drag-and-drop ordering. The ID list must cover
// every step exactly once.
func (s *WorkflowService) ReorderSteps(ctx context.Context, req dto.ReorderWorkflowStepsRequest) ([]models.WorkflowStep, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reorder payload")
	}

	existing, err := s.repo.ListSteps(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list workflow steps")
	}
	if len(existing) != len(req.StepIDs) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "de volgorde moet elke stap precies één keer bevatten")
	}
	known := make(map[string]bool, len(existing))
	for _, step := range existing {
		known[step.ID] = true
	}
	for _, id := range req.StepIDs {
		if !known[id] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "de volgorde moet elke stap precies één keer bevatten")
		}
		delete(known, id)
	}

	if err := s.repo.ReorderSteps(ctx, req.StepIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reorder workflow steps")
	}
	return s.ListSteps(ctx)
}

// RequestGeneration validates the request, persists a queued job, and hands
// it to the worker pool.
func (s *WorkflowService) RequestGeneration(ctx context.Context, req dto.GenerationRequest, actorID string) (*dto.GenerationJobResponse, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "documentgeneratie is uitgeschakeld")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}

	if _, err := s.products.GetByID(ctx, req.ProductID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}

	job := &models.GenerationJob{
		Params:    models.GenerationJobParams{ProductID: req.ProductID, VersionID: req.VersionID, Subject: req.Subject},
		Status:    models.GenerationStatusQueued,
		Progress:  0,
		CreatedBy: actorID,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create generation job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "generation"}); err != nil {
		status := models.GenerationStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.UpdateJob(ctx, job.ID, repository.UpdateJobParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation job")
	}

	return &dto.GenerationJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job progress to polling clients. Schools only see their
// own jobs.
func (s *WorkflowService) GetStatus(ctx context.Context, id, actorID string, role models.UserRole) (*dto.GenerationStatusResponse, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "generatie niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation job")
	}
	if role != models.RoleAdmin && job.CreatedBy != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "generatie hoort bij een andere gebruiker")
	}

	resp := &dto.GenerationStatusResponse{
		ID:       job.ID,
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.ResultURL != nil {
		resp.ResultURL = job.ResultURL
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.ErrorMessage = job.ErrorMessage
	}
	return resp, nil
}

// RecoverPendingJobs replays queued jobs after a process restart.
func (s *WorkflowService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued generation jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "generation"}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
		}
	}
}

type workflowDocRenderer interface {
	Render(data export.WorkflowDocData) ([]byte, error)
}

type workflowOutputStorage interface {
	Save(filename string, data []byte) (string, error)
}

type workflowOutputSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
}

// GenerationWorker bridges queue jobs to the step pipeline. Each enabled
// step contributes one section to the output document; progress advances
// per completed step.
type GenerationWorker struct {
	repo       workflowRepository
	products   workflowProductLookup
	renderer   workflowDocRenderer
	storage    workflowOutputStorage
	signer     workflowOutputSigner
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
}

// NewGenerationWorker constructs a worker.
func NewGenerationWorker(repo workflowRepository, products workflowProductLookup, renderer workflowDocRenderer, storage workflowOutputStorage, signer workflowOutputSigner, metrics *MetricsService, maxRetries int, logger *zap.Logger) *GenerationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &GenerationWorker{
		repo:       repo,
		products:   products,
		renderer:   renderer,
		storage:    storage,
		signer:     signer,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes a queue job.
func (w *GenerationWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.GenerationStatusProcessing
	progress := 10
	if err := w.repo.UpdateJob(ctx, job.ID, repository.UpdateJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	url, err := w.generate(ctx, record)
	if err != nil {
		msg := err.Error()
		if job.Attempt >= w.maxRetries {
			failed := models.GenerationStatusFailed
			progress = 100
			now := time.Now().UTC()
			if updateErr := w.repo.UpdateJob(ctx, job.ID, repository.UpdateJobParams{
				Status:       &failed,
				Progress:     &progress,
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark job failed", "job_id", job.ID, "error", updateErr)
			}
			w.metrics.RecordGenerationJob(failed)
		} else {
			queued := models.GenerationStatusQueued
			reset := 0
			if updateErr := w.repo.UpdateJob(ctx, job.ID, repository.UpdateJobParams{
				Status:       &queued,
				Progress:     &reset,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark job queued", "job_id", job.ID, "error", updateErr)
			}
		}
		return err
	}

	finished := models.GenerationStatusFinished
	progress = 100
	now := time.Now().UTC()
	clear := ""
	if err := w.repo.UpdateJob(ctx, job.ID, repository.UpdateJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", job.ID, "error", err)
		return err
	}
	w.metrics.RecordGenerationJob(finished)
	return nil
}

func (w *GenerationWorker) generate(ctx context.Context, job *models.GenerationJob) (string, error) {
	product, err := w.products.GetByID(ctx, job.Params.ProductID)
	if err != nil {
		return "", fmt.Errorf("load product for generation: %w", err)
	}

	steps, err := w.repo.ListSteps(ctx)
	if err != nil {
		return "", fmt.Errorf("load workflow steps: %w", err)
	}

	data := export.WorkflowDocData{
		ProductCode:  product.Code,
		ProductTitle: product.Title,
		Subject:      job.Params.Subject,
	}
	total := 0
	for _, step := range steps {
		if step.IsEnabled {
			total++
		}
	}
	if total == 0 {
		return "", fmt.Errorf("no enabled workflow steps")
	}

	done := 0
	for _, step := range steps {
		if !step.IsEnabled {
			continue
		}
		data.Sections = append(data.Sections, export.WorkflowSection{
			Title: step.Name,
			Body:  renderPrompt(step.Prompt, product, job.Params.Subject),
		})
		done++
		progress := 10 + (80*done)/total
		if err := w.repo.UpdateJob(ctx, job.ID, repository.UpdateJobParams{Progress: &progress}); err != nil {
			w.logger.Sugar().Warnw("failed to advance job progress", "job_id", job.ID, "error", err)
		}
	}

	pdf, err := w.renderer.Render(data)
	if err != nil {
		return "", fmt.Errorf("render generation output: %w", err)
	}

	relPath := fmt.Sprintf("%s/%s.pdf", job.ID, product.Code)
	if _, err := w.storage.Save(relPath, pdf); err != nil {
		return "", fmt.Errorf("store generation output: %w", err)
	}

	token, _, err := w.signer.Generate(job.ID, relPath)
	if err != nil {
		return "", fmt.Errorf("sign generation output: %w", err)
	}
	return fmt.Sprintf("/api/workflows/files?token=%s", token), nil
}

// renderPrompt expands the placeholders admins may use in step prompts.
func renderPrompt(prompt string, product *models.ExamProduct, subject string) string {
	replacer := strings.NewReplacer(
		"{{product}}", product.Title,
		"{{code}}", product.Code,
		"{{cohort}}", product.Cohort,
		"{{onderwerp}}", subject,
	)
	return replacer.Replace(prompt)
}
