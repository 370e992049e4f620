package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/exgen-nl/exgen-api/internal/repository"
	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/export"
	"github.com/exgen-nl/exgen-api/pkg/jobs"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

type workflowRepoStub struct {
	steps     []models.WorkflowStep
	jobs      map[string]*models.GenerationJob
	reordered []string
}

func newWorkflowRepoStub() *workflowRepoStub {
	return &workflowRepoStub{jobs: map[string]*models.GenerationJob{}}
}

func (s *workflowRepoStub) ListSteps(ctx context.Context) ([]models.WorkflowStep, error) {
	return s.steps, nil
}

func (s *workflowRepoStub) CreateStep(ctx context.Context, step *models.WorkflowStep) error {
	if step.ID == "" {
		step.ID = uuid.NewString()
	}
	step.Position = len(s.steps)
	s.steps = append(s.steps, *step)
	return nil
}

func (s *workflowRepoStub) UpdateStep(ctx context.Context, step *models.WorkflowStep) error {
	return nil
}
func (s *workflowRepoStub) DeleteStep(ctx context.Context, id string) error { return nil }

func (s *workflowRepoStub) ReorderSteps(ctx context.Context, stepIDs []string) error {
	s.reordered = stepIDs
	return nil
}

func (s *workflowRepoStub) CreateJob(ctx context.Context, job *models.GenerationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *workflowRepoStub) GetJob(ctx context.Context, id string) (*models.GenerationJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, sqlNoRows()
	}
	return job, nil
}

func (s *workflowRepoStub) UpdateJob(ctx context.Context, id string, params repository.UpdateJobParams) error {
	job, ok := s.jobs[id]
	if !ok {
		return sqlNoRows()
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (s *workflowRepoStub) ListQueued(ctx context.Context, limit int) ([]models.GenerationJob, error) {
	var out []models.GenerationJob
	for _, job := range s.jobs {
		if job.Status == models.GenerationStatusQueued {
			out = append(out, *job)
		}
	}
	return out, nil
}

type queueStub struct {
	enqueued []jobs.Job
	err      error
}

func (s *queueStub) Enqueue(job jobs.Job) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, job)
	return nil
}

type docRendererStub struct {
	rendered *export.WorkflowDocData
	err      error
}

func (s *docRendererStub) Render(data export.WorkflowDocData) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.rendered = &data
	return []byte("%PDF-1.4"), nil
}

type outputStorageStub struct {
	saved map[string][]byte
}

func (s *outputStorageStub) Save(filename string, data []byte) (string, error) {
	if s.saved == nil {
		s.saved = map[string][]byte{}
	}
	s.saved[filename] = data
	return "/tmp/" + filename, nil
}

type signerStub struct{}

func (signerStub) Generate(id, relPath string) (string, time.Time, error) {
	return "tok-" + id, time.Now().Add(time.Hour), nil
}

func newWorkflowServiceForTest(enabled bool) (*WorkflowService, *workflowRepoStub, *queueStub) {
	repo := newWorkflowRepoStub()
	queue := &queueStub{}
	products := &productLookupStub{products: map[string]*models.ExamProduct{
		"prod-1": {ID: "prod-1", Code: "BWI-2026", Title: "Bouw, wonen en interieur", Cohort: "2026-2027"},
	}}
	svc := NewWorkflowService(repo, products, queue, enabled, nil, zap.NewNop())
	return svc, repo, queue
}

func TestReorderStepsRejectsIncompleteCover(t *testing.T) {
	svc, repo, _ := newWorkflowServiceForTest(true)
	repo.steps = []models.WorkflowStep{
		{ID: "step-1", Name: "Inleiding"},
		{ID: "step-2", Name: "Opdracht"},
	}

	_, err := svc.ReorderSteps(context.Background(), dto.ReorderWorkflowStepsRequest{StepIDs: []string{"step-1"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.ReorderSteps(context.Background(), dto.ReorderWorkflowStepsRequest{StepIDs: []string{"step-1", "step-1"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.reordered)
}

func TestReorderStepsPersistsOrdering(t *testing.T) {
	svc, repo, _ := newWorkflowServiceForTest(true)
	repo.steps = []models.WorkflowStep{
		{ID: "step-1", Name: "Inleiding"},
		{ID: "step-2", Name: "Opdracht"},
	}

	steps, err := svc.ReorderSteps(context.Background(), dto.ReorderWorkflowStepsRequest{StepIDs: []string{"step-2", "step-1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"step-2", "step-1"}, repo.reordered)
	assert.Len(t, steps, 2)
}

func TestRequestGenerationDisabled(t *testing.T) {
	svc, _, queue := newWorkflowServiceForTest(false)

	_, err := svc.RequestGeneration(context.Background(), dto.GenerationRequest{ProductID: "prod-1", Subject: "keukenrenovatie"}, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, queue.enqueued)
}

func TestRequestGenerationQueuesJob(t *testing.T) {
	svc, repo, queue := newWorkflowServiceForTest(true)

	resp, err := svc.RequestGeneration(context.Background(), dto.GenerationRequest{ProductID: "prod-1", Subject: "keukenrenovatie"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusQueued, resp.Status)
	assert.Zero(t, resp.Progress)

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, resp.ID, queue.enqueued[0].ID)
	assert.Equal(t, "generation", queue.enqueued[0].Type)
	assert.Equal(t, "user-1", repo.jobs[resp.ID].CreatedBy)
}

func TestRequestGenerationUnknownProduct(t *testing.T) {
	svc, _, _ := newWorkflowServiceForTest(true)

	_, err := svc.RequestGeneration(context.Background(), dto.GenerationRequest{ProductID: "missing", Subject: "x"}, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRequestGenerationEnqueueFailureMarksJobFailed(t *testing.T) {
	svc, repo, queue := newWorkflowServiceForTest(true)
	queue.err = errors.New("queue stopped")

	_, err := svc.RequestGeneration(context.Background(), dto.GenerationRequest{ProductID: "prod-1", Subject: "x"}, "user-1")
	require.Error(t, err)

	require.Len(t, repo.jobs, 1)
	for _, job := range repo.jobs {
		assert.Equal(t, models.GenerationStatusFailed, job.Status)
		assert.NotNil(t, job.FinishedAt)
	}
}

func TestGetStatusHidesForeignJobs(t *testing.T) {
	svc, repo, _ := newWorkflowServiceForTest(true)
	repo.jobs["job-1"] = &models.GenerationJob{ID: "job-1", Status: models.GenerationStatusProcessing, CreatedBy: "user-1"}

	_, err := svc.GetStatus(context.Background(), "job-1", "user-2", models.RoleSchool)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	resp, err := svc.GetStatus(context.Background(), "job-1", "user-2", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusProcessing, resp.Status)
}

func TestRecoverPendingJobsRequeues(t *testing.T) {
	svc, repo, queue := newWorkflowServiceForTest(true)
	repo.jobs["job-1"] = &models.GenerationJob{ID: "job-1", Status: models.GenerationStatusQueued}
	repo.jobs["job-2"] = &models.GenerationJob{ID: "job-2", Status: models.GenerationStatusFinished}

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "job-1", queue.enqueued[0].ID)
}

func newGenerationWorkerForTest(repo *workflowRepoStub) (*GenerationWorker, *docRendererStub, *outputStorageStub) {
	renderer := &docRendererStub{}
	storage := &outputStorageStub{}
	products := &productLookupStub{products: map[string]*models.ExamProduct{
		"prod-1": {ID: "prod-1", Code: "BWI-2026", Title: "Bouw, wonen en interieur", Cohort: "2026-2027"},
	}}
	worker := NewGenerationWorker(repo, products, renderer, storage, signerStub{}, NewMetricsService(), 3, zap.NewNop())
	return worker, renderer, storage
}

func TestGenerationWorkerHandleSuccess(t *testing.T) {
	repo := newWorkflowRepoStub()
	repo.steps = []models.WorkflowStep{
		{ID: "step-1", Name: "Inleiding", Prompt: "Schrijf een inleiding over {{onderwerp}} voor {{product}}", IsEnabled: true},
		{ID: "step-2", Name: "Uitgeschakeld", Prompt: "overslaan", IsEnabled: false},
		{ID: "step-3", Name: "Opdracht", Prompt: "Opdracht voor cohort {{cohort}}", IsEnabled: true},
	}
	repo.jobs["job-1"] = &models.GenerationJob{
		ID:     "job-1",
		Params: models.GenerationJobParams{ProductID: "prod-1", Subject: "keukenrenovatie"},
		Status: models.GenerationStatusQueued,
	}
	worker, renderer, storage := newGenerationWorkerForTest(repo)

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Type: "generation", Attempt: 1})
	require.NoError(t, err)

	job := repo.jobs["job-1"]
	assert.Equal(t, models.GenerationStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultURL)
	assert.Equal(t, "/api/workflows/files?token=tok-job-1", *job.ResultURL)
	assert.NotNil(t, job.FinishedAt)

	require.NotNil(t, renderer.rendered)
	require.Len(t, renderer.rendered.Sections, 2)
	assert.Equal(t, "Schrijf een inleiding over keukenrenovatie voor Bouw, wonen en interieur", renderer.rendered.Sections[0].Body)
	assert.Equal(t, "Opdracht voor cohort 2026-2027", renderer.rendered.Sections[1].Body)
	assert.Contains(t, storage.saved, "job-1/BWI-2026.pdf")
}

func TestGenerationWorkerHandleRetriesBeforeFailing(t *testing.T) {
	repo := newWorkflowRepoStub()
	repo.jobs["job-1"] = &models.GenerationJob{
		ID:     "job-1",
		Params: models.GenerationJobParams{ProductID: "prod-1", Subject: "x"},
		Status: models.GenerationStatusQueued,
	}
	worker, renderer, _ := newGenerationWorkerForTest(repo)
	renderer.err = errors.New("renderer offline")

	// No enabled steps either way: generate fails before rendering.
	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Type: "generation", Attempt: 1})
	require.Error(t, err)
	job := repo.jobs["job-1"]
	assert.Equal(t, models.GenerationStatusQueued, job.Status)
	assert.Zero(t, job.Progress)
	require.NotNil(t, job.ErrorMessage)

	err = worker.Handle(context.Background(), jobs.Job{ID: "job-1", Type: "generation", Attempt: 3})
	require.Error(t, err)
	assert.Equal(t, models.GenerationStatusFailed, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.NotNil(t, job.FinishedAt)
}
