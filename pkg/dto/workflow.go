package dto

import "github.com/exgen-nl/exgen-api/pkg/models"

// CreateWorkflowStepRequest adds a step to the generation pipeline.
type CreateWorkflowStepRequest struct {
	Name   string `json:"name" validate:"required"`
	Prompt string `json:"prompt" validate:"required"`
}

// UpdateWorkflowStepRequest edits a step's name, prompt, or enabled flag.
type UpdateWorkflowStepRequest struct {
	Name      string `json:"name" validate:"required"`
	Prompt    string `json:"prompt" validate:"required"`
	IsEnabled bool   `json:"is_enabled"`
}

// ReorderWorkflowStepsRequest persists a drag-and-drop reordering. IDs must
// cover every step exactly once.
type ReorderWorkflowStepsRequest struct {
	StepIDs []string `json:"step_ids" validate:"required,min=1"`
}

// GenerationRequest queues an AI document generation job.
type GenerationRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	VersionID string `json:"version_id"`
	Subject   string `json:"subject" validate:"required"`
}

// GenerationJobResponse is the immediate response after queuing.
type GenerationJobResponse struct {
	ID       string                  `json:"id"`
	Status   models.GenerationStatus `json:"status"`
	Progress int                     `json:"progress"`
}

// GenerationStatusResponse is polled by clients at a fixed interval.
type GenerationStatusResponse struct {
	ID           string                  `json:"id"`
	Status       models.GenerationStatus `json:"status"`
	Progress     int                     `json:"progress"`
	ResultURL    *string                 `json:"result_url,omitempty"`
	ErrorMessage *string                 `json:"error_message,omitempty"`
}
