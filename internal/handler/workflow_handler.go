package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/exgen-nl/exgen-api/internal/service"
	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/response"
	"github.com/exgen-nl/exgen-api/pkg/storage"
)

// WorkflowHandler manages the AI generation pipeline and its jobs.
type WorkflowHandler struct {
	workflows *service.WorkflowService
	storage   *storage.LocalStorage
	signer    *storage.SignedURLSigner
}

// NewWorkflowHandler constructs handler.
func NewWorkflowHandler(workflows *service.WorkflowService, store *storage.LocalStorage, signer *storage.SignedURLSigner) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, storage: store, signer: signer}
}

// ListSteps godoc
// @Summary Generation pipeline in position order
// @Tags Workflows
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /workflows/steps [get]
func (h *WorkflowHandler) ListSteps(c *gin.Context) {
	steps, err := h.workflows.ListSteps(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, steps, nil)
}

// CreateStep godoc
// @Summary Append a step to the pipeline
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body dto.CreateWorkflowStepRequest true "Step payload"
// @Success 201 {object} response.Envelope
// @Router /workflows/steps [post]
func (h *WorkflowHandler) CreateStep(c *gin.Context) {
	var req dto.CreateWorkflowStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid step payload"))
		return
	}

	step, err := h.workflows.CreateStep(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, step)
}

// UpdateStep godoc
// @Summary Update a pipeline step
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "Step ID"
// @Param payload body dto.UpdateWorkflowStepRequest true "Step payload"
// @Success 200 {object} response.Envelope
// @Router /workflows/steps/{id} [put]
func (h *WorkflowHandler) UpdateStep(c *gin.Context) {
	var req dto.UpdateWorkflowStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid step payload"))
		return
	}

	step, err := h.workflows.UpdateStep(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, step, nil)
}

// DeleteStep godoc
// @Summary Remove a pipeline step
// @Tags Workflows
// @Produce json
// @Param id path string true "Step ID"
// @Success 204 {object} response.Envelope
// @Router /workflows/steps/{id} [delete]
func (h *WorkflowHandler) DeleteStep(c *gin.Context) {
	if err := h.workflows.DeleteStep(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ReorderSteps godoc
// @Summary Persist a drag-and-drop step ordering
// @Description The ID list must cover every step exactly once.
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body dto.ReorderWorkflowStepsRequest true "Ordering payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /workflows/steps/reorder [put]
func (h *WorkflowHandler) ReorderSteps(c *gin.Context) {
	var req dto.ReorderWorkflowStepsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reorder payload"))
		return
	}

	steps, err := h.workflows.ReorderSteps(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, steps, nil)
}

// Generate godoc
// @Summary Queue an AI document generation job
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body dto.GenerationRequest true "Generation payload"
// @Success 202 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /workflows/generate [post]
func (h *WorkflowHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generation payload"))
		return
	}

	job, err := h.workflows.RequestGeneration(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Progress of a generation job
// @Description Polled by clients at a fixed interval until the job finishes or fails.
// @Tags Workflows
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /workflows/generate/{id} [get]
func (h *WorkflowHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	status, err := h.workflows.GetStatus(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// ServeFile streams a generated document referenced by a signed token.
func (h *WorkflowHandler) ServeFile(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}

	_, relPath, _, err := h.signer.Parse(token, false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token"))
		return
	}

	path := h.storage.Path(relPath)
	c.FileAttachment(path, filepath.Base(relPath))
}
