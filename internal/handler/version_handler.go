package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exgen-nl/exgen-api/internal/service"
	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/response"
)

// VersionHandler exposes version management and the assessment editor.
type VersionHandler struct {
	products *service.ProductService
}

// NewVersionHandler constructs handler.
func NewVersionHandler(products *service.ProductService) *VersionHandler {
	return &VersionHandler{products: products}
}

// Get godoc
// @Summary Version detail with assessment tree and documents
// @Tags Versions
// @Produce json
// @Param id path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /versions/{id} [get]
func (h *VersionHandler) Get(c *gin.Context) {
	version, err := h.products.GetVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, version, nil)
}

// Create godoc
// @Summary Add a version to a product
// @Description Optionally duplicates the latest version's documents and assessment tree. Copy steps are best effort and reported per step.
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param payload body dto.CreateVersionRequest true "Version payload"
// @Success 201 {object} response.Envelope
// @Router /products/{id}/versions [post]
func (h *VersionHandler) Create(c *gin.Context) {
	var req dto.CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid version payload"))
		return
	}

	summary, err := h.products.CreateVersion(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, summary)
}

// Update godoc
// @Summary Update version fields
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path string true "Version ID"
// @Param payload body dto.UpdateVersionRequest true "Version payload"
// @Success 200 {object} response.Envelope
// @Router /versions/{id} [put]
func (h *VersionHandler) Update(c *gin.Context) {
	var req dto.UpdateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid version payload"))
		return
	}

	version, err := h.products.UpdateVersion(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, version, nil)
}

// SetEnabled godoc
// @Summary Toggle download visibility of a version
// @Description Enabling requires the version to satisfy all publication requirements; the rejection lists every unmet requirement.
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path string true "Version ID"
// @Param payload body dto.UpdateVersionStatusRequest true "Toggle payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /versions/{id}/status [patch]
func (h *VersionHandler) SetEnabled(c *gin.Context) {
	var req dto.UpdateVersionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	version, err := h.products.SetVersionEnabled(c.Request.Context(), c.Param("id"), req.IsEnabled)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, version, nil)
}

// Delete godoc
// @Summary Soft-delete a version
// @Tags Versions
// @Produce json
// @Param id path string true "Version ID"
// @Success 204 {object} response.Envelope
// @Router /versions/{id} [delete]
func (h *VersionHandler) Delete(c *gin.Context) {
	if err := h.products.DeleteVersion(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ChangeRubricLevels godoc
// @Summary Change the rubric level count of a version
// @Description When levels already carry content this wipes them; the request must then set confirm.
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path string true "Version ID"
// @Param payload body dto.ChangeRubricLevelsRequest true "Rubric payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /versions/{id}/rubric-levels [patch]
func (h *VersionHandler) ChangeRubricLevels(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ChangeRubricLevelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rubric payload"))
		return
	}

	version, err := h.products.ChangeRubricLevels(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, version, nil)
}

// AddOnderdeel godoc
// @Summary Add an assessment component to a version
// @Tags Assessment
// @Accept json
// @Produce json
// @Param id path string true "Version ID"
// @Param payload body dto.CreateOnderdeelRequest true "Onderdeel payload"
// @Success 201 {object} response.Envelope
// @Router /versions/{id}/onderdelen [post]
func (h *VersionHandler) AddOnderdeel(c *gin.Context) {
	var req dto.CreateOnderdeelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid onderdeel payload"))
		return
	}

	item, err := h.products.AddOnderdeel(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// RenameOnderdeel godoc
// @Summary Rename an assessment component
// @Tags Assessment
// @Accept json
// @Produce json
// @Param id path string true "Onderdeel ID"
// @Param payload body dto.UpdateOnderdeelRequest true "Onderdeel payload"
// @Success 204 {object} response.Envelope
// @Router /onderdelen/{id} [put]
func (h *VersionHandler) RenameOnderdeel(c *gin.Context) {
	var req dto.UpdateOnderdeelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid onderdeel payload"))
		return
	}

	if err := h.products.RenameOnderdeel(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveOnderdeel godoc
// @Summary Delete an assessment component and everything below it
// @Tags Assessment
// @Produce json
// @Param id path string true "Onderdeel ID"
// @Success 204 {object} response.Envelope
// @Router /onderdelen/{id} [delete]
func (h *VersionHandler) RemoveOnderdeel(c *gin.Context) {
	if err := h.products.RemoveOnderdeel(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddCriteria godoc
// @Summary Add a criterion to a component
// @Description The criterion is seeded with empty levels matching the version's rubric count.
// @Tags Assessment
// @Accept json
// @Produce json
// @Param id path string true "Onderdeel ID"
// @Param payload body dto.CreateCriteriaRequest true "Criteria payload"
// @Success 201 {object} response.Envelope
// @Router /onderdelen/{id}/criteria [post]
func (h *VersionHandler) AddCriteria(c *gin.Context) {
	var req dto.CreateCriteriaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid criteria payload"))
		return
	}

	criteria, err := h.products.AddCriteria(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, criteria)
}

// UpdateCriteria godoc
// @Summary Update a criterion's text
// @Tags Assessment
// @Accept json
// @Produce json
// @Param id path string true "Criteria ID"
// @Param payload body dto.UpdateCriteriaRequest true "Criteria payload"
// @Success 204 {object} response.Envelope
// @Router /criteria/{id} [put]
func (h *VersionHandler) UpdateCriteria(c *gin.Context) {
	var req dto.UpdateCriteriaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid criteria payload"))
		return
	}

	if err := h.products.UpdateCriteria(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveCriteria godoc
// @Summary Delete a criterion and its levels
// @Tags Assessment
// @Produce json
// @Param id path string true "Criteria ID"
// @Success 204 {object} response.Envelope
// @Router /criteria/{id} [delete]
func (h *VersionHandler) RemoveCriteria(c *gin.Context) {
	if err := h.products.RemoveCriteria(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateLevel godoc
// @Summary Set the text of one rubric cell
// @Tags Assessment
// @Accept json
// @Produce json
// @Param id path string true "Criteria ID"
// @Param levelId path string true "Level ID"
// @Param payload body dto.UpdateLevelRequest true "Level payload"
// @Success 204 {object} response.Envelope
// @Router /criteria/{id}/levels/{levelId} [put]
func (h *VersionHandler) UpdateLevel(c *gin.Context) {
	var req dto.UpdateLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid level payload"))
		return
	}

	if err := h.products.UpdateLevel(c.Request.Context(), c.Param("id"), c.Param("levelId"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
