package dto

// CreateOnderdeelRequest adds an assessment component to a version.
type CreateOnderdeelRequest struct {
	Onderdeel string `json:"onderdeel" validate:"required"`
}

// UpdateOnderdeelRequest renames an assessment component.
type UpdateOnderdeelRequest struct {
	Onderdeel string `json:"onderdeel" validate:"required"`
}

// CreateCriteriaRequest adds a criterion to a component. Levels are created
// as empty placeholders matching the version's rubric level count.
type CreateCriteriaRequest struct {
	Criteria string `json:"criteria"`
}

// UpdateCriteriaRequest updates a criterion's text.
type UpdateCriteriaRequest struct {
	Criteria string `json:"criteria" validate:"required"`
}

// UpdateLevelRequest sets the free-text value of one rubric level.
type UpdateLevelRequest struct {
	Value string `json:"value"`
}

// SetPreviewRequest flags a document as the version's preview.
type SetPreviewRequest struct {
	IsPreview bool `json:"is_preview"`
}
