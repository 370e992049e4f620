package dto

import "github.com/exgen-nl/exgen-api/pkg/models"

// CatalogQuery mirrors the storefront listing parameters.
type CatalogQuery struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Search string `form:"search"`
	Filter string `form:"filter"`
}

// CreateProductRequest payload for the admin inline creation row.
type CreateProductRequest struct {
	Code        string `json:"code" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Credits     int    `json:"credits" validate:"gte=0"`
	Cohort      string `json:"cohort"`
}

// UpdateProductRequest payload for saving top-level product fields.
type UpdateProductRequest struct {
	Code        string `json:"code" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Credits     int    `json:"credits" validate:"gte=0"`
	Cohort      string `json:"cohort"`
}

// UpdateProductStatusRequest switches a product between draft and available.
type UpdateProductStatusRequest struct {
	Status models.ProductStatus `json:"status" validate:"required,oneof=draft available"`
}

// PurchaseRequest confirms a credit-based purchase. The storefront requires
// ticking the terms checkbox before the call is made.
type PurchaseRequest struct {
	ProductID     string `json:"product_id" validate:"required"`
	AcceptedTerms bool   `json:"accepted_terms" validate:"required"`
}

// CreateVersionRequest creates a version, optionally duplicating the latest
// version's documents and assessment tree.
type CreateVersionRequest struct {
	Version         string `json:"version" validate:"required"`
	ReleaseDate     string `json:"release_date"`
	DuplicateLatest bool   `json:"duplicate_latest"`
}

// UpdateVersionRequest payload for version field edits.
type UpdateVersionRequest struct {
	Version     *string `json:"version,omitempty"`
	ReleaseDate *string `json:"release_date,omitempty"`
}

// UpdateVersionStatusRequest toggles download visibility.
type UpdateVersionStatusRequest struct {
	IsEnabled bool `json:"is_enabled"`
}

// ChangeRubricLevelsRequest changes the rubric tier count of a version.
// Confirm must be set when existing level content would be wiped.
type ChangeRubricLevelsRequest struct {
	RubricLevels int  `json:"rubric_levels" validate:"required,gte=2,lte=6"`
	Confirm      bool `json:"confirm"`
}

// DuplicationStepResult reports one step of a best-effort version copy.
type DuplicationStepResult struct {
	Step  string `json:"step"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DuplicationSummary folds the three copy steps into one response. A partial
// failure leaves the created version in place; nothing is rolled back.
type DuplicationSummary struct {
	Version *models.Version         `json:"version"`
	Steps   []DuplicationStepResult `json:"steps"`
	Partial bool                    `json:"partial"`
}
