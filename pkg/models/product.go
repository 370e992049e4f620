package models

import (
	"strings"
	"time"
)

// ProductStatus enumerates the catalog visibility states of an exam product.
type ProductStatus string

const (
	ProductStatusDraft     ProductStatus = "draft"
	ProductStatusAvailable ProductStatus = "available"
)

// ExamProduct represents one sellable exam instrument in the catalog.
type ExamProduct struct {
	ID          string        `db:"id" json:"id"`
	Code        string        `db:"code" json:"code"`
	Title       string        `db:"title" json:"title"`
	Description string        `db:"description" json:"description"`
	Credits     int           `db:"credits" json:"credits"`
	Cohort      string        `db:"cohort" json:"cohort"`
	Status      ProductStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`

	Versions []Version `db:"-" json:"versions,omitempty"`
}

// ProductFilter captures the catalog listing parameters.
type ProductFilter struct {
	Search string
	Filter string
	Page   int
	Limit  int
}

// Catalog listing filter values as used by the storefront.
const (
	CatalogFilterAll       = "alles"
	CatalogFilterAvailable = "beschikbaar"
	CatalogFilterDraft     = "concept"
)

// Version is one release of an exam product. Exactly one version per product
// carries IsLatest; only enabled versions are download-visible.
type Version struct {
	ID           string     `db:"id" json:"id"`
	ProductID    string     `db:"product_id" json:"product_id"`
	Version      string     `db:"version" json:"version"`
	ReleaseDate  string     `db:"release_date" json:"release_date"`
	IsLatest     bool       `db:"is_latest" json:"is_latest"`
	IsEnabled    bool       `db:"is_enabled" json:"is_enabled"`
	RubricLevels int        `db:"rubric_levels" json:"rubric_levels"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`

	Onderdelen []AssessmentOnderdeel `db:"-" json:"assessment_onderdelen,omitempty"`
	Documents  []Document            `db:"-" json:"documents,omitempty"`
}

// S3Status reflects the verification state of a stored document.
type S3Status string

const (
	S3StatusAvailable S3Status = "available"
	S3StatusMissing   S3Status = "missing"
	S3StatusChecking  S3Status = "checking"
)

// Document is an uploaded file attached to a version. At most one document
// per version may be flagged as preview.
type Document struct {
	ID         string    `db:"id" json:"id"`
	VersionID  string    `db:"version_id" json:"version_id"`
	Name       string    `db:"name" json:"name"`
	URL        string    `db:"url" json:"url"`
	FilePath   string    `db:"file_path" json:"-"`
	IsPreview  bool      `db:"is_preview" json:"is_preview"`
	S3Status   S3Status  `db:"s3_status" json:"s3_status"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// MinimumDocuments is the number of documents a version needs before it can
// be enabled for download.
const MinimumDocuments = 3

// IsReadyForPublication reports whether the product may transition to the
// available status: basic fields filled, at least one version, and at least
// one enabled version.
func (p *ExamProduct) IsReadyForPublication() bool {
	if strings.TrimSpace(p.Code) == "" ||
		strings.TrimSpace(p.Title) == "" ||
		strings.TrimSpace(p.Description) == "" {
		return false
	}
	if p.Credits <= 0 || strings.TrimSpace(p.Cohort) == "" {
		return false
	}
	if len(p.Versions) == 0 {
		return false
	}
	for _, v := range p.Versions {
		if v.IsEnabled {
			return true
		}
	}
	return false
}
