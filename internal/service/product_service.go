package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

type productVersionRepository interface {
	Create(ctx context.Context, version *models.Version) error
	GetByID(ctx context.Context, id string) (*models.Version, error)
	ListByProduct(ctx context.Context, productID string) ([]models.Version, error)
	GetLatest(ctx context.Context, productID string) (*models.Version, error)
	Update(ctx context.Context, version *models.Version) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	SetRubricLevels(ctx context.Context, id string, count int) error
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
}

type productAssessmentRepository interface {
	ListTreeByVersion(ctx context.Context, versionID string) ([]models.AssessmentOnderdeel, error)
	CreateOnderdeel(ctx context.Context, item *models.AssessmentOnderdeel) error
	GetOnderdeel(ctx context.Context, id string) (*models.AssessmentOnderdeel, error)
	UpdateOnderdeel(ctx context.Context, id, name string) error
	DeleteOnderdeel(ctx context.Context, id string) error
	CreateCriteria(ctx context.Context, criteria *models.AssessmentCriteria, levels []models.AssessmentLevel) error
	UpdateCriteria(ctx context.Context, id, text string) error
	DeleteCriteria(ctx context.Context, id string) error
	UpdateLevel(ctx context.Context, criteriaID, levelID, value string) error
	ResetLevels(ctx context.Context, versionID string, count int, labels []string) error
	CopyTree(ctx context.Context, fromVersionID, toVersionID string) error
}

type productDocumentRepository interface {
	ListByVersion(ctx context.Context, versionID string) ([]models.Document, error)
	CopyToVersion(ctx context.Context, fromVersionID, toVersionID string) error
}

type productLookup interface {
	GetByID(ctx context.Context, id string) (*models.ExamProduct, error)
}

type productAuditor interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Duplication step names reported to the admin UI.
const (
	DuplicationStepVersion    = "versie aanmaken"
	DuplicationStepDocuments  = "documenten kopiëren"
	DuplicationStepAssessment = "beoordeling kopiëren"
)

// DefaultRubricLevels is used for fresh versions without a predecessor.
const DefaultRubricLevels = 4

// ProductService manages versions and the assessment editor behind a
// product. Version duplication is best effort: a failed copy step leaves
// the new version in place and is reported per step.
type ProductService struct {
	products    productLookup
	versions    productVersionRepository
	assessments productAssessmentRepository
	documents   productDocumentRepository
	auditor     productAuditor
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewProductService constructs a ProductService.
func NewProductService(products productLookup, versions productVersionRepository, assessments productAssessmentRepository, documents productDocumentRepository, auditor productAuditor, validate *validator.Validate, logger *zap.Logger) *ProductService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{
		products:    products,
		versions:    versions,
		assessments: assessments,
		documents:   documents,
		auditor:     auditor,
		validator:   validate,
		logger:      logger,
	}
}

// GetVersion loads one version with its assessment tree and documents.
func (s *ProductService) GetVersion(ctx context.Context, id string) (*models.Version, error) {
	version, err := s.loadVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachTree(ctx, version); err != nil {
		return nil, err
	}
	return version, nil
}

// CreateVersion adds a version to a product. With DuplicateLatest set the
// documents and assessment tree of the current latest version are copied
// into the new one; each copy step is reported individually and a failed
// step does not roll back the version.
func (s *ProductService) CreateVersion(ctx context.Context, productID string, req dto.CreateVersionRequest) (*dto.DuplicationSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid version payload")
	}

	if _, err := s.products.GetByID(ctx, productID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}

	var predecessor *models.Version
	if req.DuplicateLatest {
		latest, err := s.versions.GetLatest(ctx, productID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest version")
		}
		predecessor = latest
	}

	rubricLevels := DefaultRubricLevels
	if predecessor != nil {
		rubricLevels = predecessor.RubricLevels
	}

	version := &models.Version{
		ProductID:    productID,
		Version:      strings.TrimSpace(req.Version),
		ReleaseDate:  strings.TrimSpace(req.ReleaseDate),
		IsLatest:     true,
		IsEnabled:    false,
		RubricLevels: rubricLevels,
	}
	if err := s.versions.Create(ctx, version); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create version")
	}

	summary := &dto.DuplicationSummary{
		Version: version,
		Steps:   []dto.DuplicationStepResult{{Step: DuplicationStepVersion, OK: true}},
	}

	if predecessor != nil {
		docStep := dto.DuplicationStepResult{Step: DuplicationStepDocuments, OK: true}
		if err := s.documents.CopyToVersion(ctx, predecessor.ID, version.ID); err != nil {
			s.logger.Warn("copy documents during duplication", zap.String("version_id", version.ID), zap.Error(err))
			docStep.OK = false
			docStep.Error = "documenten konden niet gekopieerd worden"
			summary.Partial = true
		}
		summary.Steps = append(summary.Steps, docStep)

		treeStep := dto.DuplicationStepResult{Step: DuplicationStepAssessment, OK: true}
		if err := s.assessments.CopyTree(ctx, predecessor.ID, version.ID); err != nil {
			s.logger.Warn("copy assessment tree during duplication", zap.String("version_id", version.ID), zap.Error(err))
			treeStep.OK = false
			treeStep.Error = "beoordeling kon niet gekopieerd worden"
			summary.Partial = true
		}
		summary.Steps = append(summary.Steps, treeStep)
	}

	return summary, nil
}

// UpdateVersion saves version fields.
func (s *ProductService) UpdateVersion(ctx context.Context, id string, req dto.UpdateVersionRequest) (*models.Version, error) {
	version, err := s.loadVersion(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Version != nil {
		version.Version = strings.TrimSpace(*req.Version)
	}
	if req.ReleaseDate != nil {
		version.ReleaseDate = strings.TrimSpace(*req.ReleaseDate)
	}

	if err := s.versions.Update(ctx, version); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update version")
	}
	return version, nil
}

// SetVersionEnabled toggles download visibility. Enabling requires the
// version to satisfy every publication requirement; the rejection lists all
// unmet requirements.
func (s *ProductService) SetVersionEnabled(ctx context.Context, id string, enabled bool) (*models.Version, error) {
	version, err := s.loadVersion(ctx, id)
	if err != nil {
		return nil, err
	}

	if enabled {
		if err := s.attachTree(ctx, version); err != nil {
			return nil, err
		}
		if issues := version.PublicationIssues(); len(issues) > 0 {
			return nil, appErrors.Clone(appErrors.ErrNotPublicationReady, strings.Join(issues, "; "))
		}
	}

	if err := s.versions.SetEnabled(ctx, id, enabled); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle version")
	}
	version.IsEnabled = enabled
	return version, nil
}

// DeleteVersion soft-deletes a version. The newest surviving version is
// promoted to latest.
func (s *ProductService) DeleteVersion(ctx context.Context, id string) error {
	if _, err := s.loadVersion(ctx, id); err != nil {
		return err
	}
	if err := s.versions.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete version")
	}
	return nil
}

// ChangeRubricLevels switches a version to a different rubric tier count.
// When any level already carries content the change wipes the whole level
// table and therefore requires explicit confirmation. Every criterion is
// re-seeded with empty levels labelled for the new count.
func (s *ProductService) ChangeRubricLevels(ctx context.Context, id string, req dto.ChangeRubricLevelsRequest, actorID string) (*models.Version, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rubric payload")
	}

	version, err := s.loadVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if version.RubricLevels == req.RubricLevels {
		return version, nil
	}

	tree, err := s.assessments.ListTreeByVersion(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment tree")
	}

	if models.HasFilledLevels(tree) && !req.Confirm {
		return nil, appErrors.Clone(appErrors.ErrDestructiveUnconfirmed, "wijziging wist bestaande rubric-inhoud en vereist bevestiging")
	}

	labels := models.RubricLabels(req.RubricLevels)
	if labels == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "aantal rubric-niveaus moet tussen 2 en 6 liggen")
	}

	if err := s.versions.SetRubricLevels(ctx, id, req.RubricLevels); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update rubric level count")
	}
	if err := s.assessments.ResetLevels(ctx, id, req.RubricLevels, labels); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset rubric levels")
	}

	if err := s.auditor.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionProductChange,
		Resource:   "version",
		ResourceID: &id,
		NewValues:  []byte(`{"rubric_levels":"reset"}`),
	}); err != nil {
		s.logger.Warn("failed to record rubric change audit log", zap.Error(err))
	}

	version.RubricLevels = req.RubricLevels
	return version, nil
}

// AddOnderdeel appends an assessment component to a version.
func (s *ProductService) AddOnderdeel(ctx context.Context, versionID string, req dto.CreateOnderdeelRequest) (*models.AssessmentOnderdeel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid onderdeel payload")
	}
	if _, err := s.loadVersion(ctx, versionID); err != nil {
		return nil, err
	}

	item := &models.AssessmentOnderdeel{
		VersionID: versionID,
		Onderdeel: strings.TrimSpace(req.Onderdeel),
	}
	if err := s.assessments.CreateOnderdeel(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create onderdeel")
	}
	return item, nil
}

// RenameOnderdeel updates a component's name.
func (s *ProductService) RenameOnderdeel(ctx context.Context, id string, req dto.UpdateOnderdeelRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid onderdeel payload")
	}
	if err := s.assessments.UpdateOnderdeel(ctx, id, strings.TrimSpace(req.Onderdeel)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "onderdeel niet gevonden")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update onderdeel")
	}
	return nil
}

// RemoveOnderdeel deletes a component and everything below it.
func (s *ProductService) RemoveOnderdeel(ctx context.Context, id string) error {
	if err := s.assessments.DeleteOnderdeel(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "onderdeel niet gevonden")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete onderdeel")
	}
	return nil
}

// AddCriteria appends a criterion to a component, seeded with empty levels
// matching the version's rubric count.
func (s *ProductService) AddCriteria(ctx context.Context, onderdeelID string, req dto.CreateCriteriaRequest) (*models.AssessmentCriteria, error) {
	onderdeel, err := s.assessments.GetOnderdeel(ctx, onderdeelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "onderdeel niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load onderdeel")
	}

	version, err := s.loadVersion(ctx, onderdeel.VersionID)
	if err != nil {
		return nil, err
	}

	criteria := &models.AssessmentCriteria{
		OnderdeelID: onderdeelID,
		Criteria:    strings.TrimSpace(req.Criteria),
	}
	levels := models.EmptyLevels(version.RubricLevels)
	if err := s.assessments.CreateCriteria(ctx, criteria, levels); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create criteria")
	}
	criteria.Levels = levels
	return criteria, nil
}

// UpdateCriteria saves a criterion's text.
func (s *ProductService) UpdateCriteria(ctx context.Context, id string, req dto.UpdateCriteriaRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid criteria payload")
	}
	if err := s.assessments.UpdateCriteria(ctx, id, strings.TrimSpace(req.Criteria)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "criterium niet gevonden")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update criteria")
	}
	return nil
}

// RemoveCriteria deletes a criterion and its levels.
func (s *ProductService) RemoveCriteria(ctx context.Context, id string) error {
	if err := s.assessments.DeleteCriteria(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "criterium niet gevonden")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete criteria")
	}
	return nil
}

// UpdateLevel sets the free text of one rubric cell.
func (s *ProductService) UpdateLevel(ctx context.Context, criteriaID, levelID string, req dto.UpdateLevelRequest) error {
	if err := s.assessments.UpdateLevel(ctx, criteriaID, levelID, req.Value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "niveau niet gevonden")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update level")
	}
	return nil
}

func (s *ProductService) loadVersion(ctx context.Context, id string) (*models.Version, error) {
	version, err := s.versions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "versie niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}
	if version.DeletedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "versie niet gevonden")
	}
	return version, nil
}

func (s *ProductService) attachTree(ctx context.Context, version *models.Version) error {
	tree, err := s.assessments.ListTreeByVersion(ctx, version.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment tree")
	}
	docs, err := s.documents.ListByVersion(ctx, version.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
	}
	version.Onderdelen = tree
	version.Documents = docs
	return nil
}
