package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

func sqlNoRows() error { return sql.ErrNoRows }

type productLookupStub struct {
	products map[string]*models.ExamProduct
}

func (s *productLookupStub) GetByID(ctx context.Context, id string) (*models.ExamProduct, error) {
	product, ok := s.products[id]
	if !ok {
		return nil, sqlNoRows()
	}
	return product, nil
}

type versionRepoStub struct {
	versions map[string]*models.Version
	enabled  map[string]bool
}

func newVersionRepoStub() *versionRepoStub {
	return &versionRepoStub{versions: map[string]*models.Version{}, enabled: map[string]bool{}}
}

func (s *versionRepoStub) Create(ctx context.Context, version *models.Version) error {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	s.versions[version.ID] = version
	return nil
}

func (s *versionRepoStub) GetByID(ctx context.Context, id string) (*models.Version, error) {
	version, ok := s.versions[id]
	if !ok {
		return nil, sqlNoRows()
	}
	copied := *version
	return &copied, nil
}

func (s *versionRepoStub) ListByProduct(ctx context.Context, productID string) ([]models.Version, error) {
	var out []models.Version
	for _, v := range s.versions {
		if v.ProductID == productID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (s *versionRepoStub) GetLatest(ctx context.Context, productID string) (*models.Version, error) {
	for _, v := range s.versions {
		if v.ProductID == productID && v.IsLatest {
			copied := *v
			return &copied, nil
		}
	}
	return nil, sqlNoRows()
}

func (s *versionRepoStub) Update(ctx context.Context, version *models.Version) error {
	s.versions[version.ID] = version
	return nil
}

func (s *versionRepoStub) SetEnabled(ctx context.Context, id string, enabled bool) error {
	s.enabled[id] = enabled
	if v, ok := s.versions[id]; ok {
		v.IsEnabled = enabled
	}
	return nil
}

func (s *versionRepoStub) SetRubricLevels(ctx context.Context, id string, count int) error {
	if v, ok := s.versions[id]; ok {
		v.RubricLevels = count
	}
	return nil
}

func (s *versionRepoStub) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	if v, ok := s.versions[id]; ok {
		v.DeletedAt = &deletedAt
	}
	return nil
}

type assessmentRepoStub struct {
	trees       map[string][]models.AssessmentOnderdeel
	resetCount  int
	resetLabels []string
	copyErr     error
	copied      []string
}

func newAssessmentRepoStub() *assessmentRepoStub {
	return &assessmentRepoStub{trees: map[string][]models.AssessmentOnderdeel{}}
}

func (s *assessmentRepoStub) ListTreeByVersion(ctx context.Context, versionID string) ([]models.AssessmentOnderdeel, error) {
	return s.trees[versionID], nil
}

func (s *assessmentRepoStub) CreateOnderdeel(ctx context.Context, item *models.AssessmentOnderdeel) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	s.trees[item.VersionID] = append(s.trees[item.VersionID], *item)
	return nil
}

func (s *assessmentRepoStub) GetOnderdeel(ctx context.Context, id string) (*models.AssessmentOnderdeel, error) {
	for _, tree := range s.trees {
		for _, o := range tree {
			if o.ID == id {
				copied := o
				return &copied, nil
			}
		}
	}
	return nil, sqlNoRows()
}

func (s *assessmentRepoStub) UpdateOnderdeel(ctx context.Context, id, name string) error { return nil }
func (s *assessmentRepoStub) DeleteOnderdeel(ctx context.Context, id string) error      { return nil }

func (s *assessmentRepoStub) CreateCriteria(ctx context.Context, criteria *models.AssessmentCriteria, levels []models.AssessmentLevel) error {
	if criteria.ID == "" {
		criteria.ID = uuid.NewString()
	}
	return nil
}

func (s *assessmentRepoStub) UpdateCriteria(ctx context.Context, id, text string) error { return nil }
func (s *assessmentRepoStub) DeleteCriteria(ctx context.Context, id string) error       { return nil }
func (s *assessmentRepoStub) UpdateLevel(ctx context.Context, criteriaID, levelID, value string) error {
	return nil
}

func (s *assessmentRepoStub) ResetLevels(ctx context.Context, versionID string, count int, labels []string) error {
	s.resetCount = count
	s.resetLabels = labels
	return nil
}

func (s *assessmentRepoStub) CopyTree(ctx context.Context, fromVersionID, toVersionID string) error {
	if s.copyErr != nil {
		return s.copyErr
	}
	s.copied = append(s.copied, toVersionID)
	return nil
}

type documentRepoStub struct {
	docs    map[string][]models.Document
	copyErr error
}

func newDocumentRepoStub() *documentRepoStub {
	return &documentRepoStub{docs: map[string][]models.Document{}}
}

func (s *documentRepoStub) ListByVersion(ctx context.Context, versionID string) ([]models.Document, error) {
	return s.docs[versionID], nil
}

func (s *documentRepoStub) CopyToVersion(ctx context.Context, fromVersionID, toVersionID string) error {
	if s.copyErr != nil {
		return s.copyErr
	}
	s.docs[toVersionID] = append([]models.Document{}, s.docs[fromVersionID]...)
	return nil
}

type auditorStub struct {
	logs []models.AuditLog
}

func (s *auditorStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, *log)
	return nil
}

func newProductServiceForTest(t *testing.T) (*ProductService, *productLookupStub, *versionRepoStub, *assessmentRepoStub, *documentRepoStub) {
	t.Helper()
	products := &productLookupStub{products: map[string]*models.ExamProduct{
		"prod-1": {ID: "prod-1", Code: "BWI-2026", Title: "Bouw, wonen en interieur", Credits: 6, Cohort: "2026-2027"},
	}}
	versions := newVersionRepoStub()
	assessments := newAssessmentRepoStub()
	documents := newDocumentRepoStub()
	svc := NewProductService(products, versions, assessments, documents, &auditorStub{}, nil, zap.NewNop())
	return svc, products, versions, assessments, documents
}

func filledTree() []models.AssessmentOnderdeel {
	return []models.AssessmentOnderdeel{{
		ID:        "ond-1",
		VersionID: "ver-1",
		Onderdeel: "Voorbereiding",
		Criteria: []models.AssessmentCriteria{{
			ID:       "cri-1",
			Criteria: "Werkt volgens plan",
			Levels: []models.AssessmentLevel{
				{ID: "lvl-1", Label: "Onvoldoende", Value: "Werkt zonder plan"},
				{ID: "lvl-2", Label: "Voldoende", Value: "Volgt het plan grotendeels"},
			},
		}},
	}}
}

func TestChangeRubricLevelsRequiresConfirmWhenFilled(t *testing.T) {
	svc, _, versions, assessments, _ := newProductServiceForTest(t)
	versions.versions["ver-1"] = &models.Version{ID: "ver-1", ProductID: "prod-1", RubricLevels: 2}
	assessments.trees["ver-1"] = filledTree()

	_, err := svc.ChangeRubricLevels(context.Background(), "ver-1", dto.ChangeRubricLevelsRequest{RubricLevels: 3}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDestructiveUnconfirmed.Code, appErrors.FromError(err).Code)
	assert.Zero(t, assessments.resetCount)
}

func TestChangeRubricLevelsConfirmedResetsWithLabels(t *testing.T) {
	svc, _, versions, assessments, _ := newProductServiceForTest(t)
	versions.versions["ver-1"] = &models.Version{ID: "ver-1", ProductID: "prod-1", RubricLevels: 2}
	assessments.trees["ver-1"] = filledTree()

	version, err := svc.ChangeRubricLevels(context.Background(), "ver-1", dto.ChangeRubricLevelsRequest{RubricLevels: 3, Confirm: true}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 3, version.RubricLevels)
	assert.Equal(t, 3, assessments.resetCount)
	assert.Equal(t, []string{"Onvoldoende", "Voldoende", "Goed"}, assessments.resetLabels)
}

func TestChangeRubricLevelsEmptyTreeNeedsNoConfirm(t *testing.T) {
	svc, _, versions, assessments, _ := newProductServiceForTest(t)
	versions.versions["ver-1"] = &models.Version{ID: "ver-1", ProductID: "prod-1", RubricLevels: 4}

	_, err := svc.ChangeRubricLevels(context.Background(), "ver-1", dto.ChangeRubricLevelsRequest{RubricLevels: 6}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Onvoldoende", "Voldoende", "Goed", "Uitstekend", "Uitmuntend", "Uitzonderlijk"}, assessments.resetLabels)
}

func TestChangeRubricLevelsSameCountIsNoop(t *testing.T) {
	svc, _, versions, assessments, _ := newProductServiceForTest(t)
	versions.versions["ver-1"] = &models.Version{ID: "ver-1", ProductID: "prod-1", RubricLevels: 4}
	assessments.trees["ver-1"] = filledTree()

	version, err := svc.ChangeRubricLevels(context.Background(), "ver-1", dto.ChangeRubricLevelsRequest{RubricLevels: 4}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 4, version.RubricLevels)
	assert.Zero(t, assessments.resetCount)
}

func TestCreateVersionDuplicatesLatest(t *testing.T) {
	svc, _, versions, assessments, documents := newProductServiceForTest(t)
	versions.versions["ver-1"] = &models.Version{ID: "ver-1", ProductID: "prod-1", Version: "1.0", IsLatest: true, RubricLevels: 3}
	documents.docs["ver-1"] = []models.Document{{ID: "doc-1", Name: "examen.pdf"}}

	summary, err := svc.CreateVersion(context.Background(), "prod-1", dto.CreateVersionRequest{Version: "2.0", DuplicateLatest: true})
	require.NoError(t, err)
	require.NotNil(t, summary.Version)
	assert.False(t, summary.Partial)
	assert.Len(t, summary.Steps, 3)
	assert.Equal(t, 3, summary.Version.RubricLevels)
	assert.Contains(t, assessments.copied, summary.Version.ID)
	assert.Len(t, documents.docs[summary.Version.ID], 1)
}

func TestCreateVersionDuplicationPartialFailureKeepsVersion(t *testing.T) {
	svc, _, versions, _, documents := newProductServiceForTest(t)
	versions.versions["ver-1"] = &models.Version{ID: "ver-1", ProductID: "prod-1", Version: "1.0", IsLatest: true, RubricLevels: 4}
	documents.copyErr = errors.New("disk full")

	summary, err := svc.CreateVersion(context.Background(), "prod-1", dto.CreateVersionRequest{Version: "2.0", DuplicateLatest: true})
	require.NoError(t, err)
	assert.True(t, summary.Partial)
	require.Len(t, summary.Steps, 3)
	assert.True(t, summary.Steps[0].OK)
	assert.False(t, summary.Steps[1].OK)
	assert.True(t, summary.Steps[2].OK)
	assert.Contains(t, versions.versions, summary.Version.ID)
}

func TestSetVersionEnabledRejectsIncompleteVersion(t *testing.T) {
	svc, _, versions, assessments, _ := newProductServiceForTest(t)
	versions.versions["ver-1"] = &models.Version{ID: "ver-1", ProductID: "prod-1", RubricLevels: 2}
	assessments.trees["ver-1"] = nil

	_, err := svc.SetVersionEnabled(context.Background(), "ver-1", true)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotPublicationReady.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "beoordelingsonderdeel")
	assert.Contains(t, appErr.Message, "documenten")
}

func TestSetVersionEnabledAcceptsCompleteVersion(t *testing.T) {
	svc, _, versions, assessments, documents := newProductServiceForTest(t)
	versions.versions["ver-1"] = &models.Version{
		ID: "ver-1", ProductID: "prod-1", Version: "1.0", ReleaseDate: "2026-09-01", RubricLevels: 2,
	}
	assessments.trees["ver-1"] = filledTree()
	documents.docs["ver-1"] = []models.Document{
		{ID: "d1", Name: "examen.pdf"},
		{ID: "d2", Name: "instructie.pdf"},
		{ID: "d3", Name: "bijlage.pdf"},
	}

	version, err := svc.SetVersionEnabled(context.Background(), "ver-1", true)
	require.NoError(t, err)
	assert.True(t, version.IsEnabled)
	assert.True(t, versions.enabled["ver-1"])
}

func TestDeleteVersionMissing(t *testing.T) {
	svc, _, _, _, _ := newProductServiceForTest(t)
	err := svc.DeleteVersion(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
