package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	internalmiddleware "github.com/exgen-nl/exgen-api/internal/middleware"
	"github.com/exgen-nl/exgen-api/internal/service"
	"github.com/exgen-nl/exgen-api/pkg/export"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

func TestCatalogRoutesIntegration(t *testing.T) {
	router := buildTestRouter()

	t.Run("listing unauthorized without claims", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/products", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("school sees available products only", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/products", nil)
		req.Header.Set("X-Test-Role", string(models.RoleSchool))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), "BWI-2026")
		require.NotContains(t, resp.Body.String(), "PIE-2027", "draft products stay hidden from schools")
	})

	t.Run("admin sees drafts", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/products", nil)
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), "PIE-2027")
	})

	t.Run("school forbidden on admin create", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/products", bytes.NewBufferString(`{"code":"ZWI-2026","title":"Zorg"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleSchool))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("admin creates draft product", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/products", bytes.NewBufferString(`{"code":"ZWI-2026","title":"Zorgexamen","credits":4}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"status":"draft"`)
	})

	t.Run("purchase without accepted terms fails validation", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/purchases", bytes.NewBufferString(`{"product_id":"prod-1"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleSchool))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("purchase succeeds with accepted terms", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/purchases", bytes.NewBufferString(`{"product_id":"prod-1","accepted_terms":true}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleSchool))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"product_id":"prod-1"`)
	})
}

func TestRubricLevelRouteIntegration(t *testing.T) {
	router := buildTestRouter()

	t.Run("destructive change without confirm conflicts", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPatch, "/versions/ver-1/rubric-levels", bytes.NewBufferString(`{"rubric_levels":3}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusConflict, resp.Code)
		require.Contains(t, resp.Body.String(), "DESTRUCTIVE_UNCONFIRMED")
	})

	t.Run("confirmed change resets levels", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPatch, "/versions/ver-1/rubric-levels", bytes.NewBufferString(`{"rubric_levels":3,"confirm":true}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"rubric_levels":3`)
	})
}

func TestDownloadRoutesIntegration(t *testing.T) {
	router := buildTestRouter()

	t.Run("initiate forbidden without purchase", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/downloads", bytes.NewBufferString(`{"product_id":"prod-2"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleSchool))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("initiate mints a verification code", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/downloads", bytes.NewBufferString(`{"product_id":"prod-1"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleSchool))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Regexp(t, regexp.MustCompile(`"verification_code":"[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}"`), resp.Body.String())
	})

	t.Run("verify traces a minted code back to its product", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/downloads", bytes.NewBufferString(`{"product_id":"prod-1"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleSchool))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		match := regexp.MustCompile(`"verification_code":"([A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4})"`).FindStringSubmatch(resp.Body.String())
		require.Len(t, match, 2)

		req, _ = http.NewRequest(http.MethodPost, "/downloads/verify", bytes.NewBufferString(`{"code":"`+match[1]+`"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleSchool))
		resp = performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"is_valid":true`)
		require.Contains(t, resp.Body.String(), `"product_code":"BWI-2026"`)
	})

	t.Run("verify reports unknown codes invalid", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/downloads/verify", bytes.NewBufferString(`{"code":"ZZZZ-9999"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleSchool))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"is_valid":false`)
	})
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// buildTestRouter wires real services over in-memory stubs behind the same
// middleware chain as production.
func buildTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID: "test-user",
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	products := newIntegrationProductRepo()
	versions := newIntegrationVersionRepo()
	assessments := newIntegrationAssessmentRepo()
	documents := &integrationDocumentRepo{}
	purchaser := newIntegrationPurchaser()
	auditor := &integrationAuditor{}

	cache := service.NewCacheService(nil, nil, time.Minute, zap.NewNop(), false)
	catalogService := service.NewCatalogService(products, versions, documents, purchaser, auditor, cache, time.Minute, nil, zap.NewNop())
	productService := service.NewProductService(products, versions, assessments, documents, auditor, nil, zap.NewNop())
	downloadService := service.NewDownloadService(
		&integrationDownloadRepo{}, purchaser, products, versions, assessments, documents,
		integrationPathStorage{root: "/data/documents"}, integrationPathStorage{root: "/data/packages"},
		integrationSigner{}, &integrationArchiver{}, integrationScoreSheets{}, auditor, nil, zap.NewNop(),
	)

	catalogHandler := NewCatalogHandler(catalogService)
	versionHandler := NewVersionHandler(productService)
	downloadHandler := NewDownloadHandler(downloadService, nil, nil)

	secured := router.Group("")
	secured.GET("/products", catalogHandler.List)
	secured.POST("/purchases", catalogHandler.Purchase)
	secured.POST("/downloads", downloadHandler.Initiate)
	secured.POST("/downloads/verify", downloadHandler.Verify)

	admin := secured.Group("", internalmiddleware.RequireRoles(models.RoleAdmin))
	admin.POST("/products", catalogHandler.Create)
	admin.PATCH("/versions/:id/rubric-levels", versionHandler.ChangeRubricLevels)

	return router
}

type integrationProductRepo struct {
	products map[string]*models.ExamProduct
}

func newIntegrationProductRepo() *integrationProductRepo {
	return &integrationProductRepo{products: map[string]*models.ExamProduct{
		"prod-1": {ID: "prod-1", Code: "BWI-2026", Title: "Keukenrenovatie", Description: "Praktijkexamen", Credits: 6, Cohort: "2026-2027", Status: models.ProductStatusAvailable},
		"prod-2": {ID: "prod-2", Code: "PIE-2027", Title: "Installatietechniek", Status: models.ProductStatusDraft},
	}}
}

func (r *integrationProductRepo) Create(ctx context.Context, product *models.ExamProduct) error {
	product.ID = "prod-new"
	r.products[product.ID] = product
	return nil
}

func (r *integrationProductRepo) GetByID(ctx context.Context, id string) (*models.ExamProduct, error) {
	product, ok := r.products[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *product
	return &copied, nil
}

func (r *integrationProductRepo) List(ctx context.Context, filter models.ProductFilter, includeDrafts bool) ([]models.ExamProduct, int, error) {
	var out []models.ExamProduct
	for _, product := range r.products {
		if !includeDrafts && product.Status != models.ProductStatusAvailable {
			continue
		}
		out = append(out, *product)
	}
	return out, len(out), nil
}

func (r *integrationProductRepo) Update(ctx context.Context, product *models.ExamProduct) error {
	r.products[product.ID] = product
	return nil
}

func (r *integrationProductRepo) UpdateStatus(ctx context.Context, id string, status models.ProductStatus) error {
	if product, ok := r.products[id]; ok {
		product.Status = status
	}
	return nil
}

func (r *integrationProductRepo) Delete(ctx context.Context, id string) error {
	delete(r.products, id)
	return nil
}

type integrationVersionRepo struct {
	versions map[string]*models.Version
}

func newIntegrationVersionRepo() *integrationVersionRepo {
	return &integrationVersionRepo{versions: map[string]*models.Version{
		"ver-1": {ID: "ver-1", ProductID: "prod-1", Version: "1.2", RubricLevels: 2, IsLatest: true, IsEnabled: true},
	}}
}

func (r *integrationVersionRepo) Create(ctx context.Context, version *models.Version) error {
	version.ID = "ver-new"
	r.versions[version.ID] = version
	return nil
}

func (r *integrationVersionRepo) GetByID(ctx context.Context, id string) (*models.Version, error) {
	version, ok := r.versions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *version
	return &copied, nil
}

func (r *integrationVersionRepo) ListByProduct(ctx context.Context, productID string) ([]models.Version, error) {
	var out []models.Version
	for _, version := range r.versions {
		if version.ProductID == productID {
			out = append(out, *version)
		}
	}
	return out, nil
}

func (r *integrationVersionRepo) GetLatest(ctx context.Context, productID string) (*models.Version, error) {
	for _, version := range r.versions {
		if version.ProductID == productID && version.IsLatest {
			copied := *version
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *integrationVersionRepo) Update(ctx context.Context, version *models.Version) error {
	r.versions[version.ID] = version
	return nil
}

func (r *integrationVersionRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if version, ok := r.versions[id]; ok {
		version.IsEnabled = enabled
	}
	return nil
}

func (r *integrationVersionRepo) SetRubricLevels(ctx context.Context, id string, count int) error {
	if version, ok := r.versions[id]; ok {
		version.RubricLevels = count
	}
	return nil
}

func (r *integrationVersionRepo) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	if version, ok := r.versions[id]; ok {
		version.DeletedAt = &deletedAt
	}
	return nil
}

type integrationAssessmentRepo struct {
	trees map[string][]models.AssessmentOnderdeel
}

func newIntegrationAssessmentRepo() *integrationAssessmentRepo {
	return &integrationAssessmentRepo{trees: map[string][]models.AssessmentOnderdeel{
		"ver-1": {{
			ID: "ond-1", VersionID: "ver-1", Onderdeel: "Voorbereiding",
			Criteria: []models.AssessmentCriteria{{
				ID: "cri-1", Criteria: "Werkt volgens plan",
				Levels: []models.AssessmentLevel{
					{ID: "lvl-1", Label: "Onvoldoende", Value: "Werkt zonder plan"},
					{ID: "lvl-2", Label: "Voldoende", Value: "Volgt het plan"},
				},
			}},
		}},
	}}
}

func (r *integrationAssessmentRepo) ListTreeByVersion(ctx context.Context, versionID string) ([]models.AssessmentOnderdeel, error) {
	return r.trees[versionID], nil
}

func (r *integrationAssessmentRepo) CreateOnderdeel(ctx context.Context, item *models.AssessmentOnderdeel) error {
	return nil
}

func (r *integrationAssessmentRepo) GetOnderdeel(ctx context.Context, id string) (*models.AssessmentOnderdeel, error) {
	return nil, sql.ErrNoRows
}

func (r *integrationAssessmentRepo) UpdateOnderdeel(ctx context.Context, id, name string) error { return nil }
func (r *integrationAssessmentRepo) DeleteOnderdeel(ctx context.Context, id string) error      { return nil }

func (r *integrationAssessmentRepo) CreateCriteria(ctx context.Context, criteria *models.AssessmentCriteria, levels []models.AssessmentLevel) error {
	return nil
}

func (r *integrationAssessmentRepo) UpdateCriteria(ctx context.Context, id, text string) error { return nil }
func (r *integrationAssessmentRepo) DeleteCriteria(ctx context.Context, id string) error       { return nil }

func (r *integrationAssessmentRepo) UpdateLevel(ctx context.Context, criteriaID, levelID, value string) error {
	return nil
}

func (r *integrationAssessmentRepo) ResetLevels(ctx context.Context, versionID string, count int, labels []string) error {
	return nil
}

func (r *integrationAssessmentRepo) CopyTree(ctx context.Context, fromVersionID, toVersionID string) error {
	return nil
}

type integrationDocumentRepo struct{}

func (r *integrationDocumentRepo) ListByVersion(ctx context.Context, versionID string) ([]models.Document, error) {
	return nil, nil
}

func (r *integrationDocumentRepo) CopyToVersion(ctx context.Context, fromVersionID, toVersionID string) error {
	return nil
}

type integrationPurchaser struct {
	purchased map[string]bool
}

func newIntegrationPurchaser() *integrationPurchaser {
	return &integrationPurchaser{purchased: map[string]bool{"test-user/prod-1": true}}
}

func (p *integrationPurchaser) SpendOnProduct(ctx context.Context, userID, productID string, credits int) (*models.Purchase, error) {
	return &models.Purchase{ID: "pur-1", UserID: userID, ProductID: productID, Credits: credits}, nil
}

func (p *integrationPurchaser) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	return p.purchased[userID+"/"+productID], nil
}

type integrationAuditor struct{}

func (a *integrationAuditor) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}

type integrationDownloadRepo struct {
	downloads []*models.Download
}

func (r *integrationDownloadRepo) Create(ctx context.Context, download *models.Download) error {
	download.ID = "dl-1"
	r.downloads = append(r.downloads, download)
	return nil
}

func (r *integrationDownloadRepo) GetByID(ctx context.Context, id string) (*models.Download, error) {
	for _, download := range r.downloads {
		if download.ID == id {
			copied := *download
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *integrationDownloadRepo) GetByCode(ctx context.Context, code string) (*models.Download, error) {
	for _, download := range r.downloads {
		if download.VerificationCode == code {
			copied := *download
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *integrationDownloadRepo) ListByUser(ctx context.Context, userID string) ([]models.Download, error) {
	return nil, nil
}

func (r *integrationDownloadRepo) MarkPackaged(ctx context.Context, id, filePath string, packagedAt time.Time) error {
	return nil
}

func (r *integrationDownloadRepo) MarkFailed(ctx context.Context, id string) error { return nil }

type integrationPathStorage struct {
	root string
}

func (s integrationPathStorage) Path(filename string) string { return s.root + "/" + filename }

type integrationSigner struct{}

func (integrationSigner) Generate(id, relPath string) (string, time.Time, error) {
	return "tok-" + id, time.Now().Add(time.Hour), nil
}

type integrationArchiver struct{}

func (a *integrationArchiver) Write(destPath string, entries []export.ArchiveEntry) (int64, error) {
	return 1024, nil
}

type integrationScoreSheets struct{}

func (integrationScoreSheets) Render(data export.ScoreSheetData) ([]byte, error) {
	return []byte("%PDF-1.4"), nil
}
