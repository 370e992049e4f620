package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/exgen-nl/exgen-api/internal/repository"
	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

type catalogProductRepository interface {
	Create(ctx context.Context, product *models.ExamProduct) error
	GetByID(ctx context.Context, id string) (*models.ExamProduct, error)
	List(ctx context.Context, filter models.ProductFilter, includeDrafts bool) ([]models.ExamProduct, int, error)
	Update(ctx context.Context, product *models.ExamProduct) error
	UpdateStatus(ctx context.Context, id string, status models.ProductStatus) error
	Delete(ctx context.Context, id string) error
}

type catalogVersionRepository interface {
	ListByProduct(ctx context.Context, productID string) ([]models.Version, error)
}

type catalogDocumentRepository interface {
	ListByVersion(ctx context.Context, versionID string) ([]models.Document, error)
}

type catalogPurchaser interface {
	SpendOnProduct(ctx context.Context, userID, productID string, credits int) (*models.Purchase, error)
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
}

type catalogAuditor interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

const catalogCachePattern = "catalog:list:*"

type catalogListPayload struct {
	Products []models.ExamProduct `json:"products"`
	Total    int                  `json:"total"`
}

// CatalogService serves the storefront product listing and admin product
// management. Listings are cached per query in Redis; any product mutation
// invalidates the whole listing namespace.
type CatalogService struct {
	products  catalogProductRepository
	versions  catalogVersionRepository
	documents catalogDocumentRepository
	credits   catalogPurchaser
	auditor   catalogAuditor
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(products catalogProductRepository, versions catalogVersionRepository, documents catalogDocumentRepository, credits catalogPurchaser, auditor catalogAuditor, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &CatalogService{
		products:  products,
		versions:  versions,
		documents: documents,
		credits:   credits,
		auditor:   auditor,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// List returns a page of catalog products. Schools only see available
// products; admins can filter on draft status. The boolean reports whether
// the page came from cache.
func (s *CatalogService) List(ctx context.Context, query dto.CatalogQuery, role models.UserRole) ([]models.ExamProduct, *models.Pagination, bool, error) {
	includeDrafts := role == models.RoleAdmin

	filter := models.ProductFilter{
		Search: strings.TrimSpace(query.Search),
		Filter: query.Filter,
		Page:   query.Page,
		Limit:  query.Limit,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 10
	}
	if filter.Filter == "" {
		filter.Filter = models.CatalogFilterAll
	}

	cacheKey := fmt.Sprintf("catalog:list:%d:%d:%s:%s:%t", filter.Page, filter.Limit, filter.Search, filter.Filter, includeDrafts)
	var cached catalogListPayload
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		pagination := &models.Pagination{Page: filter.Page, PageSize: filter.Limit, TotalCount: cached.Total}
		return cached.Products, pagination, true, nil
	}

	products, total, err := s.products.List(ctx, filter, includeDrafts)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list products")
	}

	if err := s.cache.Set(ctx, cacheKey, catalogListPayload{Products: products, Total: total}, s.cacheTTL); err != nil {
		s.logger.Warn("cache catalog listing", zap.Error(err))
	}

	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.Limit, TotalCount: total}
	return products, pagination, false, nil
}

// Get returns one product with its versions and their documents. Schools
// cannot see draft products, deleted versions, or disabled versions.
func (s *CatalogService) Get(ctx context.Context, id string, role models.UserRole) (*models.ExamProduct, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}

	isAdmin := role == models.RoleAdmin
	if !isAdmin && product.Status != models.ProductStatusAvailable {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "product niet gevonden")
	}

	versions, err := s.versions.ListByProduct(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load versions")
	}

	for _, version := range versions {
		if version.DeletedAt != nil {
			continue
		}
		if !isAdmin && !version.IsEnabled {
			continue
		}
		docs, err := s.documents.ListByVersion(ctx, version.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
		}
		if !isAdmin {
			docs = previewOnly(docs)
		}
		version.Documents = docs
		product.Versions = append(product.Versions, version)
	}

	return product, nil
}

// Create registers a new draft product.
func (s *CatalogService) Create(ctx context.Context, req dto.CreateProductRequest) (*models.ExamProduct, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid product payload")
	}

	product := &models.ExamProduct{
		Code:        strings.TrimSpace(req.Code),
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Credits:     req.Credits,
		Cohort:      strings.TrimSpace(req.Cohort),
		Status:      models.ProductStatusDraft,
	}
	if err := s.products.Create(ctx, product); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create product")
	}

	s.invalidateListings(ctx)
	return product, nil
}

// Update saves top-level product fields.
func (s *CatalogService) Update(ctx context.Context, id string, req dto.UpdateProductRequest) (*models.ExamProduct, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid product payload")
	}

	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}

	product.Code = strings.TrimSpace(req.Code)
	product.Title = strings.TrimSpace(req.Title)
	product.Description = strings.TrimSpace(req.Description)
	product.Credits = req.Credits
	product.Cohort = strings.TrimSpace(req.Cohort)

	if err := s.products.Update(ctx, product); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update product")
	}

	s.invalidateListings(ctx)
	return product, nil
}

// UpdateStatus switches a product between draft and available. Moving to
// available requires the product to pass the publication readiness check.
func (s *CatalogService) UpdateStatus(ctx context.Context, id string, req dto.UpdateProductStatusRequest) (*models.ExamProduct, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	product, err := s.Get(ctx, id, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	if req.Status == models.ProductStatusAvailable && !product.IsReadyForPublication() {
		return nil, appErrors.Clone(appErrors.ErrNotPublicationReady, "product voldoet niet aan de publicatie-eisen")
	}

	if err := s.products.UpdateStatus(ctx, id, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update product status")
	}

	product.Status = req.Status
	s.invalidateListings(ctx)
	return product, nil
}

// Delete removes a product entirely.
func (s *CatalogService) Delete(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "product niet gevonden")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete product")
	}
	s.invalidateListings(ctx)
	return nil
}

// Purchase spends credits on a product for the calling school. The terms
// checkbox must be ticked; drafts cannot be bought.
func (s *CatalogService) Purchase(ctx context.Context, userID string, req dto.PurchaseRequest) (*models.Purchase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid purchase payload")
	}
	if !req.AcceptedTerms {
		return nil, appErrors.Clone(appErrors.ErrValidation, "de voorwaarden moeten geaccepteerd worden")
	}

	product, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}
	if product.Status != models.ProductStatusAvailable {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "product niet gevonden")
	}

	purchase, err := s.credits.SpendOnProduct(ctx, userID, product.ID, product.Credits)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientBalance):
			return nil, appErrors.Clone(appErrors.ErrInsufficientCredits, fmt.Sprintf("onvoldoende credits: %d nodig", product.Credits))
		case errors.Is(err, repository.ErrAlreadyPurchased):
			return nil, appErrors.Clone(appErrors.ErrAlreadyPurchased, "product is al gekocht")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete purchase")
		}
	}

	if err := s.auditor.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionPurchase,
		Resource:   "product",
		ResourceID: &product.ID,
		NewValues:  []byte(fmt.Sprintf(`{"credits":%d}`, product.Credits)),
	}); err != nil {
		s.logger.Warn("failed to record purchase audit log", zap.Error(err))
	}

	return purchase, nil
}

// HasPurchased reports whether the user owns the product.
func (s *CatalogService) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	owned, err := s.credits.HasPurchased(ctx, userID, productID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check purchase")
	}
	return owned, nil
}

func (s *CatalogService) invalidateListings(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, catalogCachePattern); err != nil {
		s.logger.Warn("invalidate catalog cache", zap.Error(err))
	}
}

func previewOnly(docs []models.Document) []models.Document {
	var out []models.Document
	for _, d := range docs {
		if d.IsPreview {
			out = append(out, d)
		}
	}
	return out
}
