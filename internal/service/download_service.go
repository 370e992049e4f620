package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/export"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

type downloadRepository interface {
	Create(ctx context.Context, download *models.Download) error
	GetByID(ctx context.Context, id string) (*models.Download, error)
	GetByCode(ctx context.Context, code string) (*models.Download, error)
	ListByUser(ctx context.Context, userID string) ([]models.Download, error)
	MarkPackaged(ctx context.Context, id, filePath string, packagedAt time.Time) error
	MarkFailed(ctx context.Context, id string) error
}

type downloadPurchaseChecker interface {
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
}

type downloadProductLookup interface {
	GetByID(ctx context.Context, id string) (*models.ExamProduct, error)
}

type downloadVersionLookup interface {
	GetByID(ctx context.Context, id string) (*models.Version, error)
	GetLatest(ctx context.Context, productID string) (*models.Version, error)
}

type downloadAssessmentLookup interface {
	ListTreeByVersion(ctx context.Context, versionID string) ([]models.AssessmentOnderdeel, error)
}

type downloadDocumentLookup interface {
	ListByVersion(ctx context.Context, versionID string) ([]models.Document, error)
}

type downloadStoragePaths interface {
	Path(filename string) string
}

type downloadSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
}

type downloadArchiver interface {
	Write(destPath string, entries []export.ArchiveEntry) (int64, error)
}

type scoreSheetRenderer interface {
	Render(data export.ScoreSheetData) ([]byte, error)
}

type downloadAuditor interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Characters for verification codes; ambiguous ones are left out.
const verificationAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DownloadService hands packaged exams to schools that bought them. Every
// download gets a unique verification code baked into the score sheet so
// submitted exam work can be traced back to the issuing school.
type DownloadService struct {
	downloads   downloadRepository
	purchases   downloadPurchaseChecker
	products    downloadProductLookup
	versions    downloadVersionLookup
	assessments downloadAssessmentLookup
	documents   downloadDocumentLookup
	docStorage  downloadStoragePaths
	pkgStorage  downloadStoragePaths
	signer      downloadSigner
	archiver    downloadArchiver
	scoreSheets scoreSheetRenderer
	auditor     downloadAuditor
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewDownloadService constructs a DownloadService.
func NewDownloadService(downloads downloadRepository, purchases downloadPurchaseChecker, products downloadProductLookup, versions downloadVersionLookup, assessments downloadAssessmentLookup, documents downloadDocumentLookup, docStorage, pkgStorage downloadStoragePaths, signer downloadSigner, archiver downloadArchiver, scoreSheets scoreSheetRenderer, auditor downloadAuditor, metrics *MetricsService, logger *zap.Logger) *DownloadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DownloadService{
		downloads:   downloads,
		purchases:   purchases,
		products:    products,
		versions:    versions,
		assessments: assessments,
		documents:   documents,
		docStorage:  docStorage,
		pkgStorage:  pkgStorage,
		signer:      signer,
		archiver:    archiver,
		scoreSheets: scoreSheets,
		auditor:     auditor,
		metrics:     metrics,
		logger:      logger,
	}
}

// Initiate registers a download for a purchased product and mints its
// verification code. Without an explicit version the latest enabled version
// is used.
func (s *DownloadService) Initiate(ctx context.Context, userID, productID, versionID string) (*dto.InitiateDownloadResponse, error) {
	owned, err := s.purchases.HasPurchased(ctx, userID, productID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check purchase")
	}
	if !owned {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "product is niet gekocht")
	}

	var version *models.Version
	if versionID != "" {
		version, err = s.versions.GetByID(ctx, versionID)
	} else {
		version, err = s.versions.GetLatest(ctx, productID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "versie niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}
	if version.ProductID != productID || version.DeletedAt != nil || !version.IsEnabled {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "versie niet gevonden")
	}

	code, err := newVerificationCode()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mint verification code")
	}

	download := &models.Download{
		UserID:           userID,
		ProductID:        productID,
		VersionID:        version.ID,
		VerificationCode: code,
		Status:           models.DownloadStatusInitiated,
	}
	if err := s.downloads.Create(ctx, download); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create download")
	}

	return &dto.InitiateDownloadResponse{DownloadID: download.ID, VerificationCode: code}, nil
}

// Package assembles the zip for an initiated download: the version's
// documents plus a generated score sheet carrying the verification code.
// The response links to the archive through a signed URL.
func (s *DownloadService) Package(ctx context.Context, userID, downloadID string) (*dto.DownloadPackageResponse, error) {
	download, err := s.downloads.GetByID(ctx, downloadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "download niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load download")
	}
	if download.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download hoort bij een andere school")
	}

	product, err := s.products.GetByID(ctx, download.ProductID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}
	version, err := s.versions.GetByID(ctx, download.VersionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}

	filename := fmt.Sprintf("%s_%s_%s.zip", product.Code, version.Version, download.VerificationCode)
	if download.Status == models.DownloadStatusPackaged && download.FilePath != nil {
		return s.packageResponse(download.ID, *download.FilePath, filename)
	}

	docs, err := s.documents.ListByVersion(ctx, version.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}

	sheet, err := s.renderScoreSheet(ctx, product, version, download.VerificationCode)
	if err != nil {
		return nil, err
	}

	entries := make([]export.ArchiveEntry, 0, len(docs)+1)
	for _, doc := range docs {
		entries = append(entries, export.ArchiveEntry{
			Name: doc.Name,
			Path: s.docStorage.Path(doc.FilePath),
		})
	}
	entries = append(entries, export.ArchiveEntry{
		Name: fmt.Sprintf("beoordelingsformulier_%s.pdf", download.VerificationCode),
		Data: sheet,
	})

	relPath := fmt.Sprintf("%s/%s", download.ID, filename)
	size, err := s.archiver.Write(s.pkgStorage.Path(relPath), entries)
	if err != nil {
		if markErr := s.downloads.MarkFailed(ctx, download.ID); markErr != nil {
			s.logger.Warn("mark download failed", zap.String("download_id", download.ID), zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assemble package")
	}

	if err := s.downloads.MarkPackaged(ctx, download.ID, relPath, time.Now().UTC()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record package")
	}

	s.metrics.RecordDownload()
	if err := s.auditor.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionDownload,
		Resource:   "download",
		ResourceID: &download.ID,
		NewValues:  []byte(fmt.Sprintf(`{"verification_code":%q}`, download.VerificationCode)),
	}); err != nil {
		s.logger.Warn("failed to record download audit log", zap.Error(err))
	}

	resp, err := s.packageResponse(download.ID, relPath, filename)
	if err != nil {
		return nil, err
	}
	resp.SizeBytes = size
	return resp, nil
}

// ListByUser returns a school's download history.
func (s *DownloadService) ListByUser(ctx context.Context, userID string) ([]models.Download, error) {
	downloads, err := s.downloads.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list downloads")
	}
	return downloads, nil
}

// Verify checks a verification code from a submitted score sheet. Unknown
// codes report invalid rather than erroring; product details are attached so
// the checker can see which exam the code belongs to.
func (s *DownloadService) Verify(ctx context.Context, code string) (*dto.VerifyDownloadResponse, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "verificatiecode ontbreekt")
	}

	download, err := s.downloads.GetByCode(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return &dto.VerifyDownloadResponse{IsValid: false, Status: "onbekend"}, nil
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up verification code")
	}

	resp := &dto.VerifyDownloadResponse{
		IsValid:     true,
		GeneratedAt: &download.CreatedAt,
		Status:      string(download.Status),
	}
	if product, err := s.products.GetByID(ctx, download.ProductID); err == nil {
		resp.ProductCode = product.Code
		resp.ProductTitle = product.Title
	}
	if version, err := s.versions.GetByID(ctx, download.VersionID); err == nil {
		resp.Version = version.Version
	}
	return resp, nil
}

func (s *DownloadService) renderScoreSheet(ctx context.Context, product *models.ExamProduct, version *models.Version, code string) ([]byte, error) {
	tree, err := s.assessments.ListTreeByVersion(ctx, version.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment tree")
	}

	data := export.ScoreSheetData{
		ProductCode:      product.Code,
		ProductTitle:     product.Title,
		Version:          version.Version,
		Cohort:           product.Cohort,
		VerificationCode: code,
		LevelLabels:      models.RubricLabels(version.RubricLevels),
	}
	for _, onderdeel := range tree {
		for _, criteria := range onderdeel.Criteria {
			values := make([]string, len(criteria.Levels))
			for i, level := range criteria.Levels {
				values[i] = level.Value
			}
			data.Criteria = append(data.Criteria, export.ScoreSheetCriteria{
				Onderdeel: onderdeel.Onderdeel,
				Criteria:  criteria.Criteria,
				Levels:    values,
			})
		}
	}

	sheet, err := s.scoreSheets.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render score sheet")
	}
	return sheet, nil
}

func (s *DownloadService) packageResponse(downloadID, relPath, filename string) (*dto.DownloadPackageResponse, error) {
	token, _, err := s.signer.Generate(downloadID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign package url")
	}
	return &dto.DownloadPackageResponse{
		URL:      fmt.Sprintf("/api/downloads/files?token=%s", token),
		Filename: filename,
	}, nil
}

func newVerificationCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	for i, v := range buf {
		if i == 4 {
			b.WriteByte('-')
		}
		b.WriteByte(verificationAlphabet[int(v)%len(verificationAlphabet)])
	}
	return b.String(), nil
}
