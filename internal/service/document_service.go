package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

type documentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	ListByVersion(ctx context.Context, versionID string) ([]models.Document, error)
	Delete(ctx context.Context, id string) error
	SetPreview(ctx context.Context, id string, isPreview bool) error
	UpdateS3Status(ctx context.Context, id string, status models.S3Status) error
}

type documentVersionLookup interface {
	GetByID(ctx context.Context, id string) (*models.Version, error)
}

type documentStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type documentSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
}

// DocumentPolicy bounds uploads.
type DocumentPolicy struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// DocumentUpload carries one incoming file.
type DocumentUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// DocumentService manages version documents: uploads, the single preview
// flag, storage verification, and signed access URLs.
type DocumentService struct {
	documents documentRepository
	versions  documentVersionLookup
	storage   documentStorage
	signer    documentSigner
	policy    DocumentPolicy
	logger    *zap.Logger
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(documents documentRepository, versions documentVersionLookup, storage documentStorage, signer documentSigner, policy DocumentPolicy, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		documents: documents,
		versions:  versions,
		storage:   storage,
		signer:    signer,
		policy:    policy,
		logger:    logger,
	}
}

// Upload stores an incoming file and registers the document on the version.
// The stored document starts in the checking state until verification runs.
func (s *DocumentService) Upload(ctx context.Context, versionID string, upload DocumentUpload) (*models.Document, error) {
	if _, err := s.versions.GetByID(ctx, versionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "versie niet gevonden")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}

	name := filepath.Base(strings.TrimSpace(upload.Filename))
	if name == "" || name == "." {
		return nil, appErrors.Clone(appErrors.ErrValidation, "bestandsnaam ontbreekt")
	}
	if s.policy.MaxFileSizeBytes > 0 && upload.Size > s.policy.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("bestand is groter dan %d bytes", s.policy.MaxFileSizeBytes))
	}
	if !s.mimeAllowed(upload.ContentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("bestandstype %s is niet toegestaan", upload.ContentType))
	}

	id := uuid.NewString()
	relPath := filepath.Join(versionID, id+"_"+name)
	if _, err := s.storage.SaveStream(relPath, upload.Reader); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}

	doc := &models.Document{
		ID:        id,
		VersionID: versionID,
		Name:      name,
		URL:       fmt.Sprintf("/api/documents/%s/file", id),
		FilePath:  relPath,
		S3Status:  models.S3StatusChecking,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		if cleanupErr := s.storage.Delete(relPath); cleanupErr != nil {
			s.logger.Warn("cleanup orphaned upload", zap.String("path", relPath), zap.Error(cleanupErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register document")
	}
	return doc, nil
}

// List returns the documents of a version.
func (s *DocumentService) List(ctx context.Context, versionID string) ([]models.Document, error) {
	docs, err := s.documents.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

// SetPreview flags a document as the version's preview. At most one document
// per version carries the flag; the repository clears siblings.
func (s *DocumentService) SetPreview(ctx context.Context, id string, isPreview bool) error {
	if err := s.documents.SetPreview(ctx, id, isPreview); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "document niet gevonden")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to flag preview")
	}
	return nil
}

// Delete removes a document row and its stored file.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "document niet gevonden")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	if err := s.documents.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
	}
	if err := s.storage.Delete(doc.FilePath); err != nil {
		s.logger.Warn("delete stored document", zap.String("path", doc.FilePath), zap.Error(err))
	}
	return nil
}

// VerifyStorage re-checks each document of a version against storage and
// updates its status to available or missing.
func (s *DocumentService) VerifyStorage(ctx context.Context, versionID string) ([]models.Document, error) {
	docs, err := s.documents.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}

	for i := range docs {
		status := models.S3StatusAvailable
		file, err := s.storage.Open(docs[i].FilePath)
		if err != nil {
			status = models.S3StatusMissing
		} else {
			file.Close()
		}
		if docs[i].S3Status == status {
			continue
		}
		if err := s.documents.UpdateS3Status(ctx, docs[i].ID, status); err != nil {
			s.logger.Warn("update document status", zap.String("document_id", docs[i].ID), zap.Error(err))
			continue
		}
		docs[i].S3Status = status
	}
	return docs, nil
}

// SignedURL returns a time-limited download token URL for a document.
func (s *DocumentService) SignedURL(ctx context.Context, id string) (string, error) {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "document niet gevonden")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	token, _, err := s.signer.Generate(doc.ID, doc.FilePath)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign document url")
	}
	return fmt.Sprintf("/api/files?token=%s", token), nil
}

func (s *DocumentService) mimeAllowed(contentType string) bool {
	if len(s.policy.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.policy.AllowedMIMEs {
		if strings.EqualFold(strings.TrimSpace(contentType), allowed) {
			return true
		}
	}
	return false
}
