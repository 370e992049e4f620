package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/exgen-nl/exgen-api/internal/service"
	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/response"
	"github.com/exgen-nl/exgen-api/pkg/storage"
)

// DocumentHandler manages version documents and serves them through signed
// URLs.
type DocumentHandler struct {
	documents *service.DocumentService
	storage   *storage.LocalStorage
	signer    *storage.SignedURLSigner
}

// NewDocumentHandler constructs handler.
func NewDocumentHandler(documents *service.DocumentService, store *storage.LocalStorage, signer *storage.SignedURLSigner) *DocumentHandler {
	return &DocumentHandler{documents: documents, storage: store, signer: signer}
}

// Upload godoc
// @Summary Upload a document to a version
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Version ID"
// @Param file formData file true "Document file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /versions/{id}/documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "bestand ontbreekt"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to open upload"))
		return
	}
	defer file.Close()

	doc, err := h.documents.Upload(c.Request.Context(), c.Param("id"), service.DocumentUpload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Reader:      file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// List godoc
// @Summary List documents of a version
// @Tags Documents
// @Produce json
// @Param id path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Router /versions/{id}/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// SetPreview godoc
// @Summary Flag a document as preview
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.SetPreviewRequest true "Preview payload"
// @Success 204 {object} response.Envelope
// @Router /documents/{id}/preview [patch]
func (h *DocumentHandler) SetPreview(c *gin.Context) {
	var req dto.SetPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid preview payload"))
		return
	}

	if err := h.documents.SetPreview(c.Request.Context(), c.Param("id"), req.IsPreview); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 204 {object} response.Envelope
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// VerifyStorage godoc
// @Summary Re-check storage presence of a version's documents
// @Tags Documents
// @Produce json
// @Param id path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Router /versions/{id}/documents/verify [post]
func (h *DocumentHandler) VerifyStorage(c *gin.Context) {
	docs, err := h.documents.VerifyStorage(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// SignedURL godoc
// @Summary Mint a signed download URL for a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/url [get]
func (h *DocumentHandler) SignedURL(c *gin.Context) {
	url, err := h.documents.SignedURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"url": url}, nil)
}

// ServeFile streams a stored file referenced by a signed token.
func (h *DocumentHandler) ServeFile(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}

	_, relPath, _, err := h.signer.Parse(token, false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token"))
		return
	}

	path := h.storage.Path(relPath)
	c.FileAttachment(path, filepath.Base(relPath))
}
