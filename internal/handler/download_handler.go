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

// DownloadHandler exposes the download flow: initiate, package, history, and
// the signed archive route.
type DownloadHandler struct {
	downloads *service.DownloadService
	storage   *storage.LocalStorage
	signer    *storage.SignedURLSigner
}

// NewDownloadHandler constructs handler.
func NewDownloadHandler(downloads *service.DownloadService, store *storage.LocalStorage, signer *storage.SignedURLSigner) *DownloadHandler {
	return &DownloadHandler{downloads: downloads, storage: store, signer: signer}
}

// Initiate godoc
// @Summary Initiate a download for a purchased product
// @Description Mints the verification code baked into the score sheet. Without an explicit version the latest enabled version is used.
// @Tags Downloads
// @Accept json
// @Produce json
// @Param payload body object true "Download payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /downloads [post]
func (h *DownloadHandler) Initiate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req struct {
		ProductID string `json:"product_id" binding:"required"`
		VersionID string `json:"version_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid download payload"))
		return
	}

	resp, err := h.downloads.Initiate(c.Request.Context(), claims.UserID, req.ProductID, req.VersionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// Package godoc
// @Summary Assemble the zip of an initiated download
// @Description Bundles the version's documents with a generated score sheet carrying the verification code and returns a signed URL.
// @Tags Downloads
// @Produce json
// @Param id path string true "Download ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /downloads/{id}/package [post]
func (h *DownloadHandler) Package(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	resp, err := h.downloads.Package(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Verify godoc
// @Summary Verify a score-sheet verification code
// @Description Reports whether the code traces back to an issued download, with the product it belongs to.
// @Tags Downloads
// @Accept json
// @Produce json
// @Param payload body dto.VerifyDownloadRequest true "Verification payload"
// @Success 200 {object} response.Envelope
// @Router /downloads/verify [post]
func (h *DownloadHandler) Verify(c *gin.Context) {
	var req dto.VerifyDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid verification payload"))
		return
	}

	resp, err := h.downloads.Verify(c.Request.Context(), req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// List godoc
// @Summary Download history of the calling school
// @Tags Downloads
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /downloads [get]
func (h *DownloadHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	downloads, err := h.downloads.ListByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, downloads, nil)
}

// ServeFile streams a packaged archive referenced by a signed token.
func (h *DownloadHandler) ServeFile(c *gin.Context) {
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
