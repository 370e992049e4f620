package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exgen-nl/exgen-api/internal/service"
	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/response"
)

// CatalogHandler exposes the storefront listing and admin product management.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler constructs handler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// List godoc
// @Summary List exam products
// @Tags Catalog
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param search query string false "Search term"
// @Param filter query string false "Status filter (alles, beschikbaar, concept)"
// @Success 200 {object} response.Envelope
// @Router /products [get]
func (h *CatalogHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var query dto.CatalogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid listing query"))
		return
	}

	products, pagination, cached, err := h.catalog.List(c.Request.Context(), query, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, products, pagination, map[string]interface{}{"cached": cached})
}

// Get godoc
// @Summary Product detail with versions and documents
// @Tags Catalog
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /products/{id} [get]
func (h *CatalogHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	product, err := h.catalog.Get(c.Request.Context(), c.Param("id"), claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}

// Create godoc
// @Summary Create a draft product
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CreateProductRequest true "Product payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /products [post]
func (h *CatalogHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid product payload"))
		return
	}

	product, err := h.catalog.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, product)
}

// Update godoc
// @Summary Update product fields
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param payload body dto.UpdateProductRequest true "Product payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /products/{id} [put]
func (h *CatalogHandler) Update(c *gin.Context) {
	var req dto.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid product payload"))
		return
	}

	product, err := h.catalog.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}

// UpdateStatus godoc
// @Summary Switch a product between draft and available
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param payload body dto.UpdateProductStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /products/{id}/status [patch]
func (h *CatalogHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateProductStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	product, err := h.catalog.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}

// Delete godoc
// @Summary Delete a product
// @Tags Catalog
// @Produce json
// @Param id path string true "Product ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /products/{id} [delete]
func (h *CatalogHandler) Delete(c *gin.Context) {
	if err := h.catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Purchase godoc
// @Summary Buy a product with credits
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.PurchaseRequest true "Purchase payload"
// @Success 201 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /purchases [post]
func (h *CatalogHandler) Purchase(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid purchase payload"))
		return
	}

	purchase, err := h.catalog.Purchase(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, purchase)
}

// HasPurchased godoc
// @Summary Check product ownership
// @Tags Catalog
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} response.Envelope
// @Router /products/{id}/purchased [get]
func (h *CatalogHandler) HasPurchased(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	owned, err := h.catalog.HasPurchased(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"product_id": c.Param("id"), "purchased": owned}, nil)
}
