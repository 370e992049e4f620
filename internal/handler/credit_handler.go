package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/exgen-nl/exgen-api/internal/service"
	"github.com/exgen-nl/exgen-api/pkg/dto"
	appErrors "github.com/exgen-nl/exgen-api/pkg/errors"
	"github.com/exgen-nl/exgen-api/pkg/response"
)

// CreditHandler exposes balances, packages, orders, and vouchers.
type CreditHandler struct {
	credits *service.CreditService
}

// NewCreditHandler constructs handler.
func NewCreditHandler(credits *service.CreditService) *CreditHandler {
	return &CreditHandler{credits: credits}
}

// Balance godoc
// @Summary Current credit balance
// @Description A school's first balance lookup triggers the one-time welcome grant.
// @Tags Credits
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /credits/balance [get]
func (h *CreditHandler) Balance(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	balance, err := h.credits.Balance(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}

// ListPackages godoc
// @Summary List credit packages
// @Tags Credits
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /credits/packages [get]
func (h *CreditHandler) ListPackages(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	packages, err := h.credits.ListPackages(c.Request.Context(), claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, packages, nil)
}

// CreatePackage godoc
// @Summary Create a credit package
// @Tags Credits
// @Accept json
// @Produce json
// @Param payload body dto.CreatePackageRequest true "Package payload"
// @Success 201 {object} response.Envelope
// @Router /credits/packages [post]
func (h *CreditHandler) CreatePackage(c *gin.Context) {
	var req dto.CreatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid package payload"))
		return
	}

	pkg, err := h.credits.CreatePackage(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pkg)
}

// UpdatePackage godoc
// @Summary Update a credit package
// @Tags Credits
// @Accept json
// @Produce json
// @Param id path string true "Package ID"
// @Param payload body dto.UpdatePackageRequest true "Package payload"
// @Success 200 {object} response.Envelope
// @Router /credits/packages/{id} [put]
func (h *CreditHandler) UpdatePackage(c *gin.Context) {
	var req dto.UpdatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid package payload"))
		return
	}

	pkg, err := h.credits.UpdatePackage(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pkg, nil)
}

// DeletePackage godoc
// @Summary Delete a credit package
// @Tags Credits
// @Produce json
// @Param id path string true "Package ID"
// @Success 204 {object} response.Envelope
// @Router /credits/packages/{id} [delete]
func (h *CreditHandler) DeletePackage(c *gin.Context) {
	if err := h.credits.DeletePackage(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateOrder godoc
// @Summary Place a credit order
// @Tags Credits
// @Accept json
// @Produce json
// @Param payload body dto.CreateOrderRequest true "Order payload"
// @Success 201 {object} response.Envelope
// @Router /credits/orders [post]
func (h *CreditHandler) CreateOrder(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid order payload"))
		return
	}

	order, err := h.credits.CreateOrder(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// ListOrders godoc
// @Summary List credit orders
// @Description Schools see their own orders; admins see all.
// @Tags Credits
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /credits/orders [get]
func (h *CreditHandler) ListOrders(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	orders, err := h.credits.ListOrders(c.Request.Context(), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, orders, nil)
}

// UpdateOrderStatus godoc
// @Summary Move an order between lifecycle states
// @Description Fulfilling a pending order grants its credits to the buyer.
// @Tags Credits
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body dto.UpdateOrderStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /credits/orders/{id}/status [patch]
func (h *CreditHandler) UpdateOrderStatus(c *gin.Context) {
	var req dto.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	order, err := h.credits.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// RedeemVoucher godoc
// @Summary Redeem a voucher code for credits
// @Tags Credits
// @Accept json
// @Produce json
// @Param payload body dto.RedeemVoucherRequest true "Voucher payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /credits/vouchers/redeem [post]
func (h *CreditHandler) RedeemVoucher(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.RedeemVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid voucher payload"))
		return
	}

	result, err := h.credits.RedeemVoucher(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
