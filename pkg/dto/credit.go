package dto

import "github.com/exgen-nl/exgen-api/pkg/models"

// CreditBalance is returned for the storefront credit display.
type CreditBalance struct {
	Credits        int  `json:"credits"`
	WelcomeGranted bool `json:"welcome_granted"`
}

// CreatePackageRequest payload for admin credit package creation.
type CreatePackageRequest struct {
	Name        string `json:"name" validate:"required"`
	Credits     int    `json:"credits" validate:"required,gt=0"`
	PriceCents  int    `json:"price" validate:"required,gt=0"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

// UpdatePackageRequest payload for admin credit package edits.
type UpdatePackageRequest struct {
	Name        string `json:"name" validate:"required"`
	Credits     int    `json:"credits" validate:"required,gt=0"`
	PriceCents  int    `json:"price" validate:"required,gt=0"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

// CreateOrderRequest places a credit order for a package.
type CreateOrderRequest struct {
	PackageID   string `json:"package_id" validate:"required"`
	SchoolName  string `json:"school_name" validate:"required"`
	ContactName string `json:"contact_name" validate:"required"`
	Address     string `json:"address" validate:"required"`
}

// UpdateOrderStatusRequest moves an order between lifecycle states.
type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required,oneof=pending fulfilled cancelled"`
}

// RedeemVoucherRequest redeems a voucher code for credits.
type RedeemVoucherRequest struct {
	Code string `json:"code" validate:"required"`
}

// RedeemVoucherResponse reports the granted credits and new balance.
type RedeemVoucherResponse struct {
	Credits int `json:"credits"`
	Balance int `json:"balance"`
}
