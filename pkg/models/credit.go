package models

import "time"

// CreditPackage is an admin-managed bundle of credits offered for sale.
type CreditPackage struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Credits     int       `db:"credits" json:"credits"`
	PriceCents  int       `db:"price_cents" json:"price"`
	Description string    `db:"description" json:"description"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// OrderStatus enumerates credit order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// CreditOrder records a school's purchase of a credit package.
type CreditOrder struct {
	ID          string      `db:"id" json:"id"`
	UserID      string      `db:"user_id" json:"user_id"`
	PackageID   string      `db:"package_id" json:"package_id"`
	Credits     int         `db:"credits" json:"credits"`
	PriceCents  int         `db:"price_cents" json:"price"`
	SchoolName  string      `db:"school_name" json:"school_name"`
	ContactName string      `db:"contact_name" json:"contact_name"`
	Address     string      `db:"address" json:"address"`
	Status      OrderStatus `db:"status" json:"status"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// LedgerReason enumerates why credits were granted or spent.
type LedgerReason string

const (
	LedgerReasonOrder    LedgerReason = "order"
	LedgerReasonPurchase LedgerReason = "purchase"
	LedgerReasonVoucher  LedgerReason = "voucher"
	LedgerReasonWelcome  LedgerReason = "welcome"
	LedgerReasonAdmin    LedgerReason = "admin"
)

// CreditLedgerEntry is one credit mutation; the balance is the sum of a
// user's entries.
type CreditLedgerEntry struct {
	ID        string       `db:"id" json:"id"`
	UserID    string       `db:"user_id" json:"user_id"`
	Delta     int          `db:"delta" json:"delta"`
	Reason    LedgerReason `db:"reason" json:"reason"`
	RefID     *string      `db:"ref_id" json:"ref_id,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// Voucher is a redeemable code granting credits.
type Voucher struct {
	ID        string     `db:"id" json:"id"`
	Code      string     `db:"code" json:"code"`
	Credits   int        `db:"credits" json:"credits"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Purchase records that a user bought a product with credits.
type Purchase struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Credits   int       `db:"credits" json:"credits"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
