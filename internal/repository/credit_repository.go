package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/exgen-nl/exgen-api/pkg/models"
)

// ErrInsufficientBalance is returned when a debit would push a user's credit
// balance below zero.
var ErrInsufficientBalance = errors.New("insufficient credit balance")

// ErrAlreadyPurchased is returned when a user buys a product twice.
var ErrAlreadyPurchased = errors.New("product already purchased")

// ErrVoucherRedeemed is returned when a user redeems the same voucher twice.
var ErrVoucherRedeemed = errors.New("voucher already redeemed")

// CreditRepository handles credit packages, orders, the ledger, vouchers,
// and purchases.
type CreditRepository struct {
	db *sqlx.DB
}

// NewCreditRepository constructs the repository.
func NewCreditRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// Balance returns the sum of a user's ledger entries.
func (r *CreditRepository) Balance(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE user_id = $1`
	var balance int
	if err := r.db.GetContext(ctx, &balance, query, userID); err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return balance, nil
}

// Grant appends a positive ledger entry.
func (r *CreditRepository) Grant(ctx context.Context, entry *models.CreditLedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO credit_ledger (id, user_id, delta, reason, ref_id, created_at)
	VALUES (:id, :user_id, :delta, :reason, :ref_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("grant credits: %w", err)
	}
	return nil
}

// SpendOnProduct debits credits and records the purchase in one transaction.
// The balance check happens inside the transaction so concurrent purchases
// cannot overspend.
func (r *CreditRepository) SpendOnProduct(ctx context.Context, userID, productID string, credits int) (*models.Purchase, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin purchase: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM purchases WHERE user_id = $1 AND product_id = $2)`, userID, productID); err != nil {
		return nil, fmt.Errorf("check existing purchase: %w", err)
	}
	if exists {
		return nil, ErrAlreadyPurchased
	}

	var balance int
	if err := tx.GetContext(ctx, &balance, `SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE user_id = $1 FOR UPDATE`, userID); err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	if balance < credits {
		return nil, ErrInsufficientBalance
	}

	purchase := &models.Purchase{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProductID: productID,
		Credits:   credits,
		CreatedAt: time.Now().UTC(),
	}
	const purchaseQuery = `INSERT INTO purchases (id, user_id, product_id, credits, created_at)
	VALUES (:id, :user_id, :product_id, :credits, :created_at)`
	if _, err := tx.NamedExecContext(ctx, purchaseQuery, purchase); err != nil {
		return nil, fmt.Errorf("record purchase: %w", err)
	}

	const ledgerQuery = `INSERT INTO credit_ledger (id, user_id, delta, reason, ref_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, ledgerQuery, uuid.NewString(), userID, -credits, models.LedgerReasonPurchase, purchase.ID, purchase.CreatedAt); err != nil {
		return nil, fmt.Errorf("debit credits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit purchase: %w", err)
	}
	return purchase, nil
}

// HasPurchased reports whether the user owns the product.
func (r *CreditRepository) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM purchases WHERE user_id = $1 AND product_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, productID); err != nil {
		return false, fmt.Errorf("check purchase: %w", err)
	}
	return exists, nil
}

// ListPackages returns credit packages; inactive ones only when requested.
func (r *CreditRepository) ListPackages(ctx context.Context, includeInactive bool) ([]models.CreditPackage, error) {
	query := `SELECT id, name, credits, price_cents, description, is_active, created_at, updated_at FROM credit_packages`
	if !includeInactive {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY credits ASC`
	var packages []models.CreditPackage
	if err := r.db.SelectContext(ctx, &packages, query); err != nil {
		return nil, fmt.Errorf("list credit packages: %w", err)
	}
	return packages, nil
}

// GetPackage retrieves one credit package.
func (r *CreditRepository) GetPackage(ctx context.Context, id string) (*models.CreditPackage, error) {
	const query = `SELECT id, name, credits, price_cents, description, is_active, created_at, updated_at FROM credit_packages WHERE id = $1`
	var pkg models.CreditPackage
	if err := r.db.GetContext(ctx, &pkg, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get credit package: %w", err)
	}
	return &pkg, nil
}

// CreatePackage inserts a credit package.
func (r *CreditRepository) CreatePackage(ctx context.Context, pkg *models.CreditPackage) error {
	if pkg.ID == "" {
		pkg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	pkg.CreatedAt = now
	pkg.UpdatedAt = now
	const query = `INSERT INTO credit_packages (id, name, credits, price_cents, description, is_active, created_at, updated_at)
	VALUES (:id, :name, :credits, :price_cents, :description, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, pkg); err != nil {
		return fmt.Errorf("create credit package: %w", err)
	}
	return nil
}

// UpdatePackage persists credit package edits.
func (r *CreditRepository) UpdatePackage(ctx context.Context, pkg *models.CreditPackage) error {
	pkg.UpdatedAt = time.Now().UTC()
	const query = `UPDATE credit_packages SET name = :name, credits = :credits, price_cents = :price_cents,
	description = :description, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, pkg)
	if err != nil {
		return fmt.Errorf("update credit package: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check package update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeletePackage removes a credit package.
func (r *CreditRepository) DeletePackage(ctx context.Context, id string) error {
	const query = `DELETE FROM credit_packages WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete credit package: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check package delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateOrder records a pending credit order.
func (r *CreditRepository) CreateOrder(ctx context.Context, order *models.CreditOrder) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	const query = `INSERT INTO credit_orders (id, user_id, package_id, credits, price_cents, school_name, contact_name, address, status, created_at, updated_at)
	VALUES (:id, :user_id, :package_id, :credits, :price_cents, :school_name, :contact_name, :address, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, order); err != nil {
		return fmt.Errorf("create credit order: %w", err)
	}
	return nil
}

// GetOrder retrieves one credit order.
func (r *CreditRepository) GetOrder(ctx context.Context, id string) (*models.CreditOrder, error) {
	const query = `SELECT id, user_id, package_id, credits, price_cents, school_name, contact_name, address, status, created_at, updated_at
	FROM credit_orders WHERE id = $1`
	var order models.CreditOrder
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get credit order: %w", err)
	}
	return &order, nil
}

// ListOrders returns credit orders newest first; scoped to one user when
// userID is non-empty.
func (r *CreditRepository) ListOrders(ctx context.Context, userID string) ([]models.CreditOrder, error) {
	query := `SELECT id, user_id, package_id, credits, price_cents, school_name, contact_name, address, status, created_at, updated_at FROM credit_orders`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`
	var orders []models.CreditOrder
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("list credit orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus moves an order between lifecycle states.
func (r *CreditRepository) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	const query = `UPDATE credit_orders SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check order status rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindVoucher resolves an active voucher by code.
func (r *CreditRepository) FindVoucher(ctx context.Context, code string) (*models.Voucher, error) {
	const query = `SELECT id, code, credits, is_active, expires_at, created_at FROM vouchers WHERE code = $1 LIMIT 1`
	var voucher models.Voucher
	if err := r.db.GetContext(ctx, &voucher, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find voucher: %w", err)
	}
	return &voucher, nil
}

// RedeemVoucher records a single-use redemption and credits the user in one
// transaction. A second redemption of the same voucher by the same user
// fails on the redemptions primary key.
func (r *CreditRepository) RedeemVoucher(ctx context.Context, userID string, voucher *models.Voucher) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin redeem voucher: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `INSERT INTO voucher_redemptions (voucher_id, user_id, redeemed_at) VALUES ($1, $2, $3)`, voucher.ID, userID, now); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrVoucherRedeemed
		}
		return fmt.Errorf("record redemption: %w", err)
	}

	const ledgerQuery = `INSERT INTO credit_ledger (id, user_id, delta, reason, ref_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, ledgerQuery, uuid.NewString(), userID, voucher.Credits, models.LedgerReasonVoucher, voucher.ID, now); err != nil {
		return fmt.Errorf("credit voucher: %w", err)
	}

	return tx.Commit()
}
