package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/exgen-nl/exgen-api/pkg/models"
)

// ProductRepository handles exam product persistence.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository constructs the repository.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, code, title, description, credits, cohort, status, created_at, updated_at`

// Create inserts a new draft product.
func (r *ProductRepository) Create(ctx context.Context, product *models.ExamProduct) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	if product.Status == "" {
		product.Status = models.ProductStatusDraft
	}
	const query = `INSERT INTO products (id, code, title, description, credits, cohort, status, created_at, updated_at)
	VALUES (:id, :code, :title, :description, :credits, :cohort, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, product); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// GetByID retrieves one product row without versions.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.ExamProduct, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns)
	var product models.ExamProduct
	if err := r.db.GetContext(ctx, &product, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &product, nil
}

// List returns products applying search, status filter, and pagination.
// Non-admin listings only see available products.
func (r *ProductRepository) List(ctx context.Context, filter models.ProductFilter, includeDrafts bool) ([]models.ExamProduct, int, error) {
	baseQuery := `FROM products WHERE 1=1`
	var conditions []string
	var args []interface{}

	if !includeDrafts {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, models.ProductStatusAvailable)
	} else {
		switch filter.Filter {
		case models.CatalogFilterAvailable:
			conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
			args = append(args, models.ProductStatusAvailable)
		case models.CatalogFilterDraft:
			conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
			args = append(args, models.ProductStatusDraft)
		}
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(code) LIKE $%d OR LOWER(title) LIKE $%d OR LOWER(description) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	offset := (page - 1) * limit

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY code ASC LIMIT %d OFFSET %d", productColumns, baseQuery, limit, offset)
	var products []models.ExamProduct
	if err := r.db.SelectContext(ctx, &products, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	return products, total, nil
}

// Update persists top-level product fields.
func (r *ProductRepository) Update(ctx context.Context, product *models.ExamProduct) error {
	product.UpdatedAt = time.Now().UTC()
	const query = `UPDATE products SET code = :code, title = :title, description = :description,
	credits = :credits, cohort = :cohort, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, product)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check product update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus switches product visibility.
func (r *ProductRepository) UpdateStatus(ctx context.Context, id string, status models.ProductStatus) error {
	const query = `UPDATE products SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update product status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check product status rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a product and its dependent rows.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM products WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check product delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
