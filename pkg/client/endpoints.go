package client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/exgen-nl/exgen-api/pkg/dto"
	"github.com/exgen-nl/exgen-api/pkg/models"
)

// CatalogPage is one page of the product listing.
type CatalogPage struct {
	Products   []models.ExamProduct
	Pagination *models.Pagination
	Cached     bool
}

// ListProducts fetches one catalog page.
func (c *Client) ListProducts(ctx context.Context, query dto.CatalogQuery) (*CatalogPage, error) {
	values := url.Values{}
	if query.Page > 0 {
		values.Set("page", strconv.Itoa(query.Page))
	}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Search != "" {
		values.Set("search", query.Search)
	}
	if query.Filter != "" {
		values.Set("filter", query.Filter)
	}

	var products []models.ExamProduct
	env, err := c.do(ctx, http.MethodGet, "/products", values, nil, &products)
	if err != nil {
		return nil, err
	}
	page := &CatalogPage{Products: products, Pagination: env.Pagination}
	if env.Meta != nil {
		cached, _ := env.Meta["cached"].(bool)
		page.Cached = cached
	}
	return page, nil
}

// GetProduct fetches one product with its versions and documents.
func (c *Client) GetProduct(ctx context.Context, id string) (*models.ExamProduct, error) {
	var product models.ExamProduct
	if _, err := c.do(ctx, http.MethodGet, "/products/"+id, nil, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateProduct creates a draft product.
func (c *Client) CreateProduct(ctx context.Context, req dto.CreateProductRequest) (*models.ExamProduct, error) {
	var product models.ExamProduct
	if _, err := c.do(ctx, http.MethodPost, "/products", nil, req, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateProduct saves top-level product fields.
func (c *Client) UpdateProduct(ctx context.Context, id string, req dto.UpdateProductRequest) (*models.ExamProduct, error) {
	var product models.ExamProduct
	if _, err := c.do(ctx, http.MethodPut, "/products/"+id, nil, req, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateProductStatus switches a product between draft and available.
func (c *Client) UpdateProductStatus(ctx context.Context, id string, req dto.UpdateProductStatusRequest) (*models.ExamProduct, error) {
	var product models.ExamProduct
	if _, err := c.do(ctx, http.MethodPatch, "/products/"+id+"/status", nil, req, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// DeleteProduct removes a product.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/products/"+id, nil, nil, nil)
	return err
}

// Purchase spends credits on a product.
func (c *Client) Purchase(ctx context.Context, req dto.PurchaseRequest) (*models.Purchase, error) {
	var purchase models.Purchase
	if _, err := c.do(ctx, http.MethodPost, "/purchases", nil, req, &purchase); err != nil {
		return nil, err
	}
	return &purchase, nil
}

// HasPurchased reports whether the caller owns the product.
func (c *Client) HasPurchased(ctx context.Context, productID string) (bool, error) {
	var out struct {
		Purchased bool `json:"purchased"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/products/"+productID+"/purchased", nil, nil, &out); err != nil {
		return false, err
	}
	return out.Purchased, nil
}

// Balance fetches the credit balance, triggering the welcome grant on first use.
func (c *Client) Balance(ctx context.Context) (*dto.CreditBalance, error) {
	var balance dto.CreditBalance
	if _, err := c.do(ctx, http.MethodGet, "/credits/balance", nil, nil, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// ListCreditPackages lists purchasable credit bundles.
func (c *Client) ListCreditPackages(ctx context.Context) ([]models.CreditPackage, error) {
	var packages []models.CreditPackage
	if _, err := c.do(ctx, http.MethodGet, "/credits/packages", nil, nil, &packages); err != nil {
		return nil, err
	}
	return packages, nil
}

// CreateOrder places a credit order for a package.
func (c *Client) CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (*models.CreditOrder, error) {
	var order models.CreditOrder
	if _, err := c.do(ctx, http.MethodPost, "/credits/orders", nil, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders lists the caller's credit orders.
func (c *Client) ListOrders(ctx context.Context) ([]models.CreditOrder, error) {
	var orders []models.CreditOrder
	if _, err := c.do(ctx, http.MethodGet, "/credits/orders", nil, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// RedeemVoucher redeems a voucher code for credits.
func (c *Client) RedeemVoucher(ctx context.Context, code string) (*dto.RedeemVoucherResponse, error) {
	var result dto.RedeemVoucherResponse
	req := dto.RedeemVoucherRequest{Code: code}
	if _, err := c.do(ctx, http.MethodPost, "/credits/vouchers/redeem", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetVersion fetches a version with its assessment tree.
func (c *Client) GetVersion(ctx context.Context, id string) (*models.Version, error) {
	var version models.Version
	if _, err := c.do(ctx, http.MethodGet, "/versions/"+id, nil, nil, &version); err != nil {
		return nil, err
	}
	return &version, nil
}

// CreateVersion creates a version, optionally duplicating the latest. The
// summary reports per-step copy results; a partial copy is not rolled back.
func (c *Client) CreateVersion(ctx context.Context, productID string, req dto.CreateVersionRequest) (*dto.DuplicationSummary, error) {
	var summary dto.DuplicationSummary
	if _, err := c.do(ctx, http.MethodPost, "/products/"+productID+"/versions", nil, req, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// UpdateVersion saves version fields.
func (c *Client) UpdateVersion(ctx context.Context, id string, req dto.UpdateVersionRequest) (*models.Version, error) {
	var version models.Version
	if _, err := c.do(ctx, http.MethodPut, "/versions/"+id, nil, req, &version); err != nil {
		return nil, err
	}
	return &version, nil
}

// SetVersionEnabled toggles download availability of a version.
func (c *Client) SetVersionEnabled(ctx context.Context, id string, enabled bool) (*models.Version, error) {
	var version models.Version
	req := dto.UpdateVersionStatusRequest{IsEnabled: enabled}
	if _, err := c.do(ctx, http.MethodPatch, "/versions/"+id+"/status", nil, req, &version); err != nil {
		return nil, err
	}
	return &version, nil
}

// DeleteVersion soft deletes a version.
func (c *Client) DeleteVersion(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/versions/"+id, nil, nil, nil)
	return err
}

// ChangeRubricLevels changes the rubric tier count. When existing level
// content would be wiped the server demands Confirm.
func (c *Client) ChangeRubricLevels(ctx context.Context, id string, req dto.ChangeRubricLevelsRequest) (*models.Version, error) {
	var version models.Version
	if _, err := c.do(ctx, http.MethodPatch, "/versions/"+id+"/rubric-levels", nil, req, &version); err != nil {
		return nil, err
	}
	return &version, nil
}

// AddOnderdeel appends an assessment component to a version.
func (c *Client) AddOnderdeel(ctx context.Context, versionID string, req dto.CreateOnderdeelRequest) (*models.AssessmentOnderdeel, error) {
	var item models.AssessmentOnderdeel
	if _, err := c.do(ctx, http.MethodPost, "/versions/"+versionID+"/onderdelen", nil, req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// RenameOnderdeel renames an assessment component.
func (c *Client) RenameOnderdeel(ctx context.Context, id string, req dto.UpdateOnderdeelRequest) error {
	_, err := c.do(ctx, http.MethodPut, "/onderdelen/"+id, nil, req, nil)
	return err
}

// RemoveOnderdeel deletes a component and its criteria.
func (c *Client) RemoveOnderdeel(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/onderdelen/"+id, nil, nil, nil)
	return err
}

// AddCriteria appends a criterion to a component.
func (c *Client) AddCriteria(ctx context.Context, onderdeelID string, req dto.CreateCriteriaRequest) (*models.AssessmentCriteria, error) {
	var criteria models.AssessmentCriteria
	if _, err := c.do(ctx, http.MethodPost, "/onderdelen/"+onderdeelID+"/criteria", nil, req, &criteria); err != nil {
		return nil, err
	}
	return &criteria, nil
}

// UpdateCriteria saves criterion text.
func (c *Client) UpdateCriteria(ctx context.Context, id string, req dto.UpdateCriteriaRequest) error {
	_, err := c.do(ctx, http.MethodPut, "/criteria/"+id, nil, req, nil)
	return err
}

// RemoveCriteria deletes a criterion.
func (c *Client) RemoveCriteria(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/criteria/"+id, nil, nil, nil)
	return err
}

// UpdateLevel saves one rubric level value.
func (c *Client) UpdateLevel(ctx context.Context, criteriaID, levelID string, req dto.UpdateLevelRequest) error {
	_, err := c.do(ctx, http.MethodPut, "/criteria/"+criteriaID+"/levels/"+levelID, nil, req, nil)
	return err
}

// UploadDocument uploads one file to a version.
func (c *Client) UploadDocument(ctx context.Context, versionID, filename string, content io.Reader) (*models.Document, error) {
	var doc models.Document
	if err := c.uploadFile(ctx, "/versions/"+versionID+"/documents", filename, content, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments lists a version's documents.
func (c *Client) ListDocuments(ctx context.Context, versionID string) ([]models.Document, error) {
	var docs []models.Document
	if _, err := c.do(ctx, http.MethodGet, "/versions/"+versionID+"/documents", nil, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// SetDocumentPreview marks a document as the version preview.
func (c *Client) SetDocumentPreview(ctx context.Context, id string, preview bool) error {
	req := dto.SetPreviewRequest{IsPreview: preview}
	_, err := c.do(ctx, http.MethodPatch, "/documents/"+id+"/preview", nil, req, nil)
	return err
}

// DeleteDocument removes a document and its stored file.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/documents/"+id, nil, nil, nil)
	return err
}

// VerifyDocuments recomputes storage status of a version's documents.
func (c *Client) VerifyDocuments(ctx context.Context, versionID string) ([]models.Document, error) {
	var docs []models.Document
	if _, err := c.do(ctx, http.MethodPost, "/versions/"+versionID+"/documents/verify", nil, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// DocumentURL mints a signed download URL for a document.
func (c *Client) DocumentURL(ctx context.Context, id string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/documents/"+id+"/url", nil, nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// InitiateDownload creates a download record with a fresh verification code.
func (c *Client) InitiateDownload(ctx context.Context, productID, versionID string) (*dto.InitiateDownloadResponse, error) {
	req := struct {
		ProductID string `json:"product_id"`
		VersionID string `json:"version_id,omitempty"`
	}{ProductID: productID, VersionID: versionID}

	var resp dto.InitiateDownloadResponse
	if _, err := c.do(ctx, http.MethodPost, "/downloads", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PackageDownload assembles the zip and returns its signed URL.
func (c *Client) PackageDownload(ctx context.Context, downloadID string) (*dto.DownloadPackageResponse, error) {
	var resp dto.DownloadPackageResponse
	if _, err := c.do(ctx, http.MethodPost, "/downloads/"+downloadID+"/package", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDownloads lists the caller's download history.
func (c *Client) ListDownloads(ctx context.Context) ([]models.Download, error) {
	var downloads []models.Download
	if _, err := c.do(ctx, http.MethodGet, "/downloads", nil, nil, &downloads); err != nil {
		return nil, err
	}
	return downloads, nil
}

// VerifyDownloadCode checks a score-sheet verification code and reports the
// exam it traces back to.
func (c *Client) VerifyDownloadCode(ctx context.Context, code string) (*dto.VerifyDownloadResponse, error) {
	var resp dto.VerifyDownloadResponse
	if _, err := c.do(ctx, http.MethodPost, "/downloads/verify", nil, dto.VerifyDownloadRequest{Code: code}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListWorkflowSteps lists the configured generation steps in position order.
func (c *Client) ListWorkflowSteps(ctx context.Context) ([]models.WorkflowStep, error) {
	var steps []models.WorkflowStep
	if _, err := c.do(ctx, http.MethodGet, "/workflows/steps", nil, nil, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// CreateWorkflowStep appends a generation step.
func (c *Client) CreateWorkflowStep(ctx context.Context, req dto.CreateWorkflowStepRequest) (*models.WorkflowStep, error) {
	var step models.WorkflowStep
	if _, err := c.do(ctx, http.MethodPost, "/workflows/steps", nil, req, &step); err != nil {
		return nil, err
	}
	return &step, nil
}

// UpdateWorkflowStep saves step fields or its enable toggle.
func (c *Client) UpdateWorkflowStep(ctx context.Context, id string, req dto.UpdateWorkflowStepRequest) (*models.WorkflowStep, error) {
	var step models.WorkflowStep
	if _, err := c.do(ctx, http.MethodPut, "/workflows/steps/"+id, nil, req, &step); err != nil {
		return nil, err
	}
	return &step, nil
}

// DeleteWorkflowStep removes a step.
func (c *Client) DeleteWorkflowStep(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/workflows/steps/"+id, nil, nil, nil)
	return err
}

// ReorderWorkflowSteps persists a complete new step ordering.
func (c *Client) ReorderWorkflowSteps(ctx context.Context, stepIDs []string) ([]models.WorkflowStep, error) {
	var steps []models.WorkflowStep
	req := dto.ReorderWorkflowStepsRequest{StepIDs: stepIDs}
	if _, err := c.do(ctx, http.MethodPut, "/workflows/steps/reorder", nil, req, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// Generate queues document generation for a product.
func (c *Client) Generate(ctx context.Context, req dto.GenerationRequest) (*dto.GenerationJobResponse, error) {
	var job dto.GenerationJobResponse
	if _, err := c.do(ctx, http.MethodPost, "/workflows/generate", nil, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GenerationStatus fetches the progress of a generation job.
func (c *Client) GenerationStatus(ctx context.Context, jobID string) (*dto.GenerationStatusResponse, error) {
	var status dto.GenerationStatusResponse
	if _, err := c.do(ctx, http.MethodGet, "/workflows/generate/"+jobID, nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListUsers returns a page of accounts (admin only).
func (c *Client) ListUsers(ctx context.Context, query dto.UserListQuery) ([]models.User, *models.Pagination, error) {
	values := url.Values{}
	if query.Page > 0 {
		values.Set("page", strconv.Itoa(query.Page))
	}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Search != "" {
		values.Set("search", query.Search)
	}

	var users []models.User
	env, err := c.do(ctx, http.MethodGet, "/users", values, nil, &users)
	if err != nil {
		return nil, nil, err
	}
	return users, env.Pagination, nil
}

// UpdateUserRole switches a user between roles (admin only).
func (c *Client) UpdateUserRole(ctx context.Context, id, role string) (*models.User, error) {
	var user models.User
	if _, err := c.do(ctx, http.MethodPatch, "/users/"+id+"/role", nil, dto.UpdateUserRoleRequest{Role: role}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUserEmail changes a user's login email (admin only).
func (c *Client) UpdateUserEmail(ctx context.Context, id, email string) (*models.User, error) {
	var user models.User
	if _, err := c.do(ctx, http.MethodPatch, "/users/"+id+"/email", nil, dto.UpdateUserEmailRequest{Email: email}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GrantUserCredits adds credits to a user's ledger (admin only).
func (c *Client) GrantUserCredits(ctx context.Context, id string, credits int, note string) (*dto.GrantCreditsResponse, error) {
	var resp dto.GrantCreditsResponse
	if _, err := c.do(ctx, http.MethodPost, "/users/"+id+"/credits", nil, dto.GrantCreditsRequest{Credits: credits, Note: note}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
