package dto

import "time"

// InitiateDownloadResponse returns the download record the client passes to
// the packaging call.
type InitiateDownloadResponse struct {
	DownloadID       string `json:"download_id"`
	VerificationCode string `json:"verification_code"`
}

// DownloadPackageResponse carries the signed URL of the assembled zip.
type DownloadPackageResponse struct {
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
}

// VerifyDownloadRequest carries a verification code from a score sheet.
type VerifyDownloadRequest struct {
	Code string `json:"code" binding:"required" validate:"required"`
}

// VerifyDownloadResponse reports whether a code traces back to an issued
// download. Product fields are only set for valid codes.
type VerifyDownloadResponse struct {
	IsValid      bool       `json:"is_valid"`
	ProductCode  string     `json:"product_code,omitempty"`
	ProductTitle string     `json:"product_title,omitempty"`
	Version      string     `json:"version,omitempty"`
	GeneratedAt  *time.Time `json:"generated_at,omitempty"`
	Status       string     `json:"status"`
}
