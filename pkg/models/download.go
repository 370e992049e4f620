package models

import "time"

// DownloadStatus tracks the packaging lifecycle of a requested download.
type DownloadStatus string

const (
	DownloadStatusInitiated DownloadStatus = "initiated"
	DownloadStatusPackaged  DownloadStatus = "packaged"
	DownloadStatusFailed    DownloadStatus = "failed"
)

// Download records a purchased package handed out to a school. The
// verification code is baked into the score sheet inside the zip so exam
// submissions can be traced back to this download.
type Download struct {
	ID               string         `db:"id" json:"id"`
	UserID           string         `db:"user_id" json:"user_id"`
	ProductID        string         `db:"product_id" json:"product_id"`
	VersionID        string         `db:"version_id" json:"version_id"`
	VerificationCode string         `db:"verification_code" json:"verification_code"`
	Status           DownloadStatus `db:"status" json:"status"`
	FilePath         *string        `db:"file_path" json:"-"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	PackagedAt       *time.Time     `db:"packaged_at" json:"packaged_at,omitempty"`
}
