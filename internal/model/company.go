// Package model defines the shared data shapes for press-release ingestion and search.
package model

import "time"

// Batch lifecycle statuses. A batch is terminal once it leaves StatusProcessing.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// CompanyRelease is one ingested press-release row. Rows are immutable once
// stored; re-ingestion under a new batch supersedes them at read time.
type CompanyRelease struct {
	ID                int64      `json:"id"`
	DeliveredAt       time.Time  `json:"delivered_at"`
	PressReleaseURL   string     `json:"press_release_url"`
	PressReleaseTitle string     `json:"press_release_title"`
	PressReleaseType1 string     `json:"press_release_type1,omitempty"`
	PressReleaseType2 string     `json:"press_release_type2,omitempty"`
	CompanyName       string     `json:"company_name"`
	CompanyWebsite    *string    `json:"company_website,omitempty"`
	Industry          string     `json:"industry,omitempty"`
	Address           string     `json:"address,omitempty"`
	Phone             string     `json:"phone,omitempty"`
	Representative    string     `json:"representative,omitempty"`
	ListingStatus     string     `json:"listing_status,omitempty"`
	CapitalText       string     `json:"capital_text,omitempty"`
	CapitalAmount     *int64     `json:"capital_amount,omitempty"` // ten-thousand-yen units
	EstablishedYear   *int       `json:"established_year,omitempty"`
	EstablishedMonth  *int       `json:"established_month,omitempty"`
	BatchID           string     `json:"batch_id,omitempty"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
}

// Website returns the company website or "" when null.
func (c *CompanyRelease) Website() string {
	if c.CompanyWebsite == nil {
		return ""
	}
	return *c.CompanyWebsite
}

// HasUsableWebsite reports whether the website field carries a real URL
// rather than NULL, an empty string, or the "-" export sentinel.
func (c *CompanyRelease) HasUsableWebsite() bool {
	w := c.Website()
	return w != "" && w != "-"
}

// UploadBatch tracks one CSV ingestion run end to end.
type UploadBatch struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	TotalCount   int        `json:"total_count"`
	SuccessCount int        `json:"success_count"`
	ErrorCount   int        `json:"error_count"`
	FileSize     int64      `json:"file_size"`
	UploadedBy   string     `json:"uploaded_by,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// DeriveStatus maps final success/error counts to the terminal batch status:
// failed when nothing was promoted, completed when nothing errored, partial
// otherwise.
func DeriveStatus(success, errors int) string {
	switch {
	case success == 0 && errors > 0:
		return StatusFailed
	case errors == 0:
		return StatusCompleted
	default:
		return StatusPartial
	}
}

// BatchProgress is the polling view of a running or finished batch.
type BatchProgress struct {
	BatchID   string `json:"batch_id"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Errors    int    `json:"errors"`
	Status    string `json:"status"`
}
