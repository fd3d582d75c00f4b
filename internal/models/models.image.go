// FilePath: internal/models/models.image.go
package models

import "time"

// Image status values.
const (
	ImageStatusReceiving = "receiving"
	ImageStatusComplete  = "complete"
	ImageStatusFailed    = "failed"
)

// Image tracks one logical capture, identified by the device-assigned name
// rather than a per-attempt id. Retried transmissions of the same capture
// always land on the same row; CapturedAt never changes after the first write.
type Image struct {
	ID               string     `json:"id" db:"id"`
	DeviceID         string     `json:"device_id" db:"device_id"`
	ImageName        string     `json:"image_name" db:"image_name"`
	Status           string     `json:"status" db:"status"`
	URL              *string    `json:"url" db:"url"`
	SizeBytes        *int64     `json:"size_bytes" db:"size_bytes"`
	TotalChunks      *int       `json:"total_chunks" db:"total_chunks"`
	RetryCount       int        `json:"retry_count" db:"retry_count"`
	ResentReceivedAt *time.Time `json:"resent_received_at" db:"resent_received_at"`
	ErrorCode        *string    `json:"error_code" db:"error_code"`
	ErrorMessage     *string    `json:"error_message" db:"error_message"`
	CapturedAt       time.Time  `json:"captured_at" db:"captured_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the image reached a final state.
func (i *Image) Terminal() bool {
	return i.Status == ImageStatusComplete || i.Status == ImageStatusFailed
}

// Observation is the downstream analytics record emitted when an image
// completes. Guarded unique by image URL so retries never duplicate it.
type Observation struct {
	ID         string    `json:"id" db:"id"`
	DeviceID   string    `json:"device_id" db:"device_id"`
	SiteID     string    `json:"site_id" db:"site_id"`
	ProgramID  string    `json:"program_id" db:"program_id"`
	CompanyID  string    `json:"company_id" db:"company_id"`
	ImageURL   string    `json:"image_url" db:"image_url"`
	ObservedAt time.Time `json:"observed_at" db:"observed_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
