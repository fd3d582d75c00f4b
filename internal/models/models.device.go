// FilePath: internal/models/models.device.go
package models

import "time"

// Device represents a battery-powered ESP32-CAM field unit. Provisioning owns
// these rows; the hub only reads assignment data and touches liveness fields.
type Device struct {
	ID            string     `json:"id" db:"id"` // hardware identifier (MAC)
	Name          string     `json:"name" db:"name"`
	SiteID        *string    `json:"site_id" db:"site_id"`
	ProgramID     *string    `json:"program_id" db:"program_id"`
	CompanyID     *string    `json:"company_id" db:"company_id"`
	WakeSchedule  string     `json:"wake_schedule" db:"wake_schedule"`
	Timezone      string     `json:"timezone" db:"timezone"`
	Active        bool       `json:"active" db:"active"`
	PendingImages int        `json:"pending_images" db:"pending_images"`
	LastSeen      *time.Time `json:"last_seen" db:"last_seen"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Lineage is the resolved placement of a device at ingest time.
type Lineage struct {
	DeviceID     string `json:"device_id"`
	SiteID       string `json:"site_id"`
	ProgramID    string `json:"program_id"`
	CompanyID    string `json:"company_id"`
	WakeSchedule string `json:"wake_schedule"`
	Timezone     string `json:"timezone"`
}
