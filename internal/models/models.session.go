// FilePath: internal/models/models.session.go
package models

import "time"

// Session status values. A session is created pending, moves to in_progress on
// its first payload and is locked once its day has passed. Locked is terminal.
const (
	SessionStatusPending    = "pending"
	SessionStatusInProgress = "in_progress"
	SessionStatusLocked     = "locked"
)

// SiteSession aggregates one site's device wakes for a single calendar day in
// the site's timezone. Exactly one session exists per (site, date).
type SiteSession struct {
	ID                string    `json:"id" db:"id"`
	SiteID            string    `json:"site_id" db:"site_id"`
	SessionDate       time.Time `json:"session_date" db:"session_date"`
	StartsAt          time.Time `json:"starts_at" db:"starts_at"`
	EndsAt            time.Time `json:"ends_at" db:"ends_at"`
	ExpectedWakeCount int       `json:"expected_wake_count" db:"expected_wake_count"`
	CompletedCount    int       `json:"completed_count" db:"completed_count"`
	FailedCount       int       `json:"failed_count" db:"failed_count"`
	ExtraCount        int       `json:"extra_count" db:"extra_count"`
	Status            string    `json:"status" db:"status"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// SessionSummary is the dashboard view of a session, the counters joined with
// the actual number of payload rows recorded against it.
type SessionSummary struct {
	Session      *SiteSession `json:"session"`
	PayloadCount int          `json:"payload_count"`
}
