// FilePath: internal/repository/repository.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/database"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
)

var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")
	// ErrDuplicate indicates that a resource already exists
	ErrDuplicate = errors.New("resource already exists")
	// ErrInvalidInput indicates that the input data is invalid
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionLocked indicates a counter mutation was attempted against a
	// locked session
	ErrSessionLocked = errors.New("session is locked")
)

// DeviceRepository defines the read/liveness surface of the devices table.
// Provisioning owns everything else about these rows.
type DeviceRepository interface {
	database.Repository
	Get(ctx context.Context, id string) (*models.Device, error)
	ListActiveBySite(ctx context.Context, siteID string) ([]*models.Device, error)
	ListActiveSiteIDs(ctx context.Context) ([]string, error)
	UpdateLastSeen(ctx context.Context, id string, seen time.Time, pendingImages int) error
	// Touch stamps last_seen without disturbing the device-reported
	// pending-images gauge.
	Touch(ctx context.Context, id string, seen time.Time) error
}

// SessionRepository defines the interface for site-session records
type SessionRepository interface {
	database.Repository
	// Create inserts the session unless one already exists for its
	// (site, date); it reports whether this call created the row.
	Create(ctx context.Context, session *models.SiteSession) (bool, error)
	Get(ctx context.Context, id string) (*models.SiteSession, error)
	GetBySiteAndDate(ctx context.Context, siteID string, date time.Time) (*models.SiteSession, error)
	MarkInProgress(ctx context.Context, id string) error
	Lock(ctx context.Context, siteID string, date time.Time) error
	LockExpired(ctx context.Context, now time.Time) (int64, error)
	// Counter mutations are atomic single-row increments. All of them fail
	// with ErrSessionLocked once the session is locked.
	IncrementCompleted(ctx context.Context, id string) error
	IncrementFailed(ctx context.Context, id string) error
	IncrementExtra(ctx context.Context, id string) error
	// MoveFailedToCompleted reconciles counters when a previously failed
	// image completes on retry. It reports whether a count moved; false
	// means the failed counter was already zero.
	MoveFailedToCompleted(ctx context.Context, id string) (bool, error)
}

// PayloadRepository defines the interface for wake payload records
type PayloadRepository interface {
	database.Repository
	Create(ctx context.Context, payload *models.WakePayload) error
	Get(ctx context.Context, id string) (*models.WakePayload, error)
	GetByImageID(ctx context.Context, imageID string) (*models.WakePayload, error)
	UpdateStatus(ctx context.Context, id, status string) error
	CountBySession(ctx context.Context, sessionID string) (int, error)
	// LatestClimate returns the most recent payload of the device carrying
	// both a temperature and a humidity reading.
	LatestClimate(ctx context.Context, deviceID string) (*models.ClimateSample, error)
}

// ImageRepository defines the interface for image records, keyed by the
// device-assigned stable name rather than a per-attempt id.
type ImageRepository interface {
	database.Repository
	Create(ctx context.Context, image *models.Image) error
	Get(ctx context.Context, id string) (*models.Image, error)
	GetByStableKey(ctx context.Context, deviceID, imageName string) (*models.Image, error)
	// GetByStableKeyForUpdate locks the row inside tx, serializing
	// concurrent retries of the same image.
	GetByStableKeyForUpdate(ctx context.Context, tx database.Transaction, deviceID, imageName string) (*models.Image, error)
	// MarkComplete and MarkFailed report whether the row transitioned; a
	// false return means it was already terminal.
	MarkComplete(ctx context.Context, id, url string) (bool, error)
	MarkFailed(ctx context.Context, id, code, message string) (bool, error)
	// ApplyRetry updates the locked row for a resent transmission: bumps
	// retry_count, stamps resent_received_at and sets status (and url)
	// according to whether the retry carries a url. captured_at is never
	// written.
	ApplyRetry(ctx context.Context, tx database.Transaction, id string, url *string, receivedAt time.Time) error
}

// ObservationRepository emits downstream analytics records for completed
// images
type ObservationRepository interface {
	database.Repository
	// CreateIfAbsent inserts the observation unless one with the same image
	// URL exists; it reports whether a row was inserted.
	CreateIfAbsent(ctx context.Context, obs *models.Observation) (bool, error)
}

// RiskStateRepository defines the interface for per-device risk records
type RiskStateRepository interface {
	database.Repository
	Get(ctx context.Context, deviceID string) (*models.RiskState, error)
	Upsert(ctx context.Context, state *models.RiskState) error
	SiteSummary(ctx context.Context, siteID string) (*models.SiteRiskSummary, error)
}
