// FilePath: internal/repository/postgres/postgres.device.go
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/database"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/errors"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
)

type DeviceRepo struct {
	PostgresBaseRepo
}

func NewDeviceRepository(db database.DB) *DeviceRepo {
	return &DeviceRepo{PostgresBaseRepo: PostgresBaseRepo{db: db}}
}

func (r *DeviceRepo) Get(ctx context.Context, id string) (*models.Device, error) {
	device := &models.Device{}
	query := `SELECT * FROM devices WHERE id = $1`

	err := r.db.GetDB().GetContext(ctx, device, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.NewDatabaseError("failed to get device", err)
	}
	return device, nil
}

func (r *DeviceRepo) ListActiveBySite(ctx context.Context, siteID string) ([]*models.Device, error) {
	devices := []*models.Device{}
	query := `
		SELECT * FROM devices
		WHERE site_id = $1 AND active = TRUE
		ORDER BY id`

	err := r.db.GetDB().SelectContext(ctx, &devices, query, siteID)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list devices", err)
	}
	return devices, nil
}

func (r *DeviceRepo) ListActiveSiteIDs(ctx context.Context) ([]string, error) {
	siteIDs := []string{}
	query := `
		SELECT DISTINCT site_id FROM devices
		WHERE site_id IS NOT NULL AND active = TRUE
		ORDER BY site_id`

	err := r.db.GetDB().SelectContext(ctx, &siteIDs, query)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list active sites", err)
	}
	return siteIDs, nil
}

func (r *DeviceRepo) UpdateLastSeen(ctx context.Context, id string, seen time.Time, pendingImages int) error {
	query := `
		UPDATE devices
		SET last_seen = $2, pending_images = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.GetDB().ExecContext(ctx, query, id, seen, pendingImages)
	if err != nil {
		return errors.NewDatabaseError("failed to update device last seen", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *DeviceRepo) Touch(ctx context.Context, id string, seen time.Time) error {
	query := `
		UPDATE devices
		SET last_seen = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.GetDB().ExecContext(ctx, query, id, seen)
	if err != nil {
		return errors.NewDatabaseError("failed to touch device", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
