// FilePath: internal/repository/postgres/postgres.payload.go
package postgres

import (
	"context"
	"database/sql"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/database"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/errors"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
)

type PayloadRepo struct {
	PostgresBaseRepo
}

func NewPayloadRepository(db database.DB) *PayloadRepo {
	repo := &PayloadRepo{PostgresBaseRepo: PostgresBaseRepo{db: db}}
	repo.initializeSchema()
	return repo
}

func (r *PayloadRepo) Create(ctx context.Context, payload *models.WakePayload) error {
	query := `
		INSERT INTO wake_payloads (
			id, device_id, session_id, image_id, captured_at,
			wake_window_index, overage,
			temperature, humidity, pressure, gas_resistance,
			battery_voltage, signal_strength, extra_telemetry,
			status, created_at, updated_at
		) VALUES (
			:id, :device_id, :session_id, :image_id, :captured_at,
			:wake_window_index, :overage,
			:temperature, :humidity, :pressure, :gas_resistance,
			:battery_voltage, :signal_strength, :extra_telemetry,
			:status, :created_at, :updated_at
		)`

	_, err := r.db.GetDB().NamedExecContext(ctx, query, payload)
	if err != nil {
		return errors.NewDatabaseError("failed to create wake payload", err)
	}
	return nil
}

func (r *PayloadRepo) Get(ctx context.Context, id string) (*models.WakePayload, error) {
	payload := &models.WakePayload{}
	query := `SELECT * FROM wake_payloads WHERE id = $1`

	err := r.db.GetDB().GetContext(ctx, payload, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.NewDatabaseError("failed to get wake payload", err)
	}
	return payload, nil
}

func (r *PayloadRepo) GetByImageID(ctx context.Context, imageID string) (*models.WakePayload, error) {
	payload := &models.WakePayload{}
	query := `SELECT * FROM wake_payloads WHERE image_id = $1`

	err := r.db.GetDB().GetContext(ctx, payload, query, imageID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.NewDatabaseError("failed to get wake payload", err)
	}
	return payload, nil
}

func (r *PayloadRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE wake_payloads SET status = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.GetDB().ExecContext(ctx, query, id, status)
	if err != nil {
		return errors.NewDatabaseError("failed to update payload status", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *PayloadRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM wake_payloads WHERE session_id = $1`

	err := r.db.GetDB().GetContext(ctx, &count, query, sessionID)
	if err != nil {
		return 0, errors.NewDatabaseError("failed to count payloads", err)
	}
	return count, nil
}

// LatestClimate returns the newest payload of the device carrying both a
// temperature and a humidity reading.
func (r *PayloadRepo) LatestClimate(ctx context.Context, deviceID string) (*models.ClimateSample, error) {
	sample := &models.ClimateSample{}
	query := `
		SELECT device_id, temperature, humidity, captured_at
		FROM wake_payloads
		WHERE device_id = $1 AND temperature IS NOT NULL AND humidity IS NOT NULL
		ORDER BY captured_at DESC
		LIMIT 1`

	err := r.db.GetDB().GetContext(ctx, sample, query, deviceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.NewDatabaseError("failed to get latest climate sample", err)
	}
	return sample, nil
}

func (r *PayloadRepo) initializeSchema() error {
	query := `
        CREATE INDEX IF NOT EXISTS idx_wake_payloads_device_captured
        ON wake_payloads(device_id, captured_at DESC)`

	_, err := r.db.GetDB().Exec(query)
	if err != nil {
		return errors.NewDatabaseError("failed to create index", err)
	}
	return nil
}
