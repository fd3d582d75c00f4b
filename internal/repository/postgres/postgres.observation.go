// FilePath: internal/repository/postgres/postgres.observation.go
package postgres

import (
	"context"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/database"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/errors"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
)

type ObservationRepo struct {
	PostgresBaseRepo
}

func NewObservationRepository(db database.DB) *ObservationRepo {
	repo := &ObservationRepo{PostgresBaseRepo: PostgresBaseRepo{db: db}}
	repo.initializeSchema()
	return repo
}

// CreateIfAbsent inserts the observation unless one already exists for the
// same image URL. Retried completions therefore never duplicate downstream
// records.
func (r *ObservationRepo) CreateIfAbsent(ctx context.Context, obs *models.Observation) (bool, error) {
	query := `
		INSERT INTO observations (
			id, device_id, site_id, program_id, company_id,
			image_url, observed_at, created_at
		) VALUES (
			:id, :device_id, :site_id, :program_id, :company_id,
			:image_url, :observed_at, :created_at
		)
		ON CONFLICT (image_url) DO NOTHING`

	result, err := r.db.GetDB().NamedExecContext(ctx, query, obs)
	if err != nil {
		return false, errors.NewDatabaseError("failed to create observation", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewDatabaseError("failed to read insert result", err)
	}
	return rows == 1, nil
}

func (r *ObservationRepo) initializeSchema() error {
	query := `
        CREATE UNIQUE INDEX IF NOT EXISTS idx_observations_image_url
        ON observations(image_url)`

	_, err := r.db.GetDB().Exec(query)
	if err != nil {
		return errors.NewDatabaseError("failed to create index", err)
	}
	return nil
}
