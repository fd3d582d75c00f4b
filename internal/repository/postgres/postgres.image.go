// FilePath: internal/repository/postgres/postgres.image.go
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/database"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/errors"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
)

type ImageRepo struct {
	PostgresBaseRepo
}

func NewImageRepository(db database.DB) *ImageRepo {
	repo := &ImageRepo{PostgresBaseRepo: PostgresBaseRepo{db: db}}
	repo.initializeSchema()
	return repo
}

func (r *ImageRepo) Create(ctx context.Context, image *models.Image) error {
	query := `
		INSERT INTO images (
			id, device_id, image_name, status, url,
			size_bytes, total_chunks, retry_count, resent_received_at,
			error_code, error_message, captured_at, created_at, updated_at
		) VALUES (
			:id, :device_id, :image_name, :status, :url,
			:size_bytes, :total_chunks, :retry_count, :resent_received_at,
			:error_code, :error_message, :captured_at, :created_at, :updated_at
		)`

	_, err := r.db.GetDB().NamedExecContext(ctx, query, image)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return repository.ErrDuplicate
		}
		return errors.NewDatabaseError("failed to create image record", err)
	}
	return nil
}

func (r *ImageRepo) Get(ctx context.Context, id string) (*models.Image, error) {
	image := &models.Image{}
	query := `SELECT * FROM images WHERE id = $1`

	err := r.db.GetDB().GetContext(ctx, image, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.NewDatabaseError("failed to get image", err)
	}
	return image, nil
}

func (r *ImageRepo) GetByStableKey(ctx context.Context, deviceID, imageName string) (*models.Image, error) {
	image := &models.Image{}
	query := `SELECT * FROM images WHERE device_id = $1 AND image_name = $2`

	err := r.db.GetDB().GetContext(ctx, image, query, deviceID, imageName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.NewDatabaseError("failed to get image", err)
	}
	return image, nil
}

// GetByStableKeyForUpdate locks the image row inside tx so concurrent retries
// of the same device+name serialize on it.
func (r *ImageRepo) GetByStableKeyForUpdate(ctx context.Context, tx database.Transaction, deviceID, imageName string) (*models.Image, error) {
	image := &models.Image{}
	query := `SELECT * FROM images WHERE device_id = $1 AND image_name = $2 FOR UPDATE`

	err := tx.GetContext(ctx, image, query, deviceID, imageName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.NewDatabaseError("failed to lock image row", err)
	}
	return image, nil
}

// MarkComplete transitions the image out of its non-terminal state. A false
// return means the image was already complete or failed.
func (r *ImageRepo) MarkComplete(ctx context.Context, id, url string) (bool, error) {
	query := `
		UPDATE images
		SET status = 'complete', url = $2, error_code = NULL, error_message = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('complete', 'failed')`

	result, err := r.db.GetDB().ExecContext(ctx, query, id, url)
	if err != nil {
		return false, errors.NewDatabaseError("failed to complete image", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (r *ImageRepo) MarkFailed(ctx context.Context, id, code, message string) (bool, error) {
	query := `
		UPDATE images
		SET status = 'failed', error_code = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('complete', 'failed')`

	result, err := r.db.GetDB().ExecContext(ctx, query, id, code, message)
	if err != nil {
		return false, errors.NewDatabaseError("failed to fail image", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// ApplyRetry mutates the locked image row for a resent transmission. The
// query deliberately never touches captured_at: it anchors the original
// telemetry and session membership.
func (r *ImageRepo) ApplyRetry(ctx context.Context, tx database.Transaction, id string, url *string, receivedAt time.Time) error {
	var query string
	var args []interface{}

	if url != nil {
		query = `
			UPDATE images
			SET status = 'complete', url = $2,
			    retry_count = retry_count + 1, resent_received_at = $3,
			    error_code = NULL, error_message = NULL, updated_at = NOW()
			WHERE id = $1`
		args = []interface{}{id, *url, receivedAt}
	} else {
		query = `
			UPDATE images
			SET status = 'receiving',
			    retry_count = retry_count + 1, resent_received_at = $2,
			    updated_at = NOW()
			WHERE id = $1`
		args = []interface{}{id, receivedAt}
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.NewDatabaseError("failed to apply image retry", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ImageRepo) initializeSchema() error {
	query := `
        CREATE UNIQUE INDEX IF NOT EXISTS idx_images_device_name
        ON images(device_id, image_name)`

	_, err := r.db.GetDB().Exec(query)
	if err != nil {
		return errors.NewDatabaseError("failed to create index", err)
	}
	return nil
}
