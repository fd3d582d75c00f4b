// FilePath: internal/repository/postgres/postgres.device_test.go
package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
)

func TestDeviceUpdateLastSeen_SetsGauge(t *testing.T) {
	db, mock, wrapped := setupMockDB(t)
	defer db.Close()
	repo := NewDeviceRepository(wrapped)

	seen := time.Now()
	mock.ExpectExec(`UPDATE devices\s+SET last_seen = \$2, pending_images = \$3, updated_at = NOW\(\)\s+WHERE id = \$1`).
		WithArgs("dev_1", seen, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateLastSeen(context.Background(), "dev_1", seen, 4)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceTouch_LeavesGaugeAlone(t *testing.T) {
	db, mock, wrapped := setupMockDB(t)
	defer db.Close()
	repo := NewDeviceRepository(wrapped)

	seen := time.Now()
	mock.ExpectExec(`UPDATE devices\s+SET last_seen = \$2, updated_at = NOW\(\)\s+WHERE id = \$1`).
		WithArgs("dev_1", seen).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Touch(context.Background(), "dev_1", seen)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceTouch_NotFound(t *testing.T) {
	db, mock, wrapped := setupMockDB(t)
	defer db.Close()
	repo := NewDeviceRepository(wrapped)

	mock.ExpectExec(`UPDATE devices`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Touch(context.Background(), "dev_missing", time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
