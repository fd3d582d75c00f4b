// FilePath: internal/repository/postgres/postgres.image_test.go
package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
)

func newImageRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *ImageRepo) {
	db, mock, wrapped := setupMockDB(t)

	mock.ExpectExec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_images_device_name`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	return db, mock, NewImageRepository(wrapped)
}

func testImage() *models.Image {
	return &models.Image{
		ID:         "img_test01",
		DeviceID:   "B8F862F9CFB8",
		ImageName:  "image_1712000000.jpg",
		Status:     models.ImageStatusReceiving,
		CapturedAt: time.Date(2026, 3, 14, 8, 2, 0, 0, time.UTC),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func TestImageCreate_DuplicateStableKey(t *testing.T) {
	db, mock, repo := newImageRepo(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO images`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), testImage())
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkComplete_Transitions(t *testing.T) {
	db, mock, repo := newImageRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE images`).
		WithArgs("img_test01", "https://img.example.com/1_x.jpg").
		WillReturnResult(sqlmock.NewResult(0, 1))

	transitioned, err := repo.MarkComplete(context.Background(), "img_test01", "https://img.example.com/1_x.jpg")
	require.NoError(t, err)
	assert.True(t, transitioned)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkComplete_AlreadyTerminal(t *testing.T) {
	db, mock, repo := newImageRepo(t)
	defer db.Close()

	// The status guard filters out terminal rows, so the update misses.
	mock.ExpectExec(`UPDATE images`).
		WithArgs("img_test01", "https://img.example.com/1_x.jpg").
		WillReturnResult(sqlmock.NewResult(0, 0))

	transitioned, err := repo.MarkComplete(context.Background(), "img_test01", "https://img.example.com/1_x.jpg")
	require.NoError(t, err)
	assert.False(t, transitioned)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailed_AlreadyTerminal(t *testing.T) {
	db, mock, repo := newImageRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE images`).
		WithArgs("img_test01", "missing_chunks", "3 chunks missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	transitioned, err := repo.MarkFailed(context.Background(), "img_test01", "missing_chunks", "3 chunks missing")
	require.NoError(t, err)
	assert.False(t, transitioned)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRetry_WithURLCompletes(t *testing.T) {
	db, mock, repo := newImageRepo(t)
	defer db.Close()

	url := "https://img.example.com/2_x.jpg"
	receivedAt := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE images`).
		WithArgs("img_test01", url, receivedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := repo.BeginTx(context.Background())
	require.NoError(t, err)

	err = repo.ApplyRetry(context.Background(), tx, "img_test01", &url, receivedAt)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRetry_WithoutURLRecordsResend(t *testing.T) {
	db, mock, repo := newImageRepo(t)
	defer db.Close()

	receivedAt := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE images`).
		WithArgs("img_test01", receivedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := repo.BeginTx(context.Background())
	require.NoError(t, err)

	err = repo.ApplyRetry(context.Background(), tx, "img_test01", nil, receivedAt)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByStableKeyForUpdate_NotFound(t *testing.T) {
	db, mock, repo := newImageRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM images WHERE device_id .* FOR UPDATE`).
		WithArgs("B8F862F9CFB8", "image_unknown.jpg").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	tx, err := repo.BeginTx(context.Background())
	require.NoError(t, err)

	_, err = repo.GetByStableKeyForUpdate(context.Background(), tx, "B8F862F9CFB8", "image_unknown.jpg")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}
