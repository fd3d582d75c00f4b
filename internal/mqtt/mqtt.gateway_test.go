// FilePath: internal/mqtt/mqtt.gateway_test.go
package mqtt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/config"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/database"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/hubservice"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/monitoring"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
)

// Minimal repositories for exercising the gateway's completion paths.

type gwImageRepo struct {
	images map[string]*models.Image
}

func (r *gwImageRepo) BeginTx(ctx context.Context) (database.Transaction, error) {
	return nil, repository.ErrNotFound
}

func (r *gwImageRepo) Create(ctx context.Context, img *models.Image) error {
	r.images[img.ID] = img
	return nil
}

func (r *gwImageRepo) Get(ctx context.Context, id string) (*models.Image, error) {
	img, ok := r.images[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *img
	return &copied, nil
}

func (r *gwImageRepo) GetByStableKey(ctx context.Context, deviceID, imageName string) (*models.Image, error) {
	return nil, repository.ErrNotFound
}

func (r *gwImageRepo) GetByStableKeyForUpdate(ctx context.Context, tx database.Transaction, deviceID, imageName string) (*models.Image, error) {
	return nil, repository.ErrNotFound
}

func (r *gwImageRepo) MarkComplete(ctx context.Context, id, url string) (bool, error) {
	img, ok := r.images[id]
	if !ok || img.Terminal() {
		return false, nil
	}
	img.Status = models.ImageStatusComplete
	img.URL = &url
	return true, nil
}

func (r *gwImageRepo) MarkFailed(ctx context.Context, id, code, message string) (bool, error) {
	img, ok := r.images[id]
	if !ok || img.Terminal() {
		return false, nil
	}
	img.Status = models.ImageStatusFailed
	img.ErrorCode = &code
	img.ErrorMessage = &message
	return true, nil
}

func (r *gwImageRepo) ApplyRetry(ctx context.Context, tx database.Transaction, id string, url *string, receivedAt time.Time) error {
	return nil
}

type gwPayloadRepo struct{}

func (r *gwPayloadRepo) BeginTx(ctx context.Context) (database.Transaction, error) {
	return nil, repository.ErrNotFound
}
func (r *gwPayloadRepo) Create(ctx context.Context, p *models.WakePayload) error { return nil }
func (r *gwPayloadRepo) Get(ctx context.Context, id string) (*models.WakePayload, error) {
	return nil, repository.ErrNotFound
}
func (r *gwPayloadRepo) GetByImageID(ctx context.Context, imageID string) (*models.WakePayload, error) {
	return nil, repository.ErrNotFound
}
func (r *gwPayloadRepo) UpdateStatus(ctx context.Context, id, status string) error { return nil }
func (r *gwPayloadRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	return 0, nil
}
func (r *gwPayloadRepo) LatestClimate(ctx context.Context, deviceID string) (*models.ClimateSample, error) {
	return nil, repository.ErrNotFound
}

// An assembled image that cannot be written to disk must end up failed, not
// stuck in receiving with no retry left to rescue it.
func TestFinalize_StorageErrorFailsImage(t *testing.T) {
	images := &gwImageRepo{images: map[string]*models.Image{
		"img1": {ID: "img1", DeviceID: "dev1", ImageName: "image_001.jpg", Status: models.ImageStatusReceiving},
	}}
	hub := hubservice.New(
		nil, nil, &gwPayloadRepo{}, images, nil, nil,
		nil, monitoring.NewService(), nil, hubservice.Options{},
	)

	// A regular file where the image directory should be makes MkdirAll fail.
	blocker := filepath.Join(t.TempDir(), "not_a_dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	g := &Gateway{
		hub:        hub,
		assemblies: newAssembler(),
		cfg: config.MQTTConfig{
			ImageDir:     filepath.Join(blocker, "images"),
			ImageBaseURL: "https://img.example.com",
		},
	}

	g.finalize(&snapshot{
		deviceID:    "dev1",
		imageName:   "image_001.jpg",
		imageID:     "img1",
		totalChunks: 1,
		complete:    true,
		data:        []byte{0xFF, 0xD8},
	})

	img, err := images.Get(context.Background(), "img1")
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusFailed, img.Status)
	require.NotNil(t, img.ErrorCode)
	assert.Equal(t, "storage_error", *img.ErrorCode)
}

func TestStoreImage_WritesUnderImageDir(t *testing.T) {
	dir := t.TempDir()
	g := &Gateway{cfg: config.MQTTConfig{
		ImageDir:     dir,
		ImageBaseURL: "https://img.example.com/",
	}}

	url, err := g.storeImage(&snapshot{
		deviceID:  "dev1",
		imageName: "image_001.jpg",
		data:      []byte{0xFF, 0xD8},
	})
	require.NoError(t, err)
	assert.Contains(t, url, "https://img.example.com/")
	assert.Contains(t, url, "dev1_image_001.jpg")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
