// FilePath: internal/lineage/lineage_test.go
package lineage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/database"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
)

type stubDeviceRepo struct {
	devices map[string]*models.Device
}

func (r *stubDeviceRepo) BeginTx(ctx context.Context) (database.Transaction, error) { return nil, nil }

func (r *stubDeviceRepo) Get(ctx context.Context, id string) (*models.Device, error) {
	d, ok := r.devices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return d, nil
}

func (r *stubDeviceRepo) ListActiveBySite(ctx context.Context, siteID string) ([]*models.Device, error) {
	return nil, nil
}

func (r *stubDeviceRepo) ListActiveSiteIDs(ctx context.Context) ([]string, error) { return nil, nil }

func (r *stubDeviceRepo) UpdateLastSeen(ctx context.Context, id string, seen time.Time, pendingImages int) error {
	return nil
}

func (r *stubDeviceRepo) Touch(ctx context.Context, id string, seen time.Time) error { return nil }

func strPtr(s string) *string { return &s }

func TestResolve_AssignedDevice(t *testing.T) {
	repo := &stubDeviceRepo{devices: map[string]*models.Device{
		"dev1": {
			ID:           "dev1",
			SiteID:       strPtr("site_a"),
			ProgramID:    strPtr("prog_1"),
			CompanyID:    strPtr("comp_1"),
			WakeSchedule: "08:00,16:00 daily",
			Timezone:     "Europe/Berlin",
			Active:       true,
		},
	}}
	r := NewResolver(repo, nil, time.Minute)

	lin, err := r.Resolve(context.Background(), "dev1")
	require.NoError(t, err)
	assert.Equal(t, "site_a", lin.SiteID)
	assert.Equal(t, "prog_1", lin.ProgramID)
	assert.Equal(t, "comp_1", lin.CompanyID)
	assert.Equal(t, "Europe/Berlin", lin.Timezone)
}

func TestResolve_TimezoneDefaultsToUTC(t *testing.T) {
	repo := &stubDeviceRepo{devices: map[string]*models.Device{
		"dev1": {ID: "dev1", SiteID: strPtr("site_a"), WakeSchedule: "08:00", Active: true},
	}}
	r := NewResolver(repo, nil, time.Minute)

	lin, err := r.Resolve(context.Background(), "dev1")
	require.NoError(t, err)
	assert.Equal(t, "UTC", lin.Timezone)
}

func TestResolve_UnknownDevice(t *testing.T) {
	r := NewResolver(&stubDeviceRepo{devices: map[string]*models.Device{}}, nil, time.Minute)

	_, err := r.Resolve(context.Background(), "dev_missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestResolve_UnassignedDevice(t *testing.T) {
	repo := &stubDeviceRepo{devices: map[string]*models.Device{
		"inactive": {ID: "inactive", SiteID: strPtr("site_a"), Active: false},
		"no_site":  {ID: "no_site", Active: true},
	}}
	r := NewResolver(repo, nil, time.Minute)

	_, err := r.Resolve(context.Background(), "inactive")
	assert.ErrorIs(t, err, ErrDeviceNotAssigned)

	_, err = r.Resolve(context.Background(), "no_site")
	assert.ErrorIs(t, err, ErrDeviceNotAssigned)
}
