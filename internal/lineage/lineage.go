// FilePath: internal/lineage/lineage.go

// Package lineage resolves a raw device identifier to its current
// site/program/company placement. Assignments change rarely and are read on
// every wake, so resolution goes through a Redis cache-aside with TTL.
package lineage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	nuts "github.com/vaudience/go-nuts"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
)

// ErrDeviceNotAssigned indicates the device exists but has no active site
// assignment, or is deactivated.
var ErrDeviceNotAssigned = errors.New("device has no active site assignment")

type Resolver struct {
	devices repository.DeviceRepository
	cache   *redis.Client
	ttl     time.Duration
}

// NewResolver creates a lineage resolver. cache may be nil, in which case
// every resolution hits the database.
func NewResolver(devices repository.DeviceRepository, cache *redis.Client, ttl time.Duration) *Resolver {
	return &Resolver{devices: devices, cache: cache, ttl: ttl}
}

func cacheKey(deviceID string) string {
	return fmt.Sprintf("device:lineage:%s", deviceID)
}

// Resolve returns the device's placement, from cache when possible.
func (r *Resolver) Resolve(ctx context.Context, deviceID string) (*models.Lineage, error) {
	if r.cache != nil {
		val, err := r.cache.Get(ctx, cacheKey(deviceID)).Result()
		if err == nil {
			lin := &models.Lineage{}
			if jsonErr := json.Unmarshal([]byte(val), lin); jsonErr == nil {
				return lin, nil
			}
			// Corrupt cache entry falls through to the database.
		} else if err != redis.Nil {
			nuts.L.Warnf("[Lineage] Cache read failed for %s: %v", deviceID, err)
		}
	}

	device, err := r.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !device.Active || device.SiteID == nil || *device.SiteID == "" {
		return nil, ErrDeviceNotAssigned
	}

	lin := &models.Lineage{
		DeviceID:     device.ID,
		SiteID:       *device.SiteID,
		WakeSchedule: device.WakeSchedule,
		Timezone:     device.Timezone,
	}
	if device.ProgramID != nil {
		lin.ProgramID = *device.ProgramID
	}
	if device.CompanyID != nil {
		lin.CompanyID = *device.CompanyID
	}
	if lin.Timezone == "" {
		lin.Timezone = "UTC"
	}

	if r.cache != nil {
		if data, jsonErr := json.Marshal(lin); jsonErr == nil {
			if err := r.cache.Set(ctx, cacheKey(deviceID), data, r.ttl).Err(); err != nil {
				nuts.L.Warnf("[Lineage] Cache write failed for %s: %v", deviceID, err)
			}
		}
	}
	return lin, nil
}

// Invalidate drops the cached placement for a device.
func (r *Resolver) Invalidate(ctx context.Context, deviceID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, cacheKey(deviceID)).Err(); err != nil {
		nuts.L.Warnf("[Lineage] Cache invalidation failed for %s: %v", deviceID, err)
	}
}
