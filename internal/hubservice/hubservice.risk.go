package hubservice

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
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/risk"
)

// RiskService handles mold-risk computation and read access
type RiskService interface {
	RecomputeDeviceRisk(ctx context.Context, deviceID string) (*models.RiskState, error)
	GetDeviceRiskState(ctx context.Context, deviceID string) (*models.RiskState, error)
	GetSiteRiskSummary(ctx context.Context, siteID string) (*models.SiteRiskSummary, error)
}

func siteRiskKey(siteID string) string {
	return fmt.Sprintf("site:risk:%s", siteID)
}

// RecomputeDeviceRisk advances the device's mold index one step using its
// latest climate sample and refreshes the persisted state: current level,
// 24/48/72h persistence forecasts, and the time-to-next-level estimate.
// Devices without any usable climate sample are skipped.
func (s *HubService) RecomputeDeviceRisk(ctx context.Context, deviceID string) (*models.RiskState, error) {
	sample, err := s.Payloads.LatestClimate(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			nuts.L.Infof("[Risk] No climate sample for device %s, skipping", deviceID)
			return nil, nil
		}
		return nil, err
	}

	currentIndex := 0.0
	if prev, err := s.RiskStates.Get(ctx, deviceID); err == nil {
		currentIndex = prev.MoldIndex
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	tempC, rh := sample.TemperatureC, sample.Humidity
	index := risk.Evolve(currentIndex, tempC, rh)
	rate := risk.GrowthRatePerHour(tempC, rh, index)

	f24 := risk.Forecast(index, tempC, rh, 24)
	f48 := risk.Forecast(index, tempC, rh, 48)
	f72 := risk.Forecast(index, tempC, rh, 72)

	state := &models.RiskState{
		DeviceID:         deviceID,
		MoldIndex:        index,
		RiskLevel:        risk.Level(index),
		LastTemperatureC: &tempC,
		LastHumidity:     &rh,
		CriticalRH:       risk.CriticalRH(tempC),
		Forecast24Index:  f24,
		Forecast24Level:  risk.Level(f24),
		Forecast48Index:  f48,
		Forecast48Level:  risk.Level(f48),
		Forecast72Index:  f72,
		Forecast72Level:  risk.Level(f72),
		HoursToNextLevel: risk.HoursToNextLevel(index, rate),
		CalculatedAt:     time.Now(),
	}
	if err := s.RiskStates.Upsert(ctx, state); err != nil {
		return nil, err
	}

	if lin, err := s.Lineage.Resolve(ctx, deviceID); err == nil {
		s.invalidateSiteRisk(ctx, lin.SiteID)
	}

	nuts.L.Infof("[Risk] Device %s index %.3f (%s), 72h forecast %.3f (%s)",
		deviceID, index, state.RiskLevel, f72, state.Forecast72Level)
	return state, nil
}

// GetDeviceRiskState returns the persisted risk record for a device.
func (s *HubService) GetDeviceRiskState(ctx context.Context, deviceID string) (*models.RiskState, error) {
	return s.RiskStates.Get(ctx, deviceID)
}

// GetSiteRiskSummary aggregates risk over all active devices of a site. The
// aggregate is cached briefly since dashboards poll it far more often than
// device wakes change it.
func (s *HubService) GetSiteRiskSummary(ctx context.Context, siteID string) (*models.SiteRiskSummary, error) {
	if s.cache != nil {
		val, err := s.cache.Get(ctx, siteRiskKey(siteID)).Result()
		if err == nil {
			summary := &models.SiteRiskSummary{}
			if jsonErr := json.Unmarshal([]byte(val), summary); jsonErr == nil {
				return summary, nil
			}
		} else if err != redis.Nil {
			nuts.L.Warnf("[Risk] Cache read failed for site %s: %v", siteID, err)
		}
	}

	summary, err := s.RiskStates.SiteSummary(ctx, siteID)
	if err != nil {
		return nil, err
	}
	summary.WorstLevel = risk.Level(summary.WorstIndex)

	if s.cache != nil {
		if data, jsonErr := json.Marshal(summary); jsonErr == nil {
			if err := s.cache.Set(ctx, siteRiskKey(siteID), data, s.summaryTTL).Err(); err != nil {
				nuts.L.Warnf("[Risk] Cache write failed for site %s: %v", siteID, err)
			}
		}
	}
	return summary, nil
}

func (s *HubService) invalidateSiteRisk(ctx context.Context, siteID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, siteRiskKey(siteID)).Err(); err != nil {
		nuts.L.Warnf("[Risk] Cache invalidation failed for site %s: %v", siteID, err)
	}
}
