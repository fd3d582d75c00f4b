package hubservice

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/errors"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/lineage"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/monitoring"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
)

// HubService contains all repositories and service-wide dependencies
type HubService struct {
	Devices      repository.DeviceRepository
	Sessions     repository.SessionRepository
	Payloads     repository.PayloadRepository
	Images       repository.ImageRepository
	Observations repository.ObservationRepository
	RiskStates   repository.RiskStateRepository
	Lineage      *lineage.Resolver
	Monitoring   *monitoring.Service

	cache      *redis.Client
	overageMax time.Duration
	summaryTTL time.Duration
}

// Options tunes service behavior that is configuration, not wiring.
type Options struct {
	// OverageToleranceMax caps the per-schedule overage tolerance window.
	OverageToleranceMax time.Duration
	// SiteSummaryTTL bounds staleness of the cached site risk summary.
	SiteSummaryTTL time.Duration
}

// New creates a new HubService instance
func New(
	devices repository.DeviceRepository,
	sessions repository.SessionRepository,
	payloads repository.PayloadRepository,
	images repository.ImageRepository,
	observations repository.ObservationRepository,
	riskStates repository.RiskStateRepository,
	resolver *lineage.Resolver,
	mon *monitoring.Service,
	cache *redis.Client,
	opts Options,
) *HubService {
	if opts.OverageToleranceMax <= 0 {
		opts.OverageToleranceMax = 90 * time.Minute
	}
	if opts.SiteSummaryTTL <= 0 {
		opts.SiteSummaryTTL = time.Minute
	}
	return &HubService{
		Devices:      devices,
		Sessions:     sessions,
		Payloads:     payloads,
		Images:       images,
		Observations: observations,
		RiskStates:   riskStates,
		Lineage:      resolver,
		Monitoring:   mon,
		cache:        cache,
		overageMax:   opts.OverageToleranceMax,
		summaryTTL:   opts.SiteSummaryTTL,
	}
}

// Validate checks if all required dependencies are initialized
func (s *HubService) Validate() error {
	if s.Devices == nil {
		return ErrMissingDependency("devices")
	}
	if s.Sessions == nil {
		return ErrMissingDependency("sessions")
	}
	if s.Payloads == nil {
		return ErrMissingDependency("payloads")
	}
	if s.Images == nil {
		return ErrMissingDependency("images")
	}
	if s.Observations == nil {
		return ErrMissingDependency("observations")
	}
	if s.RiskStates == nil {
		return ErrMissingDependency("riskStates")
	}
	if s.Lineage == nil {
		return ErrMissingDependency("lineage")
	}
	if s.Monitoring == nil {
		return ErrMissingDependency("monitoring")
	}
	return nil
}

func ErrMissingDependency(name string) error {
	return errors.NewInternalError("missing dependency: "+name, nil)
}
