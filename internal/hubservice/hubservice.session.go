package hubservice

import (
	"context"
	"errors"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/schedule"
)

// SessionService handles session-related business logic
type SessionService interface {
	GetOrOpenSession(ctx context.Context, siteID string, at time.Time, loc *time.Location) (*models.SiteSession, error)
	LockSession(ctx context.Context, siteID string, date time.Time) error
	OpenDailySessions(ctx context.Context, now time.Time) (int, error)
	LockExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	GetSessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error)
}

// GetOrOpenSession returns the session covering `at` for the site, creating
// it lazily on the first wake of the day. Concurrent first-wakes race on the
// (site, date) unique index; the loser reads the winner's row.
func (s *HubService) GetOrOpenSession(ctx context.Context, siteID string, at time.Time, loc *time.Location) (*models.SiteSession, error) {
	localAt := at.In(loc)
	date := time.Date(localAt.Year(), localAt.Month(), localAt.Day(), 0, 0, 0, 0, loc)

	session, err := s.Sessions.GetBySiteAndDate(ctx, siteID, date)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	candidate := &models.SiteSession{
		ID:                nuts.NID("ses", 12),
		SiteID:            siteID,
		SessionDate:       date,
		StartsAt:          date,
		EndsAt:            date.AddDate(0, 0, 1),
		ExpectedWakeCount: s.expectedWakeCount(ctx, siteID),
		Status:            models.SessionStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	created, err := s.Sessions.Create(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if created {
		nuts.L.Infof("[SessionService] Opened session %s for site %s on %s (expecting %d wakes)",
			candidate.ID, siteID, date.Format("2006-01-02"), candidate.ExpectedWakeCount)
		return candidate, nil
	}

	// Lost the create race; the row now exists.
	return s.Sessions.GetBySiteAndDate(ctx, siteID, date)
}

// expectedWakeCount sums schedule slot counts over the site's active devices.
// A device with an unparseable schedule contributes nothing and is logged.
func (s *HubService) expectedWakeCount(ctx context.Context, siteID string) int {
	devices, err := s.Devices.ListActiveBySite(ctx, siteID)
	if err != nil {
		nuts.L.Warnf("[SessionService] Failed to list devices for site %s: %v", siteID, err)
		return 0
	}

	total := 0
	for _, device := range devices {
		sched, err := schedule.Parse(device.WakeSchedule)
		if err != nil {
			nuts.L.Warnf("[SessionService] Device %s has invalid wake schedule %q: %v",
				device.ID, device.WakeSchedule, err)
			continue
		}
		total += sched.SlotCount()
	}
	return total
}

// sessionForWake returns the session a wake belongs to. A wake landing on a
// locked session is never written there; it re-routes to the next calendar
// day, flagged as rerouted so the caller marks it overage.
func (s *HubService) sessionForWake(ctx context.Context, siteID string, capturedAt time.Time, loc *time.Location) (*models.SiteSession, bool, error) {
	session, err := s.GetOrOpenSession(ctx, siteID, capturedAt, loc)
	if err != nil {
		return nil, false, err
	}
	if session.Status != models.SessionStatusLocked {
		return session, false, nil
	}

	nuts.L.Warnf("[SessionService] Late wake for site %s lands on locked session %s, rerouting to next day",
		siteID, session.ID)
	next, err := s.GetOrOpenSession(ctx, siteID, session.EndsAt, loc)
	if err != nil {
		return nil, false, err
	}
	if next.Status == models.SessionStatusLocked {
		return nil, false, repository.ErrSessionLocked
	}
	return next, true, nil
}

// LockSession finalizes the session for (site, date). One-way; a locked
// session is never reopened.
func (s *HubService) LockSession(ctx context.Context, siteID string, date time.Time) error {
	if err := s.Sessions.Lock(ctx, siteID, date); err != nil {
		return err
	}
	s.Monitoring.RecordEvent("session.locked", map[string]string{
		"site_id": siteID,
		"date":    date.Format("2006-01-02"),
	})
	return nil
}

// OpenDailySessions eagerly creates today's session for every active site.
// Invoked by the scheduler so first wakes don't pay the create cost.
func (s *HubService) OpenDailySessions(ctx context.Context, now time.Time) (int, error) {
	siteIDs, err := s.Devices.ListActiveSiteIDs(ctx)
	if err != nil {
		return 0, err
	}

	opened := 0
	for _, siteID := range siteIDs {
		loc, err := s.siteLocation(ctx, siteID)
		if err != nil {
			nuts.L.Warnf("[SessionService] Skipping site %s: %v", siteID, err)
			continue
		}
		if _, err := s.GetOrOpenSession(ctx, siteID, now, loc); err != nil {
			nuts.L.Errorf("[SessionService] Failed to open session for site %s: %v", siteID, err)
			continue
		}
		opened++
	}
	return opened, nil
}

// LockExpiredSessions locks every session whose end instant has passed.
func (s *HubService) LockExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	locked, err := s.Sessions.LockExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if locked > 0 {
		nuts.L.Infof("[SessionService] Locked %d expired sessions", locked)
		s.Monitoring.RecordEvent("sessions.expired_locked", map[string]string{})
	}
	return locked, nil
}

// GetSessionSummary returns the session with its actual payload count. A
// counter sum exceeding the payload count is correctness debt: surfaced, not
// fatal.
func (s *HubService) GetSessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	session, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	count, err := s.Payloads.CountBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.CompletedCount+session.FailedCount > count {
		s.Monitoring.RecordInvariantViolation("session counters exceed payload count", map[string]string{
			"session_id": sessionID,
		})
	}
	return &models.SessionSummary{Session: session, PayloadCount: count}, nil
}

// siteLocation resolves the site's timezone from its active devices.
// Provisioning keeps device timezones uniform within a site.
func (s *HubService) siteLocation(ctx context.Context, siteID string) (*time.Location, error) {
	devices, err := s.Devices.ListActiveBySite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	for _, device := range devices {
		if device.Timezone == "" {
			continue
		}
		if loc, err := time.LoadLocation(device.Timezone); err == nil {
			return loc, nil
		}
	}
	return time.UTC, nil
}
