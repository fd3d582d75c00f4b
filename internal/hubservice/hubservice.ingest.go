package hubservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/schedule"
)

// ErrUnknownDevice wraps repository.ErrNotFound for ingestion callers.
var ErrUnknownDevice = errors.New("unknown device")

// IngestService handles wake-ingestion business logic
type IngestService interface {
	IngestWake(ctx context.Context, req *WakeRequest) (*IngestResult, error)
	RecordDeviceStatus(ctx context.Context, deviceID string, pendingImages int, seen time.Time) error
	NextWakeTime(ctx context.Context, deviceID string, after time.Time) (time.Time, error)
}

// WakeRequest is one wake transmission from a device: the capture metadata
// plus the telemetry snapshot taken at wake time.
type WakeRequest struct {
	DeviceID   string           `json:"device_id"`
	CapturedAt time.Time        `json:"capture_timestamp"`
	ImageName  string           `json:"image_name"`
	ImageSize  *int64           `json:"image_size"`
	ChunkCount *int             `json:"total_chunks_count"`
	Telemetry  models.Telemetry `json:"telemetry"`
}

// IngestResult identifies the records a wake transmission produced or, for a
// retransmission, the ones it landed on.
type IngestResult struct {
	PayloadID string  `json:"payload_id"`
	ImageID   *string `json:"image_id,omitempty"`
	SessionID string  `json:"session_id"`
	WakeIndex int     `json:"wake_window_index"`
	Overage   bool    `json:"overage"`
}

// IngestWake processes one wake transmission end to end: lineage resolution,
// session placement, wake-slot inference, image and payload creation, and a
// synchronous risk recompute when the telemetry carries a climate reading.
//
// Re-sending the same capture (same device and image name) is idempotent: the
// existing payload is returned and no counter moves.
func (s *HubService) IngestWake(ctx context.Context, req *WakeRequest) (*IngestResult, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: missing device_id", repository.ErrInvalidInput)
	}
	if req.CapturedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing capture_timestamp", repository.ErrInvalidInput)
	}

	lin, err := s.Lineage.Resolve(ctx, req.DeviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, req.DeviceID)
		}
		return nil, err
	}

	loc, err := time.LoadLocation(lin.Timezone)
	if err != nil {
		nuts.L.Warnf("[Ingest] Device %s has invalid timezone %q, using UTC", req.DeviceID, lin.Timezone)
		loc = time.UTC
	}

	session, rerouted, err := s.sessionForWake(ctx, lin.SiteID, req.CapturedAt, loc)
	if err != nil {
		return nil, err
	}

	wakeIndex, overage := s.classifyWake(lin, req.CapturedAt.In(loc))
	overage = overage || rerouted

	var imageID *string
	if req.ImageName != "" {
		img, existed, err := s.upsertImage(ctx, req)
		if err != nil {
			return nil, err
		}
		imageID = &img.ID

		if existed {
			if img.Terminal() {
				nuts.L.Infof("[Ingest] Device %s re-sent settled image %s (status %s), ack was likely lost",
					req.DeviceID, req.ImageName, img.Status)
			}
			// Retransmission of a known capture. The payload already
			// exists; report it rather than double-counting the wake.
			if payload, err := s.Payloads.GetByImageID(ctx, img.ID); err == nil {
				nuts.L.Infof("[Ingest] Device %s re-sent image %s, reusing payload %s",
					req.DeviceID, req.ImageName, payload.ID)
				return &IngestResult{
					PayloadID: payload.ID,
					ImageID:   imageID,
					SessionID: payload.SessionID,
					WakeIndex: payload.WakeWindowIndex,
					Overage:   payload.Overage,
				}, nil
			} else if !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
			// Image row without a payload: an earlier ingest died between
			// the two writes. Fall through and create the payload now.
		}
	}

	now := time.Now()
	payload := &models.WakePayload{
		ID:              nuts.NID("wkp", 12),
		DeviceID:        req.DeviceID,
		SessionID:       session.ID,
		ImageID:         imageID,
		CapturedAt:      req.CapturedAt,
		WakeWindowIndex: wakeIndex,
		Overage:         overage,
		Status:          models.PayloadStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	payload.ApplyTelemetry(req.Telemetry)

	if err := s.Payloads.Create(ctx, payload); err != nil {
		return nil, err
	}

	if err := s.Sessions.MarkInProgress(ctx, session.ID); err != nil {
		nuts.L.Warnf("[Ingest] Failed to mark session %s in progress: %v", session.ID, err)
	}
	if overage {
		if err := s.Sessions.IncrementExtra(ctx, session.ID); err != nil {
			if errors.Is(err, repository.ErrSessionLocked) {
				s.Monitoring.RecordInvariantViolation("extra increment hit locked session", map[string]string{
					"session_id": session.ID,
					"payload_id": payload.ID,
				})
			} else {
				return nil, err
			}
		}
	}

	if err := s.Devices.Touch(ctx, req.DeviceID, req.CapturedAt); err != nil {
		nuts.L.Warnf("[Ingest] Failed to update last_seen for %s: %v", req.DeviceID, err)
	}

	if req.Telemetry.TemperatureC != nil && req.Telemetry.Humidity != nil {
		if _, err := s.RecomputeDeviceRisk(ctx, req.DeviceID); err != nil {
			nuts.L.Errorf("[Ingest] Risk recompute failed for %s: %v", req.DeviceID, err)
		}
	}

	s.Monitoring.RecordEvent("wake.ingested", map[string]string{
		"device_id":  req.DeviceID,
		"session_id": session.ID,
		"payload_id": payload.ID,
	})
	nuts.L.Infof("[Ingest] Wake from %s placed in session %s slot %d (overage=%t)",
		req.DeviceID, session.ID, wakeIndex, overage)

	return &IngestResult{
		PayloadID: payload.ID,
		ImageID:   imageID,
		SessionID: session.ID,
		WakeIndex: wakeIndex,
		Overage:   overage,
	}, nil
}

// classifyWake maps a wake instant onto the device's schedule: the nearest
// slot always wins, and the wake is overage when it falls outside the
// schedule's tolerance window around that slot.
func (s *HubService) classifyWake(lin *models.Lineage, localAt time.Time) (int, bool) {
	sched, err := schedule.Parse(lin.WakeSchedule)
	if err != nil {
		nuts.L.Warnf("[Ingest] Device %s has invalid wake schedule %q: %v",
			lin.DeviceID, lin.WakeSchedule, err)
		return 0, true
	}
	idx, dist := sched.Nearest(localAt)
	return idx, dist > sched.Tolerance(s.overageMax)
}

// upsertImage creates the image row for a capture, or returns the existing
// row when the stable key is already known. existed reports which happened.
func (s *HubService) upsertImage(ctx context.Context, req *WakeRequest) (*models.Image, bool, error) {
	now := time.Now()
	img := &models.Image{
		ID:          nuts.NID("img", 12),
		DeviceID:    req.DeviceID,
		ImageName:   req.ImageName,
		Status:      models.ImageStatusReceiving,
		SizeBytes:   req.ImageSize,
		TotalChunks: req.ChunkCount,
		CapturedAt:  req.CapturedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.Images.Create(ctx, img)
	if err == nil {
		return img, false, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, false, err
	}

	existing, err := s.Images.GetByStableKey(ctx, req.DeviceID, req.ImageName)
	if err != nil {
		return nil, false, err
	}
	return existing, true, nil
}

// RecordDeviceStatus handles a device liveness report.
func (s *HubService) RecordDeviceStatus(ctx context.Context, deviceID string, pendingImages int, seen time.Time) error {
	if err := s.Devices.UpdateLastSeen(ctx, deviceID, seen, pendingImages); err != nil {
		return err
	}
	if pendingImages > 0 {
		nuts.L.Infof("[Ingest] Device %s reports %d pending images", deviceID, pendingImages)
	}
	return nil
}

// NextWakeTime returns the device's next scheduled wake instant after the
// given time, in the device's local timezone.
func (s *HubService) NextWakeTime(ctx context.Context, deviceID string, after time.Time) (time.Time, error) {
	lin, err := s.Lineage.Resolve(ctx, deviceID)
	if err != nil {
		return time.Time{}, err
	}
	sched, err := schedule.Parse(lin.WakeSchedule)
	if err != nil {
		return time.Time{}, err
	}
	loc, locErr := time.LoadLocation(lin.Timezone)
	if locErr != nil {
		loc = time.UTC
	}
	return sched.NextWake(after.In(loc)), nil
}
