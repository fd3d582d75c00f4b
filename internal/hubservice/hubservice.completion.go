package hubservice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
)

// CompletionService handles image completion, failure and retry logic
type CompletionService interface {
	CompleteImage(ctx context.Context, imageID, url string) error
	FailImage(ctx context.Context, imageID, code, message string) error
	RetryByStableID(ctx context.Context, deviceID, imageName string, url *string, receivedAt time.Time) (*models.Image, error)
}

// CompleteImage marks an image fully received and stored at url, settles the
// wake payload, and moves the session's completed counter. Calling it on an
// image that is already terminal is a no-op.
func (s *HubService) CompleteImage(ctx context.Context, imageID, url string) error {
	transitioned, err := s.Images.MarkComplete(ctx, imageID, url)
	if err != nil {
		return err
	}
	if !transitioned {
		nuts.L.Infof("[Completion] Image %s already terminal, ignoring complete", imageID)
		return nil
	}

	payload, err := s.settlePayload(ctx, imageID, models.PayloadStatusComplete)
	if err != nil {
		return err
	}
	if payload != nil {
		s.bumpCounter(ctx, payload.SessionID, imageID, s.Sessions.IncrementCompleted, "completed")
	}

	img, err := s.Images.Get(ctx, imageID)
	if err != nil {
		return err
	}
	if err := s.emitObservation(ctx, img, url); err != nil {
		nuts.L.Errorf("[Completion] Failed to emit observation for image %s: %v", imageID, err)
	}

	s.Monitoring.RecordEvent("image.completed", map[string]string{
		"image_id":  imageID,
		"device_id": img.DeviceID,
	})
	nuts.L.Infof("[Completion] Image %s complete at %s", imageID, url)
	return nil
}

// FailImage marks an image permanently failed after retries are exhausted.
// Terminal images are left alone.
func (s *HubService) FailImage(ctx context.Context, imageID, code, message string) error {
	transitioned, err := s.Images.MarkFailed(ctx, imageID, code, message)
	if err != nil {
		return err
	}
	if !transitioned {
		nuts.L.Infof("[Completion] Image %s already terminal, ignoring fail", imageID)
		return nil
	}

	payload, err := s.settlePayload(ctx, imageID, models.PayloadStatusFailed)
	if err != nil {
		return err
	}
	if payload != nil {
		s.bumpCounter(ctx, payload.SessionID, imageID, s.Sessions.IncrementFailed, "failed")
	}

	img, err := s.Images.Get(ctx, imageID)
	if err != nil {
		return err
	}
	s.Monitoring.RecordEvent("image.failed", map[string]string{
		"image_id":    imageID,
		"device_id":   img.DeviceID,
		"error_code":  code,
		"retry_count": strconv.Itoa(img.RetryCount),
	})
	nuts.L.Warnf("[Completion] Image %s failed after %d retries: %s %s",
		imageID, img.RetryCount, code, message)
	return nil
}

// RetryByStableID applies a resent transmission of a capture, identified by
// its stable (device, image name) key rather than any per-attempt id. The row
// is locked for the duration so concurrent retries of the same capture
// serialize.
//
// With a url the retry completes the image; a previously failed image moves
// its session count from failed to completed. Without a url the retry only
// records that a resend started. The original captured_at is never touched.
func (s *HubService) RetryByStableID(ctx context.Context, deviceID, imageName string, url *string, receivedAt time.Time) (*models.Image, error) {
	tx, err := s.Images.BeginTx(ctx)
	if err != nil {
		return nil, err
	}

	img, err := s.Images.GetByStableKeyForUpdate(ctx, tx, deviceID, imageName)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	wasFailed := img.Status == models.ImageStatusFailed
	wasComplete := img.Status == models.ImageStatusComplete

	if err := s.Images.ApplyRetry(ctx, tx, img.ID, url, receivedAt); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if url == nil {
		nuts.L.Infof("[Completion] Resend started for image %s (%s/%s), retry %d",
			img.ID, deviceID, imageName, img.RetryCount+1)
		return s.Images.Get(ctx, img.ID)
	}

	if wasComplete {
		// Duplicate retry of an already complete capture; nothing to move.
		return s.Images.Get(ctx, img.ID)
	}

	payload, err := s.settlePayload(ctx, img.ID, models.PayloadStatusComplete)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		if wasFailed {
			moved, err := s.Sessions.MoveFailedToCompleted(ctx, payload.SessionID)
			if err != nil {
				if errors.Is(err, repository.ErrSessionLocked) {
					s.Monitoring.RecordInvariantViolation("retry completion hit locked session", map[string]string{
						"session_id": payload.SessionID,
						"image_id":   img.ID,
					})
				} else {
					return nil, err
				}
			} else if !moved {
				// The failed counter had nothing to give back, but the
				// image did complete; count it so completed tracks reality.
				s.Monitoring.RecordInvariantViolation("failed counter empty on retry completion", map[string]string{
					"session_id": payload.SessionID,
					"image_id":   img.ID,
				})
				s.bumpCounter(ctx, payload.SessionID, img.ID, s.Sessions.IncrementCompleted, "completed")
			}
		} else {
			s.bumpCounter(ctx, payload.SessionID, img.ID, s.Sessions.IncrementCompleted, "completed")
		}
	}

	if err := s.emitObservation(ctx, img, *url); err != nil {
		nuts.L.Errorf("[Completion] Failed to emit observation for image %s: %v", img.ID, err)
	}
	s.Monitoring.RecordEvent("image.retried", map[string]string{
		"image_id":   img.ID,
		"device_id":  deviceID,
		"was_failed": strconv.FormatBool(wasFailed),
	})
	nuts.L.Infof("[Completion] Retry completed image %s (%s/%s)", img.ID, deviceID, imageName)
	return s.Images.Get(ctx, img.ID)
}

// settlePayload moves the wake payload attached to the image into a terminal
// status. A missing payload is tolerated: metadata-less captures can exist
// during partial ingests.
func (s *HubService) settlePayload(ctx context.Context, imageID, status string) (*models.WakePayload, error) {
	payload, err := s.Payloads.GetByImageID(ctx, imageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			nuts.L.Warnf("[Completion] No payload for image %s", imageID)
			return nil, nil
		}
		return nil, err
	}
	if err := s.Payloads.UpdateStatus(ctx, payload.ID, status); err != nil {
		return nil, err
	}
	return payload, nil
}

// bumpCounter runs a session counter increment, downgrading the locked-session
// case to an invariant report. A completion racing the lock deadline loses the
// count but must not fail the image transition that already happened.
func (s *HubService) bumpCounter(ctx context.Context, sessionID, imageID string, inc func(context.Context, string) error, name string) {
	if err := inc(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrSessionLocked) {
			s.Monitoring.RecordInvariantViolation(name+" increment hit locked session", map[string]string{
				"session_id": sessionID,
				"image_id":   imageID,
			})
			return
		}
		nuts.L.Errorf("[Completion] Failed to increment %s counter on session %s: %v", name, sessionID, err)
	}
}

// emitObservation creates the downstream analytics record for a completed
// image. The image URL is the uniqueness guard, so repeated completions of
// the same capture emit exactly one observation.
func (s *HubService) emitObservation(ctx context.Context, img *models.Image, url string) error {
	lin, err := s.Lineage.Resolve(ctx, img.DeviceID)
	if err != nil {
		return fmt.Errorf("resolve lineage for observation: %w", err)
	}

	obs := &models.Observation{
		ID:         nuts.NID("obs", 12),
		DeviceID:   img.DeviceID,
		SiteID:     lin.SiteID,
		ProgramID:  lin.ProgramID,
		CompanyID:  lin.CompanyID,
		ImageURL:   url,
		ObservedAt: img.CapturedAt,
		CreatedAt:  time.Now(),
	}
	inserted, err := s.Observations.CreateIfAbsent(ctx, obs)
	if err != nil {
		return err
	}
	if !inserted {
		nuts.L.Infof("[Completion] Observation for %s already exists", url)
	}
	return nil
}
