// FilePath: api/resources/api.resource.wakes.go
package resources

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	nuts "github.com/vaudience/go-nuts"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/errors"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/hubservice"
)

// WakeHandlers encapsulates the wake-ingestion HTTP handlers
type WakeHandlers struct {
	hubservice *hubservice.HubService
}

// @Summary Ingest a device wake
// @Description Process one wake transmission: session placement, wake-slot inference and telemetry capture
// @Tags wakes
// @Accept json
// @Produce json
// @Param wake body hubservice.WakeRequest true "Wake transmission"
// @Success 201 {object} hubservice.IngestResult
// @Failure 400 {object} errors.APIError
// @Failure 404 {object} errors.APIError
// @Router /wakes [post]
func (h *WakeHandlers) IngestWake(w http.ResponseWriter, r *http.Request) {
	var req hubservice.WakeRequest
	requestID := nuts.NID("req", 12)

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	result, err := h.hubservice.IngestWake(r.Context(), &req)
	if err != nil {
		respondWithError(w, mapServiceError("failed to ingest wake", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

type deviceStatusRequest struct {
	PendingImages int `json:"pending_images"`
}

// @Summary Record a device liveness report
// @Tags wakes
// @Accept json
// @Param id path string true "Device ID"
// @Success 204
// @Router /devices/{id}/status [post]
func (h *WakeHandlers) RecordDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	requestID := nuts.NID("req", 12)

	var req deviceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.RecordDeviceStatus(r.Context(), id, req.PendingImages, time.Now()); err != nil {
		respondWithError(w, mapServiceError("failed to record device status", err).WithRequestID(requestID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// @Summary Get a device's next scheduled wake time
// @Tags wakes
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} map[string]string
// @Router /devices/{id}/next-wake [get]
func (h *WakeHandlers) GetNextWake(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	requestID := nuts.NID("req", 12)

	next, err := h.hubservice.NextWakeTime(r.Context(), id, time.Now())
	if err != nil {
		respondWithError(w, mapServiceError("failed to compute next wake", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"device_id":      id,
		"next_wake_time": next.Format(time.RFC3339),
	})
}

// @Summary Drop the cached lineage for a device
// @Description Called by provisioning after a device's site assignment changes
// @Tags wakes
// @Param id path string true "Device ID"
// @Success 204
// @Router /devices/{id}/lineage/invalidate [post]
func (h *WakeHandlers) InvalidateLineage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	h.hubservice.Lineage.Invalidate(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}
