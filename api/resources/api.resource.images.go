// FilePath: api/resources/api.resource.images.go
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

// ImageHandlers encapsulates the image lifecycle HTTP handlers
type ImageHandlers struct {
	hubservice *hubservice.HubService
}

// @Summary Get an image record
// @Tags images
// @Produce json
// @Param id path string true "Image ID"
// @Success 200 {object} models.Image
// @Failure 404 {object} errors.APIError
// @Router /images/{id} [get]
func (h *ImageHandlers) GetImage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	requestID := nuts.NID("req", 12)

	img, err := h.hubservice.Images.Get(r.Context(), id)
	if err != nil {
		respondWithError(w, mapServiceError("image not found", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, img)
}

type completeImageRequest struct {
	URL string `json:"url"`
}

// @Summary Mark an image fully received
// @Description Transitions the image to complete and settles its wake payload and session counters. Idempotent on terminal images.
// @Tags images
// @Accept json
// @Param id path string true "Image ID"
// @Success 204
// @Failure 400 {object} errors.APIError
// @Router /images/{id}/complete [post]
func (h *ImageHandlers) CompleteImage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	requestID := nuts.NID("req", 12)

	var req completeImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}
	if req.URL == "" {
		respondWithError(w, errors.NewValidationError("url is required", nil).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.CompleteImage(r.Context(), id, req.URL); err != nil {
		respondWithError(w, mapServiceError("failed to complete image", err).WithRequestID(requestID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type failImageRequest struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// @Summary Mark an image permanently failed
// @Tags images
// @Accept json
// @Param id path string true "Image ID"
// @Success 204
// @Router /images/{id}/fail [post]
func (h *ImageHandlers) FailImage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	requestID := nuts.NID("req", 12)

	var req failImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.FailImage(r.Context(), id, req.ErrorCode, req.ErrorMessage); err != nil {
		respondWithError(w, mapServiceError("failed to fail image", err).WithRequestID(requestID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type retryImageRequest struct {
	URL *string `json:"url"`
}

// @Summary Apply a resent transmission of a capture
// @Description Retries address the image by its stable device+name key. With a url the retry completes the image; without one it only records that a resend started.
// @Tags images
// @Accept json
// @Produce json
// @Param deviceId path string true "Device ID"
// @Param imageName path string true "Device-assigned image name"
// @Success 200 {object} models.Image
// @Failure 404 {object} errors.APIError
// @Router /devices/{deviceId}/images/{imageName}/retry [post]
func (h *ImageHandlers) RetryImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	deviceID := vars["deviceId"]
	imageName := vars["imageName"]
	requestID := nuts.NID("req", 12)

	var req retryImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	img, err := h.hubservice.RetryByStableID(r.Context(), deviceID, imageName, req.URL, time.Now())
	if err != nil {
		respondWithError(w, mapServiceError("failed to apply retry", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, img)
}
