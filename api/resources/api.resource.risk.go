// FilePath: api/resources/api.resource.risk.go
package resources

import (
	"net/http"

	"github.com/gorilla/mux"
	nuts "github.com/vaudience/go-nuts"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/errors"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/hubservice"
)

// RiskHandlers encapsulates the mold-risk HTTP handlers
type RiskHandlers struct {
	hubservice *hubservice.HubService
}

// @Summary Get a device's current mold-risk state
// @Tags risk
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.RiskState
// @Failure 404 {object} errors.APIError
// @Router /devices/{id}/risk [get]
func (h *RiskHandlers) GetDeviceRisk(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	requestID := nuts.NID("req", 12)

	state, err := h.hubservice.GetDeviceRiskState(r.Context(), id)
	if err != nil {
		respondWithError(w, mapServiceError("risk state not found", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, state)
}

// @Summary Recompute a device's mold-risk state from its latest climate sample
// @Tags risk
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.RiskState
// @Router /devices/{id}/risk/recompute [post]
func (h *RiskHandlers) RecomputeDeviceRisk(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	requestID := nuts.NID("req", 12)

	state, err := h.hubservice.RecomputeDeviceRisk(r.Context(), id)
	if err != nil {
		respondWithError(w, mapServiceError("failed to recompute risk", err).WithRequestID(requestID))
		return
	}
	if state == nil {
		respondWithError(w, errors.NewValidationError("device has no climate sample", nil).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, state)
}

// @Summary Aggregate mold risk over a site's active devices
// @Tags risk
// @Produce json
// @Param id path string true "Site ID"
// @Success 200 {object} models.SiteRiskSummary
// @Router /sites/{id}/risk [get]
func (h *RiskHandlers) GetSiteRisk(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	requestID := nuts.NID("req", 12)

	summary, err := h.hubservice.GetSiteRiskSummary(r.Context(), id)
	if err != nil {
		respondWithError(w, mapServiceError("failed to summarize site risk", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}
