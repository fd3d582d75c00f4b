// FilePath: api/resources/api.resource.sessions.go
package resources

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	nuts "github.com/vaudience/go-nuts"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/errors"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/hubservice"
)

// SessionHandlers encapsulates the session HTTP handlers
type SessionHandlers struct {
	hubservice *hubservice.HubService
}

// @Summary Get a session with its counters and payload count
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionSummary
// @Failure 404 {object} errors.APIError
// @Router /sessions/{id} [get]
func (h *SessionHandlers) GetSessionSummary(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	requestID := nuts.NID("req", 12)

	summary, err := h.hubservice.GetSessionSummary(r.Context(), id)
	if err != nil {
		respondWithError(w, mapServiceError("session not found", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}

// @Summary Get a site's session for a calendar date
// @Tags sessions
// @Produce json
// @Param siteId path string true "Site ID"
// @Param date path string true "Session date (YYYY-MM-DD)"
// @Success 200 {object} models.SiteSession
// @Router /sites/{siteId}/sessions/{date} [get]
func (h *SessionHandlers) GetSiteSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := nuts.NID("req", 12)

	date, err := time.Parse("2006-01-02", vars["date"])
	if err != nil {
		respondWithError(w, errors.NewValidationError("invalid date, expected YYYY-MM-DD", err).WithRequestID(requestID))
		return
	}

	session, err := h.hubservice.Sessions.GetBySiteAndDate(r.Context(), vars["siteId"], date)
	if err != nil {
		respondWithError(w, mapServiceError("session not found", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, session)
}

// @Summary Lock a site's session for a calendar date
// @Description One-way transition; counters are frozen afterwards.
// @Tags sessions
// @Param siteId path string true "Site ID"
// @Param date path string true "Session date (YYYY-MM-DD)"
// @Success 204
// @Router /sites/{siteId}/sessions/{date}/lock [post]
func (h *SessionHandlers) LockSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := nuts.NID("req", 12)

	date, err := time.Parse("2006-01-02", vars["date"])
	if err != nil {
		respondWithError(w, errors.NewValidationError("invalid date, expected YYYY-MM-DD", err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.LockSession(r.Context(), vars["siteId"], date); err != nil {
		respondWithError(w, mapServiceError("failed to lock session", err).WithRequestID(requestID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// @Summary Open today's sessions for all active sites
// @Tags sessions
// @Produce json
// @Success 200 {object} map[string]int
// @Router /sessions/open [post]
func (h *SessionHandlers) OpenDailySessions(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	opened, err := h.hubservice.OpenDailySessions(r.Context(), time.Now())
	if err != nil {
		respondWithError(w, mapServiceError("failed to open sessions", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{"sites": opened})
}

// @Summary Lock all sessions past their end instant
// @Tags sessions
// @Produce json
// @Success 200 {object} map[string]int64
// @Router /sessions/lock-expired [post]
func (h *SessionHandlers) LockExpiredSessions(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	locked, err := h.hubservice.LockExpiredSessions(r.Context(), time.Now())
	if err != nil {
		respondWithError(w, mapServiceError("failed to lock expired sessions", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int64{"locked": locked})
}
