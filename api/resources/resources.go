// FilePath: api/resources/resources.go
package resources

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	nuts "github.com/vaudience/go-nuts"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/errors"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/hubservice"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/lineage"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
)

// Resources holds all HTTP resource handlers
type Resources struct {
	Wakes    *WakeHandlers
	Images   *ImageHandlers
	Sessions *SessionHandlers
	Risk     *RiskHandlers
}

// NewResources creates a new Resources instance
func NewResources(svc *hubservice.HubService) *Resources {
	return &Resources{
		Wakes:    &WakeHandlers{hubservice: svc},
		Images:   &ImageHandlers{hubservice: svc},
		Sessions: &SessionHandlers{hubservice: svc},
		Risk:     &RiskHandlers{hubservice: svc},
	}
}

// Helper functions

// mapServiceError translates service-layer sentinels into API errors.
func mapServiceError(msg string, err error) *errors.APIError {
	switch {
	case stderrors.Is(err, repository.ErrNotFound):
		return errors.NewNotFoundError(msg, err)
	case stderrors.Is(err, hubservice.ErrUnknownDevice):
		return errors.NewNotFoundError(msg, err)
	case stderrors.Is(err, repository.ErrInvalidInput):
		return errors.NewValidationError(msg, err)
	case stderrors.Is(err, lineage.ErrDeviceNotAssigned):
		return errors.NewValidationError(msg, err)
	case stderrors.Is(err, repository.ErrDuplicate), stderrors.Is(err, repository.ErrSessionLocked):
		return errors.NewConflictError(msg, err)
	default:
		return errors.NewInternalError(msg, err)
	}
}

func respondWithError(w http.ResponseWriter, err *errors.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
	nuts.L.Errorf("[API] %s", err.Error())
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
