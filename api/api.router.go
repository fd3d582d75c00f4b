// FilePath: api/api.router.go
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/api/resources"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/hubservice"
)

type Router struct {
	router    *mux.Router
	resources *resources.Resources
	health    http.HandlerFunc
}

func NewRouter(svc *hubservice.HubService, health http.HandlerFunc) *Router {
	r := &Router{
		router:    mux.NewRouter(),
		resources: resources.NewResources(svc),
		health:    health,
	}

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	// API version prefix
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/health", r.health).Methods(http.MethodGet)

	// Wakes
	api.HandleFunc("/wakes", r.resources.Wakes.IngestWake).Methods(http.MethodPost)

	// Devices
	devices := api.PathPrefix("/devices").Subrouter()
	devices.HandleFunc("/{id}/status", r.resources.Wakes.RecordDeviceStatus).Methods(http.MethodPost)
	devices.HandleFunc("/{id}/next-wake", r.resources.Wakes.GetNextWake).Methods(http.MethodGet)
	devices.HandleFunc("/{id}/lineage/invalidate", r.resources.Wakes.InvalidateLineage).Methods(http.MethodPost)
	devices.HandleFunc("/{id}/risk", r.resources.Risk.GetDeviceRisk).Methods(http.MethodGet)
	devices.HandleFunc("/{id}/risk/recompute", r.resources.Risk.RecomputeDeviceRisk).Methods(http.MethodPost)
	devices.HandleFunc("/{deviceId}/images/{imageName}/retry", r.resources.Images.RetryImage).Methods(http.MethodPost)

	// Images
	images := api.PathPrefix("/images").Subrouter()
	images.HandleFunc("/{id}", r.resources.Images.GetImage).Methods(http.MethodGet)
	images.HandleFunc("/{id}/complete", r.resources.Images.CompleteImage).Methods(http.MethodPost)
	images.HandleFunc("/{id}/fail", r.resources.Images.FailImage).Methods(http.MethodPost)

	// Sessions
	sessions := api.PathPrefix("/sessions").Subrouter()
	sessions.HandleFunc("/open", r.resources.Sessions.OpenDailySessions).Methods(http.MethodPost)
	sessions.HandleFunc("/lock-expired", r.resources.Sessions.LockExpiredSessions).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}", r.resources.Sessions.GetSessionSummary).Methods(http.MethodGet)

	// Sites
	sites := api.PathPrefix("/sites").Subrouter()
	sites.HandleFunc("/{siteId}/sessions/{date}", r.resources.Sessions.GetSiteSession).Methods(http.MethodGet)
	sites.HandleFunc("/{siteId}/sessions/{date}/lock", r.resources.Sessions.LockSession).Methods(http.MethodPost)
	sites.HandleFunc("/{id}/risk", r.resources.Risk.GetSiteRisk).Methods(http.MethodGet)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
