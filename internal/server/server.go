// FilePath: internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/redis/go-redis/v9"
	nuts "github.com/vaudience/go-nuts"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/api"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/config"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/database"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/hubservice"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/lineage"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/monitoring"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/mqtt"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository/postgres"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/scheduler"
)

// Server represents our HTTP server together with the background components
// it owns: the session scheduler and the MQTT device gateway.
type Server struct {
	config     *config.Config
	srv        *http.Server
	hubservice *hubservice.HubService
	monitoring *monitoring.Service
	scheduler  *scheduler.Scheduler
	gateway    *mqtt.Gateway
	db         database.DB
	cache      *redis.Client
}

// New creates a new server instance
func New(cfg *config.Config) *Server {
	return &Server{config: cfg}
}

// Start wires all components and begins listening. It blocks until an
// interrupt signal arrives, then shuts everything down in reverse order.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.monitoring = monitoring.NewService()
	s.registerAlertListeners()
	if err := s.initialize(ctx); err != nil {
		return err
	}

	router := api.NewRouter(s.hubservice, s.handleHealth())
	handler := handlers.CombinedLoggingHandler(os.Stdout, handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(router))

	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      handler,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	s.scheduler = scheduler.New(s.hubservice, s.config.Scheduler.TickInterval)
	s.scheduler.Start(ctx)

	if s.config.MQTT.Broker != "" {
		gateway, err := mqtt.NewGateway(s.config.MQTT, s.hubservice)
		if err != nil {
			return fmt.Errorf("failed to start MQTT gateway: %w", err)
		}
		s.gateway = gateway
	} else {
		nuts.L.Warnf("[Server] No MQTT broker configured, device gateway disabled")
	}

	go func() {
		nuts.L.Infof("[Server] Starting server on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nuts.L.Errorf("[Server] Error starting server: %v", err)
			os.Exit(1)
		}
	}()

	return s.waitForShutdown(cancel)
}

// registerAlertListeners subscribes the alert-worthy monitoring events.
// Delivery to operators is an external pipeline; the hub's part is surfacing
// them on a channel that pipeline can replace.
func (s *Server) registerAlertListeners() {
	s.monitoring.OnEvent("image.failed", func(labels map[string]string) {
		nuts.L.Warnf("[Server] Alert: image failed device=%s code=%s retries=%s",
			labels["device_id"], labels["error_code"], labels["retry_count"])
	})
	s.monitoring.OnEvent("invariant.violation", func(labels map[string]string) {
		nuts.L.Warnf("[Server] Alert: invariant violation labels=%v", labels)
	})
}

// initialize builds the storage layer and the hub service.
func (s *Server) initialize(ctx context.Context) error {
	db, err := database.NewPostgresDB(s.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	s.db = db

	s.cache = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", s.config.Redis.Host, s.config.Redis.Port),
		Password: s.config.Redis.Password,
		DB:       s.config.Redis.DB,
	})
	if err := s.cache.Ping(pingCtx).Err(); err != nil {
		nuts.L.Warnf("[Server] Redis unavailable, running without cache: %v", err)
		s.cache = nil
	}

	devices := postgres.NewDeviceRepository(db)
	sessions := postgres.NewSessionRepository(db)
	payloads := postgres.NewPayloadRepository(db)
	images := postgres.NewImageRepository(db)
	observations := postgres.NewObservationRepository(db)
	riskStates := postgres.NewRiskStateRepository(db)

	resolver := lineage.NewResolver(devices, s.cache, s.config.Redis.CacheTTL)

	s.hubservice = hubservice.New(
		devices, sessions, payloads, images, observations, riskStates,
		resolver, s.monitoring, s.cache,
		hubservice.Options{
			OverageToleranceMax: s.config.Ingest.OverageToleranceMax,
		},
	)
	return s.hubservice.Validate()
}

// waitForShutdown waits for interrupt signal and gracefully shuts down the server
func (s *Server) waitForShutdown(cancel context.CancelFunc) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	nuts.L.Infof("[Server] Shutting down server...")

	ctx, cancelTimeout := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancelTimeout()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	if s.gateway != nil {
		s.gateway.Disconnect()
	}
	cancel()
	s.scheduler.Stop()

	if s.cache != nil {
		s.cache.Close()
	}
	if err := s.db.Close(); err != nil {
		nuts.L.Errorf("[Server] Error closing database: %v", err)
	}

	nuts.L.Infof("[Server] Server shut down successfully")
	return nil
}

// handleHealth returns a simple health check handler
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","version":"` + nuts.GetVersion() + `"}`))
	}
}
