package monitoring

import (
	"time"

	nuts "github.com/vaudience/go-nuts"
)

// Service records operational events and forwards alert-worthy ones to the
// external notification pipeline. Delivery itself (email/SMS/webhook) is not
// this service's concern; it emits and listeners subscribe.
type Service struct {
	events *nuts.EventEmitter
}

// NewService creates a new monitoring service
func NewService() *Service {
	return &Service{events: nuts.NewEventEmitter()}
}

// RecordEvent records a monitored event with labels
func (s *Service) RecordEvent(eventName string, labels map[string]string) {
	ts := time.Now()
	nuts.L.Infof("[Monitoring] Event %s recorded at %v with labels: %v", eventName, ts, labels)
	s.events.Emit(eventName, labels)
}

// OnEvent registers a listener for a named event. The emitter matches the
// handler signature against the emitted labels by reflection, so the typed
// handler is registered as is.
func (s *Service) OnEvent(eventName string, handler func(labels map[string]string)) {
	if _, err := s.events.On(eventName, "", handler); err != nil {
		nuts.L.Errorf("[Monitoring] Failed to register listener for %s: %v", eventName, err)
	}
}

// RecordInvariantViolation logs correctness debt that must never block
// ingestion, such as session counters drifting from payload reality.
func (s *Service) RecordInvariantViolation(what string, labels map[string]string) {
	nuts.L.Errorf("[Monitoring] Invariant violation: %s labels: %v", what, labels)
	s.events.Emit("invariant.violation", labels)
}
