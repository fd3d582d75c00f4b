// FilePath: internal/scheduler/scheduler.go

// Package scheduler drives the time-based session lifecycle: opening the
// day's sessions for every active site and locking sessions whose day has
// ended. Both operations are idempotent, so the tick interval only bounds
// how late they run, never how often they take effect.
package scheduler

import (
	"context"
	"sync"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/hubservice"
)

type Scheduler struct {
	hub      *hubservice.HubService
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(hub *hubservice.HubService, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		hub:      hub,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the tick loop. One pass runs immediately so a restart does
// not wait a full interval to catch up on lock deadlines.
func (s *Scheduler) Start(ctx context.Context) {
	nuts.L.Infof("[Scheduler] Starting with tick interval %s", s.interval)
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	tickCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if opened, err := s.hub.OpenDailySessions(tickCtx, now); err != nil {
		nuts.L.Errorf("[Scheduler] Failed to open daily sessions: %v", err)
	} else if opened > 0 {
		nuts.L.Infof("[Scheduler] Ensured sessions for %d sites", opened)
	}

	if _, err := s.hub.LockExpiredSessions(tickCtx, now); err != nil {
		nuts.L.Errorf("[Scheduler] Failed to lock expired sessions: %v", err)
	}
}

// Stop halts the tick loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	nuts.L.Infof("[Scheduler] Stopped")
}
