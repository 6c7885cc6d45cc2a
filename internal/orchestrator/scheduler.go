package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"
)

// Scheduler drives the orchestrator's periodic maintenance. Nothing runs
// until Start is called, and Stop blocks until the loops drain, so owners
// control the full lifecycle.
type Scheduler struct {
	orch *Orchestrator

	CacheSweepInterval     time.Duration
	TelemetryPurgeInterval time.Duration
	StatsLogInterval       time.Duration
	PolicyCleanupInterval  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(orch *Orchestrator) *Scheduler {
	return &Scheduler{
		orch:                   orch,
		CacheSweepInterval:     time.Minute,
		TelemetryPurgeInterval: time.Hour,
		StatsLogInterval:       5 * time.Minute,
		PolicyCleanupInterval:  10 * time.Minute,
	}
}

// Start launches the maintenance loops. Calling Start twice restarts them.
func (s *Scheduler) Start(ctx context.Context) {
	s.Stop()
	ctx, s.cancel = context.WithCancel(ctx)

	s.loop(ctx, s.CacheSweepInterval, s.orch.SweepStrategyCache)
	s.loop(ctx, s.TelemetryPurgeInterval, s.orch.PurgeTelemetry)
	s.loop(ctx, s.StatsLogInterval, s.orch.LogStats)
	s.loop(ctx, s.PolicyCleanupInterval, s.orch.CleanupPolicies)
	log.Printf("scheduler: maintenance loops started")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, task func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				task()
			}
		}
	}()
}

// Stop halts the loops and waits for in-flight maintenance to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.wg.Wait()
}
