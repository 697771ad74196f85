package certs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically sweeps expired ACME challenges and stale rate-limit
// entries from a Manager on a cron schedule.
type Janitor struct {
	manager  *Manager
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewJanitor creates a janitor for the manager. An empty schedule disables
// sweeping.
func NewJanitor(m *Manager, schedule string) *Janitor {
	return &Janitor{
		manager:  m,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "certs.janitor"),
	}
}

// Start begins scheduled sweeping. It validates the cron expression and
// stops automatically when the context is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.schedule == "" {
		j.logger.Info("janitor schedule not configured, skipping")
		return nil
	}

	if _, err := cron.ParseStandard(j.schedule); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.schedule, err)
	}

	if _, err := j.cron.AddFunc(j.schedule, j.sweep); err != nil {
		return fmt.Errorf("failed to schedule janitor: %w", err)
	}

	j.cron.Start()
	j.running = true
	j.logger.Info("janitor started", "schedule", j.schedule)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()

	return nil
}

// Stop halts scheduled sweeping. Safe to call when never started.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return
	}
	j.cron.Stop()
	j.running = false
	j.logger.Info("janitor stopped")
}

func (j *Janitor) sweep() {
	now := time.Now()
	challenges := j.manager.sweepChallenges(now)
	limits := j.manager.sweepRateLimits(now)
	if challenges > 0 || limits > 0 {
		j.logger.Info("sweep complete",
			"challenges_removed", challenges,
			"rate_limits_removed", limits,
		)
	}
}
