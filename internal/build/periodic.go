package build

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Periodic fires a callback at a fixed interval, used to feed time-based
// rebuild triggers into the Scheduler when watch.rebuild_every is set.
type Periodic struct {
	scheduler gocron.Scheduler
	interval  time.Duration
	fire      func()
}

// NewPeriodic creates a periodic trigger. The callback runs on the gocron
// worker goroutine; it must not block.
func NewPeriodic(interval time.Duration, fire func()) (*Periodic, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create periodic scheduler: %w", err)
	}
	return &Periodic{scheduler: s, interval: interval, fire: fire}, nil
}

// Start registers the job and begins firing.
func (p *Periodic) Start() error {
	_, err := p.scheduler.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(p.fire),
		gocron.WithName("periodic-rebuild"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule periodic rebuild: %w", err)
	}
	p.scheduler.Start()
	slog.Info("Periodic rebuild enabled", slog.Duration("interval", p.interval))
	return nil
}

// Stop shuts the trigger down, waiting for an in-flight callback to return.
func (p *Periodic) Stop() error {
	return p.scheduler.Shutdown()
}
