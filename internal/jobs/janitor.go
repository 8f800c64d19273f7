package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/sqlagents/internal/types"
)

// DefaultSweepSchedule runs the janitor every ten minutes.
const DefaultSweepSchedule = "@every 10m"

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Janitor periodically drops finished jobs older than the retention window.
// A zero retention disables pruning.
type Janitor struct {
	store     types.JobStore
	retention time.Duration
	schedule  string
	now       func() time.Time
	logger    *slog.Logger
	cron      *cron.Cron
}

func NewJanitor(store types.JobStore, retention time.Duration, schedule string, logger *slog.Logger) *Janitor {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		store:     store,
		retention: retention,
		schedule:  schedule,
		now:       time.Now,
		logger:    logger,
		cron:      cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the sweep and starts the cron ticker.
func (j *Janitor) Start() error {
	if j.retention <= 0 {
		j.logger.Info("job pruning disabled")
		return nil
	}
	if _, err := j.cron.AddFunc(j.schedule, func() { j.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.logger.Info("job janitor scheduled", "schedule", j.schedule, "retention", j.retention)
	return nil
}

// Sweep prunes once and returns the number of jobs removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	removed, err := j.store.Prune(ctx, j.now().Add(-j.retention))
	if err != nil {
		j.logger.Error("prune jobs", "error", err)
		return 0
	}
	if removed > 0 {
		j.logger.Info("pruned jobs", "removed", removed, "remaining", j.store.Len())
	}
	return removed
}

// Stop stops the cron ticker and waits for a running sweep.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
