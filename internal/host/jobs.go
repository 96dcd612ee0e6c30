package host

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	jobRestore = "restore_snapshot"
	jobPrune   = "history_prune"

	jobTimeout = 2 * time.Minute
)

// JobsConfig schedules the runtime's maintenance jobs. Schedules use the
// standard five-field cron syntax or descriptors such as "@every 5m".
type JobsConfig struct {
	RestoreSchedule string
	PruneSchedule   string

	// Retention is how long state history is kept. Zero disables pruning.
	Retention time.Duration
}

// Jobs runs periodic restore snapshots and history pruning.
type Jobs struct {
	cron      *cron.Cron
	runtime   *Runtime
	retention time.Duration
	logger    Logger
}

// NewJobs validates the schedules and registers the jobs. Call Start to
// begin running them.
func NewJobs(rt *Runtime, cfg JobsConfig) (*Jobs, error) {
	j := &Jobs{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		runtime:   rt,
		retention: cfg.Retention,
		logger:    rt.logger,
	}

	if cfg.RestoreSchedule != "" {
		if _, err := j.cron.AddFunc(cfg.RestoreSchedule, j.run(jobRestore, j.RunRestoreSnapshot)); err != nil {
			return nil, fmt.Errorf("invalid restore schedule %q: %w", cfg.RestoreSchedule, err)
		}
	}
	if cfg.PruneSchedule != "" && cfg.Retention > 0 {
		if _, err := j.cron.AddFunc(cfg.PruneSchedule, j.run(jobPrune, j.RunPrune)); err != nil {
			return nil, fmt.Errorf("invalid prune schedule %q: %w", cfg.PruneSchedule, err)
		}
	}
	return j, nil
}

func (j *Jobs) run(name string, fn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		err := fn(ctx)
		j.runtime.metrics.JobRun(name, err)
		if err != nil {
			j.logger.Error("scheduled job failed", "job", name, "error", err)
		}
	}
}

// Start begins running the scheduled jobs.
func (j *Jobs) Start() {
	j.cron.Start()
	j.logger.Info("maintenance jobs started", "jobs", len(j.cron.Entries()))
}

// Stop stops the scheduler and waits for running jobs, or for ctx.
func (j *Jobs) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		j.logger.Warn("maintenance jobs did not stop in time")
	}
}

// Len returns the number of scheduled jobs.
func (j *Jobs) Len() int {
	return len(j.cron.Entries())
}

// RunRestoreSnapshot persists restore data for every attached entity.
func (j *Jobs) RunRestoreSnapshot(ctx context.Context) error {
	n, err := j.runtime.SnapshotRestoreState(ctx)
	j.logger.Debug("restore snapshot", "saved", n)
	return err
}

// RunPrune deletes expired state history and checkpoints the WAL.
func (j *Jobs) RunPrune(ctx context.Context) error {
	n, err := j.runtime.PruneHistory(ctx, j.retention)
	if err != nil {
		return err
	}
	if n > 0 {
		j.logger.Info("state history pruned", "rows", n, "retention", j.retention.String())
	}
	return j.runtime.db.Checkpoint(ctx)
}
