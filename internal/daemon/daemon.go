package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kpiboard/internal/audit"
	"kpiboard/internal/config"
	"kpiboard/internal/notify"
	"kpiboard/internal/workspace"
)

// maxJobsPerTick bounds how many due jobs one tick drains.
const maxJobsPerTick = 16

// Daemon is a long-running process that schedules, claims and executes jobs.
type Daemon struct {
	Env          *Env
	Store        *Store
	Scheduler    *Scheduler
	Handlers     map[string]HandlerFunc
	AuditLogger  *audit.Logger
	LeaseOwner   string
	LeaseFor     time.Duration
	PollInterval time.Duration
}

// Options configures New.
type Options struct {
	Workspace  *workspace.Workspace
	Config     config.Config
	StorePath  string
	LeaseOwner string
	LeaseFor   time.Duration
}

// New creates a daemon with the default handlers.
func New(opts Options) (*Daemon, error) {
	if opts.Workspace == nil {
		return nil, fmt.Errorf("workspace is required")
	}
	if opts.StorePath == "" {
		opts.StorePath = opts.Workspace.StateDBPath
	}

	loc, err := opts.Config.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	weekday, err := opts.Config.ReportWeekday()
	if err != nil {
		return nil, err
	}

	store, err := Open(opts.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	scheduler, err := NewScheduler(store, loc, Schedule{
		ReportWeekday: weekday,
		ReportHour:    opts.Config.Daemon.ReportHour,
		NormalizeHour: opts.Config.Daemon.NormalizeHour,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	if opts.LeaseOwner == "" {
		hostname, _ := os.Hostname()
		opts.LeaseOwner = fmt.Sprintf("daemon-%s-%s", hostname, uuid.NewString()[:8])
	}
	if opts.LeaseFor == 0 {
		opts.LeaseFor = 5 * time.Minute
	}
	poll := opts.Config.Daemon.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}

	return &Daemon{
		Env: &Env{
			Workspace: opts.Workspace,
			Config:    opts.Config,
			Store:     store,
			Notifier:  notify.New(opts.Config.Daemon.Notify),
		},
		Store:        store,
		Scheduler:    scheduler,
		Handlers:     DefaultHandlers(),
		AuditLogger:  audit.NewLogger(opts.Workspace.AuditDBPath),
		LeaseOwner:   opts.LeaseOwner,
		LeaseFor:     opts.LeaseFor,
		PollInterval: poll,
	}, nil
}

// RegisterHandler registers a handler for a specific job type.
func (d *Daemon) RegisterHandler(jobType string, handler HandlerFunc) {
	d.Handlers[jobType] = handler
}

// Run starts the daemon loop until ctx is cancelled or SIGINT/SIGTERM arrives.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runID, err := d.Store.StartRun(time.Now())
	if err != nil {
		return err
	}
	logger := zap.L().With(zap.String("run_id", runID))

	startPayload := map[string]any{
		"run_id":        runID,
		"workspace":     d.Env.Workspace.Root,
		"lease_owner":   d.LeaseOwner,
		"lease_for":     d.LeaseFor.String(),
		"poll_interval": d.PollInterval.String(),
	}
	if err := d.AuditLogger.LogEvent("daemon", "daemon_started", startPayload); err != nil {
		logger.Warn("audit log failed", zap.Error(err))
	}
	logger.Info("daemon started",
		zap.String("workspace", d.Env.Workspace.Root),
		zap.Duration("poll_interval", d.PollInterval),
		zap.Time("next_report", d.Scheduler.Next(time.Now())))

	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()

	var executed, failed int
	for {
		select {
		case <-ctx.Done():
			summary := map[string]any{"executed": executed, "failed": failed}
			if err := d.Store.FinishRun(runID, time.Now(), "stopped", summary); err != nil {
				logger.Warn("record run finish failed", zap.Error(err))
			}
			_ = d.AuditLogger.LogEvent("daemon", "daemon_stopped", map[string]any{
				"run_id":    runID,
				"workspace": d.Env.Workspace.Root,
			})
			logger.Info("daemon stopped", zap.Int("executed", executed), zap.Int("failed", failed))
			return nil

		case <-ticker.C:
			ok, bad := d.RunOnce(ctx, time.Now())
			executed += ok
			failed += bad
		}
	}
}

// RunOnce performs one scheduler tick and drains the jobs due at now.
// It returns the number of jobs that succeeded and failed.
func (d *Daemon) RunOnce(ctx context.Context, now time.Time) (succeeded, failed int) {
	logger := zap.L()

	if n, err := d.Store.ReclaimExpired(now); err != nil {
		logger.Warn("reclaim expired jobs failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("requeued jobs with expired leases", zap.Int("count", n))
	}
	if err := d.Scheduler.Tick(now); err != nil {
		logger.Error("scheduler tick failed", zap.Error(err))
	}
	if changed, err := d.watchKPIs(now); err != nil {
		logger.Warn("watch kpis failed", zap.Error(err))
	} else if len(changed) > 0 {
		logger.Info("kpi documents changed", zap.Strings("files", changed))
		_ = d.AuditLogger.LogEvent("daemon", "kpis_changed", map[string]any{"files": changed})
	}

	for i := 0; i < maxJobsPerTick && ctx.Err() == nil; i++ {
		ran, err := d.claimAndExecute(ctx, now)
		if !ran {
			if err != nil {
				logger.Error("claim job failed", zap.Error(err))
			}
			return succeeded, failed
		}
		if err != nil {
			failed++
			logger.Error("job execution failed", zap.Error(err))
			continue
		}
		succeeded++
	}
	return succeeded, failed
}

func (d *Daemon) claimAndExecute(ctx context.Context, now time.Time) (bool, error) {
	job, err := d.Store.ClaimNext(now, d.LeaseOwner, d.LeaseFor)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	logger := zap.L().With(zap.String("job_id", job.ID), zap.String("job_type", job.Type))
	startPayload := map[string]any{
		"job_id":   job.ID,
		"job_type": job.Type,
		"payload":  job.PayloadJSON,
	}
	if err := d.AuditLogger.LogEvent("daemon", "job_started", startPayload); err != nil {
		logger.Warn("audit log failed", zap.Error(err))
	}

	handler, ok := d.Handlers[job.Type]
	if !ok {
		err := fmt.Errorf("no handler for job type: %s", job.Type)
		d.fail(job, err)
		return true, err
	}

	result, execErr := handler(ctx, d.Env, job)
	if execErr != nil {
		d.fail(job, execErr)
		return true, fmt.Errorf("%s: %w", job.ID, execErr)
	}

	if err := d.Store.Succeed(job.ID, result); err != nil {
		return true, fmt.Errorf("mark job succeeded: %w", err)
	}
	_ = d.AuditLogger.LogEvent("daemon", "job_succeeded", map[string]any{
		"job_id":   job.ID,
		"job_type": job.Type,
		"result":   result,
	})
	logger.Debug("job succeeded")
	return true, nil
}

func (d *Daemon) fail(job *Job, jobErr error) {
	if err := d.Store.Fail(job.ID, jobErr); err != nil {
		zap.L().Warn("mark job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	_ = d.AuditLogger.LogEvent("daemon", "job_failed", map[string]any{
		"job_id":   job.ID,
		"job_type": job.Type,
		"error":    jobErr.Error(),
	})
	if err := d.Env.Notifier.Send(notify.FormatJobFailed(job.Type, jobErr)); err != nil {
		zap.L().Warn("notification failed", zap.Error(err))
	}
}

// Close closes the daemon's store.
func (d *Daemon) Close() error {
	return d.Store.Close()
}
