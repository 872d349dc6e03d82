package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kpiboard/internal/calendar"
	"kpiboard/internal/config"
	"kpiboard/internal/kpistore"
	"kpiboard/internal/notify"
	"kpiboard/internal/report"
	"kpiboard/internal/workspace"
)

// Env is what handlers receive besides the job itself.
type Env struct {
	Workspace *workspace.Workspace
	Config    config.Config
	Store     *Store
	Notifier  *notify.Notifier
	Now       func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// HandlerFunc is the function signature for job handlers.
type HandlerFunc func(ctx context.Context, env *Env, job *Job) (any, error)

// DefaultHandlers returns the map of built-in daemon handlers.
func DefaultHandlers() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		JobReportWeekly: handleReportWeekly,
		JobNormalize:    handleNormalize,
	}
}

// ReportPayload selects the week a report_weekly job covers. When Year is zero
// the job reports the week containing the day before ScheduledTime.
type ReportPayload struct {
	ScheduledTime string     `json:"scheduled_time,omitempty"`
	Year          int        `json:"year,omitempty"`
	Month         time.Month `json:"month,omitempty"`
	Week          int        `json:"week,omitempty"`
}

// handleReportWeekly builds the weekly report and writes its artifacts under
// report.output_dir.
func handleReportWeekly(ctx context.Context, env *Env, job *Job) (any, error) {
	var payload ReportPayload
	if job.PayloadJSON != "" && job.PayloadJSON != "{}" && job.PayloadJSON != "null" {
		if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("parse payload: %w", err)
		}
	}

	period, err := reportPeriod(env, job, payload)
	if err != nil {
		return nil, err
	}

	store, err := kpistore.LoadFromDir(env.Workspace.KPIsDir)
	if err != nil {
		return nil, fmt.Errorf("load kpis: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := report.BuildWeekly(store.Collections(), period)
	outDir, err := env.Workspace.ResolvePath(env.Config.Report.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve report dir: %w", err)
	}
	if outDir == "" {
		outDir = env.Workspace.ReportsDir
	}
	paths, err := report.WriteArtifacts(outDir, r, env.now())
	if err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	zap.L().Info("weekly report written",
		zap.String("period", r.PeriodLabel),
		zap.String("json", paths.JSON),
		zap.Int("entries", r.Summary.Total.Total()))
	if err := env.Notifier.Send(notify.FormatWeeklyReport(r.PeriodLabel, r.Summary.Total)); err != nil {
		zap.L().Warn("notification failed", zap.Error(err))
	}

	return map[string]any{
		"period":   r.PeriodLabel,
		"json":     paths.JSON,
		"markdown": paths.Markdown,
		"entries":  r.Summary.Total.Total(),
	}, nil
}

func reportPeriod(env *Env, job *Job, payload ReportPayload) (report.Period, error) {
	if payload.Year != 0 {
		return report.Period{Year: payload.Year, Month: payload.Month, Week: payload.Week}, nil
	}

	ref := job.ScheduledAt
	if payload.ScheduledTime != "" {
		parsed, err := time.Parse(time.RFC3339, payload.ScheduledTime)
		if err != nil {
			return report.Period{}, fmt.Errorf("parse scheduled_time: %w", err)
		}
		ref = parsed
	}
	if ref.IsZero() {
		ref = env.now()
	}
	loc, err := env.Config.Location()
	if err != nil {
		return report.Period{}, err
	}
	start, err := env.Config.RecordWeekStart()
	if err != nil {
		return report.Period{}, err
	}

	prev := ref.In(loc).AddDate(0, 0, -1)
	pos := calendar.Locate(calendar.Date(prev.Year(), prev.Month(), prev.Day()), start)
	return report.Period{Year: pos.Year, Month: pos.Month, Week: pos.Week}, nil
}

// handleNormalize rewrites every KPI document with canonical status tokens and
// recomputed derived statuses.
func handleNormalize(ctx context.Context, env *Env, job *Job) (any, error) {
	store, err := kpistore.LoadFromDir(env.Workspace.KPIsDir)
	if err != nil {
		return nil, fmt.Errorf("load kpis: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	written, err := store.SaveAll()
	if err != nil {
		return nil, fmt.Errorf("write kpis: %w", err)
	}
	return map[string]any{
		"files": written,
	}, nil
}
