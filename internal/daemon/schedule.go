package daemon

import (
	"fmt"
	"time"
)

// Job types produced by the scheduler.
const (
	JobReportWeekly = "report_weekly"
	JobNormalize    = "normalize"
)

const watermarkKey = "scheduler_watermark"

// Schedule holds the wall-clock times recurring jobs are due.
type Schedule struct {
	ReportWeekday time.Weekday
	ReportHour    int
	NormalizeHour int
}

// DefaultSchedule runs the weekly report on Monday at 09:00 and normalization daily at 02:00.
func DefaultSchedule() Schedule {
	return Schedule{ReportWeekday: time.Monday, ReportHour: 9, NormalizeHour: 2}
}

// Scheduler manages recurring job scheduling.
type Scheduler struct {
	store    *Store
	location *time.Location
	schedule Schedule
}

// NewScheduler creates a scheduler evaluating the schedule in loc.
func NewScheduler(store *Store, loc *time.Location, schedule Schedule) (*Scheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("scheduler store is required")
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		store:    store,
		location: loc,
		schedule: schedule,
	}, nil
}

// Tick enqueues every occurrence that fell between the last tick and now.
// The first tick only records a watermark; past occurrences are never backfilled.
func (s *Scheduler) Tick(now time.Time) error {
	watermarkStr, err := s.store.GetKV(watermarkKey)
	if err != nil {
		return fmt.Errorf("get scheduler watermark: %w", err)
	}

	var lastWatermark time.Time
	if watermarkStr != "" {
		lastWatermark, err = time.Parse(time.RFC3339, watermarkStr)
		if err != nil {
			return fmt.Errorf("parse watermark: %w", err)
		}
	}

	if lastWatermark.IsZero() {
		if err := s.store.SetKV(watermarkKey, formatTime(now)); err != nil {
			return fmt.Errorf("set initial watermark: %w", err)
		}
		return nil
	}

	if err := s.scheduleDailyAt(lastWatermark, now, JobNormalize, s.schedule.NormalizeHour, 0); err != nil {
		return fmt.Errorf("schedule %s: %w", JobNormalize, err)
	}
	if err := s.scheduleWeeklyAt(lastWatermark, now, JobReportWeekly, s.schedule.ReportWeekday, s.schedule.ReportHour, 0); err != nil {
		return fmt.Errorf("schedule %s: %w", JobReportWeekly, err)
	}

	if err := s.store.SetKV(watermarkKey, formatTime(now)); err != nil {
		return fmt.Errorf("update watermark: %w", err)
	}
	return nil
}

// Next returns the next occurrence of the weekly report after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	day := s.startOfDay(now)
	for i := 0; i <= 7; i++ {
		candidate := day.AddDate(0, 0, i)
		if candidate.Weekday() != s.schedule.ReportWeekday {
			continue
		}
		at := time.Date(candidate.Year(), candidate.Month(), candidate.Day(), s.schedule.ReportHour, 0, 0, 0, s.location)
		if at.After(now) {
			return at
		}
	}
	return time.Time{}
}

func (s *Scheduler) scheduleDailyAt(lastWatermark, now time.Time, jobType string, hour, minute int) error {
	return s.scheduleAt(lastWatermark, now, jobType, func(time.Weekday) bool { return true }, hour, minute)
}

func (s *Scheduler) scheduleWeeklyAt(lastWatermark, now time.Time, jobType string, weekday time.Weekday, hour, minute int) error {
	return s.scheduleAt(lastWatermark, now, jobType, func(d time.Weekday) bool { return d == weekday }, hour, minute)
}

func (s *Scheduler) scheduleAt(lastWatermark, now time.Time, jobType string, due func(time.Weekday) bool, hour, minute int) error {
	for day := s.startOfDay(lastWatermark); !day.After(now); day = day.AddDate(0, 0, 1) {
		if !due(day.Weekday()) {
			continue
		}
		scheduledTime := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, s.location)
		if !scheduledTime.After(lastWatermark) || scheduledTime.After(now) {
			continue
		}
		payload := map[string]any{
			"scheduled_time": scheduledTime.Format(time.RFC3339),
		}
		if _, _, err := s.store.EnqueueUnique(jobType, scheduledTime, payload); err != nil {
			return fmt.Errorf("enqueue %s at %s: %w", jobType, scheduledTime, err)
		}
	}
	return nil
}

func (s *Scheduler) startOfDay(t time.Time) time.Time {
	local := t.In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
}
