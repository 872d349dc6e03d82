package report

import (
	"fmt"
	"time"

	"kpiboard/internal/calendar"
	"kpiboard/internal/kpistore"
	"kpiboard/internal/status"
)

// MonthlyOverview is the calendar view of one month: recorded statuses per week bucket.
type MonthlyOverview struct {
	Year      int           `json:"year"`
	Month     time.Month    `json:"month"`
	WeekStart string        `json:"week_start"`
	Weeks     []WeekSummary `json:"weeks"`
	// Unplaced counts records whose week number has no bucket under this convention.
	Unplaced status.Counts `json:"unplaced"`
}

// WeekSummary lists the records of one week bucket with their own recorded status.
type WeekSummary struct {
	Week    calendar.Week `json:"range"`
	Counts  status.Counts `json:"counts"`
	Entries []MonthEntry  `json:"entries"`
}

// MonthEntry is one recorded task status inside a week bucket.
type MonthEntry struct {
	Label  string       `json:"label"`
	TaskID string       `json:"task_id"`
	Status status.Value `json:"status"`
}

// BuildMonthly groups the month's weekly records by week bucket.
func BuildMonthly(collections []kpistore.Collection, year int, month time.Month, start calendar.WeekStart) (MonthlyOverview, error) {
	weeks, err := calendar.WeeksInMonth(year, month, start)
	if err != nil {
		return MonthlyOverview{}, err
	}

	overview := MonthlyOverview{
		Year:      year,
		Month:     month,
		WeekStart: start.String(),
		Weeks:     make([]WeekSummary, len(weeks)),
	}
	for i, w := range weeks {
		overview.Weeks[i] = WeekSummary{Week: w, Entries: []MonthEntry{}}
	}

	for _, entry := range flatten(collections) {
		for _, act := range entry.kpi.Activities {
			for _, task := range act.Tasks {
				for _, rec := range task.Records {
					if rec.Year != year || rec.Month != month {
						continue
					}
					if rec.Week < 1 || rec.Week > len(weeks) {
						overview.Unplaced.Add(rec.Status)
						continue
					}
					ws := &overview.Weeks[rec.Week-1]
					ws.Counts.Add(rec.Status)
					ws.Entries = append(ws.Entries, MonthEntry{
						Label:  fmt.Sprintf("[%s] %s", entry.category, task.Name),
						TaskID: task.ID,
						Status: rec.Status,
					})
				}
			}
		}
	}
	return overview, nil
}
