package report

import (
	"fmt"
	"time"

	"kpiboard/internal/calendar"
	"kpiboard/internal/kpistore"
	"kpiboard/internal/status"
)

// Period selects the week a report covers. Month 0 matches records of any month
// carrying the week number.
type Period struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month,omitempty"`
	Week  int        `json:"week"`
}

// Range resolves the Monday-anchored display range of the period. A period
// without a month matches that week of every month and has no single range.
func (p Period) Range() (calendar.Week, error) {
	if p.Month == 0 {
		return calendar.Week{}, fmt.Errorf("%w: week %d of %04d has no month", calendar.ErrInvalidArgument, p.Week, p.Year)
	}
	return calendar.WeekRange(p.Year, p.Month, p.Week, calendar.Monday)
}

// Label renders the period with its date range, e.g. "2026-03 W2 (2026-03-02 ~ 2026-03-08)".
// Periods without a month, or without a valid range, render without the date
// part, e.g. "2026 W1".
func (p Period) Label() string {
	var head string
	if p.Month == 0 {
		head = fmt.Sprintf("%04d W%d", p.Year, p.Week)
	} else {
		head = fmt.Sprintf("%04d-%02d W%d", p.Year, int(p.Month), p.Week)
	}
	week, err := p.Range()
	if err != nil {
		return head
	}
	return fmt.Sprintf("%s (%s)", head, week)
}

// Slug is a file-name friendly form of the period, e.g. "2026-03-w2".
func (p Period) Slug() string {
	if p.Month == 0 {
		return fmt.Sprintf("%04d-w%02d", p.Year, p.Week)
	}
	return fmt.Sprintf("%04d-%02d-w%d", p.Year, int(p.Month), p.Week)
}

func (p Period) matches(rec kpistore.WeeklyRecord) bool {
	if rec.Year != p.Year || rec.Week != p.Week {
		return false
	}
	return p.Month == 0 || rec.Month == p.Month
}

// Report is the weekly task report. Entries are "[category] task name" lines in
// collection, KPI, activity and task order.
type Report struct {
	Period      Period   `json:"period"`
	PeriodLabel string   `json:"period_label"`
	Completed   []string `json:"completed"`
	InProgress  []string `json:"in_progress"`
	NotStarted  []string `json:"not_started"`
	Summary     Summary  `json:"summary"`
}

// Entries returns the lines of one section.
func (r Report) Entries(v status.Value) []string {
	switch v {
	case status.Completed:
		return r.Completed
	case status.InProgress:
		return r.InProgress
	default:
		return r.NotStarted
	}
}

// BuildWeeklyReport reports week-of-month week of every month in year.
func BuildWeeklyReport(collections []kpistore.Collection, year, week int) Report {
	return BuildWeekly(collections, Period{Year: year, Week: week})
}

// BuildWeekly groups the tasks with a record in period by the task's derived status.
// It never fails: missing data produces empty sections.
func BuildWeekly(collections []kpistore.Collection, period Period) Report {
	r := Report{
		Period:      period,
		PeriodLabel: period.Label(),
		Completed:   []string{},
		InProgress:  []string{},
		NotStarted:  []string{},
	}
	sb := newSummaryBuilder()

	for _, entry := range flatten(collections) {
		sb.addKPI(entry)
		for _, act := range entry.kpi.Activities {
			for _, task := range act.Tasks {
				effective := taskStatus(task)
				for _, rec := range task.Records {
					if !period.matches(rec) {
						continue
					}
					line := fmt.Sprintf("[%s] %s", entry.category, task.Name)
					switch effective {
					case status.Completed:
						r.Completed = append(r.Completed, line)
					case status.InProgress:
						r.InProgress = append(r.InProgress, line)
					default:
						r.NotStarted = append(r.NotStarted, line)
					}
					sb.count(entry.category, effective)
				}
			}
		}
	}

	r.Summary = sb.summary()
	return r
}

type flatKPI struct {
	category string
	kpi      kpistore.KPI
}

// flatten lists KPIs in collection order tagged with their collection category.
func flatten(collections []kpistore.Collection) []flatKPI {
	var out []flatKPI
	for _, coll := range collections {
		category := string(coll.Category)
		if category == "" {
			category = string(kpistore.CategoryCustom)
		}
		for _, kpi := range coll.KPIs {
			out = append(out, flatKPI{category: category, kpi: kpi})
		}
	}
	return out
}

// taskStatus derives the task status from its records at report time.
func taskStatus(task kpistore.Task) status.Value {
	children := make([]status.Value, 0, len(task.Records))
	for _, rec := range task.Records {
		children = append(children, rec.Status)
	}
	return status.Derive(children)
}

func activityStatus(act kpistore.Activity) status.Value {
	children := make([]status.Value, 0, len(act.Tasks))
	for _, task := range act.Tasks {
		children = append(children, taskStatus(task))
	}
	return status.Derive(children)
}

func kpiStatus(kpi kpistore.KPI) status.Value {
	children := make([]status.Value, 0, len(kpi.Activities))
	for _, act := range kpi.Activities {
		children = append(children, activityStatus(act))
	}
	return status.Derive(children)
}
