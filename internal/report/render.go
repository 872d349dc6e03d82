package report

import (
	"fmt"
	"strings"

	"kpiboard/internal/calendar"
	"kpiboard/internal/status"
)

var sectionTitles = map[status.Value]string{
	status.Completed:  "Completed",
	status.InProgress: "In progress",
	status.NotStarted: "Not started",
}

// RenderMarkdown renders the weekly report as a Markdown text block.
func RenderMarkdown(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Weekly report %s\n\n", r.PeriodLabel)

	for _, v := range status.All() {
		entries := r.Entries(v)
		fmt.Fprintf(&b, "## %s (%d)\n", sectionTitles[v], len(entries))
		if len(entries) == 0 {
			b.WriteString("- none\n")
		}
		for _, line := range entries {
			fmt.Fprintf(&b, "- %s\n", line)
		}
		b.WriteString("\n")
	}

	if len(r.Summary.Categories) > 0 {
		b.WriteString("## Summary\n")
		b.WriteString("| Category | Completed | In progress | Not started |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, c := range r.Summary.Categories {
			fmt.Fprintf(&b, "| %s | %d | %d | %d |\n", c.Category, c.Counts.Completed, c.Counts.InProgress, c.Counts.NotStarted)
		}
		fmt.Fprintf(&b, "| total | %d | %d | %d |\n\n", r.Summary.Total.Completed, r.Summary.Total.InProgress, r.Summary.Total.NotStarted)
	}

	if len(r.Summary.KPIs) > 0 {
		b.WriteString("## KPI progress\n")
		b.WriteString("| KPI | Category | Status | Current | Target | Progress |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, k := range r.Summary.KPIs {
			fmt.Fprintf(&b, "| %s %s | %s | %s | %s | %s | %.0f%% |\n",
				k.ID, k.Title, k.Category, k.Status, withUnit(k.Current, k.Unit), withUnit(k.Target, k.Unit), k.PercentToTarget)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderMonthlyMarkdown renders a monthly overview as a Markdown text block.
func RenderMonthlyMarkdown(m MonthlyOverview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Monthly overview %04d-%02d (weeks start %s)\n\n", m.Year, int(m.Month), m.WeekStart)
	for _, w := range m.Weeks {
		fmt.Fprintf(&b, "## W%d %s\n", w.Week.Number, w.Week.String())
		fmt.Fprintf(&b, "completed %d, in progress %d, not started %d\n", w.Counts.Completed, w.Counts.InProgress, w.Counts.NotStarted)
		for _, e := range w.Entries {
			fmt.Fprintf(&b, "- %s: %s\n", e.Label, e.Status)
		}
		b.WriteString("\n")
	}
	if m.Unplaced.Total() > 0 {
		fmt.Fprintf(&b, "%d record(s) carry a week number outside this calendar.\n", m.Unplaced.Total())
	}
	return b.String()
}

// RenderWeeks renders the week buckets of a month one per line.
func RenderWeeks(weeks []calendar.Week) string {
	var b strings.Builder
	for _, w := range weeks {
		fmt.Fprintf(&b, "W%d %s\n", w.Number, w.String())
	}
	return b.String()
}

func withUnit(v float64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%g", v)
	}
	if unit == "%" {
		return fmt.Sprintf("%g%%", v)
	}
	return fmt.Sprintf("%g %s", v, unit)
}
