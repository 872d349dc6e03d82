package report

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"kpiboard/internal/calendar"
	"kpiboard/internal/kpistore"
	"kpiboard/internal/status"
)

func drainageCollections() []kpistore.Collection {
	return []kpistore.Collection{
		{
			Category: kpistore.CategorySafety,
			Name:     "Safety",
			KPIs: []kpistore.KPI{{
				ID:       "k1",
				Title:    "Zero lost-time incidents",
				Target:   100,
				Current:  80,
				Unit:     "%",
				Category: kpistore.CategorySafety,
				Activities: []kpistore.Activity{{
					ID:   "a1",
					Name: "Drainage program",
					Tasks: []kpistore.Task{{
						ID:   "t1",
						Name: "Inspect drainage",
						// stale stored value; reports derive from records
						Status: status.Completed,
						Records: []kpistore.WeeklyRecord{
							{Year: 2026, Month: time.March, Week: 1, Status: status.Completed},
							{Year: 2026, Month: time.March, Week: 2, Status: status.Normalize("pending")},
						},
					}},
				}},
			}},
		},
	}
}

func mixedCollections() []kpistore.Collection {
	colls := drainageCollections()
	colls[0].KPIs[0].Activities[0].Tasks = append(colls[0].KPIs[0].Activities[0].Tasks, kpistore.Task{
		ID:   "t2",
		Name: "Clear gutters",
		Records: []kpistore.WeeklyRecord{
			{Year: 2026, Month: time.March, Week: 1, Status: status.Completed},
		},
	})
	colls = append(colls, kpistore.Collection{
		Category: kpistore.CategoryLease,
		KPIs: []kpistore.KPI{{
			ID:     "k2",
			Title:  "Renewal rate",
			Target: 80,
			// over target clamps to 100
			Current: 120,
			Activities: []kpistore.Activity{{
				ID:   "a2",
				Name: "Renewals",
				Tasks: []kpistore.Task{
					{
						ID:   "t3",
						Name: "Call tenants",
						Records: []kpistore.WeeklyRecord{
							{Year: 2026, Month: time.March, Week: 1, Status: status.NotStarted},
						},
					},
					{
						ID:   "t4",
						Name: "Draft renewals",
						Records: []kpistore.WeeklyRecord{
							{Year: 2026, Month: time.March, Week: 1, Status: status.InProgress},
							{Year: 2025, Month: time.March, Week: 1, Status: status.Completed},
						},
					},
				},
			}},
		}},
	})
	return colls
}

func TestBuildWeeklyReportUsesDerivedTaskStatus(t *testing.T) {
	r := BuildWeeklyReport(drainageCollections(), 2026, 1)

	if diff := cmp.Diff([]string{"[safety] Inspect drainage"}, r.InProgress); diff != "" {
		t.Fatalf("in-progress mismatch (-want +got):\n%s", diff)
	}
	if len(r.Completed) != 0 || len(r.NotStarted) != 0 {
		t.Fatalf("expected only in-progress entries, got %+v", r)
	}
	if r.PeriodLabel != "2026 W1" {
		t.Fatalf("unexpected label %q", r.PeriodLabel)
	}
	if _, err := r.Period.Range(); !errors.Is(err, calendar.ErrInvalidArgument) {
		t.Fatalf("expected no single range without a month, got %v", err)
	}
}

func TestBuildWeeklyPartitionsInFlatteningOrder(t *testing.T) {
	r := BuildWeekly(mixedCollections(), Period{Year: 2026, Month: time.March, Week: 1})

	want := Report{
		Period:      Period{Year: 2026, Month: time.March, Week: 1},
		PeriodLabel: "2026-03 W1 (2026-02-23 ~ 2026-03-01)",
		Completed:   []string{"[safety] Clear gutters"},
		InProgress:  []string{"[safety] Inspect drainage", "[lease] Draft renewals"},
		NotStarted:  []string{"[lease] Call tenants"},
		Summary: Summary{
			Total: status.Counts{Completed: 1, InProgress: 2, NotStarted: 1},
			Categories: []CategoryCounts{
				{Category: "safety", Counts: status.Counts{Completed: 1, InProgress: 1}},
				{Category: "lease", Counts: status.Counts{InProgress: 1, NotStarted: 1}},
			},
			KPIs: []KPIProgress{
				{ID: "k1", Title: "Zero lost-time incidents", Category: "safety", Status: status.InProgress, Target: 100, Current: 80, Unit: "%", PercentToTarget: 80},
				{ID: "k2", Title: "Renewal rate", Category: "lease", Status: status.InProgress, Target: 80, Current: 120, PercentToTarget: 100},
			},
		},
	}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildWeeklyAnyMonthCountsDuplicates(t *testing.T) {
	colls := drainageCollections()
	task := &colls[0].KPIs[0].Activities[0].Tasks[0]
	task.Records = append(task.Records, kpistore.WeeklyRecord{Year: 2026, Month: time.April, Week: 1, Status: status.Completed})

	r := BuildWeeklyReport(colls, 2026, 1)
	if diff := cmp.Diff([]string{"[safety] Inspect drainage", "[safety] Inspect drainage"}, r.InProgress); diff != "" {
		t.Fatalf("expected one line per matching record (-want +got):\n%s", diff)
	}

	r = BuildWeekly(colls, Period{Year: 2026, Month: time.April, Week: 1})
	if len(r.InProgress) != 1 {
		t.Fatalf("expected month filter to keep one line, got %v", r.InProgress)
	}
}

func TestBuildWeeklyDeterministic(t *testing.T) {
	colls := mixedCollections()
	first := BuildWeeklyReport(colls, 2026, 1)
	second := BuildWeeklyReport(colls, 2026, 1)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated build differs (-first +second):\n%s", diff)
	}
}

func TestBuildWeeklyEmptyInput(t *testing.T) {
	for _, colls := range [][]kpistore.Collection{nil, {}, {{Category: kpistore.CategoryAsset}}} {
		r := BuildWeeklyReport(colls, 2026, 5)
		if r.Completed == nil || r.InProgress == nil || r.NotStarted == nil {
			t.Fatalf("expected non-nil empty sections, got %+v", r)
		}
		if len(r.Completed)+len(r.InProgress)+len(r.NotStarted) != 0 {
			t.Fatalf("expected empty report, got %+v", r)
		}
		if r.Summary.Total.Total() != 0 {
			t.Fatalf("expected zero totals, got %+v", r.Summary.Total)
		}
	}
}

func TestPeriodLabelInvalidRange(t *testing.T) {
	r := BuildWeekly(drainageCollections(), Period{Year: 2026, Month: time.February, Week: 7})
	if r.PeriodLabel != "2026-02 W7" {
		t.Fatalf("unexpected label %q", r.PeriodLabel)
	}
	if got := (Period{Year: 2026, Week: 60}).Label(); got != "2026 W60" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := (Period{Year: 2026, Month: time.March, Week: 2}).Label(); got != "2026-03 W2 (2026-03-02 ~ 2026-03-08)" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestPercentToTarget(t *testing.T) {
	cases := []struct {
		target, current, want float64
	}{
		{100, 50, 50},
		{100, 150, 100},
		{100, -5, 0},
		{0, 0, 100},
		{0, -1, 0},
	}
	for _, tc := range cases {
		if got := percentToTarget(tc.target, tc.current); got != tc.want {
			t.Fatalf("percentToTarget(%v, %v) = %v, want %v", tc.target, tc.current, got, tc.want)
		}
	}
}

func TestBuildMonthly(t *testing.T) {
	m, err := BuildMonthly(mixedCollections(), 2026, time.March, calendar.Sunday)
	if err != nil {
		t.Fatalf("build monthly: %v", err)
	}
	if len(m.Weeks) != 5 {
		t.Fatalf("expected 5 Sunday weeks in March 2026, got %d", len(m.Weeks))
	}
	want := status.Counts{Completed: 2, InProgress: 1, NotStarted: 1}
	if diff := cmp.Diff(want, m.Weeks[0].Counts); diff != "" {
		t.Fatalf("week 1 counts mismatch (-want +got):\n%s", diff)
	}
	if m.Weeks[1].Counts.Total() != 1 || m.Weeks[1].Entries[0].TaskID != "t1" {
		t.Fatalf("unexpected week 2 %+v", m.Weeks[1])
	}

	if _, err := BuildMonthly(nil, 2026, 13, calendar.Monday); !errors.Is(err, calendar.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(BuildWeekly(mixedCollections(), Period{Year: 2026, Month: time.March, Week: 1}))

	for _, want := range []string{
		"# Weekly report 2026-03 W1 (2026-02-23 ~ 2026-03-01)",
		"## Completed (1)\n- [safety] Clear gutters\n",
		"## In progress (2)\n- [safety] Inspect drainage\n- [lease] Draft renewals\n",
		"| lease | 0 | 1 | 1 |",
		"| k2 Renewal rate | lease | in-progress | 120 | 80 | 100% |",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}

	empty := RenderMarkdown(BuildWeeklyReport(nil, 2026, 5))
	if !strings.Contains(empty, "## Not started (0)\n- none\n") {
		t.Fatalf("expected empty sections rendered:\n%s", empty)
	}
}

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	r := BuildWeekly(mixedCollections(), Period{Year: 2026, Month: time.March, Week: 1})
	at := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	paths, err := WriteArtifacts(dir, r, at)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	if !strings.HasSuffix(paths.JSON, "weekly-2026-03-w1.json") {
		t.Fatalf("unexpected json path %s", paths.JSON)
	}
	loaded, err := LoadArtifact(paths.JSON)
	if err != nil {
		t.Fatalf("load artifact: %v", err)
	}
	if !loaded.GeneratedAt.Equal(at) {
		t.Fatalf("unexpected generated_at %v", loaded.GeneratedAt)
	}
	if diff := cmp.Diff(r, loaded.Report); diff != "" {
		t.Fatalf("artifact report mismatch (-want +got):\n%s", diff)
	}
	md, err := os.ReadFile(paths.Markdown)
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	if string(md) != RenderMarkdown(r) {
		t.Fatalf("markdown artifact differs from rendering")
	}
}
