package kpistore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kpiboard/internal/calendar"
	"kpiboard/internal/status"
)

const safetyDoc = `
category: safety
name: Safety
kpis:
  - kpi_id: k1
    title: Zero lost-time incidents
    target: 100
    current: 80
    unit: "%"
    activities:
      - activity_id: a1
        name: Drainage program
        tasks:
          - task_id: t1
            name: Inspect drainage
            start_date: 2026-03-01
            end_date: 2026-03-31
            records:
              - {year: 2026, month: 3, week: 1, status: completed}
              - {year: 2026, month: 3, week: 2, status: pending}
          - task_id: t2
            name: Clear gutters
            records:
              - {year: 2026, month: 3, week: 2, status: complete}
`

const leaseDoc = `
category: lease
kpis:
  - kpi_id: k2
    title: Renewal rate
    target: 90
    current: 45
    activities:
      - activity_id: a2
        name: Renewals
        tasks:
          - task_id: t3
            name: Call tenants
            status: completed
            records:
              - {year: 2026, month: 3, week: 2, status: on_hold}
`

func TestParseAndValidateDocumentValid(t *testing.T) {
	coll, err := ParseAndValidateDocument([]byte(safetyDoc), "safety.yml")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if coll.Category != CategorySafety || coll.Name != "Safety" {
		t.Fatalf("unexpected collection header %+v", coll)
	}
	if len(coll.KPIs) != 1 || len(coll.KPIs[0].Activities) != 1 || len(coll.KPIs[0].Activities[0].Tasks) != 2 {
		t.Fatalf("unexpected tree shape %+v", coll.KPIs)
	}
	task := coll.KPIs[0].Activities[0].Tasks[0]
	if task.Records[1].Status != status.NotStarted {
		t.Fatalf("expected pending normalized to not-started, got %s", task.Records[1].Status)
	}
	if task.Status != status.InProgress {
		t.Fatalf("expected mixed records to derive in-progress, got %s", task.Status)
	}
	if !task.StartDate.Equal(calendar.Date(2026, time.March, 1)) {
		t.Fatalf("unexpected start date %v", task.StartDate)
	}
	if coll.KPIs[0].Status != status.InProgress {
		t.Fatalf("expected kpi in-progress, got %s", coll.KPIs[0].Status)
	}
}

func TestParseAndValidateDocumentIgnoresStoredStatus(t *testing.T) {
	coll, err := ParseAndValidateDocument([]byte(leaseDoc), "lease.yml")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	task := coll.KPIs[0].Activities[0].Tasks[0]
	if task.Status != status.InProgress {
		t.Fatalf("expected status derived from records, got %s", task.Status)
	}
	if coll.Name != "lease" {
		t.Fatalf("expected name to default to category, got %q", coll.Name)
	}
}

func TestParseAndValidateDocumentMissingFields(t *testing.T) {
	yml := `
category: parking
kpis:
  - kpi_id: ""
    title: ""
    activities:
      - activity_id: ""
        name: ""
        tasks:
          - task_id: ""
            name: ""
            start_date: 2026-13-01
            records:
              - {year: 2026, month: 3, status: completed}
`
	_, err := ParseAndValidateDocument([]byte(yml), "bad.yml")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	ves, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	fields := make(map[string]bool)
	for _, ve := range ves {
		fields[ve.Field] = true
	}
	for _, want := range []string{
		"category",
		"kpis[0].kpi_id",
		"kpis[0].title",
		"kpis[0].target",
		"kpis[0].activities[0].activity_id",
		"kpis[0].activities[0].tasks[0].task_id",
		"kpis[0].activities[0].tasks[0].start_date",
		"kpis[0].activities[0].tasks[0].records[0].week",
	} {
		if !fields[want] {
			t.Fatalf("expected validation error for %s, got %v", want, ves)
		}
	}
}

func TestParseAndValidateDocumentRejectsDuplicateRecord(t *testing.T) {
	yml := `
category: infra
kpis:
  - kpi_id: k9
    title: Uptime
    target: 99
    activities:
      - activity_id: a9
        name: Monitoring
        tasks:
          - task_id: t9
            name: Check pumps
            records:
              - {year: 2026, month: 3, week: 1, status: completed}
              - {year: 2026, month: 3, week: 1, status: pending}
`
	_, err := ParseAndValidateDocument([]byte(yml), "infra.yml")
	if err == nil || !strings.Contains(err.Error(), "duplicate record") {
		t.Fatalf("expected duplicate record error, got %v", err)
	}
}

func TestParseAndValidateDocumentRejectsWeekOutsideMonth(t *testing.T) {
	yml := `
category: asset
kpis:
  - kpi_id: k8
    title: Elevator availability
    target: 98
    activities:
      - activity_id: a8
        name: Maintenance
        tasks:
          - task_id: t8
            name: Service lift
            records:
              - {year: 2026, month: 2, week: 7, status: completed}
`
	if _, err := ParseAndValidateDocument([]byte(yml), "asset.yml"); err == nil {
		t.Fatalf("expected week range error")
	}
}

func TestLoadFromDirOrdersByCategoryAndLooksUp(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a-lease.yml"), leaseDoc)
	writeFile(t, filepath.Join(dir, "b-safety.yml"), safetyDoc)

	store, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	colls := store.Collections()
	if len(colls) != 2 || colls[0].Category != CategorySafety || colls[1].Category != CategoryLease {
		t.Fatalf("expected safety before lease, got %+v", colls)
	}
	if kpi, ok := store.KPILookup("k2"); !ok || kpi.Category != CategoryLease {
		t.Fatalf("expected k2 mapped to lease, got %#v", kpi)
	}
	if task, ok := store.TaskLookup("t2"); !ok || task.KPIID != "k1" || task.ActivityID != "a1" {
		t.Fatalf("expected t2 mapped to k1/a1, got %#v", task)
	}
	k, a, tk, r := store.Counts()
	if k != 2 || a != 2 || tk != 3 || r != 4 {
		t.Fatalf("unexpected counts %d %d %d %d", k, a, tk, r)
	}
}

func TestLoadFromDirEmpty(t *testing.T) {
	store, err := LoadFromDir(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("expected empty store, got %v", err)
	}
	if len(store.Collections()) != 0 {
		t.Fatalf("expected no collections")
	}
}

func TestLoadFromDirDuplicateTaskAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "safety.yml"), safetyDoc)
	writeFile(t, filepath.Join(dir, "lease.yml"), strings.ReplaceAll(leaseDoc, "task_id: t3", "task_id: t1"))

	_, err := LoadFromDir(dir)
	if err == nil || !strings.Contains(err.Error(), `task_id "t1" already defined`) {
		t.Fatalf("expected duplicate task error, got %v", err)
	}
}

func TestCollectionsIsDeepCopy(t *testing.T) {
	store := loadFixture(t)
	colls := store.Collections()
	colls[0].KPIs[0].Activities[0].Tasks[0].Records[0].Status = status.NotStarted

	again := store.Collections()
	if again[0].KPIs[0].Activities[0].Tasks[0].Records[0].Status != status.Completed {
		t.Fatalf("mutating a snapshot must not change the store")
	}
}

func TestAddRecordRecomputesRollup(t *testing.T) {
	store := loadFixture(t)

	pos := calendar.Position{Year: 2026, Month: time.March, Week: 3}
	if err := store.AddRecord("t2", WeeklyRecord{Year: 2026, Month: time.March, Week: 3, Status: status.Completed}); err != nil {
		t.Fatalf("add record: %v", err)
	}
	task, _ := store.TaskLookup("t2")
	if task.Task.Status != status.Completed {
		t.Fatalf("expected t2 completed, got %s", task.Task.Status)
	}

	if err := store.SetRecordStatus("t2", pos, "in_progress"); err != nil {
		t.Fatalf("set record status: %v", err)
	}
	task, _ = store.TaskLookup("t2")
	if task.Task.Status != status.InProgress {
		t.Fatalf("expected t2 in-progress, got %s", task.Task.Status)
	}
	kpi, _ := store.KPILookup("k1")
	if kpi.KPI.Status != status.InProgress || kpi.KPI.Activities[0].Status != status.InProgress {
		t.Fatalf("expected rollup to reach kpi, got %s", kpi.KPI.Status)
	}

	err := store.AddRecord("t2", WeeklyRecord{Year: 2026, Month: time.March, Week: 3, Status: status.Completed})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	err = store.AddRecord("t2", WeeklyRecord{Year: 2026, Month: time.March, Week: 9, Status: status.Completed})
	if !errors.Is(err, calendar.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if err := store.AddRecord("nope", WeeklyRecord{Year: 2026, Month: time.March, Week: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertAndDeleteRecord(t *testing.T) {
	store := loadFixture(t)
	pos := calendar.Position{Year: 2026, Month: time.March, Week: 4}

	created, err := store.UpsertRecord("t1", pos, status.InProgress)
	if err != nil || !created {
		t.Fatalf("expected record created, got %v %v", created, err)
	}
	created, err = store.UpsertRecord("t1", pos, status.Completed)
	if err != nil || created {
		t.Fatalf("expected record updated, got %v %v", created, err)
	}
	if err := store.DeleteRecord("t1", pos); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if err := store.DeleteRecord("t1", pos); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteCascades(t *testing.T) {
	store := loadFixture(t)

	if err := store.DeleteTask("t1"); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if _, ok := store.TaskLookup("t1"); ok {
		t.Fatalf("expected t1 removed")
	}
	kpi, _ := store.KPILookup("k1")
	if kpi.KPI.Status != status.Completed {
		t.Fatalf("expected k1 completed after removing the mixed task, got %s", kpi.KPI.Status)
	}

	if err := store.DeleteKPI("k1"); err != nil {
		t.Fatalf("delete kpi: %v", err)
	}
	if _, ok := store.TaskLookup("t2"); ok {
		t.Fatalf("expected tasks of k1 removed")
	}
	if err := store.DeleteKPI("k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddKPICreatesCollection(t *testing.T) {
	store := loadFixture(t)

	err := store.AddKPI(KPI{ID: "k5", Title: "Chiller efficiency", Target: 10, Category: "infra"})
	if err != nil {
		t.Fatalf("add kpi: %v", err)
	}
	if err := store.AddActivity("k5", Activity{ID: "a5", Name: "Tuning"}); err != nil {
		t.Fatalf("add activity: %v", err)
	}
	if err := store.AddTask("k5", "a5", Task{ID: "t5", Name: "Balance loop"}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	if err := store.AddTask("k5", "a5", Task{ID: "t1", Name: "Clash"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused task id, got %v", err)
	}
	if err := store.AddKPI(KPI{ID: "k1", Title: "Again", Category: "safety"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused kpi id, got %v", err)
	}

	colls := store.Collections()
	if len(colls) != 3 || colls[2].Category != CategoryInfra {
		t.Fatalf("expected infra collection appended in category order, got %+v", colls)
	}
	if filepath.Base(colls[2].Source) != "infra.yml" {
		t.Fatalf("unexpected source %s", colls[2].Source)
	}
	task, ok := store.TaskLookup("t5")
	if !ok || task.Task.Status != status.NotStarted {
		t.Fatalf("expected t5 not-started, got %#v", task)
	}
}

func TestAddTaskNormalizesRecordStatuses(t *testing.T) {
	store := loadFixture(t)

	records := []WeeklyRecord{{Year: 2026, Month: time.March, Week: 1, Status: status.Value("in_progress")}}
	if err := store.AddTask("k1", "a1", Task{ID: "t9", Name: "Flush drains", Records: records}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	task, ok := store.TaskLookup("t9")
	if !ok {
		t.Fatalf("expected t9 to be indexed")
	}
	if task.Task.Records[0].Status != status.InProgress {
		t.Fatalf("expected record normalized to in-progress, got %s", task.Task.Records[0].Status)
	}
	if task.Task.Status != status.InProgress {
		t.Fatalf("expected t9 in-progress, got %s", task.Task.Status)
	}
	if records[0].Status != status.Value("in_progress") {
		t.Fatalf("caller's records must not be rewritten")
	}
}

func TestAddActivityNormalizesNestedRecords(t *testing.T) {
	store := loadFixture(t)

	act := Activity{ID: "a9", Name: "Roof checks", Tasks: []Task{{
		ID:   "t9",
		Name: "Inspect roof",
		Records: []WeeklyRecord{
			{Year: 2026, Month: time.March, Week: 1, Status: "complete"},
			{Year: 2026, Month: time.March, Week: 2, Status: "on_hold"},
		},
	}}}
	if err := store.AddActivity("k1", act); err != nil {
		t.Fatalf("add activity: %v", err)
	}
	task, _ := store.TaskLookup("t9")
	if task.Task.Status != status.InProgress {
		t.Fatalf("expected t9 in-progress, got %s", task.Task.Status)
	}
}

func TestAddKPIRejectsInvalidNestedTasks(t *testing.T) {
	march := func(week int, v status.Value) WeeklyRecord {
		return WeeklyRecord{Year: 2026, Month: time.March, Week: week, Status: v}
	}
	cases := []struct {
		name  string
		tasks []Task
		dup   bool
	}{
		{
			name:  "task id repeated in payload",
			tasks: []Task{{ID: "t9", Name: "One"}, {ID: "t9", Name: "Two"}},
			dup:   true,
		},
		{
			name:  "task id already stored",
			tasks: []Task{{ID: "t1", Name: "Clash"}},
			dup:   true,
		},
		{
			name:  "record repeated",
			tasks: []Task{{ID: "t9", Name: "One", Records: []WeeklyRecord{march(1, status.Completed), march(1, "pending")}}},
			dup:   true,
		},
		{
			name:  "record month out of range",
			tasks: []Task{{ID: "t9", Name: "One", Records: []WeeklyRecord{{Year: 2026, Month: 13, Week: 1, Status: status.Completed}}}},
		},
		{
			name: "end before start",
			tasks: []Task{{
				ID:        "t9",
				Name:      "One",
				StartDate: calendar.Date(2026, time.March, 10),
				EndDate:   calendar.Date(2026, time.March, 1),
			}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := loadFixture(t)
			kpisBefore, _, tasksBefore, recordsBefore := store.Counts()

			kpi := KPI{ID: "k9", Title: "Roof health", Category: "infra",
				Activities: []Activity{{ID: "a9", Name: "Roof checks", Tasks: tc.tasks}}}
			err := store.AddKPI(kpi)
			if err == nil {
				t.Fatalf("expected AddKPI to fail")
			}
			if tc.dup && !errors.Is(err, ErrDuplicate) {
				t.Fatalf("expected ErrDuplicate, got %v", err)
			}
			if err := store.AddActivity("k1", Activity{ID: "a9", Name: "Roof checks", Tasks: tc.tasks}); err == nil {
				t.Fatalf("expected AddActivity to fail")
			}

			kpis, _, tasks, records := store.Counts()
			if kpis != kpisBefore || tasks != tasksBefore || records != recordsBefore {
				t.Fatalf("store changed after rejected add: kpis=%d tasks=%d records=%d", kpis, tasks, records)
			}
			if len(store.Dirty()) != 0 {
				t.Fatalf("rejected add must not mark documents dirty, got %v", store.Dirty())
			}
		})
	}
}

func TestSaveWritesDirtyCollections(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "safety.yml"), safetyDoc)
	writeFile(t, filepath.Join(dir, "lease.yml"), leaseDoc)

	store, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := store.SetKPICurrent("k1", 95); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := store.AddRecord("t1", WeeklyRecord{Year: 2026, Month: time.March, Week: 3, Status: status.Completed}); err != nil {
		t.Fatalf("add record: %v", err)
	}

	written, err := store.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(written) != 1 || filepath.Base(written[0]) != "safety.yml" {
		t.Fatalf("expected only safety.yml written, got %v", written)
	}
	if len(store.Dirty()) != 0 {
		t.Fatalf("expected clean store after save")
	}

	lease, err := os.ReadFile(filepath.Join(dir, "lease.yml"))
	if err != nil {
		t.Fatalf("read lease: %v", err)
	}
	if string(lease) != leaseDoc {
		t.Fatalf("untouched document was rewritten")
	}

	reloaded, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	kpi, _ := reloaded.KPILookup("k1")
	if kpi.KPI.Current != 95 {
		t.Fatalf("expected current 95 after reload, got %v", kpi.KPI.Current)
	}
	task, _ := reloaded.TaskLookup("t1")
	if len(task.Task.Records) != 3 || task.Task.Records[1].Status != status.NotStarted {
		t.Fatalf("unexpected records after reload %+v", task.Task.Records)
	}
	if !task.Task.EndDate.Equal(calendar.Date(2026, time.March, 31)) {
		t.Fatalf("end date lost on write-back: %v", task.Task.EndDate)
	}
}

func TestSaveAllCanonicalizesTokens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lease.yml")
	writeFile(t, path, leaseDoc)

	store, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, err := store.SaveAll(); err != nil {
		t.Fatalf("save all: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(data)
	if strings.Contains(text, "on_hold") {
		t.Fatalf("expected legacy token rewritten: %s", text)
	}
	if !strings.Contains(text, "status: in-progress") {
		t.Fatalf("expected canonical status in output: %s", text)
	}
}

func TestCreateAndApplyProposal(t *testing.T) {
	root := t.TempDir()
	kpisDir := filepath.Join(root, "kpis")
	updatesDir := filepath.Join(root, "updates")
	proposalsDir := filepath.Join(root, "artifacts", "proposals")

	for _, dir := range []string{kpisDir, updatesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	writeFile(t, filepath.Join(kpisDir, "lease.yml"), leaseDoc)
	writeFile(t, filepath.Join(updatesDir, "lease.yml"), strings.Replace(leaseDoc, "target: 90", "target: 95", 1))

	meta, err := CreateProposal(ProposalOptions{
		Author:        "facility ops",
		UpdatesDir:    updatesDir,
		KPIsDir:       kpisDir,
		ProposalsRoot: proposalsDir,
		Note:          "raise renewal target",
	})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	if !strings.Contains(meta.ID, "facility_ops") {
		t.Fatalf("expected sanitized author in id, got %s", meta.ID)
	}
	if _, err := os.Stat(filepath.Join(meta.ProposalDir, "proposal.json")); err != nil {
		t.Fatalf("missing proposal.json: %v", err)
	}
	diff, err := os.ReadFile(filepath.Join(meta.ProposalDir, meta.DiffFile))
	if err != nil {
		t.Fatalf("read diff: %v", err)
	}
	if !hasDiffLine(string(diff), '+', "target: 95") || !hasDiffLine(string(diff), '-', "target: 90") {
		t.Fatalf("diff missing change: %s", diff)
	}
	if !strings.HasPrefix(string(diff), "# lease.yml (lease): 1 KPIs, 1 tasks\n") {
		t.Fatalf("diff missing document header: %s", diff)
	}

	if _, err := ApplyProposal(meta.ProposalDir, true); err != nil {
		t.Fatalf("apply proposal: %v", err)
	}
	applied, err := os.ReadFile(filepath.Join(kpisDir, "lease.yml"))
	if err != nil {
		t.Fatalf("read applied kpis: %v", err)
	}
	if !strings.Contains(string(applied), "target: 95") {
		t.Fatalf("proposal changes not applied: %s", applied)
	}
}

func TestCreateProposalRejectsInvalidUpdates(t *testing.T) {
	root := t.TempDir()
	updatesDir := filepath.Join(root, "updates")
	if err := os.MkdirAll(updatesDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(updatesDir, "bad.yml"), "category: parking\nkpis: []\n")

	_, err := CreateProposal(ProposalOptions{
		Author:        "ops",
		UpdatesDir:    updatesDir,
		KPIsDir:       filepath.Join(root, "kpis"),
		ProposalsRoot: filepath.Join(root, "proposals"),
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	entries, _ := os.ReadDir(filepath.Join(root, "proposals"))
	if len(entries) != 0 {
		t.Fatalf("expected no proposal directory left behind")
	}
}

func TestCreateProposalIgnoresFormattingOnlyChanges(t *testing.T) {
	root := t.TempDir()
	kpisDir := filepath.Join(root, "kpis")
	updatesDir := filepath.Join(root, "updates")
	writeFile(t, filepath.Join(kpisDir, "lease.yml"), leaseDoc)
	reformatted := "# reviewed by ops\n" + strings.Replace(leaseDoc, "status: on_hold", "status: On_Hold", 1)
	writeFile(t, filepath.Join(updatesDir, "lease.yml"), reformatted)

	meta, err := CreateProposal(ProposalOptions{
		Author:        "ops",
		UpdatesDir:    updatesDir,
		KPIsDir:       kpisDir,
		ProposalsRoot: filepath.Join(root, "proposals"),
	})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	if meta.DiffFile != "" {
		t.Fatalf("expected no diff for an equivalent document, got %s", meta.DiffFile)
	}
	staged, err := os.ReadFile(filepath.Join(meta.ProposalDir, "lease.yml"))
	if err != nil {
		t.Fatalf("read staged document: %v", err)
	}
	if strings.Contains(string(staged), "reviewed by ops") || !strings.Contains(string(staged), "status: in-progress") {
		t.Fatalf("expected canonical staged document:\n%s", staged)
	}
}

func TestApplyProposalRejectsEscapingFiles(t *testing.T) {
	dir := t.TempDir()
	meta := `{"id": "p1", "author": "ops", "files": ["../lease.yml"]}`
	writeFile(t, filepath.Join(dir, "proposal.json"), meta)

	_, err := ApplyProposal(dir, true)
	if err == nil || !strings.Contains(err.Error(), "invalid document") {
		t.Fatalf("expected invalid document error, got %v", err)
	}
}

func TestAuthorSlug(t *testing.T) {
	cases := map[string]string{
		"facility ops":     "facility_ops",
		"  Lease / Team  ": "lease_team",
		"Żaneta":           "żaneta",
		"***":              "author",
	}
	for in, want := range cases {
		if got := authorSlug(in); got != want {
			t.Fatalf("authorSlug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestApplyProposalRequiresConfirmation(t *testing.T) {
	if _, err := ApplyProposal("some/path", false); err == nil {
		t.Fatalf("expected error for missing confirmation")
	}
}

func loadFixture(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "safety.yml"), safetyDoc)
	writeFile(t, filepath.Join(dir, "lease.yml"), leaseDoc)
	store, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return store
}

func writeFile(t *testing.T, path string, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

func hasDiffLine(diff string, sign byte, text string) bool {
	for _, line := range strings.Split(diff, "\n") {
		if len(line) > 0 && line[0] == sign && !strings.HasPrefix(line, string([]byte{sign, sign})) &&
			strings.TrimSpace(line[1:]) == text {
			return true
		}
	}
	return false
}
