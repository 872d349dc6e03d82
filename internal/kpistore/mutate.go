package kpistore

import (
	"fmt"
	"path/filepath"
	"strings"

	"kpiboard/internal/calendar"
	"kpiboard/internal/status"
)

// AddKPI appends a KPI to the collection of its category, creating the
// collection document when the category has none yet.
func (s *Store) AddKPI(kpi KPI) error {
	kpi.ID = strings.TrimSpace(kpi.ID)
	kpi.Title = strings.TrimSpace(kpi.Title)
	if kpi.ID == "" || kpi.Title == "" {
		return fmt.Errorf("kpi id and title are required")
	}
	category, err := ParseCategory(string(kpi.Category))
	if err != nil {
		return err
	}
	if _, exists := s.kpis[kpi.ID]; exists {
		return fmt.Errorf("kpi %s: %w", kpi.ID, ErrDuplicate)
	}
	kpi = cloneKPI(kpi)
	kpi.Category = category
	activityIDs := make(map[string]struct{}, len(kpi.Activities))
	taskIDs := make(map[string]struct{})
	for i := range kpi.Activities {
		if err := s.prepareActivity(&kpi.Activities[i], taskIDs); err != nil {
			return fmt.Errorf("kpi %s: %w", kpi.ID, err)
		}
		id := kpi.Activities[i].ID
		if _, dup := activityIDs[id]; dup {
			return fmt.Errorf("kpi %s activity %s: %w", kpi.ID, id, ErrDuplicate)
		}
		activityIDs[id] = struct{}{}
	}

	ci := s.collectionIndex(category)
	coll := &s.collections[ci]
	coll.KPIs = append(coll.KPIs, kpi)
	RollupKPI(&coll.KPIs[len(coll.KPIs)-1])
	s.touch(ci)
	return nil
}

// DeleteKPI removes a KPI with all of its activities, tasks and records.
func (s *Store) DeleteKPI(id string) error {
	ref, ok := s.kpis[id]
	if !ok {
		return fmt.Errorf("kpi %s: %w", id, ErrNotFound)
	}
	coll := &s.collections[ref.coll]
	coll.KPIs = append(coll.KPIs[:ref.kpi], coll.KPIs[ref.kpi+1:]...)
	s.touch(ref.coll)
	return nil
}

// SetKPICurrent updates the measured value of a KPI.
func (s *Store) SetKPICurrent(id string, current float64) error {
	ref, ok := s.kpis[id]
	if !ok {
		return fmt.Errorf("kpi %s: %w", id, ErrNotFound)
	}
	s.collections[ref.coll].KPIs[ref.kpi].Current = current
	s.touch(ref.coll)
	return nil
}

// AddActivity appends an activity to a KPI.
func (s *Store) AddActivity(kpiID string, act Activity) error {
	ref, ok := s.kpis[kpiID]
	if !ok {
		return fmt.Errorf("kpi %s: %w", kpiID, ErrNotFound)
	}
	act = cloneActivity(act)
	if err := s.prepareActivity(&act, make(map[string]struct{})); err != nil {
		return err
	}
	kpi := &s.collections[ref.coll].KPIs[ref.kpi]
	for _, existing := range kpi.Activities {
		if existing.ID == act.ID {
			return fmt.Errorf("activity %s in kpi %s: %w", act.ID, kpiID, ErrDuplicate)
		}
	}
	kpi.Activities = append(kpi.Activities, act)
	RollupKPI(kpi)
	s.touch(ref.coll)
	return nil
}

// DeleteActivity removes an activity with all of its tasks and records.
func (s *Store) DeleteActivity(kpiID, activityID string) error {
	ref, ok := s.kpis[kpiID]
	if !ok {
		return fmt.Errorf("kpi %s: %w", kpiID, ErrNotFound)
	}
	kpi := &s.collections[ref.coll].KPIs[ref.kpi]
	for i, act := range kpi.Activities {
		if act.ID != activityID {
			continue
		}
		kpi.Activities = append(kpi.Activities[:i], kpi.Activities[i+1:]...)
		RollupKPI(kpi)
		s.touch(ref.coll)
		return nil
	}
	return fmt.Errorf("activity %s in kpi %s: %w", activityID, kpiID, ErrNotFound)
}

// AddTask appends a task to an activity. Task ids are unique across the store.
func (s *Store) AddTask(kpiID, activityID string, task Task) error {
	ref, ok := s.kpis[kpiID]
	if !ok {
		return fmt.Errorf("kpi %s: %w", kpiID, ErrNotFound)
	}
	task = cloneTask(task)
	if err := s.prepareTask(&task, make(map[string]struct{})); err != nil {
		return err
	}

	kpi := &s.collections[ref.coll].KPIs[ref.kpi]
	for i := range kpi.Activities {
		if kpi.Activities[i].ID != activityID {
			continue
		}
		kpi.Activities[i].Tasks = append(kpi.Activities[i].Tasks, task)
		RollupKPI(kpi)
		s.touch(ref.coll)
		return nil
	}
	return fmt.Errorf("activity %s in kpi %s: %w", activityID, kpiID, ErrNotFound)
}

// prepareActivity checks a new activity and each of its tasks. taskIDs collects
// the task ids of the payload being added.
func (s *Store) prepareActivity(act *Activity, taskIDs map[string]struct{}) error {
	act.ID = strings.TrimSpace(act.ID)
	act.Name = strings.TrimSpace(act.Name)
	if act.ID == "" || act.Name == "" {
		return fmt.Errorf("activity id and name are required")
	}
	for i := range act.Tasks {
		if err := s.prepareTask(&act.Tasks[i], taskIDs); err != nil {
			return fmt.Errorf("activity %s: %w", act.ID, err)
		}
	}
	return nil
}

// prepareTask checks a new task the way the loader would and normalizes its
// record statuses in place.
func (s *Store) prepareTask(task *Task, taskIDs map[string]struct{}) error {
	task.ID = strings.TrimSpace(task.ID)
	task.Name = strings.TrimSpace(task.Name)
	if task.ID == "" || task.Name == "" {
		return fmt.Errorf("task id and name are required")
	}
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s: %w", task.ID, ErrDuplicate)
	}
	if _, dup := taskIDs[task.ID]; dup {
		return fmt.Errorf("task %s: %w", task.ID, ErrDuplicate)
	}
	taskIDs[task.ID] = struct{}{}
	if !task.StartDate.IsZero() && !task.EndDate.IsZero() && task.EndDate.Before(task.StartDate) {
		return fmt.Errorf("task %s: end date %s is before start date %s", task.ID,
			task.EndDate.Format(calendar.DateLayout), task.StartDate.Format(calendar.DateLayout))
	}
	seen := make(map[calendar.Position]struct{}, len(task.Records))
	for i := range task.Records {
		rec := &task.Records[i]
		if err := ValidatePosition(rec.Position()); err != nil {
			return fmt.Errorf("task %s: %w", task.ID, err)
		}
		if _, dup := seen[rec.Position()]; dup {
			return fmt.Errorf("task %s record %s: %w", task.ID, rec.Position(), ErrDuplicate)
		}
		seen[rec.Position()] = struct{}{}
		if !rec.Status.Valid() {
			rec.Status = status.Normalize(string(rec.Status))
		}
	}
	return nil
}

// DeleteTask removes a task with all of its records.
func (s *Store) DeleteTask(taskID string) error {
	ref, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	kpi := &s.collections[ref.coll].KPIs[ref.kpi]
	act := &kpi.Activities[ref.act]
	act.Tasks = append(act.Tasks[:ref.task], act.Tasks[ref.task+1:]...)
	RollupKPI(kpi)
	s.touch(ref.coll)
	return nil
}

// AddRecord adds a weekly record to a task. At most one record may exist per
// (year, month, week).
func (s *Store) AddRecord(taskID string, rec WeeklyRecord) error {
	task, kpi, ci, err := s.task(taskID)
	if err != nil {
		return err
	}
	if err := ValidatePosition(rec.Position()); err != nil {
		return fmt.Errorf("task %s: %w", taskID, err)
	}
	if !rec.Status.Valid() {
		rec.Status = status.Normalize(string(rec.Status))
	}
	if findRecord(task, rec.Position()) >= 0 {
		return fmt.Errorf("task %s record %s: %w", taskID, rec.Position(), ErrDuplicate)
	}
	task.Records = append(task.Records, rec)
	RollupKPI(kpi)
	s.touch(ci)
	return nil
}

// SetRecordStatus rewrites the status of an existing weekly record.
func (s *Store) SetRecordStatus(taskID string, pos calendar.Position, value status.Value) error {
	task, kpi, ci, err := s.task(taskID)
	if err != nil {
		return err
	}
	idx := findRecord(task, pos)
	if idx < 0 {
		return fmt.Errorf("task %s record %s: %w", taskID, pos, ErrNotFound)
	}
	if !value.Valid() {
		value = status.Normalize(string(value))
	}
	task.Records[idx].Status = value
	RollupKPI(kpi)
	s.touch(ci)
	return nil
}

// UpsertRecord sets the status for pos, adding the record when it does not exist.
// It reports whether a record was created.
func (s *Store) UpsertRecord(taskID string, pos calendar.Position, value status.Value) (bool, error) {
	task, _, _, err := s.task(taskID)
	if err != nil {
		return false, err
	}
	if findRecord(task, pos) >= 0 {
		return false, s.SetRecordStatus(taskID, pos, value)
	}
	rec := WeeklyRecord{Year: pos.Year, Month: pos.Month, Week: pos.Week, Status: value}
	return true, s.AddRecord(taskID, rec)
}

// DeleteRecord removes one weekly record from a task.
func (s *Store) DeleteRecord(taskID string, pos calendar.Position) error {
	task, kpi, ci, err := s.task(taskID)
	if err != nil {
		return err
	}
	idx := findRecord(task, pos)
	if idx < 0 {
		return fmt.Errorf("task %s record %s: %w", taskID, pos, ErrNotFound)
	}
	task.Records = append(task.Records[:idx], task.Records[idx+1:]...)
	RollupKPI(kpi)
	s.touch(ci)
	return nil
}

func (s *Store) task(taskID string) (*Task, *KPI, int, error) {
	ref, ok := s.tasks[taskID]
	if !ok {
		return nil, nil, 0, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	kpi := &s.collections[ref.coll].KPIs[ref.kpi]
	return &kpi.Activities[ref.act].Tasks[ref.task], kpi, ref.coll, nil
}

func findRecord(task *Task, pos calendar.Position) int {
	for i, rec := range task.Records {
		if rec.Position() == pos {
			return i
		}
	}
	return -1
}

// collectionIndex returns the index of the first collection for category,
// inserting a new one in category order when missing.
func (s *Store) collectionIndex(category Category) int {
	insertAt := len(s.collections)
	for i, c := range s.collections {
		if c.Category == category {
			return i
		}
		if c.Category.rank() > category.rank() && insertAt == len(s.collections) {
			insertAt = i
		}
	}
	coll := Collection{
		Category: category,
		Name:     string(category),
		Source:   filepath.Join(s.Dir, string(category)+".yml"),
	}
	s.collections = append(s.collections, Collection{})
	copy(s.collections[insertAt+1:], s.collections[insertAt:])
	s.collections[insertAt] = coll
	s.reindex()
	return insertAt
}

func (s *Store) touch(ci int) {
	if s.dirty == nil {
		s.dirty = make(map[string]bool)
	}
	s.dirty[s.collections[ci].Source] = true
	s.reindex()
}

// Dirty returns the sources of collections changed since the last save.
func (s *Store) Dirty() []string {
	var out []string
	for _, c := range s.collections {
		if s.dirty[c.Source] {
			out = append(out, c.Source)
		}
	}
	return out
}
