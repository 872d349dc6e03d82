package kpistore

import (
	"errors"
	"time"

	"kpiboard/internal/calendar"
	"kpiboard/internal/status"
)

var (
	// ErrNotFound is returned when an id or record position does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an id or record position already exists.
	ErrDuplicate = errors.New("duplicate")
)

// Category labels a KPI collection.
type Category string

const (
	CategorySafety Category = "safety"
	CategoryLease  Category = "lease"
	CategoryAsset  Category = "asset"
	CategoryInfra  Category = "infra"
	CategoryCustom Category = "custom"
)

// Categories returns every category in collection order.
func Categories() []Category {
	return []Category{CategorySafety, CategoryLease, CategoryAsset, CategoryInfra, CategoryCustom}
}

func (c Category) String() string {
	return string(c)
}

func (c Category) rank() int {
	for i, candidate := range Categories() {
		if c == candidate {
			return i
		}
	}
	return len(Categories())
}

// WeeklyRecord is the status of a task for one week-of-month bucket.
type WeeklyRecord struct {
	Year   int
	Month  time.Month
	Week   int
	Status status.Value
}

// Position returns the (year, month, week) triple that identifies the record.
func (r WeeklyRecord) Position() calendar.Position {
	return calendar.Position{Year: r.Year, Month: r.Month, Week: r.Week}
}

// Task is a unit of work. Status is derived from Records.
type Task struct {
	ID        string
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Status    status.Value
	Records   []WeeklyRecord
}

// Activity groups tasks under a KPI. Status is derived from Tasks.
type Activity struct {
	ID     string
	Name   string
	Status status.Value
	Tasks  []Task
}

// KPI is a tracked indicator. Status is derived from Activities.
type KPI struct {
	ID         string
	Title      string
	Target     float64
	Current    float64
	Unit       string
	Category   Category
	Status     status.Value
	Activities []Activity
}

// Collection is one category of KPIs, loaded from a single YAML document.
type Collection struct {
	Category Category
	Name     string
	KPIs     []KPI
	Source   string
}

// KPIRecord maps a KPI id to its data and origin.
type KPIRecord struct {
	KPI      KPI
	Category Category
	Source   string
}

// TaskRecord maps a task id to its data and owners.
type TaskRecord struct {
	Task       Task
	ActivityID string
	KPIID      string
	Category   Category
	Source     string
}

type kpiRef struct {
	coll, kpi int
}

type taskRef struct {
	coll, kpi, act, task int
}

// Store is the in-memory KPI tree loaded from a directory of YAML documents.
// Every mutation recomputes derived statuses of the touched KPI.
type Store struct {
	Dir string

	collections []Collection
	dirty       map[string]bool

	kpis  map[string]kpiRef
	tasks map[string]taskRef
}

// Collections returns a deep copy of the KPI tree in collection order.
func (s *Store) Collections() []Collection {
	if s == nil {
		return nil
	}
	out := make([]Collection, len(s.collections))
	for i, c := range s.collections {
		out[i] = cloneCollection(c)
	}
	return out
}

// KPILookup returns the KPI with the given id, if present.
func (s *Store) KPILookup(id string) (KPIRecord, bool) {
	if s == nil {
		return KPIRecord{}, false
	}
	ref, ok := s.kpis[id]
	if !ok {
		return KPIRecord{}, false
	}
	coll := s.collections[ref.coll]
	return KPIRecord{
		KPI:      cloneKPI(coll.KPIs[ref.kpi]),
		Category: coll.Category,
		Source:   coll.Source,
	}, true
}

// TaskLookup returns the task with the given id, if present.
func (s *Store) TaskLookup(id string) (TaskRecord, bool) {
	if s == nil {
		return TaskRecord{}, false
	}
	ref, ok := s.tasks[id]
	if !ok {
		return TaskRecord{}, false
	}
	coll := s.collections[ref.coll]
	kpi := coll.KPIs[ref.kpi]
	act := kpi.Activities[ref.act]
	return TaskRecord{
		Task:       cloneTask(act.Tasks[ref.task]),
		ActivityID: act.ID,
		KPIID:      kpi.ID,
		Category:   coll.Category,
		Source:     coll.Source,
	}, true
}

// Counts returns the number of KPIs, activities, tasks and records in the store.
func (s *Store) Counts() (kpis, activities, tasks, records int) {
	if s == nil {
		return 0, 0, 0, 0
	}
	for _, c := range s.collections {
		kpis += len(c.KPIs)
		for _, k := range c.KPIs {
			activities += len(k.Activities)
			for _, a := range k.Activities {
				tasks += len(a.Tasks)
				for _, t := range a.Tasks {
					records += len(t.Records)
				}
			}
		}
	}
	return kpis, activities, tasks, records
}

func (s *Store) reindex() {
	s.kpis = make(map[string]kpiRef)
	s.tasks = make(map[string]taskRef)
	for ci, c := range s.collections {
		for ki, k := range c.KPIs {
			s.kpis[k.ID] = kpiRef{coll: ci, kpi: ki}
			for ai, a := range k.Activities {
				for ti, t := range a.Tasks {
					s.tasks[t.ID] = taskRef{coll: ci, kpi: ki, act: ai, task: ti}
				}
			}
		}
	}
}

func cloneCollection(c Collection) Collection {
	out := c
	out.KPIs = make([]KPI, len(c.KPIs))
	for i, k := range c.KPIs {
		out.KPIs[i] = cloneKPI(k)
	}
	return out
}

func cloneKPI(k KPI) KPI {
	out := k
	out.Activities = make([]Activity, len(k.Activities))
	for i, a := range k.Activities {
		out.Activities[i] = cloneActivity(a)
	}
	return out
}

func cloneActivity(a Activity) Activity {
	out := a
	out.Tasks = make([]Task, len(a.Tasks))
	for i, t := range a.Tasks {
		out.Tasks[i] = cloneTask(t)
	}
	return out
}

func cloneTask(t Task) Task {
	out := t
	out.Records = append([]WeeklyRecord{}, t.Records...)
	return out
}
