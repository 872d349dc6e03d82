package kpistore

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"kpiboard/internal/calendar"
	"kpiboard/internal/status"
)

type rawDocument struct {
	Category string   `yaml:"category"`
	Name     string   `yaml:"name,omitempty"`
	KPIs     []rawKPI `yaml:"kpis"`
}

type rawKPI struct {
	ID         string        `yaml:"kpi_id"`
	Title      string        `yaml:"title"`
	Target     *float64      `yaml:"target"`
	Current    *float64      `yaml:"current"`
	Unit       string        `yaml:"unit,omitempty"`
	Status     string        `yaml:"status,omitempty"`
	Activities []rawActivity `yaml:"activities"`
}

type rawActivity struct {
	ID     string    `yaml:"activity_id"`
	Name   string    `yaml:"name"`
	Status string    `yaml:"status,omitempty"`
	Tasks  []rawTask `yaml:"tasks"`
}

type rawTask struct {
	ID        string      `yaml:"task_id"`
	Name      string      `yaml:"name"`
	StartDate string      `yaml:"start_date,omitempty"`
	EndDate   string      `yaml:"end_date,omitempty"`
	Status    string      `yaml:"status,omitempty"`
	Records   []rawRecord `yaml:"records"`
}

type rawRecord struct {
	Year   *int   `yaml:"year"`
	Month  *int   `yaml:"month"`
	Week   *int   `yaml:"week"`
	Status string `yaml:"status"`
}

// ValidationError captures a single field-specific validation issue.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
}

// ValidationErrors aggregates multiple validation problems.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

// ParseAndValidateDocument unmarshals and validates one KPI collection document.
// Status tokens are normalized; stored derived statuses are ignored and recomputed.
func ParseAndValidateDocument(data []byte, source string) (Collection, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Collection{}, ValidationErrors{{
			File:    source,
			Field:   "yaml",
			Message: err.Error(),
		}}
	}
	return validateRawDocument(raw, source)
}

func validateRawDocument(raw rawDocument, source string) (Collection, error) {
	var errs ValidationErrors

	category, catErr := ParseCategory(raw.Category)
	if catErr != nil {
		errs = append(errs, ValidationError{
			File:    source,
			Field:   "category",
			Message: catErr.Error(),
		})
	}

	kpiIDs := make(map[string]struct{})
	taskIDs := make(map[string]string)
	kpis := make([]KPI, 0, len(raw.KPIs))

	for idx, rawK := range raw.KPIs {
		path := fmt.Sprintf("kpis[%d]", idx)
		kpi, kErrs := validateKPI(rawK, path, category, source)
		errs = append(errs, kErrs...)

		if kpi.ID != "" {
			if _, exists := kpiIDs[kpi.ID]; exists {
				errs = append(errs, ValidationError{
					File:    source,
					Field:   path + ".kpi_id",
					Message: fmt.Sprintf("duplicate kpi_id %q within document", kpi.ID),
				})
			} else {
				kpiIDs[kpi.ID] = struct{}{}
			}
		}
		for ai, act := range kpi.Activities {
			for ti, task := range act.Tasks {
				if task.ID == "" {
					continue
				}
				field := fmt.Sprintf("%s.activities[%d].tasks[%d].task_id", path, ai, ti)
				if prev, exists := taskIDs[task.ID]; exists {
					errs = append(errs, ValidationError{
						File:    source,
						Field:   field,
						Message: fmt.Sprintf("duplicate task_id %q (first defined at %s)", task.ID, prev),
					})
					continue
				}
				taskIDs[task.ID] = field
			}
		}
		kpis = append(kpis, kpi)
	}

	if len(errs) > 0 {
		return Collection{}, errs
	}

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = string(category)
	}
	collections := []Collection{{
		Category: category,
		Name:     name,
		KPIs:     kpis,
		Source:   source,
	}}
	Rollup(collections)
	return collections[0], nil
}

func validateKPI(raw rawKPI, fieldPath string, category Category, source string) (KPI, ValidationErrors) {
	var errs ValidationErrors

	if strings.TrimSpace(raw.ID) == "" {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".kpi_id", Message: "kpi_id is required"})
	}
	if strings.TrimSpace(raw.Title) == "" {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".title", Message: "title is required"})
	}
	if raw.Target == nil {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".target", Message: "target is required"})
	}

	actIDs := make(map[string]struct{})
	activities := make([]Activity, 0, len(raw.Activities))
	for idx, rawA := range raw.Activities {
		path := fmt.Sprintf("%s.activities[%d]", fieldPath, idx)
		act, aErrs := validateActivity(rawA, path, source)
		errs = append(errs, aErrs...)
		if act.ID != "" {
			if _, exists := actIDs[act.ID]; exists {
				errs = append(errs, ValidationError{
					File:    source,
					Field:   path + ".activity_id",
					Message: fmt.Sprintf("duplicate activity_id %q within kpi", act.ID),
				})
			} else {
				actIDs[act.ID] = struct{}{}
			}
		}
		activities = append(activities, act)
	}

	kpi := KPI{
		ID:         strings.TrimSpace(raw.ID),
		Title:      strings.TrimSpace(raw.Title),
		Unit:       strings.TrimSpace(raw.Unit),
		Category:   category,
		Activities: activities,
	}
	if raw.Target != nil {
		kpi.Target = *raw.Target
	}
	if raw.Current != nil {
		kpi.Current = *raw.Current
	}
	return kpi, errs
}

func validateActivity(raw rawActivity, fieldPath string, source string) (Activity, ValidationErrors) {
	var errs ValidationErrors

	if strings.TrimSpace(raw.ID) == "" {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".activity_id", Message: "activity_id is required"})
	}
	if strings.TrimSpace(raw.Name) == "" {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".name", Message: "name is required"})
	}

	tasks := make([]Task, 0, len(raw.Tasks))
	for idx, rawT := range raw.Tasks {
		task, tErrs := validateTask(rawT, fmt.Sprintf("%s.tasks[%d]", fieldPath, idx), source)
		errs = append(errs, tErrs...)
		tasks = append(tasks, task)
	}

	return Activity{
		ID:    strings.TrimSpace(raw.ID),
		Name:  strings.TrimSpace(raw.Name),
		Tasks: tasks,
	}, errs
}

func validateTask(raw rawTask, fieldPath string, source string) (Task, ValidationErrors) {
	var errs ValidationErrors

	if strings.TrimSpace(raw.ID) == "" {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".task_id", Message: "task_id is required"})
	}
	if strings.TrimSpace(raw.Name) == "" {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".name", Message: "name is required"})
	}

	task := Task{
		ID:   strings.TrimSpace(raw.ID),
		Name: strings.TrimSpace(raw.Name),
	}

	if raw.StartDate != "" {
		d, err := calendar.ParseDate(raw.StartDate)
		if err != nil {
			errs = append(errs, ValidationError{File: source, Field: fieldPath + ".start_date", Message: "must be a YYYY-MM-DD date"})
		}
		task.StartDate = d
	}
	if raw.EndDate != "" {
		d, err := calendar.ParseDate(raw.EndDate)
		if err != nil {
			errs = append(errs, ValidationError{File: source, Field: fieldPath + ".end_date", Message: "must be a YYYY-MM-DD date"})
		}
		task.EndDate = d
	}
	if !task.StartDate.IsZero() && !task.EndDate.IsZero() && task.EndDate.Before(task.StartDate) {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".end_date", Message: "must not be before start_date"})
	}

	seen := make(map[calendar.Position]struct{})
	for idx, rawR := range raw.Records {
		path := fmt.Sprintf("%s.records[%d]", fieldPath, idx)
		rec, rErrs := validateRecord(rawR, path, source)
		errs = append(errs, rErrs...)
		if len(rErrs) > 0 {
			continue
		}
		if _, exists := seen[rec.Position()]; exists {
			errs = append(errs, ValidationError{
				File:    source,
				Field:   path,
				Message: fmt.Sprintf("duplicate record for %s", rec.Position()),
			})
			continue
		}
		seen[rec.Position()] = struct{}{}
		task.Records = append(task.Records, rec)
	}

	return task, errs
}

func validateRecord(raw rawRecord, fieldPath string, source string) (WeeklyRecord, ValidationErrors) {
	var errs ValidationErrors

	if raw.Year == nil {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".year", Message: "year is required"})
	}
	if raw.Month == nil {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".month", Message: "month is required"})
	}
	if raw.Week == nil {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".week", Message: "week is required"})
	}
	if len(errs) > 0 {
		return WeeklyRecord{}, errs
	}

	rec := WeeklyRecord{
		Year:   *raw.Year,
		Month:  time.Month(*raw.Month),
		Week:   *raw.Week,
		Status: status.Normalize(raw.Status),
	}
	if err := ValidatePosition(rec.Position()); err != nil {
		errs = append(errs, ValidationError{File: source, Field: fieldPath, Message: err.Error()})
	}
	return rec, errs
}

// ValidatePosition checks that the week exists in the month under either week-start
// convention, since records may have been entered with either.
func ValidatePosition(pos calendar.Position) error {
	if pos.Year < 1 {
		return fmt.Errorf("%w: year %d", calendar.ErrInvalidArgument, pos.Year)
	}
	maxWeeks := 0
	for _, start := range []calendar.WeekStart{calendar.Sunday, calendar.Monday} {
		weeks, err := calendar.WeeksInMonth(pos.Year, pos.Month, start)
		if err != nil {
			return err
		}
		if len(weeks) > maxWeeks {
			maxWeeks = len(weeks)
		}
	}
	if pos.Week < 1 || pos.Week > maxWeeks {
		return fmt.Errorf("%w: week %d of %04d-%02d", calendar.ErrInvalidArgument, pos.Week, pos.Year, int(pos.Month))
	}
	return nil
}

// ParseCategory accepts one of the fixed category labels.
func ParseCategory(value string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(value)))
	for _, candidate := range Categories() {
		if c == candidate {
			return c, nil
		}
	}
	return c, fmt.Errorf("invalid category %q (expected safety, lease, asset, infra, or custom)", value)
}
