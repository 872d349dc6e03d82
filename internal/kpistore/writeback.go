package kpistore

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"kpiboard/internal/calendar"
)

// Save writes every collection changed since the last save back to its source file.
// It returns the paths written.
func (s *Store) Save() ([]string, error) {
	var written []string
	for _, coll := range s.collections {
		if !s.dirty[coll.Source] {
			continue
		}
		if err := WriteCollection(coll, coll.Source); err != nil {
			return written, fmt.Errorf("write %s: %w", coll.Source, err)
		}
		delete(s.dirty, coll.Source)
		written = append(written, coll.Source)
	}
	return written, nil
}

// SaveAll rewrites every collection, normalizing status tokens on disk.
func (s *Store) SaveAll() ([]string, error) {
	for _, coll := range s.collections {
		s.dirty[coll.Source] = true
	}
	return s.Save()
}

// MarshalCollection renders a collection in the on-disk YAML format.
// Derived statuses are included for readers and ignored when loading.
func MarshalCollection(coll Collection) ([]byte, error) {
	raw := rawDocument{
		Category: string(coll.Category),
		KPIs:     make([]rawKPI, len(coll.KPIs)),
	}
	if coll.Name != string(coll.Category) {
		raw.Name = coll.Name
	}

	for i, kpi := range coll.KPIs {
		target, current := kpi.Target, kpi.Current
		rk := rawKPI{
			ID:         kpi.ID,
			Title:      kpi.Title,
			Target:     &target,
			Current:    &current,
			Unit:       kpi.Unit,
			Status:     string(kpi.Status),
			Activities: make([]rawActivity, len(kpi.Activities)),
		}
		for j, act := range kpi.Activities {
			ra := rawActivity{
				ID:     act.ID,
				Name:   act.Name,
				Status: string(act.Status),
				Tasks:  make([]rawTask, len(act.Tasks)),
			}
			for k, task := range act.Tasks {
				rt := rawTask{
					ID:      task.ID,
					Name:    task.Name,
					Status:  string(task.Status),
					Records: make([]rawRecord, len(task.Records)),
				}
				if !task.StartDate.IsZero() {
					rt.StartDate = task.StartDate.Format(calendar.DateLayout)
				}
				if !task.EndDate.IsZero() {
					rt.EndDate = task.EndDate.Format(calendar.DateLayout)
				}
				for r, rec := range task.Records {
					year, month, week := rec.Year, int(rec.Month), rec.Week
					rt.Records[r] = rawRecord{
						Year:   &year,
						Month:  &month,
						Week:   &week,
						Status: string(rec.Status),
					}
				}
				ra.Tasks[k] = rt
			}
			rk.Activities[j] = ra
		}
		raw.KPIs[i] = rk
	}

	data, err := yaml.Marshal(&raw)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	return data, nil
}

// WriteCollection writes a collection to path atomically via a temp file.
func WriteCollection(coll Collection, path string) error {
	data, err := MarshalCollection(coll)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
