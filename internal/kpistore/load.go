package kpistore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadFromDir loads and validates every KPI YAML document in dir.
// A directory without documents yields an empty store.
func LoadFromDir(dir string) (*Store, error) {
	if dir == "" {
		dir = "kpis"
	}

	files, err := collectYAMLFiles(dir)
	if err != nil {
		return nil, err
	}

	var collections []Collection
	var vErrs ValidationErrors

	for _, path := range files {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read %s: %w", path, readErr)
		}
		coll, parseErr := ParseAndValidateDocument(data, path)
		if parseErr != nil {
			if ve, ok := parseErr.(ValidationErrors); ok {
				vErrs = append(vErrs, ve...)
				continue
			}
			return nil, parseErr
		}
		collections = append(collections, coll)
	}

	if len(vErrs) > 0 {
		return nil, vErrs
	}

	if dupErrs := validateCrossDocumentUniqueness(collections); len(dupErrs) > 0 {
		return nil, dupErrs
	}

	return NewStore(dir, collections), nil
}

// NewStore builds a store over already validated collections, ordering them by
// category and recomputing derived statuses.
func NewStore(dir string, collections []Collection) *Store {
	ordered := make([]Collection, len(collections))
	for i, c := range collections {
		ordered[i] = cloneCollection(c)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := ordered[i].Category.rank(), ordered[j].Category.rank()
		if ri != rj {
			return ri < rj
		}
		return ordered[i].Source < ordered[j].Source
	})
	Rollup(ordered)

	s := &Store{
		Dir:         dir,
		collections: ordered,
		dirty:       make(map[string]bool),
	}
	s.reindex()
	return s
}

func validateCrossDocumentUniqueness(collections []Collection) ValidationErrors {
	var errs ValidationErrors

	kpiSeen := make(map[string]string)
	taskSeen := make(map[string]string)

	for _, coll := range collections {
		for ki, kpi := range coll.KPIs {
			if origin, exists := kpiSeen[kpi.ID]; exists {
				errs = append(errs, ValidationError{
					File:    coll.Source,
					Field:   fmt.Sprintf("kpis[%d].kpi_id", ki),
					Message: fmt.Sprintf("kpi_id %q already defined in %s", kpi.ID, origin),
				})
			} else {
				kpiSeen[kpi.ID] = coll.Source
			}

			for ai, act := range kpi.Activities {
				for ti, task := range act.Tasks {
					origin, exists := taskSeen[task.ID]
					if !exists {
						taskSeen[task.ID] = coll.Source
						continue
					}
					if origin == coll.Source {
						// reported by document validation
						continue
					}
					errs = append(errs, ValidationError{
						File:    coll.Source,
						Field:   fmt.Sprintf("kpis[%d].activities[%d].tasks[%d].task_id", ki, ai, ti),
						Message: fmt.Sprintf("task_id %q already defined in %s", task.ID, origin),
					})
				}
			}
		}
	}

	return errs
}

func collectYAMLFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yml" || ext == ".yaml"
}
