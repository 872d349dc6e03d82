package report

import (
	"math"

	"kpiboard/internal/status"
)

// Summary holds the numeric side of a weekly report.
type Summary struct {
	Total      status.Counts    `json:"total"`
	Categories []CategoryCounts `json:"categories"`
	KPIs       []KPIProgress    `json:"kpis"`
}

// CategoryCounts tallies matched entries of one category by effective status.
type CategoryCounts struct {
	Category string        `json:"category"`
	Counts   status.Counts `json:"counts"`
}

// KPIProgress is the measured progress of one KPI.
type KPIProgress struct {
	ID              string       `json:"kpi_id"`
	Title           string       `json:"title"`
	Category        string       `json:"category"`
	Status          status.Value `json:"status"`
	Target          float64      `json:"target"`
	Current         float64      `json:"current"`
	Unit            string       `json:"unit,omitempty"`
	PercentToTarget float64      `json:"percent_to_target"`
}

type summaryBuilder struct {
	total      status.Counts
	order      []string
	categories map[string]*status.Counts
	kpis       []KPIProgress
}

func newSummaryBuilder() *summaryBuilder {
	return &summaryBuilder{categories: make(map[string]*status.Counts)}
}

func (b *summaryBuilder) ensure(category string) *status.Counts {
	c, ok := b.categories[category]
	if !ok {
		c = &status.Counts{}
		b.categories[category] = c
		b.order = append(b.order, category)
	}
	return c
}

func (b *summaryBuilder) addKPI(entry flatKPI) {
	b.ensure(entry.category)
	k := entry.kpi
	b.kpis = append(b.kpis, KPIProgress{
		ID:              k.ID,
		Title:           k.Title,
		Category:        entry.category,
		Status:          kpiStatus(k),
		Target:          k.Target,
		Current:         k.Current,
		Unit:            k.Unit,
		PercentToTarget: percentToTarget(k.Target, k.Current),
	})
}

func (b *summaryBuilder) count(category string, v status.Value) {
	b.ensure(category).Add(v)
	b.total.Add(v)
}

func (b *summaryBuilder) summary() Summary {
	s := Summary{
		Total:      b.total,
		Categories: make([]CategoryCounts, 0, len(b.order)),
		KPIs:       b.kpis,
	}
	for _, category := range b.order {
		s.Categories = append(s.Categories, CategoryCounts{Category: category, Counts: *b.categories[category]})
	}
	if s.KPIs == nil {
		s.KPIs = []KPIProgress{}
	}
	return s
}

// percentToTarget measures current against target from a zero baseline, clamped to [0, 100].
func percentToTarget(target, current float64) float64 {
	if target == 0 {
		if current >= target {
			return 100
		}
		return 0
	}

	progress := current / target
	if math.IsNaN(progress) || math.IsInf(progress, 0) {
		return 0
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	return progress * 100
}
