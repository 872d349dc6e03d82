// Package status defines the canonical work status and its rollup rules.
package status

import (
	"strings"

	"go.uber.org/zap"
)

// Value is the canonical work status of a record, task, activity or KPI.
type Value string

const (
	NotStarted Value = "not-started"
	InProgress Value = "in-progress"
	Completed  Value = "completed"
)

// All returns the canonical values in report order.
func All() []Value {
	return []Value{Completed, InProgress, NotStarted}
}

func (v Value) String() string {
	return string(v)
}

// Valid reports whether v is one of the three canonical values.
func (v Value) Valid() bool {
	switch v {
	case NotStarted, InProgress, Completed:
		return true
	default:
		return false
	}
}

// aliases maps every token the dashboards ever persisted onto one canonical value.
var aliases = map[string]Value{
	"not-started": NotStarted,
	"not_started": NotStarted,
	"pending":     NotStarted,
	"deferred":    NotStarted,
	"in-progress": InProgress,
	"in_progress": InProgress,
	"on_hold":     InProgress,
	"completed":   Completed,
	"complete":    Completed,
}

// Aliases returns a copy of the token table.
func Aliases() map[string]Value {
	out := make(map[string]Value, len(aliases))
	for k, v := range aliases {
		out[k] = v
	}
	return out
}

// Parse maps a persisted token onto a canonical value.
// The second result is false when the token is not in the alias table.
func Parse(token string) (Value, bool) {
	v, ok := aliases[strings.ToLower(strings.TrimSpace(token))]
	if !ok {
		return NotStarted, false
	}
	return v, true
}

// Normalize is the total form of Parse. Unknown tokens become NotStarted and are
// logged so vocabulary drift upstream gets noticed.
func Normalize(token string) Value {
	v, ok := Parse(token)
	if !ok {
		zap.L().Warn("unknown status token, treating as not-started", zap.String("token", token))
	}
	return v
}

// Derive rolls child statuses up into the parent status.
//
//  1. no children: NotStarted
//  2. any InProgress: InProgress
//  3. all Completed: Completed
//  4. all NotStarted: NotStarted
//  5. Completed mixed with NotStarted: InProgress
func Derive(children []Value) Value {
	if len(children) == 0 {
		return NotStarted
	}

	var completed, notStarted int
	for _, child := range children {
		switch child {
		case InProgress:
			return InProgress
		case Completed:
			completed++
		case NotStarted:
			notStarted++
		default:
			notStarted++
		}
	}

	switch {
	case completed == len(children):
		return Completed
	case notStarted == len(children):
		return NotStarted
	default:
		return InProgress
	}
}

// Counts tallies values per canonical status.
type Counts struct {
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	NotStarted int `json:"not_started"`
}

// Add records one value; non-canonical values count as NotStarted.
func (c *Counts) Add(v Value) {
	switch v {
	case Completed:
		c.Completed++
	case InProgress:
		c.InProgress++
	default:
		c.NotStarted++
	}
}

// Total is the number of values added.
func (c Counts) Total() int {
	return c.Completed + c.InProgress + c.NotStarted
}
