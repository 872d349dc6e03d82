// Package calendar resolves dates into week-of-month buckets.
//
// Week numbers reset every calendar month: week 1 always contains the 1st, and a
// week that straddles a month boundary belongs to both months. These are not ISO
// week numbers; ISOWeekRange exists only for report headers.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidArgument marks a caller bug such as month 13 or week 7.
var ErrInvalidArgument = errors.New("invalid argument")

// WeekStart selects the weekday a week bucket begins on.
type WeekStart int

const (
	Sunday WeekStart = iota
	Monday
)

// ParseWeekStart accepts "sunday" or "monday" (case-insensitive).
func ParseWeekStart(value string) (WeekStart, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "sunday", "sun":
		return Sunday, nil
	case "monday", "mon":
		return Monday, nil
	default:
		return Sunday, fmt.Errorf("%w: week start %q (expected sunday or monday)", ErrInvalidArgument, value)
	}
}

func (s WeekStart) String() string {
	if s == Monday {
		return "monday"
	}
	return "sunday"
}

func (s WeekStart) weekday() time.Weekday {
	if s == Monday {
		return time.Monday
	}
	return time.Sunday
}

// Week is one bucket with inclusive start and end dates.
type Week struct {
	Number int       `json:"week" yaml:"week"`
	Start  time.Time `json:"start" yaml:"start"`
	End    time.Time `json:"end" yaml:"end"`
}

// Contains reports whether date falls on a day inside the bucket.
func (w Week) Contains(date time.Time) bool {
	d := Date(date.Year(), date.Month(), date.Day())
	return !d.Before(w.Start) && !d.After(w.End)
}

// String renders the range as "2006-01-02 ~ 2006-01-02".
func (w Week) String() string {
	return fmt.Sprintf("%s ~ %s", w.Start.Format(DateLayout), w.End.Format(DateLayout))
}

// Position addresses a week bucket inside a month.
type Position struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Week  int        `json:"week"`
}

func (p Position) String() string {
	return fmt.Sprintf("%04d-%02d W%d", p.Year, int(p.Month), p.Week)
}

// DateLayout is the calendar date format used across kpiboard.
const DateLayout = "2006-01-02"

// Date returns midnight UTC for the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
}

// DaysInMonth returns the number of days in the month, leap years included.
func DaysInMonth(year int, month time.Month) int {
	return Date(year, month+1, 0).Day()
}

// firstOffset is the 0-based weekday index of the 1st under the convention.
func firstOffset(year int, month time.Month, start WeekStart) int {
	first := Date(year, month, 1)
	return (int(first.Weekday()) - int(start.weekday()) + 7) % 7
}

// WeekOfMonth returns the 1-based week-of-month bucket for date.
func WeekOfMonth(date time.Time, start WeekStart) int {
	offset := firstOffset(date.Year(), date.Month(), start)
	return (date.Day() + offset + 6) / 7
}

// Locate returns the (year, month, week) bucket a date belongs to.
func Locate(date time.Time, start WeekStart) Position {
	return Position{
		Year:  date.Year(),
		Month: date.Month(),
		Week:  WeekOfMonth(date, start),
	}
}

// WeeksInMonth enumerates every week bucket touching the month in ascending order.
func WeeksInMonth(year int, month time.Month, start WeekStart) ([]Week, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: month %d", ErrInvalidArgument, int(month))
	}

	offset := firstOffset(year, month, start)
	last := Date(year, month, DaysInMonth(year, month))
	count := WeekOfMonth(last, start)
	bucketStart := Date(year, month, 1).AddDate(0, 0, -offset)

	weeks := make([]Week, 0, count)
	for n := 1; n <= count; n++ {
		weeks = append(weeks, Week{
			Number: n,
			Start:  bucketStart,
			End:    bucketStart.AddDate(0, 0, 6),
		})
		bucketStart = bucketStart.AddDate(0, 0, 7)
	}
	return weeks, nil
}

// WeekRange returns the bucket numbered week within the month.
func WeekRange(year int, month time.Month, week int, start WeekStart) (Week, error) {
	weeks, err := WeeksInMonth(year, month, start)
	if err != nil {
		return Week{}, err
	}
	if week < 1 || week > len(weeks) {
		return Week{}, fmt.Errorf("%w: week %d of %04d-%02d has %d weeks", ErrInvalidArgument, week, year, int(month), len(weeks))
	}
	return weeks[week-1], nil
}

// ISOWeekRange returns the Monday-to-Sunday range of ISO week-of-year week.
func ISOWeekRange(year, week int) (Week, error) {
	_, lastWeek := Date(year, time.December, 28).ISOWeek()
	if week < 1 || week > lastWeek {
		return Week{}, fmt.Errorf("%w: ISO week %d of %d has %d weeks", ErrInvalidArgument, week, year, lastWeek)
	}
	// January 4th always falls in ISO week 1.
	jan4 := Date(year, time.January, 4)
	monday := jan4.AddDate(0, 0, -((int(jan4.Weekday()) + 6) % 7))
	start := monday.AddDate(0, 0, 7*(week-1))
	return Week{Number: week, Start: start, End: start.AddDate(0, 0, 6)}, nil
}
