package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWeekOfMonth(t *testing.T) {
	tests := []struct {
		name  string
		date  time.Time
		start WeekStart
		want  int
	}{
		// 2026-03-01 is a Sunday.
		{"first on week start", Date(2026, 3, 1), Sunday, 1},
		{"end of first full week", Date(2026, 3, 7), Sunday, 1},
		{"start of second week", Date(2026, 3, 8), Sunday, 2},
		{"last day sunday start", Date(2026, 3, 31), Sunday, 5},
		{"first is last day of monday week", Date(2026, 3, 1), Monday, 1},
		{"monday after", Date(2026, 3, 2), Monday, 2},
		{"last day monday start", Date(2026, 3, 31), Monday, 6},
		// 2025-11-01 is a Saturday.
		{"saturday first", Date(2025, 11, 1), Sunday, 1},
		{"sunday second", Date(2025, 11, 2), Sunday, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, WeekOfMonth(tt.date, tt.start))
		})
	}
}

func TestWeeksInMonthCoverage(t *testing.T) {
	for _, start := range []WeekStart{Sunday, Monday} {
		for year := 2020; year <= 2030; year++ {
			for month := time.January; month <= time.December; month++ {
				weeks, err := WeeksInMonth(year, month, start)
				require.NoError(t, err)
				require.GreaterOrEqual(t, len(weeks), 4)
				require.LessOrEqual(t, len(weeks), 6)

				for i, w := range weeks {
					require.Equal(t, i+1, w.Number, "%d-%02d %s", year, month, start)
					require.Equal(t, start.weekday(), w.Start.Weekday())
					require.Equal(t, w.Start.AddDate(0, 0, 6), w.End)
					if i > 0 {
						require.Equal(t, weeks[i-1].Start.AddDate(0, 0, 7), w.Start)
					}
				}

				for day := 1; day <= DaysInMonth(year, month); day++ {
					d := Date(year, month, day)
					n := WeekOfMonth(d, start)
					require.True(t, weeks[n-1].Contains(d), "%s not in week %d", d.Format(DateLayout), n)
				}
			}
		}
	}
}

func TestWeeksInMonthEdges(t *testing.T) {
	// February 2026 starts on a Sunday and has exactly four Sunday-anchored weeks.
	weeks, err := WeeksInMonth(2026, time.February, Sunday)
	require.NoError(t, err)
	require.Len(t, weeks, 4)
	require.Equal(t, Date(2026, 2, 1), weeks[0].Start)
	require.Equal(t, Date(2026, 2, 28), weeks[3].End)

	// Monday-anchored March 2026: first bucket starts in February, last ends in April.
	weeks, err = WeeksInMonth(2026, time.March, Monday)
	require.NoError(t, err)
	require.Len(t, weeks, 6)
	require.Equal(t, Date(2026, 2, 23), weeks[0].Start)
	require.Equal(t, Date(2026, 3, 1), weeks[0].End)
	require.Equal(t, Date(2026, 4, 5), weeks[5].End)

	// Leap year February.
	weeks, err = WeeksInMonth(2024, time.February, Sunday)
	require.NoError(t, err)
	require.True(t, weeks[len(weeks)-1].Contains(Date(2024, 2, 29)))
}

func TestWeeksInMonthInvalid(t *testing.T) {
	_, err := WeeksInMonth(2026, 13, Sunday)
	require.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = WeeksInMonth(2026, 0, Monday)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestWeekRange(t *testing.T) {
	w, err := WeekRange(2026, time.March, 2, Monday)
	require.NoError(t, err)
	require.Equal(t, Date(2026, 3, 2), w.Start)
	require.Equal(t, Date(2026, 3, 8), w.End)
	require.Equal(t, "2026-03-02 ~ 2026-03-08", w.String())

	_, err = WeekRange(2026, time.February, 5, Sunday)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = WeekRange(2026, time.February, 0, Sunday)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestISOWeekRange(t *testing.T) {
	w, err := ISOWeekRange(2026, 1)
	require.NoError(t, err)
	require.Equal(t, Date(2025, 12, 29), w.Start)

	w, err = ISOWeekRange(2026, 10)
	require.NoError(t, err)
	require.Equal(t, Date(2026, 3, 2), w.Start)
	require.Equal(t, Date(2026, 3, 8), w.End)

	// 2026 starts on a Thursday and has 53 ISO weeks; 2025 has 52.
	_, err = ISOWeekRange(2026, 53)
	require.NoError(t, err)
	_, err = ISOWeekRange(2025, 53)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = ISOWeekRange(2026, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLocateAndParse(t *testing.T) {
	d, err := ParseDate("2026-03-03")
	require.NoError(t, err)
	pos := Locate(d, Sunday)
	require.Equal(t, Position{Year: 2026, Month: time.March, Week: 1}, pos)
	require.Equal(t, "2026-03 W1", pos.String())

	start, err := ParseWeekStart(" Monday ")
	require.NoError(t, err)
	require.Equal(t, Monday, start)
	_, err = ParseWeekStart("friday")
	require.ErrorIs(t, err, ErrInvalidArgument)
}
