package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kpiboard/internal/calendar"
	"kpiboard/internal/report"
)

func newCalendarCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Week-of-month helpers",
	}
	cmd.AddCommand(newCalendarWeeksCmd(a), newCalendarLocateCmd(a))
	return cmd
}

// weekStart returns the --start flag value, falling back to calendar.record_week_start.
func (a *app) weekStart(flag string) (calendar.WeekStart, error) {
	if flag != "" {
		return calendar.ParseWeekStart(flag)
	}
	return a.cfg.RecordWeekStart()
}

func newCalendarWeeksCmd(a *app) *cobra.Command {
	var year, month int
	var start string
	cmd := &cobra.Command{
		Use:   "weeks",
		Short: "List the week buckets of a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.weekStart(start)
			if err != nil {
				return err
			}
			weeks, err := calendar.WeeksInMonth(year, time.Month(month), ws)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%04d-%02d (%s start)\n", year, month, ws)
			fmt.Fprint(a.out, report.RenderWeeks(weeks))
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", time.Now().Year(), "Year")
	cmd.Flags().IntVar(&month, "month", int(time.Now().Month()), "Month (1-12)")
	cmd.Flags().StringVar(&start, "start", "", "Week start: sunday or monday (default calendar.record_week_start)")
	return cmd
}

func newCalendarLocateCmd(a *app) *cobra.Command {
	var start string
	cmd := &cobra.Command{
		Use:   "locate <YYYY-MM-DD>",
		Short: "Show the (year, month, week) bucket a date falls in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.weekStart(start)
			if err != nil {
				return err
			}
			date, err := calendar.ParseDate(args[0])
			if err != nil {
				return fmt.Errorf("parse date: %w", err)
			}
			pos := calendar.Locate(date, ws)
			week, err := calendar.WeekRange(pos.Year, pos.Month, pos.Week, ws)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s (%s)\n", pos, week)
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Week start: sunday or monday (default calendar.record_week_start)")
	return cmd
}
