package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kpiboard/internal/calendar"
	"kpiboard/internal/report"
)

type outputOptions struct {
	format string
	output string
	copy   bool
	pretty bool
}

func (o *outputOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.format, "format", "", "Output format: markdown or json (default report.format)")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().BoolVar(&o.copy, "copy", false, "Also copy the report to the clipboard")
	cmd.Flags().BoolVar(&o.pretty, "pretty", false, "Render markdown for the terminal")
}

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build weekly and monthly progress reports",
	}
	cmd.AddCommand(newReportWeeklyCmd(a), newReportMonthlyCmd(a))
	return cmd
}

func newReportWeeklyCmd(a *app) *cobra.Command {
	var year, month, week int
	var save bool
	var opts outputOptions
	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Report the tasks recorded in one week, grouped by derived status",
		Long: `Report the tasks recorded in one week, grouped by derived status.

With --month the week is a week-of-month bucket; without it every month's bucket
with that week number is included. Without --year and --week the current week is
reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := a.weeklyPeriod(year, month, week)
			if err != nil {
				return err
			}
			payload := map[string]any{"period": period.Label(), "format": opts.format}
			return a.track("cli", "report_weekly", payload, func(finish map[string]any) error {
				store, err := a.loadStore()
				if err != nil {
					return err
				}
				r := report.BuildWeekly(store.Collections(), period)
				finish["entries"] = r.Summary.Total.Total()

				if save {
					dir, err := a.reportDir()
					if err != nil {
						return err
					}
					paths, err := report.WriteArtifacts(dir, r, time.Now())
					if err != nil {
						return err
					}
					finish["json"] = paths.JSON
					fmt.Fprintf(a.errOut, "Saved %s and %s\n", a.ws.Rel(paths.JSON), a.ws.Rel(paths.Markdown))
				}

				return a.emit(opts, report.RenderMarkdown(r), r)
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Report year")
	cmd.Flags().IntVar(&month, "month", 0, "Report month (1-12, 0 for any month)")
	cmd.Flags().IntVar(&week, "week", 0, "Week number")
	cmd.Flags().BoolVar(&save, "save", false, "Also write JSON and Markdown artifacts under report.output_dir")
	opts.bind(cmd)
	return cmd
}

func newReportMonthlyCmd(a *app) *cobra.Command {
	var year, month int
	var start string
	var opts outputOptions
	cmd := &cobra.Command{
		Use:   "monthly",
		Short: "Show a month's records per week bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.weekStart(start)
			if err != nil {
				return err
			}
			store, err := a.loadStore()
			if err != nil {
				return err
			}
			m, err := report.BuildMonthly(store.Collections(), year, time.Month(month), ws)
			if err != nil {
				return err
			}
			return a.emit(opts, report.RenderMonthlyMarkdown(m), m)
		},
	}
	cmd.Flags().IntVar(&year, "year", time.Now().Year(), "Year")
	cmd.Flags().IntVar(&month, "month", int(time.Now().Month()), "Month (1-12)")
	cmd.Flags().StringVar(&start, "start", "", "Week start: sunday or monday (default calendar.record_week_start)")
	opts.bind(cmd)
	return cmd
}

// weeklyPeriod resolves the report flags. Without year and week it locates today.
func (a *app) weeklyPeriod(year, month, week int) (report.Period, error) {
	if year == 0 && week == 0 {
		if month != 0 {
			return report.Period{}, fmt.Errorf("--month requires --year and --week")
		}
		start, err := a.cfg.RecordWeekStart()
		if err != nil {
			return report.Period{}, err
		}
		now := time.Now()
		pos := calendar.Locate(calendar.Date(now.Year(), now.Month(), now.Day()), start)
		return report.Period{Year: pos.Year, Month: pos.Month, Week: pos.Week}, nil
	}
	if year == 0 || week == 0 {
		return report.Period{}, fmt.Errorf("--year and --week must be given together")
	}
	if month < 0 || month > 12 {
		return report.Period{}, fmt.Errorf("--month must be between 0 and 12, got %d", month)
	}
	return report.Period{Year: year, Month: time.Month(month), Week: week}, nil
}

func (a *app) reportDir() (string, error) {
	dir, err := a.ws.ResolvePath(a.cfg.Report.OutputDir)
	if err != nil {
		return "", fmt.Errorf("resolve report.output_dir: %w", err)
	}
	if dir == "" {
		dir = a.ws.ReportsDir
	}
	return dir, nil
}

// emit writes markdown or the JSON form of v to the selected destination.
func (a *app) emit(opts outputOptions, markdown string, v any) error {
	format := opts.format
	if format == "" {
		format = a.cfg.Report.Format
	}

	var text string
	switch format {
	case "markdown":
		text = markdown
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		text = string(data) + "\n"
	default:
		return fmt.Errorf("unsupported format %q (expected markdown or json)", format)
	}

	if opts.copy {
		if err := clipboard.WriteAll(text); err != nil {
			zap.L().Warn("copy to clipboard failed", zap.Error(err))
			fmt.Fprintln(a.errOut, "Clipboard unavailable:", err)
		} else {
			fmt.Fprintln(a.errOut, "Copied report to clipboard")
		}
	}

	if opts.output != "" {
		path, err := a.ws.ResolvePath(opts.output)
		if err != nil {
			return fmt.Errorf("resolve --output: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("ensure output dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(a.errOut, "Wrote %s\n", a.ws.Rel(path))
		return nil
	}

	if opts.pretty && format == "markdown" {
		rendered, err := glamour.Render(text, "dark")
		if err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		text = rendered
	}
	_, err := fmt.Fprint(a.out, text)
	return err
}
