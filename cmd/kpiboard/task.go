package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"kpiboard/internal/calendar"
	"kpiboard/internal/kpistore"
	"kpiboard/internal/status"
)

func newActivityCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Add or delete activities under a KPI",
	}

	var kpiID string
	var act kpistore.Activity
	add := &cobra.Command{
		Use:   "add",
		Short: "Add an activity to a KPI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("cli", "activity_add", map[string]any{"kpi_id": kpiID, "activity_id": act.ID}, func(finish map[string]any) error {
				store, err := a.loadStore()
				if err != nil {
					return err
				}
				if err := store.AddActivity(kpiID, act); err != nil {
					return err
				}
				return a.saveStore(store, finish)
			})
		},
	}
	add.Flags().StringVar(&kpiID, "kpi", "", "Owning KPI id")
	add.Flags().StringVar(&act.ID, "id", "", "Activity id")
	add.Flags().StringVar(&act.Name, "name", "", "Activity name")
	_ = add.MarkFlagRequired("kpi")
	_ = add.MarkFlagRequired("id")
	_ = add.MarkFlagRequired("name")

	var delKPI string
	del := &cobra.Command{
		Use:   "delete <activity-id>",
		Short: "Delete an activity with its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("cli", "activity_delete", map[string]any{"kpi_id": delKPI, "activity_id": args[0]}, func(finish map[string]any) error {
				store, err := a.loadStore()
				if err != nil {
					return err
				}
				if err := store.DeleteActivity(delKPI, args[0]); err != nil {
					return err
				}
				return a.saveStore(store, finish)
			})
		},
	}
	del.Flags().StringVar(&delKPI, "kpi", "", "Owning KPI id")
	_ = del.MarkFlagRequired("kpi")

	cmd.AddCommand(add, del)
	return cmd
}

func newTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Add, delete and record progress on tasks",
	}
	cmd.AddCommand(newTaskAddCmd(a), newTaskDeleteCmd(a), newTaskRecordCmd(a))
	return cmd
}

func newTaskAddCmd(a *app) *cobra.Command {
	var kpiID, activityID, id, name, start, end string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task to an activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			task := kpistore.Task{ID: id, Name: name}
			if task.ID == "" {
				task.ID = "t-" + uuid.NewString()[:8]
			}
			var err error
			if start != "" {
				if task.StartDate, err = calendar.ParseDate(start); err != nil {
					return fmt.Errorf("parse --start: %w", err)
				}
			}
			if end != "" {
				if task.EndDate, err = calendar.ParseDate(end); err != nil {
					return fmt.Errorf("parse --end: %w", err)
				}
			}
			payload := map[string]any{"kpi_id": kpiID, "activity_id": activityID, "task_id": task.ID}
			return a.track("cli", "task_add", payload, func(finish map[string]any) error {
				store, err := a.loadStore()
				if err != nil {
					return err
				}
				if err := store.AddTask(kpiID, activityID, task); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Added task %s\n", task.ID)
				return a.saveStore(store, finish)
			})
		},
	}
	cmd.Flags().StringVar(&kpiID, "kpi", "", "Owning KPI id")
	cmd.Flags().StringVar(&activityID, "activity", "", "Owning activity id")
	cmd.Flags().StringVar(&id, "id", "", "Task id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "Task name")
	cmd.Flags().StringVar(&start, "start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "End date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("kpi")
	_ = cmd.MarkFlagRequired("activity")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newTaskDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task with its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("cli", "task_delete", map[string]any{"task_id": args[0]}, func(finish map[string]any) error {
				store, err := a.loadStore()
				if err != nil {
					return err
				}
				if err := store.DeleteTask(args[0]); err != nil {
					return err
				}
				return a.saveStore(store, finish)
			})
		},
	}
}

func newTaskRecordCmd(a *app) *cobra.Command {
	var year, month, week int
	var date, token string
	var remove bool
	cmd := &cobra.Command{
		Use:   "record <task-id>",
		Short: "Set or delete the weekly status record of a task",
		Long: `Set or delete the weekly status record of a task.

The week is given either as --year/--month/--week or as --date, which is located
with calendar.record_week_start.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := a.recordPosition(date, year, month, week)
			if err != nil {
				return err
			}
			var value status.Value
			if !remove {
				v, ok := status.Parse(token)
				if !ok {
					return fmt.Errorf("unknown status %q (accepted: %s)", token, strings.Join(statusTokens(), ", "))
				}
				value = v
			}

			payload := map[string]any{"task_id": args[0], "position": pos.String(), "status": string(value), "delete": remove}
			return a.track("cli", "task_record", payload, func(finish map[string]any) error {
				store, err := a.loadStore()
				if err != nil {
					return err
				}
				if remove {
					if err := store.DeleteRecord(args[0], pos); err != nil {
						return err
					}
					fmt.Fprintf(a.out, "Deleted %s record %s\n", args[0], pos)
				} else {
					created, err := store.UpsertRecord(args[0], pos, value)
					if err != nil {
						return err
					}
					verb := "Updated"
					if created {
						verb = "Recorded"
					}
					rec, _ := store.TaskLookup(args[0])
					fmt.Fprintf(a.out, "%s %s %s: %s (task is %s)\n", verb, args[0], pos, value, rec.Task.Status)
				}
				return a.saveStore(store, finish)
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Record year")
	cmd.Flags().IntVar(&month, "month", 0, "Record month (1-12)")
	cmd.Flags().IntVar(&week, "week", 0, "Week of month")
	cmd.Flags().StringVar(&date, "date", "", "Any date inside the week (YYYY-MM-DD)")
	cmd.Flags().StringVar(&token, "status", "", "Status token")
	cmd.Flags().BoolVar(&remove, "delete", false, "Delete the record instead of setting it")
	cmd.MarkFlagsMutuallyExclusive("date", "year")
	cmd.MarkFlagsMutuallyExclusive("delete", "status")
	return cmd
}

// recordPosition resolves the record week from --date or --year/--month/--week.
func (a *app) recordPosition(date string, year, month, week int) (calendar.Position, error) {
	if date != "" {
		d, err := calendar.ParseDate(date)
		if err != nil {
			return calendar.Position{}, fmt.Errorf("parse --date: %w", err)
		}
		start, err := a.cfg.RecordWeekStart()
		if err != nil {
			return calendar.Position{}, err
		}
		return calendar.Locate(d, start), nil
	}
	if year == 0 || month == 0 || week == 0 {
		return calendar.Position{}, fmt.Errorf("either --date or --year, --month and --week are required")
	}
	return calendar.Position{Year: year, Month: time.Month(month), Week: week}, nil
}

func statusTokens() []string {
	tokens := make([]string, 0)
	for token := range status.Aliases() {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}
