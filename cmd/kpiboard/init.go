package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kpiboard/internal/config"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a workspace with a config file and a sample KPI document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("cli", "workspace_init", map[string]any{"workspace": a.ws.Root}, func(finish map[string]any) error {
				if err := a.ws.EnsureDirs(); err != nil {
					return err
				}
				written := []string{}
				files := []struct {
					path     string
					contents string
				}{
					{a.ws.ConfigPath, config.Template},
					{filepath.Join(a.ws.KPIsDir, "safety.yml"), sampleSafetyDoc},
				}
				for _, f := range files {
					created, err := writeFileIfMissing(f.path, f.contents)
					if err != nil {
						return err
					}
					if created {
						written = append(written, f.path)
					}
				}
				finish["written"] = written

				fmt.Fprintf(a.out, "Initialized workspace: %s\n", a.ws.Root)
				fmt.Fprintln(a.out, "Next steps:")
				fmt.Fprintf(a.out, "  %s kpi validate --workspace %s\n", appName, a.ws.Root)
				fmt.Fprintf(a.out, "  %s report weekly --workspace %s --year 2026 --month 3 --week 1\n", appName, a.ws.Root)
				return nil
			})
		},
	}
}

func writeFileIfMissing(path string, contents string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("ensure dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

const sampleSafetyDoc = `category: safety
name: Safety
kpis:
  - kpi_id: safety-incidents
    title: Zero lost-time incidents
    target: 100
    current: 0
    unit: "%"
    activities:
      - activity_id: drainage
        name: Drainage program
        tasks:
          - task_id: inspect-drainage
            name: Inspect drainage
            start_date: 2026-03-01
            end_date: 2026-03-31
            records:
              - {year: 2026, month: 3, week: 1, status: completed}
              - {year: 2026, month: 3, week: 2, status: in-progress}
`
