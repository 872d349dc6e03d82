package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"kpiboard/internal/calendar"
)

// Loading must not leave config watchers running.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Report.Format != "markdown" || cfg.Report.OutputDir != "reports" {
		t.Fatalf("unexpected report defaults %+v", cfg.Report)
	}
	if cfg.Daemon.PollInterval != 5*time.Second || cfg.Daemon.ReportHour != 9 {
		t.Fatalf("unexpected daemon defaults %+v", cfg.Daemon)
	}
	start, err := cfg.RecordWeekStart()
	if err != nil || start != calendar.Sunday {
		t.Fatalf("expected sunday record week start, got %v %v", start, err)
	}
	if day, _ := cfg.ReportWeekday(); day != time.Monday {
		t.Fatalf("expected monday report weekday, got %v", day)
	}
}

func TestDefaultMatchesTemplate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), Template)

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *cfg != Default() {
		t.Fatalf("template and defaults diverge:\n%+v\n%+v", *cfg, Default())
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), `
calendar:
  record_week_start: monday
daemon:
  timezone: UTC
  poll_interval: 250ms
log:
  level: warn
`)
	t.Setenv("KPIBOARD_LOG_LEVEL", "debug")
	t.Setenv("KPIBOARD_DAEMON_REPORT_HOUR", "7")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if start, _ := cfg.RecordWeekStart(); start != calendar.Monday {
		t.Fatalf("expected monday from file, got %v", start)
	}
	if cfg.Daemon.PollInterval != 250*time.Millisecond {
		t.Fatalf("expected 250ms poll interval, got %v", cfg.Daemon.PollInterval)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected env to override file, got %q", cfg.Log.Level)
	}
	if cfg.Daemon.ReportHour != 7 {
		t.Fatalf("expected report hour 7 from env, got %d", cfg.Daemon.ReportHour)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC location, got %v %v", loc, err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".env"), "KPIBOARD_REPORT_FORMAT=json\n")
	t.Cleanup(func() { _ = os.Unsetenv("KPIBOARD_REPORT_FORMAT") })

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Report.Format != "json" {
		t.Fatalf("expected format from .env, got %q", cfg.Report.Format)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"week start": "calendar:\n  record_week_start: friday\n",
		"format":     "report:\n  format: pdf\n",
		"hour":       "daemon:\n  report_hour: 24\n",
		"weekday":    "daemon:\n  report_weekday: someday\n",
		"timezone":   "daemon:\n  timezone: Mars/Olympus\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, FileName), body)
			if _, err := Load(root); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func writeFile(t *testing.T, path string, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}
