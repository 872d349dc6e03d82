package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"kpiboard/internal/calendar"
)

// FileName is the workspace configuration file.
const FileName = "kpiboard.yml"

// EnvPrefix prefixes environment overrides, e.g. KPIBOARD_LOG_LEVEL.
const EnvPrefix = "KPIBOARD"

// Config represents the workspace configuration.
type Config struct {
	Calendar CalendarConfig `mapstructure:"calendar"`
	Report   ReportConfig   `mapstructure:"report"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Log      LogConfig      `mapstructure:"log"`
}

// CalendarConfig selects the week-start used when recording progress.
type CalendarConfig struct {
	RecordWeekStart string `mapstructure:"record_week_start"`
}

// ReportConfig controls report output.
type ReportConfig struct {
	Format    string `mapstructure:"format"`
	OutputDir string `mapstructure:"output_dir"`
}

// DaemonConfig controls the scheduling daemon.
type DaemonConfig struct {
	Timezone      string        `mapstructure:"timezone"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	ReportWeekday string        `mapstructure:"report_weekday"`
	ReportHour    int           `mapstructure:"report_hour"`
	NormalizeHour int           `mapstructure:"normalize_hour"`
	Notify        bool          `mapstructure:"notify"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("calendar.record_week_start", "sunday")
	v.SetDefault("report.format", "markdown")
	v.SetDefault("report.output_dir", "reports")
	v.SetDefault("daemon.timezone", "Local")
	v.SetDefault("daemon.poll_interval", "5s")
	v.SetDefault("daemon.report_weekday", "monday")
	v.SetDefault("daemon.report_hour", 9)
	v.SetDefault("daemon.normalize_hour", 2)
	v.SetDefault("daemon.notify", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Default returns the configuration used when a workspace has no config file.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Load reads <root>/kpiboard.yml, <root>/.env and KPIBOARD_* environment
// variables, in increasing order of precedence. A missing file is not an error.
func Load(root string) (*Config, error) {
	envPath := filepath.Join(root, ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := filepath.Join(root, FileName)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every value that is parsed later.
func (c Config) Validate() error {
	if _, err := c.RecordWeekStart(); err != nil {
		return fmt.Errorf("calendar.record_week_start: %w", err)
	}
	switch c.Report.Format {
	case "markdown", "json":
	default:
		return fmt.Errorf("report.format: unsupported format %q (expected markdown or json)", c.Report.Format)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("daemon.timezone: %w", err)
	}
	if _, err := c.ReportWeekday(); err != nil {
		return fmt.Errorf("daemon.report_weekday: %w", err)
	}
	if c.Daemon.ReportHour < 0 || c.Daemon.ReportHour > 23 {
		return fmt.Errorf("daemon.report_hour: must be between 0 and 23, got %d", c.Daemon.ReportHour)
	}
	if c.Daemon.NormalizeHour < 0 || c.Daemon.NormalizeHour > 23 {
		return fmt.Errorf("daemon.normalize_hour: must be between 0 and 23, got %d", c.Daemon.NormalizeHour)
	}
	if c.Daemon.PollInterval <= 0 {
		return fmt.Errorf("daemon.poll_interval: must be positive")
	}
	return nil
}

// RecordWeekStart is the week-start convention for recording progress.
func (c Config) RecordWeekStart() (calendar.WeekStart, error) {
	return calendar.ParseWeekStart(c.Calendar.RecordWeekStart)
}

// Location resolves daemon.timezone.
func (c Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Daemon.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// ReportWeekday resolves daemon.report_weekday.
func (c Config) ReportWeekday() (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(c.Daemon.ReportWeekday))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name || strings.ToLower(d.String()[:3]) == name {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", c.Daemon.ReportWeekday)
}

// Template is the kpiboard.yml written by `kpiboard init`.
const Template = `# kpiboard workspace configuration.
# Every key can be overridden with KPIBOARD_<SECTION>_<KEY>, e.g. KPIBOARD_LOG_LEVEL=debug.
calendar:
  # sunday or monday; reports always display Monday-anchored ranges.
  record_week_start: sunday
report:
  format: markdown
  output_dir: reports
daemon:
  timezone: Local
  poll_interval: 5s
  report_weekday: monday
  report_hour: 9
  normalize_hour: 2
  # desktop notification when a report is written or a job fails (macOS only)
  notify: false
log:
  level: info
  development: false
`
