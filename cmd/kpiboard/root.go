package main

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kpiboard/internal/audit"
	"kpiboard/internal/config"
	"kpiboard/internal/logging"
	"kpiboard/internal/workspace"
)

// app carries the state every subcommand shares once the root pre-run resolved it.
type app struct {
	out    io.Writer
	errOut io.Writer

	workspacePath string
	logLevel      string

	ws      *workspace.Workspace
	cfg     config.Config
	audit   *audit.Logger
	logger  *zap.Logger
	restore func()
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Facility, asset and lease KPI tracking with weekly reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Name() == "init")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.PersistentFlags().StringVarP(&a.workspacePath, "workspace", "w", ".", "Workspace root directory")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (overrides log.level)")

	root.AddCommand(
		newInitCmd(a),
		newKPICmd(a),
		newActivityCmd(a),
		newTaskCmd(a),
		newCalendarCmd(a),
		newReportCmd(a),
		newDaemonCmd(a),
		newAuditCmd(a),
	)
	return root
}

// setup opens the workspace, loads its configuration and installs the global
// logger. init creates a missing root; other commands use the nearest
// initialized workspace at or above --workspace.
func (a *app) setup(create bool) error {
	var ws *workspace.Workspace
	var err error
	if create {
		ws, err = workspace.Open(a.workspacePath, true)
	} else {
		ws, err = workspace.Find(a.workspacePath)
	}
	if err != nil {
		return err
	}
	cfg, err := config.Load(ws.Root)
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	logger, err := logging.New(level, cfg.Log.Development)
	if err != nil {
		return err
	}

	a.ws = ws
	a.cfg = *cfg
	a.audit = audit.NewLogger(ws.AuditDBPath)
	a.logger = logger
	a.restore = logging.Install(logger)
	logger.Debug("workspace resolved", zap.String("root", ws.Root), zap.String("kpis", ws.KPIsDir))
	return nil
}

func (a *app) teardown() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.restore != nil {
		a.restore()
		a.restore = nil
	}
}

// track records <event>_started and <event>_finished audit events around fn.
// fn may add fields to the finish payload.
func (a *app) track(actor, event string, payload map[string]any, fn func(finish map[string]any) error) error {
	if err := a.audit.LogEvent(actor, event+"_started", payload); err != nil {
		zap.L().Warn("audit log failed", zap.String("event", event), zap.Error(err))
	}
	finish := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		finish[k] = v
	}
	err := fn(finish)
	if err != nil {
		finish["error"] = err.Error()
	}
	_ = a.audit.LogEvent(actor, event+"_finished", finish)
	return err
}
