package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kpiboard/internal/daemon"
)

func newDaemonCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and inspect the report scheduler",
	}
	cmd.AddCommand(
		newDaemonRunCmd(a),
		newDaemonStatusCmd(a),
		newDaemonEnqueueCmd(a),
		newDaemonInstallCmd(a),
		newDaemonUninstallCmd(a),
		newDaemonStartCmd(a),
		newDaemonStopCmd(a),
	)
	return cmd
}

func newDaemonRunCmd(a *app) *cobra.Command {
	var once bool
	var lease time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler loop until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ws.EnsureDirs(); err != nil {
				return err
			}
			d, err := daemon.New(daemon.Options{
				Workspace: a.ws,
				Config:    a.cfg,
				LeaseFor:  lease,
			})
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if once {
				ok, failed := d.RunOnce(ctx, time.Now())
				fmt.Fprintf(a.out, "Executed %d job(s), %d failed\n", ok+failed, failed)
				if failed > 0 {
					return fmt.Errorf("%d job(s) failed", failed)
				}
				return nil
			}

			fmt.Fprintf(a.out, "Starting daemon for workspace: %s\n", a.ws.Root)
			fmt.Fprintf(a.out, "Poll interval: %s, Lease: %s\n", d.PollInterval, d.LeaseFor)
			return d.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single tick and exit")
	cmd.Flags().DurationVar(&lease, "lease", 0, "Lease duration for claimed jobs (default 5m)")
	return cmd
}

func newDaemonStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last daemon run and its jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := daemon.Open(a.ws.StateDBPath)
			if err != nil {
				return fmt.Errorf("open daemon store: %w", err)
			}
			defer store.Close()

			run, err := store.LastRun()
			if err != nil {
				return err
			}
			if run == nil {
				fmt.Fprintln(a.out, "Last run: never")
			} else {
				finished := "running"
				if run.FinishedAt != nil {
					finished = run.FinishedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(a.out, "Last run: %s started=%s finished=%s status=%s\n",
					run.ID, run.StartedAt.Format(time.RFC3339), finished, run.Status)
			}
			fmt.Fprintln(a.out)

			running, err := store.ListRunning()
			if err != nil {
				return fmt.Errorf("list running jobs: %w", err)
			}
			fmt.Fprintf(a.out, "Running jobs: %d\n", len(running))
			for _, job := range running {
				var started, expires string
				if job.StartedAt != nil {
					started = job.StartedAt.Format(time.RFC3339)
				}
				if job.LeaseExpiresAt != nil {
					expires = job.LeaseExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(a.out, "  %s [%s] started=%s lease_expires=%s\n", job.ID, job.Type, started, expires)
			}
			fmt.Fprintln(a.out)

			queued, err := store.ListQueued(10)
			if err != nil {
				return fmt.Errorf("list queued jobs: %w", err)
			}
			fmt.Fprintf(a.out, "Queued jobs (next %d):\n", len(queued))
			for _, job := range queued {
				fmt.Fprintf(a.out, "  %s [%s] scheduled=%s\n", job.ID, job.Type, job.ScheduledAt.Format(time.RFC3339))
			}
			fmt.Fprintln(a.out)

			completed, err := store.ListRecentCompleted(5)
			if err != nil {
				return fmt.Errorf("list completed jobs: %w", err)
			}
			fmt.Fprintf(a.out, "Recent completed jobs (last %d):\n", len(completed))
			for _, job := range completed {
				var finished string
				if job.FinishedAt != nil {
					finished = job.FinishedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(a.out, "  %s [%s] status=%s finished=%s\n", job.ID, job.Type, job.Status, finished)
				if job.ResultJSON != "" {
					fmt.Fprintf(a.out, "    result: %s\n", job.ResultJSON)
				}
			}
			return nil
		},
	}
}

func newDaemonEnqueueCmd(a *app) *cobra.Command {
	var at, payloadJSON string
	cmd := &cobra.Command{
		Use:   "enqueue <job-type>",
		Short: "Queue a job (report_weekly or normalize)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobType := args[0]
			if _, ok := daemon.DefaultHandlers()[jobType]; !ok {
				return fmt.Errorf("unknown job type %q", jobType)
			}

			scheduledAt := time.Now().Truncate(time.Second)
			if at != "" {
				loc, err := a.cfg.Location()
				if err != nil {
					return err
				}
				parsed, err := time.ParseInLocation("2006-01-02T15:04", at, loc)
				if err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
				scheduledAt = parsed
			}

			var payload map[string]any
			if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
				return fmt.Errorf("parse --payload-json: %w", err)
			}

			store, err := daemon.Open(a.ws.StateDBPath)
			if err != nil {
				return fmt.Errorf("open daemon store: %w", err)
			}
			defer store.Close()

			jobID, created, err := store.EnqueueUnique(jobType, scheduledAt, payload)
			if err != nil {
				return fmt.Errorf("enqueue job: %w", err)
			}
			if created {
				fmt.Fprintf(a.out, "Enqueued job: %s\n", jobID)
			} else {
				fmt.Fprintf(a.out, "Job already exists: %s\n", jobID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Scheduled time in daemon.timezone (YYYY-MM-DDTHH:MM, default now)")
	cmd.Flags().StringVar(&payloadJSON, "payload-json", "{}", "Job payload as JSON")
	return cmd
}

func newDaemonInstallCmd(a *app) *cobra.Command {
	var binary string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a macOS LaunchAgent running the daemon for this workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if binary == "" {
				exe, err := os.Executable()
				if err != nil {
					return fmt.Errorf("resolve executable: %w", err)
				}
				binary = exe
			}
			path, err := daemon.Install(a.ws, binary)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Installed %s\n", path)
			fmt.Fprintf(a.out, "Logs: %s\n", a.ws.Rel(daemon.LogPath(a.ws)))
			fmt.Fprintf(a.out, "Start it with: %s daemon start --workspace %s\n", appName, a.ws.Root)
			return nil
		},
	}
	cmd.Flags().StringVar(&binary, "binary", "", "Path to the kpiboard binary (default: this executable)")
	return cmd
}

func newDaemonUninstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the LaunchAgent for this workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemon.Stop(a.ws); err != nil {
				fmt.Fprintln(a.errOut, "stop:", err)
			}
			if err := daemon.Uninstall(a.ws); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Uninstalled LaunchAgent", daemon.PlistLabel(a.ws.Root))
			return nil
		},
	}
}

func newDaemonStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Load the installed LaunchAgent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemon.Start(a.ws); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Started", daemon.PlistLabel(a.ws.Root))
			return nil
		},
	}
}

func newDaemonStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Unload the LaunchAgent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemon.Stop(a.ws); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Stopped", daemon.PlistLabel(a.ws.Root))
			return nil
		},
	}
}
