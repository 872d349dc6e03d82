// Package notify posts desktop notifications about daemon results.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"kpiboard/internal/status"
)

// Notifier sends system notifications. The zero value is disabled.
type Notifier struct {
	Enabled bool

	// send delivers the notification; nil uses the platform default.
	send func(title, message string) error
}

// New returns a notifier using the platform notification mechanism.
func New(enabled bool) *Notifier {
	return &Notifier{Enabled: enabled}
}

// Send posts a notification. Only macOS is supported; elsewhere it is a no-op.
func (n *Notifier) Send(title, message string) error {
	if n == nil || !n.Enabled {
		return nil
	}
	if n.send != nil {
		return n.send(title, message)
	}
	if runtime.GOOS != "darwin" {
		return nil
	}
	return sendMacOSNotification(title, message)
}

func sendMacOSNotification(title, message string) error {
	title = strings.ReplaceAll(title, `"`, `\"`)
	message = strings.ReplaceAll(message, `"`, `\"`)

	script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
	if err := exec.Command("osascript", "-e", script).Run(); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// FormatWeeklyReport formats the notification for a freshly written weekly report.
func FormatWeeklyReport(periodLabel string, counts status.Counts) (title, message string) {
	title = "kpiboard weekly report"
	if counts.Total() == 0 {
		return title, fmt.Sprintf("%s: no tasks recorded", periodLabel)
	}
	message = fmt.Sprintf("%s: %d completed, %d in progress, %d not started",
		periodLabel, counts.Completed, counts.InProgress, counts.NotStarted)
	return title, message
}

// FormatJobFailed formats the notification for a failed daemon job.
func FormatJobFailed(jobType string, err error) (title, message string) {
	return "kpiboard job failed", fmt.Sprintf("%s: %v", jobType, err)
}
