package daemon

import (
	"crypto/sha256"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"kpiboard/internal/workspace"
)

// WorkspaceHash returns a stable 8 character hash of the workspace root.
func WorkspaceHash(wsRoot string) string {
	h := sha256.Sum256([]byte(wsRoot))
	return fmt.Sprintf("%x", h[:4])
}

// PlistLabel returns the LaunchAgent label for a workspace.
func PlistLabel(wsRoot string) string {
	return "dev.kpiboard." + WorkspaceHash(wsRoot)
}

// PlistPath returns the LaunchAgent plist location for a workspace.
func PlistPath(wsRoot string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(homeDir, "Library", "LaunchAgents", PlistLabel(wsRoot)+".plist"), nil
}

// LogPath returns the file the LaunchAgent redirects daemon output to.
func LogPath(ws *workspace.Workspace) string {
	if ws == nil {
		return ""
	}
	return filepath.Join(ws.LogDir, "daemon.log")
}

// GeneratePlist renders the LaunchAgent definition running `daemon run` for ws.
func GeneratePlist(ws *workspace.Workspace, binaryPath string) (string, error) {
	if ws == nil {
		return "", fmt.Errorf("workspace is nil")
	}
	absBinaryPath, err := filepath.Abs(binaryPath)
	if err != nil {
		return "", fmt.Errorf("resolve binary path: %w", err)
	}

	logPath := LogPath(ws)
	plist := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
		<string>%s</string>
		<string>daemon</string>
		<string>run</string>
		<string>--workspace</string>
		<string>%s</string>
	</array>
	<key>StandardOutPath</key>
	<string>%s</string>
	<key>StandardErrorPath</key>
	<string>%s</string>
	<key>KeepAlive</key>
	<true/>
	<key>RunAtLoad</key>
	<true/>
</dict>
</plist>
`, escape(PlistLabel(ws.Root)), escape(absBinaryPath), escape(ws.Root), escape(logPath), escape(logPath))

	return plist, nil
}

// Install writes the LaunchAgent plist for the workspace and returns its path.
func Install(ws *workspace.Workspace, binaryPath string) (string, error) {
	if ws == nil {
		return "", fmt.Errorf("workspace is nil")
	}
	if err := os.MkdirAll(ws.LogDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure log dir: %w", err)
	}

	content, err := GeneratePlist(ws, binaryPath)
	if err != nil {
		return "", fmt.Errorf("generate plist: %w", err)
	}
	plistPath, err := PlistPath(ws.Root)
	if err != nil {
		return "", fmt.Errorf("resolve plist path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(plistPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure LaunchAgents dir: %w", err)
	}
	if err := os.WriteFile(plistPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write plist: %w", err)
	}
	return plistPath, nil
}

// Uninstall removes the LaunchAgent plist for the workspace.
func Uninstall(ws *workspace.Workspace) error {
	if ws == nil {
		return fmt.Errorf("workspace is nil")
	}
	plistPath, err := PlistPath(ws.Root)
	if err != nil {
		return fmt.Errorf("resolve plist path: %w", err)
	}
	if _, err := os.Stat(plistPath); os.IsNotExist(err) {
		return fmt.Errorf("plist not found: %s", plistPath)
	}
	if err := os.Remove(plistPath); err != nil {
		return fmt.Errorf("remove plist: %w", err)
	}
	return nil
}

// Start loads the installed LaunchAgent.
func Start(ws *workspace.Workspace) error {
	if ws == nil {
		return fmt.Errorf("workspace is nil")
	}
	plistPath, err := PlistPath(ws.Root)
	if err != nil {
		return fmt.Errorf("resolve plist path: %w", err)
	}
	if _, err := os.Stat(plistPath); os.IsNotExist(err) {
		return fmt.Errorf("plist not found: %s (run 'kpiboard daemon install' first)", plistPath)
	}
	output, err := exec.Command("launchctl", "load", plistPath).CombinedOutput()
	if err != nil {
		return fmt.Errorf("launchctl load failed: %w\nOutput: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Stop unloads the LaunchAgent. An agent that is not loaded is not an error.
func Stop(ws *workspace.Workspace) error {
	if ws == nil {
		return fmt.Errorf("workspace is nil")
	}
	plistPath, err := PlistPath(ws.Root)
	if err != nil {
		return fmt.Errorf("resolve plist path: %w", err)
	}
	output, err := exec.Command("launchctl", "unload", plistPath).CombinedOutput()
	if err != nil {
		outputStr := strings.TrimSpace(string(output))
		if !strings.Contains(outputStr, "Could not find specified service") {
			return fmt.Errorf("launchctl unload failed: %w\nOutput: %s", err, outputStr)
		}
	}
	return nil
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
