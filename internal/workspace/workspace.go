// Package workspace describes the on-disk layout of a kpiboard workspace.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigFile marks the root of a workspace.
const ConfigFile = "kpiboard.yml"

// Workspace holds the absolute paths of a workspace.
type Workspace struct {
	Root         string
	KPIsDir      string
	ReportsDir   string
	ArtifactsDir string
	ProposalsDir string
	AuditDir     string
	LogDir       string
	AuditDBPath  string
	StateDBPath  string
	ConfigPath   string
	EnvPath      string
}

// New returns the layout for an already resolved absolute root.
func New(root string) *Workspace {
	audit := filepath.Join(root, "audit")
	artifacts := filepath.Join(root, "artifacts")
	return &Workspace{
		Root:         root,
		KPIsDir:      filepath.Join(root, "kpis"),
		ReportsDir:   filepath.Join(root, "reports"),
		ArtifactsDir: artifacts,
		ProposalsDir: filepath.Join(artifacts, "proposals"),
		AuditDir:     audit,
		LogDir:       filepath.Join(root, "logs"),
		AuditDBPath:  filepath.Join(audit, "audit.sqlite"),
		StateDBPath:  filepath.Join(audit, "daemon.sqlite"),
		ConfigPath:   filepath.Join(root, ConfigFile),
		EnvPath:      filepath.Join(root, ".env"),
	}
}

// Open resolves root to an existing directory. With create set a missing root
// is created first.
func Open(root string, create bool) (*Workspace, error) {
	abs, err := absRoot(root)
	if err != nil {
		return nil, err
	}
	if create {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace root: %w", err)
		}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root is not a directory: %s", abs)
	}
	return New(abs), nil
}

// Find opens the nearest directory at or above start that holds ConfigFile.
// When none does, start itself is opened.
func Find(start string) (*Workspace, error) {
	abs, err := absRoot(start)
	if err != nil {
		return nil, err
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		_, err := os.Stat(filepath.Join(dir, ConfigFile))
		if err == nil {
			return Open(dir, false)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("look for %s: %w", ConfigFile, err)
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}
	return Open(abs, false)
}

// Initialized reports whether the workspace has a config file.
func (w *Workspace) Initialized() bool {
	_, err := os.Stat(w.ConfigPath)
	return err == nil
}

// EnsureDirs creates the workspace directories.
func (w *Workspace) EnsureDirs() error {
	if w == nil {
		return fmt.Errorf("workspace is nil")
	}
	for _, dir := range []string{w.KPIsDir, w.ReportsDir, w.ProposalsDir, w.AuditDir, w.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure %s: %w", dir, err)
		}
	}
	return nil
}

// ResolvePath makes path absolute, relative paths being taken from the root.
// An empty path stays empty.
func (w *Workspace) ResolvePath(path string) (string, error) {
	if w == nil {
		return "", fmt.Errorf("workspace is nil")
	}
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(expanded) {
		return filepath.Clean(expanded), nil
	}
	return filepath.Join(w.Root, expanded), nil
}

// Rel shortens path for display: paths inside the workspace are returned
// relative to the root, others unchanged.
func (w *Workspace) Rel(path string) string {
	rel, err := filepath.Rel(w.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

func absRoot(root string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", fmt.Errorf("workspace root is required")
	}
	expanded, err := expandHome(root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	return abs, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
}
