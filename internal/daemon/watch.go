package daemon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"kpiboard/internal/calendar"
)

const kpisWatchKey = "watch_kpis_dir"

// WatchState tracks the content hash of one watched file.
type WatchState struct {
	Path     string `json:"path"`
	ModTime  string `json:"mod_time"`
	Hash     string `json:"hash"`
	LastSeen string `json:"last_seen"`
}

// watchKPIs enqueues a report_weekly job for the current week whenever a KPI
// document changed since the previous check. It returns the changed paths.
func (d *Daemon) watchKPIs(now time.Time) ([]string, error) {
	changed, err := watchDirectory(d.Store, d.Env.Workspace.KPIsDir, kpisWatchKey, now)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return nil, nil
	}

	loc, err := d.Env.Config.Location()
	if err != nil {
		return nil, err
	}
	start, err := d.Env.Config.RecordWeekStart()
	if err != nil {
		return nil, err
	}
	local := now.In(loc)
	pos := calendar.Locate(calendar.Date(local.Year(), local.Month(), local.Day()), start)

	payload := map[string]any{
		"trigger": "kpis_changed",
		"files":   changed,
		"year":    pos.Year,
		"month":   int(pos.Month),
		"week":    pos.Week,
	}
	if _, _, err := d.Store.EnqueueUnique(JobReportWeekly, now, payload); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", JobReportWeekly, err)
	}
	return changed, nil
}

// watchDirectory reports files under dirPath that were added, modified or deleted
// since the previous call with the same key. The first call only records a baseline.
func watchDirectory(store *Store, dirPath, kvKeyPrefix string, now time.Time) ([]string, error) {
	currentFiles := make(map[string]WatchState)
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}

		hash, err := hashFile(path)
		if err != nil {
			return fmt.Errorf("hash file %s: %w", path, err)
		}
		currentFiles[path] = WatchState{
			Path:     path,
			ModTime:  info.ModTime().UTC().Format(time.RFC3339),
			Hash:     hash,
			LastSeen: now.UTC().Format(time.RFC3339),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	stateKey := kvKeyPrefix + "_state"
	stateJSON, err := store.GetKV(stateKey)
	if err != nil {
		return nil, fmt.Errorf("get watch state: %w", err)
	}
	baseline := stateJSON == ""

	prevFiles := make(map[string]WatchState)
	if !baseline {
		if err := json.Unmarshal([]byte(stateJSON), &prevFiles); err != nil {
			return nil, fmt.Errorf("parse watch state: %w", err)
		}
	}

	var changedFiles []string
	for path, currentState := range currentFiles {
		prevState, existed := prevFiles[path]
		if !existed || prevState.Hash != currentState.Hash {
			changedFiles = append(changedFiles, path)
		}
	}
	for path := range prevFiles {
		if _, exists := currentFiles[path]; !exists {
			changedFiles = append(changedFiles, path+" (deleted)")
		}
	}
	sort.Strings(changedFiles)

	newStateJSON, err := json.Marshal(currentFiles)
	if err != nil {
		return nil, fmt.Errorf("marshal watch state: %w", err)
	}
	if err := store.SetKV(stateKey, string(newStateJSON)); err != nil {
		return nil, fmt.Errorf("save watch state: %w", err)
	}

	if baseline {
		return nil, nil
	}
	return changedFiles, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
