package audit

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestLogAndListEvents(t *testing.T) {
	logger := NewLogger(filepath.Join(t.TempDir(), "audit", "audit.sqlite"))

	if err := logger.LogEvent("cli", "command_started", map[string]any{"command": "report weekly"}); err != nil {
		t.Fatalf("log started: %v", err)
	}
	if err := logger.LogEvent("cli", "command_finished", map[string]any{"command": "report weekly", "ok": true}); err != nil {
		t.Fatalf("log finished: %v", err)
	}
	if err := logger.LogEvent("daemon", "job_succeeded", map[string]any{"job": "report_weekly"}); err != nil {
		t.Fatalf("log job: %v", err)
	}

	all, err := logger.ListEvents("", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].Type != "job_succeeded" || all[0].Actor != "daemon" {
		t.Fatalf("expected newest first, got %+v", all[0])
	}
	if all[0].TS.IsZero() {
		t.Fatalf("expected timestamp")
	}

	finished, err := logger.ListEvents("command_finished", 0)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(finished) != 1 {
		t.Fatalf("expected 1 finished event, got %d", len(finished))
	}
	var payload map[string]any
	if err := json.Unmarshal(finished[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["ok"] != true {
		t.Fatalf("unexpected payload %v", payload)
	}

	limited, err := logger.ListEvents("", 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 events, got %d", len(limited))
	}
}

func TestLogEventUsesEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.sqlite")
	t.Setenv(EnvDBPath, path)

	if err := LogEvent("cli", "init", map[string]string{"root": "x"}); err != nil {
		t.Fatalf("log: %v", err)
	}
	events, err := NewLogger(path).ListEvents("init", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected event in env db, got %d", len(events))
	}
}
