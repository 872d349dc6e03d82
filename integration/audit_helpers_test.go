package integration_test

import (
	"testing"

	"kpiboard/internal/audit"
)

func requireAuditEvents(t *testing.T, dbPath string, want []string) {
	t.Helper()
	events, err := audit.NewLogger(dbPath).ListEvents("", 0)
	if err != nil {
		t.Fatalf("list audit events in %s: %v", dbPath, err)
	}
	seen := make(map[string]int, len(events))
	for _, e := range events {
		seen[e.Type]++
	}
	for _, eventType := range want {
		if seen[eventType] == 0 {
			t.Fatalf("missing audit event %s in %s (have %v)", eventType, dbPath, seen)
		}
	}
}
