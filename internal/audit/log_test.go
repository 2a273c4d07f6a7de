package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"ezduka.app/internal/obs"
	"ezduka.app/internal/session"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = session.ContextWith(ctx, session.Session{
		UserID:       "user-42",
		TenantID:     "tenant-7",
		Role:         session.RoleOwner,
		TenantStatus: session.StatusActive,
	})

	if err := LogEvent(ctx, "po.mark_paid", map[string]any{"po_id": "po-1"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "po.mark_paid" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", entry["user_id"])
	}
	if entry["tenant_id"] != "tenant-7" {
		t.Fatalf("unexpected tenant id: %v", entry["tenant_id"])
	}
	if entry["role"] != "OWNER" {
		t.Fatalf("unexpected role: %v", entry["role"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok {
		t.Fatalf("fields not a map: %v", entry["fields"])
	}
	if fields["po_id"] != "po-1" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}
