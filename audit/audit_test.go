package audit

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deadlineshield/guardian/dbopen"
)

func testLogger(t *testing.T) *Logger {
	t.Helper()
	db := dbopen.OpenMemory(t)
	l := NewLogger(db)
	if err := l.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	return l
}

func TestRecordAndList(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()

	err := l.RecordAction(ctx, "t1", "user_7", ActionSourcePause, "src_1",
		map[string]string{"reason": "maintenance window"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.RecordAction(ctx, "t1", "system", ActionChangeAck, "chg_1", nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.RecordAction(ctx, "t2", "user_9", ActionSourceAdd, "src_9", nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := l.List(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries for t1, want 2", len(entries))
	}
	for _, e := range entries {
		if e.TenantID != "t1" {
			t.Errorf("entry %s leaked from tenant %s", e.ID, e.TenantID)
		}
		if e.ID == "" || e.CreatedAt == 0 {
			t.Errorf("entry missing generated fields: %+v", e)
		}
	}
}

func TestList_NewestFirst(t *testing.T) {
	base := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	current := base
	l := testLogger(t)
	// Replace clock after Init so each record gets a distinct timestamp.
	l.now = func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	ctx := context.Background()

	for _, action := range []string{ActionSourceAdd, ActionSourcePause, ActionSourceResume} {
		if err := l.RecordAction(ctx, "t1", "user_7", action, "src_1", nil); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	entries, err := l.List(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Action != ActionSourceResume {
		t.Errorf("first entry = %s, want the most recent action", entries[0].Action)
	}

	limited, err := l.List(ctx, "t1", 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit ignored, got %d entries", len(limited))
	}
}
