package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA foreign_keys=ON")
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(openTestDB(t))
	seedTenant(t, s, "ten-1")
	return s
}

func seedTenant(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.UpsertTenant(context.Background(), &Tenant{
		ID: id, Email: id + "@example.com", Plan: PlanPro,
		AlertThreshold: SeverityMedium, GuidanceEnabled: true,
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
}

func seedSource(t *testing.T, s *Store, id string) *Source {
	t.Helper()
	src := &Source{ID: id, TenantID: "ten-1", Name: "Example", URL: "https://example.com/" + id}
	if err := s.InsertSource(context.Background(), src); err != nil {
		t.Fatalf("insert source: %v", err)
	}
	return src
}

func TestApplySchema(t *testing.T) {
	// WHAT: Verify schema creates all tables without error.
	db := openTestDB(t)
	for _, table := range []string{"tenants", "sources", "changes", "fetch_log"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestInsertAndGetSource(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	src := seedSource(t, s, "src-1")
	got, err := s.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if got == nil || got.URL != src.URL {
		t.Fatalf("got %+v", got)
	}
	if got.Status != StatusOK {
		t.Errorf("default status = %s, want OK", got.Status)
	}
	if got.ConfidenceScore != 50 || got.ConfidenceLevel != ConfidenceMedium {
		t.Errorf("default confidence = %d/%s", got.ConfidenceScore, got.ConfidenceLevel)
	}

	missing, err := s.GetSource(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing source: got %+v, %v", missing, err)
	}
}

func TestDueSources(t *testing.T) {
	// WHAT: Only unpaused sources whose next_check_at has passed are due.
	s := testStore(t)
	ctx := context.Background()

	due := seedSource(t, s, "due")       // next_check_at NULL → always due
	seedSource(t, s, "future")
	seedSource(t, s, "paused")

	future := time.Now().Add(time.Hour).UnixMilli()
	if _, err := s.DB.Exec(`UPDATE sources SET next_check_at=? WHERE id='future'`, future); err != nil {
		t.Fatal(err)
	}
	if err := s.PauseSource(ctx, "paused", "user-1", "TOO_NOISY"); err != nil {
		t.Fatal(err)
	}

	got, err := s.DueSources(ctx, 100)
	if err != nil {
		t.Fatalf("due sources: %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Fatalf("due = %d sources, want just %q", len(got), due.ID)
	}
}

func TestDueSources_SkipsLocked(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedSource(t, s, "locked")

	ok, err := s.TryAcquireLock(ctx, "locked", "tok-1", 5*time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire: %v %v", ok, err)
	}

	got, err := s.DueSources(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("locked source returned as due")
	}
}

func TestTryAcquireLock_MutualExclusion(t *testing.T) {
	// WHAT: Two acquire attempts on the same source never both succeed
	// before the first lock's TTL expires.
	s := testStore(t)
	ctx := context.Background()
	seedSource(t, s, "src-1")

	first, err := s.TryAcquireLock(ctx, "src-1", "tok-a", 5*time.Minute)
	if err != nil || !first {
		t.Fatalf("first acquire: %v %v", first, err)
	}
	second, err := s.TryAcquireLock(ctx, "src-1", "tok-b", 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if second {
		t.Fatal("second acquire succeeded while lock held")
	}
}

func TestTryAcquireLock_ExpiredLockIsRetaken(t *testing.T) {
	// WHY: A crashed execution must self-heal once the TTL lapses.
	s := testStore(t)
	ctx := context.Background()
	seedSource(t, s, "src-1")

	base := time.Now()
	s.SetClock(func() time.Time { return base })
	if ok, _ := s.TryAcquireLock(ctx, "src-1", "tok-a", 5*time.Minute); !ok {
		t.Fatal("first acquire failed")
	}

	s.SetClock(func() time.Time { return base.Add(6 * time.Minute) })
	ok, err := s.TryAcquireLock(ctx, "src-1", "tok-b", 5*time.Minute)
	if err != nil || !ok {
		t.Fatalf("expired lock not retaken: %v %v", ok, err)
	}
}

func TestRecordCheckOK_ResetsCountersAndReleasesLock(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedSource(t, s, "src-1")

	if _, err := s.DB.Exec(`UPDATE sources SET consecutive_failures=3, backoff_level=3, status='ERROR' WHERE id='src-1'`); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.TryAcquireLock(ctx, "src-1", "tok", 5*time.Minute); !ok {
		t.Fatal("acquire failed")
	}

	next := time.Now().Add(24 * time.Hour).UnixMilli()
	err := s.RecordCheckOK(ctx, CheckResult{
		SourceID: "src-1", LockToken: "tok",
		Hash: "abc", Title: "Example", NextCheckAt: next,
	})
	if err != nil {
		t.Fatalf("record ok: %v", err)
	}

	src, _ := s.GetSource(ctx, "src-1")
	if src.Status != StatusOK {
		t.Errorf("status = %s", src.Status)
	}
	if src.ConsecutiveFailures != 0 || src.BackoffLevel != 0 {
		t.Errorf("counters not reset: %d/%d", src.ConsecutiveFailures, src.BackoffLevel)
	}
	if src.LastHash != "abc" || src.LastTitle != "Example" {
		t.Errorf("snapshot not written: %q %q", src.LastHash, src.LastTitle)
	}
	if src.NextCheckAt == nil || *src.NextCheckAt != next {
		t.Error("next_check_at not advanced")
	}
	if src.LockToken != "" || src.LockExpiresAt != nil {
		t.Error("lock not released")
	}
	if src.CheckCount != 1 {
		t.Errorf("check_count = %d", src.CheckCount)
	}
}

func TestRecordCheckChanged_InsertsEventAndTracksVolatility(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedSource(t, s, "src-1")
	if ok, _ := s.TryAcquireLock(ctx, "src-1", "tok", time.Minute); !ok {
		t.Fatal("acquire failed")
	}

	deadline := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	ch := &Change{
		ID: "chg-1", SourceID: "src-1", TenantID: "ten-1",
		DetectedAt:      time.Now().UnixMilli(),
		DiffSummary:     "content changed",
		SeverityScore:   62,
		SeverityLevel:   SeverityHigh,
		SeverityReasons: []string{"deadline or date expression modified"},
		Deadlines:       []Deadline{{Date: deadline, Label: "Deadline", SourceText: "Deadline: October 1, 2026"}},
		DeadlineImpact:  ImpactNewDeadline,
		ActionCategory:  ActionUpdate,
	}
	err := s.RecordCheckChanged(ctx, CheckResult{
		SourceID: "src-1", LockToken: "tok", Hash: "h2",
		NextCheckAt: time.Now().Add(24 * time.Hour).UnixMilli(),
		NextDeadline: &deadline,
	}, ch)
	if err != nil {
		t.Fatalf("record changed: %v", err)
	}

	src, _ := s.GetSource(ctx, "src-1")
	if src.Status != StatusChanged {
		t.Errorf("status = %s", src.Status)
	}
	if src.ChangeCount != 1 || src.CheckCount != 1 {
		t.Errorf("counters: %d changes / %d checks", src.ChangeCount, src.CheckCount)
	}
	if src.VolatilityScore != 1.0 {
		t.Errorf("volatility = %f", src.VolatilityScore)
	}
	if src.NextDeadline == nil || *src.NextDeadline != deadline {
		t.Error("next_deadline not recorded")
	}

	got, err := s.GetChange(ctx, "chg-1")
	if err != nil || got == nil {
		t.Fatalf("get change: %+v %v", got, err)
	}
	if got.SeverityLevel != SeverityHigh || len(got.Deadlines) != 1 {
		t.Errorf("change round-trip: %+v", got)
	}
	if got.AckStatus != "" {
		t.Errorf("new change already acknowledged: %s", got.AckStatus)
	}
}

func TestRecordCheckFailure(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedSource(t, s, "src-1")
	if ok, _ := s.TryAcquireLock(ctx, "src-1", "tok", time.Minute); !ok {
		t.Fatal("acquire failed")
	}

	next := time.Now().Add(30 * time.Minute).UnixMilli()
	err := s.RecordCheckFailure(ctx, CheckFailure{
		SourceID: "src-1", LockToken: "tok",
		Status: StatusError, ErrorMessage: "http 500",
		Failures: 2, BackoffLevel: 2, NextCheckAt: next,
	})
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}

	src, _ := s.GetSource(ctx, "src-1")
	if src.Status != StatusError || src.ConsecutiveFailures != 2 || src.BackoffLevel != 2 {
		t.Errorf("failure state: %s %d/%d", src.Status, src.ConsecutiveFailures, src.BackoffLevel)
	}
	if src.LastError != "http 500" {
		t.Errorf("last_error = %q", src.LastError)
	}
	if src.LockToken != "" {
		t.Error("lock not released on failure path")
	}
}

func TestApplyAck_IdempotentAndTransactional(t *testing.T) {
	// WHAT: First ack updates stats; second ack on the same event is a no-op.
	s := testStore(t)
	ctx := context.Background()
	seedSource(t, s, "src-1")
	ch := &Change{
		ID: "chg-1", SourceID: "src-1", TenantID: "ten-1",
		DetectedAt: time.Now().UnixMilli(), SeverityLevel: SeverityCritical,
	}
	if err := s.InsertChange(ctx, ch); err != nil {
		t.Fatal(err)
	}

	update := func(stats ConfidenceStats, severity SeverityLevel) (ConfidenceStats, int, ActionConfidence) {
		stats.TotalActions++
		stats.NoActionCount++
		if severity == SeverityCritical {
			stats.FalseAlarmCount++
		}
		return stats, 20, ConfidenceLow
	}

	applied, err := s.ApplyAck(ctx, "chg-1", AckNoAction, "user-1", update)
	if err != nil || !applied {
		t.Fatalf("first ack: applied=%v err=%v", applied, err)
	}

	src, _ := s.GetSource(ctx, "src-1")
	if src.Confidence.TotalActions != 1 || src.Confidence.FalseAlarmCount != 1 {
		t.Errorf("stats = %+v", src.Confidence)
	}
	if src.ConfidenceScore != 20 || src.ConfidenceLevel != ConfidenceLow {
		t.Errorf("score = %d/%s", src.ConfidenceScore, src.ConfidenceLevel)
	}

	applied, err = s.ApplyAck(ctx, "chg-1", AckReviewed, "user-2", update)
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Fatal("second ack applied, want idempotent no-op")
	}
	src, _ = s.GetSource(ctx, "src-1")
	if src.Confidence.TotalActions != 1 {
		t.Errorf("stats double-counted: %+v", src.Confidence)
	}
	got, _ := s.GetChange(ctx, "chg-1")
	if got.AckStatus != AckNoAction || got.AckBy != "user-1" {
		t.Errorf("ack overwritten: %s by %s", got.AckStatus, got.AckBy)
	}
}

func TestPauseResumeVerify(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedSource(t, s, "src-1")

	if err := s.PauseSource(ctx, "src-1", "user-1", "TEMPORARY"); err != nil {
		t.Fatal(err)
	}
	src, _ := s.GetSource(ctx, "src-1")
	if src.Status != StatusPaused || src.PausedAt == nil || src.PausedBy != "user-1" {
		t.Fatalf("pause state: %+v", src)
	}

	if err := s.ResumeSource(ctx, "src-1"); err != nil {
		t.Fatal(err)
	}
	src, _ = s.GetSource(ctx, "src-1")
	if src.Status != StatusOK || src.PausedAt != nil {
		t.Fatalf("resume state: %+v", src)
	}
	if src.NextCheckAt == nil {
		t.Error("resume should schedule an immediate check")
	}

	if _, err := s.DB.Exec(`UPDATE sources SET status='NEEDS_MANUAL_VERIFICATION', consecutive_failures=10 WHERE id='src-1'`); err != nil {
		t.Fatal(err)
	}
	if err := s.VerifySource(ctx, "src-1", "user-2", "FALSE_POSITIVE", "verified-hash"); err != nil {
		t.Fatal(err)
	}
	src, _ = s.GetSource(ctx, "src-1")
	if src.Status != StatusOK || src.ConsecutiveFailures != 0 {
		t.Fatalf("verify state: %+v", src)
	}
	if src.VerifiedHash != "verified-hash" || src.VerifiedBy != "user-2" {
		t.Errorf("verify metadata: %q by %q", src.VerifiedHash, src.VerifiedBy)
	}
}

func TestStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedSource(t, s, "src-1")
	s.InsertChange(ctx, &Change{ID: "chg-1", SourceID: "src-1", TenantID: "ten-1", DetectedAt: 1})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Tenants != 1 || st.Sources != 1 || st.Changes != 1 || st.Unacknowledged != 1 {
		t.Errorf("stats = %+v", st)
	}
}
