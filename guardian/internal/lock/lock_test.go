package lock

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deadlineshield/guardian/dbopen"
	"github.com/deadlineshield/guardian/guardian/internal/store"
)

func testSetup(t *testing.T) (*store.Store, string) {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := store.ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	st := store.NewStore(db)
	ctx := context.Background()
	if err := st.UpsertTenant(ctx, &store.Tenant{ID: "t1", Name: "ACME", Email: "ops@acme.test"}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	src := &store.Source{ID: "src_1", TenantID: "t1", URL: "https://example.com/a", Name: "A"}
	if err := st.InsertSource(ctx, src); err != nil {
		t.Fatalf("seed source: %v", err)
	}
	return st, src.ID
}

func TestAcquire_MutualExclusion(t *testing.T) {
	st, id := testSetup(t)
	m := NewManager(st)
	ctx := context.Background()

	tok1, ok, err := m.Acquire(ctx, id)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if tok1 == "" {
		t.Fatal("first acquire returned empty token")
	}

	tok2, ok, err := m.Acquire(ctx, id)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok || tok2 != "" {
		t.Fatalf("second acquire succeeded while lock held (token %q)", tok2)
	}
}

func TestRelease_AllowsReacquire(t *testing.T) {
	st, id := testSetup(t)
	m := NewManager(st)
	ctx := context.Background()

	tok, _, err := m.Acquire(ctx, id)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := m.Release(ctx, id, tok); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, err := m.Acquire(ctx, id); err != nil || !ok {
		t.Fatalf("reacquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRelease_WrongTokenIsNoOp(t *testing.T) {
	// WHY: a stale holder whose TTL expired must not free a newer claim.
	st, id := testSetup(t)
	m := NewManager(st)
	ctx := context.Background()

	if _, _, err := m.Acquire(ctx, id); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := m.Release(ctx, id, "stale-token"); err != nil {
		t.Fatalf("release with wrong token: %v", err)
	}
	if _, ok, _ := m.Acquire(ctx, id); ok {
		t.Fatal("lock was freed by a token that never held it")
	}
}

func TestAcquire_ExpiredClaimIsRetaken(t *testing.T) {
	st, id := testSetup(t)
	m := NewManager(st, WithTTL(time.Minute))
	ctx := context.Background()

	base := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	st.SetClock(func() time.Time { return base })
	if _, ok, err := m.Acquire(ctx, id); err != nil || !ok {
		t.Fatalf("acquire at base: ok=%v err=%v", ok, err)
	}

	st.SetClock(func() time.Time { return base.Add(2 * time.Minute) })
	if _, ok, err := m.Acquire(ctx, id); err != nil || !ok {
		t.Fatalf("acquire after expiry: ok=%v err=%v", ok, err)
	}
}
