package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpenMemory_Pragmas(t *testing.T) {
	db := OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("pragma foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestOpen_WithSchema(t *testing.T) {
	db := OpenMemory(t, WithSchema(`CREATE TABLE widgets (id TEXT PRIMARY KEY)`))

	if _, err := db.Exec(`INSERT INTO widgets (id) VALUES ('w1')`); err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}
}

func TestOpen_MkdirAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "guardian.db")
	db, err := Open(path, WithMkdirAll())
	if err != nil {
		t.Fatalf("open with mkdir: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestRunTx_CommitAndRollback(t *testing.T) {
	db := OpenMemory(t, WithSchema(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`))
	ctx := context.Background()

	err := RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO kv (k, v) VALUES ('a', '1')`)
		return err
	})
	if err != nil {
		t.Fatalf("RunTx commit: %v", err)
	}

	boom := errors.New("boom")
	err = RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO kv (k, v) VALUES ('b', '2')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunTx: got %v, want boom", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1 (rollback should discard 'b')", count)
	}
}

func TestIsBusy(t *testing.T) {
	if IsBusy(nil) {
		t.Error("IsBusy(nil) = true")
	}
	if !IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Error("busy error not detected")
	}
	if IsBusy(errors.New("no such table: kv")) {
		t.Error("non-busy error detected as busy")
	}
}
