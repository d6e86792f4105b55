// Package audit keeps an append-only trail of every manual or automated
// state-changing action on a source. Entries are write-only and never mutated.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deadlineshield/guardian/idgen"
)

// Action names follow a noun.verb convention.
const (
	ActionSourceAdd    = "source.add"
	ActionSourceDelete = "source.delete"
	ActionSourcePause  = "source.pause"
	ActionSourceResume = "source.resume"
	ActionSourceVerify = "source.verify"
	ActionChangeAck    = "change.acknowledge"
)

// Entry is one audit record.
type Entry struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Actor     string `json:"actor"` // user id or "system"
	Action    string `json:"action"`
	TargetID  string `json:"target_id"` // source or change id
	Detail    string `json:"detail,omitempty"` // JSON
	CreatedAt int64  `json:"created_at"` // unix milliseconds
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_trail (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	actor      TEXT NOT NULL,
	action     TEXT NOT NULL,
	target_id  TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_tenant ON audit_trail(tenant_id, created_at);
`

// Logger persists audit entries synchronously.
type Logger struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithIDGenerator sets a custom entry id generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *Logger) { l.newID = gen }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

func NewLogger(db *sql.DB, opts ...Option) *Logger {
	l := &Logger{
		db:    db,
		newID: idgen.Prefixed("aud_", idgen.Default),
		now:   time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Init creates the audit table if it does not exist.
func (l *Logger) Init() error {
	_, err := l.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// Record appends one entry. ID and CreatedAt are filled if zero.
func (l *Logger) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = l.now().UnixMilli()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_trail (id, tenant_id, actor, action, target_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.Actor, e.Action, e.TargetID, e.Detail, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// RecordAction is a convenience wrapper that marshals detail to JSON.
func (l *Logger) RecordAction(ctx context.Context, tenantID, actor, action, targetID string, detail any) error {
	e := &Entry{TenantID: tenantID, Actor: actor, Action: action, TargetID: targetID}
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
		e.Detail = string(b)
	}
	return l.Record(ctx, e)
}

// List returns a tenant's most recent entries, newest first.
func (l *Logger) List(ctx context.Context, tenantID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, tenant_id, actor, action, target_id, detail, created_at
		FROM audit_trail WHERE tenant_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Actor, &e.Action, &e.TargetID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
