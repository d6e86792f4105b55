package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/deadlineshield/guardian/dbopen"
)

const changeColumns = `id, source_id, tenant_id, detected_at,
	diff_summary, severity_score, severity_level, severity_reasons, explanation,
	deadlines, deadline_impact,
	action_category, action_guidance, action_confidence, confidence_notes,
	ack_status, ack_at, ack_by`

// InsertChange records a new change event.
func (s *Store) InsertChange(ctx context.Context, ch *Change) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertChangeTx(ctx, tx, ch); err != nil {
		return err
	}
	return tx.Commit()
}

func insertChangeTx(ctx context.Context, tx *sql.Tx, ch *Change) error {
	reasons, err := marshalJSON(ch.SeverityReasons)
	if err != nil {
		return err
	}
	explanation, err := marshalJSON(ch.Explanation)
	if err != nil {
		return err
	}
	deadlines, err := marshalJSON(ch.Deadlines)
	if err != nil {
		return err
	}
	notes, err := marshalJSON(ch.ConfidenceNotes)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO changes (id, source_id, tenant_id, detected_at,
		diff_summary, severity_score, severity_level, severity_reasons, explanation,
		deadlines, deadline_impact,
		action_category, action_guidance, action_confidence, confidence_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.SourceID, ch.TenantID, ch.DetectedAt,
		ch.DiffSummary, ch.SeverityScore, ch.SeverityLevel, reasons, explanation,
		deadlines, ch.DeadlineImpact,
		ch.ActionCategory, ch.ActionGuidance, ch.ActionConfidence, notes,
	)
	return err
}

// GetChange retrieves a change event by ID. Returns nil if not found.
func (s *Store) GetChange(ctx context.Context, id string) (*Change, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+changeColumns+` FROM changes WHERE id = ?`, id)
	ch, err := scanChange(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ch, err
}

// ListChanges returns a tenant's change events, newest first.
func (s *Store) ListChanges(ctx context.Context, tenantID string, limit int) ([]*Change, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+changeColumns+` FROM changes
		WHERE tenant_id = ? ORDER BY detected_at DESC LIMIT ?`,
		tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChanges(rows)
}

// ListSourceChanges returns one source's change events, newest first.
func (s *Store) ListSourceChanges(ctx context.Context, sourceID string, limit int) ([]*Change, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+changeColumns+` FROM changes
		WHERE source_id = ? ORDER BY detected_at DESC LIMIT ?`,
		sourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChanges(rows)
}

// ConfidenceUpdate recomputes confidence state from acknowledgement history.
// It receives the source's current stats and the acknowledged change's
// severity, and returns the updated stats, score, and level.
type ConfidenceUpdate func(stats ConfidenceStats, severity SeverityLevel) (ConfidenceStats, int, ActionConfidence)

// ApplyAck performs the single acknowledgement write for a change event and
// the confidence update for its source in one transaction. The ack write is
// conditional on ack_status being NULL, making re-acknowledgement an
// idempotent no-op: it returns (false, nil) without touching the stats.
func (s *Store) ApplyAck(ctx context.Context, changeID string, ack AckStatus, by string, update ConfidenceUpdate) (bool, error) {
	applied := false
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		now := s.nowMilli()

		res, err := tx.ExecContext(ctx,
			`UPDATE changes SET ack_status = ?, ack_at = ?, ack_by = ?
			WHERE id = ? AND ack_status IS NULL`,
			ack, now, by, changeID)
		if err != nil {
			return fmt.Errorf("ack change: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil // already acknowledged (or unknown id)
		}
		applied = true

		var sourceID string
		var severity SeverityLevel
		if err := tx.QueryRowContext(ctx,
			`SELECT source_id, severity_level FROM changes WHERE id = ?`,
			changeID).Scan(&sourceID, &severity); err != nil {
			return fmt.Errorf("read change: %w", err)
		}

		var stats ConfidenceStats
		if err := tx.QueryRowContext(ctx,
			`SELECT conf_total_actions, conf_no_action, conf_review, conf_escalate, conf_false_alarm, conf_last_action_at
			FROM sources WHERE id = ?`, sourceID).Scan(
			&stats.TotalActions, &stats.NoActionCount, &stats.ReviewCount,
			&stats.EscalateCount, &stats.FalseAlarmCount, &stats.LastActionAt); err != nil {
			return fmt.Errorf("read confidence stats: %w", err)
		}

		newStats, score, level := update(stats, severity)
		newStats.LastActionAt = &now

		_, err = tx.ExecContext(ctx,
			`UPDATE sources SET
				conf_total_actions = ?, conf_no_action = ?, conf_review = ?,
				conf_escalate = ?, conf_false_alarm = ?, conf_last_action_at = ?,
				confidence_score = ?, confidence_level = ?, updated_at = ?
			WHERE id = ?`,
			newStats.TotalActions, newStats.NoActionCount, newStats.ReviewCount,
			newStats.EscalateCount, newStats.FalseAlarmCount, newStats.LastActionAt,
			score, level, now, sourceID)
		if err != nil {
			return fmt.Errorf("write confidence stats: %w", err)
		}
		return nil
	})
	return applied, err
}

func scanChange(row scanner) (*Change, error) {
	var ch Change
	var reasons, explanation, deadlines, notes string
	var ackStatus sql.NullString
	err := row.Scan(
		&ch.ID, &ch.SourceID, &ch.TenantID, &ch.DetectedAt,
		&ch.DiffSummary, &ch.SeverityScore, &ch.SeverityLevel, &reasons, &explanation,
		&deadlines, &ch.DeadlineImpact,
		&ch.ActionCategory, &ch.ActionGuidance, &ch.ActionConfidence, &notes,
		&ackStatus, &ch.AckAt, &ch.AckBy,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan change: %w", err)
	}
	if ackStatus.Valid {
		ch.AckStatus = AckStatus(ackStatus.String)
	}
	if err := json.Unmarshal([]byte(reasons), &ch.SeverityReasons); err != nil {
		return nil, fmt.Errorf("decode severity_reasons: %w", err)
	}
	if err := json.Unmarshal([]byte(explanation), &ch.Explanation); err != nil {
		return nil, fmt.Errorf("decode explanation: %w", err)
	}
	if err := json.Unmarshal([]byte(deadlines), &ch.Deadlines); err != nil {
		return nil, fmt.Errorf("decode deadlines: %w", err)
	}
	if err := json.Unmarshal([]byte(notes), &ch.ConfidenceNotes); err != nil {
		return nil, fmt.Errorf("decode confidence_notes: %w", err)
	}
	return &ch, nil
}

func collectChanges(rows *sql.Rows) ([]*Change, error) {
	var changes []*Change
	for rows.Next() {
		ch, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, ch)
	}
	return changes, rows.Err()
}

// marshalJSON encodes v, mapping nil slices to "[]" so columns never hold
// the JSON literal null.
func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}
