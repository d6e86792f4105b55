package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const sourceColumns = `id, tenant_id, name, url, frequency, watch_mode,
	status, last_hash, last_error, consecutive_failures, backoff_level,
	last_checked_at, last_success_at, next_check_at,
	lock_token, lock_expires_at,
	volatility_score, check_count, change_count,
	confidence_score, confidence_level,
	conf_total_actions, conf_no_action, conf_review, conf_escalate, conf_false_alarm, conf_last_action_at,
	last_title, last_meta_description, last_content_sample, next_deadline,
	paused_at, paused_by, pause_reason,
	verified_at, verified_by, verified_reason, verified_hash,
	created_at, updated_at`

// InsertSource adds a new source.
func (s *Store) InsertSource(ctx context.Context, src *Source) error {
	now := s.nowMilli()
	if src.CreatedAt == 0 {
		src.CreatedAt = now
	}
	if src.UpdatedAt == 0 {
		src.UpdatedAt = now
	}
	if src.Frequency == "" {
		src.Frequency = FrequencyDaily
	}
	if src.WatchMode == "" {
		src.WatchMode = WatchFullContent
	}
	if src.Status == "" {
		src.Status = StatusOK
	}
	if src.ConfidenceScore == 0 {
		src.ConfidenceScore = 50
	}
	if src.ConfidenceLevel == "" {
		src.ConfidenceLevel = ConfidenceMedium
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO sources (id, tenant_id, name, url, frequency, watch_mode,
		status, next_check_at, confidence_score, confidence_level, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.TenantID, src.Name, src.URL, src.Frequency, src.WatchMode,
		src.Status, src.NextCheckAt, src.ConfidenceScore, src.ConfidenceLevel,
		src.CreatedAt, src.UpdatedAt,
	)
	return err
}

// GetSource retrieves a source by ID. Returns nil if not found.
func (s *Store) GetSource(ctx context.Context, id string) (*Source, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return src, err
}

// GetSourceByURL returns the tenant's source matching the given URL, or nil.
func (s *Store) GetSourceByURL(ctx context.Context, tenantID, url string) (*Source, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE tenant_id = ? AND url = ? LIMIT 1`,
		tenantID, url)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return src, err
}

// ListSources returns all of a tenant's sources, newest first.
func (s *Store) ListSources(ctx context.Context, tenantID string) ([]*Source, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE tenant_id = ? ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSources(rows)
}

// CountSources returns the number of sources a tenant owns.
func (s *Store) CountSources(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sources WHERE tenant_id = ?`, tenantID).Scan(&count)
	return count, err
}

// DeleteSource removes a source (cascades to changes and fetch_log).
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	return err
}

// DueSources returns unpaused sources whose next check time has passed.
// Sources with a nil next_check_at are always due. Sources holding an
// unexpired lock are skipped here as an optimization; lock acquisition
// remains the authoritative gate.
func (s *Store) DueSources(ctx context.Context, limit int) ([]*Source, error) {
	now := s.nowMilli()
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources
		WHERE status != ?
		  AND (next_check_at IS NULL OR next_check_at <= ?)
		  AND (lock_expires_at IS NULL OR lock_expires_at <= ?)
		ORDER BY next_check_at ASC NULLS FIRST
		LIMIT ?`, StatusPaused, now, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSources(rows)
}

// TryAcquireLock attempts to claim exclusive processing rights over a source.
// The single conditional UPDATE is the atomic read-modify-write: it succeeds
// only when no unexpired lock is present. Returns false on contention.
func (s *Store) TryAcquireLock(ctx context.Context, sourceID, token string, ttl time.Duration) (bool, error) {
	now := s.nowMilli()
	res, err := s.DB.ExecContext(ctx,
		`UPDATE sources SET lock_token = ?, lock_expires_at = ?, updated_at = ?
		WHERE id = ? AND (lock_expires_at IS NULL OR lock_expires_at <= ?)`,
		token, now+ttl.Milliseconds(), now, sourceID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseLock clears the lock if the holder token still matches. Terminal
// state writes (RecordCheck*) release the lock themselves; this is the
// fallback for executions that fail before reaching a terminal write.
func (s *Store) ReleaseLock(ctx context.Context, sourceID, token string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE sources SET lock_token = '', lock_expires_at = NULL, updated_at = ?
		WHERE id = ? AND lock_token = ?`,
		s.nowMilli(), sourceID, token)
	return err
}

// CheckResult carries the terminal state write of one pipeline execution.
type CheckResult struct {
	SourceID  string
	LockToken string

	Hash            string
	Title           string
	MetaDescription string
	ContentSample   string
	NextDeadline    *int64 // only written on the changed path
	NextCheckAt     int64
}

// RecordCheckOK finalizes a successful check with no content change (or the
// first baseline fetch). Resets failure counters, advances the schedule, and
// releases the lock in the same update.
func (s *Store) RecordCheckOK(ctx context.Context, r CheckResult) error {
	now := s.nowMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE sources SET
			status = ?, last_hash = ?, last_error = '',
			consecutive_failures = 0, backoff_level = 0,
			last_checked_at = ?, last_success_at = ?, next_check_at = ?,
			last_title = ?, last_meta_description = ?, last_content_sample = ?,
			volatility_score = CAST(change_count AS REAL) / (check_count + 1),
			check_count = check_count + 1,
			lock_token = '', lock_expires_at = NULL,
			updated_at = ?
		WHERE id = ? AND lock_token = ?`,
		StatusOK, r.Hash, now, now, r.NextCheckAt,
		r.Title, r.MetaDescription, r.ContentSample,
		now, r.SourceID, r.LockToken)
	return err
}

// RecordCheckChanged finalizes a check that detected a content change:
// inserts the change event and updates the source in one transaction.
func (s *Store) RecordCheckChanged(ctx context.Context, r CheckResult, ch *Change) error {
	now := s.nowMilli()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertChangeTx(ctx, tx, ch); err != nil {
		return fmt.Errorf("insert change: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sources SET
			status = ?, last_hash = ?, last_error = '',
			consecutive_failures = 0, backoff_level = 0,
			last_checked_at = ?, last_success_at = ?, next_check_at = ?,
			last_title = ?, last_meta_description = ?, last_content_sample = ?,
			next_deadline = ?,
			volatility_score = CAST(change_count + 1 AS REAL) / (check_count + 1),
			check_count = check_count + 1, change_count = change_count + 1,
			lock_token = '', lock_expires_at = NULL,
			updated_at = ?
		WHERE id = ? AND lock_token = ?`,
		StatusChanged, r.Hash, now, now, r.NextCheckAt,
		r.Title, r.MetaDescription, r.ContentSample, r.NextDeadline,
		now, r.SourceID, r.LockToken)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}

	return tx.Commit()
}

// CheckFailure carries the terminal state write of a failed execution.
type CheckFailure struct {
	SourceID  string
	LockToken string

	Status       Status
	ErrorMessage string
	Failures     int
	BackoffLevel int
	NextCheckAt  int64
}

// RecordCheckFailure finalizes a failed check: writes the failure status,
// counters, and retry schedule, and releases the lock in the same update.
func (s *Store) RecordCheckFailure(ctx context.Context, f CheckFailure) error {
	now := s.nowMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE sources SET
			status = ?, last_error = ?,
			consecutive_failures = ?, backoff_level = ?,
			last_checked_at = ?, next_check_at = ?,
			volatility_score = CAST(change_count AS REAL) / (check_count + 1),
			check_count = check_count + 1,
			lock_token = '', lock_expires_at = NULL,
			updated_at = ?
		WHERE id = ? AND lock_token = ?`,
		f.Status, f.ErrorMessage, f.Failures, f.BackoffLevel,
		now, f.NextCheckAt, now, f.SourceID, f.LockToken)
	return err
}

// PauseSource takes a source out of automated scheduling.
func (s *Store) PauseSource(ctx context.Context, id, by, reason string) error {
	now := s.nowMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE sources SET status = ?, paused_at = ?, paused_by = ?, pause_reason = ?, updated_at = ?
		WHERE id = ?`,
		StatusPaused, now, by, reason, now, id)
	return err
}

// ResumeSource returns a paused source to automated scheduling, due
// immediately, with failure counters reset.
func (s *Store) ResumeSource(ctx context.Context, id string) error {
	now := s.nowMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE sources SET status = ?, paused_at = NULL, paused_by = '', pause_reason = '',
			consecutive_failures = 0, backoff_level = 0, last_error = '',
			next_check_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusOK, now, now, id, StatusPaused)
	return err
}

// VerifySource records a manual verification: the operator confirmed the
// current state of the source, clearing any stuck status and re-entering
// automated scheduling.
func (s *Store) VerifySource(ctx context.Context, id, by, reason, hash string) error {
	now := s.nowMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE sources SET status = ?, verified_at = ?, verified_by = ?, verified_reason = ?, verified_hash = ?,
			consecutive_failures = 0, backoff_level = 0, last_error = '',
			next_check_at = ?, updated_at = ?
		WHERE id = ?`,
		StatusOK, now, by, reason, hash, now, now, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (*Source, error) {
	var src Source
	err := row.Scan(
		&src.ID, &src.TenantID, &src.Name, &src.URL, &src.Frequency, &src.WatchMode,
		&src.Status, &src.LastHash, &src.LastError, &src.ConsecutiveFailures, &src.BackoffLevel,
		&src.LastCheckedAt, &src.LastSuccessAt, &src.NextCheckAt,
		&src.LockToken, &src.LockExpiresAt,
		&src.VolatilityScore, &src.CheckCount, &src.ChangeCount,
		&src.ConfidenceScore, &src.ConfidenceLevel,
		&src.Confidence.TotalActions, &src.Confidence.NoActionCount, &src.Confidence.ReviewCount,
		&src.Confidence.EscalateCount, &src.Confidence.FalseAlarmCount, &src.Confidence.LastActionAt,
		&src.LastTitle, &src.LastMetaDescription, &src.LastContentSample, &src.NextDeadline,
		&src.PausedAt, &src.PausedBy, &src.PauseReason,
		&src.VerifiedAt, &src.VerifiedBy, &src.VerifiedReason, &src.VerifiedHash,
		&src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	return &src, nil
}

func collectSources(rows *sql.Rows) ([]*Source, error) {
	var sources []*Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}
