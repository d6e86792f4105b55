package store

import "context"

// InsertFetchLog records one fetch attempt.
func (s *Store) InsertFetchLog(ctx context.Context, e *FetchLogEntry) error {
	if e.FetchedAt == 0 {
		e.FetchedAt = s.nowMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO fetch_log (id, source_id, status, status_code, content_hash, error_message, duration_ms, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceID, e.Status, e.StatusCode, e.ContentHash, e.ErrorMessage,
		e.DurationMs, e.FetchedAt)
	return err
}

// RecentFetchLog returns a source's most recent fetch attempts.
func (s *Store) RecentFetchLog(ctx context.Context, sourceID string, limit int) ([]*FetchLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, source_id, status, status_code, content_hash, error_message, duration_ms, fetched_at
		FROM fetch_log WHERE source_id = ? ORDER BY fetched_at DESC LIMIT ?`,
		sourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*FetchLogEntry
	for rows.Next() {
		var e FetchLogEntry
		if err := rows.Scan(&e.ID, &e.SourceID, &e.Status, &e.StatusCode,
			&e.ContentHash, &e.ErrorMessage, &e.DurationMs, &e.FetchedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Stats returns aggregate counters for the store.
func (s *Store) Stats(ctx context.Context) (*EngineStats, error) {
	var st EngineStats
	queries := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM tenants`, &st.Tenants},
		{`SELECT COUNT(*) FROM sources`, &st.Sources},
		{`SELECT COUNT(*) FROM changes`, &st.Changes},
		{`SELECT COUNT(*) FROM changes WHERE ack_status IS NULL`, &st.Unacknowledged},
		{`SELECT COUNT(*) FROM fetch_log`, &st.FetchLogs},
	}
	for _, q := range queries {
		if err := s.DB.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return &st, nil
}
