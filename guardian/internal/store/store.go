package store

import (
	"database/sql"
	"time"
)

// Store wraps a guardian database handle.
type Store struct {
	DB *sql.DB

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewStore creates a Store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, now: time.Now}
}

// SetClock overrides the store's time source.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Store) nowMilli() int64 {
	return s.now().UnixMilli()
}
