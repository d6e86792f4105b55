// Package lock grants exclusive, time-bounded processing rights over one
// source record. Contention is expected and is not an error; the loser simply
// skips the cycle.
package lock

import (
	"context"
	"time"

	"github.com/deadlineshield/guardian/guardian/internal/store"
	"github.com/deadlineshield/guardian/idgen"
)

// DefaultTTL bounds how long an abandoned claim blocks a source. It must
// comfortably exceed one pipeline execution including the fetch timeout.
const DefaultTTL = 5 * time.Minute

const tokenLength = 16

// Manager hands out lock tokens backed by the store's conditional write.
type Manager struct {
	store  *store.Store
	ttl    time.Duration
	tokens idgen.Generator
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the default lock lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithTokenGenerator overrides token generation, for deterministic tests.
func WithTokenGenerator(gen idgen.Generator) Option {
	return func(m *Manager) { m.tokens = gen }
}

func NewManager(st *store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  st,
		ttl:    DefaultTTL,
		tokens: idgen.NanoID(tokenLength),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire attempts to claim the source. ok is false when another holder has
// an unexpired claim.
func (m *Manager) Acquire(ctx context.Context, sourceID string) (token string, ok bool, err error) {
	token = m.tokens()
	ok, err = m.store.TryAcquireLock(ctx, sourceID, token, m.ttl)
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// Release clears the claim if token still holds it. Terminal pipeline writes
// release the lock themselves; this is the error-path fallback.
func (m *Manager) Release(ctx context.Context, sourceID, token string) error {
	return m.store.ReleaseLock(ctx, sourceID, token)
}

// TTL reports the configured lock lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }
