// Package backoff maps consecutive-failure counts to retry delays and coarse
// operational statuses.
package backoff

import (
	"time"

	"github.com/deadlineshield/guardian/guardian/internal/store"
)

// delays indexes retry delay by failure count; the first failure retries on
// the next normal cycle, the table saturates at a day.
var delays = []time.Duration{
	0,
	30 * time.Minute,
	120 * time.Minute,
	720 * time.Minute,
	1440 * time.Minute,
}

const (
	degradedThreshold = 5
	manualThreshold   = 10
)

// Delay returns the retry delay for the given consecutive-failure count.
// failures is the count after the failure being handled, so it is >= 1.
func Delay(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	if failures > len(delays) {
		failures = len(delays)
	}
	return delays[failures-1]
}

// StatusFor returns the operational status after a failed check. Blocked
// responses keep their own status regardless of the counter, but still count
// toward it.
func StatusFor(failures int, blocked bool) store.Status {
	if blocked {
		return store.StatusBlocked
	}
	switch {
	case failures >= manualThreshold:
		return store.StatusNeedsManual
	case failures >= degradedThreshold:
		return store.StatusDegraded
	default:
		return store.StatusError
	}
}

// NextCheck computes when the source should be retried after a failure.
func NextCheck(now time.Time, failures int) time.Time {
	return now.Add(Delay(failures))
}
