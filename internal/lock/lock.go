// Package lock provides the named, time-bounded mutual exclusion that keeps
// two invocations from running pipeline steps on the same source.
package lock

import (
	"context"
	"time"
)

// DefaultTTL bounds how long a crashed holder can wedge a source.
const DefaultTTL = 60 * time.Second

const keyPrefix = "importer:lock:source:"

// Locker acquires and releases named locks.
//
// Acquire returns false, not an error, when another holder is active. On
// success it returns a token unique to that acquisition. Release drops the
// lock only while it is still held under that token, so a holder whose TTL
// ran out cannot free the lock of whoever took it over. Release is
// idempotent and ignores an empty token.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, name, token string) error
}

// Name returns the lock name of a source. Import, clear and expire share it.
func Name(sourceID string) string {
	return keyPrefix + sourceID
}
