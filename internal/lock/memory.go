package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	token   string
	expires time.Time
}

type memoryTable struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// MemoryLocker is an in-process Locker for single-node runs and tests.
type MemoryLocker struct {
	table *memoryTable
}

// NewMemoryLocker creates a locker with its own lock table.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		table: &memoryTable{entries: make(map[string]memoryEntry), now: time.Now},
	}
}

// NewOwner returns a locker sharing this lock table, as a second worker would.
func (l *MemoryLocker) NewOwner() *MemoryLocker {
	return &MemoryLocker{table: l.table}
}

// SetClock replaces the time source used for expiry.
func (l *MemoryLocker) SetClock(now func() time.Time) {
	l.table.mu.Lock()
	l.table.now = now
	l.table.mu.Unlock()
}

func (l *MemoryLocker) Acquire(_ context.Context, name string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if e, ok := t.entries[name]; ok && now.Before(e.expires) {
		return "", false, nil
	}
	token := uuid.New().String()
	t.entries[name] = memoryEntry{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *MemoryLocker) Release(_ context.Context, name, token string) error {
	if token == "" {
		return nil
	}

	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[name]; ok && e.token == token {
		delete(t.entries, name)
	}
	return nil
}
