package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/kaiak/internal/common/logger"
)

// lockEntry records when a session was locked.
type lockEntry struct {
	lockedAt time.Time
}

// LockTable enforces at-most-one-active-requester per session id. A
// single mutex guards the whole table: acquisition/release are short
// critical sections, never suspension points.
type LockTable struct {
	mu      sync.Mutex
	entries map[string]lockEntry
	maxAge  time.Duration
	logger  *logger.Logger
}

// NewLockTable creates an empty lock table. maxAge is the janitor's
// eviction threshold; a non-positive maxAge falls back to 1h.
func NewLockTable(maxAge time.Duration, log *logger.Logger) *LockTable {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &LockTable{
		entries: make(map[string]lockEntry),
		maxAge:  maxAge,
		logger:  log.WithFields(zap.String("component", "lock-table")),
	}
}

// TryLock inserts a lock entry for id if absent. Returns (true, zero) on
// success, or (false, lockedAt) if the session is already held.
func (t *LockTable) TryLock(id string) (acquired bool, lockedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, held := t.entries[id]; held {
		return false, existing.lockedAt
	}
	t.entries[id] = lockEntry{lockedAt: time.Now()}
	return true, time.Time{}
}

// Unlock removes the lock entry for id. Removing an absent entry is a
// warning, not an error.
func (t *LockTable) Unlock(id string) {
	t.mu.Lock()
	_, existed := t.entries[id]
	delete(t.entries, id)
	t.mu.Unlock()

	if !existed {
		t.logger.Warn("unlock of session with no held lock", zap.String("session_id", id))
	}
}

// IsLocked reports whether id currently has a lock entry, and since when.
func (t *LockTable) IsLocked(id string) (locked bool, lockedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[id]
	return ok, entry.lockedAt
}

// Sweep removes lock entries older than the table's configured maxAge,
// logging each eviction. Returns the number of entries evicted.
func (t *LockTable) Sweep() int {
	cutoff := time.Now().Add(-t.maxAge)

	t.mu.Lock()
	evicted := make(map[string]time.Time)
	for id, entry := range t.entries {
		if entry.lockedAt.Before(cutoff) {
			evicted[id] = entry.lockedAt
			delete(t.entries, id)
		}
	}
	t.mu.Unlock()

	for id, lockedAt := range evicted {
		t.logger.Warn("lock janitor reclaimed stale lock",
			zap.String("session_id", id),
			zap.Duration("age", time.Since(lockedAt)),
			zap.Duration("max_age", t.maxAge))
	}
	return len(evicted)
}
