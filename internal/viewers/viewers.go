// Package viewers tracks live viewer counts per session. Counts are advisory
// read-side data fed by the provider status poller; they never participate in
// lifecycle decisions.
package viewers

import (
	"context"
	"sync"
	"time"
)

// Tracker stores the last observed viewer count per session.
type Tracker interface {
	Set(ctx context.Context, sessionID string, count int) error
	Get(ctx context.Context, sessionID string) (int, bool, error)
	Clear(ctx context.Context, sessionID string) error
}

type memoryEntry struct {
	count int
	seen  time.Time
}

// MemoryTracker is the in-process Tracker used by tests and single-node
// deployments. Entries older than TTL read as absent.
type MemoryTracker struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// DefaultTTL bounds how long a stale count is served after the poller stops
// refreshing it.
const DefaultTTL = 2 * time.Minute

// NewMemoryTracker constructs a MemoryTracker with the given TTL; zero or
// negative falls back to DefaultTTL.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryTracker{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source. Intended for tests.
func (t *MemoryTracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now != nil {
		t.now = now
	}
}

func (t *MemoryTracker) Set(ctx context.Context, sessionID string, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if count < 0 {
		count = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[sessionID] = memoryEntry{count: count, seen: t.now()}
	return nil
}

func (t *MemoryTracker) Get(ctx context.Context, sessionID string) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[sessionID]
	if !ok {
		return 0, false, nil
	}
	if t.now().Sub(entry.seen) > t.ttl {
		delete(t.entries, sessionID)
		return 0, false, nil
	}
	return entry.count, true, nil
}

func (t *MemoryTracker) Clear(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, sessionID)
	return nil
}

var _ Tracker = (*MemoryTracker)(nil)
