package filter

import (
	"context"
	"sync"
	"time"
)

// DedupStore suppresses repeat signals by fingerprint within a TTL window
type DedupStore interface {
	// Seen reports whether a fingerprint is recorded inside the TTL window,
	// without recording anything
	Seen(ctx context.Context, fingerprint string) (bool, error)
	// MarkSent records a fingerprint; returns false when it was already
	// recorded inside the TTL window (duplicate), true when newly recorded
	MarkSent(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error)
}

// DailyCounter tracks how many signals were sent in the current UTC day
type DailyCounter interface {
	SentToday(ctx context.Context) (int, error)
	Add(ctx context.Context, n int) error
	Reset(ctx context.Context) error
}

// MemoryDedup is a time-bounded in-process DedupStore. Used in dry-run mode
// and as the fallback when Redis is disabled.
type MemoryDedup struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryDedup creates an empty in-memory dedup store
func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (d *MemoryDedup) Seen(_ context.Context, fingerprint string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	expiry, ok := d.entries[fingerprint]
	return ok && d.now().Before(expiry), nil
}

func (d *MemoryDedup) MarkSent(_ context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if expiry, ok := d.entries[fingerprint]; ok && now.Before(expiry) {
		return false, nil
	}

	// Opportunistic sweep of expired entries
	for k, expiry := range d.entries {
		if now.After(expiry) {
			delete(d.entries, k)
		}
	}

	d.entries[fingerprint] = now.Add(ttl)
	return true, nil
}

// MemoryCounter is an in-process DailyCounter with UTC day rollover
type MemoryCounter struct {
	mu    sync.Mutex
	count int
	day   time.Time
	now   func() time.Time
}

// NewMemoryCounter creates a zeroed in-memory counter
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{now: time.Now}
}

func (c *MemoryCounter) SentToday(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	return c.count, nil
}

func (c *MemoryCounter) Add(_ context.Context, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	c.count += n
	return nil
}

func (c *MemoryCounter) Reset(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
	c.day = c.now().UTC().Truncate(24 * time.Hour)
	return nil
}

func (c *MemoryCounter) rollover() {
	today := c.now().UTC().Truncate(24 * time.Hour)
	if today.After(c.day) {
		c.count = 0
		c.day = today
	}
}
