package telemetry

import (
	"fmt"
	"sync"
	"time"
)

// Cache holds the latest record per message type plus the operator's
// enablement flag for that type.
//
// Entries are created by Upsert on the first sighting of a type and are never
// removed except by Reset. The listener writes latest values, the operator
// writes enablement flags and the publisher reads both.
//
// Thread Safety:
//   - mu guards the type→entry map and the insertion order only.
//   - Each entry has its own mutex guarding latest and enabled, held just
//     long enough to swap or copy a pointer.
//   - Stored records are never mutated, so readers serialize them after all
//     locks are released.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   []string

	autoEnable map[string]struct{}
	now        func() time.Time
}

type cacheEntry struct {
	mu        sync.Mutex
	latest    *Record
	enabled   bool
	count     uint64
	firstSeen time.Time
	lastSeen  time.Time
}

// Snapshot is one enabled entry as seen by the publisher.
type Snapshot struct {
	Type   string
	Record Record
}

// EntryView is a read-only copy of one cache entry for display feeds.
type EntryView struct {
	Type      string    `json:"type"`
	Enabled   bool      `json:"enabled"`
	Count     uint64    `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Latest    Record    `json:"latest"`
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithAutoEnable makes the listed types start enabled when first seen.
// Types not listed start disabled.
func WithAutoEnable(types ...string) CacheOption {
	return func(c *Cache) {
		for _, t := range types {
			c.autoEnable[t] = struct{}{}
		}
	}
}

// WithClock overrides the time source used for first/last seen stamps.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:    make(map[string]*cacheEntry),
		autoEnable: make(map[string]struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upsert stores rec as the latest record for its type, creating the entry if
// this is the first sighting. The enabled flag of an existing entry is left
// untouched.
//
// Records in the unknown category are rejected with ErrUnknownCategory.
func (c *Cache) Upsert(rec Record) error {
	if rec.IsUnknown() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, rec.Type)
	}

	stored := rec
	now := c.now()

	e := c.lookup(rec.Type)
	if e == nil {
		e = c.insert(rec.Type, now)
	}

	e.mu.Lock()
	e.latest = &stored
	e.count++
	e.lastSeen = now
	e.mu.Unlock()

	return nil
}

// lookup returns the entry for msgType, or nil.
func (c *Cache) lookup(msgType string) *cacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[msgType]
}

// insert creates the entry for msgType unless another writer won the race.
func (c *Cache) insert(msgType string, now time.Time) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[msgType]; ok {
		return e
	}

	_, enabled := c.autoEnable[msgType]
	e := &cacheEntry{enabled: enabled, firstSeen: now}
	c.entries[msgType] = e
	c.order = append(c.order, msgType)
	return e
}

// SetEnabled records the operator's intent to publish msgType.
//
// Entries only originate from Upsert; enabling a type that has never been
// seen returns ErrUnknownType.
func (c *Cache) SetEnabled(msgType string, enabled bool) error {
	e := c.lookup(msgType)
	if e == nil {
		return fmt.Errorf("%w: %q", ErrUnknownType, msgType)
	}

	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
	return nil
}

// IsEnabled reports whether msgType is currently enabled.
func (c *Cache) IsEnabled(msgType string) bool {
	e := c.lookup(msgType)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// SnapshotEnabled returns the latest record of every enabled type, in
// first-seen order. Each entry is read consistently; the set as a whole is
// not, so a record arriving mid-snapshot may or may not be included.
func (c *Cache) SnapshotEnabled() []Snapshot {
	types, entries := c.ordered()

	out := make([]Snapshot, 0, len(entries))
	for i, e := range entries {
		e.mu.Lock()
		enabled, latest := e.enabled, e.latest
		e.mu.Unlock()

		if !enabled || latest == nil {
			continue
		}
		out = append(out, Snapshot{Type: types[i], Record: *latest})
	}
	return out
}

// Entries returns a view of every entry in first-seen order.
func (c *Cache) Entries() []EntryView {
	types, entries := c.ordered()

	out := make([]EntryView, 0, len(entries))
	for i, e := range entries {
		out = append(out, e.view(types[i]))
	}
	return out
}

// Get returns the view of a single entry.
func (c *Cache) Get(msgType string) (EntryView, bool) {
	e := c.lookup(msgType)
	if e == nil {
		return EntryView{}, false
	}
	return e.view(msgType), true
}

// Len returns the number of distinct types seen.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset discards every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.order = nil
	c.mu.Unlock()
}

// ordered copies the insertion order and entry pointers under the map lock.
func (c *Cache) ordered() ([]string, []*cacheEntry) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	types := make([]string, len(c.order))
	copy(types, c.order)
	entries := make([]*cacheEntry, len(types))
	for i, t := range types {
		entries[i] = c.entries[t]
	}
	return types, entries
}

func (e *cacheEntry) view(msgType string) EntryView {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := EntryView{
		Type:      msgType,
		Enabled:   e.enabled,
		Count:     e.count,
		FirstSeen: e.firstSeen,
		LastSeen:  e.lastSeen,
	}
	if e.latest != nil {
		v.Latest = *e.latest
	}
	return v
}
