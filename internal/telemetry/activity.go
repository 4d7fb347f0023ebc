package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultActivityCapacity is the number of publish records kept for display.
const DefaultActivityCapacity = 20

// ActivityEntry records one publish attempt.
type ActivityEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Topic     string    `json:"topic"`
	Type      string    `json:"type"`
	Payload   string    `json:"payload"`

	// Error is set when the publish failed.
	Error string `json:"error,omitempty"`
}

// ActivityLog is a bounded, ordered history of recent publishes.
// When full, the oldest entry is evicted first.
//
// Thread Safety: All methods are safe for concurrent use.
type ActivityLog struct {
	mu       sync.RWMutex
	buf      []ActivityEntry
	start    int
	size     int
	capacity int
}

// NewActivityLog creates a log holding at most capacity entries.
// A non-positive capacity falls back to DefaultActivityCapacity.
func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = DefaultActivityCapacity
	}
	return &ActivityLog{
		buf:      make([]ActivityEntry, capacity),
		capacity: capacity,
	}
}

// Append adds an entry, evicting the oldest while the log is over capacity.
// A missing ID is generated and the stored entry is returned.
func (l *ActivityLog) Append(e ActivityEntry) ActivityEntry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size < l.capacity {
		l.buf[(l.start+l.size)%l.capacity] = e
		l.size++
		return e
	}

	l.buf[l.start] = e
	l.start = (l.start + 1) % l.capacity
	return e
}

// Entries returns the retained entries, oldest first.
func (l *ActivityLog) Entries() []ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ActivityEntry, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.start+i)%l.capacity]
	}
	return out
}

// Len returns the number of retained entries.
func (l *ActivityLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Capacity returns the maximum number of retained entries.
func (l *ActivityLog) Capacity() int {
	return l.capacity
}

// Reset discards all entries.
func (l *ActivityLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = make([]ActivityEntry, l.capacity)
	l.start = 0
	l.size = 0
}
