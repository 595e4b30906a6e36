package activity

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level classifies a log entry for display purposes.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Entry is a single timestamped activity event.
type Entry struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"-"`
	Clock   string    `json:"time"` // HH:MM:SS, what the dashboard renders
	Message string    `json:"message"`
	Level   Level     `json:"type"`
}

// Log is a bounded append-only ring of activity events. Once capacity is
// reached the oldest entries are silently dropped. Nothing is persisted;
// the ring resets with the process.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	notify   func(Entry)
}

// DefaultCapacity matches the dashboard's scrollback.
const DefaultCapacity = 50

// New creates a log ring with the given capacity (DefaultCapacity if <= 0).
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// OnAppend registers a callback invoked for every appended entry, outside the
// ring lock. Used to push entries to websocket clients.
func (l *Log) OnAppend(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = fn
}

// Add appends a formatted entry, evicting the oldest once full.
func (l *Log) Add(level Level, format string, args ...interface{}) Entry {
	now := time.Now()
	entry := Entry{
		ID:      uuid.New().String(),
		Time:    now,
		Clock:   now.Format("15:04:05"),
		Message: fmt.Sprintf(format, args...),
		Level:   level,
	}

	l.mu.Lock()
	if len(l.entries) >= l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, entry)
	notify := l.notify
	l.mu.Unlock()

	if notify != nil {
		notify(entry)
	}
	return entry
}

// Entries returns a copy of the ring, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
