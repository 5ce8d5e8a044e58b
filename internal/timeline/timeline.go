package timeline

import (
	"sync"
	"time"
)

// Entry is one timeline line shown in the UI: when, what kind of event, and
// the human-readable text.
type Entry struct {
	At   time.Time `json:"at"`
	Kind string    `json:"kind"`
	Text string    `json:"text"`
}

// Log is a bounded in-memory event timeline. Oldest entries are evicted
// once the cap is reached.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = 200
	}
	return &Log{cap: capacity}
}

func (l *Log) Add(kind, text string) Entry {
	e := Entry{At: time.Now(), Kind: kind, Text: text}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}
	l.mu.Unlock()
	return e
}

// Recent returns up to n newest entries, oldest first.
func (l *Log) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}
