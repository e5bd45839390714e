package logging

import (
	"sync"
	"time"
)

// LogEntry is a single structured log line as served by the
// diagnostics API.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent log entries in memory. Writers
// overwrite the oldest entry once the buffer is full.
type RingBuffer struct {
	mu    sync.RWMutex
	slots []LogEntry
	seq   uint64 // total writes ever; the newest entry sits at (seq-1) % len
}

// NewRingBuffer creates a buffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{slots: make([]LogEntry, size)}
}

// Write appends an entry, dropping the oldest when full.
func (b *RingBuffer) Write(entry LogEntry) {
	b.mu.Lock()
	b.slots[b.seq%uint64(len(b.slots))] = entry
	b.seq++
	b.mu.Unlock()
}

// ReadLast returns up to n of the most recent entries, oldest first.
func (b *RingBuffer) ReadLast(n int) []LogEntry {
	if n <= 0 {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	stored := min(b.seq, uint64(len(b.slots)))
	if uint64(n) > stored {
		n = int(stored)
	}
	if n == 0 {
		return nil
	}

	out := make([]LogEntry, 0, n)
	for i := b.seq - uint64(n); i < b.seq; i++ {
		out = append(out, b.slots[i%uint64(len(b.slots))])
	}
	return out
}

// ReadAll returns every stored entry, oldest first.
func (b *RingBuffer) ReadAll() []LogEntry {
	return b.ReadLast(len(b.slots))
}

// Count returns the number of stored entries.
func (b *RingBuffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int(min(b.seq, uint64(len(b.slots))))
}
