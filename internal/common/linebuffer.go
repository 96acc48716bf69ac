package common

import "sync"

// LineBuffer is a bounded, thread-safe ring buffer of output lines. It backs
// the replay window for progress subscribers and the diagnostic tail captured
// on abnormal process exit. When full, the oldest line is dropped.
type LineBuffer struct {
	mu      sync.Mutex
	lines   []string
	start   int
	count   int
	dropped int
}

// NewLineBuffer creates a LineBuffer retaining at most capacity lines.
// A capacity of zero or less defaults to 1.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &LineBuffer{lines: make([]string, capacity)}
}

// Append adds a line, evicting the oldest one if the buffer is full.
func (b *LineBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == len(b.lines) {
		b.lines[b.start] = line
		b.start = (b.start + 1) % len(b.lines)
		b.dropped++
		return
	}
	b.lines[(b.start+b.count)%len(b.lines)] = line
	b.count++
}

// Snapshot returns the retained lines in append order.
func (b *LineBuffer) Snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, b.count)
	for i := 0; i < b.count; i++ {
		out = append(out, b.lines[(b.start+i)%len(b.lines)])
	}
	return out
}

// Len returns the number of retained lines.
func (b *LineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns how many lines were evicted since creation.
func (b *LineBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
