// Package buffer provides a bounded capture buffer for subprocess output.
package buffer

import (
	"strings"
	"sync"
)

// CaptureBuffer is a thread-safe writer that retains only the most recent
// bytes up to a fixed capacity. When full, the oldest data is discarded.
//
// Command stdout/stderr streams are captured through it so that a runaway
// command cannot grow the server's memory without bound; the client still
// sees the tail of the output.
type CaptureBuffer struct {
	data     []byte
	capacity int
	mu       sync.Mutex
}

// NewCaptureBuffer creates a CaptureBuffer with the given capacity. A
// capacity below 1 defaults to 1.
func NewCaptureBuffer(capacity int) *CaptureBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &CaptureBuffer{
		data:     make([]byte, 0, capacity),
		capacity: capacity,
	}
}

// Write appends data, discarding the oldest bytes once the capacity is
// exceeded. Implements io.Writer and never returns an error.
func (b *CaptureBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(p) >= b.capacity {
		b.data = b.data[:b.capacity]
		copy(b.data, p[len(p)-b.capacity:])
		return len(p), nil
	}

	newLen := len(b.data) + len(p)
	if newLen <= b.capacity {
		b.data = append(b.data, p...)
	} else {
		discard := newLen - b.capacity
		kept := copy(b.data, b.data[discard:])
		b.data = append(b.data[:kept], p...)
	}

	return len(p), nil
}

// String returns the captured data with surrounding whitespace trimmed, the
// form command results are reported in.
func (b *CaptureBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.data))
}

// Len returns the number of bytes currently held.
func (b *CaptureBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Cap returns the buffer capacity.
func (b *CaptureBuffer) Cap() int {
	return b.capacity
}
