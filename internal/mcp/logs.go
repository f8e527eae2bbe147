// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"bytes"
	"strings"
	"sync"
	"time"
)

// DefaultLogLines is the number of stderr lines retained per service.
const DefaultLogLines = 500

// LogEntry is one line of service output.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
}

// RingBuffer is a fixed-size circular buffer for log entries.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	head    int
	size    int
	count   int
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultLogLines
	}
	return &RingBuffer{
		entries: make([]LogEntry, capacity),
		size:    capacity,
	}
}

// Add appends an entry, overwriting the oldest once full.
func (rb *RingBuffer) Add(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[(rb.head+rb.count)%rb.size] = entry
	if rb.count < rb.size {
		rb.count++
	} else {
		rb.head = (rb.head + 1) % rb.size
	}
}

// Last returns up to n entries, oldest first. n <= 0 returns everything.
func (rb *RingBuffer) Last(n int) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || n > rb.count {
		n = rb.count
	}
	result := make([]LogEntry, n)
	start := rb.count - n
	for i := 0; i < n; i++ {
		result[i] = rb.entries[(rb.head+start+i)%rb.size]
	}
	return result
}

// Since returns entries at or after t, oldest first.
func (rb *RingBuffer) Since(t time.Time) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var result []LogEntry
	for i := 0; i < rb.count; i++ {
		entry := rb.entries[(rb.head+i)%rb.size]
		if !entry.Timestamp.Before(t) {
			result = append(result, entry)
		}
	}
	return result
}

// Count returns the number of entries in the buffer.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// LogCapture keeps a ring buffer of stderr lines per service.
type LogCapture struct {
	mu      sync.RWMutex
	buffers map[string]*RingBuffer
	lines   int
	now     func() time.Time
}

// NewLogCapture creates a capture retaining lines entries per service.
func NewLogCapture(lines int) *LogCapture {
	if lines <= 0 {
		lines = DefaultLogLines
	}
	return &LogCapture{
		buffers: make(map[string]*RingBuffer),
		lines:   lines,
		now:     time.Now,
	}
}

func (lc *LogCapture) buffer(name string) *RingBuffer {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if buf, ok := lc.buffers[name]; ok {
		return buf
	}
	buf := NewRingBuffer(lc.lines)
	lc.buffers[name] = buf
	return buf
}

// Add records a line for a service.
func (lc *LogCapture) Add(name, source, message string) {
	lc.buffer(name).Add(LogEntry{Timestamp: lc.now(), Message: message, Source: source})
}

// Logs returns up to n lines for a service. A non-zero since filters to
// lines captured at or after it.
func (lc *LogCapture) Logs(name string, n int, since time.Time) []LogEntry {
	lc.mu.RLock()
	buf, ok := lc.buffers[name]
	lc.mu.RUnlock()
	if !ok {
		return nil
	}

	if since.IsZero() {
		return buf.Last(n)
	}
	entries := buf.Since(since)
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries
}

// Tail joins the lines captured since t.
func (lc *LogCapture) Tail(name string, since time.Time, n int) string {
	entries := lc.Logs(name, n, since)
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Message)
	}
	return strings.Join(lines, "\n")
}

// Remove drops the buffer for a service.
func (lc *LogCapture) Remove(name string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	delete(lc.buffers, name)
}

// Writer returns an io.Writer that splits output into lines for name.
func (lc *LogCapture) Writer(name, source string) *LineWriter {
	return &LineWriter{capture: lc, name: name, source: source}
}

// LineWriter feeds newline-delimited output into a LogCapture.
type LineWriter struct {
	mu      sync.Mutex
	capture *LogCapture
	name    string
	source  string
	partial []byte
}

// Write implements io.Writer.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.emit(w.partial[:i])
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

// Flush records any trailing partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.emit(w.partial)
		w.partial = nil
	}
}

func (w *LineWriter) emit(line []byte) {
	s := strings.TrimRight(string(line), "\r")
	if strings.TrimSpace(s) == "" {
		return
	}
	w.capture.Add(w.name, w.source, s)
}
