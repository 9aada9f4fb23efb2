package logging

import (
	"strings"
	"sync"
)

// LineCapture is an io.Writer that remembers the most recent line written to it.
type LineCapture struct {
	mu   sync.RWMutex
	last string
}

// LastLog holds the latest INFO+ server log line.
var LastLog = &LineCapture{}

// LastEvent holds the latest safety event line.
var LastEvent = &LineCapture{}

// Write implements io.Writer.
func (w *LineCapture) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.last = strings.TrimRight(string(p), "\n")
	w.mu.Unlock()
	return len(p), nil
}

// Last returns the captured line without its trailing newline.
func (w *LineCapture) Last() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}
