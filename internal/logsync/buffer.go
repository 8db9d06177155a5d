// Package logsync holds the console's log buffers and keeps them in step with
// the remote log store: live streaming, resync, historical viewing and
// deletion.
package logsync

import (
	"strings"
	"sync"
)

const (
	// AutoScrollProximity is how close to the bottom, in scroll units, the
	// viewport must be for an append to keep following the output.
	AutoScrollProximity = 600

	// LineHeight is the number of scroll units one text line occupies.
	LineHeight = 20
)

// Snapshot is a consistent view of a Buffer.
type Snapshot struct {
	Text           string
	ScrollTop      int
	ScrollHeight   int
	ViewportHeight int
	Version        uint64
}

// Lines splits the snapshot text into display lines.
func (s Snapshot) Lines() []string {
	return strings.Split(s.Text, "\n")
}

// AtBottom reports whether the viewport shows the last line.
func (s Snapshot) AtBottom() bool {
	return s.ScrollTop >= maxScrollTop(s.ScrollHeight, s.ViewportHeight)
}

// Buffer is a text buffer with a scroll position. Every mutation is applied
// under one lock, so readers never see half of an event.
type Buffer struct {
	mu        sync.RWMutex
	text      strings.Builder
	lines     int
	scrollTop int
	viewport  int
	version   uint64
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{lines: 1}
}

// Append adds text to the end of the buffer. When the viewport was within
// AutoScrollProximity of the bottom it is moved to the new bottom; otherwise
// the scroll position is left alone. It reports whether the view followed.
func (b *Buffer) Append(text string) bool {
	if text == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	distance := b.scrollHeightLocked() - (b.scrollTop + b.viewport)
	follow := distance < AutoScrollProximity

	b.text.WriteString(text)
	b.lines += strings.Count(text, "\n")
	b.version++
	if follow {
		b.scrollTop = maxScrollTop(b.scrollHeightLocked(), b.viewport)
	}
	return follow
}

// Replace swaps the whole content and scrolls to the bottom.
func (b *Buffer) Replace(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.text.Reset()
	b.text.WriteString(text)
	b.lines = 1 + strings.Count(text, "\n")
	b.version++
	b.scrollTop = maxScrollTop(b.scrollHeightLocked(), b.viewport)
}

// Text returns the current content.
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text.String()
}

// Snapshot returns the content and scroll state together.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		Text:           b.text.String(),
		ScrollTop:      b.scrollTop,
		ScrollHeight:   b.scrollHeightLocked(),
		ViewportHeight: b.viewport,
		Version:        b.version,
	}
}

// SetViewport sets the visible height in scroll units.
func (b *Buffer) SetViewport(height int) {
	if height < 0 {
		height = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.viewport = height
	b.scrollTop = clamp(b.scrollTop, 0, maxScrollTop(b.scrollHeightLocked(), b.viewport))
}

// ScrollBy moves the viewport by delta units, clamped to the content.
func (b *Buffer) ScrollBy(delta int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scrollTop = clamp(b.scrollTop+delta, 0, maxScrollTop(b.scrollHeightLocked(), b.viewport))
}

// ScrollTo sets the scroll position, clamped to the content.
func (b *Buffer) ScrollTo(top int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scrollTop = clamp(top, 0, maxScrollTop(b.scrollHeightLocked(), b.viewport))
}

// ScrollToBottom moves the viewport to the last line.
func (b *Buffer) ScrollToBottom() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scrollTop = maxScrollTop(b.scrollHeightLocked(), b.viewport)
}

func (b *Buffer) scrollHeightLocked() int {
	return b.lines * LineHeight
}

func maxScrollTop(scrollHeight, viewport int) int {
	if scrollHeight <= viewport {
		return 0
	}
	return scrollHeight - viewport
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
