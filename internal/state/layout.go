package state

import (
	"sync"

	"fyne.io/fyne/v2"
)

// Layout tracks the measured size of the composition surface. Until the UI
// reports a measurement the fallback size stands in.
type Layout struct {
	mu       sync.RWMutex
	measured fyne.Size
	fallback fyne.Size
}

// NewLayout returns a layout that uses fallback until measured.
func NewLayout(fallback fyne.Size) *Layout {
	return &Layout{fallback: fallback}
}

// SetMeasured records the surface size reported by the UI. Degenerate
// sizes are ignored.
func (l *Layout) SetMeasured(size fyne.Size) {
	if size.Width <= 0 || size.Height <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.measured = size
}

// Measured reports whether the UI has reported a size.
func (l *Layout) Measured() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.measured.Width > 0
}

// Size returns the measured size, or the fallback estimate.
func (l *Layout) Size() fyne.Size {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.measured.Width > 0 && l.measured.Height > 0 {
		return l.measured
	}
	return l.fallback
}

// Center returns the top-left position that centres an element of the
// given size on the surface.
func (l *Layout) Center(size fyne.Size) fyne.Position {
	s := l.Size()
	return fyne.NewPos((s.Width-size.Width)/2, (s.Height-size.Height)/2)
}
