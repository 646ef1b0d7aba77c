// Package selection arbitrates which element is selected, whether a text
// edit session owns the keyboard, and whether selection decoration is
// currently suppressed by a capture.
package selection

import (
	"errors"
	"log/slog"
	"sync"

	"CanvasBoard/internal/applog"
	"CanvasBoard/internal/state"
)

// ErrEditing is returned when selection cannot move because another
// element still owns the keyboard.
var ErrEditing = errors.New("selection: another element is being edited")

// Coordinator wraps the model's selected id with the keyboard and capture
// rules. Visual selection is derived, never stored per element.
type Coordinator struct {
	model *state.Model

	mu              sync.RWMutex
	keyboardVisible bool
	editingID       string
	capturing       bool
	onBlur          func(id string)
}

// NewCoordinator returns a coordinator over m.
func NewCoordinator(m *state.Model) *Coordinator {
	return &Coordinator{model: m}
}

// OnBlur registers fn to end the edit session of element id when the
// selection moves to another element.
func (c *Coordinator) OnBlur(fn func(id string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBlur = fn
}

// Select makes id the selected element. An edit session on another
// element is ended first; if it cannot be ended, ErrEditing is returned
// and the selection stays put.
func (c *Coordinator) Select(id string) error {
	if err := c.blur(id); err != nil {
		return err
	}
	return c.model.Select(id)
}

// Blur ends any edit session, as when a new element takes the selection.
func (c *Coordinator) Blur() error {
	return c.blur("")
}

func (c *Coordinator) blur(next string) error {
	c.mu.RLock()
	editing, fn := c.editingID, c.onBlur
	c.mu.RUnlock()
	if editing == "" || editing == next {
		return nil
	}
	if fn != nil {
		fn(editing)
	}
	if still := c.Editing(); still != "" && still != next {
		applog.WithComponent("selection").Debug("selection kept by edit session", slog.String("id", still))
		return ErrEditing
	}
	return nil
}

// Clear deselects everything.
func (c *Coordinator) Clear() {
	c.model.ClearSelection()
}

// Selected returns the model's selected id.
func (c *Coordinator) Selected() string {
	return c.model.Selected()
}

// IsSelected reports whether id should be drawn and handled as selected.
// It is false for every element while a capture is in flight.
func (c *Coordinator) IsSelected(id string) bool {
	c.mu.RLock()
	capturing := c.capturing
	c.mu.RUnlock()
	return !capturing && id != "" && c.model.Selected() == id
}

// BackgroundTap handles a tap on the empty surface. It clears the selection
// unless the on-screen keyboard is up, in which case the tap is ignored so
// an edit session is not interrupted. It reports whether selection changed.
func (c *Coordinator) BackgroundTap() bool {
	c.mu.RLock()
	visible := c.keyboardVisible
	c.mu.RUnlock()
	if visible {
		applog.WithComponent("selection").Debug("background tap ignored while editing")
		return false
	}
	if c.model.Selected() == "" {
		return false
	}
	c.model.ClearSelection()
	return true
}

// KeyboardShown records that the element id opened the text keyboard.
func (c *Coordinator) KeyboardShown(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyboardVisible = true
	c.editingID = id
}

// KeyboardHidden records that the keyboard went away.
func (c *Coordinator) KeyboardHidden() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyboardVisible = false
	c.editingID = ""
}

// KeyboardVisible reports whether a text edit session owns the keyboard.
func (c *Coordinator) KeyboardVisible() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keyboardVisible
}

// Editing returns the id of the element being edited, if any.
func (c *Coordinator) Editing() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.editingID
}

// BeginCapture clears the selection and suppresses decoration until
// EndCapture. It returns the id that was selected.
func (c *Coordinator) BeginCapture() string {
	c.mu.Lock()
	c.capturing = true
	c.mu.Unlock()

	prev := c.model.Selected()
	c.model.ClearSelection()
	return prev
}

// EndCapture restores prev as the selection and lifts the suppression.
// A prev that was removed during the capture leaves nothing selected.
func (c *Coordinator) EndCapture(prev string) {
	if prev != "" {
		if err := c.model.Select(prev); err != nil {
			applog.WithComponent("selection").Warn("selection not restored after capture",
				slog.String("id", prev), slog.Any("err", err))
		}
	}
	c.mu.Lock()
	c.capturing = false
	c.mu.Unlock()
}

// Capturing reports whether a capture is in flight.
func (c *Coordinator) Capturing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capturing
}
