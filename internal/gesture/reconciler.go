// Package gesture turns continuous pan, pinch and rotate streams for one
// element into transient visual state and a small number of commits to the
// element model.
//
// Transient state lives only in the Reconciler. The model is written through
// a single commit path, at gesture end, on tap-select and on edit exit.
package gesture

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"fyne.io/fyne/v2"

	"CanvasBoard/internal/applog"
	"CanvasBoard/internal/config"
	"CanvasBoard/internal/selection"
	"CanvasBoard/internal/state"
)

var (
	ErrNotSelected = errors.New("gesture: element not selected")
	ErrNotText     = errors.New("gesture: element is not text")
	ErrGone        = errors.New("gesture: element no longer exists")
)

// Outcome reports what a gesture event did.
type Outcome int

const (
	Ignored Outcome = iota
	Committed
	Discarded
	EditRequested
	Selected
	NoOp
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Committed:
		return "committed"
	case Discarded:
		return "discarded"
	case EditRequested:
		return "edit-requested"
	case Selected:
		return "selected"
	case NoOp:
		return "no-op"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Options are the reconciler thresholds and limits.
type Options struct {
	TextDragThreshold  float32
	MediaDragThreshold float32
	MinScale           float32
	MaxScale           float32
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return OptionsFrom(config.Default().Gesture)
}

// OptionsFrom converts the gesture config section.
func OptionsFrom(g config.Gesture) Options {
	return Options{
		TextDragThreshold:  float32(g.TextDragThreshold),
		MediaDragThreshold: float32(g.MediaDragThreshold),
		MinScale:           float32(g.MinScale),
		MaxScale:           float32(g.MaxScale),
	}
}

// Keyboard is the on-screen text input shown while a text element is edited.
type Keyboard interface {
	Show(id, text string) error
	Dismiss()
}

// Transform is what an element looks like right now: committed state with
// any in-flight gesture applied on top.
type Transform struct {
	Position fyne.Position
	Size     fyne.Size
	Scale    float32
	Rotation float32
	FontSize float32
}

type panState struct {
	active   bool
	base     fyne.Position
	delta    fyne.Delta
	moved    bool
	combined bool
}

type pinchState struct {
	active    bool
	baseScale float32
	baseSize  fyne.Size
	baseFont  float32
	factor    float32
}

type rotateState struct {
	active bool
	base   float32
	delta  float32
}

type editState struct {
	active bool
	text   string
	pos    fyne.Position
}

// Reconciler owns the gesture state of one element. Pan, pinch and rotate
// are independent axes and may be active at the same time. Methods are safe
// to call from any goroutine; no lock is held while the model, coordinator
// or keyboard is called.
type Reconciler struct {
	id   string
	kind state.Kind

	model *state.Model
	sel   *selection.Coordinator
	kb    Keyboard
	opts  Options

	mu    sync.Mutex
	pan   panState
	pinch pinchState
	rot   rotateState
	edit  editState
}

// New returns a reconciler for the element id. kb may be nil.
func New(id string, m *state.Model, sel *selection.Coordinator, kb Keyboard, opts Options) (*Reconciler, error) {
	e, ok := m.Element(id)
	if !ok {
		return nil, fmt.Errorf("new reconciler %s: %w", id, state.ErrUnknownElement)
	}
	return &Reconciler{id: id, kind: e.Kind(), model: m, sel: sel, kb: kb, opts: opts}, nil
}

func (r *Reconciler) log() *slog.Logger {
	return applog.WithComponent("gesture").With(slog.String("id", r.id))
}

// ID returns the element id.
func (r *Reconciler) ID() string { return r.id }

func (r *Reconciler) threshold() float32 {
	if r.kind == state.KindText {
		return r.opts.TextDragThreshold
	}
	return r.opts.MediaDragThreshold
}

func (r *Reconciler) clampScale(v float32) float32 {
	return min(max(v, r.opts.MinScale), r.opts.MaxScale)
}

// enabled reports whether the recognizers may start: the element must be
// selected and not in edit mode.
func (r *Reconciler) enabled() bool {
	if !r.sel.IsSelected(r.id) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.edit.active
}

// commit is the only path from transient state into the model.
func (r *Reconciler) commit(reason string, p state.Patch) (state.Element, error) {
	e, err := r.model.Update(r.id, p)
	if err != nil {
		r.log().Warn("commit failed", slog.String("reason", reason), slog.Any("err", err))
		return state.Element{}, err
	}
	r.log().Debug("committed", slog.String("reason", reason))
	return e, nil
}

func (r *Reconciler) committed() (state.Element, bool) {
	return r.model.Element(r.id)
}

func length(d fyne.Delta) float32 {
	return float32(math.Hypot(float64(d.DX), float64(d.DY)))
}

func validFactor(f float32) bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func validAngle(a float32) bool {
	v := float64(a)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// PanStart begins a drag. The baseline is the committed position.
func (r *Reconciler) PanStart() bool {
	if !r.enabled() {
		return false
	}
	e, ok := r.committed()
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pan = panState{
		active:   true,
		base:     e.Position,
		combined: r.pinch.active || r.rot.active,
	}
	return true
}

// PanMove reports the cumulative translation since PanStart.
func (r *Reconciler) PanMove(translation fyne.Delta) {
	if !validAngle(translation.DX) || !validAngle(translation.DY) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pan.active {
		return
	}
	r.pan.delta = translation
	if !r.pan.moved && length(translation) > r.threshold() {
		r.pan.moved = true
	}
}

// PanEnd finishes a drag. Beyond the threshold the final position is
// committed once; below it the transient offset is dropped, and for text
// the touch becomes an edit request.
func (r *Reconciler) PanEnd() Outcome {
	r.mu.Lock()
	p := r.pan
	r.pan = panState{}
	r.mu.Unlock()
	if !p.active {
		return Ignored
	}

	if length(p.delta) <= r.threshold() {
		if r.kind == state.KindText && !p.combined {
			if r.BeginEdit() {
				return EditRequested
			}
		}
		return Discarded
	}

	final := p.base.Add(p.delta)
	patch := state.Patch{X: state.Ptr(final.X), Y: state.Ptr(final.Y)}
	if e, ok := r.committed(); ok {
		if t, isText := e.Text(); isText {
			patch.Text = state.Ptr(t.Text)
		}
	}
	if _, err := r.commit("pan", patch); err != nil {
		return Discarded
	}
	return Committed
}

// PinchStart begins a pinch, capturing scale, size and font size.
func (r *Reconciler) PinchStart() bool {
	if !r.enabled() {
		return false
	}
	e, ok := r.committed()
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pinch = pinchState{
		active:    true,
		baseScale: e.Scale,
		baseSize:  e.Size,
		factor:    1,
	}
	if t, isText := e.Text(); isText {
		r.pinch.baseFont = t.FontSize
	}
	if r.pan.active {
		r.pan.combined = true
	}
	return true
}

// PinchMove reports the pinch factor relative to PinchStart. Non-finite or
// non-positive factors are ignored.
func (r *Reconciler) PinchMove(factor float32) {
	if !validFactor(factor) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pinch.active {
		r.pinch.factor = factor
	}
}

// PinchEnd commits the final scale, and the size (image, shape) or clamped
// font size (text).
func (r *Reconciler) PinchEnd() Outcome {
	r.mu.Lock()
	p := r.pinch
	r.pinch = pinchState{}
	r.mu.Unlock()
	if !p.active {
		return Ignored
	}

	patch := state.Patch{Scale: state.Ptr(r.clampScale(p.baseScale * p.factor))}
	switch r.kind {
	case state.KindText:
		patch.FontSize = state.Ptr(state.ClampFontSize(p.baseFont * p.factor))
	case state.KindImage, state.KindShape:
		patch.Width = state.Ptr(p.baseSize.Width * p.factor)
		patch.Height = state.Ptr(p.baseSize.Height * p.factor)
	default:
		panic(fmt.Sprintf("gesture: unhandled kind %q", r.kind))
	}
	if _, err := r.commit("pinch", patch); err != nil {
		return Discarded
	}
	return Committed
}

// RotateStart begins a rotation from the committed angle.
func (r *Reconciler) RotateStart() bool {
	if !r.enabled() {
		return false
	}
	e, ok := r.committed()
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rot = rotateState{active: true, base: e.Rotation}
	if r.pan.active {
		r.pan.combined = true
	}
	return true
}

// RotateMove reports the cumulative rotation in radians since RotateStart.
func (r *Reconciler) RotateMove(delta float32) {
	if !validAngle(delta) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rot.active {
		r.rot.delta = delta
	}
}

// RotateEnd commits the final angle. Angles accumulate without wrapping.
func (r *Reconciler) RotateEnd() Outcome {
	r.mu.Lock()
	p := r.rot
	r.rot = rotateState{}
	r.mu.Unlock()
	if !p.active {
		return Ignored
	}
	if _, err := r.commit("rotate", state.Patch{Rotation: state.Ptr(p.base + p.delta)}); err != nil {
		return Discarded
	}
	return Committed
}

// Cancel drops every in-flight gesture without committing.
func (r *Reconciler) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pan = panState{}
	r.pinch = pinchState{}
	r.rot = rotateState{}
}

// Active reports whether any recognizer is mid-gesture.
func (r *Reconciler) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pan.active || r.pinch.active || r.rot.active
}

// Transient returns the committed transform with in-flight gestures applied.
// ok is false once the element has been removed.
func (r *Reconciler) Transient() (t Transform, ok bool) {
	e, ok := r.committed()
	if !ok {
		return Transform{}, false
	}
	t = Transform{Position: e.Position, Size: e.Size, Scale: e.Scale, Rotation: e.Rotation}
	if tc, isText := e.Text(); isText {
		t.FontSize = tc.FontSize
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.edit.active {
		t.Position = r.edit.pos
	}
	if r.pan.active && r.pan.moved {
		t.Position = r.pan.base.Add(r.pan.delta)
	}
	if r.pinch.active {
		t.Scale = r.clampScale(r.pinch.baseScale * r.pinch.factor)
		if r.kind == state.KindText {
			t.FontSize = r.pinch.baseFont * r.pinch.factor
		}
	}
	if r.rot.active {
		t.Rotation = r.rot.base + r.rot.delta
	}
	return t, true
}

// Tap selects an unselected element, or asks a selected text element to
// enter edit mode. Selecting re-commits the current transform and content
// so that selection itself never moves or resets the element.
func (r *Reconciler) Tap() Outcome {
	if r.sel.Capturing() || r.Editing() {
		return Ignored
	}
	if r.sel.IsSelected(r.id) {
		if r.kind == state.KindText {
			if r.BeginEdit() {
				return EditRequested
			}
			return Ignored
		}
		return NoOp
	}

	out := Ignored
	r.guard("select", func() error {
		t, ok := r.Transient()
		if !ok {
			return ErrGone
		}
		if err := r.sel.Select(r.id); err != nil {
			return err
		}
		patch := state.Patch{X: state.Ptr(t.Position.X), Y: state.Ptr(t.Position.Y)}
		if e, ok := r.committed(); ok {
			if tc, isText := e.Text(); isText {
				patch.Text = state.Ptr(tc.Text)
			}
		}
		if _, err := r.commit("select", patch); err != nil {
			return err
		}
		out = Selected
		return nil
	})
	return out
}

// Editing reports whether the element is in text edit mode.
func (r *Reconciler) Editing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.edit.active
}

// EditText returns the scratch text of the current edit session.
func (r *Reconciler) EditText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.edit.text
}

// BeginEdit puts a selected text element into edit mode: the current text
// and position are copied to scratch state, in-flight gestures are dropped
// and the keyboard is shown. It reports whether edit mode was entered.
func (r *Reconciler) BeginEdit() bool {
	return r.guard("begin edit", func() error {
		if r.kind != state.KindText {
			return ErrNotText
		}
		if r.model.Selected() != r.id {
			return ErrNotSelected
		}
		e, ok := r.committed()
		if !ok {
			return ErrGone
		}
		tc, _ := e.Text()

		r.mu.Lock()
		if r.edit.active {
			r.mu.Unlock()
			return nil
		}
		r.edit = editState{active: true, text: tc.Text, pos: e.Position}
		r.pan = panState{}
		r.pinch = pinchState{}
		r.rot = rotateState{}
		r.mu.Unlock()

		if r.kb != nil {
			if err := r.kb.Show(r.id, tc.Text); err != nil {
				return fmt.Errorf("show keyboard: %w", err)
			}
		}
		r.sel.KeyboardShown(r.id)
		return nil
	})
}

// SetText replaces the scratch text while editing.
func (r *Reconciler) SetText(text string) {
	r.guard("text change", func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.edit.active {
			r.edit.text = text
		}
		return nil
	})
}

// EndEdit leaves edit mode: the text is trimmed (empty becomes the
// placeholder), the keyboard is dismissed, text and position are committed
// together and the element is re-selected. Calls outside edit mode do
// nothing and report false.
func (r *Reconciler) EndEdit() bool {
	r.mu.Lock()
	ed := r.edit
	r.mu.Unlock()
	if !ed.active {
		return false
	}

	return r.guard("end edit", func() error {
		text := strings.TrimSpace(ed.text)
		if text == "" {
			text = state.Placeholder
		}

		if r.kb != nil {
			r.kb.Dismiss()
		}
		r.sel.KeyboardHidden()

		r.mu.Lock()
		r.edit = editState{}
		r.mu.Unlock()

		_, err := r.commit("edit", state.Patch{
			Text: state.Ptr(text),
			X:    state.Ptr(ed.pos.X),
			Y:    state.Ptr(ed.pos.Y),
		})
		if err != nil {
			return err
		}
		return r.sel.Select(r.id)
	})
}

// guard runs fn, absorbing errors and panics. On failure edit mode is
// forced off and the keyboard released; selection is left as is.
func (r *Reconciler) guard(op string, fn func() error) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log().Error("gesture handler panicked", slog.String("op", op), slog.Any("panic", rec))
			r.fallback()
			ok = false
		}
	}()
	if err := fn(); err != nil {
		r.log().Warn("gesture handler failed", slog.String("op", op), slog.Any("err", err))
		r.fallback()
		return false
	}
	return true
}

func (r *Reconciler) fallback() {
	r.mu.Lock()
	wasEditing := r.edit.active
	r.edit = editState{}
	r.mu.Unlock()
	if !wasEditing {
		return
	}
	if r.sel.Editing() == r.id {
		r.sel.KeyboardHidden()
	}
	if r.kb != nil {
		r.kb.Dismiss()
	}
}
