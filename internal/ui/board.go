package ui

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"math"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"CanvasBoard/internal/applog"
	"CanvasBoard/internal/gesture"
	"CanvasBoard/internal/render"
	"CanvasBoard/internal/state"
	"CanvasBoard/internal/surface"
)

// primaryPointer is the tracker id used for the mouse.
const primaryPointer = 1

// BoardWidget shows a surface and turns mouse input into gestures: a
// primary press, drag and release go through the element's tracker, the
// secondary button rotates, and the wheel pinches.
type BoardWidget struct {
	widget.BaseWidget

	surface  *surface.Surface
	renderer *render.Renderer
	kb       *entryKeyboard
	readOnly bool

	tracker *gesture.Tracker
	active  string
	bgDown  bool

	rotator   *gesture.Reconciler
	rotCenter fyne.Position
	rotLast   float64
	rotTurned float64

	// OnOutcome is told what each finished gesture did.
	OnOutcome func(id string, out gesture.Outcome)

	cancelSub func()
}

var (
	_ fyne.Widget       = (*BoardWidget)(nil)
	_ fyne.Draggable    = (*BoardWidget)(nil)
	_ fyne.Scrollable   = (*BoardWidget)(nil)
	_ desktop.Mouseable = (*BoardWidget)(nil)
	_ desktop.Hoverable = (*BoardWidget)(nil)
)

// NewBoardWidget returns a board over s drawn by r. A read-only board
// ignores input.
func NewBoardWidget(s *surface.Surface, r *render.Renderer, readOnly bool) *BoardWidget {
	b := &BoardWidget{surface: s, renderer: r, readOnly: readOnly}
	b.kb = newEntryKeyboard(b)
	if !readOnly {
		s.SetKeyboard(b.kb)
	}
	b.cancelSub = s.Model().Subscribe(b.onChange)
	b.ExtendBaseWidget(b)
	return b
}

func (b *BoardWidget) onChange(c state.Change) {
	fyne.Do(func() {
		if c.Type == state.ChangeRemove && c.ID == b.kb.Editing() {
			b.kb.Dismiss()
		}
		b.Refresh()
	})
}

// Close detaches the board from its model.
func (b *BoardWidget) Close() {
	b.cancelSub()
}

// Surface returns the surface shown.
func (b *BoardWidget) Surface() *surface.Surface { return b.surface }

func (b *BoardWidget) draw(w, h int) image.Image {
	size := b.Size()
	if size.Width <= 0 || size.Height <= 0 {
		size = b.surface.Size()
	}
	img, err := b.renderer.Draw(context.Background(), b.surface.Views(), size)
	if err != nil {
		applog.WithComponent("ui").Warn("board draw failed", slog.Any("err", err))
		return image.NewUniform(color.White)
	}
	return img
}

// hitTest returns the topmost view containing pos.
func hitTest(views []surface.View, pos fyne.Position) (surface.View, bool) {
	for i := len(views) - 1; i >= 0; i-- {
		v := views[i]
		t := v.Transform
		cx := float64(t.Position.X + t.Size.Width/2)
		cy := float64(t.Position.Y + t.Size.Height/2)
		dx, dy := float64(pos.X)-cx, float64(pos.Y)-cy

		sin, cos := math.Sincos(-float64(t.Rotation))
		lx, ly := dx*cos-dy*sin, dx*sin+dy*cos
		f := 1.0
		if v.Element.Kind() != state.KindText && v.Element.Scale > 0 {
			f = float64(t.Scale / v.Element.Scale)
		}
		if math.Abs(lx) <= float64(t.Size.Width)/2*f && math.Abs(ly) <= float64(t.Size.Height)/2*f {
			return v, true
		}
	}
	return surface.View{}, false
}

func (b *BoardWidget) hit(pos fyne.Position) (surface.View, bool) {
	return hitTest(b.surface.Views(), pos)
}

func (b *BoardWidget) report(id string, out gesture.Outcome) {
	if out == gesture.Ignored {
		return
	}
	applog.WithComponent("ui").Debug("gesture finished", slog.String("id", id), slog.String("outcome", out.String()))
	if b.OnOutcome != nil {
		b.OnOutcome(id, out)
	}
}

// MouseDown starts a pan or tap on the element under the pointer, a
// rotation with the secondary button, or a background tap.
func (b *BoardWidget) MouseDown(e *desktop.MouseEvent) {
	if b.readOnly {
		return
	}
	v, ok := b.hit(e.Position)
	switch e.Button {
	case desktop.MouseButtonPrimary:
		if !ok {
			b.bgDown = true
			return
		}
		t, err := b.surface.Tracker(v.Element.ID)
		if err != nil {
			return
		}
		b.tracker, b.active = t, v.Element.ID
		t.Down(primaryPointer, e.Position)
	case desktop.MouseButtonSecondary:
		if !ok {
			return
		}
		r, err := b.surface.Reconciler(v.Element.ID)
		if err != nil || !r.RotateStart() {
			return
		}
		b.rotator = r
		b.rotCenter = fyne.NewPos(v.Transform.Position.X+v.Transform.Size.Width/2, v.Transform.Position.Y+v.Transform.Size.Height/2)
		b.rotLast = angle(b.rotCenter, e.Position)
		b.rotTurned = 0
	}
	b.Refresh()
}

// MouseUp ends whatever MouseDown started.
func (b *BoardWidget) MouseUp(e *desktop.MouseEvent) {
	if b.readOnly {
		return
	}
	switch e.Button {
	case desktop.MouseButtonPrimary:
		if b.bgDown {
			b.bgDown = false
			if _, ok := b.hit(e.Position); !ok {
				b.surface.BackgroundTap()
			}
		}
		b.endPrimary()
	case desktop.MouseButtonSecondary:
		b.endRotate()
	}
	b.Refresh()
}

// Dragged moves the primary pointer, or turns an active rotation.
func (b *BoardWidget) Dragged(e *fyne.DragEvent) {
	if b.readOnly {
		return
	}
	b.bgDown = false
	if b.tracker != nil {
		b.tracker.Move(primaryPointer, e.Position)
	}
	b.rotate(e.Position)
	b.Refresh()
}

// DragEnd finishes a drag whose release landed outside the board.
func (b *BoardWidget) DragEnd() {
	if b.readOnly {
		return
	}
	b.endPrimary()
	b.endRotate()
	b.Refresh()
}

// Scrolled pinches the element under the pointer by one wheel step.
func (b *BoardWidget) Scrolled(e *fyne.ScrollEvent) {
	if b.readOnly {
		return
	}
	v, ok := b.hit(e.Position)
	if !ok {
		return
	}
	r, err := b.surface.Reconciler(v.Element.ID)
	if err != nil || !r.PinchStart() {
		return
	}
	r.PinchMove(wheelFactor(e.Scrolled.DY))
	b.report(v.Element.ID, r.PinchEnd())
	b.Refresh()
}

func (b *BoardWidget) MouseIn(*desktop.MouseEvent) {}

// MouseMoved turns a secondary-button rotation, which drivers do not
// report as a drag.
func (b *BoardWidget) MouseMoved(e *desktop.MouseEvent) {
	if b.rotator == nil {
		return
	}
	b.rotate(e.Position)
	b.Refresh()
}

func (b *BoardWidget) MouseOut() {}

func (b *BoardWidget) endPrimary() {
	if b.tracker == nil {
		return
	}
	t, id := b.tracker, b.active
	b.tracker, b.active = nil, ""
	b.report(id, t.Up(primaryPointer))
}

func (b *BoardWidget) rotate(pos fyne.Position) {
	if b.rotator != nil {
		a := angle(b.rotCenter, pos)
		b.rotTurned += gesture.WrapAngle(a - b.rotLast)
		b.rotLast = a
		b.rotator.RotateMove(float32(b.rotTurned))
	}
}

func (b *BoardWidget) endRotate() {
	if b.rotator == nil {
		return
	}
	r := b.rotator
	b.rotator = nil
	b.report(r.ID(), r.RotateEnd())
}

func angle(center, p fyne.Position) float64 {
	return math.Atan2(float64(p.Y-center.Y), float64(p.X-center.X))
}

// wheelFactor maps a wheel delta to a pinch factor; one notch is about 5%.
func wheelFactor(dy float32) float32 {
	return min(max(1+dy/200, 0.5), 2)
}

func (b *BoardWidget) CreateRenderer() fyne.WidgetRenderer {
	r := &boardRenderer{board: b}
	r.raster = canvas.NewRaster(b.draw)
	return r
}

type boardRenderer struct {
	board  *BoardWidget
	raster *canvas.Raster
}

func (r *boardRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.raster, r.board.kb.entry}
}

func (r *boardRenderer) Refresh() {
	r.board.kb.layout()
	canvas.Refresh(r.raster)
}

func (r *boardRenderer) Layout(size fyne.Size) {
	r.raster.Resize(size)
	r.board.surface.SetLayout(size.Width, size.Height)
	r.board.kb.layout()
}

func (r *boardRenderer) MinSize() fyne.Size {
	return fyne.NewSize(300, 300)
}

func (r *boardRenderer) Destroy() {}
