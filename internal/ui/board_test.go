package ui

import (
	"math"
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/widget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CanvasBoard/internal/gesture"
	"CanvasBoard/internal/render"
	"CanvasBoard/internal/selection"
	"CanvasBoard/internal/state"
	"CanvasBoard/internal/surface"
)

func newBoard(t *testing.T) *BoardWidget {
	t.Helper()
	test.NewTempApp(t)
	m := state.NewModel()
	s := surface.New(m, selection.NewCoordinator(m), state.NewLayout(fyne.NewSize(360, 640)), surface.Options{
		Gesture:      gesture.DefaultOptions(),
		SettleDelay:  time.Millisecond,
		RestoreDelay: time.Millisecond,
		ShapeColor:   "blue",
	})
	t.Cleanup(s.Close)
	b := NewBoardWidget(s, render.New(s), false)
	t.Cleanup(b.Close)
	w := test.NewWindow(b)
	t.Cleanup(w.Close)
	return b
}

func mouse(p fyne.Position, btn desktop.MouseButton) *desktop.MouseEvent {
	return &desktop.MouseEvent{PointEvent: fyne.PointEvent{Position: p}, Button: btn}
}

func center(e state.Element) fyne.Position {
	return fyne.NewPos(e.Position.X+e.Size.Width/2, e.Position.Y+e.Size.Height/2)
}

func element(t *testing.T, b *BoardWidget, id string) state.Element {
	t.Helper()
	e, ok := b.surface.Model().Element(id)
	require.True(t, ok)
	return e
}

func TestHitTest(t *testing.T) {
	low := state.NewElement(state.ShapeContent{Shape: state.ShapeCircle}, fyne.NewPos(0, 0), fyne.NewSize(100, 100))
	high := state.NewElement(state.ImageContent{URI: "a"}, fyne.NewPos(50, 0), fyne.NewSize(100, 20))
	high.Rotation = math.Pi / 2
	views := []surface.View{
		{Element: low, Transform: gesture.Transform{Position: low.Position, Size: low.Size, Scale: 1}},
		{Element: high, Transform: gesture.Transform{Position: high.Position, Size: high.Size, Scale: 1, Rotation: high.Rotation}},
	}

	v, ok := hitTest(views, fyne.NewPos(100, 50))
	require.True(t, ok)
	assert.Equal(t, high.ID, v.Element.ID, "rotated bar now stands upright over the circle")

	v, ok = hitTest(views, fyne.NewPos(20, 10))
	require.True(t, ok)
	assert.Equal(t, low.ID, v.Element.ID)

	v, ok = hitTest(views, fyne.NewPos(140, 10))
	assert.False(t, ok, "outside the rotated bar: %v", v.Element.ID)
}

func TestWheelFactor(t *testing.T) {
	assert.InDelta(t, 1.05, wheelFactor(10), 1e-6)
	assert.InDelta(t, 0.95, wheelFactor(-10), 1e-6)
	assert.Equal(t, float32(2), wheelFactor(1000))
	assert.Equal(t, float32(0.5), wheelFactor(-1000))
}

func TestClickSelectsThenDragMoves(t *testing.T) {
	b := newBoard(t)
	e, err := b.surface.AddShape(state.ShapeCircle)
	require.NoError(t, err)
	b.surface.BackgroundTap()
	c := center(e)

	var outcomes []gesture.Outcome
	b.OnOutcome = func(_ string, out gesture.Outcome) { outcomes = append(outcomes, out) }

	b.MouseDown(mouse(c, desktop.MouseButtonPrimary))
	b.MouseUp(mouse(c, desktop.MouseButtonPrimary))
	assert.Equal(t, e.ID, b.surface.Selection().Selected())

	b.MouseDown(mouse(c, desktop.MouseButtonPrimary))
	to := c.Add(fyne.NewDelta(40, 5))
	b.Dragged(&fyne.DragEvent{PointEvent: fyne.PointEvent{Position: to}, Dragged: fyne.NewDelta(40, 5)})
	b.DragEnd()
	b.MouseUp(mouse(to, desktop.MouseButtonPrimary))

	assert.Equal(t, e.Position.Add(fyne.NewDelta(40, 5)), element(t, b, e.ID).Position)
	assert.Equal(t, []gesture.Outcome{gesture.Selected, gesture.Committed}, outcomes)
}

func TestBackgroundClickClearsSelection(t *testing.T) {
	b := newBoard(t)
	e, err := b.surface.AddShape(state.ShapeStar)
	require.NoError(t, err)
	require.Equal(t, e.ID, b.surface.Selection().Selected())

	corner := fyne.NewPos(5, 5)
	b.MouseDown(mouse(corner, desktop.MouseButtonPrimary))
	b.MouseUp(mouse(corner, desktop.MouseButtonPrimary))
	assert.Equal(t, "", b.surface.Selection().Selected())
}

func TestWheelPinchesShape(t *testing.T) {
	b := newBoard(t)
	e, err := b.surface.AddShape(state.ShapeTriangle)
	require.NoError(t, err)

	b.Scrolled(&fyne.ScrollEvent{PointEvent: fyne.PointEvent{Position: center(e)}, Scrolled: fyne.NewDelta(0, 20)})
	got := element(t, b, e.ID)
	assert.InDelta(t, 1.1, got.Scale, 1e-5)
	assert.InDelta(t, 165, got.Size.Width, 1e-3)
}

func TestSecondaryButtonRotates(t *testing.T) {
	b := newBoard(t)
	e, err := b.surface.AddShape(state.ShapeStar)
	require.NoError(t, err)
	c := center(e)

	b.MouseDown(mouse(c.Add(fyne.NewDelta(50, 0)), desktop.MouseButtonSecondary))
	b.MouseMoved(mouse(c.Add(fyne.NewDelta(0, 50)), desktop.MouseButtonSecondary))
	b.MouseUp(mouse(c.Add(fyne.NewDelta(0, 50)), desktop.MouseButtonSecondary))

	assert.InDelta(t, math.Pi/2, element(t, b, e.ID).Rotation, 1e-5)
}

func TestReadOnlyBoardIgnoresInput(t *testing.T) {
	b := newBoard(t)
	e, err := b.surface.AddShape(state.ShapeCircle)
	require.NoError(t, err)
	b.readOnly = true

	b.Scrolled(&fyne.ScrollEvent{PointEvent: fyne.PointEvent{Position: center(e)}, Scrolled: fyne.NewDelta(0, 20)})
	b.MouseDown(mouse(fyne.NewPos(1, 1), desktop.MouseButtonPrimary))
	b.MouseUp(mouse(fyne.NewPos(1, 1), desktop.MouseButtonPrimary))

	assert.Equal(t, e, element(t, b, e.ID))
	assert.Equal(t, e.ID, b.surface.Selection().Selected())
}

func TestClickSelectedTextEditsThroughEntry(t *testing.T) {
	b := newBoard(t)
	e := b.surface.AddText("")
	c := center(e)

	b.MouseDown(mouse(c, desktop.MouseButtonPrimary))
	b.MouseUp(mouse(c, desktop.MouseButtonPrimary))

	require.Equal(t, e.ID, b.kb.Editing())
	assert.True(t, b.kb.entry.Visible())
	assert.Equal(t, state.Placeholder, b.kb.entry.Text)
	assert.True(t, b.surface.Selection().KeyboardVisible())

	b.kb.entry.SetText("  Hello ")
	require.True(t, b.kb.Submit())

	got, ok := element(t, b, e.ID).Text()
	require.True(t, ok)
	assert.Equal(t, "Hello", got.Text)
	assert.Equal(t, e.Position, element(t, b, e.ID).Position)
	assert.False(t, b.kb.entry.Visible())
	assert.False(t, b.surface.Selection().KeyboardVisible())
	assert.Equal(t, e.ID, b.surface.Selection().Selected())
}

func TestSessionRecolours(t *testing.T) {
	b := newBoard(t)
	s := &session{board: b, surface: b.surface, status: widget.NewLabel("")}

	shape, err := b.surface.AddShape(state.ShapeCircle)
	require.NoError(t, err)
	s.setColor("red")
	assert.Equal(t, "red", element(t, b, shape.ID).Content.(state.ShapeContent).Color)

	img, ok := b.surface.AddImage("file:///a.png")
	require.True(t, ok)
	s.setColor("green")
	assert.Equal(t, state.ImageContent{URI: "file:///a.png"}, element(t, b, img.ID).Content)

	txt := b.surface.AddText("t")
	s.setBold(true)
	tc, _ := element(t, b, txt.ID).Text()
	assert.Equal(t, state.FontBold, tc.FontStyle)
}

func TestSessionAddShapeCycles(t *testing.T) {
	b := newBoard(t)
	s := &session{board: b, surface: b.surface, status: widget.NewLabel("")}
	for range len(state.Shapes) + 1 {
		s.addShape()
	}
	var kinds []state.ShapeKind
	for _, e := range b.surface.Model().Elements() {
		kinds = append(kinds, e.Content.(state.ShapeContent).Shape)
	}
	assert.Equal(t, append(append([]state.ShapeKind{}, state.Shapes...), state.Shapes[0]), kinds)
}

func TestClickOtherElementEndsTextEdit(t *testing.T) {
	b := newBoard(t)
	shape, err := b.surface.AddShape(state.ShapeCircle)
	require.NoError(t, err)
	txt := b.surface.AddText("x")
	require.NoError(t, b.surface.Selection().Select(txt.ID))

	tc := center(txt)
	b.MouseDown(mouse(tc, desktop.MouseButtonPrimary))
	b.MouseUp(mouse(tc, desktop.MouseButtonPrimary))
	require.Equal(t, txt.ID, b.kb.Editing())

	// Circle sits under the text in the middle; click its lower edge.
	sc := fyne.NewPos(center(shape).X, shape.Position.Y+shape.Size.Height-10)
	b.MouseDown(mouse(sc, desktop.MouseButtonPrimary))
	b.MouseUp(mouse(sc, desktop.MouseButtonPrimary))

	assert.Equal(t, shape.ID, b.surface.Selection().Selected())
	assert.False(t, b.surface.Selection().KeyboardVisible())
	assert.False(t, b.kb.entry.Visible())
}

func TestSecondaryRotateAcrossBranchCut(t *testing.T) {
	b := newBoard(t)
	e, err := b.surface.AddShape(state.ShapeStar)
	require.NoError(t, err)
	c := center(e)

	from := c.Add(fyne.NewDelta(-50, -5))
	to := c.Add(fyne.NewDelta(-50, 5))
	b.MouseDown(mouse(from, desktop.MouseButtonSecondary))
	b.MouseMoved(mouse(c.Add(fyne.NewDelta(-50, 0)), desktop.MouseButtonSecondary))
	b.MouseMoved(mouse(to, desktop.MouseButtonSecondary))
	b.MouseUp(mouse(to, desktop.MouseButtonSecondary))

	want := -2 * math.Atan2(5, 50)
	assert.InDelta(t, want, element(t, b, e.ID).Rotation, 1e-4)
}
