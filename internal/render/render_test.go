package render

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"fyne.io/fyne/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CanvasBoard/internal/gesture"
	"CanvasBoard/internal/state"
	"CanvasBoard/internal/surface"
)

type sceneFunc func() []surface.View

func (f sceneFunc) Views() []surface.View { return f() }

func viewOf(e state.Element) surface.View {
	v := surface.View{
		Element:   e,
		Transform: gesture.Transform{Position: e.Position, Size: e.Size, Scale: e.Scale, Rotation: e.Rotation},
	}
	if tc, ok := e.Text(); ok {
		v.Transform.FontSize = tc.FontSize
	}
	return v
}

func at(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func isWhite(c color.NRGBA) bool {
	return c.R == 255 && c.G == 255 && c.B == 255
}

func TestDrawShapeInPlace(t *testing.T) {
	e := state.NewElement(state.ShapeContent{Shape: state.ShapeCircle, Color: "red"}, fyne.NewPos(50, 50), fyne.NewSize(100, 100))
	r := New(sceneFunc(func() []surface.View { return []surface.View{viewOf(e)} }))

	img, err := r.Snapshot(context.Background(), fyne.NewSize(200, 200))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 200), img.Bounds())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, at(img, 100, 100))
	assert.True(t, isWhite(at(img, 2, 2)))
	assert.True(t, isWhite(at(img, 55, 55)), "outside the circle")
}

func TestDrawStackingOrder(t *testing.T) {
	bottom := state.NewElement(state.ShapeContent{Shape: state.ShapeTriangle, Color: "blue"}, fyne.NewPos(0, 0), fyne.NewSize(100, 100))
	top := state.NewElement(state.ShapeContent{Shape: state.ShapeCircle, Color: "green"}, fyne.NewPos(25, 25), fyne.NewSize(50, 50))
	r := New(nil)

	img, err := r.Draw(context.Background(), []surface.View{viewOf(bottom), viewOf(top)}, fyne.NewSize(100, 100))
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, at(img, 50, 50))
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, at(img, 50, 90))
}

func TestDrawImageFromFile(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			src.Set(x, y, color.NRGBA{G: 200, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "green.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	e := state.NewElement(state.ImageContent{URI: "file://" + filepath.ToSlash(path)}, fyne.NewPos(10, 10), fyne.NewSize(40, 40))
	img, err := New(nil).Draw(context.Background(), []surface.View{viewOf(e)}, fyne.NewSize(60, 60))
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{G: 200, A: 255}, at(img, 30, 30))
	assert.True(t, isWhite(at(img, 55, 55)))
}

func TestDrawMissingImageUsesPlaceholder(t *testing.T) {
	e := state.NewElement(state.ImageContent{URI: "/does/not/exist.png"}, fyne.NewPos(0, 0), fyne.NewSize(40, 40))
	img, err := New(nil).Draw(context.Background(), []surface.View{viewOf(e)}, fyne.NewSize(40, 40))
	require.NoError(t, err)
	assert.Equal(t, placeholderColor, at(img, 30, 20))
}

func TestDrawText(t *testing.T) {
	e := state.NewElement(state.NewText("Hello"), fyne.NewPos(0, 0), fyne.NewSize(200, 50))
	img, err := New(nil).Draw(context.Background(), []surface.View{viewOf(e)}, fyne.NewSize(200, 50))
	require.NoError(t, err)

	inked := 0
	for y := range 50 {
		for x := range 200 {
			if !isWhite(at(img, x, y)) {
				inked++
			}
		}
	}
	assert.Positive(t, inked)
}

func TestDrawRejectsDegenerateSize(t *testing.T) {
	_, err := New(nil).Draw(context.Background(), nil, fyne.NewSize(0, 10))
	assert.Error(t, err)
}

func TestDrawHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := state.NewElement(state.ShapeContent{Shape: state.ShapeStar}, fyne.NewPos(0, 0), fyne.NewSize(10, 10))
	_, err := New(nil).Draw(ctx, []surface.View{viewOf(e)}, fyne.NewSize(10, 10))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVisualFactor(t *testing.T) {
	e := state.NewElement(state.ShapeContent{Shape: state.ShapeStar}, fyne.NewPos(0, 0), fyne.NewSize(10, 10))
	v := viewOf(e)
	assert.Equal(t, 1.0, visualFactor(v))
	v.Transform.Scale = 1.5
	assert.InDelta(t, 1.5, visualFactor(v), 1e-6)

	txt := viewOf(state.NewElement(state.NewText("x"), fyne.NewPos(0, 0), state.DefaultTextSize))
	txt.Transform.Scale = 3
	assert.Equal(t, 1.0, visualFactor(txt))
}

func TestLocalPath(t *testing.T) {
	p, err := localPath("file:///tmp/a.png")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.png", p)

	p, err = localPath("photos/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, "photos/b.jpg", p)

	_, err = localPath("https://example.com/c.png")
	assert.ErrorIs(t, err, ErrUnsupportedURI)
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{in: "red", want: color.NRGBA{R: 255, A: 255}},
		{in: " Blue ", want: color.NRGBA{B: 255, A: 255}},
		{in: "#4a90d9", want: color.NRGBA{R: 0x4a, G: 0x90, B: 0xd9, A: 255}},
		{in: "#fff", want: color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
		{in: "#00000080", want: color.NRGBA{A: 0x80}},
		{in: "chartreuse", wantErr: true},
		{in: "#12345", wantErr: true},
		{in: "#gggggg", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadColor)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColorOr(t *testing.T) {
	assert.Equal(t, Palette["black"], ColorOr("nope", Palette["black"]))
	assert.Equal(t, color.NRGBA{R: 0x4a, G: 0x90, B: 0xd9, A: 0xff}, ColorOr("#4a90d9", Palette["black"]))
}
