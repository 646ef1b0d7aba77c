// Package render rasterizes a surface in software. It is the snapshot
// primitive used by capture and by the mirror's snapshot endpoint.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"net/url"
	"os"
	"sync"

	"fyne.io/fyne/v2"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	_ "golang.org/x/image/webp"

	"CanvasBoard/internal/applog"
	"CanvasBoard/internal/state"
	"CanvasBoard/internal/surface"
)

var ErrUnsupportedURI = errors.New("render: unsupported image uri")

var (
	selectionColor   = color.NRGBA{R: 47, G: 128, B: 237, A: 255}
	placeholderColor = color.NRGBA{R: 220, G: 220, B: 220, A: 255}
)

// Scene is what the renderer draws: views bottom to top.
type Scene interface {
	Views() []surface.View
}

type faceKey struct {
	mono bool
	bold bool
	size float64
}

// Renderer draws a Scene with fogleman/gg.
type Renderer struct {
	scene      Scene
	Background color.Color

	// drawing serializes Draw; truetype faces are not safe for concurrent use.
	drawing sync.Mutex

	mu     sync.Mutex
	images map[string]image.Image
	fonts  map[faceKey]font.Face
}

// New returns a renderer over scene.
func New(scene Scene) *Renderer {
	return &Renderer{
		scene:      scene,
		Background: color.White,
		images:     make(map[string]image.Image),
		fonts:      make(map[faceKey]font.Face),
	}
}

func (r *Renderer) log() *slog.Logger {
	return applog.WithComponent("render")
}

// Snapshot draws the scene at size.
func (r *Renderer) Snapshot(ctx context.Context, size fyne.Size) (image.Image, error) {
	return r.Draw(ctx, r.scene.Views(), size)
}

// Draw rasterizes views onto a fresh canvas of the given size.
func (r *Renderer) Draw(ctx context.Context, views []surface.View, size fyne.Size) (image.Image, error) {
	w, h := int(math.Round(float64(size.Width))), int(math.Round(float64(size.Height)))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("render: degenerate size %vx%v", size.Width, size.Height)
	}
	r.drawing.Lock()
	defer r.drawing.Unlock()

	dc := gg.NewContext(w, h)
	dc.SetColor(r.Background)
	dc.Clear()

	for _, v := range views {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.drawView(dc, v)
	}
	return dc.Image(), nil
}

// visualFactor is the live pinch preview for images and shapes, whose
// committed size already includes earlier pinches.
func visualFactor(v surface.View) float64 {
	if v.Element.Kind() == state.KindText || v.Element.Scale <= 0 {
		return 1
	}
	return float64(v.Transform.Scale / v.Element.Scale)
}

func (r *Renderer) drawView(dc *gg.Context, v surface.View) {
	t := v.Transform
	w, h := float64(t.Size.Width), float64(t.Size.Height)

	dc.Push()
	defer dc.Pop()
	dc.Translate(float64(t.Position.X)+w/2, float64(t.Position.Y)+h/2)
	dc.Rotate(float64(t.Rotation))
	f := visualFactor(v)
	dc.Scale(f, f)

	switch c := v.Element.Content.(type) {
	case state.ShapeContent:
		drawShape(dc, c, w, h)
	case state.ImageContent:
		r.drawImage(dc, c, w, h)
	case state.TextContent:
		text := c.DisplayText()
		if v.Editing {
			text = v.EditText
		}
		r.drawText(dc, c, text, float64(t.FontSize), w, h)
	default:
		panic(fmt.Sprintf("render: unhandled content %T", c))
	}

	if v.Selected {
		dc.SetColor(selectionColor)
		dc.SetLineWidth(2 / f)
		dc.SetDash(6/f, 4/f)
		dc.DrawRectangle(-w/2-2, -h/2-2, w+4, h+4)
		dc.Stroke()
		dc.SetDash()
	}
}

func drawShape(dc *gg.Context, c state.ShapeContent, w, h float64) {
	dc.SetColor(ColorOr(c.Color, Palette["black"]))
	switch c.Shape {
	case state.ShapeCircle:
		dc.DrawEllipse(0, 0, w/2, h/2)
	case state.ShapeTriangle:
		dc.MoveTo(0, -h/2)
		dc.LineTo(w/2, h/2)
		dc.LineTo(-w/2, h/2)
		dc.ClosePath()
	case state.ShapeStar:
		outer := math.Min(w, h) / 2
		inner := outer * 0.4
		for i := range 10 {
			rad := outer
			if i%2 == 1 {
				rad = inner
			}
			a := -math.Pi/2 + float64(i)*math.Pi/5
			x, y := rad*math.Cos(a), rad*math.Sin(a)
			if i == 0 {
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		}
		dc.ClosePath()
	default:
		dc.DrawRectangle(-w/2, -h/2, w, h)
	}
	dc.Fill()
}

func (r *Renderer) drawImage(dc *gg.Context, c state.ImageContent, w, h float64) {
	src, err := r.image(c.URI)
	if err != nil {
		r.log().Warn("image unavailable", slog.String("uri", c.URI), slog.Any("err", err))
		dc.SetColor(placeholderColor)
		dc.DrawRectangle(-w/2, -h/2, w, h)
		dc.Fill()
		dc.SetColor(color.Gray{Y: 150})
		dc.SetLineWidth(1)
		dc.DrawLine(-w/2, -h/2, w/2, h/2)
		dc.DrawLine(w/2, -h/2, -w/2, h/2)
		dc.Stroke()
		return
	}
	pw, ph := uint(math.Max(1, math.Round(w))), uint(math.Max(1, math.Round(h)))
	scaled := resize.Resize(pw, ph, src, resize.Bilinear)
	dc.DrawImageAnchored(scaled, 0, 0, 0.5, 0.5)
}

// image returns the decoded image at uri, caching it by uri.
func (r *Renderer) image(uri string) (image.Image, error) {
	r.mu.Lock()
	img, ok := r.images[uri]
	r.mu.Unlock()
	if ok {
		return img, nil
	}

	path, err := localPath(uri)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	img, _, err = image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}

	r.mu.Lock()
	r.images[uri] = img
	r.mu.Unlock()
	return img, nil
}

// localPath resolves a file:// URL or a bare path.
func localPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return uri, nil
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedURI, uri)
	}
	return u.Path, nil
}

func (r *Renderer) drawText(dc *gg.Context, c state.TextContent, text string, size, w, h float64) {
	face, err := r.face(c.FontFamily == "mono", c.FontStyle == state.FontBold, size)
	if err != nil {
		r.log().Error("font unavailable", slog.Any("err", err))
		return
	}
	dc.SetFontFace(face)
	dc.SetColor(ColorOr(c.Color, Palette["black"]))
	dc.DrawStringWrapped(text, 0, 0, 0.5, 0.5, w, 1.2, gg.AlignCenter)
}

func (r *Renderer) face(mono, bold bool, size float64) (font.Face, error) {
	if size <= 0 {
		size = state.DefaultFontSize
	}
	key := faceKey{mono: mono, bold: bold, size: math.Round(size*4) / 4}
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.fonts[key]; ok {
		return f, nil
	}

	var ttf []byte
	switch {
	case mono && bold:
		ttf = gomonobold.TTF
	case mono:
		ttf = gomono.TTF
	case bold:
		ttf = gobold.TTF
	default:
		ttf = goregular.TTF
	}
	parsed, err := truetype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	f := truetype.NewFace(parsed, &truetype.Options{Size: key.size, DPI: 72, Hinting: font.HintingFull})
	r.fonts[key] = f
	return f, nil
}
