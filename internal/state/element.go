package state

import (
	"encoding/json"
	"fmt"

	"fyne.io/fyne/v2"
	"github.com/google/uuid"
)

// Kind names an element variant.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindShape Kind = "shape"
)

// FontStyle is the weight a text element is drawn with.
type FontStyle string

const (
	FontNormal FontStyle = "normal"
	FontBold   FontStyle = "bold"
)

// ShapeKind is the outline a shape element is drawn with.
type ShapeKind string

const (
	ShapeCircle   ShapeKind = "circle"
	ShapeTriangle ShapeKind = "triangle"
	ShapeStar     ShapeKind = "star"
)

// Shapes lists every ShapeKind in toolbar order.
var Shapes = []ShapeKind{ShapeCircle, ShapeTriangle, ShapeStar}

const (
	Placeholder     = "Tap to edit"
	MinFontSize     = 8
	MaxFontSize     = 72
	DefaultFontSize = 24
	MinSide         = 1
)

// Default element sizes used by the add operations.
var (
	DefaultTextSize  = fyne.NewSize(200, 50)
	DefaultImageSize = fyne.NewSize(200, 200)
	DefaultShapeSize = fyne.NewSize(150, 150)
)

// Content is the variant-specific part of an element. The set of
// implementations is closed: TextContent, ImageContent and ShapeContent.
type Content interface {
	Kind() Kind
	isContent()
}

// TextContent is the payload of a text element.
type TextContent struct {
	Text       string    `json:"text"`
	FontSize   float32   `json:"font_size"`
	FontFamily string    `json:"font_family"`
	FontStyle  FontStyle `json:"font_style"`
	Color      string    `json:"color"`
}

// ImageContent is the payload of an image element. URI never changes.
type ImageContent struct {
	URI string `json:"uri"`
}

// ShapeContent is the payload of a shape element.
type ShapeContent struct {
	Shape ShapeKind `json:"shape"`
	Color string    `json:"color"`
}

func (TextContent) Kind() Kind  { return KindText }
func (ImageContent) Kind() Kind { return KindImage }
func (ShapeContent) Kind() Kind { return KindShape }

func (TextContent) isContent()  {}
func (ImageContent) isContent() {}
func (ShapeContent) isContent() {}

// DisplayText is the text to draw, with the placeholder standing in for
// an empty string.
func (t TextContent) DisplayText() string {
	if t.Text == "" {
		return Placeholder
	}
	return t.Text
}

// Element is one placed object on the canvas.
type Element struct {
	ID       string
	Position fyne.Position
	Size     fyne.Size
	Rotation float32
	Scale    float32
	Content  Content
}

// Kind reports the element's variant.
func (e Element) Kind() Kind {
	return e.Content.Kind()
}

// Text returns the text payload. ok is false for other variants.
func (e Element) Text() (TextContent, bool) {
	t, ok := e.Content.(TextContent)
	return t, ok
}

// NewElement builds an element with a fresh id and the default transform
// (no rotation, unit scale) at pos.
func NewElement(c Content, pos fyne.Position, size fyne.Size) Element {
	return Element{
		ID:       uuid.NewString(),
		Position: pos,
		Size:     size,
		Scale:    1,
		Content:  c,
	}
}

// NewText returns the payload for a new text element.
func NewText(text string) TextContent {
	return TextContent{
		Text:       text,
		FontSize:   DefaultFontSize,
		FontFamily: "sans",
		FontStyle:  FontNormal,
		Color:      "black",
	}
}

// ClampFontSize limits a font size to [MinFontSize, MaxFontSize].
func ClampFontSize(v float32) float32 {
	if v < MinFontSize {
		return MinFontSize
	}
	if v > MaxFontSize {
		return MaxFontSize
	}
	return v
}

// DefaultSize returns the add-operation size for a kind.
func DefaultSize(k Kind) fyne.Size {
	switch k {
	case KindText:
		return DefaultTextSize
	case KindImage:
		return DefaultImageSize
	case KindShape:
		return DefaultShapeSize
	}
	panic(fmt.Sprintf("state: unknown kind %q", k))
}

type elementJSON struct {
	ID       string          `json:"id"`
	Kind     Kind            `json:"kind"`
	X        float32         `json:"x"`
	Y        float32         `json:"y"`
	Width    float32         `json:"width"`
	Height   float32         `json:"height"`
	Rotation float32         `json:"rotation"`
	Scale    float32         `json:"scale"`
	Content  json.RawMessage `json:"content"`
}

func (e Element) MarshalJSON() ([]byte, error) {
	content, err := json.Marshal(e.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(elementJSON{
		ID:       e.ID,
		Kind:     e.Kind(),
		X:        e.Position.X,
		Y:        e.Position.Y,
		Width:    e.Size.Width,
		Height:   e.Size.Height,
		Rotation: e.Rotation,
		Scale:    e.Scale,
		Content:  content,
	})
}

func (e *Element) UnmarshalJSON(data []byte) error {
	var w elementJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var c Content
	switch w.Kind {
	case KindText:
		var t TextContent
		if err := json.Unmarshal(w.Content, &t); err != nil {
			return err
		}
		c = t
	case KindImage:
		var i ImageContent
		if err := json.Unmarshal(w.Content, &i); err != nil {
			return err
		}
		c = i
	case KindShape:
		var s ShapeContent
		if err := json.Unmarshal(w.Content, &s); err != nil {
			return err
		}
		c = s
	default:
		return fmt.Errorf("state: unknown element kind %q", w.Kind)
	}
	*e = Element{
		ID:       w.ID,
		Position: fyne.NewPos(w.X, w.Y),
		Size:     fyne.NewSize(w.Width, w.Height),
		Rotation: w.Rotation,
		Scale:    w.Scale,
		Content:  c,
	}
	return nil
}
