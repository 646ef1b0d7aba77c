package state

import (
	"fmt"
	"math"

	"fyne.io/fyne/v2"
)

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	X, Y          *float32
	Width, Height *float32
	Rotation      *float32
	Scale         *float32

	// Text elements.
	Text       *string
	FontSize   *float32
	FontFamily *string
	FontStyle  *FontStyle

	// Text and shape elements.
	Color *string

	// Shape elements.
	Shape *ShapeKind
}

// Ptr returns a pointer to v, for building patches inline.
func Ptr[T any](v T) *T {
	return &v
}

func finite(v *float32) bool {
	if v == nil {
		return true
	}
	f := float64(*v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// sanitize drops non-finite numerics and returns the names of the dropped fields.
func (p Patch) sanitize() (Patch, []string) {
	var dropped []string
	check := func(name string, v **float32) {
		if !finite(*v) {
			dropped = append(dropped, name)
			*v = nil
		}
	}
	check("x", &p.X)
	check("y", &p.Y)
	check("width", &p.Width)
	check("height", &p.Height)
	check("rotation", &p.Rotation)
	check("scale", &p.Scale)
	check("font_size", &p.FontSize)
	if p.Scale != nil && *p.Scale <= 0 {
		dropped = append(dropped, "scale")
		p.Scale = nil
	}
	return p, dropped
}

func isFinite(v float32) bool {
	return finite(&v)
}

// sanitizeElement resets non-finite numerics of a new element to their
// defaults and returns the names of the reset fields.
func sanitizeElement(e Element) (Element, []string) {
	var reset []string
	if !isFinite(e.Position.X) || !isFinite(e.Position.Y) {
		reset = append(reset, "position")
		e.Position = fyne.Position{}
	}
	if !isFinite(e.Size.Width) || !isFinite(e.Size.Height) {
		reset = append(reset, "size")
		e.Size = DefaultSize(e.Kind())
	}
	if !isFinite(e.Rotation) {
		reset = append(reset, "rotation")
		e.Rotation = 0
	}
	if !isFinite(e.Scale) {
		reset = append(reset, "scale")
		e.Scale = 1
	}
	if tc, ok := e.Content.(TextContent); ok && !isFinite(tc.FontSize) {
		reset = append(reset, "font_size")
		tc.FontSize = DefaultFontSize
		e.Content = tc
	}
	return e, reset
}

func applyPosition(e *Element, p Patch) {
	if p.X != nil {
		e.Position.X = *p.X
	}
	if p.Y != nil {
		e.Position.Y = *p.Y
	}
}

// merge folds p into cur. Position is applied first, then the remaining
// fields, then the variant is re-asserted from cur, the patch position is
// applied again, and content the patch did not name is carried over from
// cur. ignored lists patch fields that do not belong to cur's variant.
func merge(cur Element, p Patch) (next Element, ignored []string) {
	next = cur
	applyPosition(&next, p)

	if p.Width != nil {
		next.Size.Width = max(*p.Width, MinSide)
	}
	if p.Height != nil {
		next.Size.Height = max(*p.Height, MinSide)
	}
	if p.Rotation != nil {
		next.Rotation = *p.Rotation
	}
	if p.Scale != nil {
		next.Scale = *p.Scale
	}

	switch c := cur.Content.(type) {
	case TextContent:
		if p.Text != nil {
			c.Text = *p.Text
		}
		if p.FontSize != nil {
			c.FontSize = ClampFontSize(*p.FontSize)
		}
		if p.FontFamily != nil {
			c.FontFamily = *p.FontFamily
		}
		if p.FontStyle != nil {
			c.FontStyle = *p.FontStyle
		}
		if p.Color != nil {
			c.Color = *p.Color
		}
		if p.Shape != nil {
			ignored = append(ignored, "shape")
		}
		next.Content = c
	case ImageContent:
		if p.Text != nil || p.FontSize != nil || p.FontFamily != nil || p.FontStyle != nil {
			ignored = append(ignored, "text")
		}
		if p.Color != nil {
			ignored = append(ignored, "color")
		}
		if p.Shape != nil {
			ignored = append(ignored, "shape")
		}
		next.Content = c
	case ShapeContent:
		if p.Color != nil {
			c.Color = *p.Color
		}
		if p.Shape != nil {
			c.Shape = *p.Shape
		}
		if p.Text != nil || p.FontSize != nil || p.FontFamily != nil || p.FontStyle != nil {
			ignored = append(ignored, "text")
		}
		next.Content = c
	default:
		panic(fmt.Sprintf("state: unhandled content %T", cur.Content))
	}

	applyPosition(&next, p)

	if t, ok := next.Content.(TextContent); ok && p.Text == nil {
		t.Text = cur.Content.(TextContent).Text
		next.Content = t
	}
	return next, ignored
}
