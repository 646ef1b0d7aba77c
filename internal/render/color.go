package render

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

var ErrBadColor = errors.New("render: unrecognised colour")

// Palette holds the named colours offered by the toolbar.
var Palette = map[string]color.NRGBA{
	"black":  {A: 255},
	"white":  {R: 255, G: 255, B: 255, A: 255},
	"red":    {R: 255, A: 255},
	"green":  {G: 255, A: 255},
	"blue":   {B: 255, A: 255},
	"yellow": {R: 255, G: 255, A: 255},
	"orange": {R: 255, G: 165, A: 255},
	"purple": {R: 128, B: 128, A: 255},
	"gray":   {R: 128, G: 128, B: 128, A: 255},
}

// PaletteOrder lists Palette keys in toolbar order.
var PaletteOrder = []string{"black", "red", "green", "blue", "yellow", "orange", "purple", "gray", "white"}

// ParseColor accepts a palette name or #rgb, #rrggbb, #rrggbbaa.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := Palette[s]; ok {
		return c, nil
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrBadColor, s)
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrBadColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrBadColor, s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// ColorOr parses s and falls back to def when it is not a colour.
func ColorOr(s string, def color.NRGBA) color.NRGBA {
	c, err := ParseColor(s)
	if err != nil {
		return def
	}
	return c
}
