// Package palette defines the closed set of sixteen colors a canvas cell can hold.
package palette

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownColor is returned when a color cannot be parsed or is outside the palette.
var ErrUnknownColor = errors.New("palette: unknown color")

// Color is an index into the palette. Valid values are 0 through 15.
type Color uint8

const (
	Black Color = iota
	Gray
	Silver
	White
	Maroon
	Red
	Olive
	Yellow
	Green
	Lime
	Teal
	Aqua
	Navy
	Blue
	Purple
	Fuchsia
)

// Count is the number of colors in the palette.
const Count = 16

// Baseline is the color every cell holds when a board is created.
const Baseline = White

// RGB holds the display components of a color.
type RGB struct {
	R, G, B uint8
}

// Hex returns the color as a CSS-style "#rrggbb" string.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

var names = [Count]string{
	"BLACK", "GRAY", "SILVER", "WHITE",
	"MAROON", "RED", "OLIVE", "YELLOW",
	"GREEN", "LIME", "TEAL", "AQUA",
	"NAVY", "BLUE", "PURPLE", "FUCHSIA",
}

var components = [Count]RGB{
	{0, 0, 0}, {128, 128, 128}, {192, 192, 192}, {255, 255, 255},
	{128, 0, 0}, {255, 0, 0}, {128, 128, 0}, {255, 255, 0},
	{0, 128, 0}, {0, 255, 0}, {0, 128, 128}, {0, 255, 255},
	{0, 0, 128}, {0, 0, 255}, {128, 0, 128}, {255, 0, 255},
}

const digits = "0123456789ABCDEF"

// Valid reports whether c is one of the sixteen palette entries.
func (c Color) Valid() bool {
	return c < Count
}

// String returns the color's name, e.g. "RED".
func (c Color) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Color(%d)", uint8(c))
	}
	return names[c]
}

// RGB returns the display components of the color.
// Out-of-palette values render as black.
func (c Color) RGB() RGB {
	if !c.Valid() {
		return RGB{}
	}
	return components[c]
}

// Digit returns the single hex digit ("0"-"F") the console client uses for c.
func (c Color) Digit() string {
	if !c.Valid() {
		return "?"
	}
	return digits[c : c+1]
}

// Parse accepts either a hex digit ("0"-"F") or a color name, case-insensitively.
func Parse(s string) (Color, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) == 1 {
		if i := strings.IndexByte(digits, s[0]); i >= 0 {
			return Color(i), nil
		}
	}
	for i, name := range names {
		if name == s {
			return Color(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownColor, s)
}

// All returns every palette color in index order.
func All() []Color {
	out := make([]Color, Count)
	for i := range out {
		out[i] = Color(i)
	}
	return out
}
