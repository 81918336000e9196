package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrBadColor is returned for a color that is neither a string nor an
// [r,g,b] / [r,g,b,opacity] array.
var ErrBadColor = errors.New("invalid color")

// Color is an SVG paint value such as "red", "rgb(1,2,3)" or "rgba(1,2,3,0.5)".
// The zero value renders as "none".
type Color string

// RGB builds an rgb() color.
func RGB(r, g, b uint8) Color {
	return Color(fmt.Sprintf("rgb(%d,%d,%d)", r, g, b))
}

// RGBA builds an rgba() color.
func RGBA(r, g, b uint8, opacity float64) Color {
	return Color(fmt.Sprintf("rgba(%d,%d,%d,%s)", r, g, b, num(opacity)))
}

func (c Color) String() string {
	if c == "" {
		return "none"
	}
	return string(c)
}

// UnmarshalJSON accepts a color name or a 3/4-element array.
func (c *Color) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*c = Color(name)
		return nil
	}
	var parts []float64
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: %s", ErrBadColor, data)
	}
	if len(parts) != 3 && len(parts) != 4 {
		return fmt.Errorf("%w: %d components", ErrBadColor, len(parts))
	}
	var rgb [3]uint8
	for i := range rgb {
		v := parts[i]
		if v < 0 || v > 255 || v != float64(int(v)) {
			return fmt.Errorf("%w: component %v", ErrBadColor, v)
		}
		rgb[i] = uint8(v)
	}
	if len(parts) == 3 {
		*c = RGB(rgb[0], rgb[1], rgb[2])
		return nil
	}
	*c = RGBA(rgb[0], rgb[1], rgb[2], parts[3])
	return nil
}

// num formats a number with six significant digits, trailing zeros dropped.
func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
