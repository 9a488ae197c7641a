package escpos

import (
	"fmt"
	"image/color"
)

// Threshold is the luminance below which a pixel prints black.
const Threshold = 128

// Luminance selects how a pixel's color is reduced to an 8-bit intensity.
type Luminance int

const (
	// Precise uses the floating point weighted sum 0.299R + 0.587G + 0.114B.
	Precise Luminance = iota
	// IntShift uses the integer approximation (77R + 150G + 29B) >> 8.
	IntShift
	// GreenOnly uses the green channel alone.
	GreenOnly
)

// ParseLuminance maps a config name to a Luminance mode.
func ParseLuminance(s string) (Luminance, error) {
	switch s {
	case "precise", "":
		return Precise, nil
	case "intshift":
		return IntShift, nil
	case "green":
		return GreenOnly, nil
	default:
		return Precise, fmt.Errorf("escpos: unknown luminance mode %q", s)
	}
}

func (l Luminance) String() string {
	switch l {
	case Precise:
		return "precise"
	case IntShift:
		return "intshift"
	case GreenOnly:
		return "green"
	default:
		return fmt.Sprintf("Luminance(%d)", int(l))
	}
}

// Of returns the 0..255 intensity of c. Translucent pixels are
// composited over white paper first.
func (l Luminance) Of(c color.Color) int {
	r, g, b, a := c.RGBA()
	if a < 0xFFFF {
		bg := 0xFFFF - a
		r += bg
		g += bg
		b += bg
	}
	r8, g8, b8 := int(r>>8), int(g>>8), int(b>>8)

	switch l {
	case IntShift:
		return (77*r8 + 150*g8 + 29*b8) >> 8
	case GreenOnly:
		return g8
	default:
		return int(0.299*float64(r8) + 0.587*float64(g8) + 0.114*float64(b8))
	}
}

// black reports whether c prints as a dot.
func (l Luminance) black(c color.Color) bool {
	return l.Of(c) < Threshold
}
