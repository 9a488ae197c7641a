// Package escpos builds ESC/POS command streams for thermal receipt
// printers: monochrome raster images, legacy 24-dot bit-image bands and
// plain styled text.
package escpos

// Control bytes.
const (
	ESC = 0x1B
	GS  = 0x1D
	LF  = 0x0A
)

// Character size values for GS !.
const (
	SizeNormal byte = 0x00
	SizeDouble byte = 0x11
)

// Alignment values for ESC a.
type Alignment byte

const (
	AlignLeft   Alignment = 0
	AlignCenter Alignment = 1
	AlignRight  Alignment = 2
)

// Initialize resets the printer (ESC @).
func Initialize() []byte {
	return []byte{ESC, 0x40}
}

// Feed returns n line feeds.
func Feed(n int) []byte {
	if n <= 0 {
		return nil
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = LF
	}
	return b
}

// SelectCodePage selects a character code table (ESC t n).
func SelectCodePage(n byte) []byte {
	return []byte{ESC, 0x74, n}
}

// Align sets text justification (ESC a n).
func Align(a Alignment) []byte {
	return []byte{ESC, 0x61, byte(a)}
}

// Emphasis toggles bold text (ESC E n).
func Emphasis(on bool) []byte {
	if on {
		return []byte{ESC, 0x45, 1}
	}
	return []byte{ESC, 0x45, 0}
}

// CharSize sets the character width/height multiplier (GS ! n).
func CharSize(n byte) []byte {
	return []byte{GS, 0x21, n}
}

// rasterHeader is GS v 0 with normal density followed by the
// little-endian byte width and dot height of the block.
func rasterHeader(bytesPerLine, height int) []byte {
	xl, xh := lowHigh(bytesPerLine)
	yl, yh := lowHigh(height)
	return []byte{GS, 0x76, 0x30, 0x00, xl, xh, yl, yh}
}

// bandHeader is ESC * 33 (24-dot double density) with a little-endian count.
func bandHeader(n int) []byte {
	nl, nh := lowHigh(n)
	return []byte{ESC, 0x2A, 33, nl, nh}
}

func lowHigh(n int) (byte, byte) {
	return byte(n & 0xFF), byte((n >> 8) & 0xFF)
}
