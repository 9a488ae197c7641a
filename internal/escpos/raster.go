package escpos

import (
	"fmt"
	"image"
)

// BandHeight is the dot height of one ESC * 33 band.
const BandHeight = 24

// maxField is the largest value a little-endian nL nH pair can carry.
const maxField = 0xFFFF

// Strategy selects the image command family.
type Strategy int

const (
	// StrategyRaster emits GS v 0 raster blocks.
	StrategyRaster Strategy = iota
	// StrategyBand emits legacy ESC * 33 bit-image bands.
	StrategyBand
)

// ParseStrategy maps a config name to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "raster", "":
		return StrategyRaster, nil
	case "band":
		return StrategyBand, nil
	default:
		return StrategyRaster, fmt.Errorf("escpos: unknown raster strategy %q", s)
	}
}

func (s Strategy) String() string {
	switch s {
	case StrategyRaster:
		return "raster"
	case StrategyBand:
		return "band"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Encoder converts bitmaps into ESC/POS command streams. The zero value
// encodes with precise luminance, a single raster block and no feed.
type Encoder struct {
	Luminance Luminance
	Strategy  Strategy
	// FeedLines is the number of trailing line feeds.
	FeedLines int
	// MaxBlockHeight splits raster images into GS v 0 blocks of at most
	// this many dots. Zero emits one block unless the image is taller than
	// a header can describe, in which case blocks are 65535 dots.
	MaxBlockHeight int
}

// DefaultEncoder returns the encoder used for receipts.
func DefaultEncoder() Encoder {
	return Encoder{
		Luminance: Precise,
		Strategy:  StrategyRaster,
		FeedLines: 3,
	}
}

// Raster is a packed monochrome bitmap: 1 bit per pixel, MSB first,
// 1 = black. Trailing bits past Width in each row are 0.
type Raster struct {
	Width        int
	Height       int
	BytesPerLine int
	Data         []byte
}

// Row returns the packed bytes of row y.
func (r *Raster) Row(y int) []byte {
	return r.Data[y*r.BytesPerLine : (y+1)*r.BytesPerLine]
}

// anyBlack reports whether any pixel of packed byte col in row y is set.
// Rows past the bitmap read as white.
func (r *Raster) anyBlack(col, y int) bool {
	if y < 0 || y >= r.Height {
		return false
	}
	return r.Data[y*r.BytesPerLine+col] != 0
}

// Pack thresholds img into a Raster.
func Pack(img image.Image, lum Luminance) (*Raster, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidDimensions)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, w, h)
	}

	bpl := (w + 7) / 8
	r := &Raster{Width: w, Height: h, BytesPerLine: bpl, Data: make([]byte, bpl*h)}
	for y := 0; y < h; y++ {
		row := r.Data[y*bpl : (y+1)*bpl]
		for x := 0; x < w; x++ {
			if lum.black(img.At(b.Min.X+x, b.Min.Y+y)) {
				row[x/8] |= 0x80 >> uint(x%8)
			}
		}
	}
	return r, nil
}

// EncodedLength returns the exact stream length Encode produces for a
// w by h bitmap.
func (e Encoder) EncodedLength(w, h int) (int, error) {
	if w <= 0 || h <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, w, h)
	}
	bpl := (w + 7) / 8
	if bpl > maxField {
		return 0, fmt.Errorf("%w: %d bytes per line exceeds %d", ErrInvalidDimensions, bpl, maxField)
	}
	n := len(Initialize()) + max(e.FeedLines, 0)

	switch e.Strategy {
	case StrategyBand:
		bands := (h + BandHeight - 1) / BandHeight
		n += bands * (5 + bpl*3 + 1)
	default:
		n += e.blocks(h)*8 + bpl*h
	}
	return n, nil
}

func (e Encoder) blocks(h int) int {
	step := e.blockHeight()
	return (h + step - 1) / step
}

// blockHeight is the dot height of every raster block but the last.
func (e Encoder) blockHeight() int {
	if e.MaxBlockHeight <= 0 || e.MaxBlockHeight > maxField {
		return maxField
	}
	return e.MaxBlockHeight
}

// Encode converts img into an ESC/POS stream: initialize, image
// commands, trailing feed. The result depends only on img and e.
func (e Encoder) Encode(img image.Image) ([]byte, error) {
	r, err := Pack(img, e.Luminance)
	if err != nil {
		return nil, err
	}
	return e.EncodeRaster(r)
}

// EncodeRaster emits the command stream for an already packed raster.
func (e Encoder) EncodeRaster(r *Raster) ([]byte, error) {
	size, err := e.EncodedLength(r.Width, r.Height)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, size)
	out = append(out, Initialize()...)
	switch e.Strategy {
	case StrategyBand:
		out = appendBands(out, r)
	default:
		out = e.appendRaster(out, r)
	}
	out = append(out, Feed(e.FeedLines)...)
	return out, nil
}

func (e Encoder) appendRaster(out []byte, r *Raster) []byte {
	step := e.blockHeight()
	for y := 0; y < r.Height; y += step {
		h := min(step, r.Height-y)
		out = append(out, rasterHeader(r.BytesPerLine, h)...)
		out = append(out, r.Data[y*r.BytesPerLine:(y+h)*r.BytesPerLine]...)
	}
	return out
}

// appendBands emits the legacy layout: nL/nH carries bytesPerLine, so
// each output column stands for eight source columns and is black where
// any of them is. Byte k of a column covers rows y+8k..y+8k+7 with the
// top row in bit 7. Each band ends with a line feed.
func appendBands(out []byte, r *Raster) []byte {
	for y := 0; y < r.Height; y += BandHeight {
		out = append(out, bandHeader(r.BytesPerLine)...)
		for col := 0; col < r.BytesPerLine; col++ {
			for k := 0; k < 3; k++ {
				var v byte
				for b := 0; b < 8; b++ {
					if r.anyBlack(col, y+k*8+b) {
						v |= 0x80 >> uint(b)
					}
				}
				out = append(out, v)
			}
		}
		out = append(out, LF)
	}
	return out
}
