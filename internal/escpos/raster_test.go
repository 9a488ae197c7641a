package escpos

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func noFeed() Encoder {
	return Encoder{Luminance: Precise, Strategy: StrategyRaster}
}

func TestEncodePayloadLength(t *testing.T) {
	sizes := []struct{ w, h int }{
		{1, 1}, {7, 3}, {8, 1}, {9, 2}, {384, 100}, {383, 17}, {1000, 5},
	}
	for _, s := range sizes {
		out, err := noFeed().Encode(solid(s.w, s.h, color.White))
		if err != nil {
			t.Fatalf("Encode(%dx%d) error = %v", s.w, s.h, err)
		}
		payload := len(out) - 2 - 8
		want := (s.w + 7) / 8 * s.h
		if payload != want {
			t.Errorf("%dx%d: payload = %d, want %d", s.w, s.h, payload, want)
		}
	}
}

func TestEncodedLengthMatchesEncode(t *testing.T) {
	encoders := []Encoder{
		DefaultEncoder(),
		{Strategy: StrategyBand, FeedLines: 4},
		{Strategy: StrategyRaster, MaxBlockHeight: 64, FeedLines: 3},
	}
	for _, e := range encoders {
		for _, s := range []struct{ w, h int }{{384, 100}, {10, 1}, {33, 49}, {200, 256}} {
			want, err := e.EncodedLength(s.w, s.h)
			if err != nil {
				t.Fatalf("EncodedLength error = %v", err)
			}
			out, err := e.Encode(solid(s.w, s.h, color.Black))
			if err != nil {
				t.Fatalf("Encode error = %v", err)
			}
			if len(out) != want {
				t.Errorf("%s %dx%d: len = %d, EncodedLength = %d", e.Strategy, s.w, s.h, len(out), want)
			}
		}
	}
}

func TestEncodeAllWhite(t *testing.T) {
	out, err := noFeed().Encode(solid(20, 4, color.White))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	for i, b := range out[10:] {
		if b != 0x00 {
			t.Fatalf("data[%d] = %#x, want 0x00", i, b)
		}
	}
}

func TestEncodeAllBlackTrailingBits(t *testing.T) {
	out, err := noFeed().Encode(solid(10, 3, color.Black))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	data := out[10:]
	if len(data) != 6 {
		t.Fatalf("data len = %d, want 6", len(data))
	}
	for y := 0; y < 3; y++ {
		if data[y*2] != 0xFF {
			t.Errorf("row %d byte 0 = %#x, want 0xff", y, data[y*2])
		}
		if data[y*2+1] != 0xC0 {
			t.Errorf("row %d byte 1 = %#x, want 0xc0", y, data[y*2+1])
		}
	}
}

func TestEncodeMSBFirst(t *testing.T) {
	img := solid(8, 1, color.White)
	img.Set(0, 0, color.Black)
	img.Set(7, 0, color.Black)
	out, err := noFeed().Encode(img)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if out[10] != 0x81 {
		t.Errorf("packed byte = %#x, want 0x81", out[10])
	}
}

func TestEncodeIdempotent(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 50, 30))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 37)
	}
	e := DefaultEncoder()
	a, err := e.Encode(img)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	b, _ := e.Encode(img)
	if !bytes.Equal(a, b) {
		t.Error("encoding the same bitmap twice produced different streams")
	}
}

func TestEncodeFullWidthBlackReceipt(t *testing.T) {
	out, err := DefaultEncoder().Encode(solid(384, 100, color.Black))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if want := 2 + 8 + 4800 + 3; len(out) != want {
		t.Fatalf("len = %d, want %d", len(out), want)
	}
	header := []byte{0x1B, 0x40, 0x1D, 0x76, 0x30, 0x00, 48, 0, 100, 0}
	if !bytes.Equal(out[:10], header) {
		t.Errorf("header = % x, want % x", out[:10], header)
	}
	for i, b := range out[10 : 10+4800] {
		if b != 0xFF {
			t.Fatalf("data[%d] = %#x, want 0xff", i, b)
		}
	}
	if !bytes.Equal(out[4810:], []byte{LF, LF, LF}) {
		t.Errorf("feed = % x, want 0a 0a 0a", out[4810:])
	}
}

func TestEncodeInvalidDimensions(t *testing.T) {
	_, err := DefaultEncoder().Encode(image.NewGray(image.Rect(0, 0, 0, 5)))
	if !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("err = %v, want ErrInvalidDimensions", err)
	}
	if _, err := DefaultEncoder().EncodedLength(10, -1); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("EncodedLength err = %v, want ErrInvalidDimensions", err)
	}
}

func TestEncodeNonZeroOrigin(t *testing.T) {
	img := image.NewGray(image.Rect(5, 5, 13, 6))
	img.SetGray(5, 5, color.Gray{Y: 0})
	for x := 6; x < 13; x++ {
		img.SetGray(x, 5, color.Gray{Y: 255})
	}
	out, err := noFeed().Encode(img)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if out[10] != 0x80 {
		t.Errorf("packed byte = %#x, want 0x80", out[10])
	}
}

func TestLuminanceModes(t *testing.T) {
	green := color.RGBA{R: 0, G: 200, B: 0, A: 255}
	tests := []struct {
		lum       Luminance
		wantValue int
		wantBlack bool
	}{
		{Precise, 117, true},
		{IntShift, 117, true},
		{GreenOnly, 200, false},
	}
	for _, tt := range tests {
		t.Run(tt.lum.String(), func(t *testing.T) {
			if got := tt.lum.Of(green); got != tt.wantValue {
				t.Errorf("Of() = %d, want %d", got, tt.wantValue)
			}
			if got := tt.lum.black(green); got != tt.wantBlack {
				t.Errorf("black() = %v, want %v", got, tt.wantBlack)
			}
		})
	}
}

func TestTransparentPrintsWhite(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 1))
	out, err := noFeed().Encode(img)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if out[10] != 0x00 {
		t.Errorf("packed byte = %#x, want 0x00", out[10])
	}
}

func TestParseModes(t *testing.T) {
	if l, err := ParseLuminance("green"); err != nil || l != GreenOnly {
		t.Errorf("ParseLuminance(green) = %v, %v", l, err)
	}
	if _, err := ParseLuminance("sepia"); err == nil {
		t.Error("ParseLuminance(sepia) should fail")
	}
	if s, err := ParseStrategy("band"); err != nil || s != StrategyBand {
		t.Errorf("ParseStrategy(band) = %v, %v", s, err)
	}
	if _, err := ParseStrategy("vector"); err == nil {
		t.Error("ParseStrategy(vector) should fail")
	}
}

func TestBandEncoding(t *testing.T) {
	e := Encoder{Strategy: StrategyBand}
	out, err := e.Encode(solid(16, 24, color.Black))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []byte{0x1B, 0x40, 0x1B, 0x2A, 33, 2, 0,
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, LF}
	if !bytes.Equal(out, want) {
		t.Errorf("band stream = % x, want % x", out, want)
	}
}

func TestBandHorizontalLine(t *testing.T) {
	img := solid(8, 24, color.White)
	for x := 0; x < 8; x++ {
		img.Set(x, 0, color.Black)
		img.Set(x, 9, color.Black)
	}
	out, err := Encoder{Strategy: StrategyBand}.Encode(img)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	col := out[7:10]
	if want := []byte{0x80, 0x40, 0x00}; !bytes.Equal(col, want) {
		t.Errorf("column = % x, want % x", col, want)
	}
}

func TestBandVerticalLine(t *testing.T) {
	img := solid(16, 24, color.White)
	for y := 0; y < 24; y++ {
		img.Set(9, y, color.Black)
	}
	out, err := Encoder{Strategy: StrategyBand}.Encode(img)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	cols := out[7:13]
	if want := []byte{0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF}; !bytes.Equal(cols, want) {
		t.Errorf("columns = % x, want % x", cols, want)
	}
}

func TestBandShortLastBand(t *testing.T) {
	img := solid(8, 25, color.White)
	for x := 0; x < 8; x++ {
		img.Set(x, 24, color.Black)
	}
	out, err := Encoder{Strategy: StrategyBand}.Encode(img)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	// second band starts after init, first band (5 + 3 + LF) and its header
	second := out[2+9+5 : 2+9+5+3]
	if want := []byte{0x80, 0x00, 0x00}; !bytes.Equal(second, want) {
		t.Errorf("second band = % x, want % x", second, want)
	}
}

func TestRasterBlocks(t *testing.T) {
	e := Encoder{Strategy: StrategyRaster, MaxBlockHeight: 256}
	out, err := e.Encode(solid(16, 600, color.White))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if got, want := bytes.Count(out, []byte{GS, 0x76, 0x30, 0x00}), 3; got != want {
		t.Errorf("raster headers = %d, want %d", got, want)
	}
	last := []byte{GS, 0x76, 0x30, 0x00, 2, 0, 88, 0}
	if !bytes.Contains(out, last) {
		t.Error("missing final 88-dot block header")
	}
}

func TestRasterSplitsTallImage(t *testing.T) {
	const h = 70000
	e := noFeed()
	out, err := e.Encode(solid(8, h, color.White))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	n, err := e.EncodedLength(8, h)
	if err != nil {
		t.Fatalf("EncodedLength() error = %v", err)
	}
	if len(out) != n {
		t.Errorf("len = %d, EncodedLength = %d", len(out), n)
	}

	first := []byte{GS, 0x76, 0x30, 0x00, 1, 0, 0xFF, 0xFF}
	if !bytes.HasPrefix(out[2:], first) {
		t.Errorf("first header = % x, want % x", out[2:10], first)
	}
	rest := h - 0xFFFF
	second := []byte{GS, 0x76, 0x30, 0x00, 1, 0, byte(rest), byte(rest >> 8)}
	at := 2 + 8 + 0xFFFF
	if !bytes.Equal(out[at:at+8], second) {
		t.Errorf("second header = % x, want % x", out[at:at+8], second)
	}
	if got := len(out) - 2 - 16; got != h {
		t.Errorf("payload rows = %d, want %d", got, h)
	}
}

func TestEncodedLengthRejectsOverwideImage(t *testing.T) {
	_, err := noFeed().EncodedLength(8*0x10000, 1)
	if !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("err = %v, want ErrInvalidDimensions", err)
	}
	_, err = Encoder{Strategy: StrategyBand}.EncodedLength(8*0x10000, 1)
	if !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("band err = %v, want ErrInvalidDimensions", err)
	}
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(4, 2, color.Black)); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}

	img, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
		t.Errorf("bounds = %v, want 4x2", img.Bounds())
	}

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	if _, err := DecodeBase64(uri); err != nil {
		t.Errorf("DecodeBase64() error = %v", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("not an image"))); !errors.Is(err, ErrDecode) {
		t.Errorf("Decode err = %v, want ErrDecode", err)
	}
	if _, err := DecodeBase64("!!!"); !errors.Is(err, ErrDecode) {
		t.Errorf("DecodeBase64 err = %v, want ErrDecode", err)
	}
}

func TestTestPattern(t *testing.T) {
	out := TestPattern(384)
	if want := 2 + 2*(5+48*3+1); len(out) != want {
		t.Fatalf("len = %d, want %d", len(out), want)
	}
	if !bytes.HasPrefix(out, []byte{0x1B, 0x40, 0x1B, 0x2A, 33, 48, 0}) {
		t.Errorf("prefix = % x", out[:7])
	}
}

func TestTextStream(t *testing.T) {
	s := NewTextStream()
	s.Align(AlignCenter)
	s.Size(SizeDouble)
	s.Line([]byte("HI"))
	got := s.Bytes(3)
	want := []byte{0x1B, 0x40, 0x1B, 0x61, 1, 0x1D, 0x21, 0x11, 'H', 'I', LF, LF, LF, LF}
	if !bytes.Equal(got, want) {
		t.Errorf("Bytes() = % x, want % x", got, want)
	}
}
