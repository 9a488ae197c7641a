package receipt

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"strings"

	"github.com/skip2/go-qrcode"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/chaz8081/thermobill/internal/escpos"
	"github.com/chaz8081/thermobill/internal/text"
)

// RenderOptions configures a Renderer.
type RenderOptions struct {
	// Width is the canvas width in dots.
	Width int
	// FontPath is a TTF or OTF file with the glyphs the receipt needs.
	// Without it the built-in ASCII face is used and text is transliterated.
	FontPath string
	FontSize float64
	Margin   int
	// QRSize is the QR code side in dots. Zero disables the code.
	QRSize int
}

// Renderer draws Documents onto white bitmaps, standing in for the
// on-screen receipt capture.
type Renderer struct {
	opts      RenderOptions
	face      font.Face
	asciiOnly bool
}

// NewRenderer loads the configured font.
func NewRenderer(opts RenderOptions) (*Renderer, error) {
	if opts.Width <= 0 {
		opts.Width = 384
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 22
	}
	if opts.Margin < 0 {
		opts.Margin = 0
	}

	r := &Renderer{opts: opts}
	if opts.FontPath == "" {
		r.face = basicfont.Face7x13
		r.asciiOnly = true
		return r, nil
	}

	data, err := os.ReadFile(opts.FontPath)
	if err != nil {
		return nil, fmt.Errorf("receipt: reading font: %w", err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("receipt: parsing font %s: %w", opts.FontPath, err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    opts.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("receipt: creating font face: %w", err)
	}
	r.face = face
	return r, nil
}

type placed struct {
	text  string
	style Style
}

// Render draws doc and returns an opaque image exactly Width dots wide.
func (r *Renderer) Render(doc Document) (image.Image, error) {
	width := r.opts.Width
	inner := width - 2*r.opts.Margin
	if inner <= 0 {
		return nil, fmt.Errorf("receipt: margin %d leaves no room on a %d dot canvas", r.opts.Margin, width)
	}
	lineH := r.face.Metrics().Height.Ceil()

	var lines []placed
	for _, l := range doc.Lines {
		s := l.Text
		if r.asciiOnly {
			s = text.Transliterate(s)
		}
		scale := 1
		if l.Style.Double {
			scale = 2
		}
		for _, w := range wrapText(s, inner/scale, r.face) {
			lines = append(lines, placed{text: w, style: l.Style})
		}
	}

	height := 2 * r.opts.Margin
	for _, l := range lines {
		height += lineH * scaleOf(l.style)
	}

	var qr image.Image
	if doc.QR != "" && r.opts.QRSize > 0 {
		q, err := qrcode.New(doc.QR, qrcode.Medium)
		if err != nil {
			return nil, fmt.Errorf("receipt: qr code: %w", err)
		}
		q.DisableBorder = true
		qr = q.Image(min(r.opts.QRSize, inner))
		height += qr.Bounds().Dy() + lineH
	}
	if height <= 0 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	y := r.opts.Margin
	for _, l := range lines {
		scale := scaleOf(l.style)
		r.drawLine(dst, l, y, scale)
		y += lineH * scale
	}
	if qr != nil {
		y += lineH / 2
		x := (width - qr.Bounds().Dx()) / 2
		draw.Draw(dst, image.Rect(x, y, x+qr.Bounds().Dx(), y+qr.Bounds().Dy()), qr, qr.Bounds().Min, draw.Src)
	}
	return dst, nil
}

func scaleOf(s Style) int {
	if s.Double {
		return 2
	}
	return 1
}

// drawLine renders one line at its natural size and scales it into dst.
func (r *Renderer) drawLine(dst *image.RGBA, l placed, top, scale int) {
	lineH := r.face.Metrics().Height.Ceil()
	w := font.MeasureString(r.face, l.text).Ceil() + 1
	if w <= 1 {
		return
	}

	src := image.NewRGBA(image.Rect(0, 0, w, lineH))
	draw.Draw(src, src.Bounds(), image.White, image.Point{}, draw.Src)
	d := &font.Drawer{Dst: src, Src: image.NewUniform(color.Black), Face: r.face}
	d.Dot = fixed.P(0, r.face.Metrics().Ascent.Ceil())
	d.DrawString(l.text)
	if l.style.Bold {
		d.Dot = fixed.P(1, r.face.Metrics().Ascent.Ceil())
		d.DrawString(l.text)
	}

	outW := w * scale
	var x int
	switch l.style.Align {
	case escpos.AlignCenter:
		x = (dst.Bounds().Dx() - outW) / 2
	case escpos.AlignRight:
		x = dst.Bounds().Dx() - r.opts.Margin - outW
	default:
		x = r.opts.Margin
	}
	rect := image.Rect(x, top, x+outW, top+lineH*scale)
	if scale == 1 {
		draw.Draw(dst, rect, src, image.Point{}, draw.Src)
		return
	}
	xdraw.NearestNeighbor.Scale(dst, rect, src, src.Bounds(), xdraw.Src, nil)
}

// wrapText breaks s into lines no wider than maxWidth. Words wider than
// maxWidth stay on a line of their own.
func wrapText(s string, maxWidth int, face font.Face) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var line string
	for _, word := range words {
		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		if line != "" && font.MeasureString(face, candidate).Ceil() > maxWidth {
			lines = append(lines, line)
			line = word
			continue
		}
		line = candidate
	}
	return append(lines, line)
}
