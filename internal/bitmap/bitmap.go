// Package bitmap prepares captured images for the raster encoder:
// fitting them to the printer's dot width and optionally dithering
// them to two levels.
package bitmap

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/makeworld-the-better-one/dither/v2"
	xdraw "golang.org/x/image/draw"
)

// DefaultWidth is the dot width of a 58mm thermal print head.
const DefaultWidth = 384

// Options controls Prepare.
type Options struct {
	// Width is the target dot width. Images are scaled down or up to it.
	Width int
	// Dither applies Floyd-Steinberg error diffusion instead of leaving
	// gray levels to the encoder's fixed threshold.
	Dither bool
}

// ScaleToWidth resizes img to width dots, keeping the aspect ratio, and
// flattens it onto a white background. Images already at width are
// only flattened.
func ScaleToWidth(img image.Image, width int) *image.RGBA {
	src := img.Bounds()
	if width <= 0 {
		width = src.Dx()
	}
	height := src.Dy()
	if src.Dx() > 0 && src.Dx() != width {
		height = src.Dy() * width / src.Dx()
	}
	if height <= 0 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if src.Dx() == width {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Over)
		return dst
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, src, xdraw.Over, nil)
	return dst
}

// Dither reduces img to a black and white paletted image.
func Dither(img image.Image) *image.Paletted {
	d := dither.NewDitherer([]color.Color{color.Black, color.White})
	d.Matrix = dither.FloydSteinberg
	d.Serpentine = true
	return d.DitherPaletted(img)
}

// Prepare scales img to opts.Width and dithers it when requested.
func Prepare(img image.Image, opts Options) image.Image {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	scaled := ScaleToWidth(img, opts.Width)
	if opts.Dither {
		return Dither(scaled)
	}
	return scaled
}
