package escpos

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"regexp"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var dataURIPrefix = regexp.MustCompile(`^data:image/[a-z]+;base64,`)

// Decode reads a PNG, JPEG, GIF, BMP or WebP image. Failures wrap ErrDecode.
func Decode(r io.Reader) (image.Image, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %s image is %dx%d", ErrInvalidDimensions, format, b.Dx(), b.Dy())
	}
	return img, nil
}

// DecodeBase64 decodes a base64 image, optionally prefixed with a
// data URI header as produced by view capture.
func DecodeBase64(s string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(dataURIPrefix.ReplaceAllString(s, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	return Decode(bytes.NewReader(raw))
}
