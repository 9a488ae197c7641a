package escpos

import "errors"

var (
	// ErrDecode reports a source image that could not be decoded.
	ErrDecode = errors.New("escpos: decode image")
	// ErrInvalidDimensions reports a bitmap with zero or negative width or height.
	ErrInvalidDimensions = errors.New("escpos: invalid dimensions")
)
