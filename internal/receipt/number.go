package receipt

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const numberAlphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// NewNumber returns a short receipt number that is easy to read back
// over the phone.
func NewNumber() (string, error) {
	return gonanoid.Generate(numberAlphabet, 10)
}
