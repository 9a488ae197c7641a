package escpos

// TextStream builds a direct-text command stream. It starts with an
// initialize command; Bytes appends the trailing feed.
type TextStream struct {
	buf []byte
}

// NewTextStream returns a stream that begins with ESC @.
func NewTextStream() *TextStream {
	return &TextStream{buf: Initialize()}
}

// CodePage selects the printer code table for following text.
func (t *TextStream) CodePage(n byte) { t.buf = append(t.buf, SelectCodePage(n)...) }

// Align sets justification for following lines.
func (t *TextStream) Align(a Alignment) { t.buf = append(t.buf, Align(a)...) }

// Bold toggles emphasis.
func (t *TextStream) Bold(on bool) { t.buf = append(t.buf, Emphasis(on)...) }

// Size sets the character size.
func (t *TextStream) Size(n byte) { t.buf = append(t.buf, CharSize(n)...) }

// Line writes already encoded text followed by a line feed.
func (t *TextStream) Line(text []byte) {
	t.buf = append(t.buf, text...)
	t.buf = append(t.buf, LF)
}

// Bytes returns the stream with feedLines trailing line feeds.
func (t *TextStream) Bytes(feedLines int) []byte {
	out := make([]byte, 0, len(t.buf)+feedLines)
	out = append(out, t.buf...)
	return append(out, Feed(feedLines)...)
}
