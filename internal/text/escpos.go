package text

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"

	"github.com/chaz8081/thermobill/internal/escpos"
)

// Options controls the direct text path.
type Options struct {
	CodePage CodePage
	// Transliterate maps Armenian to Latin before encoding.
	Transliterate bool
	FeedLines     int
}

// DefaultOptions prints cp437 with transliteration and a three line feed.
func DefaultOptions() Options {
	cp, _ := LookupCodePage("cp437")
	return Options{CodePage: cp, Transliterate: true, FeedLines: 3}
}

// Prepare applies transliteration when enabled.
func (o Options) Prepare(s string) string {
	if o.Transliterate {
		return Transliterate(s)
	}
	return s
}

// scriptPages names the code page that carries a writing system the
// configured page may lack.
var scriptPages = map[*unicode.RangeTable]string{
	unicode.Cyrillic: "cp866",
}

// PageFor returns the code page to print the prepared text s with: the
// configured page when it holds s, otherwise the page for the script
// whatlanggo detects in s when that page holds it. When neither does, the
// configured page is returned.
func (o Options) PageFor(s string) CodePage {
	cp := o.CodePage
	if cp.table == nil {
		cp, _ = LookupCodePage("")
	}
	if cp.Representable(s) {
		return cp
	}
	name, ok := scriptPages[whatlanggo.DetectScript(s)]
	if !ok {
		return cp
	}
	if alt, err := LookupCodePage(name); err == nil && alt.Representable(s) {
		return alt
	}
	return cp
}

// NeedsImage reports whether the prepared text s cannot be printed
// faithfully as text under o and should go through bitmap rendering.
func (o Options) NeedsImage(s string) bool {
	return !o.PageFor(s).Representable(s)
}

// TextToEscPos wraps text in initialize and feed commands, one printer
// line per input line, selecting the code page with PageFor.
// Characters outside that page degrade to Replacement.
func TextToEscPos(s string, o Options) []byte {
	s = o.Prepare(strings.TrimRight(s, "\n"))
	cp := o.PageFor(s)
	ts := escpos.NewTextStream()
	ts.CodePage(cp.Selector)
	for _, line := range strings.Split(s, "\n") {
		ts.Line(cp.Encode(line))
	}
	return ts.Bytes(o.FeedLines)
}
