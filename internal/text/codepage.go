package text

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// Replacement is written for characters the code page cannot represent.
const Replacement = '?'

// CodePage pairs a character table with its ESC t selector.
type CodePage struct {
	Name     string
	Selector byte
	table    *charmap.Charmap
}

var codePages = map[string]CodePage{
	"cp437":   {Name: "cp437", Selector: 0, table: charmap.CodePage437},
	"cp850":   {Name: "cp850", Selector: 2, table: charmap.CodePage850},
	"cp866":   {Name: "cp866", Selector: 17, table: charmap.CodePage866},
	"cp852":   {Name: "cp852", Selector: 18, table: charmap.CodePage852},
	"cp858":   {Name: "cp858", Selector: 19, table: charmap.CodePage858},
	"wpc1252": {Name: "wpc1252", Selector: 16, table: charmap.Windows1252},
}

// LookupCodePage returns the named code page. An empty name is cp437.
func LookupCodePage(name string) (CodePage, error) {
	if name == "" {
		name = "cp437"
	}
	cp, ok := codePages[strings.ToLower(name)]
	if !ok {
		return CodePage{}, fmt.Errorf("text: unknown code page %q", name)
	}
	return cp, nil
}

// charmap is the encoding table; the zero CodePage is cp437.
func (c CodePage) charmap() *charmap.Charmap {
	if c.table == nil {
		return charmap.CodePage437
	}
	return c.table
}

// Encode converts s to code page bytes, substituting Replacement for
// anything the table lacks.
func (c CodePage) Encode(s string) []byte {
	s = norm.NFC.String(s)
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 0x80 {
			out = append(out, byte(r))
			continue
		}
		if b, ok := c.charmap().EncodeRune(r); ok {
			out = append(out, b)
			continue
		}
		out = append(out, Replacement)
	}
	return out
}

// Representable reports whether every character of s exists in the code page.
func (c CodePage) Representable(s string) bool {
	for _, r := range norm.NFC.String(s) {
		if r < 0x80 {
			continue
		}
		if _, ok := c.charmap().EncodeRune(r); !ok {
			return false
		}
	}
	return true
}
