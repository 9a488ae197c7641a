// Package text prepares printable text: Armenian to Latin
// transliteration for printers without an Armenian code page, code page
// encoding and the direct ESC/POS text path.
package text

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// armenian maps Armenian letters and punctuation to Latin.
var armenian = map[rune]string{
	'Ա': "A", 'Բ': "B", 'Գ': "G", 'Դ': "D", 'Ե': "E", 'Զ': "Z", 'Է': "E",
	'Ը': "Y", 'Թ': "T", 'Ժ': "Zh", 'Ի': "I", 'Լ': "L", 'Խ': "Kh", 'Ծ': "Ts",
	'Կ': "K", 'Հ': "H", 'Ձ': "Dz", 'Ղ': "Gh", 'Ճ': "Ch", 'Մ': "M", 'Յ': "Y",
	'Ն': "N", 'Շ': "Sh", 'Ո': "O", 'Չ': "Ch", 'Պ': "P", 'Ջ': "J", 'Ռ': "R",
	'Ս': "S", 'Վ': "V", 'Տ': "T", 'Ր': "R", 'Ց': "Ts", 'Ւ': "U", 'Փ': "P",
	'Ք': "K", 'Օ': "O", 'Ֆ': "F",

	'ա': "a", 'բ': "b", 'գ': "g", 'դ': "d", 'ե': "e", 'զ': "z", 'է': "e",
	'ը': "y", 'թ': "t", 'ժ': "zh", 'ի': "i", 'լ': "l", 'խ': "kh", 'ծ': "ts",
	'կ': "k", 'հ': "h", 'ձ': "dz", 'ղ': "gh", 'ճ': "ch", 'մ': "m", 'յ': "y",
	'ն': "n", 'շ': "sh", 'ո': "o", 'չ': "ch", 'պ': "p", 'ջ': "j", 'ռ': "r",
	'ս': "s", 'վ': "v", 'տ': "t", 'ր': "r", 'ց': "ts", 'ւ': "u", 'փ': "p",
	'ք': "k", 'օ': "o", 'ֆ': "f", 'և': "ev",

	'։': ":", '՝': ",", '՛': "!", '՞': "?", '«': "\"", '»': "\"",
	'—': "-", '–': "-", '֊': "-", '’': "'", '‘': "'", '“': "\"", '”': "\"",
}

// Transliterate replaces every character found in the table with its
// Latin form. Other characters pass through unchanged.
func Transliterate(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if lat, ok := armenian[r]; ok {
			b.WriteString(lat)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
