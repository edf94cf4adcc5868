// Package stringutil cleans strings received from the network before they are logged.
package stringutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Printable returns a new string with non-printable characters are replaced with Unicode replacement character.
// The result is cut to max runes if max is positive.
func Printable(s string, max int) string {
	s = strings.Map(func(r rune) rune {
		if !unicode.IsPrint(r) {
			return unicode.ReplacementChar
		}
		return r
	}, strings.ToValidUTF8(s, string(unicode.ReplacementChar)))
	if max > 0 && utf8.RuneCountInString(s) > max {
		s = string([]rune(s)[:max]) + "..."
	}
	return s
}
