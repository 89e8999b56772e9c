// Package textnorm normalizes user-typed identifiers such as phone numbers and
// promotion codes, which frequently arrive with Persian or Arabic-Indic digits
// and full-width characters from mobile keyboards.
package textnorm

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"
)

var asciiDigits = runes.Map(func(r rune) rune {
	switch {
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	default:
		return r
	}
})

// Digits folds full-width forms and maps Persian and Arabic-Indic digits to
// ASCII. Other characters pass through.
func Digits(s string) string {
	out, _, err := transform.String(transform.Chain(width.Fold, asciiDigits), s)
	if err != nil {
		return s
	}
	return out
}

// Code trims, normalizes digits and upper-cases s for case-insensitive lookups.
func Code(s string) string {
	s = strings.TrimSpace(Digits(s))
	return cases.Upper(language.Und).String(s)
}

// Truncate shortens s to at most n bytes without splitting a character.
// Invalid UTF-8 is dropped first, so the result is always valid text.
func Truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
