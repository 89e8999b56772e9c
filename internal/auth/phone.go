package auth

import (
	"strings"

	"tasvir/internal/domain"
	"tasvir/internal/textnorm"
)

// NormalizePhone canonicalizes an Iranian mobile number to +989xxxxxxxxx.
// Accepted inputs: 09xxxxxxxxx, 9xxxxxxxxx, 989xxxxxxxxx, +989xxxxxxxxx and
// 00989xxxxxxxxx, in ASCII, Persian or Arabic-Indic digits, with spaces or
// dashes.
func NormalizePhone(raw string) (string, error) {
	s := textnorm.Digits(raw)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", domain.NewValidationError("phone", "unexpected character")
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "0098"):
		digits = digits[4:]
	case strings.HasPrefix(digits, "98") && len(digits) == 12:
		digits = digits[2:]
	case strings.HasPrefix(digits, "0") && len(digits) == 11:
		digits = digits[1:]
	}
	if len(digits) != 10 || digits[0] != '9' {
		return "", domain.NewValidationError("phone", "must be an Iranian mobile number")
	}
	return "+98" + digits, nil
}
