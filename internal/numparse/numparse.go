// Package numparse coerces locale-formatted extract cells into numbers.
// Malformed input degrades to zero; these functions never fail.
package numparse

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// maxExponentDigits bounds scientific notation so a stray "1e999999999"
// cannot produce an unbounded decimal.
const maxExponentDigits = 3

// Decimal parses raw as a decimal number. Thousands separators are removed
// and surrounding whitespace trimmed; the longest leading numeric prefix is
// used ("12.5%" → 12.5). Empty or non-numeric input returns zero.
func Decimal(raw string) decimal.Decimal {
	prefix := floatPrefix(clean(raw))
	if prefix == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(prefix)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Integer parses raw as a base-10 integer using the same cleaning as Decimal.
// Fractions are truncated at the decimal point ("3.7" → 3).
func Integer(raw string) int {
	prefix := intPrefix(clean(raw))
	if prefix == "" {
		return 0
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0
	}
	return int(v)
}

func clean(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
}

// intPrefix returns the optional sign plus leading digits of s, or "" when
// there are no digits.
func intPrefix(s string) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == start {
		return ""
	}
	return s[:i]
}

// floatPrefix returns the longest prefix of s that reads as a decimal
// literal with optional fraction and exponent.
func floatPrefix(s string) string {
	i := 0
	var b strings.Builder
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		if s[i] == '-' {
			b.WriteByte('-')
		}
		i++
	}

	intStart := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	intDigits := s[intStart:i]

	fracDigits := ""
	if i+1 < len(s) && s[i] == '.' && isDigit(s[i+1]) {
		i++
		fracStart := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		fracDigits = s[fracStart:i]
	}

	if intDigits == "" && fracDigits == "" {
		return ""
	}
	if intDigits == "" {
		intDigits = "0"
	}
	b.WriteString(intDigits)
	if fracDigits != "" {
		b.WriteByte('.')
		b.WriteString(fracDigits)
	}

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		sign := ""
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			if s[j] == '-' {
				sign = "-"
			}
			j++
		}
		expStart := j
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		switch n := j - expStart; {
		case n == 0:
			// "12e" reads as 12
		case n > maxExponentDigits:
			return ""
		default:
			b.WriteByte('e')
			b.WriteString(sign)
			b.WriteString(s[expStart:j])
		}
	}

	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
