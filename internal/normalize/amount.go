// Package normalize parses locale-ambiguous numeric and date text from
// position records into canonical values.
package normalize

import (
	"strconv"
	"strings"
)

// ParseAmount parses a human-formatted amount where "." and "," may
// each act as decimal or thousands separator. If both occur, the
// rightmost occurrence is the decimal separator and the other is
// stripped. With a single separator type, a trailing group of exactly
// 3 digits is read as thousands and a trailing group of exactly 2
// digits as decimals; anything else treats the separator as decimal.
// Currency symbols and spaces are stripped, and only a single leading
// minus sign is honored. Returns ok=false on unparsable input.
func ParseAmount(text string) (float64, bool) {
	cleaned := stripOrnamentation(text)
	if cleaned == "" {
		return 0, false
	}

	negative := strings.HasPrefix(cleaned, "-")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	if cleaned == "" {
		return 0, false
	}

	lastDot := strings.LastIndexByte(cleaned, '.')
	lastComma := strings.LastIndexByte(cleaned, ',')

	var canonical string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Both present: rightmost wins as decimal separator.
		if lastDot > lastComma {
			canonical = strings.ReplaceAll(cleaned, ",", "")
		} else {
			canonical = strings.ReplaceAll(cleaned, ".", "")
			canonical = strings.Replace(canonical, ",", ".", 1)
		}
	case lastDot >= 0:
		canonical = resolveSingleSeparator(cleaned, '.')
	case lastComma >= 0:
		canonical = resolveSingleSeparator(cleaned, ',')
	default:
		canonical = cleaned
	}

	n, err := strconv.ParseFloat(canonical, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		n = -n
	}
	return n, true
}

// resolveSingleSeparator decides whether a lone separator type is a
// thousands or decimal separator based on the trailing digit group:
// exactly 3 trailing digits read as thousands, anything else (the
// 2-digit cents case included) reads the last separator as decimal.
func resolveSingleSeparator(s string, sep byte) string {
	last := strings.LastIndexByte(s, sep)
	trailing := len(s) - last - 1

	if trailing == 3 {
		return strings.ReplaceAll(s, string(sep), "")
	}
	canonical := strings.ReplaceAll(s[:last], string(sep), "")
	return canonical + "." + s[last+1:]
}

// stripOrnamentation drops everything that is not a digit, separator,
// or minus sign (currency symbols, spaces, thin spaces).
func stripOrnamentation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
