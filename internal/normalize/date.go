package normalize

import (
	"strings"
	"time"
	"unicode"
)

// ParseDate accepts exactly the "<day> <3-letter-month> <year>" shape
// found in rendered position records, e.g. "24 Nov 2024". Any other
// shape is rejected.
func ParseDate(text string) (time.Time, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) != 3 {
		return time.Time{}, false
	}

	day, month, year := fields[0], fields[1], fields[2]
	if len(day) < 1 || len(day) > 2 || !allDigits(day) {
		return time.Time{}, false
	}
	if len(month) != 3 {
		return time.Time{}, false
	}
	if len(year) != 4 || !allDigits(year) {
		return time.Time{}, false
	}

	// time.Parse wants the month capitalized exactly as "Nov".
	month = strings.ToUpper(month[:1]) + strings.ToLower(month[1:])

	t, err := time.Parse("2 Jan 2006", day+" "+month+" "+year)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
