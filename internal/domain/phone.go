package domain

import (
	"regexp"
	"strings"
	"unicode"
)

// E.164: plus sign, then 2-15 digits with no leading zero.
var phoneRegex = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// FormatPhone strips everything except digits and a leading +, then prepends
// + if it is missing. It is the single normalization used on every path that
// touches a phone number; issue and verify must agree on it or a correctly
// entered code becomes unverifiable.
func FormatPhone(phone string) string {
	cleaned := strings.TrimSpace(phone)
	if cleaned == "" {
		return ""
	}

	var b strings.Builder
	for i, r := range cleaned {
		if i == 0 && r == '+' {
			b.WriteRune(r)
		} else if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	result := b.String()
	if result != "" && result[0] != '+' {
		result = "+" + result
	}
	return result
}

// ValidPhone reports whether a normalized phone number is valid E.164.
func ValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}
