// Package validate provides pure contact-handle validation used to gate
// contact-collection transitions.
package validate

import (
	"regexp"
	"strings"
)

var (
	phonePattern     = regexp.MustCompile(`^\+?\d{8,15}$`)
	messengerPattern = regexp.MustCompile(`^@[A-Za-z0-9_]{4,31}$`)
	separators       = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "", "\t", "")
)

// IsPhoneNumber reports whether text is an acceptable phone number after
// stripping whitespace, hyphens, parentheses, and dots: an optional
// leading + followed by 8 to 15 digits.
func IsPhoneNumber(text string) bool {
	return phonePattern.MatchString(separators.Replace(text))
}

// IsMessengerHandle reports whether text is an acceptable messenger
// handle: @ followed by 4 to 31 letters, digits, or underscores.
func IsMessengerHandle(text string) bool {
	return messengerPattern.MatchString(text)
}

// IsContactInfo reports whether the trimmed text is either a phone number
// or a messenger handle.
func IsContactInfo(text string) bool {
	trimmed := strings.TrimSpace(text)
	return IsPhoneNumber(trimmed) || IsMessengerHandle(trimmed)
}
