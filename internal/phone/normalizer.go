// Package phone canonicalizes Turkish mobile numbers into the +905XXXXXXXXX
// form used as the customer identity key.
package phone

import (
	"errors"
	"regexp"
	"strings"
)

const (
	CountryCode = "90"
	trunkPrefix = "0"
	// mobilePrefix is the first digit of every national mobile number.
	mobilePrefix   = "5"
	nationalLength = 10
)

var (
	ErrInvalidPhone = errors.New("invalid phone number")

	canonicalPattern = regexp.MustCompile(`^\+905[0-9]{9}$`)
)

// Normalize strips formatting and maps national forms onto the country code.
// Input that matches none of the known shapes is returned unchanged, so the
// result must be checked with IsValid before it is trusted.
func Normalize(raw string) string {
	digits := stripNonDigits(raw)

	switch {
	case strings.HasPrefix(digits, CountryCode):
		return "+" + digits
	case strings.HasPrefix(digits, mobilePrefix) && len(digits) == nationalLength:
		return "+" + CountryCode + digits
	case strings.HasPrefix(digits, trunkPrefix) && len(digits) == nationalLength+1:
		return "+" + CountryCode + digits[1:]
	}

	return raw
}

// IsValid reports whether phone is a canonical Turkish mobile number.
func IsValid(phone string) bool {
	return canonicalPattern.MatchString(phone)
}

// Canonicalize normalizes raw and rejects anything that is not a valid mobile number.
func Canonicalize(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrInvalidPhone
	}
	normalized := Normalize(raw)
	if !IsValid(normalized) {
		return "", ErrInvalidPhone
	}
	return normalized, nil
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
